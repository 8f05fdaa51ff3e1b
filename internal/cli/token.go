package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the sync service auth token",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the auth token, generating it on first use",
		Run:   runTokenShow,
	}
	regen := &cobra.Command{
		Use:   "regenerate",
		Short: "Replace the auth token; the old one stops working immediately",
		Run:   runTokenRegenerate,
	}

	cmd.AddCommand(show, regen)
	RootCmd.AddCommand(cmd)
}

func runTokenShow(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := openApp(ctx)
	defer a.Close()

	token, err := a.state.EnsureAuthToken(ctx)
	if err != nil {
		exitErr("token", err)
	}
	output(map[string]string{"token": token}, token)
}

func runTokenRegenerate(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := openApp(ctx)
	defer a.Close()

	token, err := a.state.RegenerateAuthToken(ctx)
	if err != nil {
		exitErr("regenerate token", err)
	}
	output(map[string]string{"token": token}, token)
}
