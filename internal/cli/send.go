package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hydrosync/internal/transport"
)

func init() {
	cmd := &cobra.Command{
		Use:   "send <path> [payload]",
		Short: "Send a raw protocol message to companion devices",
		Long: "Send one protocol message to every reachable companion and print the outcome.\n" +
			"Paths: request-intake, push-intake, add-intake, push-goal, push-unit.",
		Args: cobra.RangeArgs(1, 2),
		Run:  runSend,
	}

	RootCmd.AddCommand(cmd)
}

func runSend(cmd *cobra.Command, args []string) {
	path, err := transport.ParsePath(args[0])
	if err != nil {
		exitErr("send", err)
	}
	payload := ""
	if len(args) == 2 {
		payload = args[1]
	}

	ctx := cmd.Context()
	a := openApp(ctx)
	defer a.Close()

	res := a.link(ctx).Send(ctx, path, payload)
	output(map[string]string{
		"path":   string(path),
		"result": res.String(),
	}, fmt.Sprintf("%s: %s", path, res))
	if res.Kind == transport.Failed {
		a.Close()
		exitErr("send", res.Err())
	}
}
