package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/hydrosync/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import intake records from JSON",
		Long:  "Import intake records from JSON on stdin. Expects the format produced by export; records already present are skipped.",
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var records []model.IntakeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		exitErr("parse json", err)
	}

	ctx := cmd.Context()
	a := openApp(ctx)
	defer a.Close()

	imported, err := a.db.Import(ctx, records)
	if err != nil {
		exitErr("import", err)
	}
	a.tracker.Today(ctx)

	fmt.Printf(`{"ok":true,"imported":%d}`+"\n", imported)
}
