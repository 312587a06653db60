package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"inferd/internal/registry"
)

func newModelsCmd() *cobra.Command {
	var (
		dir    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List model files in a directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := registry.LoadDir(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(files)
			}
			for _, f := range files {
				fmt.Fprintf(out, "%s\t%d MB\t%s\n", f.Name, f.SizeMB, f.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "~/models/llm", "Directory to scan for *.gguf files")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}
