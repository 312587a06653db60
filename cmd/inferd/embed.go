package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"inferd/internal/manager"
	"inferd/pkg/types"
)

func newEmbedCmd() *cobra.Command {
	var (
		engineName string
		modelPath  string
		modelName  string
		text       string
		full       bool
	)
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Compute an embedding vector for a text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mc := types.DefaultModelConfig()
			mc.Path = modelPath
			mc.Embeddings = true
			return withRuntime(cmd.Context(), engineName, modelName, mc, func(ctx context.Context, m *manager.Manager, model string) error {
				vec, err := m.GetEmbeddings(ctx, model, text)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if full {
					for _, v := range vec {
						fmt.Fprintf(out, "%g\n", v)
					}
					return nil
				}
				preview := vec
				if len(preview) > 8 {
					preview = preview[:8]
				}
				_, err = fmt.Fprintf(out, "dims=%d head=%v\n", len(vec), preview)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&engineName, "engine", "llama", "Inference engine: llama or fake")
	cmd.Flags().StringVar(&modelPath, "model-path", "", "Path to the .gguf model file")
	cmd.Flags().StringVar(&modelName, "model", "", "Name to load the model under (default: file base name)")
	cmd.Flags().StringVar(&text, "text", "", "Text to embed")
	cmd.Flags().BoolVar(&full, "full", false, "Print every component instead of a summary")
	_ = cmd.MarkFlagRequired("model-path")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}
