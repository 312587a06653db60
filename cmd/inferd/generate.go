package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"inferd/internal/manager"
	"inferd/pkg/types"
)

func newGenerateCmd() *cobra.Command {
	var (
		engineName string
		modelPath  string
		modelName  string
		prompt     string
		maxTokens  int
		ctxSize    int
		seed       int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a completion for a prompt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mc := types.DefaultModelConfig()
			mc.Path = modelPath
			if ctxSize > 0 {
				mc.ContextSize = ctxSize
			}
			params := types.DefaultGenerationParams()
			if maxTokens > 0 {
				params.MaxTokens = maxTokens
			}
			if seed != 0 {
				params.Seed = seed
			}
			return withRuntime(cmd.Context(), engineName, modelName, mc, func(ctx context.Context, m *manager.Manager, model string) error {
				out, err := m.Generate(ctx, model, prompt, params)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&engineName, "engine", "llama", "Inference engine: llama or fake")
	cmd.Flags().StringVar(&modelPath, "model-path", "", "Path to the .gguf model file")
	cmd.Flags().StringVar(&modelName, "model", "", "Name to load the model under (default: file base name)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Prompt text")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens to generate")
	cmd.Flags().IntVar(&ctxSize, "context-size", 0, "Context window in tokens")
	cmd.Flags().IntVar(&seed, "seed", 0, "Sampling seed (0 = default)")
	_ = cmd.MarkFlagRequired("model-path")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}
