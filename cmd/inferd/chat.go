package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"inferd/internal/manager"
	"inferd/pkg/types"
)

func newChatCmd() *cobra.Command {
	var (
		engineName string
		modelPath  string
		modelName  string
		system     string
		user       string
		maxTokens  int
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run a one-shot chat completion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mc := types.DefaultModelConfig()
			mc.Path = modelPath
			params := types.DefaultGenerationParams()
			if maxTokens > 0 {
				params.MaxTokens = maxTokens
			}
			var messages []types.ChatMessage
			if system != "" {
				messages = append(messages, types.ChatMessage{Role: "system", Content: system})
			}
			messages = append(messages, types.ChatMessage{Role: "user", Content: user})
			return withRuntime(cmd.Context(), engineName, modelName, mc, func(ctx context.Context, m *manager.Manager, model string) error {
				out, err := m.ChatCompletion(ctx, model, messages, params)
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
	cmd.Flags().StringVar(&system, "system", "", "System message")
	cmd.Flags().StringVar(&user, "user", "", "User message")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens to generate")
	_ = cmd.MarkFlagRequired("model-path")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
