package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/engine"
	"inferd/internal/httpapi"
	"inferd/internal/manager"
)

// logger is the process logger, installed by setupLogging.
var logger = zerolog.Nop()

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "inferd",
		Short:        "Local model lifecycle runtime for llama.cpp-style engines",
		Long:         "inferd loads GGUF models into an in-process inference engine, pools execution contexts across requests, and serves read-only diagnostics over HTTP.",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: off, error, warn, info, debug")

	root.AddCommand(
		newServeCmd(),
		newGenerateCmd(),
		newChatCmd(),
		newEmbedCmd(),
		newModelsCmd(),
		newVersionCmd(),
	)
	return root
}

func setupLogging(level string) {
	lvl := zerolog.InfoLevel
	switch level {
	case "off":
		lvl = zerolog.Disabled
	default:
		if parsed, err := zerolog.ParseLevel(level); err == nil && level != "" {
			lvl = parsed
		}
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()
	manager.SetLogger(logger)
	httpapi.SetLogger(logger)
}

func buildEngine(name string) (engine.Engine, error) {
	switch name {
	case "", "llama":
		return engine.NewLlama(), nil
	case "fake":
		return engine.NewFake(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (want llama or fake)", name)
	}
}
