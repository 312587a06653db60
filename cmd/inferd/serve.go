package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"inferd/internal/config"
	"inferd/internal/httpapi"
	"inferd/internal/manager"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

func newServeCmd() *cobra.Command {
	var (
		cfgPath string
		addr    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the runtime with its HTTP diagnostics endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgPath, addr)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "Path to a .yaml/.json/.toml config file")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	return cmd
}

func runServe(ctx context.Context, cfgPath, addrOverride string) error {
	var cfg config.Config
	if cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if cfg.LogLevel != "" {
		setupLogging(cfg.LogLevel)
	}
	addr := addrOverride
	if addr == "" {
		addr = cfg.Addr
	}
	if addr == "" {
		addr = os.Getenv("INFERD_ADDR")
	}
	if addr == "" {
		addr = ":8080"
	}

	eng, err := buildEngine(cfg.Engine)
	if err != nil {
		return err
	}
	mgr := manager.New(eng, manager.Config{
		MemoryLimitBytes:    uint64(cfg.MemoryLimitMB) << 20,
		MaxContextsPerModel: cfg.MaxContextsPerModel,
		ContextTTL:          time.Duration(cfg.ContextTTLSeconds) * time.Second,
		JanitorInterval:     time.Duration(cfg.JanitorIntervalSeconds) * time.Second,
		DrainTimeout:        time.Duration(cfg.DrainTimeoutSeconds) * time.Second,
		StreamWorkers:       cfg.StreamWorkers,
		BatchWorkers:        cfg.BatchWorkers,
		BatchQueueDepth:     cfg.BatchQueueDepth,
	})
	defer mgr.Cleanup()

	if err := preload(ctx, mgr, cfg); err != nil {
		return err
	}

	if cfg.ModelsDir != "" {
		dir := cfg.ModelsDir
		httpapi.SetModelFileLister(func() []types.ModelFile {
			files, err := registry.LoadDir(dir)
			if err != nil {
				logger.Warn().Err(err).Str("dir", dir).Msg("model dir scan failed")
				return nil
			}
			return files
		})
	}
	if cfg.CORS.Enabled {
		httpapi.SetCORSOptions(true, cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders)
	}

	baseCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{Addr: addr, Handler: httpapi.NewMux(mgr)}
	go func() {
		logger.Info().Str("addr", addr).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		logger.Info().Msg("shutdown signal received")
	case <-ctx.Done():
	}
	// Flip the base context first so in-flight handlers see the shutdown.
	cancel()

	shutdownCtx, cancelTO := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTO()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// preload loads each configured model, resolving path-less entries against
// the models directory by filename.
func preload(ctx context.Context, mgr *manager.Manager, cfg config.Config) error {
	var available []types.ModelFile
	for _, pm := range cfg.Preload {
		mc := pm.ModelConfig.WithDefaults()
		if mc.Path == "" {
			if cfg.ModelsDir == "" {
				return fmt.Errorf("preload %s: no path and no models_dir to resolve against", pm.Name)
			}
			if available == nil {
				var err error
				available, err = registry.LoadDir(cfg.ModelsDir)
				if err != nil {
					return fmt.Errorf("scan models_dir: %w", err)
				}
			}
			for _, f := range available {
				if f.Name == pm.Name {
					mc.Path = f.Path
					break
				}
			}
			if mc.Path == "" {
				return fmt.Errorf("preload %s: not found in %s", pm.Name, cfg.ModelsDir)
			}
		}
		if err := mgr.LoadModel(ctx, pm.Name, mc); err != nil {
			return fmt.Errorf("preload %s: %w", pm.Name, err)
		}
	}
	return nil
}
