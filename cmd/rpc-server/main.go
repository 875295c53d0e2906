// Command rpc-server hosts the demo procedures add2 and echo2.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sync-rpc/config"
	"sync-rpc/logging"
	"sync-rpc/middleware"
	"sync-rpc/registry"
	"sync-rpc/server"
)

const shutdownTimeout = 5 * time.Second

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		listen  string
	)

	cmd := &cobra.Command{
		Use:           "rpc-server",
		Short:         "Serve the add2 and echo2 procedures",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "TOML config file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address, overrides server.listen")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMaxBodySize(cfg.Server.MaxBodySize),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	}

	if len(cfg.Registry.Endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout, logger)
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, cfg.Server.Advertise, cfg.Registry.TTL))
	}

	s := server.NewServer(opts...)
	s.Use(middleware.Logging(logger))
	if cfg.Server.RateLimit > 0 {
		s.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	}
	if cfg.Server.HandlerTimeout > 0 {
		s.Use(middleware.Timeout(cfg.Server.HandlerTimeout))
	}
	if err := registerDemo(s); err != nil {
		return err
	}

	serveErr := s.ListenAndServe(ctx, cfg.Server.Listen)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc: shutdown", zap.Error(err))
	}
	return serveErr
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
