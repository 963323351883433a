package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/ptasim-core/internal/simd"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/config"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/logger"
)

type serveOptions struct {
	configPath string
	grpcAddr   string
	httpAddr   string
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation daemon (HTTP and gRPC)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultConfig()
			if opts.configPath != "" {
				loaded, err := config.LoadConfig(opts.configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.GRPCAddr = opts.grpcAddr
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = opts.httpAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat, _ = cmd.Flags().GetString("log-format")
			}
			logger.SetDefault(logger.NewWithFormat(cfg.LogFormat, cfg.LogLevel, cmd.ErrOrStderr()))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "daemon config YAML file")
	cmd.Flags().StringVar(&opts.grpcAddr, "grpc-addr", ":50051", "gRPC listen address")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", ":8080", "HTTP listen address")

	return cmd
}

// Serve runs the HTTP and gRPC servers until ctx is done, then shuts both down
// and cancels active runs.
func Serve(ctx context.Context, cfg *config.Config) error {
	notifier, err := simd.NewNotifierFromConfig(cfg.Callback)
	if err != nil {
		return err
	}

	store := simd.NewRunStore(cfg.MaxRuns)
	executor := simd.NewRunExecutor(store, notifier)
	executor.SetWorkers(cfg.Workers)

	httpAPI := simd.NewHTTPServer(store, executor)
	httpAPI.SetRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)

	grpcServer := grpc.NewServer()
	simd.RegisterSimulationServiceServer(grpcServer, simd.NewSimulationGRPCServer(store, executor))

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC on %s: %w", cfg.GRPCAddr, err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		grpcLis.Close()
		return fmt.Errorf("failed to listen for HTTP on %s: %w", cfg.HTTPAddr, err)
	}

	httpSrv := &http.Server{
		Handler:           httpAPI.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// /v1/simulate answers only after the whole simulation
		WriteTimeout:   5 * time.Minute,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", "addr", grpcLis.Addr().String())
		if err := grpcServer.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		logger.Info("HTTP server listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case serveErr = <-errCh:
		logger.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	if err := executor.Shutdown(shutdownCtx); err != nil {
		logger.Warn("runs still active at shutdown", "error", err)
	}

	return serveErr
}
