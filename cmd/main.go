package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/flystream/auth"
	"github.com/ebogdum/flystream/config"
	"github.com/ebogdum/flystream/core/log"
	"github.com/ebogdum/flystream/server"
)

var rootCmd = &cobra.Command{
	Use:   "flystream",
	Short: "flystream - stream access to filesystem operators",
	Long: `flystream exposes local, S3 and SQL backed filesystems under uri schemes
("docs://reports/q1.csv") with POSIX-like stream semantics, over HTTP or the command line.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the flystream HTTP server",
	RunE:  runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the flystream configuration and display the loaded settings",
	RunE:  validateConfig,
}

var configFilePath string

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")

	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd, configCmd)
	addFileCommands(rootCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadRuntime loads the configuration and builds the logger
func loadRuntime() (config.AppConfig, *zap.Logger, error) {
	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return config.AppConfig{}, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := log.New(cfg.Log)
	if err != nil {
		return config.AppConfig{}, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// runServer starts the flystream server and blocks until the command context ends
func runServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
		}
	}()

	logger.Info("Starting flystream server",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.Int("schemes", len(cfg.Schemes)))

	b, err := newBridge(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize schemes: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("Failed to release schemes", zap.Error(err))
		}
	}()

	authenticator := auth.NewAPIKeyAuthenticator(cfg.Auth.APIKeys, cfg.Auth.ReadOnlyAPIKeys)
	authorizer := auth.NewPermissionAuthorizer(b.Wrapper)

	separateMetrics := cfg.Metrics.ListenAddr != ""
	router := server.NewRouter(b.Wrapper, authenticator, authorizer, &cfg.Server, !separateMetrics, logger)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		var err error
		if cfg.Server.CertFile != "" {
			logger.Info("Starting HTTPS server", zap.String("addr", cfg.Server.ListenAddr))
			err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			logger.Info("Starting HTTP server", zap.String("addr", cfg.Server.ListenAddr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	var metricsSrv *http.Server
	if separateMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Starting metrics server", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server failed: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case runErr = <-errCh:
		logger.Error("Server stopped unexpectedly", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		runErr = errors.Join(runErr, err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server forced to shutdown", zap.Error(err))
		}
	}

	if runErr == nil {
		logger.Info("Server exited gracefully")
	}
	return runErr
}

// validateConfig validates the flystream configuration and displays settings
func validateConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validating configuration...")

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		fmt.Fprintf(out, "Configuration validation failed: %v\n", err)
		return err
	}

	fmt.Fprintln(out, "Configuration is valid")
	fmt.Fprintf(out, "Listen Address: %s\n", cfg.Server.ListenAddr)
	if cfg.Metrics.ListenAddr != "" {
		fmt.Fprintf(out, "Metrics Address: %s\n", cfg.Metrics.ListenAddr)
	}
	fmt.Fprintf(out, "API Keys: %d full, %d read-only\n", len(cfg.Auth.APIKeys), len(cfg.Auth.ReadOnlyAPIKeys))

	names := make([]string, 0, len(cfg.Schemes))
	for name := range cfg.Schemes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sc := cfg.Schemes[name]
		fmt.Fprintf(out, "Scheme %s://\n", name)
		fmt.Fprintf(out, "  Backend: %s\n", sc.Backend)
		switch sc.Backend {
		case "localfs":
			fmt.Fprintf(out, "  Root: %s\n", sc.LocalFSRootPath)
		case "s3":
			fmt.Fprintf(out, "  Bucket: %s (%s)\n", sc.S3BucketName, sc.S3Region)
		case "sqlfs":
			fmt.Fprintf(out, "  Database: %s %s\n", sc.SQLDriver, maskDSN(sc.SQLDSN))
		}
		fmt.Fprintf(out, "  Lock Store: %s (ttl %s)\n", maskDSN(sc.LockStore), sc.LockTTL)
	}

	return nil
}

// maskDSN masks sensitive parts of a connection string for display
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if len(dsn) > 20 {
		return dsn[:10] + "***" + dsn[len(dsn)-7:]
	}
	return dsn
}
