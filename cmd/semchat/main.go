// Package main runs a semchat room: one chat session bound to the configured
// store and realtime backends and served over HTTP and WebSocket.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/config"
	"github.com/c360/semchat/errors"
	"github.com/c360/semchat/gateway"
	"github.com/c360/semchat/identity"
	"github.com/c360/semchat/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semchat"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

// run is main without process exits so it can be driven from tests. It
// returns when ctx is cancelled and shutdown has finished.
func run(ctx context.Context, args []string, out io.Writer) error {
	// a missing .env is normal
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cliCfg, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(out, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(out)
		return nil
	}

	logger := setupLogger(out, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid", "store", cfg.Store.Driver, "realtime", cfg.Realtime.Driver)
		return nil
	}

	logger.Info("Starting semchat",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return serve(ctx, cfg, logger)
}

func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Identity != "" {
		cfg.Identity = cliCfg.Identity
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := metric.NewMetricsRegistry()

	b, err := setupBackends(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}

	id := identity.Identity(cfg.Identity)
	if id == "" {
		id = identity.Generate()
	}

	notifier := gateway.NewNotifier()
	session, err := chat.NewSession(id, b.store, b.events,
		chat.WithLogger(logger),
		chat.WithMetrics(registry.Chat),
		chat.WithChangeHandler(notifier.ChangeHandler()),
		chat.WithDeleteErrorHandler(func(msgID string, err error) {
			logger.Warn("Remote delete failed, message stays removed locally", "id", msgID, "error", err)
		}),
	)
	if err != nil {
		b.close(context.WithoutCancel(ctx))
		return err
	}

	srv, err := gateway.NewServer(session,
		gateway.WithLogger(logger),
		gateway.WithNotifier(notifier),
		gateway.WithMetricsRegistry(registry),
		gateway.WithWriteRateLimit(cfg.HTTP.WriteRate, cfg.HTTP.WriteBurst),
	)
	if err != nil {
		_ = session.Close()
		b.close(context.WithoutCancel(ctx))
		return err
	}

	if err := session.Initialize(ctx); err != nil {
		if !errors.IsTransient(err) && !stderrors.Is(err, errors.ErrStreamError) {
			_ = session.Close()
			b.close(context.WithoutCancel(ctx))
			return fmt.Errorf("initialize session: %w", err)
		}
		// the room still opens; clients can refresh once the store is back
		logger.Warn("Session started degraded", "error", err)
	}

	if err := srv.Start(ctx, cfg.HTTP.Addr); err != nil {
		_ = session.Close()
		b.close(context.WithoutCancel(ctx))
		return err
	}
	logger.Info("semchat ready", "identity", id.String(), "addr", srv.Addr())

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return shutdown(shutdownCtx, srv, session, b)
}

// shutdown stops the gateway, then the session, then the backends.
func shutdown(ctx context.Context, srv *gateway.Server, session *chat.Session, b *backends) error {
	start := time.Now()
	var errs []error

	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := session.Close(); err != nil {
		errs = append(errs, err)
	}
	b.close(ctx)

	if err := stderrors.Join(errs...); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("semchat shutdown complete", "took", time.Since(start))
	return nil
}
