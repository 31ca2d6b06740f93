// Command payhooks serves the Paystack webhook endpoint and the checkout API.
//
// Configuration comes from payhooks.yaml, a .env file and PAYHOOKS_*
// environment variables; the bare names used by existing deployments
// (PAYSTACK_SECRET_KEY, DATAMART_API_KEY, PORT, ...) are accepted too.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	glog "github.com/goliatone/go-logger/glog"
	payhooks "github.com/goliatone/go-payhooks"
	"github.com/goliatone/go-payhooks/core"
	"github.com/goliatone/go-payhooks/httpapi"
	"github.com/goliatone/go-payhooks/providers/paystack"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "payhooks:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loggers := glog.NewLogger(
		glog.WithName("payhooks"),
		levelOption(os.Getenv("PAYHOOKS_LOG_LEVEL")),
	)
	logger := loggers.GetLogger("payhooks.main")

	loader := core.NewEnvConfigLoader()
	bootstrap, err := core.NewCfgxConfigProvider(loader).Load(ctx, core.DefaultConfig())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := []payhooks.RuntimeOption{
		payhooks.WithConfigLoader(loader),
		payhooks.WithRuntimeLoggerProvider(loggers),
	}
	db, err := openDatabase(ctx, bootstrap.Database)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		opts = append(opts, payhooks.WithDB(db.DB()))
		logger.Info("database ready", "driver", bootstrap.Database.Driver)
	}

	runtime, err := payhooks.New(payhooks.Config{}, opts...)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	cfg := runtime.Config()
	for action, reason := range runtime.SkippedActions() {
		logger.Warn("fulfillment action disabled", "action", string(action), "reason", reason)
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := httpapi.NewRouter(httpapi.Config{
		ProviderID:     paystack.ProviderID,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Logger:         runtime.Loggers().Named("http"),
	}, runtime, runtime.Facade())
	if err != nil {
		return err
	}
	server := httpapi.NewServer(cfg.Server.Address, router, cfg.ShutdownGrace())

	runtime.StartRetryWorker(ctx)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", server.Addr())
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			_ = runtime.Shutdown(context.Background())
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()
	return errors.Join(server.Shutdown(shutdownCtx), runtime.Shutdown(shutdownCtx))
}

func levelOption(value string) glog.Option {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "trace":
		return glog.WithLevel(glog.Trace)
	case "debug":
		return glog.WithLevel(glog.Debug)
	case "warn", "warning":
		return glog.WithLevel(glog.Warn)
	case "error":
		return glog.WithLevel(glog.Error)
	default:
		return glog.WithLevel(glog.Info)
	}
}
