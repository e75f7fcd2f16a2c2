package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/httpapi"
	"github.com/MrEthical07/authflow/mailer"
	otelexport "github.com/MrEthical07/authflow/metrics/export/otel"
	promexport "github.com/MrEthical07/authflow/metrics/export/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if addr != "" {
				a.cfg.HTTPAddr = addr
			}
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides HTTP_ADDR")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	engineCfg, err := a.cfg.engine()
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.DB().Close()

	builder := authflow.New().
		WithConfig(engineCfg).
		WithStore(store).
		WithLogger(a.logger.Named("authflow"))

	if a.cfg.SendEmail {
		sender, err := mailer.NewSESSender(a.cfg.ses())
		if err != nil {
			return fmt.Errorf("configure ses: %w", err)
		}
		builder = builder.WithMailSender(sender)
	}

	var rdb *redis.Client
	if a.cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		builder = builder.WithRedis(rdb)
	} else {
		a.logger.Warn("REDIS_ADDR not set, failed-attempt limiting is disabled")
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	opts := httpapi.Options{
		Logger:         a.logger.Named("http"),
		AllowedOrigins: a.cfg.AllowedOrigins,
		Health: func(ctx context.Context) error {
			if err := store.Ping(ctx); err != nil {
				return err
			}
			if rdb != nil {
				return rdb.Ping(ctx).Err()
			}
			return nil
		},
	}
	if engineCfg.Metrics.Enabled {
		opts.Metrics = promexport.Handler(engine)
	}
	if a.cfg.OTelMetrics {
		// Observed through the global MeterProvider, which the host process configures.
		exp, err := otelexport.NewExporter(otel.Meter("github.com/MrEthical07/authflow"), engine)
		if err != nil {
			return fmt.Errorf("register otel metrics: %w", err)
		}
		defer exp.Close()
	}

	addr := a.cfg.HTTPAddr
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.New(engine, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
