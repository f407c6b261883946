package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/app"
	"github.com/Freeeeeet/clinic_scheduler/internal/controller/httpapi"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the slot jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

func runServer(ctx context.Context) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger := rt.logger
	logger.Info("Starting clinic scheduler",
		zap.String("environment", rt.cfg.Environment),
		zap.String("addr", rt.cfg.HTTPAddr),
	)

	if rt.cfg.AutoMigrate {
		migrator, err := rt.migrator()
		if err != nil {
			return err
		}
		err = migrator.Run(ctx)
		_ = migrator.Close()
		if err != nil {
			return err
		}
	}

	svc, err := rt.services()
	if err != nil {
		return err
	}

	loc, _ := rt.cfg.Location()
	scheduler, err := app.NewScheduler(svc.schedule, app.SchedulerConfig{
		GenerateSpec: rt.cfg.GenerateCron,
		PurgeSpec:    rt.cfg.PurgeCron,
		JobTimeout:   rt.cfg.JobTimeout,
		Location:     loc,
	}, logger)
	if err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	handler := httpapi.NewHandler(svc.availability, svc.booking, svc.schedule, loc, logger)
	e := httpapi.NewServer(httpapi.ServerConfig{
		JWT:         httpapi.JWTConfig{Secret: []byte(rt.cfg.JWTSecret), Issuer: rt.cfg.JWTIssuer},
		CORSOrigins: rt.cfg.AllowedOrigins(),
	}, handler, rt.pool, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", rt.cfg.HTTPAddr))
		if err := e.Start(rt.cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("Server stopped")
	return nil
}
