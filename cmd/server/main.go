package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	webAdapter "fuel-ledger/internal/adapters/web"
	"fuel-ledger/internal/app"
	"fuel-ledger/internal/bootstrap"
	"fuel-ledger/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := config.NewLogger(cfg.LogLevel).WithField("module", "server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		config.LogError(log, "server", "main", "bootstrap", cfg.Store, err)
		os.Exit(1)
	}
	defer deps.Close()

	svc := app.NewAppService(deps.Store, deps.Locker, log, cfg.ReportConcurrency)
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           webAdapter.NewHandler(svc, cfg.AllowedOrigins, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown")
		}
	}()

	log.WithFields(logrus.Fields{"port": cfg.ServerPort, "store": cfg.Store}).Info("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		config.LogError(log, "server", "main", "listen", cfg.ServerPort, err)
		os.Exit(1)
	}
}
