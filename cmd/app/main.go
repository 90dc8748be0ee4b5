package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"fuel-ledger/internal/adapters/cli"
	"fuel-ledger/internal/app"
	"fuel-ledger/internal/bootstrap"
	"fuel-ledger/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	logger := config.NewLogger(cfg.LogLevel)
	logger.SetOutput(os.Stderr)
	log := logger.WithField("module", "cli")

	ctx := context.Background()
	deps, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("bootstrap")
	}
	defer deps.Close()

	svc := app.NewAppService(deps.Store, deps.Locker, log, cfg.ReportConcurrency)
	if err := cli.Run(ctx, svc, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		deps.Close()
		os.Exit(1)
	}
}
