package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notifylistener/internal/app"
	"notifylistener/internal/config"
	logx "notifylistener/pkg/logx"
)

func main() {
	var cfgPath, envPath string
	flag.StringVar(&cfgPath, "config", "./config/config.json", "path to config json/yaml")
	flag.StringVar(&envPath, "env", ".env", "optional .env file with broker credentials")
	flag.Parse()

	// Console logger for failures before the configured logger exists.
	boot := logx.NewConsole("INFO").With(logx.String("comp", "main"))

	if err := config.LoadEnvFile(envPath); err != nil {
		boot.Error("fatal: load env file", logx.String("path", envPath), logx.Err(err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		boot.Error("fatal: startup", logx.String("config", cfgPath), logx.Err(err))
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		boot.Error("fatal: start", logx.Err(err))
		os.Exit(1)
	}

	// A fatal task error cancels the app; take the tray down with it.
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	// The tray owns the main goroutine until quit or shutdown.
	a.Tray().Run(ctx, cancel)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)

	if err := a.Err(); err != nil {
		boot.Error("fatal: stopped on error", logx.Err(err))
		os.Exit(1)
	}
}
