package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"madrasah/internal/config"
	"madrasah/internal/dispatch"
	"madrasah/internal/feedback"
	"madrasah/internal/logging"
)

func main() {
	cfg := config.Load()
	log := logging.Must(cfg.Env)
	defer func() { _ = log.Sync() }()

	if cfg.PortalToken == "" {
		fmt.Fprintln(os.Stderr, "PORTAL_TOKEN is not set")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := &commandLine{
		client: dispatch.New(cfg.PortalURL, cfg.PortalToken),
		tray:   feedback.NewTray(cfg.ToastTTL, 5, log.Named("toast")),
		out:    os.Stdout,
		read:   os.ReadFile,
	}
	if err := cli.run(ctx, os.Args); err != nil {
		if !errors.Is(err, errHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
