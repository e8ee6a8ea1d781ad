package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NasaVasa/stockpulse/internal/app"
	"github.com/NasaVasa/stockpulse/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 2
	}

	engine, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize stockpulse:", err)
		return 1
	}
	defer engine.Shutdown()

	if err := engine.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "stockpulse stopped with error:", err)
		return 1
	}
	return 0
}
