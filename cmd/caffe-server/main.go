// Package main starts the CAFFE observer platform server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/caffe-ja/observer-platform/internal/app/runtime"
	"github.com/caffe-ja/observer-platform/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to YAML configuration file")
	flag.Parse()

	// Local development convenience; a missing .env file is not an error.
	_ = godotenv.Load()

	if v := os.Getenv("CONFIG_PATH"); v != "" {
		*configPath = v
	}

	app, err := runtime.NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		_ = app.Shutdown(context.Background())
		os.Exit(1)
	}

	if err := app.Shutdown(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
}
