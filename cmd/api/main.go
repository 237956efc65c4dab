package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/beridzemate00/codereview/internal/infra/app"
	"github.com/beridzemate00/codereview/internal/infra/config"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before configuration, if present")
	flag.Parse()

	if err := run(*envFile); err != nil {
		log.Fatalf("codereview api: %v", err)
	}
}

// run serves the auth API until SIGINT or SIGTERM, then drains in-flight
// requests and queued notifications.
func run(envFile string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	return application.Run(ctx)
}
