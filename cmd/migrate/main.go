package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/beridzemate00/codereview/internal/infra/config"
	"github.com/beridzemate00/codereview/internal/infra/database"
)

const usage = "usage: migrate up|down|version"

func main() {
	_ = godotenv.Load()

	if len(os.Args) != 2 {
		log.Fatal(usage)
	}

	pg, err := config.LoadPostgres()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	m, err := database.NewMigrator(database.DSN(*pg))
	if err != nil {
		log.Fatalf("failed to init migrator: %v", err)
	}
	runErr := run(m, os.Args[1])
	if err := m.Close(); err != nil {
		log.Printf("close migrator: %v", err)
	}
	if runErr != nil {
		log.Printf("migrate %s: %v", os.Args[1], runErr)
		os.Exit(1)
	}
}

func run(m *database.Migrator, cmd string) error {
	switch cmd {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q: %s", cmd, usage)
	}
}
