package main

import (
	"fmt"
	"log"
	"os"
	_ "time/tzdata" // TIMEZONE must resolve in minimal images

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/app"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (default $"+app.ConfigFileEnv+")")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	showVersion := pflag.BoolP("version", "v", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(app.BuildVersion)
		os.Exit(0)
	}

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if *migrateOnly {
		if err := app.Migrate(cfg); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		return
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
