// Package main applies the embedded PostgreSQL migrations for the batch
// report store.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cory-johannsen/duelsim/internal/config"
	"github.com/cory-johannsen/duelsim/migrations"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	direction := flag.String("direction", "up", "up or down")
	steps := flag.Int("steps", 0, "number of migrations to apply; 0 applies all")
	flag.Parse()

	if err := run(*configPath, *direction, *steps); err != nil {
		log.Fatal(err)
	}
}

func run(configPath, direction string, steps int) error {
	start := time.Now()

	v, err := config.New(configPath)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	res, err := migrations.Apply(cfg.Database.DSN(), direction, steps)
	if err != nil {
		return err
	}
	state := "already current"
	if res.Changed {
		state = "migrated " + direction
	}
	fmt.Fprintf(os.Stdout, "%s: version=%d dirty=%v [%s]\n", state, res.Version, res.Dirty, time.Since(start))
	return nil
}
