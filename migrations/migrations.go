// Package migrations embeds the PostgreSQL schema for golang-migrate and
// applies it.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// FS holds the numbered up and down migrations.
//
//go:embed *.sql
var FS embed.FS

// Result describes the schema after Apply.
type Result struct {
	Version uint
	Dirty   bool
	// Changed is false when the database was already at the target.
	Changed bool
}

// Apply moves the database at dsn up or down by steps migrations; steps
// of 0 migrates all the way.
//
// Precondition: direction is "up" or "down"; steps >= 0.
// Postcondition: Returns the resulting schema version, or an error.
func Apply(dsn, direction string, steps int) (Result, error) {
	if direction != "up" && direction != "down" {
		return Result{}, fmt.Errorf("invalid direction %q: must be up or down", direction)
	}
	if steps < 0 {
		return Result{}, fmt.Errorf("steps must be >= 0, got %d", steps)
	}

	src, err := iofs.New(FS, ".")
	if err != nil {
		return Result{}, fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return Result{}, fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	switch {
	case steps > 0 && direction == "down":
		err = m.Steps(-steps)
	case steps > 0:
		err = m.Steps(steps)
	case direction == "down":
		err = m.Down()
	default:
		err = m.Up()
	}
	res := Result{Changed: true}
	if errors.Is(err, migrate.ErrNoChange) {
		res.Changed, err = false, nil
	}
	if err != nil {
		return res, fmt.Errorf("migrating %s: %w", direction, err)
	}

	res.Version, res.Dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		err = nil
	}
	return res, err
}
