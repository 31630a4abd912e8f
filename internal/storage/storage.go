// Package storage selects the activity journal backend.
package storage

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/steelflow/internal/core/ports"
	"github.com/tjfontaine/steelflow/internal/storage/memory"
	"github.com/tjfontaine/steelflow/internal/storage/sqldb"
)

// Config selects a journal backend.
type Config struct {
	Driver string // none, memory, sqlite, postgres
	DSN    string
}

// Open returns the configured journal, or nil when journaling is disabled.
func Open(cfg Config) (ports.ActivityStore, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nil, nil
	case "memory":
		return memory.New(), nil
	case "sqlite", "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("journal driver %s requires a dsn", driver)
		}
		store, err := sqldb.New(sqldb.Config{Driver: driver, DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported journal driver: %s", cfg.Driver)
	}
}
