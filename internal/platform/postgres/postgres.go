package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/maia-experience/dpc-cicd/internal/platform/env"
)

// Config for the optional publish ledger database. An empty URL disables it.
type Config struct {
	URL         string
	PingTimeout time.Duration
}

func ConfigFromEnv() (Config, error) {
	pingTimeout, err := env.Duration("DPC_LEDGER_PING_TIMEOUT", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		URL:         env.NonEmpty("DPC_LEDGER_DATABASE_URL", ""),
		PingTimeout: pingTimeout,
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("DPC_LEDGER_DATABASE_URL is required")
	}
	if c.PingTimeout <= 0 {
		return errors.New("DPC_LEDGER_PING_TIMEOUT must be positive")
	}
	return nil
}

// Open connects through the pgx stdlib driver. A single connection is plenty
// for one insert per run.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}
