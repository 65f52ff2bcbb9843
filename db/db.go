package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/padraicbc/derby/config"
	"github.com/padraicbc/derby/models"
)

// Setup opens a PostgreSQL connection using the provided config.
func Setup(cfg *config.Config) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN())))
	db := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(context.Background()); err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	return db
}

// CreateTables creates all tables in dependency order.
func CreateTables(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.User)(nil),
		(*models.Horse)(nil),
		(*models.Item)(nil),
		(*models.Race)(nil),
		(*models.RaceEntry)(nil),
		(*models.Bet)(nil),
		(*models.RaceHistory)(nil),
		(*models.LedgerEvent)(nil),
	}

	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", model, err)
		}
	}

	return applyStatements(ctx, db, requiredStatements, optionalStatements)
}

// requiredStatements back invariants the store relies on; failing any aborts setup.
var requiredStatements = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS race_entries_one_active ON race_entries (race_id, user_id) WHERE is_active`,
	`CREATE UNIQUE INDEX IF NOT EXISTS race_entries_one_active_horse ON race_entries (race_id, horse_id) WHERE is_active`,
}

var optionalStatements = []string{
	`CREATE INDEX IF NOT EXISTS race_entries_race ON race_entries (race_id, is_active)`,
	`CREATE INDEX IF NOT EXISTS race_history_horse ON race_history (horse_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS ledger_events_user ON ledger_events (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS items_equipped ON items (equipped_horse_id) WHERE equipped_horse_id IS NOT NULL`,
	`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'users_balances_non_negative') THEN ALTER TABLE users ADD CONSTRAINT users_balances_non_negative CHECK (wron_balance >= 0 AND phorse_balance >= 0); END IF; END $$`,
	`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'races_window') THEN ALTER TABLE races ADD CONSTRAINT races_window CHECK (registration_opens_at < starts_at); END IF; END $$`,
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func applyStatements(ctx context.Context, db execer, required, optional []string) error {
	for _, stmt := range required {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %q: %w", stmt, err)
		}
	}
	for _, stmt := range optional {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Printf("constraint: %v", err)
		}
	}
	return nil
}
