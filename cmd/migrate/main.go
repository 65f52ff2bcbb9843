// cmd/migrate/main.go
// Creates the derby tables and, when MYSQL_DSN is set, imports accounts,
// horses and equipment from the legacy MySQL stable database.
//
// Usage:
//
//	MYSQL_DSN="user:pass@tcp(host:3306)/stable?parseTime=true" \
//	DB_PASS="pgpass" \
//	go run ./cmd/migrate
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/padraicbc/derby/config"
	bundb "github.com/padraicbc/derby/db"
	"github.com/padraicbc/derby/models"
)

const batchSize = 500

func main() {
	ctx := context.Background()

	cfg := config.Load()

	// --- PostgreSQL ---
	pgDB := bundb.Setup(cfg)
	defer pgDB.Close()
	log.Println("connected to PostgreSQL")

	// Create tables (idempotent)
	if err := bundb.CreateTables(ctx, pgDB); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	log.Println("tables ready")

	if cfg.MySQLDSN == "" {
		log.Println("MYSQL_DSN not set, skipping legacy import")
		return
	}

	// --- MySQL ---
	myDB, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("open mysql: %v", err)
	}
	defer myDB.Close()
	myDB.SetMaxOpenConns(4)
	if err := myDB.PingContext(ctx); err != nil {
		log.Fatalf("ping mysql: %v", err)
	}
	log.Println("connected to MySQL")

	steps := []struct {
		name string
		fn   func() (int, error)
	}{
		{"users", func() (int, error) { return migrateUsers(ctx, myDB, pgDB) }},
		{"horses", func() (int, error) { return migrateHorses(ctx, myDB, pgDB) }},
		{"items", func() (int, error) { return migrateItems(ctx, myDB, pgDB) }},
	}

	for _, s := range steps {
		n, err := s.fn()
		if err != nil {
			log.Fatalf("migrate %s: %v", s.name, err)
		}
		log.Printf("%-15s  %d rows migrated", s.name, n)
	}

	resetSequences(ctx, pgDB)
	log.Println("migration complete")
}

// --- helpers ---

func nullInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

// bulkInsert inserts a batch, skipping rows that already exist (idempotent re-runs).
func bulkInsert[T any](ctx context.Context, pgDB *bun.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := pgDB.NewInsert().Model(&rows).On("CONFLICT DO NOTHING").Exec(ctx)
	return err
}

// copyRows streams query results from MySQL into PostgreSQL in batches.
func copyRows[T any](ctx context.Context, myDB *sql.DB, pgDB *bun.DB, query string, scan func(*sql.Rows) (T, error)) (int, error) {
	rows, err := myDB.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var batch []T
	total := 0
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return total, err
		}
		batch = append(batch, r)
		if len(batch) >= batchSize {
			if err := bulkInsert(ctx, pgDB, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := bulkInsert(ctx, pgDB, batch); err != nil {
		return total, err
	}
	return total + len(batch), rows.Err()
}

// --- per-table migrations ---

func migrateUsers(ctx context.Context, myDB *sql.DB, pgDB *bun.DB) (int, error) {
	return copyRows(ctx, myDB, pgDB,
		"SELECT id, username, password, wallet, wronBalance, phorseBalance FROM users",
		func(rows *sql.Rows) (models.User, error) {
			var (
				u            models.User
				wron, phorse string
			)
			if err := rows.Scan(&u.ID, &u.Username, &u.Password, &u.Wallet, &wron, &phorse); err != nil {
				return u, err
			}
			var err error
			if u.WronBalance, err = decimal.NewFromString(wron); err != nil {
				return u, fmt.Errorf("user %d wron balance: %w", u.ID, err)
			}
			if u.PhorseBalance, err = decimal.NewFromString(phorse); err != nil {
				return u, fmt.Errorf("user %d phorse balance: %w", u.ID, err)
			}
			return u, nil
		})
}

func migrateHorses(ctx context.Context, myDB *sql.DB, pgDB *bun.DB) (int, error) {
	return copyRows(ctx, myDB, pgDB,
		"SELECT horseID, ownerID, name, rarity, power, sprint, speed, mmr FROM horses",
		func(rows *sql.Rows) (models.Horse, error) {
			var h models.Horse
			err := rows.Scan(&h.HorseID, &h.OwnerID, &h.Name, &h.Rarity, &h.Power, &h.Sprint, &h.Speed, &h.Mmr)
			return h, err
		})
}

func migrateItems(ctx context.Context, myDB *sql.DB, pgDB *bun.DB) (int, error) {
	return copyRows(ctx, myDB, pgDB,
		"SELECT itemID, ownerID, name, equippedHorseID, powerMod, sprintMod, speedMod FROM items",
		func(rows *sql.Rows) (models.Item, error) {
			var (
				it       models.Item
				equipped sql.NullInt64
			)
			if err := rows.Scan(&it.ItemID, &it.OwnerID, &it.Name, &equipped, &it.PowerMod, &it.SprintMod, &it.SpeedMod); err != nil {
				return it, err
			}
			it.EquippedHorseID = nullInt64(equipped)
			return it, nil
		})
}

func resetSequences(ctx context.Context, pgDB *bun.DB) {
	seqs := []struct{ seq, table, col string }{
		{"users_id_seq", "users", "id"},
		{"horses_horse_id_seq", "horses", "horse_id"},
		{"items_item_id_seq", "items", "item_id"},
	}
	for _, s := range seqs {
		q := fmt.Sprintf(
			"SELECT setval('%s', COALESCE((SELECT MAX(%s) FROM %s), 1))",
			s.seq, s.col, s.table,
		)
		if _, err := pgDB.ExecContext(ctx, q); err != nil {
			log.Printf("reset seq %s: %v", s.seq, err)
		}
	}
	log.Println("sequences reset")
}
