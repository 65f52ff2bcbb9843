package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/padraicbc/derby/derby"
	"github.com/padraicbc/derby/models"
)

// Store implements derby.Store on PostgreSQL.
type Store struct {
	db *bun.DB
}

// NewStore wraps an open bun database.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Tx runs fn in a read-committed transaction, committing only when fn succeeds.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, tx derby.Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

type txStore struct {
	tx bun.Tx
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", derby.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

func affected(res sql.Result, err error) (bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func balanceColumn(cur models.Currency) (bun.Ident, error) {
	switch cur {
	case models.WRON:
		return bun.Ident("wron_balance"), nil
	case models.PHORSE:
		return bun.Ident("phorse_balance"), nil
	}
	return "", fmt.Errorf("unknown currency %q", cur)
}

// races

func (t *txStore) CreateRace(ctx context.Context, r *models.Race) error {
	_, err := t.tx.NewInsert().Model(r).Returning("*").Exec(ctx)
	return err
}

func (t *txStore) GetRace(ctx context.Context, raceID int64, forUpdate bool) (*models.Race, error) {
	race := &models.Race{}
	q := t.tx.NewSelect().Model(race).Where("rc.race_id = ?", raceID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, notFound(err, "race %d", raceID)
	}
	return race, nil
}

func (t *txStore) ListRaces(ctx context.Context, status models.RaceStatus) ([]models.Race, error) {
	races := []models.Race{}
	q := t.tx.NewSelect().Model(&races).OrderExpr("rc.starts_at ASC, rc.race_id ASC")
	if status != "" {
		q = q.Where("rc.status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return races, nil
}

func (t *txStore) ListDueRaces(ctx context.Context, at time.Time) ([]models.Race, error) {
	races := []models.Race{}
	err := t.tx.NewSelect().Model(&races).
		Where("rc.status = ?", models.RaceOpen).
		Where("rc.starts_at <= ?", at).
		OrderExpr("rc.starts_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return races, nil
}

func (t *txStore) AddToPools(ctx context.Context, raceID int64, total, pool decimal.Decimal) (bool, error) {
	return affected(t.tx.NewUpdate().
		TableExpr("races").
		Set("total_bet_wron = total_bet_wron + ?::numeric", total.String()).
		Set("betting_pool_wron = betting_pool_wron + ?::numeric", pool.String()).
		Where("race_id = ?", raceID).
		Where("status = ?", models.RaceOpen).
		Exec(ctx))
}

func (t *txStore) TransitionRace(ctx context.Context, raceID int64, to models.RaceStatus, zeroPools bool) (bool, error) {
	q := t.tx.NewUpdate().
		TableExpr("races").
		Set("status = ?", to).
		Where("race_id = ?", raceID).
		Where("status = ?", models.RaceOpen)
	if zeroPools {
		q = q.Set("total_bet_wron = 0").Set("betting_pool_wron = 0")
	}
	return affected(q.Exec(ctx))
}

// entries

func (t *txStore) Entries(ctx context.Context, raceID int64) ([]models.RaceEntry, error) {
	entries := []models.RaceEntry{}
	err := t.tx.NewSelect().Model(&entries).
		Relation("Horse").
		Where("re.race_id = ?", raceID).
		OrderExpr("re.entry_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (t *txStore) ActiveEntries(ctx context.Context, raceID int64) ([]models.RaceEntry, error) {
	entries := []models.RaceEntry{}
	err := t.tx.NewSelect().Model(&entries).
		Where("re.race_id = ?", raceID).
		Where("re.is_active").
		OrderExpr("re.entry_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (t *txStore) HasActiveEntry(ctx context.Context, raceID, userID int64) (bool, error) {
	return t.tx.NewSelect().Model((*models.RaceEntry)(nil)).
		Where("re.race_id = ?", raceID).
		Where("re.user_id = ?", userID).
		Where("re.is_active").
		Exists(ctx)
}

func (t *txStore) IsHorseEntered(ctx context.Context, raceID, horseID int64) (bool, error) {
	return t.tx.NewSelect().Model((*models.RaceEntry)(nil)).
		Where("re.race_id = ?", raceID).
		Where("re.horse_id = ?", horseID).
		Where("re.is_active").
		Exists(ctx)
}

func (t *txStore) InsertEntry(ctx context.Context, e *models.RaceEntry) (bool, error) {
	return affected(t.tx.NewInsert().Model(e).
		On("CONFLICT DO NOTHING").
		Returning("*").
		Exec(ctx))
}

func (t *txStore) DeactivateEntry(ctx context.Context, raceID, userID, horseID int64) (bool, error) {
	return affected(t.tx.NewUpdate().
		TableExpr("race_entries").
		Set("is_active = FALSE").
		Set("updated_at = ?", time.Now()).
		Where("race_id = ?", raceID).
		Where("user_id = ?", userID).
		Where("horse_id = ?", horseID).
		Where("is_active").
		Exec(ctx))
}

func (t *txStore) DeactivateEntries(ctx context.Context, raceID int64) error {
	_, err := t.tx.NewUpdate().
		TableExpr("race_entries").
		Set("is_active = FALSE").
		Set("updated_at = ?", time.Now()).
		Where("race_id = ?", raceID).
		Where("is_active").
		Exec(ctx)
	return err
}

// bets

func (t *txStore) Bets(ctx context.Context, raceID int64) ([]models.Bet, error) {
	bets := []models.Bet{}
	err := t.tx.NewSelect().Model(&bets).
		Where("b.race_id = ?", raceID).
		OrderExpr("b.bet_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bets, nil
}

func (t *txStore) InsertBet(ctx context.Context, b *models.Bet) (bool, error) {
	return affected(t.tx.NewInsert().Model(b).
		On("CONFLICT (race_id, user_id, horse_id) DO NOTHING").
		Returning("*").
		Exec(ctx))
}

// history

func (t *txStore) InsertHistory(ctx context.Context, rows []models.RaceHistory) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := t.tx.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func (t *txStore) RaceHistory(ctx context.Context, raceID int64) ([]models.RaceHistory, error) {
	rows := []models.RaceHistory{}
	err := t.tx.NewSelect().Model(&rows).
		Where("rh.race_id = ?", raceID).
		OrderExpr("rh.position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *txStore) HorseHistory(ctx context.Context, horseID int64) ([]models.RaceHistory, error) {
	rows := []models.RaceHistory{}
	err := t.tx.NewSelect().Model(&rows).
		Where("rh.horse_id = ?", horseID).
		OrderExpr("rh.created_at DESC, rh.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ledger

func (t *txStore) Adjust(ctx context.Context, userID int64, cur models.Currency, delta, guardMin decimal.Decimal) (bool, error) {
	col, err := balanceColumn(cur)
	if err != nil {
		return false, err
	}
	return affected(t.tx.NewUpdate().
		TableExpr("users").
		Set("? = ? + ?::numeric", col, col, delta.String()).
		Where("id = ?", userID).
		Where("? + ?::numeric >= ?::numeric", col, delta.String(), guardMin.String()).
		Exec(ctx))
}

func (t *txStore) RecordLedger(ctx context.Context, events []models.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	_, err := t.tx.NewInsert().Model(&events).Exec(ctx)
	return err
}

// horses

func (t *txStore) GetHorse(ctx context.Context, horseID int64) (*models.Horse, error) {
	horse := &models.Horse{}
	if err := t.tx.NewSelect().Model(horse).Where("h.horse_id = ?", horseID).Scan(ctx); err != nil {
		return nil, notFound(err, "horse %d", horseID)
	}
	return horse, nil
}

func (t *txStore) IsOwner(ctx context.Context, userID, horseID int64) (bool, error) {
	return t.tx.NewSelect().Model((*models.Horse)(nil)).
		Where("h.horse_id = ?", horseID).
		Where("h.owner_id = ?", userID).
		Exists(ctx)
}

func (t *txStore) RaceStats(ctx context.Context, horseIDs []int64) (map[int64]derby.HorseStats, error) {
	out := make(map[int64]derby.HorseStats, len(horseIDs))
	if len(horseIDs) == 0 {
		return out, nil
	}

	var horses []models.Horse
	if err := t.tx.NewSelect().Model(&horses).Where("h.horse_id IN (?)", bun.In(horseIDs)).Scan(ctx); err != nil {
		return nil, err
	}
	var items []models.Item
	if err := t.tx.NewSelect().Model(&items).Where("it.equipped_horse_id IN (?)", bun.In(horseIDs)).Scan(ctx); err != nil {
		return nil, err
	}

	for _, h := range horses {
		out[h.HorseID] = derby.HorseStats{Power: h.Power, Sprint: h.Sprint, Speed: h.Speed, Mmr: h.Mmr}
	}
	for _, it := range items {
		st, ok := out[*it.EquippedHorseID]
		if !ok {
			continue
		}
		st.Modifiers = append(st.Modifiers, derby.StatModifier{Power: it.PowerMod, Sprint: it.SprintMod, Speed: it.SpeedMod})
		out[*it.EquippedHorseID] = st
	}
	return out, nil
}

func (t *txStore) SetRating(ctx context.Context, horseID int64, mmr int) error {
	ok, err := affected(t.tx.NewUpdate().
		TableExpr("horses").
		Set("mmr = ?", mmr).
		Where("horse_id = ?", horseID).
		Exec(ctx))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: horse %d", derby.ErrNotFound, horseID)
	}
	return nil
}
