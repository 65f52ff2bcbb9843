package derby

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/padraicbc/derby/models"
)

// Store runs fn inside one transaction. A non-nil error from fn rolls back
// every write made through tx.
type Store interface {
	Tx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view of everything the derby core reads and writes.
type Tx interface {
	Races
	Ledger
	Horses
}

// Races persists races, entries, bets and history.
//
// Methods returning (bool, error) are conditional writes: false means the
// guarding predicate no longer held and nothing was written.
type Races interface {
	CreateRace(ctx context.Context, r *models.Race) error
	// GetRace returns ErrNotFound when missing. With forUpdate the race row
	// stays locked until the transaction ends.
	GetRace(ctx context.Context, raceID int64, forUpdate bool) (*models.Race, error)
	ListRaces(ctx context.Context, status models.RaceStatus) ([]models.Race, error)
	// ListDueRaces returns OPEN races whose start is at or before t.
	ListDueRaces(ctx context.Context, t time.Time) ([]models.Race, error)
	AddToPools(ctx context.Context, raceID int64, total, pool decimal.Decimal) (bool, error)
	// TransitionRace moves an OPEN race to a terminal status. zeroPools resets
	// the wager aggregates.
	TransitionRace(ctx context.Context, raceID int64, to models.RaceStatus, zeroPools bool) (bool, error)

	// Entries returns all entries of a race, with their horse, in entry order.
	Entries(ctx context.Context, raceID int64) ([]models.RaceEntry, error)
	ActiveEntries(ctx context.Context, raceID int64) ([]models.RaceEntry, error)
	HasActiveEntry(ctx context.Context, raceID, userID int64) (bool, error)
	IsHorseEntered(ctx context.Context, raceID, horseID int64) (bool, error)
	// InsertEntry fails the guard when the user already has an active entry.
	InsertEntry(ctx context.Context, e *models.RaceEntry) (bool, error)
	DeactivateEntry(ctx context.Context, raceID, userID, horseID int64) (bool, error)
	DeactivateEntries(ctx context.Context, raceID int64) error

	Bets(ctx context.Context, raceID int64) ([]models.Bet, error)
	// InsertBet fails the guard when the user already bet on the horse.
	InsertBet(ctx context.Context, b *models.Bet) (bool, error)

	InsertHistory(ctx context.Context, rows []models.RaceHistory) error
	RaceHistory(ctx context.Context, raceID int64) ([]models.RaceHistory, error)
	HorseHistory(ctx context.Context, horseID int64) ([]models.RaceHistory, error)
}

// Ledger holds per-user balances.
type Ledger interface {
	// Adjust adds delta to the balance only if the result stays >= guardMin.
	Adjust(ctx context.Context, userID int64, cur models.Currency, delta, guardMin decimal.Decimal) (bool, error)
	RecordLedger(ctx context.Context, events []models.LedgerEvent) error
}

// Horses supplies horse data, equipment modifiers, ratings and ownership.
type Horses interface {
	GetHorse(ctx context.Context, horseID int64) (*models.Horse, error)
	IsOwner(ctx context.Context, userID, horseID int64) (bool, error)
	RaceStats(ctx context.Context, horseIDs []int64) (map[int64]HorseStats, error)
	SetRating(ctx context.Context, horseID int64, mmr int) error
}

// HorseStats are the inputs to scoring for one horse.
type HorseStats struct {
	Power     int
	Sprint    int
	Speed     int
	Mmr       int
	Modifiers []StatModifier
}

// StatModifier is the contribution of one equipped item.
type StatModifier struct {
	Power  int
	Sprint int
	Speed  int
}

// Authorizer decides who may administer races.
type Authorizer interface {
	IsRaceAdmin(ctx context.Context, wallet string) bool
}

// Locker provides mutual exclusion per key across concurrent callers.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Rand is the randomness source for race luck.
type Rand interface {
	Float64() float64
}
