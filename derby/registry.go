package derby

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/padraicbc/derby/models"
)

// Actor identifies the caller of an operation.
type Actor struct {
	UserID int64
	Wallet string
}

// RaceSpec is the admin input for a new race.
type RaceSpec struct {
	Name                string
	Description         *string
	RegistrationOpensAt time.Time
	StartsAt            time.Time
	MaxMmr              *int
	MaxParticipants     *int
	AllowedRarities     []string
	WronEntryFee        decimal.Decimal
	PhorseEntryFee      decimal.Decimal
	WronPayoutPercent   decimal.Decimal
	PctFirst            decimal.Decimal
	PctSecond           decimal.Decimal
	PctThird            decimal.Decimal
}

// Validate checks the race definition.
func (s RaceSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fail(ErrValidation, "name is required")
	}
	if !s.RegistrationOpensAt.Before(s.StartsAt) {
		return fail(ErrValidation, "registration must open before the race starts")
	}
	rarities := 0
	for _, r := range s.AllowedRarities {
		if strings.TrimSpace(r) != "" {
			rarities++
		}
	}
	if rarities == 0 {
		return fail(ErrValidation, "at least one allowed rarity is required")
	}
	for name, v := range map[string]decimal.Decimal{
		"wronEntryFee":      s.WronEntryFee,
		"phorseEntryFee":    s.PhorseEntryFee,
		"wronPayoutPercent": s.WronPayoutPercent,
		"pctFirst":          s.PctFirst,
		"pctSecond":         s.PctSecond,
		"pctThird":          s.PctThird,
	} {
		if v.IsNegative() {
			return fail(ErrValidation, "%s must not be negative", name)
		}
	}
	for _, p := range []struct {
		name   string
		v      decimal.Decimal
		places int32
	}{
		{"wronEntryFee", s.WronEntryFee, payoutPlaces},
		{"phorseEntryFee", s.PhorseEntryFee, payoutPlaces},
		{"wronPayoutPercent", s.WronPayoutPercent, 2},
		{"pctFirst", s.PctFirst, 4},
		{"pctSecond", s.PctSecond, 4},
		{"pctThird", s.PctThird, 4},
	} {
		if !fitsPlaces(p.v, p.places) {
			return fail(ErrValidation, "%s allows at most %d decimal places", p.name, p.places)
		}
	}
	if s.WronPayoutPercent.GreaterThan(hundred) {
		return fail(ErrValidation, "wronPayoutPercent must be at most 100")
	}
	if s.PctFirst.Add(s.PctSecond).Add(s.PctThird).GreaterThan(decimal.NewFromInt(1)) {
		return fail(ErrValidation, "prize split must not exceed 1")
	}
	if s.MaxMmr != nil && *s.MaxMmr < 0 {
		return fail(ErrValidation, "maxMmr must not be negative")
	}
	if s.MaxParticipants != nil && *s.MaxParticipants < 1 {
		return fail(ErrValidation, "maxParticipants must be positive")
	}
	return nil
}

// CreateRace validates spec and stores a new OPEN race. Admin only.
func (s *Service) CreateRace(ctx context.Context, actor Actor, spec RaceSpec) (*models.Race, error) {
	if !s.auth.IsRaceAdmin(ctx, actor.Wallet) {
		return nil, fail(ErrPermissionDenied, "race admin required")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	rarities := make([]string, 0, len(spec.AllowedRarities))
	for _, r := range spec.AllowedRarities {
		if t := strings.TrimSpace(r); t != "" {
			rarities = append(rarities, t)
		}
	}
	race := &models.Race{
		Name:                strings.TrimSpace(spec.Name),
		Description:         spec.Description,
		RegistrationOpensAt: spec.RegistrationOpensAt,
		StartsAt:            spec.StartsAt,
		Status:              models.RaceOpen,
		MaxMmr:              spec.MaxMmr,
		MaxParticipants:     spec.MaxParticipants,
		AllowedRarities:     rarities,
		WronEntryFee:        spec.WronEntryFee,
		PhorseEntryFee:      spec.PhorseEntryFee,
		WronPayoutPercent:   spec.WronPayoutPercent,
		PctFirst:            spec.PctFirst,
		PctSecond:           spec.PctSecond,
		PctThird:            spec.PctThird,
		TotalBetWron:        decimal.Zero,
		BettingPoolWron:     decimal.Zero,
	}
	err := s.store.Tx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateRace(ctx, race)
	})
	if err != nil {
		return nil, err
	}
	return race, nil
}

// GetRace returns a race.
func (s *Service) GetRace(ctx context.Context, raceID int64) (*models.Race, error) {
	var race *models.Race
	err := s.store.Tx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		race, err = tx.GetRace(ctx, raceID, false)
		return err
	})
	return race, err
}

// RaceDetail is a race with its entries and, once completed, its results.
type RaceDetail struct {
	Race    *models.Race         `json:"race"`
	Entries []models.RaceEntry   `json:"entries"`
	History []models.RaceHistory `json:"history"`
}

// RaceDetail returns a race with every entry and history row.
func (s *Service) RaceDetail(ctx context.Context, raceID int64) (*RaceDetail, error) {
	d := &RaceDetail{}
	err := s.store.Tx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if d.Race, err = tx.GetRace(ctx, raceID, false); err != nil {
			return err
		}
		if d.Entries, err = tx.Entries(ctx, raceID); err != nil {
			return err
		}
		d.History, err = tx.RaceHistory(ctx, raceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListOpen returns races still accepting entries or awaiting finalize.
func (s *Service) ListOpen(ctx context.Context) ([]models.Race, error) {
	return s.list(ctx, models.RaceOpen)
}

// ListAll returns every race.
func (s *Service) ListAll(ctx context.Context) ([]models.Race, error) {
	return s.list(ctx, "")
}

// ListDue returns OPEN races whose start time has passed.
func (s *Service) ListDue(ctx context.Context) ([]models.Race, error) {
	var races []models.Race
	err := s.store.Tx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		races, err = tx.ListDueRaces(ctx, s.now())
		return err
	})
	return races, err
}

func (s *Service) list(ctx context.Context, status models.RaceStatus) ([]models.Race, error) {
	var races []models.Race
	err := s.store.Tx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		races, err = tx.ListRaces(ctx, status)
		return err
	})
	return races, err
}

// HorseHistory returns a horse's finishes, newest first.
func (s *Service) HorseHistory(ctx context.Context, horseID int64) ([]models.RaceHistory, error) {
	var rows []models.RaceHistory
	err := s.store.Tx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetHorse(ctx, horseID); err != nil {
			return err
		}
		var err error
		rows, err = tx.HorseHistory(ctx, horseID)
		return err
	})
	return rows, err
}

// openForRegistration reports why a race is not accepting entries or bets.
func openForRegistration(r *models.Race, now time.Time) error {
	if r.Status != models.RaceOpen {
		return fail(ErrInvalidState, "race %d is %s", r.RaceID, r.Status)
	}
	if now.Before(r.RegistrationOpensAt) {
		return fail(ErrInvalidState, "registration for race %d has not opened", r.RaceID)
	}
	if !now.Before(r.StartsAt) {
		return fail(ErrInvalidState, "race %d has started", r.RaceID)
	}
	return nil
}
