package derby

import (
	"context"
	"time"

	"github.com/padraicbc/derby/metrics"
	"github.com/padraicbc/derby/models"
)

// Join enters the user's horse into a race and escrows both entry fees.
// Nothing is debited unless the entry is created.
func (s *Service) Join(ctx context.Context, userID, raceID, horseID int64) (entry *models.RaceEntry, err error) {
	defer func() { metrics.RecordJoin(err) }()

	err = s.store.Tx(ctx, func(ctx context.Context, tx Tx) error {
		race, err := tx.GetRace(ctx, raceID, true)
		if err != nil {
			return err
		}
		if err := openForRegistration(race, s.now()); err != nil {
			return err
		}

		horse, err := tx.GetHorse(ctx, horseID)
		if err != nil {
			return err
		}
		if race.MaxParticipants != nil {
			active, err := tx.ActiveEntries(ctx, raceID)
			if err != nil {
				return err
			}
			if len(active) >= *race.MaxParticipants {
				return fail(ErrInvalidState, "race %d is full", raceID)
			}
		}
		if !race.AllowsRarity(horse.Rarity) {
			return fail(ErrValidation, "rarity %q is not allowed in race %d", horse.Rarity, raceID)
		}
		if race.MaxMmr != nil && horse.Mmr > *race.MaxMmr {
			return fail(ErrValidation, "horse rating %d exceeds race ceiling %d", horse.Mmr, *race.MaxMmr)
		}

		entered, err := tx.HasActiveEntry(ctx, raceID, userID)
		if err != nil {
			return err
		}
		if entered {
			return fail(ErrConflict, "user already entered race %d", raceID)
		}
		taken, err := tx.IsHorseEntered(ctx, raceID, horseID)
		if err != nil {
			return err
		}
		if taken {
			return fail(ErrConflict, "horse %d already entered race %d", horseID, raceID)
		}
		owner, err := tx.IsOwner(ctx, userID, horseID)
		if err != nil {
			return err
		}
		if !owner {
			return fail(ErrPermissionDenied, "horse %d is not yours", horseID)
		}

		lb := newLedgerBatch(raceID)
		if err := lb.debit(ctx, tx, userID, models.WRON, race.WronEntryFee, models.ReasonEntryFee); err != nil {
			return err
		}
		if err := lb.debit(ctx, tx, userID, models.PHORSE, race.PhorseEntryFee, models.ReasonEntryFee); err != nil {
			return err
		}

		e := &models.RaceEntry{
			RaceID:     raceID,
			HorseID:    horseID,
			UserID:     userID,
			MmrAtEntry: horse.Mmr,
			IsActive:   true,
		}
		ok, err := tx.InsertEntry(ctx, e)
		if err != nil {
			return err
		}
		if !ok {
			return fail(ErrConflict, "user already entered race %d", raceID)
		}
		if err := lb.flush(ctx, tx); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Leave withdraws the user's horse and refunds both entry fees in full.
// Withdrawals close WithdrawCutoff before the start.
func (s *Service) Leave(ctx context.Context, userID, raceID, horseID int64) error {
	return s.store.Tx(ctx, func(ctx context.Context, tx Tx) error {
		race, err := tx.GetRace(ctx, raceID, true)
		if err != nil {
			return err
		}
		if race.Status != models.RaceOpen {
			return fail(ErrInvalidState, "race %d is %s", raceID, race.Status)
		}
		if !s.now().Before(race.StartsAt.Add(-WithdrawCutoff)) {
			return fail(ErrTooLate, "withdrawals closed %s before start", WithdrawCutoff.Round(time.Minute))
		}

		ok, err := tx.DeactivateEntry(ctx, raceID, userID, horseID)
		if err != nil {
			return err
		}
		if !ok {
			return fail(ErrNotFound, "no active entry for horse %d in race %d", horseID, raceID)
		}

		lb := newLedgerBatch(raceID)
		if err := lb.credit(ctx, tx, userID, models.WRON, race.WronEntryFee, models.ReasonWithdrawal); err != nil {
			return err
		}
		if err := lb.credit(ctx, tx, userID, models.PHORSE, race.PhorseEntryFee, models.ReasonWithdrawal); err != nil {
			return err
		}
		return lb.flush(ctx, tx)
	})
}
