package derby

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/padraicbc/derby/metrics"
	"github.com/padraicbc/derby/models"
)

// PlaceBet stakes amount WRON on an entered horse. PoolShare of the stake
// funds the betting pool; the whole stake counts toward totalBetWron.
func (s *Service) PlaceBet(ctx context.Context, userID, raceID, horseID int64, amount decimal.Decimal) (bet *models.Bet, err error) {
	defer func() { metrics.RecordBet(err, amount) }()

	if !amount.IsPositive() {
		return nil, fail(ErrValidation, "bet amount must be positive")
	}
	if !fitsPlaces(amount, stakePlaces) {
		return nil, fail(ErrValidation, "bet amount allows at most %d decimal places", stakePlaces)
	}

	err = s.store.Tx(ctx, func(ctx context.Context, tx Tx) error {
		race, err := tx.GetRace(ctx, raceID, true)
		if err != nil {
			return err
		}
		if err := openForRegistration(race, s.now()); err != nil {
			return err
		}
		entered, err := tx.IsHorseEntered(ctx, raceID, horseID)
		if err != nil {
			return err
		}
		if !entered {
			return fail(ErrNotFound, "horse %d is not entered in race %d", horseID, raceID)
		}

		b := &models.Bet{RaceID: raceID, UserID: userID, HorseID: horseID, Amount: amount}
		ok, err := tx.InsertBet(ctx, b)
		if err != nil {
			return err
		}
		if !ok {
			return fail(ErrConflict, "already bet on horse %d in race %d", horseID, raceID)
		}

		lb := newLedgerBatch(raceID)
		if err := lb.debit(ctx, tx, userID, models.WRON, amount, models.ReasonBetStake); err != nil {
			return err
		}
		ok, err = tx.AddToPools(ctx, raceID, amount, amount.Mul(PoolShare))
		if err != nil {
			return err
		}
		if !ok {
			return fail(ErrInvalidState, "race %d closed while betting", raceID)
		}
		if err := lb.flush(ctx, tx); err != nil {
			return err
		}
		bet = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bet, nil
}

// Odds returns per-horse stakes and multipliers. A non-zero userID adds that
// user's stake and potential payout.
func (s *Service) Odds(ctx context.Context, raceID, userID int64) (*Odds, error) {
	var odds Odds
	err := s.store.Tx(ctx, func(ctx context.Context, tx Tx) error {
		race, err := tx.GetRace(ctx, raceID, false)
		if err != nil {
			return err
		}
		if race.Status == models.RaceCancelled {
			odds = ComputeOdds(race, nil, nil, userID)
			return nil
		}
		entries, err := tx.ActiveEntries(ctx, raceID)
		if err != nil {
			return err
		}
		bets, err := tx.Bets(ctx, raceID)
		if err != nil {
			return err
		}
		horses := make([]int64, len(entries))
		for i, e := range entries {
			horses[i] = e.HorseID
		}
		odds = ComputeOdds(race, horses, bets, userID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &odds, nil
}
