package derby

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/padraicbc/derby/metrics"
	"github.com/padraicbc/derby/models"
)

// Settlement is the result of finalizing a race.
type Settlement struct {
	Race    *models.Race         `json:"race"`
	History []models.RaceHistory `json:"history"`
	// Replayed is set when the race was already terminal and nothing was written.
	Replayed bool `json:"replayed"`
}

// completionPlan holds every write of the completion path, computed up front
// from data loaded once.
type completionPlan struct {
	placings   []Placing
	history    []models.RaceHistory
	betPayouts []Payout
}

func planCompletion(race *models.Race, entries []models.RaceEntry, stats map[int64]HorseStats, bets []models.Bet, rng Rand) completionPlan {
	placings := RankField(entries, stats, rng)
	prizes := Prizes(race, len(entries))

	field := make([]RatingInput, len(placings))
	for i, p := range placings {
		field[i] = RatingInput{HorseID: p.Entry.HorseID, MmrBefore: p.Mmr, Position: p.Position}
	}
	ratings := UpdateRatings(field)

	history := make([]models.RaceHistory, len(placings))
	for i, p := range placings {
		history[i] = models.RaceHistory{
			RaceID:       race.RaceID,
			HorseID:      p.Entry.HorseID,
			UserID:       p.Entry.UserID,
			Position:     p.Position,
			MmrBefore:    ratings[i].MmrBefore,
			MmrAfter:     ratings[i].MmrAfter,
			WronPrize:    PrizeFor(prizes, p.Position),
			PhorseBurned: race.PhorseEntryFee,
		}
	}

	plan := completionPlan{placings: placings, history: history}
	if len(placings) > 0 && len(bets) > 0 {
		plan.betPayouts = WinnerPayouts(bets, placings[0].Entry.HorseID, race.BettingPoolWron)
	}
	return plan
}

// Finalize settles a race once its start time has passed. Fields smaller
// than MinParticipants are cancelled and refunded; otherwise the race is run,
// prizes and bet payouts are credited, ratings updated and history written.
// Every write happens in one transaction. Finalizing a terminal race returns
// the recorded history without side effects.
func (s *Service) Finalize(ctx context.Context, raceID int64) (res *Settlement, err error) {
	start := time.Now()
	outcome := "fail"
	defer func() { metrics.RecordFinalize(outcome, start) }()

	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("derby:race:%d:finalize", raceID))
	if err != nil {
		return nil, fmt.Errorf("lock race %d: %w", raceID, err)
	}
	defer unlock()

	err = s.store.Tx(ctx, func(ctx context.Context, tx Tx) error {
		race, err := tx.GetRace(ctx, raceID, true)
		if err != nil {
			return err
		}
		if race.Status.Terminal() {
			history, err := tx.RaceHistory(ctx, raceID)
			if err != nil {
				return err
			}
			res = &Settlement{Race: race, History: history, Replayed: true}
			outcome = "replayed"
			return nil
		}
		if s.now().Before(race.StartsAt) {
			return fail(ErrTooEarly, "race %d starts at %s", raceID, race.StartsAt.Format(time.RFC3339))
		}

		entries, err := tx.ActiveEntries(ctx, raceID)
		if err != nil {
			return err
		}
		bets, err := tx.Bets(ctx, raceID)
		if err != nil {
			return err
		}

		if len(entries) < MinParticipants {
			if err := s.cancel(ctx, tx, race, entries, bets); err != nil {
				return err
			}
			res = &Settlement{Race: race, History: []models.RaceHistory{}}
			outcome = "cancelled"
			return nil
		}

		history, err := s.complete(ctx, tx, race, entries, bets)
		if err != nil {
			return err
		}
		res = &Settlement{Race: race, History: history}
		outcome = "completed"
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Int64("race_id", raceID),
		zap.String("outcome", outcome),
		zap.Int("placings", len(res.History)),
	}
	if len(res.History) > 0 {
		fields = append(fields, zap.Int64("winner_horse_id", res.History[0].HorseID))
	}
	s.log.Info("race finalized", fields...)
	return res, nil
}

func (s *Service) complete(ctx context.Context, tx Tx, race *models.Race, entries []models.RaceEntry, bets []models.Bet) ([]models.RaceHistory, error) {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.HorseID
	}
	stats, err := tx.RaceStats(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := stats[id]; !ok {
			return nil, fail(ErrNotFound, "stats for horse %d", id)
		}
	}

	plan := planCompletion(race, entries, stats, bets, s.rng)

	lb := newLedgerBatch(race.RaceID)
	for _, h := range plan.history {
		if err := lb.credit(ctx, tx, h.UserID, models.WRON, h.WronPrize, models.ReasonPrize); err != nil {
			return nil, err
		}
		if err := tx.SetRating(ctx, h.HorseID, h.MmrAfter); err != nil {
			return nil, err
		}
	}
	if err := tx.InsertHistory(ctx, plan.history); err != nil {
		return nil, err
	}
	for _, p := range plan.betPayouts {
		if err := lb.credit(ctx, tx, p.UserID, models.WRON, p.Amount, models.ReasonBetPayout); err != nil {
			return nil, err
		}
	}
	if err := lb.flush(ctx, tx); err != nil {
		return nil, err
	}

	if err := s.terminate(ctx, tx, race, models.RaceCompleted, false); err != nil {
		return nil, err
	}
	return plan.history, nil
}

func (s *Service) cancel(ctx context.Context, tx Tx, race *models.Race, entries []models.RaceEntry, bets []models.Bet) error {
	lb := newLedgerBatch(race.RaceID)
	for _, e := range entries {
		if err := lb.credit(ctx, tx, e.UserID, models.WRON, race.WronEntryFee, models.ReasonCancelRefund); err != nil {
			return err
		}
		if err := lb.credit(ctx, tx, e.UserID, models.PHORSE, race.PhorseEntryFee, models.ReasonCancelRefund); err != nil {
			return err
		}
	}
	for _, b := range bets {
		if err := lb.credit(ctx, tx, b.UserID, models.WRON, b.Amount, models.ReasonBetRefund); err != nil {
			return err
		}
	}
	if err := lb.flush(ctx, tx); err != nil {
		return err
	}
	if err := s.terminate(ctx, tx, race, models.RaceCancelled, true); err != nil {
		return err
	}
	race.TotalBetWron = decimal.Zero
	race.BettingPoolWron = decimal.Zero
	return nil
}

func (s *Service) terminate(ctx context.Context, tx Tx, race *models.Race, to models.RaceStatus, zeroPools bool) error {
	if err := tx.DeactivateEntries(ctx, race.RaceID); err != nil {
		return err
	}
	ok, err := tx.TransitionRace(ctx, race.RaceID, to, zeroPools)
	if err != nil {
		return err
	}
	if !ok {
		return fail(ErrConflict, "race %d was settled concurrently", race.RaceID)
	}
	race.Status = to
	return nil
}
