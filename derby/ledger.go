package derby

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/padraicbc/derby/models"
)

// ledgerBatch applies balance movements for one operation and collects the
// matching audit events under a shared reference.
type ledgerBatch struct {
	raceID int64
	ref    string
	events []models.LedgerEvent
}

func newLedgerBatch(raceID int64) *ledgerBatch {
	return &ledgerBatch{raceID: raceID, ref: uuid.NewString()}
}

func (b *ledgerBatch) debit(ctx context.Context, tx Tx, userID int64, cur models.Currency, amt decimal.Decimal, reason string) error {
	if !amt.IsPositive() {
		return nil
	}
	ok, err := tx.Adjust(ctx, userID, cur, amt.Neg(), decimal.Zero)
	if err != nil {
		return fmt.Errorf("debit %s from user %d: %w", cur, userID, err)
	}
	if !ok {
		return fail(ErrInsufficientFunds, "%s balance below %s", cur, amt.String())
	}
	b.record(userID, cur, amt.Neg(), reason)
	return nil
}

func (b *ledgerBatch) credit(ctx context.Context, tx Tx, userID int64, cur models.Currency, amt decimal.Decimal, reason string) error {
	if !amt.IsPositive() {
		return nil
	}
	ok, err := tx.Adjust(ctx, userID, cur, amt, decimal.Zero)
	if err != nil {
		return fmt.Errorf("credit %s to user %d: %w", cur, userID, err)
	}
	if !ok {
		return fail(ErrNotFound, "user %d", userID)
	}
	b.record(userID, cur, amt, reason)
	return nil
}

func (b *ledgerBatch) record(userID int64, cur models.Currency, amt decimal.Decimal, reason string) {
	raceID := b.raceID
	b.events = append(b.events, models.LedgerEvent{
		UserID:   userID,
		Currency: cur,
		Amount:   amt,
		Reason:   reason,
		RaceID:   &raceID,
		Ref:      b.ref,
	})
}

func (b *ledgerBatch) flush(ctx context.Context, tx Tx) error {
	if len(b.events) == 0 {
		return nil
	}
	return tx.RecordLedger(ctx, b.events)
}
