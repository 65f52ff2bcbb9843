package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Currency names a ledger balance.
type Currency string

const (
	WRON   Currency = "WRON"
	PHORSE Currency = "PHORSE"
)

// Ledger event reasons.
const (
	ReasonEntryFee     = "race_entry_fee"
	ReasonWithdrawal   = "race_withdrawal"
	ReasonCancelRefund = "race_cancel_refund"
	ReasonPrize        = "race_prize"
	ReasonBetStake     = "bet_stake"
	ReasonBetRefund    = "bet_refund"
	ReasonBetPayout    = "bet_payout"
)

// LedgerEvent is an append-only audit row for every balance movement.
// Amount is signed: debits are negative.
type LedgerEvent struct {
	bun.BaseModel `bun:"table:ledger_events,alias:le"`

	ID        int64           `bun:"id,pk,autoincrement" json:"id"`
	UserID    int64           `bun:"user_id,notnull" json:"userID"`
	Currency  Currency        `bun:"currency,notnull" json:"currency"`
	Amount    decimal.Decimal `bun:"amount,type:numeric(20,8),notnull" json:"amount"`
	Reason    string          `bun:"reason,notnull" json:"reason"`
	RaceID    *int64          `bun:"race_id" json:"raceID,omitempty"`
	Ref       string          `bun:"ref,notnull" json:"ref"`
	CreatedAt time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}
