package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Bet is a WRON stake on a horse entered in a race. Immutable once placed.
type Bet struct {
	bun.BaseModel `bun:"table:bets,alias:b"`

	BetID     int64           `bun:"bet_id,pk,autoincrement" json:"betID"`
	RaceID    int64           `bun:"race_id,notnull,unique:bets_no_dupes" json:"raceID"`
	UserID    int64           `bun:"user_id,notnull,unique:bets_no_dupes" json:"userID"`
	HorseID   int64           `bun:"horse_id,notnull,unique:bets_no_dupes" json:"horseID"`
	Amount    decimal.Decimal `bun:"amount,type:numeric(20,8),notnull" json:"amount"`
	CreatedAt time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}
