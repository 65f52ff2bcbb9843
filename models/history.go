package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// RaceHistory is the permanent finishing record of one horse in a completed race.
type RaceHistory struct {
	bun.BaseModel `bun:"table:race_history,alias:rh"`

	ID           int64           `bun:"id,pk,autoincrement" json:"id"`
	RaceID       int64           `bun:"race_id,notnull,unique:race_history_no_dupes" json:"raceID"`
	HorseID      int64           `bun:"horse_id,notnull,unique:race_history_no_dupes" json:"horseID"`
	UserID       int64           `bun:"user_id,notnull" json:"userID"`
	Position     int             `bun:"position,notnull" json:"position"`
	MmrBefore    int             `bun:"mmr_before,notnull" json:"mmrBefore"`
	MmrAfter     int             `bun:"mmr_after,notnull" json:"mmrAfter"`
	WronPrize    decimal.Decimal `bun:"wron_prize,type:numeric(20,8),notnull" json:"wronPrize"`
	PhorseBurned decimal.Decimal `bun:"phorse_burned,type:numeric(20,8),notnull" json:"phorseBurned"`
	CreatedAt    time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}
