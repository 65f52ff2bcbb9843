package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// RaceStatus is the lifecycle state of a race.
type RaceStatus string

const (
	RaceOpen      RaceStatus = "OPEN"
	RaceCompleted RaceStatus = "COMPLETED"
	RaceCancelled RaceStatus = "CANCELLED"
)

// Terminal reports whether no further mutation of the race is permitted.
func (s RaceStatus) Terminal() bool {
	return s == RaceCompleted || s == RaceCancelled
}

// Race represents a derby race event.
type Race struct {
	bun.BaseModel `bun:"table:races,alias:rc"`

	RaceID              int64           `bun:"race_id,pk,autoincrement" json:"raceID"`
	Name                string          `bun:"name,notnull" json:"name"`
	Description         *string         `bun:"description" json:"description,omitempty"`
	RegistrationOpensAt time.Time       `bun:"registration_opens_at,notnull" json:"registrationOpensAt"`
	StartsAt            time.Time       `bun:"starts_at,notnull" json:"startsAt"`
	Status              RaceStatus      `bun:"status,notnull,default:'OPEN'" json:"status"`
	MaxMmr              *int            `bun:"max_mmr" json:"maxMmr,omitempty"`
	MaxParticipants     *int            `bun:"max_participants" json:"maxParticipants,omitempty"`
	AllowedRarities     []string        `bun:"allowed_rarities,array,notnull" json:"allowedRarities"`
	WronEntryFee        decimal.Decimal `bun:"wron_entry_fee,type:numeric(20,8),notnull" json:"wronEntryFee"`
	PhorseEntryFee      decimal.Decimal `bun:"phorse_entry_fee,type:numeric(20,8),notnull" json:"phorseEntryFee"`
	WronPayoutPercent   decimal.Decimal `bun:"wron_payout_percent,type:numeric(5,2),notnull" json:"wronPayoutPercent"`
	PctFirst            decimal.Decimal `bun:"pct_first,type:numeric(6,4),notnull" json:"pctFirst"`
	PctSecond           decimal.Decimal `bun:"pct_second,type:numeric(6,4),notnull" json:"pctSecond"`
	PctThird            decimal.Decimal `bun:"pct_third,type:numeric(6,4),notnull" json:"pctThird"`
	TotalBetWron        decimal.Decimal `bun:"total_bet_wron,type:numeric(20,8),notnull,default:0" json:"totalBetWron"`
	BettingPoolWron     decimal.Decimal `bun:"betting_pool_wron,type:numeric(20,8),notnull,default:0" json:"bettingPoolWron"`
	CreatedAt           time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// AllowsRarity reports whether horses of the given rarity may enter.
func (r *Race) AllowsRarity(rarity string) bool {
	for _, a := range r.AllowedRarities {
		if a == rarity {
			return true
		}
	}
	return false
}
