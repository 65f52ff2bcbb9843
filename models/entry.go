package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RaceEntry registers a horse in a race. Rows are never deleted; withdrawal
// and finalization flip IsActive.
type RaceEntry struct {
	bun.BaseModel `bun:"table:race_entries,alias:re"`

	EntryID    int64     `bun:"entry_id,pk,autoincrement" json:"entryID"`
	RaceID     int64     `bun:"race_id,notnull" json:"raceID"`
	HorseID    int64     `bun:"horse_id,notnull" json:"horseID"`
	UserID     int64     `bun:"user_id,notnull" json:"userID"`
	MmrAtEntry int       `bun:"mmr_at_entry,notnull" json:"mmrAtEntry"`
	IsActive   bool      `bun:"is_active,notnull,default:true" json:"isActive"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`

	Horse *Horse `bun:"rel:belongs-to,join:horse_id=horse_id" json:"horse,omitempty"`
}
