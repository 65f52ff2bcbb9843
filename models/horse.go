package models

import "github.com/uptrace/bun"

// Horse is a racehorse owned by a user. Base stats feed the race score.
type Horse struct {
	bun.BaseModel `bun:"table:horses,alias:h"`

	HorseID int64  `bun:"horse_id,pk,autoincrement" json:"horseID"`
	OwnerID int64  `bun:"owner_id,notnull" json:"ownerID"`
	Name    string `bun:"name,notnull" json:"name"`
	Rarity  string `bun:"rarity,notnull" json:"rarity"`
	Power   int    `bun:"power,notnull,default:0" json:"power"`
	Sprint  int    `bun:"sprint,notnull,default:0" json:"sprint"`
	Speed   int    `bun:"speed,notnull,default:0" json:"speed"`
	Mmr     int    `bun:"mmr,notnull,default:1000" json:"mmr"`
}

// Item is a piece of equipment. While EquippedHorseID is set its modifiers
// apply to that horse's race stats.
type Item struct {
	bun.BaseModel `bun:"table:items,alias:it"`

	ItemID          int64  `bun:"item_id,pk,autoincrement" json:"itemID"`
	OwnerID         int64  `bun:"owner_id,notnull" json:"ownerID"`
	Name            string `bun:"name,notnull" json:"name"`
	EquippedHorseID *int64 `bun:"equipped_horse_id" json:"equippedHorseID,omitempty"`
	PowerMod        int    `bun:"power_mod,notnull,default:0" json:"powerMod"`
	SprintMod       int    `bun:"sprint_mod,notnull,default:0" json:"sprintMod"`
	SpeedMod        int    `bun:"speed_mod,notnull,default:0" json:"speedMod"`
}
