package models

import (
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// User is an account with bcrypt-hashed password and two ledger balances.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            int64           `bun:"id,pk,autoincrement" json:"id"`
	Username      string          `bun:"username,notnull,unique" json:"username"`
	Password      string          `bun:"password,notnull" json:"-"`
	Wallet        string          `bun:"wallet,notnull,unique" json:"wallet"`
	WronBalance   decimal.Decimal `bun:"wron_balance,type:numeric(20,8),notnull,default:0" json:"wronBalance"`
	PhorseBalance decimal.Decimal `bun:"phorse_balance,type:numeric(20,8),notnull,default:0" json:"phorseBalance"`
}
