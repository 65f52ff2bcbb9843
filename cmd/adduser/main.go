// cmd/adduser/main.go
// Creates or updates a user in the database.
//
// Usage:
//
//	go run ./cmd/adduser -username padraic -password testing -wallet 0xabc -wron 100 -phorse 500
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/padraicbc/derby/config"
	bundb "github.com/padraicbc/derby/db"
	"github.com/padraicbc/derby/handlers"
	"github.com/padraicbc/derby/models"
)

func main() {
	username := flag.String("username", "", "username (required)")
	password := flag.String("password", "", "plain-text password (required)")
	wallet := flag.String("wallet", "", "wallet address (required)")
	wron := flag.String("wron", "0", "opening WRON balance (new users only)")
	phorse := flag.String("phorse", "0", "opening PHORSE balance (new users only)")
	flag.Parse()

	if *wallet == "" {
		log.Fatal("-wallet is required")
	}
	hash, err := handlers.HashPasswordForUser(*username, *password)
	if err != nil {
		log.Fatal(err)
	}
	wronBal, err := decimal.NewFromString(*wron)
	if err != nil || wronBal.IsNegative() {
		log.Fatalf("invalid -wron %q", *wron)
	}
	phorseBal, err := decimal.NewFromString(*phorse)
	if err != nil || phorseBal.IsNegative() {
		log.Fatalf("invalid -phorse %q", *phorse)
	}

	cfg := config.Load()
	db := bundb.Setup(cfg)
	defer db.Close()

	user := &models.User{
		Username:      *username,
		Password:      hash,
		Wallet:        *wallet,
		WronBalance:   wronBal,
		PhorseBalance: phorseBal,
	}

	// Balances are only set on insert; existing users keep theirs.
	_, err = db.NewInsert().Model(user).
		On("CONFLICT (username) DO UPDATE SET password = EXCLUDED.password, wallet = EXCLUDED.wallet").
		Exec(context.Background())
	if err != nil {
		log.Fatal("insert user:", err)
	}

	fmt.Printf("user %q saved\n", *username)
}
