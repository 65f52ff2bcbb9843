package derby

import (
	"github.com/shopspring/decimal"

	"github.com/padraicbc/derby/models"
)

const (
	// payoutPlaces is the number of decimal places money columns store.
	// Payouts and prizes are truncated to it.
	payoutPlaces = 8
	// stakePlaces keeps a stake's PoolShare within payoutPlaces.
	stakePlaces = payoutPlaces - 1
)

// fitsPlaces reports whether d has at most places decimal digits.
func fitsPlaces(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

var (
	hundred = decimal.NewFromInt(100)
	// PoolShare is the fraction of every stake that funds the betting pool.
	// The rest is the house spread.
	PoolShare = decimal.RequireFromString("0.8")
)

// Prizes returns the WRON prize for positions 1, 2 and 3.
//
// allocated = entrants × wronEntryFee × wronPayoutPercent / 100
func Prizes(r *models.Race, entrants int) [3]decimal.Decimal {
	allocated := r.WronEntryFee.
		Mul(decimal.NewFromInt(int64(entrants))).
		Mul(r.WronPayoutPercent).
		Div(hundred)
	return [3]decimal.Decimal{
		allocated.Mul(r.PctFirst).Truncate(payoutPlaces),
		allocated.Mul(r.PctSecond).Truncate(payoutPlaces),
		allocated.Mul(r.PctThird).Truncate(payoutPlaces),
	}
}

// PrizeFor returns the prize for a finishing position.
func PrizeFor(prizes [3]decimal.Decimal, position int) decimal.Decimal {
	if position < 1 || position > len(prizes) {
		return decimal.Zero
	}
	return prizes[position-1]
}

// Payout is a WRON credit owed to a bettor.
type Payout struct {
	UserID int64
	Amount decimal.Decimal
}

// WinnerPayouts splits pool among the bets on winner in proportion to stake.
// Nil means nobody backed the winner and the pool stays with the house.
func WinnerPayouts(bets []models.Bet, winner int64, pool decimal.Decimal) []Payout {
	if !pool.IsPositive() {
		return nil
	}
	staked := decimal.Zero
	for _, b := range bets {
		if b.HorseID == winner {
			staked = staked.Add(b.Amount)
		}
	}
	if !staked.IsPositive() {
		return nil
	}

	var out []Payout
	for _, b := range bets {
		if b.HorseID != winner {
			continue
		}
		amt := pool.Mul(b.Amount).DivRound(staked, payoutPlaces+4).Truncate(payoutPlaces)
		out = append(out, Payout{UserID: b.UserID, Amount: amt})
	}
	return out
}

// HorseOdds is the wager view of one horse.
type HorseOdds struct {
	HorseID         int64            `json:"horseID"`
	TotalStaked     decimal.Decimal  `json:"totalStaked"`
	Bettors         int              `json:"bettors"`
	OddsMultiplier  *decimal.Decimal `json:"oddsMultiplier"`
	UserStake       *decimal.Decimal `json:"userStake,omitempty"`
	PotentialPayout *decimal.Decimal `json:"potentialPayout,omitempty"`
}

// Odds is the wager view of a race.
type Odds struct {
	RaceID          int64           `json:"raceID"`
	TotalBetWron    decimal.Decimal `json:"totalBetWron"`
	BettingPoolWron decimal.Decimal `json:"bettingPoolWron"`
	Horses          []HorseOdds     `json:"horses"`
}

// ComputeOdds aggregates bets per horse. horses lists the horses to report
// in order; horses with bets but not listed are appended. userID 0 means
// anonymous.
func ComputeOdds(r *models.Race, horses []int64, bets []models.Bet, userID int64) Odds {
	odds := Odds{
		RaceID:          r.RaceID,
		TotalBetWron:    r.TotalBetWron,
		BettingPoolWron: r.BettingPoolWron,
		Horses:          []HorseOdds{},
	}
	if r.Status == models.RaceCancelled {
		odds.TotalBetWron = decimal.Zero
		odds.BettingPoolWron = decimal.Zero
		return odds
	}

	idx := map[int64]int{}
	add := func(id int64) int {
		if i, ok := idx[id]; ok {
			return i
		}
		idx[id] = len(odds.Horses)
		odds.Horses = append(odds.Horses, HorseOdds{HorseID: id, TotalStaked: decimal.Zero})
		return idx[id]
	}
	for _, id := range horses {
		add(id)
	}
	userStakes := map[int64]decimal.Decimal{}
	for _, b := range bets {
		h := &odds.Horses[add(b.HorseID)]
		h.TotalStaked = h.TotalStaked.Add(b.Amount)
		h.Bettors++
		if userID != 0 && b.UserID == userID {
			userStakes[b.HorseID] = userStakes[b.HorseID].Add(b.Amount)
		}
	}

	for i := range odds.Horses {
		h := &odds.Horses[i]
		if h.TotalStaked.IsPositive() && r.BettingPoolWron.IsPositive() {
			m := r.BettingPoolWron.DivRound(h.TotalStaked, payoutPlaces)
			h.OddsMultiplier = &m
		}
		if stake, ok := userStakes[h.HorseID]; ok {
			h.UserStake = &stake
			if h.OddsMultiplier != nil {
				p := stake.Mul(*h.OddsMultiplier).Truncate(payoutPlaces)
				h.PotentialPayout = &p
			}
		}
	}
	return odds
}
