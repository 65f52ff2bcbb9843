package derby_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/padraicbc/derby/derby"
	"github.com/padraicbc/derby/derby/derbytest"
	"github.com/padraicbc/derby/models"
)

var (
	regOpens = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	starts   = regOpens.Add(48 * time.Hour)
)

const adminWallet = "0xadmin"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type allowlist map[string]bool

func (a allowlist) IsRaceAdmin(_ context.Context, wallet string) bool { return a[wallet] }

type fixture struct {
	store *derbytest.Store
	svc   *derby.Service
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: derbytest.New(), now: regOpens.Add(time.Hour)}
	f.svc = derby.NewService(f.store, allowlist{adminWallet: true},
		derby.WithClock(func() time.Time { return f.now }),
		derby.WithRand(rand.New(rand.NewPCG(1, 2))),
	)
	return f
}

func baseSpec() derby.RaceSpec {
	return derby.RaceSpec{
		Name:                "Spring Derby",
		RegistrationOpensAt: regOpens,
		StartsAt:            starts,
		AllowedRarities:     []string{"common", "rare"},
		WronEntryFee:        dec("10"),
		PhorseEntryFee:      dec("100"),
		WronPayoutPercent:   dec("50"),
		PctFirst:            dec("0.5"),
		PctSecond:           dec("0.3"),
		PctThird:            dec("0.2"),
	}
}

func (f *fixture) race(t *testing.T, mutate func(*derby.RaceSpec)) *models.Race {
	t.Helper()
	spec := baseSpec()
	if mutate != nil {
		mutate(&spec)
	}
	r, err := f.svc.CreateRace(context.Background(), derby.Actor{Wallet: adminWallet}, spec)
	if err != nil {
		t.Fatalf("create race: %v", err)
	}
	return r
}

type runner struct {
	user  int64
	horse int64
}

// entrant seeds a user with 1000 of each currency and a common horse whose
// three stats all equal stat.
func (f *fixture) entrant(stat int) runner {
	u := f.store.AddUser("0xuser", dec("1000"), dec("1000"))
	h := f.store.AddHorse(models.Horse{OwnerID: u, Name: "horse", Rarity: "common", Power: stat, Sprint: stat, Speed: stat, Mmr: 1000})
	return runner{user: u, horse: h}
}

func (f *fixture) join(t *testing.T, raceID int64, r runner) {
	t.Helper()
	if _, err := f.svc.Join(context.Background(), r.user, raceID, r.horse); err != nil {
		t.Fatalf("join user %d: %v", r.user, err)
	}
}

// field enters n runners. The first is strong enough to always win.
func (f *fixture) field(t *testing.T, raceID int64, n int) []runner {
	t.Helper()
	out := make([]runner, n)
	for i := range out {
		stat := 10
		if i == 0 {
			stat = 1000
		}
		out[i] = f.entrant(stat)
		f.join(t, raceID, out[i])
	}
	return out
}

func (f *fixture) wron(id int64) decimal.Decimal   { return f.store.User(id).WronBalance }
func (f *fixture) phorse(id int64) decimal.Decimal { return f.store.User(id).PhorseBalance }

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("err = %v, want %v", err, target)
	}
}

func wantAmount(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s = %s, want %s", what, got, want)
	}
}

func TestCreateRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRace(ctx, derby.Actor{Wallet: "0xsomeone"}, baseSpec())
	wantErr(t, err, derby.ErrPermissionDenied)

	bad := baseSpec()
	bad.AllowedRarities = nil
	_, err = f.svc.CreateRace(ctx, derby.Actor{Wallet: adminWallet}, bad)
	wantErr(t, err, derby.ErrValidation)

	r := f.race(t, func(s *derby.RaceSpec) { s.AllowedRarities = []string{" legendary ", ""} })
	if r.RaceID == 0 || r.Status != models.RaceOpen {
		t.Fatalf("race = %+v", r)
	}
	if len(r.AllowedRarities) != 1 || r.AllowedRarities[0] != "legendary" {
		t.Fatalf("rarities = %q", r.AllowedRarities)
	}

	got, err := f.svc.GetRace(ctx, r.RaceID)
	if err != nil || got.Name != "Spring Derby" {
		t.Fatalf("get race = %+v, %v", got, err)
	}
	_, err = f.svc.GetRace(ctx, 9999)
	wantErr(t, err, derby.ErrNotFound)
}

func TestListRaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	early := f.race(t, nil)
	late := f.race(t, func(s *derby.RaceSpec) { s.StartsAt = starts.Add(24 * time.Hour) })
	f.field(t, early.RaceID, 2)

	f.now = starts.Add(time.Minute)
	due, err := f.svc.ListDue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].RaceID != early.RaceID {
		t.Fatalf("due = %+v", due)
	}
	if _, err := f.svc.Finalize(ctx, early.RaceID); err != nil {
		t.Fatal(err)
	}

	open, err := f.svc.ListOpen(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].RaceID != late.RaceID {
		t.Fatalf("open = %+v", open)
	}
	all, err := f.svc.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].RaceID != early.RaceID {
		t.Fatalf("all = %+v", all)
	}
}

func TestJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	a := f.entrant(10)

	e, err := f.svc.Join(ctx, a.user, r.RaceID, a.horse)
	if err != nil {
		t.Fatal(err)
	}
	if !e.IsActive || e.MmrAtEntry != 1000 || e.HorseID != a.horse {
		t.Fatalf("entry = %+v", e)
	}
	wantAmount(t, "wron", f.wron(a.user), "990")
	wantAmount(t, "phorse", f.phorse(a.user), "900")

	events := f.store.Ledger()
	if len(events) != 2 {
		t.Fatalf("ledger events = %d, want 2", len(events))
	}
	if events[0].Ref != events[1].Ref || events[0].Reason != models.ReasonEntryFee || !events[0].Amount.Equal(dec("-10")) {
		t.Fatalf("ledger = %+v", events)
	}

	// A second horse from the same user is a duplicate entry.
	other := f.store.AddHorse(models.Horse{OwnerID: a.user, Rarity: "common", Mmr: 1000})
	_, err = f.svc.Join(ctx, a.user, r.RaceID, other)
	wantErr(t, err, derby.ErrConflict)
	wantAmount(t, "wron after conflict", f.wron(a.user), "990")
}

func TestJoinRejections(t *testing.T) {
	ctx := context.Background()
	ceiling := 1100
	capacity := 1

	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture, race *models.Race) (user, horse int64)
		want  error
	}{
		{
			name: "before registration opens",
			setup: func(_ *testing.T, f *fixture, _ *models.Race) (int64, int64) {
				f.now = regOpens.Add(-time.Second)
				r := f.entrant(10)
				return r.user, r.horse
			},
			want: derby.ErrInvalidState,
		},
		{
			name: "after start",
			setup: func(_ *testing.T, f *fixture, _ *models.Race) (int64, int64) {
				f.now = starts
				r := f.entrant(10)
				return r.user, r.horse
			},
			want: derby.ErrInvalidState,
		},
		{
			name: "unknown horse",
			setup: func(_ *testing.T, f *fixture, _ *models.Race) (int64, int64) {
				return f.entrant(10).user, 9999
			},
			want: derby.ErrNotFound,
		},
		{
			name: "someone else's horse",
			setup: func(_ *testing.T, f *fixture, _ *models.Race) (int64, int64) {
				return f.entrant(10).user, f.entrant(10).horse
			},
			want: derby.ErrPermissionDenied,
		},
		{
			name: "rarity not allowed",
			setup: func(_ *testing.T, f *fixture, _ *models.Race) (int64, int64) {
				u := f.store.AddUser("0x", dec("1000"), dec("1000"))
				return u, f.store.AddHorse(models.Horse{OwnerID: u, Rarity: "legendary", Mmr: 1000})
			},
			want: derby.ErrValidation,
		},
		{
			name: "rating above ceiling",
			setup: func(_ *testing.T, f *fixture, _ *models.Race) (int64, int64) {
				u := f.store.AddUser("0x", dec("1000"), dec("1000"))
				return u, f.store.AddHorse(models.Horse{OwnerID: u, Rarity: "common", Mmr: ceiling + 1})
			},
			want: derby.ErrValidation,
		},
		{
			name: "race full",
			setup: func(t *testing.T, f *fixture, race *models.Race) (int64, int64) {
				f.join(t, race.RaceID, f.entrant(10))
				r := f.entrant(10)
				return r.user, r.horse
			},
			want: derby.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			race := f.race(t, func(s *derby.RaceSpec) {
				s.MaxMmr = &ceiling
				if tt.name == "race full" {
					s.MaxParticipants = &capacity
				}
			})
			user, horse := tt.setup(t, f, race)
			before := len(f.store.Ledger())

			_, err := f.svc.Join(ctx, user, race.RaceID, horse)
			wantErr(t, err, tt.want)
			if len(f.store.Ledger()) != before {
				t.Fatal("ledger written on rejected join")
			}
		})
	}
}

func TestJoinRejectsHorseAlreadyEntered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	seller := f.entrant(10)
	f.join(t, r.RaceID, seller)

	buyer := f.store.AddUser("0xbuyer", dec("1000"), dec("1000"))
	f.store.TransferHorse(seller.horse, buyer)

	_, err := f.svc.Join(ctx, buyer, r.RaceID, seller.horse)
	wantErr(t, err, derby.ErrConflict)
	wantAmount(t, "buyer wron", f.wron(buyer), "1000")

	active := 0
	for _, e := range f.store.Entries(r.RaceID) {
		if e.IsActive && e.HorseID == seller.horse {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("active entries for horse = %d, want 1", active)
	}

	// Once the seller withdraws, the new owner may enter it.
	if err := f.svc.Leave(ctx, seller.user, r.RaceID, seller.horse); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Join(ctx, buyer, r.RaceID, seller.horse); err != nil {
		t.Fatalf("join after withdrawal: %v", err)
	}
}

func TestJoinInsufficientFundsDebitsNothing(t *testing.T) {
	f := newFixture(t)
	r := f.race(t, nil)
	u := f.store.AddUser("0xpoor", dec("1000"), dec("99"))
	h := f.store.AddHorse(models.Horse{OwnerID: u, Rarity: "common", Mmr: 1000})

	_, err := f.svc.Join(context.Background(), u, r.RaceID, h)
	wantErr(t, err, derby.ErrInsufficientFunds)
	wantAmount(t, "wron", f.wron(u), "1000")
	wantAmount(t, "phorse", f.phorse(u), "99")
	if n := len(f.store.Entries(r.RaceID)); n != 0 {
		t.Fatalf("entries = %d, want 0", n)
	}
}

func TestLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	a := f.entrant(10)
	f.join(t, r.RaceID, a)

	wantErr(t, f.svc.Leave(ctx, a.user, r.RaceID, a.horse+1000), derby.ErrNotFound)

	f.now = starts.Add(-derby.WithdrawCutoff - time.Minute)
	if err := f.svc.Leave(ctx, a.user, r.RaceID, a.horse); err != nil {
		t.Fatal(err)
	}
	wantAmount(t, "wron", f.wron(a.user), "1000")
	wantAmount(t, "phorse", f.phorse(a.user), "1000")
	wantErr(t, f.svc.Leave(ctx, a.user, r.RaceID, a.horse), derby.ErrNotFound)

	// Re-entry after withdrawal creates a fresh active entry.
	f.join(t, r.RaceID, a)
	entries := f.store.Entries(r.RaceID)
	if len(entries) != 2 || entries[0].IsActive || !entries[1].IsActive {
		t.Fatalf("entries = %+v", entries)
	}

	f.now = starts.Add(-derby.WithdrawCutoff)
	wantErr(t, f.svc.Leave(ctx, a.user, r.RaceID, a.horse), derby.ErrTooLate)
	wantAmount(t, "wron after late leave", f.wron(a.user), "990")
}

func TestLeaveTerminalRace(t *testing.T) {
	f := newFixture(t)
	r := f.race(t, nil)
	a := f.field(t, r.RaceID, 1)[0]

	f.now = starts
	if _, err := f.svc.Finalize(context.Background(), r.RaceID); err != nil {
		t.Fatal(err)
	}
	wantErr(t, f.svc.Leave(context.Background(), a.user, r.RaceID, a.horse), derby.ErrInvalidState)
}

func TestPlaceBet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	rs := f.field(t, r.RaceID, 2)
	bettor := f.store.AddUser("0xbettor", dec("50"), decimal.Zero)

	wantErrBet := func(horse int64, amount string, want error) {
		t.Helper()
		_, err := f.svc.PlaceBet(ctx, bettor, r.RaceID, horse, dec(amount))
		wantErr(t, err, want)
	}

	wantErrBet(rs[0].horse, "0", derby.ErrValidation)
	wantErrBet(rs[0].horse, "-5", derby.ErrValidation)
	wantErrBet(9999, "5", derby.ErrNotFound)
	wantErrBet(rs[0].horse, "0.000000001", derby.ErrValidation)
	wantErrBet(rs[0].horse, "0.00000001", derby.ErrValidation)
	wantAmount(t, "pool after sub-precision bets", f.store.Race(r.RaceID).BettingPoolWron, "0")

	if _, err := f.svc.PlaceBet(ctx, bettor, r.RaceID, rs[0].horse, dec("10")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.PlaceBet(ctx, bettor, r.RaceID, rs[1].horse, dec("20")); err != nil {
		t.Fatal(err)
	}
	wantErrBet(rs[0].horse, "5", derby.ErrConflict)
	wantErrBet(rs[0].horse+1000, "5", derby.ErrNotFound)

	race := f.store.Race(r.RaceID)
	wantAmount(t, "total", race.TotalBetWron, "30")
	wantAmount(t, "pool", race.BettingPoolWron, "24")
	wantAmount(t, "bettor wron", f.wron(bettor), "20")

	// Insufficient funds leaves the pools untouched.
	third := f.entrant(10)
	f.join(t, r.RaceID, third)
	wantErrBet(third.horse, "25", derby.ErrInsufficientFunds)
	race = f.store.Race(r.RaceID)
	wantAmount(t, "total after rejected bet", race.TotalBetWron, "30")
	wantAmount(t, "bettor wron after rejected bet", f.wron(bettor), "20")

	f.now = starts
	wantErrBet(third.horse, "5", derby.ErrInvalidState)
}

func TestPoolTracksStakes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	rs := f.field(t, r.RaceID, 3)

	total := decimal.Zero
	for i, amt := range []string{"1", "2.5", "7.25", "0.01", "100", "0.0000001", "3.1234567"} {
		u := f.store.AddUser("0xb", dec("1000"), decimal.Zero)
		if _, err := f.svc.PlaceBet(ctx, u, r.RaceID, rs[i%len(rs)].horse, dec(amt)); err != nil {
			t.Fatal(err)
		}
		total = total.Add(dec(amt))

		race := f.store.Race(r.RaceID)
		if !race.TotalBetWron.Equal(total) {
			t.Fatalf("total = %s, want %s", race.TotalBetWron, total)
		}
		if !race.BettingPoolWron.Equal(total.Mul(derby.PoolShare)) {
			t.Fatalf("pool = %s, want %s", race.BettingPoolWron, total.Mul(derby.PoolShare))
		}
		if !race.BettingPoolWron.Equal(race.BettingPoolWron.Truncate(8)) {
			t.Fatalf("pool %s exceeds 8 decimal places", race.BettingPoolWron)
		}
	}
}

func TestOdds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	rs := f.field(t, r.RaceID, 2)
	b1 := f.store.AddUser("0xb1", dec("100"), decimal.Zero)
	b2 := f.store.AddUser("0xb2", dec("100"), decimal.Zero)
	for _, bet := range []struct {
		user, horse int64
		amt         string
	}{{b1, rs[0].horse, "10"}, {b2, rs[0].horse, "30"}} {
		if _, err := f.svc.PlaceBet(ctx, bet.user, r.RaceID, bet.horse, dec(bet.amt)); err != nil {
			t.Fatal(err)
		}
	}

	odds, err := f.svc.Odds(ctx, r.RaceID, b1)
	if err != nil {
		t.Fatal(err)
	}
	if len(odds.Horses) != 2 {
		t.Fatalf("horses = %+v", odds.Horses)
	}
	fav := odds.Horses[0]
	if fav.OddsMultiplier == nil || !fav.OddsMultiplier.Equal(dec("0.8")) {
		t.Fatalf("multiplier = %v", fav.OddsMultiplier)
	}
	if fav.PotentialPayout == nil || !fav.PotentialPayout.Equal(dec("8")) {
		t.Fatalf("potential payout = %v", fav.PotentialPayout)
	}
	if odds.Horses[1].OddsMultiplier != nil {
		t.Fatalf("unbacked horse has odds %v", odds.Horses[1].OddsMultiplier)
	}

	// Two entrants is below the minimum field, so finalize cancels.
	f.now = starts
	if _, err := f.svc.Finalize(ctx, r.RaceID); err != nil {
		t.Fatal(err)
	}
	odds, err = f.svc.Odds(ctx, r.RaceID, b1)
	if err != nil {
		t.Fatal(err)
	}
	if len(odds.Horses) != 0 || !odds.BettingPoolWron.IsZero() {
		t.Fatalf("cancelled odds = %+v", odds)
	}
}

func TestFinalizeTooEarly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	f.field(t, r.RaceID, 5)

	f.now = starts.Add(-time.Second)
	_, err := f.svc.Finalize(ctx, r.RaceID)
	wantErr(t, err, derby.ErrTooEarly)
	if got := f.store.Race(r.RaceID).Status; got != models.RaceOpen {
		t.Fatalf("status = %s, want OPEN", got)
	}

	_, err = f.svc.Finalize(ctx, 9999)
	wantErr(t, err, derby.ErrNotFound)
}

func TestFinalizeCancelsSmallField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	rs := f.field(t, r.RaceID, 3)
	bettor := f.store.AddUser("0xbettor", dec("100"), decimal.Zero)
	if _, err := f.svc.PlaceBet(ctx, bettor, r.RaceID, rs[1].horse, dec("40")); err != nil {
		t.Fatal(err)
	}

	f.now = starts
	res, err := f.svc.Finalize(ctx, r.RaceID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Replayed || res.Race.Status != models.RaceCancelled || len(res.History) != 0 {
		t.Fatalf("settlement = %+v", res)
	}
	for _, runner := range rs {
		wantAmount(t, "wron", f.wron(runner.user), "1000")
		wantAmount(t, "phorse", f.phorse(runner.user), "1000")
	}
	wantAmount(t, "bettor wron", f.wron(bettor), "100")

	race := f.store.Race(r.RaceID)
	if race.Status != models.RaceCancelled {
		t.Fatalf("status = %s", race.Status)
	}
	wantAmount(t, "total", race.TotalBetWron, "0")
	wantAmount(t, "pool", race.BettingPoolWron, "0")
	for _, e := range f.store.Entries(r.RaceID) {
		if e.IsActive {
			t.Fatalf("entry %d still active", e.EntryID)
		}
	}

	again, err := f.svc.Finalize(ctx, r.RaceID)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Replayed || len(again.History) != 0 {
		t.Fatalf("replay = %+v", again)
	}
}

func TestFinalizeCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	rs := f.field(t, r.RaceID, 5)

	f.now = starts.Add(time.Minute)
	res, err := f.svc.Finalize(ctx, r.RaceID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Replayed || res.Race.Status != models.RaceCompleted {
		t.Fatalf("settlement = %+v", res)
	}
	if len(res.History) != 5 {
		t.Fatalf("history rows = %d, want 5", len(res.History))
	}

	prizes := map[int]string{1: "12.5", 2: "7.5", 3: "5", 4: "0", 5: "0"}
	deltas := map[int]int{1: 8, 2: 4, 3: 0, 4: -4, 5: -8}
	seen := map[int]bool{}
	for _, h := range res.History {
		if seen[h.Position] {
			t.Fatalf("position %d assigned twice", h.Position)
		}
		seen[h.Position] = true
		wantAmount(t, "prize", h.WronPrize, prizes[h.Position])
		wantAmount(t, "burned", h.PhorseBurned, "100")
		if h.MmrBefore != 1000 || h.MmrAfter != 1000+deltas[h.Position] {
			t.Fatalf("position %d rating %d -> %d", h.Position, h.MmrBefore, h.MmrAfter)
		}
		if got := f.store.Horse(h.HorseID).Mmr; got != h.MmrAfter {
			t.Fatalf("horse %d mmr = %d, want %d", h.HorseID, got, h.MmrAfter)
		}
	}
	if res.History[0].HorseID != rs[0].horse {
		t.Fatalf("winner = %d, want %d", res.History[0].HorseID, rs[0].horse)
	}
	wantAmount(t, "winner wron", f.wron(rs[0].user), "1002.5")

	sum := decimal.Zero
	for _, runner := range rs {
		sum = sum.Add(f.wron(runner.user))
		wantAmount(t, "phorse", f.phorse(runner.user), "900")
	}
	wantAmount(t, "field wron", sum, "4975")

	ledger := decimal.Zero
	for _, ev := range f.store.Ledger() {
		if ev.Currency == models.WRON {
			ledger = ledger.Add(ev.Amount)
		}
	}
	wantAmount(t, "ledger wron net", ledger, "-25")

	for _, e := range f.store.Entries(r.RaceID) {
		if e.IsActive {
			t.Fatalf("entry %d still active", e.EntryID)
		}
	}

	rows, err := f.svc.HorseHistory(ctx, rs[0].horse)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Position != 1 || rows[0].RaceID != r.RaceID {
		t.Fatalf("horse history = %+v", rows)
	}
	_, err = f.svc.HorseHistory(ctx, 9999)
	wantErr(t, err, derby.ErrNotFound)

	detail, err := f.svc.RaceDetail(ctx, r.RaceID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Entries) != 5 || len(detail.History) != 5 {
		t.Fatalf("detail = %d entries, %d history", len(detail.Entries), len(detail.History))
	}
	if detail.Entries[0].Horse == nil || detail.Entries[0].Horse.Rarity != "common" {
		t.Fatalf("entry horse = %+v", detail.Entries[0].Horse)
	}
}

func TestFinalizeReplayHasNoEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	rs := f.field(t, r.RaceID, 5)

	f.now = starts
	first, err := f.svc.Finalize(ctx, r.RaceID)
	if err != nil {
		t.Fatal(err)
	}
	balance := f.wron(rs[0].user)
	events := len(f.store.Ledger())

	second, err := f.svc.Finalize(ctx, r.RaceID)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Replayed || second.Race.Status != models.RaceCompleted {
		t.Fatalf("replay = %+v", second)
	}
	if len(second.History) != len(first.History) {
		t.Fatalf("replay history = %d rows, want %d", len(second.History), len(first.History))
	}
	for i := range first.History {
		a, b := first.History[i], second.History[i]
		if a.HorseID != b.HorseID || a.Position != b.Position || a.MmrAfter != b.MmrAfter {
			t.Fatalf("row %d: %+v vs %+v", i, a, b)
		}
	}
	if !f.wron(rs[0].user).Equal(balance) || len(f.store.Ledger()) != events {
		t.Fatal("replay moved funds")
	}
}

func TestFinalizePaysWinningBets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	rs := f.field(t, r.RaceID, 5)

	small := f.store.AddUser("0xsmall", dec("100"), decimal.Zero)
	large := f.store.AddUser("0xlarge", dec("100"), decimal.Zero)
	loser := f.store.AddUser("0xloser", dec("100"), decimal.Zero)
	for _, b := range []struct {
		user, horse int64
		amt         string
	}{
		{small, rs[0].horse, "10"},
		{large, rs[0].horse, "20"},
		{loser, rs[1].horse, "10"},
	} {
		if _, err := f.svc.PlaceBet(ctx, b.user, r.RaceID, b.horse, dec(b.amt)); err != nil {
			t.Fatal(err)
		}
	}
	wantAmount(t, "pool", f.store.Race(r.RaceID).BettingPoolWron, "32")

	f.now = starts
	if _, err := f.svc.Finalize(ctx, r.RaceID); err != nil {
		t.Fatal(err)
	}
	wantAmount(t, "small", f.wron(small), "100.66666666")
	wantAmount(t, "large", f.wron(large), "101.33333333")
	wantAmount(t, "loser", f.wron(loser), "90")
}

func TestFinalizeKeepsPoolWithoutWinningBets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	rs := f.field(t, r.RaceID, 5)
	bettor := f.store.AddUser("0xbettor", dec("100"), decimal.Zero)
	if _, err := f.svc.PlaceBet(ctx, bettor, r.RaceID, rs[2].horse, dec("10")); err != nil {
		t.Fatal(err)
	}

	f.now = starts
	res, err := f.svc.Finalize(ctx, r.RaceID)
	if err != nil {
		t.Fatal(err)
	}
	if res.History[0].HorseID != rs[0].horse {
		t.Fatalf("winner = %d", res.History[0].HorseID)
	}
	wantAmount(t, "bettor", f.wron(bettor), "90")
	for _, ev := range f.store.Ledger() {
		if ev.Reason == models.ReasonBetPayout {
			t.Fatalf("unexpected payout %+v", ev)
		}
	}
}

func TestFinalizeRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.race(t, nil)
	rs := f.field(t, r.RaceID, 5)

	f.now = starts
	events := len(f.store.Ledger())
	commits := f.store.Commits()
	boom := errors.New("disk full")
	f.store.FailOn("InsertHistory", boom)

	_, err := f.svc.Finalize(ctx, r.RaceID)
	wantErr(t, err, boom)

	if got := f.store.Race(r.RaceID).Status; got != models.RaceOpen {
		t.Fatalf("status = %s, want OPEN", got)
	}
	for _, runner := range rs {
		wantAmount(t, "wron", f.wron(runner.user), "990")
		if got := f.store.Horse(runner.horse).Mmr; got != 1000 {
			t.Fatalf("horse %d mmr = %d after rollback", runner.horse, got)
		}
	}
	if len(f.store.Ledger()) != events {
		t.Fatal("ledger written by failed finalize")
	}
	if got := f.store.Commits(); got != commits {
		t.Fatalf("commits = %d after failed finalize, want %d", got, commits)
	}

	res, err := f.svc.Finalize(ctx, r.RaceID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Replayed || res.Race.Status != models.RaceCompleted {
		t.Fatalf("retry = %+v", res)
	}
}

func TestFinalizeCancelRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	r := f.race(t, nil)
	rs := f.field(t, r.RaceID, 2)

	f.now = starts
	commits := f.store.Commits()
	f.store.FailOn("TransitionRace", errors.New("connection reset"))
	if _, err := f.svc.Finalize(context.Background(), r.RaceID); err == nil {
		t.Fatal("expected error")
	}
	wantAmount(t, "wron", f.wron(rs[0].user), "990")
	if got := f.store.Race(r.RaceID).Status; got != models.RaceOpen {
		t.Fatalf("status = %s, want OPEN", got)
	}
	if got := f.store.Commits(); got != commits {
		t.Fatalf("commits = %d after failed cancel, want %d", got, commits)
	}
}

func TestFinalizeConcurrent(t *testing.T) {
	f := newFixture(t)
	r := f.race(t, nil)
	rs := f.field(t, r.RaceID, 5)
	f.now = starts

	const callers = 8
	var (
		wg      sync.WaitGroup
		results = make([]*derby.Settlement, callers)
		errs    = make([]error, callers)
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.svc.Finalize(context.Background(), r.RaceID)
		}()
	}
	wg.Wait()

	fresh := 0
	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !results[i].Replayed {
			fresh++
		}
		if len(results[i].History) != 5 || results[i].History[0].HorseID != rs[0].horse {
			t.Fatalf("caller %d history = %+v", i, results[i].History)
		}
	}
	if fresh != 1 {
		t.Fatalf("%d callers settled the race, want 1", fresh)
	}
	wantAmount(t, "winner wron", f.wron(rs[0].user), "1002.5")
}
