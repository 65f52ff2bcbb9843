// Package derbytest provides an in-memory derby.Store for tests.
//
// Transactions run one at a time against a copy of the state, which replaces
// the committed state only when the transaction function succeeds.
package derbytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/padraicbc/derby/derby"
	"github.com/padraicbc/derby/models"
)

type state struct {
	seq     int64
	users   map[int64]models.User
	horses  map[int64]models.Horse
	items   []models.Item
	races   map[int64]models.Race
	entries []models.RaceEntry
	bets    []models.Bet
	history []models.RaceHistory
	ledger  []models.LedgerEvent
}

func (s *state) clone() *state {
	c := &state{
		seq:     s.seq,
		users:   make(map[int64]models.User, len(s.users)),
		horses:  make(map[int64]models.Horse, len(s.horses)),
		items:   append([]models.Item(nil), s.items...),
		races:   make(map[int64]models.Race, len(s.races)),
		entries: append([]models.RaceEntry(nil), s.entries...),
		bets:    append([]models.Bet(nil), s.bets...),
		history: append([]models.RaceHistory(nil), s.history...),
		ledger:  append([]models.LedgerEvent(nil), s.ledger...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.horses {
		c.horses[k] = v
	}
	for k, v := range s.races {
		c.races[k] = v
	}
	return c
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

// Store is an in-memory derby.Store.
type Store struct {
	mu       sync.Mutex
	st       *state
	failures map[string]error
	commits  int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		st: &state{
			users:  map[int64]models.User{},
			horses: map[int64]models.Horse{},
			races:  map[int64]models.Race{},
		},
		failures: map[string]error{},
	}
}

// Tx implements derby.Store.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, tx derby.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, store: s}); err != nil {
		return err
	}
	s.st = work
	s.commits++
	return nil
}

// FailOn makes the next call to the named Tx method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

// Commits returns the number of committed transactions.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// AddUser seeds a user with opening balances and returns its id.
func (s *Store) AddUser(wallet string, wron, phorse decimal.Decimal) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.st.next()
	s.st.users[id] = models.User{
		ID:            id,
		Username:      fmt.Sprintf("user%d", id),
		Wallet:        wallet,
		WronBalance:   wron,
		PhorseBalance: phorse,
	}
	return id
}

// AddHorse seeds a horse and returns its id.
func (s *Store) AddHorse(h models.Horse) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.HorseID = s.st.next()
	s.st.horses[h.HorseID] = h
	return h.HorseID
}

// AddItem seeds an item and returns its id.
func (s *Store) AddItem(it models.Item) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.ItemID = s.st.next()
	s.st.items = append(s.st.items, it)
	return it.ItemID
}

// TransferHorse changes a horse's owner outside any race operation.
func (s *Store) TransferHorse(horseID, ownerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.st.horses[horseID]
	h.OwnerID = ownerID
	s.st.horses[horseID] = h
}

// User returns a committed user.
func (s *Store) User(id int64) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.users[id]
}

// Horse returns a committed horse.
func (s *Store) Horse(id int64) models.Horse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.horses[id]
}

// Race returns a committed race.
func (s *Store) Race(id int64) models.Race {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.races[id]
}

// Entries returns every committed entry of a race.
func (s *Store) Entries(raceID int64) []models.RaceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RaceEntry
	for _, e := range s.st.entries {
		if e.RaceID == raceID {
			out = append(out, e)
		}
	}
	return out
}

// Ledger returns every committed ledger event.
func (s *Store) Ledger() []models.LedgerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LedgerEvent(nil), s.st.ledger...)
}

type tx struct {
	st    *state
	store *Store
}

var _ derby.Tx = (*tx)(nil)

func (t *tx) check(method string) error {
	if err, ok := t.store.failures[method]; ok {
		delete(t.store.failures, method)
		return err
	}
	return nil
}

// races

func (t *tx) CreateRace(_ context.Context, r *models.Race) error {
	if err := t.check("CreateRace"); err != nil {
		return err
	}
	r.RaceID = t.st.next()
	r.CreatedAt = time.Now()
	t.st.races[r.RaceID] = *r
	return nil
}

func (t *tx) GetRace(_ context.Context, raceID int64, _ bool) (*models.Race, error) {
	if err := t.check("GetRace"); err != nil {
		return nil, err
	}
	r, ok := t.st.races[raceID]
	if !ok {
		return nil, fmt.Errorf("%w: race %d", derby.ErrNotFound, raceID)
	}
	return &r, nil
}

func (t *tx) ListRaces(_ context.Context, status models.RaceStatus) ([]models.Race, error) {
	out := []models.Race{}
	for _, r := range t.st.races {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sortRaces(out)
	return out, nil
}

func (t *tx) ListDueRaces(_ context.Context, at time.Time) ([]models.Race, error) {
	out := []models.Race{}
	for _, r := range t.st.races {
		if r.Status == models.RaceOpen && !r.StartsAt.After(at) {
			out = append(out, r)
		}
	}
	sortRaces(out)
	return out, nil
}

func sortRaces(rs []models.Race) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].StartsAt.Equal(rs[j].StartsAt) {
			return rs[i].StartsAt.Before(rs[j].StartsAt)
		}
		return rs[i].RaceID < rs[j].RaceID
	})
}

func (t *tx) AddToPools(_ context.Context, raceID int64, total, pool decimal.Decimal) (bool, error) {
	if err := t.check("AddToPools"); err != nil {
		return false, err
	}
	r, ok := t.st.races[raceID]
	if !ok || r.Status != models.RaceOpen {
		return false, nil
	}
	r.TotalBetWron = r.TotalBetWron.Add(total)
	r.BettingPoolWron = r.BettingPoolWron.Add(pool)
	t.st.races[raceID] = r
	return true, nil
}

func (t *tx) TransitionRace(_ context.Context, raceID int64, to models.RaceStatus, zeroPools bool) (bool, error) {
	if err := t.check("TransitionRace"); err != nil {
		return false, err
	}
	r, ok := t.st.races[raceID]
	if !ok || r.Status != models.RaceOpen {
		return false, nil
	}
	r.Status = to
	if zeroPools {
		r.TotalBetWron = decimal.Zero
		r.BettingPoolWron = decimal.Zero
	}
	t.st.races[raceID] = r
	return true, nil
}

// entries

func (t *tx) Entries(_ context.Context, raceID int64) ([]models.RaceEntry, error) {
	out := []models.RaceEntry{}
	for _, e := range t.st.entries {
		if e.RaceID == raceID {
			if h, ok := t.st.horses[e.HorseID]; ok {
				e.Horse = &h
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *tx) ActiveEntries(_ context.Context, raceID int64) ([]models.RaceEntry, error) {
	if err := t.check("ActiveEntries"); err != nil {
		return nil, err
	}
	out := []models.RaceEntry{}
	for _, e := range t.st.entries {
		if e.RaceID == raceID && e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *tx) HasActiveEntry(_ context.Context, raceID, userID int64) (bool, error) {
	for _, e := range t.st.entries {
		if e.RaceID == raceID && e.UserID == userID && e.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) IsHorseEntered(_ context.Context, raceID, horseID int64) (bool, error) {
	for _, e := range t.st.entries {
		if e.RaceID == raceID && e.HorseID == horseID && e.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertEntry(ctx context.Context, e *models.RaceEntry) (bool, error) {
	if err := t.check("InsertEntry"); err != nil {
		return false, err
	}
	if dup, _ := t.HasActiveEntry(ctx, e.RaceID, e.UserID); dup {
		return false, nil
	}
	if dup, _ := t.IsHorseEntered(ctx, e.RaceID, e.HorseID); dup {
		return false, nil
	}
	now := time.Now()
	e.EntryID = t.st.next()
	e.CreatedAt, e.UpdatedAt = now, now
	t.st.entries = append(t.st.entries, *e)
	return true, nil
}

func (t *tx) DeactivateEntry(_ context.Context, raceID, userID, horseID int64) (bool, error) {
	for i, e := range t.st.entries {
		if e.RaceID == raceID && e.UserID == userID && e.HorseID == horseID && e.IsActive {
			t.st.entries[i].IsActive = false
			t.st.entries[i].UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) DeactivateEntries(_ context.Context, raceID int64) error {
	if err := t.check("DeactivateEntries"); err != nil {
		return err
	}
	for i, e := range t.st.entries {
		if e.RaceID == raceID && e.IsActive {
			t.st.entries[i].IsActive = false
			t.st.entries[i].UpdatedAt = time.Now()
		}
	}
	return nil
}

// bets

func (t *tx) Bets(_ context.Context, raceID int64) ([]models.Bet, error) {
	out := []models.Bet{}
	for _, b := range t.st.bets {
		if b.RaceID == raceID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *tx) InsertBet(_ context.Context, b *models.Bet) (bool, error) {
	if err := t.check("InsertBet"); err != nil {
		return false, err
	}
	for _, o := range t.st.bets {
		if o.RaceID == b.RaceID && o.UserID == b.UserID && o.HorseID == b.HorseID {
			return false, nil
		}
	}
	b.BetID = t.st.next()
	b.CreatedAt = time.Now()
	t.st.bets = append(t.st.bets, *b)
	return true, nil
}

// history

func (t *tx) InsertHistory(_ context.Context, rows []models.RaceHistory) error {
	if err := t.check("InsertHistory"); err != nil {
		return err
	}
	for _, r := range rows {
		for _, o := range t.st.history {
			if o.RaceID == r.RaceID && o.HorseID == r.HorseID {
				return fmt.Errorf("duplicate history for race %d horse %d", r.RaceID, r.HorseID)
			}
		}
		r.ID = t.st.next()
		r.CreatedAt = time.Now()
		t.st.history = append(t.st.history, r)
	}
	return nil
}

func (t *tx) RaceHistory(_ context.Context, raceID int64) ([]models.RaceHistory, error) {
	out := []models.RaceHistory{}
	for _, r := range t.st.history {
		if r.RaceID == raceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (t *tx) HorseHistory(_ context.Context, horseID int64) ([]models.RaceHistory, error) {
	out := []models.RaceHistory{}
	for i := len(t.st.history) - 1; i >= 0; i-- {
		if t.st.history[i].HorseID == horseID {
			out = append(out, t.st.history[i])
		}
	}
	return out, nil
}

// ledger

func (t *tx) Adjust(_ context.Context, userID int64, cur models.Currency, delta, guardMin decimal.Decimal) (bool, error) {
	if err := t.check("Adjust"); err != nil {
		return false, err
	}
	u, ok := t.st.users[userID]
	if !ok {
		return false, nil
	}
	bal := &u.WronBalance
	if cur == models.PHORSE {
		bal = &u.PhorseBalance
	}
	next := bal.Add(delta)
	if next.LessThan(guardMin) {
		return false, nil
	}
	*bal = next
	t.st.users[userID] = u
	return true, nil
}

func (t *tx) RecordLedger(_ context.Context, events []models.LedgerEvent) error {
	if err := t.check("RecordLedger"); err != nil {
		return err
	}
	for _, e := range events {
		e.ID = t.st.next()
		e.CreatedAt = time.Now()
		t.st.ledger = append(t.st.ledger, e)
	}
	return nil
}

// horses

func (t *tx) GetHorse(_ context.Context, horseID int64) (*models.Horse, error) {
	h, ok := t.st.horses[horseID]
	if !ok {
		return nil, fmt.Errorf("%w: horse %d", derby.ErrNotFound, horseID)
	}
	return &h, nil
}

func (t *tx) IsOwner(_ context.Context, userID, horseID int64) (bool, error) {
	h, ok := t.st.horses[horseID]
	return ok && h.OwnerID == userID, nil
}

func (t *tx) RaceStats(_ context.Context, horseIDs []int64) (map[int64]derby.HorseStats, error) {
	if err := t.check("RaceStats"); err != nil {
		return nil, err
	}
	out := make(map[int64]derby.HorseStats, len(horseIDs))
	for _, id := range horseIDs {
		h, ok := t.st.horses[id]
		if !ok {
			continue
		}
		st := derby.HorseStats{Power: h.Power, Sprint: h.Sprint, Speed: h.Speed, Mmr: h.Mmr}
		for _, it := range t.st.items {
			if it.EquippedHorseID != nil && *it.EquippedHorseID == id {
				st.Modifiers = append(st.Modifiers, derby.StatModifier{Power: it.PowerMod, Sprint: it.SprintMod, Speed: it.SpeedMod})
			}
		}
		out[id] = st
	}
	return out, nil
}

func (t *tx) SetRating(_ context.Context, horseID int64, mmr int) error {
	if err := t.check("SetRating"); err != nil {
		return err
	}
	h, ok := t.st.horses[horseID]
	if !ok {
		return fmt.Errorf("%w: horse %d", derby.ErrNotFound, horseID)
	}
	h.Mmr = mmr
	t.st.horses[horseID] = h
	return nil
}
