// Package derby implements PvP derby races: registration with fee escrow,
// parimutuel wagering, scoring, rating updates and settlement.
package derby

import (
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/derby/lock"
)

const (
	// MinParticipants is the smallest field that is raced; anything less is
	// cancelled and refunded at finalize.
	MinParticipants = 5
	// WithdrawCutoff is how long before the start withdrawals close.
	WithdrawCutoff = 30 * time.Minute
)

// Service is the derby core. It is safe for concurrent use.
type Service struct {
	store  Store
	auth   Authorizer
	locker Locker
	rng    Rand
	now    func() time.Time
	log    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLocker sets the per-race finalize lock. Defaults to an in-process lock.
func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

// WithRand sets the luck source.
func WithRand(r Rand) Option { return func(s *Service) { s.rng = r } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// NewService creates a Service over store.
func NewService(store Store, auth Authorizer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		auth:   auth,
		locker: lock.NewMemory(),
		rng:    globalRand{},
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// globalRand draws from the process-wide generator, which is safe for
// concurrent finalizes.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
