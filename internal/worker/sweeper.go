package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs the sweep once a minute.
const DefaultSchedule = "@every 1m"

// CodeSweeper purges expired verification codes.
type CodeSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// RevocationPurger drops revocations whose credentials have expired.
type RevocationPurger interface {
	Purge() int
}

// CounterPruner drops rate-limit counters idle for longer than idle.
type CounterPruner interface {
	Prune(idle time.Duration) int
}

// SweepResult counts what one sweep removed.
type SweepResult struct {
	Codes       int
	Revocations int
	Counters    int
}

// Sweeper periodically clears expired auth state. Lookups still purge lazily,
// so a missed run only costs memory.
type Sweeper struct {
	codes       CodeSweeper
	revocations RevocationPurger
	counters    CounterPruner
	counterIdle time.Duration
	timeout     time.Duration
	logger      *zap.Logger
	cron        *cron.Cron
}

// SweeperDependencies wires the stores the sweeper clears. Nil members are skipped.
type SweeperDependencies struct {
	Codes       CodeSweeper
	Revocations RevocationPurger
	Counters    CounterPruner
	// CounterIdle is how long a rate-limit counter may sit unused; use the longest rule window.
	CounterIdle time.Duration
	Logger      *zap.Logger
}

// NewSweeper builds a sweeper.
func NewSweeper(deps SweeperDependencies) *Sweeper {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idle := deps.CounterIdle
	if idle <= 0 {
		idle = time.Minute
	}
	return &Sweeper{
		codes:       deps.Codes,
		revocations: deps.Revocations,
		counters:    deps.Counters,
		counterIdle: idle,
		timeout:     30 * time.Second,
		logger:      logger,
	}
}

// Start schedules the sweep. An empty schedule uses DefaultSchedule.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { s.Run(context.Background()) }); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.logger.Info("sweeper started", zap.String("schedule", schedule))
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("sweeper stopped")
}

// Run performs one sweep.
func (s *Sweeper) Run(ctx context.Context) SweepResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var res SweepResult
	if s.codes != nil {
		n, err := s.codes.Sweep(ctx)
		if err != nil {
			s.logger.Warn("verification sweep failed", zap.Error(err))
		}
		res.Codes = n
	}
	if s.revocations != nil {
		res.Revocations = s.revocations.Purge()
	}
	if s.counters != nil {
		res.Counters = s.counters.Prune(s.counterIdle)
	}

	if res.Codes+res.Revocations+res.Counters > 0 {
		s.logger.Debug("sweep completed",
			zap.Int("codes", res.Codes),
			zap.Int("revocations", res.Revocations),
			zap.Int("counters", res.Counters))
	}
	return res
}
