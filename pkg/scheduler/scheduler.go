package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/store"
	"go.uber.org/zap"
)

// IRebuilder rebuilds and publishes the merkle root
type IRebuilder interface {
	Rebuild(ctx context.Context) (*store.Snapshot, error)
}

// Scheduler rebuilds the merkle root once a day at a fixed UTC hour and on demand
// through TriggerChannel.
type Scheduler struct {
	// TriggerChannel requests an out-of-schedule rebuild
	TriggerChannel chan string

	rebuilder IRebuilder
	hourUTC   int
	logger    *zap.Logger

	now      func() time.Time
	newTimer func(time.Duration) timer
}

// timer is the subset of *time.Timer the run loop needs
type timer interface {
	C() <-chan time.Time
	Stop() bool
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

func newRealTimer(d time.Duration) timer {
	return realTimer{t: time.NewTimer(d)}
}

// NewScheduler creates a scheduler that rebuilds once a day at hourUTC.
func NewScheduler(rebuilder IRebuilder, hourUTC int, logger *zap.Logger) (*Scheduler, error) {
	if hourUTC < 0 || hourUTC > 23 {
		return nil, fmt.Errorf("rebuild hour must be between 0-23, got %d", hourUTC)
	}
	return &Scheduler{
		// a single pending trigger is enough; more would rebuild the same data
		TriggerChannel: make(chan string, 1),
		rebuilder:      rebuilder,
		hourUTC:        hourUTC,
		logger:         logger,
		now:            time.Now,
		newTimer:       newRealTimer,
	}, nil
}

// NextRun returns the first instant strictly after now that falls on hourUTC:00:00 UTC.
func NextRun(now time.Time, hourUTC int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Trigger requests a rebuild without waiting for it. Requests made while one
// is already pending are dropped.
func (s *Scheduler) Trigger(reason string) bool {
	select {
	case s.TriggerChannel <- reason:
		s.logger.Sugar().Debugw("Rebuild trigger queued", "reason", reason)
		return true
	default:
		s.logger.Sugar().Warnw("Rebuild already pending, dropping trigger", "reason", reason)
		return false
	}
}

// Run blocks until ctx is done, rebuilding at the configured hour each day and
// whenever a trigger arrives. A failed rebuild is logged and waits for the next run.
func (s *Scheduler) Run(ctx context.Context) {
	sugar := s.logger.Sugar()

	for {
		next := NextRun(s.now(), s.hourUTC)
		wait := next.Sub(s.now())
		if wait < 0 {
			wait = 0
		}
		sugar.Infow("Next scheduled merkle rebuild", "at", next, "in", wait)

		t := s.newTimer(wait)
		select {
		case <-t.C():
			s.rebuild(ctx, "scheduled")
		case reason := <-s.TriggerChannel:
			t.Stop()
			s.rebuild(ctx, reason)
		case <-ctx.Done():
			t.Stop()
			sugar.Info("Scheduler exiting due to context done")
			return
		}
	}
}

func (s *Scheduler) rebuild(ctx context.Context, reason string) {
	snapshot, err := s.rebuilder.Rebuild(ctx)
	if err != nil {
		s.logger.Sugar().Errorw("Merkle rebuild failed", "reason", reason, "error", err)
		return
	}
	s.logger.Sugar().Infow("Merkle rebuild finished",
		"reason", reason,
		"version", snapshot.ID.String(),
		"root", snapshot.RootHex())
}
