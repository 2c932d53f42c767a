package ratings

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// retryInterval and maxBackoffTime mirror the capped backoff shape
// of the teacher's own watch-plan retry loop, reused here for the
// scheduled ingest: on failure the next attempt backs off quadratically
// in the failure count, capped, rather than hammering the dataset source.
const (
	retryInterval  = 30 * time.Second
	maxBackoffTime = 30 * time.Minute
)

// Scheduler runs an Ingester at a steady interval, with backoff on
// failure, until stopped.
type Scheduler struct {
	ingester *Ingester
	interval time.Duration
	logger   hclog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewScheduler(ingester *Ingester, interval time.Duration, logger hclog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Scheduler{
		ingester: ingester,
		interval: interval,
		logger:   logger.Named("ratings.scheduler"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run blocks, performing an immediate ingest and then one every
// interval, until Stop is called or ctx is canceled. It never returns an
// error: ingest failures are logged and retried, never fatal.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)

	failures := 0
	for {
		if err := s.ingester.Run(ctx); err != nil {
			failures++
			retry := retryInterval * time.Duration(failures*failures)
			if retry > maxBackoffTime {
				retry = maxBackoffTime
			}
			s.logger.Warn("ingest cycle failed, backing off", "error", err, "next_attempt_in", retry)
			if !s.sleep(ctx, retry) {
				return
			}
			continue
		}

		failures = 0
		if !s.sleep(ctx, s.interval) {
			return
		}
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// Stop requests the scheduler loop exit and blocks until it has.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}
