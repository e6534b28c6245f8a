package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs full tests on a cron schedule, optionally saving each
// result to the history.
type Scheduler struct {
	mon     *Monitor
	cron    *cron.Cron
	timeout time.Duration

	mu    sync.Mutex
	spec  string
	save  bool
	entry cron.EntryID
}

// NewScheduler creates a stopped Scheduler with no schedule. Each scheduled
// test is bounded by timeout.
func NewScheduler(m *Monitor, timeout time.Duration) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		mon:     m,
		timeout: timeout,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Apply replaces the schedule. An empty spec removes it. Specs use the
// standard five-field format plus descriptors such as "@hourly".
func (s *Scheduler) Apply(spec string, save bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.spec && save == s.save {
		return nil
	}

	var id cron.EntryID
	if spec != "" {
		var err error
		id, err = s.cron.AddFunc(spec, s.runScheduled)
		if err != nil {
			return fmt.Errorf("monitor: schedule %q: %w", spec, err)
		}
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.spec, s.save, s.entry = spec, save, id
	slog.Info("monitor: test schedule applied", "cron", spec, "save", save)
	return nil
}

// Next returns when the next scheduled test runs, or the zero time.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	id := s.entry
	s.mu.Unlock()
	if id == 0 {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Start begins firing scheduled tests in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops the scheduler and waits for a running test to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) runScheduled() {
	s.mu.Lock()
	save := s.save
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.mon.RunFullTest(ctx)
	if err != nil {
		slog.Warn("monitor: scheduled test failed", "err", err)
		return
	}
	slog.Info("monitor: scheduled test complete", "status", res.Status)
	if !save {
		return
	}
	if _, err := s.mon.SaveCurrent(); err != nil {
		slog.Warn("monitor: saving scheduled test", "err", err)
	}
}

// cronLogger routes cron's logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}
