package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/strefethen/yamaha-remote-go/internal/api"
)

const (
	// DefaultSchedule resyncs twice a minute.
	DefaultSchedule = "@every 30s"

	// DefaultTimeout bounds one resync.
	DefaultTimeout = 10 * time.Second
)

// Refresher re-reads receiver state. *yamaha.Receiver implements it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Status describes the most recent resync.
type Status struct {
	LastRunAt           time.Time
	LastError           string
	ConsecutiveFailures int
}

// ResyncRunner periodically refreshes the cached receiver state so that
// changes made from the front panel or the IR remote are picked up.
type ResyncRunner struct {
	logger    *log.Logger
	refresher Refresher
	schedule  string
	timeout   time.Duration
	cron      *cron.Cron

	runMu sync.Mutex

	mu     sync.RWMutex
	status Status
}

// NewResyncRunner creates a runner. Empty schedule or zero timeout use the
// defaults.
func NewResyncRunner(logger *log.Logger, refresher Refresher, schedule string, timeout time.Duration) *ResyncRunner {
	if logger == nil {
		logger = log.Default()
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ResyncRunner{
		logger:    logger,
		refresher: refresher,
		schedule:  schedule,
		timeout:   timeout,
	}
}

// Start schedules the resync job. It does not run one immediately.
func (r *ResyncRunner) Start() error {
	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := r.cron.AddFunc(r.schedule, func() { _ = r.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("invalid resync schedule %q: %w", r.schedule, err)
	}

	r.logger.Printf("SCHEDULER: receiver resync scheduled (%s)", r.schedule)
	r.cron.Start()
	return nil
}

// Stop stops the schedule and waits for a running resync to finish.
func (r *ResyncRunner) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.logger.Println("SCHEDULER: receiver resync stopped")
}

// RunOnce refreshes the receiver now. Each run gets its own request ID so its
// exchanges can be found in the command history.
func (r *ResyncRunner) RunOnce(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx = api.WithRequestID(ctx, "resync-"+uuid.NewString())

	err := r.refresher.Refresh(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.LastRunAt = time.Now()
	if err != nil {
		r.status.LastError = err.Error()
		r.status.ConsecutiveFailures++
		if r.status.ConsecutiveFailures == 1 {
			r.logger.Printf("SCHEDULER: receiver resync failed: %v", err)
		}
		return err
	}
	if r.status.ConsecutiveFailures > 0 {
		r.logger.Printf("SCHEDULER: receiver resync recovered after %d failures", r.status.ConsecutiveFailures)
	}
	r.status.LastError = ""
	r.status.ConsecutiveFailures = 0
	return nil
}

// Status returns the outcome of the most recent resync.
func (r *ResyncRunner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}
