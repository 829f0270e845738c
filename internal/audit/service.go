package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strefethen/yamaha-remote-go/internal/api"
	"github.com/strefethen/yamaha-remote-go/internal/config"
	"github.com/strefethen/yamaha-remote-go/internal/yamaha/ync"
)

// Default configuration values
const (
	DefaultRetentionDays   = 7
	DefaultPruneSchedule   = "@daily"
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	MaxConsecutiveFailures = 3
)

// Service records receiver exchanges and prunes old history.
type Service struct {
	logger        *log.Logger
	repo          *Repository
	retentionDays int
	pruneSchedule string
	cron          *cron.Cron

	healthMu            sync.RWMutex
	healthy             bool
	consecutiveFailures int
}

// NewService creates a new audit service.
func NewService(cfg config.Config, dbPair DBPair, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	retention := cfg.AuditRetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}
	schedule := cfg.AuditPruneSchedule
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}

	return &Service{
		logger:        logger,
		repo:          NewRepository(dbPair),
		retentionDays: retention,
		pruneSchedule: schedule,
		healthy:       true,
	}
}

// RecordExchange stores one exchange. It implements ync.Recorder; storage
// failures are logged and never reach the caller of the exchange.
func (s *Service) RecordExchange(ctx context.Context, exchange ync.Exchange) {
	input := WriteInput{
		Command:    string(exchange.Command),
		Fragment:   exchange.Fragment,
		ZonePath:   exchange.ZonePath,
		DurationMs: exchange.Duration,
		Outcome:    OutcomeOf(exchange),
	}
	if exchange.RC != nil {
		code := int(*exchange.RC)
		input.ResultCode = &code
	}
	if exchange.Err != nil {
		text := exchange.Err.Error()
		input.Error = &text
	}
	if requestID := api.RequestIDFromContext(ctx); requestID != "" {
		input.RequestID = &requestID
	}

	if _, err := s.repo.Insert(input); err != nil {
		s.recordFailure()
		s.logger.Printf("AUDIT: failed to record exchange: %v", err)
		return
	}
	s.recordSuccess()
}

// Query returns matching records, the total count and whether more exist.
func (s *Service) Query(filters QueryFilters) ([]Record, int, bool, error) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}

	records, total, err := s.repo.Query(filters)
	if err != nil {
		s.recordFailure()
		return nil, 0, false, fmt.Errorf("failed to query exchanges: %w", err)
	}
	s.recordSuccess()

	return records, total, filters.Offset+len(records) < total, nil
}

// Prune deletes history older than the retention window.
func (s *Service) Prune() (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	count, err := s.repo.PruneBefore(cutoff)
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to prune exchanges: %w", err)
	}
	s.recordSuccess()
	return count, nil
}

// StartPruneJob prunes once now and then on the configured cron schedule.
func (s *Service) StartPruneJob() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.pruneSchedule, s.runPrune); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.pruneSchedule, err)
	}

	s.logger.Printf("AUDIT: prune job scheduled (%s, retention: %d days)", s.pruneSchedule, s.retentionDays)
	s.runPrune()
	s.cron.Start()
	return nil
}

// StopPruneJob stops the schedule and waits for a running prune to finish.
func (s *Service) StopPruneJob() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *Service) runPrune() {
	count, err := s.Prune()
	if err != nil {
		s.logger.Printf("AUDIT: %v", err)
		return
	}
	if count > 0 {
		s.logger.Printf("AUDIT: pruned %d exchanges", count)
	}
}

// IsHealthy reports false after repeated storage failures.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}
