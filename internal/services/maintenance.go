package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"studygroup-backend/internal/metrics"
)

const staleJobMessage = "job timed out"

type StaleJobSweeper interface {
	FailStale(ctx context.Context, cutoff time.Time, message string) ([]uuid.UUID, error)
}

// MaintenanceScheduler runs periodic housekeeping. Today that is failing
// analysis jobs whose worker died mid-flight.
type MaintenanceScheduler struct {
	cron       *cron.Cron
	jobs       StaleJobSweeper
	metrics    *metrics.Metrics
	staleAfter time.Duration
	now        func() time.Time
}

func NewMaintenanceScheduler(jobs StaleJobSweeper, m *metrics.Metrics, staleAfter time.Duration) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		cron:       cron.New(cron.WithSeconds()),
		jobs:       jobs,
		metrics:    m,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (s *MaintenanceScheduler) Start() error {
	// Every minute, on the half minute.
	if _, err := s.cron.AddFunc("30 * * * * *", func() {
		s.SweepStaleJobs(context.Background())
	}); err != nil {
		return err
	}

	s.cron.Start()
	log.Printf("Maintenance scheduler started (stale after %s)", s.staleAfter)
	return nil
}

func (s *MaintenanceScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Maintenance scheduler stopped")
}

// SweepStaleJobs fails jobs stuck in processing, or never picked up, for longer than staleAfter.
func (s *MaintenanceScheduler) SweepStaleJobs(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ids, err := s.jobs.FailStale(ctx, s.now().Add(-s.staleAfter), staleJobMessage)
	if err != nil {
		log.Printf("stale job sweep: %v", err)
		return 0
	}
	for _, id := range ids {
		log.Printf("Job %s failed: %s", id, staleJobMessage)
	}
	s.metrics.StaleJobsFailed.Add(float64(len(ids)))
	return len(ids)
}
