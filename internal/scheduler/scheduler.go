package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"portfoliopulse/internal/refresh"
)

// Scheduler triggers refresh runs on a cron cadence. Each run gets a hard
// wall-clock timeout; runs are assumed not to overlap (the cadence exceeds
// the worst-case run duration).
type Scheduler struct {
	Cron       *cron.Cron
	Runner     *refresh.Runner
	RunTimeout time.Duration
	Ctx        context.Context

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, runner *refresh.Runner, runTimeout time.Duration) *Scheduler {
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds()),
		Runner:     runner,
		RunTimeout: runTimeout,
		Ctx:        ctx,
	}
}

// Register registers the refresh job on the given cron expression.
func (s *Scheduler) Register(refreshCron string) error {
	if _, err := s.Cron.AddFunc(refreshCron, s.refreshTask); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunNow executes the refresh task immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.refreshTask()
}

func (s *Scheduler) refreshTask() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Println("[WARN] previous refresh still running, skipping this trigger")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.Ctx, s.RunTimeout)
	defer cancel()

	started := time.Now()
	log.Println("[INFO] refresh run started")
	if err := s.Runner.Run(ctx, started); err != nil {
		log.Printf("[ERROR] refresh run failed: %v", err)
		return
	}
	log.Printf("[INFO] refresh run finished in %s", time.Since(started).Round(time.Millisecond))
}
