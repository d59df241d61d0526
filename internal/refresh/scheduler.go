package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "dbcal/internal/log"
)

// Job is one step of a refresh cycle.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs its jobs in order on a cron schedule. Cycles never
// overlap; a tick that fires while a cycle is running is skipped.
type Scheduler struct {
	spec string
	jobs []Job
	cron *cron.Cron

	mu sync.Mutex
}

// NewScheduler validates spec, a standard five-field cron expression or a
// descriptor such as "@every 10m".
func NewScheduler(spec string, jobs ...Job) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	return &Scheduler{
		spec: spec,
		jobs: jobs,
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}, nil
}

// RunOnce runs every job once. Later jobs still run when an earlier one
// fails.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, j := range s.jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := j.Run(ctx); err != nil {
			appLog.Error("refresh job failed", err, "job", j.Name)
			errs = append(errs, fmt.Errorf("%s: %w", j.Name, err))
			continue
		}
		appLog.Debug("refresh job done", "job", j.Name)
	}
	return errors.Join(errs...)
}

// Start schedules RunOnce until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { _ = s.RunOnce(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	appLog.Info("refresh scheduled", "spec", s.spec, "jobs", len(s.jobs))

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	return nil
}
