package agent

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nanobot-run/nanobot/pkg/bus"
	"github.com/nanobot-run/nanobot/pkg/logger"
	"github.com/nanobot-run/nanobot/pkg/tools"
)

// cronTickInterval bounds how often the scheduler re-evaluates its jobs.
// Standard five-field cron expressions have a one-minute resolution, so
// there is no benefit to polling faster.
const cronTickInterval = time.Minute

// CronJob is one scheduled heartbeat: a standard five-field cron
// expression paired with the prompt to synthesize as an inbound turn when
// it fires.
type CronJob struct {
	Name     string
	Schedule string
	Prompt   string
}

// Scheduler runs cron jobs by synthesizing a system-channel InboundMessage
// on each job's schedule, so the turn engine processes a heartbeat turn
// exactly like any other message.
type Scheduler struct {
	bus   *bus.Bus
	gronx *gronx.Gronx

	mu   sync.Mutex
	jobs map[string]CronJob
	last map[string]time.Time
}

// NewScheduler builds a scheduler seeded with the given jobs. Jobs can
// also be added or removed at runtime through AddJob/RemoveJob, which
// back the "cron" tool's schedule/cancel actions (jobs are keyed by name
// alone).
func NewScheduler(b *bus.Bus, jobs []CronJob) *Scheduler {
	s := &Scheduler{
		bus:   b,
		gronx: gronx.New(),
		jobs:  make(map[string]CronJob, len(jobs)),
		last:  make(map[string]time.Time, len(jobs)),
	}
	for _, j := range jobs {
		s.jobs[j.Name] = j
	}
	return s
}

// AddJob registers or replaces a job by name.
func (s *Scheduler) AddJob(job CronJob) error {
	if !s.gronx.IsValid(job.Schedule) {
		return &invalidScheduleError{schedule: job.Schedule}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = job
	return nil
}

// RemoveJob unregisters a job by name. A missing name is a no-op.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
	delete(s.last, name)
}

// Jobs returns a snapshot of the currently registered jobs.
func (s *Scheduler) Jobs() []CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CronJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// Run ticks once a minute, checking each job's expression against the
// current moment and publishing a synthetic inbound turn for any job that
// is due and has not already fired this minute.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(cronTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]CronJob, 0)
	for name, job := range s.jobs {
		ok, err := s.gronx.IsDue(job.Schedule, now)
		if err != nil {
			logger.WarnCF("cron", "invalid schedule", map[string]interface{}{"job": name, "schedule": job.Schedule, "error": err.Error()})
			continue
		}
		if !ok {
			continue
		}
		if last, fired := s.last[name]; fired && now.Sub(last) < cronTickInterval {
			continue
		}
		s.last[name] = now
		due = append(due, job)
	}
	s.mu.Unlock()

	for _, job := range due {
		logger.InfoCF("cron", "job due", map[string]interface{}{"job": job.Name})
		s.bus.PublishInbound(ctx, bus.InboundMessage{
			Channel:   "system",
			SenderID:  "cron",
			ChatID:    "cron:" + job.Name,
			Content:   job.Prompt,
			Timestamp: now,
		})
	}
}

// AsToolScheduler adapts Scheduler to tools.CronScheduler, letting the
// cron tool register/cancel jobs without pkg/tools importing pkg/agent.
func (s *Scheduler) AsToolScheduler() tools.CronScheduler {
	return schedulerAdapter{s}
}

type schedulerAdapter struct {
	s *Scheduler
}

func (a schedulerAdapter) AddJob(job tools.CronJobSpec) error {
	return a.s.AddJob(CronJob{Name: job.Name, Schedule: job.Schedule, Prompt: job.Prompt})
}

func (a schedulerAdapter) RemoveJob(name string) {
	a.s.RemoveJob(name)
}

type invalidScheduleError struct {
	schedule string
}

func (e *invalidScheduleError) Error() string {
	return "invalid cron schedule: " + e.schedule
}
