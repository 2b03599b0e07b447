package agent

import (
	"context"
	"testing"
	"time"

	"github.com/nanobot-run/nanobot/pkg/bus"
	"github.com/nanobot-run/nanobot/pkg/tools"
)

func TestSchedulerTickPublishesDueJob(t *testing.T) {
	b := bus.New(4)
	s := NewScheduler(b, []CronJob{{Name: "daily", Schedule: "* * * * *", Prompt: "check in"}})

	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	s.tick(context.Background(), now)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatalf("expected a synthesized inbound message")
	}
	if msg.Channel != "system" || msg.ChatID != "cron:daily" || msg.Content != "check in" {
		t.Fatalf("unexpected inbound message: %+v", msg)
	}
}

func TestSchedulerTickSkipsAlreadyFiredJobWithinSameMinute(t *testing.T) {
	b := bus.New(4)
	s := NewScheduler(b, []CronJob{{Name: "daily", Schedule: "* * * * *", Prompt: "check in"}})

	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	s.tick(context.Background(), now)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, ok := b.ConsumeInbound(ctx); !ok {
		t.Fatalf("expected the first tick to fire")
	}

	s.tick(context.Background(), now.Add(30*time.Second))

	ctx2, cancel2 := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel2()
	if _, ok := b.ConsumeInbound(ctx2); ok {
		t.Fatalf("expected only one fire within the same minute")
	}
}

func TestSchedulerAddJobRejectsInvalidSchedule(t *testing.T) {
	b := bus.New(4)
	s := NewScheduler(b, nil)

	if err := s.AddJob(CronJob{Name: "bad", Schedule: "not a cron expr", Prompt: "x"}); err == nil {
		t.Fatalf("expected an error for an invalid schedule")
	}
}

func TestSchedulerAddAndRemoveJob(t *testing.T) {
	b := bus.New(4)
	s := NewScheduler(b, nil)

	if err := s.AddJob(CronJob{Name: "daily", Schedule: "* * * * *", Prompt: "check in"}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if len(s.Jobs()) != 1 {
		t.Fatalf("expected 1 job registered")
	}

	s.RemoveJob("daily")
	if len(s.Jobs()) != 0 {
		t.Fatalf("expected job removed")
	}
}

func TestSchedulerAsToolSchedulerAdapter(t *testing.T) {
	b := bus.New(4)
	s := NewScheduler(b, nil)
	ts := s.AsToolScheduler()

	if err := ts.AddJob(tools.CronJobSpec{Name: "weekly", Schedule: "0 9 * * 1", Prompt: "standup"}); err != nil {
		t.Fatalf("AddJob via adapter: %v", err)
	}
	if len(s.Jobs()) != 1 {
		t.Fatalf("expected adapter to register a job on the underlying scheduler")
	}

	ts.RemoveJob("weekly")
	if len(s.Jobs()) != 0 {
		t.Fatalf("expected adapter to remove the job on the underlying scheduler")
	}
}
