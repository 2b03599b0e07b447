package tools

import (
	"context"
	"strings"
	"testing"
)

type fakeScheduler struct {
	added    []CronJobSpec
	removed  []string
	addErr   error
}

func (f *fakeScheduler) AddJob(job CronJobSpec) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, job)
	return nil
}

func (f *fakeScheduler) RemoveJob(name string) {
	f.removed = append(f.removed, name)
}

func TestCronToolScheduleRegistersJob(t *testing.T) {
	sched := &fakeScheduler{}
	tool := NewCronTool(sched)

	result := tool.Execute(context.Background(), map[string]interface{}{
		"action": "schedule", "name": "daily", "schedule": "0 9 * * *", "prompt": "check in",
	})

	if result.IsError {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(sched.added) != 1 || sched.added[0].Name != "daily" {
		t.Fatalf("expected job registered on scheduler, got %+v", sched.added)
	}
}

func TestCronToolCancelRemovesJob(t *testing.T) {
	sched := &fakeScheduler{}
	tool := NewCronTool(sched)

	result := tool.Execute(context.Background(), map[string]interface{}{"action": "cancel", "name": "daily"})

	if result.IsError {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(sched.removed) != 1 || sched.removed[0] != "daily" {
		t.Fatalf("expected job removed on scheduler, got %+v", sched.removed)
	}
}

func TestCronToolScheduleRequiresScheduleAndPrompt(t *testing.T) {
	tool := NewCronTool(&fakeScheduler{})

	result := tool.Execute(context.Background(), map[string]interface{}{"action": "schedule", "name": "daily"})

	if !result.IsError {
		t.Fatalf("expected error when schedule/prompt missing")
	}
}

func TestCronToolUnknownActionErrors(t *testing.T) {
	tool := NewCronTool(&fakeScheduler{})

	result := tool.Execute(context.Background(), map[string]interface{}{"action": "frobnicate", "name": "x"})

	if !result.IsError {
		t.Fatalf("expected error for unknown action")
	}
}

func TestCronToolNilSchedulerAlwaysErrors(t *testing.T) {
	tool := NewCronTool(nil)

	result := tool.Execute(context.Background(), map[string]interface{}{"action": "schedule", "name": "daily", "schedule": "* * * * *", "prompt": "p"})

	if !result.IsError || !strings.Contains(result.ForLLM, "not configured") {
		t.Fatalf("expected not-configured error, got %+v", result)
	}
}

func TestCronToolSetContextImplementsContextualTool(t *testing.T) {
	tool := NewCronTool(&fakeScheduler{})
	var ct ContextualTool = tool
	ct.SetContext("telegram", "c1")

	if tool.channel != "telegram" || tool.chatID != "c1" {
		t.Fatalf("expected context threaded, got %+v", tool)
	}
}
