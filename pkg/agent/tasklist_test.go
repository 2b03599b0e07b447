package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/nanobot-run/nanobot/pkg/providers"
	"github.com/nanobot-run/nanobot/pkg/session"
)

func TestTaskListUpdaterRewritesList(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{Content: `Here you go:
[{"task": "ship the release", "status": "in_progress"},
 {"task": "write changelog", "status": "bogus"}]`},
	}}
	updater := NewTaskListUpdater(provider, "test-model", "", "")
	sess := session.New("telegram:u1")

	updater.Update(context.Background(), sess, "how's the release going?", []string{"read_file"}, "On it.")

	if len(sess.Metadata.TaskList) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(sess.Metadata.TaskList))
	}
	if sess.Metadata.TaskList[0].Status != "in_progress" {
		t.Fatalf("unexpected status: %q", sess.Metadata.TaskList[0].Status)
	}
	if sess.Metadata.TaskList[1].Status != "pending" {
		t.Fatalf("unknown status should coerce to pending, got %q", sess.Metadata.TaskList[1].Status)
	}
}

func TestTaskListUpdaterLeavesListOnUnparseableResponse(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{Content: "I couldn't come up with a task list, sorry."},
	}}
	updater := NewTaskListUpdater(provider, "test-model", "", "")
	sess := session.New("telegram:u1")
	sess.SetTaskList([]session.TaskEntry{{Task: "existing", Status: "pending"}})

	updater.Update(context.Background(), sess, "hi", nil, "hello")

	if len(sess.Metadata.TaskList) != 1 || sess.Metadata.TaskList[0].Task != "existing" {
		t.Fatalf("task list should be unchanged, got %+v", sess.Metadata.TaskList)
	}
}

func TestTaskListUpdaterLeavesListOnProviderError(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("timeout")}
	updater := NewTaskListUpdater(provider, "test-model", "", "")
	sess := session.New("telegram:u1")
	sess.SetTaskList([]session.TaskEntry{{Task: "existing", Status: "pending"}})

	updater.Update(context.Background(), sess, "hi", nil, "hello")

	if len(sess.Metadata.TaskList) != 1 {
		t.Fatalf("task list should be unchanged on LLM failure, got %+v", sess.Metadata.TaskList)
	}
}

func TestFormatTaskListForPrompt(t *testing.T) {
	if got := formatTaskListForPrompt(nil); got != "(empty)" {
		t.Fatalf("expected (empty), got %q", got)
	}
	got := formatTaskListForPrompt([]session.TaskEntry{{Task: "a", Status: "pending"}})
	if got != "- [pending] a\n" {
		t.Fatalf("unexpected rendering: %q", got)
	}
}
