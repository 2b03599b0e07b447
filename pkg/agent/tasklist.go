package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nanobot-run/nanobot/pkg/logger"
	"github.com/nanobot-run/nanobot/pkg/providers"
	"github.com/nanobot-run/nanobot/pkg/session"
)

const taskListUpdatePrompt = `You maintain a task list for an ongoing conversation.

CURRENT TASK LIST:
%s

USER MESSAGE:
%s

TOOLS USED THIS TURN:
%s

ASSISTANT RESPONSE (truncated):
%s

Return a bare JSON array of {"task": "...", "status": "pending|in_progress|completed"}
objects reflecting the updated task list. Return ONLY the JSON array, nothing else.`

// TaskListUpdater runs the secondary LLM call that refreshes a session's
// task list after a turn, and optionally reports the result to a
// server-side collaborator.
type TaskListUpdater struct {
	provider        providers.LLMProvider
	model           string
	serverEndpoint  string
	nanobotToken    string
	client          *resty.Client
}

// NewTaskListUpdater builds an updater. serverEndpoint may be empty, in
// which case the post-update server-side POST is skipped.
func NewTaskListUpdater(provider providers.LLMProvider, model, serverEndpoint, nanobotToken string) *TaskListUpdater {
	return &TaskListUpdater{
		provider:       provider,
		model:          model,
		serverEndpoint: serverEndpoint,
		nanobotToken:   nanobotToken,
		client:         resty.New().SetTimeout(15 * time.Second),
	}
}

// Update runs the secondary LLM call and, on success, rewrites sess's task
// list. When sess.Metadata.ServerSide is set it also POSTs the new list to
// the server-side endpoint. Any failure is silent: the task list is left
// unchanged.
func (u *TaskListUpdater) Update(ctx context.Context, sess *session.Session, userMessage string, toolsUsed []string, assistantResponse string) {
	currentList := formatTaskListForPrompt(sess.Metadata.TaskList)
	toolSummary := "(none)"
	if len(toolsUsed) > 0 {
		toolSummary = fmt.Sprintf("%v", toolsUsed)
	}

	prompt := fmt.Sprintf(taskListUpdatePrompt, currentList, userMessage, toolSummary, truncateForPrompt(assistantResponse, 500))

	resp, err := u.provider.Chat(ctx, []providers.Message{
		{Role: "user", Content: prompt},
	}, nil, u.model, map[string]interface{}{
		"max_tokens":  512,
		"temperature": 0.1,
	})
	if err != nil {
		logger.WarnCF("agent", "task list update LLM call failed", map[string]interface{}{"error": err.Error()})
		return
	}

	tasks, ok := session.ParseTaskListResponse(resp.Content)
	if !ok {
		return
	}

	sess.SetTaskList(tasks)

	if sess.Metadata.ServerSide && u.serverEndpoint != "" {
		u.postToServer(ctx, sess.Key, tasks)
	}
}

func (u *TaskListUpdater) postToServer(ctx context.Context, sessionKey string, tasks []session.TaskEntry) {
	_, err := u.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"session_id":    sessionKey,
			"task_list":     tasks,
			"nanobot_token": u.nanobotToken,
		}).
		Post(u.serverEndpoint)
	if err != nil {
		logger.WarnCF("agent", "task list server-side POST failed", map[string]interface{}{"error": err.Error()})
	}
}

func formatTaskListForPrompt(tasks []session.TaskEntry) string {
	if len(tasks) == 0 {
		return "(empty)"
	}
	var out string
	for _, t := range tasks {
		out += fmt.Sprintf("- [%s] %s\n", t.Status, t.Task)
	}
	return out
}

func truncateForPrompt(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
