package tools

import (
	"context"
	"fmt"
	"strings"
)

// CronScheduler is the subset of agent.Scheduler the cron tool drives.
// Declared here (rather than importing package agent) to avoid an
// agent<->tools import cycle; agent already imports tools for the
// registry.
type CronScheduler interface {
	AddJob(job CronJobSpec) error
	RemoveJob(name string)
}

// CronJobSpec mirrors agent.CronJob's fields; agent.Scheduler's
// AsToolScheduler adapts between the two.
type CronJobSpec struct {
	Name     string
	Schedule string
	Prompt   string
}

// CronTool lets the model schedule or cancel its own future heartbeat
// turns (action "schedule" / "cancel"). SetContext records the
// originating channel/chat, but Execute does not use them: jobs are keyed
// by name alone, so a cancel removes the named job whichever conversation
// scheduled it, and the synthesized heartbeat always re-enters as a
// system-channel message.
type CronTool struct {
	scheduler CronScheduler

	channel string
	chatID  string
}

// NewCronTool builds a cron tool over scheduler. A nil scheduler makes the
// tool always report an error (cron scheduling not configured).
func NewCronTool(scheduler CronScheduler) *CronTool {
	return &CronTool{scheduler: scheduler}
}

func (t *CronTool) Name() string { return "cron" }

func (t *CronTool) Description() string {
	return "Schedule or cancel a recurring heartbeat turn. action=\"schedule\" registers name/schedule/prompt (schedule is a standard five-field cron expression); action=\"cancel\" removes a previously scheduled job by name."
}

func (t *CronTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{"schedule", "cancel"},
			},
			"name":     map[string]interface{}{"type": "string", "description": "unique job name"},
			"schedule": map[string]interface{}{"type": "string", "description": "five-field cron expression, required for action=schedule"},
			"prompt":   map[string]interface{}{"type": "string", "description": "text to inject as the heartbeat turn's message, required for action=schedule"},
		},
		"required": []string{"action", "name"},
	}
}

// SetContext implements ContextualTool.
func (t *CronTool) SetContext(channel, chatID string) {
	t.channel = channel
	t.chatID = chatID
}

func (t *CronTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	if t.scheduler == nil {
		return ErrorResult("cron scheduling is not configured")
	}

	action, _ := args["action"].(string)
	name, _ := args["name"].(string)
	if strings.TrimSpace(name) == "" {
		return ErrorResult("name is required")
	}

	switch action {
	case "schedule":
		schedule, _ := args["schedule"].(string)
		prompt, _ := args["prompt"].(string)
		if schedule == "" || prompt == "" {
			return ErrorResult("schedule and prompt are required for action=schedule")
		}
		if err := t.scheduler.AddJob(CronJobSpec{Name: name, Schedule: schedule, Prompt: prompt}); err != nil {
			return ErrorResult(err.Error())
		}
		return &ToolResult{ForLLM: fmt.Sprintf("Scheduled job %q (%s).", name, schedule)}
	case "cancel":
		t.scheduler.RemoveJob(name)
		return &ToolResult{ForLLM: fmt.Sprintf("Cancelled job %q.", name)}
	default:
		return ErrorResult("action must be \"schedule\" or \"cancel\"")
	}
}
