// Package session implements per-conversation persistence and the
// structured-context construction that replaces raw transcript replay when
// feeding history back to the model.
package session

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nanobot-run/nanobot/pkg/providers"
)

// ToolAction is the canonical compressed form of an older tool use,
// attached to the assistant record whose turn invoked it.
type ToolAction struct {
	Tool        string `json:"tool"`
	ArgsSummary string `json:"args_summary"`
	Outcome     string `json:"outcome"`
}

// Message is one record in a session's append-only log.
type Message struct {
	Role        string               `json:"role"` // user, assistant, tool, system
	Content     string               `json:"content"`
	Timestamp   time.Time            `json:"timestamp"`
	ToolCalls   []providers.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID  string               `json:"tool_call_id,omitempty"`
	ToolActions []ToolAction         `json:"tool_actions,omitempty"`
}

// TaskEntry is one row of the LLM-maintained task list.
type TaskEntry struct {
	Task   string `json:"task"`
	Status string `json:"status"` // pending, in_progress, completed
}

// Metadata holds session-level state outside the message log proper.
type Metadata struct {
	TaskList   []TaskEntry       `json:"task_list,omitempty"`
	ServerSide bool              `json:"server_side,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

const maxTaskListLen = 10

// Session is one conversation's full state: key, ordered messages, and
// metadata (including the task list).
type Session struct {
	Key       string    `json:"key"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Metadata  Metadata  `json:"metadata"`

	mu sync.Mutex
}

// New creates a fresh, empty session for the given key.
func New(key string) *Session {
	now := time.Now().UTC()
	return &Session{
		Key:       key,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage appends a record and advances UpdatedAt.
func (s *Session) AddMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	s.Messages = append(s.Messages, m)
	if m.Timestamp.After(s.UpdatedAt) {
		s.UpdatedAt = m.Timestamp
	}
}

// SetTaskList replaces the task list, enforcing the 10-entry cap.
func (s *Session) SetTaskList(tasks []TaskEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(tasks) > maxTaskListLen {
		tasks = tasks[:maxTaskListLen]
	}
	s.Metadata.TaskList = tasks
	s.UpdatedAt = time.Now().UTC()
}

// StructuredContext is the {recent_pairs, task_list, tool_log} triple fed
// to the model in place of the raw transcript.
type StructuredContext struct {
	RecentPairs []Message
	TaskList    []TaskEntry
	ToolLog     []ToolAction
}

// pair is an (assistant-index, user-index) adjacency: an assistant record
// at i preceded by a user record at i-1.
type pair struct {
	userIdx, assistantIdx int
}

// GetStructuredContext selects recent pairs with recency extension:
// keep at least minPairs trailing pairs, extend further
// back while a pair's timestamp is within recencyMinutes of now, hard-cap
// at maxPairs. Tool-action summaries from assistant records NOT among the
// selected pairs are returned as tool_log, most recent maxToolEntries kept.
func (s *Session) GetStructuredContext(minPairs, recencyMinutes, maxPairs, maxToolEntries int) StructuredContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pairs []pair
	for i := len(s.Messages) - 1; i > 0; i-- {
		if s.Messages[i].Role != "assistant" {
			continue
		}
		if s.Messages[i-1].Role != "user" {
			continue
		}
		pairs = append([]pair{{userIdx: i - 1, assistantIdx: i}}, pairs...)
	}

	cutoff := time.Now().UTC().Add(-time.Duration(recencyMinutes) * time.Minute)

	var selected []pair
	if len(pairs) > 0 {
		start := len(pairs) - minPairs
		if start < 0 {
			start = 0
		}
		// Walk further back than the min-pairs floor while still in window.
		for start > 0 {
			candidate := pairs[start-1]
			ts := s.Messages[candidate.assistantIdx].Timestamp
			if ts.Before(cutoff) {
				break
			}
			start--
		}
		if len(pairs)-start > maxPairs {
			start = len(pairs) - maxPairs
		}
		selected = pairs[start:]
	}

	selectedIdx := make(map[int]bool, len(selected)*2)
	for _, p := range selected {
		selectedIdx[p.userIdx] = true
		selectedIdx[p.assistantIdx] = true
	}

	recent := make([]Message, 0, len(selected)*2)
	for _, p := range selected {
		recent = append(recent, Message{Role: "user", Content: s.Messages[p.userIdx].Content})
		recent = append(recent, Message{Role: "assistant", Content: s.Messages[p.assistantIdx].Content})
	}

	var toolLog []ToolAction
	for i, m := range s.Messages {
		if m.Role != "assistant" || len(m.ToolActions) == 0 {
			continue
		}
		if selectedIdx[i] {
			continue
		}
		toolLog = append(toolLog, m.ToolActions...)
	}
	if len(toolLog) > maxToolEntries {
		toolLog = toolLog[len(toolLog)-maxToolEntries:]
	}

	taskList := make([]TaskEntry, len(s.Metadata.TaskList))
	copy(taskList, s.Metadata.TaskList)

	return StructuredContext{
		RecentPairs: recent,
		TaskList:    taskList,
		ToolLog:     toolLog,
	}
}

// SummarizeArgs truncates a tool-call argument map to 200 chars for the
// tool_actions record.
func SummarizeArgs(args map[string]interface{}) string {
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return truncateRunes(string(data), 200)
}

// SummarizeOutcome truncates a tool's result string to 300 chars, prefixed
// "ERROR: " or "OK: " depending on whether the result looks like an error,
// keeping only the first line.
func SummarizeOutcome(result string, isError bool) string {
	firstLine := result
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}

	prefix := "OK: "
	if isError || strings.HasPrefix(strings.ToLower(strings.TrimSpace(result)), "error") {
		prefix = "ERROR: "
	}

	budget := 300 - len(prefix)
	if budget < 0 {
		budget = 0
	}
	return prefix + truncateRunes(firstLine, budget)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// taskListRe extracts the first bracketed JSON array span, greedily, as the
// task-list updater's parsing rule requires.
var taskListRe = regexp.MustCompile(`(?s)\[.*\]`)

// ParseTaskListResponse extracts and validates a bare JSON array of
// {task, status} objects from a secondary LLM call's text response. Any
// failure returns (nil, false) so the caller leaves the task list unchanged.
func ParseTaskListResponse(text string) ([]TaskEntry, bool) {
	match := taskListRe.FindString(text)
	if match == "" {
		return nil, false
	}

	var raw []map[string]interface{}
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, false
	}

	entries := make([]TaskEntry, 0, len(raw))
	for _, item := range raw {
		task, ok := item["task"].(string)
		if !ok {
			continue
		}
		task = truncateRunes(task, 80)

		status, _ := item["status"].(string)
		switch status {
		case "pending", "in_progress", "completed":
		default:
			status = "pending"
		}

		entries = append(entries, TaskEntry{Task: task, Status: status})
		if len(entries) == maxTaskListLen {
			break
		}
	}

	return entries, true
}

// safeFilename replaces ":" with "_" and strips characters unsafe in a
// filename.
func safeFilename(key string) string {
	key = strings.ReplaceAll(key, ":", "_")
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// pathFor returns <dir>/<safe_key>.jsonl for key.
func pathFor(dir, key string) string {
	return filepath.Join(dir, safeFilename(key)+".jsonl")
}
