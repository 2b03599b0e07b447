package metrics

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestTrackerRecordAppendsJSONLWithCost(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir, nil)

	tr.Record(TokenEvent{SessionKey: "telegram:u1", Model: "claude-sonnet-4-5-20250929", InputTokens: 1_000_000, OutputTokens: 1_000_000})

	lines := readLines(t, filepath.Join(dir, "metrics", "tokens.jsonl"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var event TokenEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Timestamp == "" {
		t.Error("expected a stamped timestamp")
	}
	if event.CostUSD != 18.0 {
		t.Errorf("expected cost 3.0 + 15.0 = 18.0 at the default Sonnet rate, got %v", event.CostUSD)
	}
}

func TestTrackerRecordHonorsOverrides(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir, map[string]ModelPrice{
		"local-llama": {InputPerM: 0, OutputPerM: 0},
	})

	tr.Record(TokenEvent{Model: "local-llama", InputTokens: 1_000_000, OutputTokens: 1_000_000})

	lines := readLines(t, filepath.Join(dir, "metrics", "tokens.jsonl"))
	var event TokenEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.CostUSD != 0 {
		t.Errorf("expected a free override to price at zero, got %v", event.CostUSD)
	}
}

func TestTrackerRecordFallsBackForUnknownModel(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir, nil)

	tr.Record(TokenEvent{Model: "some-future-model", InputTokens: 1_000_000})

	lines := readLines(t, filepath.Join(dir, "metrics", "tokens.jsonl"))
	var event TokenEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.CostUSD != 3.0 {
		t.Errorf("expected the Sonnet fallback rate (3.0), got %v", event.CostUSD)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
