// Package metrics implements the per-turn token/cost accounting the turn
// engine records after every reasoning loop and folds into the debug
// token-usage footer.
package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TokenEvent is one turn's accumulated usage, appended to the tracker's
// JSONL log.
type TokenEvent struct {
	Timestamp    string   `json:"ts"`
	SessionKey   string   `json:"session"`
	Model        string   `json:"model"`
	InputTokens  int      `json:"in"`
	OutputTokens int      `json:"out"`
	CacheRead    int      `json:"cache_read,omitempty"`
	CacheCreate  int      `json:"cache_create,omitempty"`
	CostUSD      float64  `json:"cost"`
	ToolsUsed    []string `json:"tools,omitempty"`
}

// ModelPrice is USD per million tokens for one rate card entry. Zero
// fields are valid (a free or not-yet-priced model still records usage,
// just at zero cost for that component).
type ModelPrice struct {
	InputPerM       float64 `json:"input_per_m"`
	OutputPerM      float64 `json:"output_per_m"`
	CacheReadPerM   float64 `json:"cache_read_per_m"`
	CacheCreatePerM float64 `json:"cache_create_per_m"`
}

// defaultRateCard covers the models this runtime ships provider adapters
// for out of the box. An operator's own config.json can add or override
// entries without a code change; see AgentDefaults.Pricing in pkg/config.
var defaultRateCard = map[string]ModelPrice{
	"claude-sonnet-4-5-20250929": {InputPerM: 3.0, OutputPerM: 15.0, CacheReadPerM: 0.3, CacheCreatePerM: 3.75},
	"claude-sonnet-4-20250514":   {InputPerM: 3.0, OutputPerM: 15.0, CacheReadPerM: 0.3, CacheCreatePerM: 3.75},
	"claude-haiku-3-5-20241022":  {InputPerM: 0.8, OutputPerM: 4.0, CacheReadPerM: 0.08, CacheCreatePerM: 1.0},
	"claude-opus-4-20250514":     {InputPerM: 15.0, OutputPerM: 75.0, CacheReadPerM: 1.5, CacheCreatePerM: 18.75},
}

// Tracker appends token usage events to workspace/metrics/tokens.jsonl
// under a rate card used to stamp each event with an estimated cost.
type Tracker struct {
	filePath string
	rates    map[string]ModelPrice
	mu       sync.Mutex
}

// NewTracker opens a tracker rooted at workspace/metrics/tokens.jsonl.
// overrides is merged on top of the built-in rate card: pass the
// operator's config.json pricing table, or nil to keep the defaults.
func NewTracker(workspace string, overrides map[string]ModelPrice) *Tracker {
	dir := filepath.Join(workspace, "metrics")
	os.MkdirAll(dir, 0755)

	rates := make(map[string]ModelPrice, len(defaultRateCard)+len(overrides))
	for model, price := range defaultRateCard {
		rates[model] = price
	}
	for model, price := range overrides {
		rates[model] = price
	}

	return &Tracker{
		filePath: filepath.Join(dir, "tokens.jsonl"),
		rates:    rates,
	}
}

// Record stamps event with an estimated cost and appends it to the log.
// A write failure is silent: metrics are a diagnostic side channel, never
// a reason to fail a turn.
func (t *Tracker) Record(event TokenEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().Format(time.RFC3339)
	}
	event.CostUSD = t.estimateCost(event)

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	f.Write(data)
	f.Write([]byte("\n"))
}

// estimateCost looks up event.Model in the rate card, falling back to the
// Sonnet entry for models the card doesn't name (an unpriced fallback
// beats silently reporting zero for every unrecognized model string).
func (t *Tracker) estimateCost(event TokenEvent) float64 {
	price, ok := t.rates[event.Model]
	if !ok {
		price = defaultRateCard["claude-sonnet-4-5-20250929"]
	}

	return float64(event.InputTokens)*price.InputPerM/1e6 +
		float64(event.OutputTokens)*price.OutputPerM/1e6 +
		float64(event.CacheRead)*price.CacheReadPerM/1e6 +
		float64(event.CacheCreate)*price.CacheCreatePerM/1e6
}
