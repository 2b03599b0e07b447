package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/nanobot-run/nanobot/pkg/logger"
)

const (
	// kindTurn and kindFact tag which collection a hit came from.
	kindTurn = "turn"
	kindFact = "fact"

	// maxTurnRunes bounds how much of a turn gets embedded; past this the
	// embedding stops getting more specific, it just gets more expensive.
	maxTurnRunes = 8000
)

// CacheHit is one match out of the local semantic cache.
type CacheHit struct {
	ID       string
	Text     string
	Score    float32
	Kind     string // kindTurn or kindFact
	Category string // facts only
	Channel  string // turns only
	When     string // RFC3339
}

// VectorStore is the optional local semantic cache: a chromem-go database
// holding past turns and the facts distilled out of them, each in its own
// collection. It supplements the external retrieval endpoint; the turn
// engine works fine with either or both absent.
type VectorStore struct {
	turns *chromem.Collection
	facts *chromem.Collection
}

// NewVectorStore opens (or creates) the cache under workspace/memory/index.
func NewVectorStore(workspace string, embeddingFn chromem.EmbeddingFunc) (*VectorStore, error) {
	dir := filepath.Join(workspace, "memory", "index")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open semantic cache: %w", err)
	}

	turns, err := db.GetOrCreateCollection("turns", nil, embeddingFn)
	if err != nil {
		return nil, fmt.Errorf("open turns collection: %w", err)
	}
	facts, err := db.GetOrCreateCollection("facts", nil, embeddingFn)
	if err != nil {
		return nil, fmt.Errorf("open facts collection: %w", err)
	}

	logger.InfoCF("memory", "semantic cache ready", map[string]interface{}{
		"path":  dir,
		"turns": turns.Count(),
		"facts": facts.Count(),
	})

	return &VectorStore{turns: turns, facts: facts}, nil
}

// RememberTurn embeds one completed turn so later queries can surface it.
// Failures are logged and swallowed: the cache is best-effort.
func (vs *VectorStore) RememberTurn(ctx context.Context, sessionKey, channel, chatID, userMsg, assistantMsg string) {
	now := time.Now()
	text := clipRunes(fmt.Sprintf("user: %s\nassistant: %s", userMsg, assistantMsg), maxTurnRunes)

	err := vs.turns.AddDocument(ctx, chromem.Document{
		ID:      fmt.Sprintf("%s@%d", sessionKey, now.Unix()),
		Content: text,
		Metadata: map[string]string{
			"session": sessionKey,
			"channel": channel,
			"chat_id": chatID,
			"at":      now.Format(time.RFC3339),
		},
	})
	if err != nil {
		logger.WarnCF("memory", "turn not cached", map[string]interface{}{
			"session": sessionKey,
			"error":   err.Error(),
		})
	}
}

// RememberFact stores a distilled fact. An empty id mints a fresh one;
// reusing an id overwrites the prior fact text under it.
func (vs *VectorStore) RememberFact(ctx context.Context, id, fact, category, source string) error {
	if id == "" {
		id = fmt.Sprintf("fact-%d", time.Now().UnixNano())
	}
	err := vs.facts.AddDocument(ctx, chromem.Document{
		ID:      id,
		Content: fact,
		Metadata: map[string]string{
			"category":    category,
			"source":      source,
			"recorded_at": time.Now().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("store fact %s: %w", id, err)
	}
	return nil
}

// ForgetFact drops a fact by id.
func (vs *VectorStore) ForgetFact(ctx context.Context, id string) error {
	if err := vs.facts.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("drop fact %s: %w", id, err)
	}
	return nil
}

// SimilarFacts returns the closest stored facts to query, for the
// extractor's duplicate check before it records a new one.
func (vs *VectorStore) SimilarFacts(ctx context.Context, query string, limit int) ([]CacheHit, error) {
	return vs.query(ctx, vs.facts, kindFact, query, limit)
}

// Search queries both collections and returns the best hits overall,
// highest similarity first, at most limit.
func (vs *VectorStore) Search(ctx context.Context, query string, limit int) ([]CacheHit, error) {
	factHits, err := vs.query(ctx, vs.facts, kindFact, query, limit)
	if err != nil {
		return nil, err
	}
	turnHits, err := vs.query(ctx, vs.turns, kindTurn, query, limit)
	if err != nil {
		return nil, err
	}

	hits := append(factHits, turnHits...)
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// query runs one collection lookup. chromem rejects asking for more
// results than the collection holds, so the limit is clamped first.
func (vs *VectorStore) query(ctx context.Context, col *chromem.Collection, kind, queryText string, limit int) ([]CacheHit, error) {
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	if limit > n {
		limit = n
	}

	results, err := col.Query(ctx, queryText, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %ss: %w", kind, err)
	}

	hits := make([]CacheHit, 0, len(results))
	for _, r := range results {
		hit := CacheHit{ID: r.ID, Text: r.Content, Score: r.Similarity, Kind: kind}
		switch kind {
		case kindFact:
			hit.Category = r.Metadata["category"]
			hit.When = r.Metadata["recorded_at"]
		case kindTurn:
			hit.Channel = r.Metadata["channel"]
			hit.When = r.Metadata["at"]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// FormatHits renders cache hits as a compact recap block for the system
// prompt: facts first, then past-turn previews.
func FormatHits(hits []CacheHit) string {
	var facts, turns []CacheHit
	for _, h := range hits {
		if h.Kind == kindFact {
			facts = append(facts, h)
		} else {
			turns = append(turns, h)
		}
	}

	var sb strings.Builder
	if len(facts) > 0 {
		sb.WriteString("Known facts:\n")
		for _, h := range facts {
			sb.WriteString("- " + h.Text)
			if h.Category != "" {
				sb.WriteString(" (" + h.Category + ")")
			}
			sb.WriteString("\n")
		}
	}
	if len(turns) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Related past conversations:\n")
		for _, h := range turns {
			sb.WriteString(fmt.Sprintf("- [%s", dayOf(h.When)))
			if h.Channel != "" {
				sb.WriteString(" " + h.Channel)
			}
			sb.WriteString("] " + clipRunes(h.Text, 200) + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// dayOf reduces an RFC3339 timestamp to its date, passing through
// anything it can't parse.
func dayOf(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02")
}

// clipRunes cuts s to at most max runes without splitting a character.
func clipRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
