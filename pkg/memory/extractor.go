package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nanobot-run/nanobot/pkg/logger"
	"github.com/nanobot-run/nanobot/pkg/providers"
)

const (
	// modelCallTimeout caps each distill/reconcile LLM call so a hung
	// provider never stalls the post-turn pipeline indefinitely.
	modelCallTimeout = 30 * time.Second

	// neighborsPerFact is how many stored facts are fetched as candidate
	// duplicates before a new fact is recorded.
	neighborsPerFact = 3

	// duplicateThreshold is the similarity above which a stored fact is
	// close enough to force a reconcile decision instead of a plain add.
	duplicateThreshold = 0.8

	// minDistillableRunes skips distillation for messages too short to
	// carry a fact worth keeping.
	minDistillableRunes = 10
)

// reasoningBlockRe strips <think>...</think> preambles some models emit
// before their actual answer.
var reasoningBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)

// distilledFact is one fact the model pulled out of a turn.
type distilledFact struct {
	Fact     string `json:"fact"`
	Category string `json:"category"`
}

// factDecision is the model's verdict on a new fact versus its stored
// near-duplicates.
type factDecision struct {
	Action  string `json:"action"`   // ADD, UPDATE, DELETE, NOOP
	FactID  string `json:"fact_id"`  // which stored fact, for UPDATE/DELETE
	NewFact string `json:"new_fact"` // replacement text, for UPDATE
}

// KnowledgeExtractor distills durable facts out of finished turns and
// reconciles them against the local semantic cache, so the cache holds one
// current fact per topic instead of an append-only pile of restatements.
type KnowledgeExtractor struct {
	provider providers.LLMProvider
	model    string
	store    *VectorStore
}

// NewKnowledgeExtractor wires an extractor to its provider and cache.
func NewKnowledgeExtractor(provider providers.LLMProvider, model string, store *VectorStore) *KnowledgeExtractor {
	return &KnowledgeExtractor{provider: provider, model: model, store: store}
}

// ExtractAndConsolidate runs the full post-turn pipeline: distill facts
// from the exchange, then record each one, merging with or replacing any
// stored near-duplicate. Every failure is logged and swallowed; this runs
// after the reply is already on its way and must never affect it.
func (ke *KnowledgeExtractor) ExtractAndConsolidate(ctx context.Context, userMsg, assistantMsg, sessionKey, source string) {
	facts, err := ke.distill(ctx, userMsg, assistantMsg)
	if err != nil {
		logger.WarnCF("memory", "fact distillation failed", map[string]interface{}{
			"session": sessionKey,
			"error":   err.Error(),
		})
		return
	}
	if len(facts) == 0 {
		return
	}

	logger.DebugCF("memory", "facts distilled from turn", map[string]interface{}{
		"session": sessionKey,
		"count":   len(facts),
	})

	for _, f := range facts {
		if err := ke.reconcile(ctx, f, source); err != nil {
			logger.WarnCF("memory", "fact not recorded", map[string]interface{}{
				"fact":  f.Fact,
				"error": err.Error(),
			})
		}
	}
}

const distillPrompt = `Read one exchange from an ongoing conversation and pull out any facts
worth remembering long-term: who the user is, what they like or dislike,
what they are working on or have committed to, people they mention, and
decisions or events that change their situation.

Reply with a JSON array, one element per fact, each a standalone sentence:
[{"fact": "...", "category": "..."}]
Pick category from: biographical, preference, task, relationship, contextual.
Reply with [] if the exchange contains nothing durable.
No prose, no code fences, JSON only.

User: %s
Assistant: %s`

func (ke *KnowledgeExtractor) distill(ctx context.Context, userMsg, assistantMsg string) ([]distilledFact, error) {
	if len([]rune(userMsg)) < minDistillableRunes {
		return nil, nil
	}

	reply, err := ke.askModel(ctx, fmt.Sprintf(distillPrompt, userMsg, clipRunes(assistantMsg, 2000)), 1024)
	if err != nil {
		return nil, err
	}

	var facts []distilledFact
	if err := json.Unmarshal([]byte(reply), &facts); err != nil {
		// Some models answer with a bare object when there is one fact.
		var one distilledFact
		if json.Unmarshal([]byte(reply), &one) == nil && one.Fact != "" {
			return []distilledFact{one}, nil
		}
		return nil, fmt.Errorf("unparseable distill reply %q: %w", clipRunes(reply, 200), err)
	}
	return facts, nil
}

// reconcile records f, first checking the cache for near-duplicates. When
// a decision call fails, the fact is added as-is: a redundant fact beats a
// lost one.
func (ke *KnowledgeExtractor) reconcile(ctx context.Context, f distilledFact, source string) error {
	neighbors, err := ke.store.SimilarFacts(ctx, f.Fact, neighborsPerFact)
	if err != nil {
		return ke.store.RememberFact(ctx, "", f.Fact, f.Category, source)
	}

	var dupes []CacheHit
	for _, n := range neighbors {
		if n.Score > duplicateThreshold {
			dupes = append(dupes, n)
		}
	}
	if len(dupes) == 0 {
		return ke.store.RememberFact(ctx, "", f.Fact, f.Category, source)
	}

	decision, err := ke.decide(ctx, f, dupes)
	if err != nil {
		logger.WarnCF("memory", "reconcile decision failed, keeping fact as-is", map[string]interface{}{"error": err.Error()})
		return ke.store.RememberFact(ctx, "", f.Fact, f.Category, source)
	}

	switch decision.Action {
	case "UPDATE":
		if decision.FactID != "" {
			_ = ke.store.ForgetFact(ctx, decision.FactID)
		}
		text := decision.NewFact
		if text == "" {
			text = f.Fact
		}
		return ke.store.RememberFact(ctx, "", text, f.Category, source)
	case "DELETE":
		if decision.FactID != "" {
			return ke.store.ForgetFact(ctx, decision.FactID)
		}
		return nil
	case "NOOP":
		return nil
	default:
		return ke.store.RememberFact(ctx, "", f.Fact, f.Category, source)
	}
}

const decidePrompt = `A new fact was just distilled from a conversation, and the knowledge base
already holds similar ones. Decide how to keep the base consistent.

New fact: %s

Stored near-duplicates:
%s

Choose one action:
- NOOP: the new fact restates a stored one, change nothing.
- UPDATE: the new fact supersedes a stored one; give the merged text.
- DELETE: the new fact makes a stored one wrong; name which to drop.
- ADD: related but genuinely distinct; keep both.

Answer with JSON only:
{"action": "NOOP|UPDATE|DELETE|ADD", "fact_id": "stored fact id if applicable", "new_fact": "merged text for UPDATE"}`

func (ke *KnowledgeExtractor) decide(ctx context.Context, f distilledFact, neighbors []CacheHit) (*factDecision, error) {
	var lines []string
	for _, n := range neighbors {
		lines = append(lines, fmt.Sprintf("- id=%s similarity=%.2f: %s", n.ID, n.Score, n.Text))
	}

	reply, err := ke.askModel(ctx, fmt.Sprintf(decidePrompt, f.Fact, strings.Join(lines, "\n")), 256)
	if err != nil {
		return nil, err
	}

	var decision factDecision
	if err := json.Unmarshal([]byte(reply), &decision); err != nil {
		return nil, fmt.Errorf("unparseable decision reply %q: %w", clipRunes(reply, 200), err)
	}
	return &decision, nil
}

// askModel issues one bounded low-temperature call and returns the reply
// with reasoning blocks and code fences stripped.
func (ke *KnowledgeExtractor) askModel(ctx context.Context, prompt string, maxTokens int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, modelCallTimeout)
	defer cancel()

	resp, err := ke.provider.Chat(callCtx, []providers.Message{
		{Role: "user", Content: prompt},
	}, nil, ke.model, map[string]interface{}{
		"max_tokens":  maxTokens,
		"temperature": 0.1,
	})
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(resp.Content)
	reply = reasoningBlockRe.ReplaceAllString(reply, "")
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	return strings.TrimSpace(reply), nil
}
