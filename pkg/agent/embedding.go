package agent

import (
	chromem "github.com/philippgille/chromem-go"

	"github.com/nanobot-run/nanobot/pkg/config"
)

// resolveEmbeddingFunc picks an embedding function for the local
// semantic-memory cache from whichever provider credential is configured.
// Returns nil when no embedding-capable credential is available, in which
// case the local cache stays disabled (the external retrieval endpoint
// still works on its own).
func resolveEmbeddingFunc(cfg *config.Config) chromem.EmbeddingFunc {
	if cfg.Providers.OpenAI.APIKey != "" {
		return chromem.NewEmbeddingFuncOpenAI(cfg.Providers.OpenAI.APIKey, chromem.EmbeddingModelOpenAI3Small)
	}
	return nil
}
