package memory

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nanobot-run/nanobot/pkg/logger"
)

// RetrievalClient queries the external memory-retrieval HTTP endpoint
// collaborator. On any non-200 response or transport error it returns an
// empty result; the turn proceeds with whatever the local cache found.
type RetrievalClient struct {
	url          string
	nanobotToken string
	client       *resty.Client
}

// NewRetrievalClient builds a client for the configured retrieval endpoint.
// Returns nil if url is empty (retrieval disabled).
func NewRetrievalClient(url, nanobotToken string) *RetrievalClient {
	if url == "" {
		return nil
	}
	return &RetrievalClient{
		url:          url,
		nanobotToken: nanobotToken,
		client:       resty.New().SetTimeout(10 * time.Second),
	}
}

type retrievalResponse struct {
	Memories string `json:"memories"`
	Count    int    `json:"count"`
	Message  *struct {
		Memories string `json:"memories"`
		Count    int    `json:"count"`
	} `json:"message"`
}

// Retrieve queries the endpoint for memories relevant to query, returning
// its formatted text. Empty string on any failure.
func (c *RetrievalClient) Retrieve(ctx context.Context, query string, topK int) string {
	if c == nil || strings.TrimSpace(query) == "" {
		return ""
	}

	var body retrievalResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"query":         query,
			"nanobot_token": c.nanobotToken,
			"top_k":         topK,
		}).
		SetResult(&body).
		Post(c.url)

	if err != nil {
		logger.WarnCF("memory", "retrieval endpoint call failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if resp.IsError() {
		logger.WarnCF("memory", "retrieval endpoint returned non-200", map[string]interface{}{"status": resp.StatusCode()})
		return ""
	}

	if body.Message != nil {
		return body.Message.Memories
	}
	return body.Memories
}
