package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nanobot-run/nanobot/pkg/bus"
	"github.com/nanobot-run/nanobot/pkg/logger"
)

const (
	apiChannelName = "api"
	chatTimeout    = 120 * time.Second
	defaultSessKey = "api:default"
)

// completionSlot is the single-shot rendezvous a pending /chat request waits
// on: a capacity-1 channel, written to at most once by Send.
type completionSlot struct {
	ch   chan string
	once sync.Once
}

func newCompletionSlot() *completionSlot {
	return &completionSlot{ch: make(chan string, 1)}
}

func (s *completionSlot) resolve(content string) {
	s.once.Do(func() { s.ch <- content })
}

// APIChannel is the synchronous HTTP channel: POST /chat holds the
// response until the matching is_final outbound arrives or a 120s timeout
// elapses; POST /notify is fire-and-forget; GET /health reports liveness.
type APIChannel struct {
	bus    *bus.Bus
	host   string
	port   int
	server *http.Server

	mu      sync.Mutex
	pending map[string]*completionSlot
}

// NewAPIChannel builds the sync HTTP channel, listening on host:port.
func NewAPIChannel(b *bus.Bus, host string, port int) *APIChannel {
	return &APIChannel{
		bus:     b,
		host:    host,
		port:    port,
		pending: make(map[string]*completionSlot),
	}
}

func (c *APIChannel) Name() string { return apiChannelName }

func (c *APIChannel) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", c.handleChat)
	mux.HandleFunc("/notify", c.handleNotify)
	mux.HandleFunc("/health", c.handleHealth)

	c.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", c.host, c.port),
		Handler: mux,
	}

	ln := c.server
	go func() {
		if err := ln.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("api", "http server stopped unexpectedly", map[string]interface{}{"error": err.Error()})
		}
	}()
	return nil
}

// Stop shuts the HTTP server down and resolves every pending request with
// an empty completion so no caller is left hanging.
func (c *APIChannel) Stop() error {
	c.mu.Lock()
	for id, slot := range c.pending {
		slot.resolve("")
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if c.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.server.Shutdown(ctx)
}

// Send filters on is_final: non-final outbound is discarded; a
// final outbound resolves the matching pending slot by ChatID (the
// request_id placed there at publish time), or logs a warning if none
// is waiting.
func (c *APIChannel) Send(msg bus.OutboundMessage) error {
	if msg.Metadata["is_final"] != "true" {
		return nil
	}

	c.mu.Lock()
	slot, ok := c.pending[msg.ChatID]
	if ok {
		delete(c.pending, msg.ChatID)
	}
	c.mu.Unlock()

	if !ok {
		logger.WarnCF("api", "final outbound with no pending request", map[string]interface{}{"request_id": msg.ChatID})
		return nil
	}
	slot.resolve(msg.Content)
	return nil
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response  string `json:"response,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (c *APIChannel) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "message is required"})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessKey
	}

	requestID := uuid.NewString()
	slot := newCompletionSlot()
	c.mu.Lock()
	c.pending[requestID] = slot
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()

	published := c.bus.PublishInbound(ctx, bus.InboundMessage{
		Channel:  apiChannelName,
		SenderID: sessionID,
		ChatID:   requestID,
		Content:  req.Message,
		Metadata: map[string]string{"session_id": sessionID},
	})
	if !published {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		writeJSON(w, http.StatusServiceUnavailable, chatResponse{Error: "could not enqueue message"})
		return
	}

	select {
	case content := <-slot.ch:
		writeJSON(w, http.StatusOK, chatResponse{Response: content, SessionID: sessionID})
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		if errors.Is(r.Context().Err(), context.Canceled) {
			w.WriteHeader(499)
			return
		}
		writeJSON(w, http.StatusGatewayTimeout, chatResponse{Error: "timed out waiting for a response"})
	}
}

type notifyRequest struct {
	Message string `json:"message"`
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
}

func (c *APIChannel) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" || req.Channel == "" || req.ChatID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message, channel and chat_id are required"})
		return
	}

	c.bus.PublishInbound(r.Context(), bus.InboundMessage{
		Channel:  req.Channel,
		SenderID: req.ChatID,
		ChatID:   req.ChatID,
		Content:  req.Message,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *APIChannel) handleHealth(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	pendingCount := len(c.pending)
	c.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"channel": apiChannelName,
		"running": true,
		"pending": pendingCount,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
