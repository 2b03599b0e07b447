package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRetrieveUnwrapsBareShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"memories": "likes Go", "count": 1})
	}))
	defer srv.Close()

	c := NewRetrievalClient(srv.URL, "tok")
	got := c.Retrieve(context.Background(), "what do they like", 5)

	if got != "likes Go" {
		t.Fatalf("expected 'likes Go', got %q", got)
	}
}

func TestRetrieveUnwrapsMessageWrappedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]interface{}{"memories": "wrapped result", "count": 1},
		})
	}))
	defer srv.Close()

	c := NewRetrievalClient(srv.URL, "tok")
	got := c.Retrieve(context.Background(), "query", 5)

	if got != "wrapped result" {
		t.Fatalf("expected unwrapped message.memories, got %q", got)
	}
}

func TestRetrieveReturnsEmptyOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRetrievalClient(srv.URL, "tok")
	got := c.Retrieve(context.Background(), "query", 5)

	if got != "" {
		t.Fatalf("expected empty string on non-200, got %q", got)
	}
}

func TestRetrieveOnNilClientIsNoop(t *testing.T) {
	var c *RetrievalClient
	if got := c.Retrieve(context.Background(), "query", 5); got != "" {
		t.Fatalf("expected empty string from nil client, got %q", got)
	}
}

func TestNewRetrievalClientEmptyURLDisabled(t *testing.T) {
	if c := NewRetrievalClient("", "tok"); c != nil {
		t.Fatalf("expected nil client when url is empty")
	}
}
