package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// A gateway call that returns pending_approval yields a string containing
// the request_id for the model to poll with.
func TestGatewayToolPendingApproval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute_tool" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["tool_name"] != "deploy" {
			t.Fatalf("expected tool_name 'deploy', got %v", body["tool_name"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"pending_approval": true,
			"request_id":       "R1",
			"result":           "Needs approval",
		})
	}))
	defer srv.Close()

	tool := NewGatewayTool("deploy", "deploy the thing", nil, srv.URL, "tok", "")
	result := tool.Execute(context.Background(), map[string]interface{}{"env": "prod"})

	if !strings.Contains(result.ForLLM, "request_id: R1") {
		t.Fatalf("expected result to contain 'request_id: R1', got %q", result.ForLLM)
	}
}

// A Completed poll returns the bare result string.
func TestCheckApprovalResultCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/check_result" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "Completed",
			"result": "done",
		})
	}))
	defer srv.Close()

	tool := NewCheckApprovalResultTool(srv.URL, "tok", "")
	result := tool.Execute(context.Background(), map[string]interface{}{"request_id": "R1"})

	if result.ForLLM != "done" {
		t.Fatalf("expected 'done', got %q", result.ForLLM)
	}
}

func TestCheckApprovalResultPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "Pending"})
	}))
	defer srv.Close()

	tool := NewCheckApprovalResultTool(srv.URL, "tok", "")
	result := tool.Execute(context.Background(), map[string]interface{}{"request_id": "R1"})

	if !strings.Contains(result.ForLLM, "still pending") {
		t.Fatalf("expected a 'still pending' message, got %q", result.ForLLM)
	}
}

func TestCheckApprovalResultMissingRequestID(t *testing.T) {
	tool := NewCheckApprovalResultTool("http://unused", "tok", "")
	result := tool.Execute(context.Background(), map[string]interface{}{})

	if !result.IsError {
		t.Fatalf("expected an error result when request_id is missing")
	}
}

func TestGatewayToolHTTPErrorBecomesErrorString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tool := NewGatewayTool("deploy", "deploy", nil, srv.URL, "tok", "")
	result := tool.Execute(context.Background(), nil)

	if !result.IsError || !strings.HasPrefix(result.ForLLM, "Error") {
		t.Fatalf("expected an Error-prefixed result for non-2xx, got %+v", result)
	}
}

func TestGatewayToolSetMetadataThreadsContextToken(t *testing.T) {
	var gotContextToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		gotContextToken, _ = body["context_token"].(string)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "result": "ok"})
	}))
	defer srv.Close()

	tool := NewGatewayTool("deploy", "deploy", nil, srv.URL, "tok", "")
	tool.SetMetadata(map[string]string{"context_token": "ctx-abc"})
	tool.Execute(context.Background(), map[string]interface{}{})

	if gotContextToken != "ctx-abc" {
		t.Fatalf("expected context_token threaded from SetMetadata, got %q", gotContextToken)
	}
}
