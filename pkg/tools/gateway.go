package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nanobot-run/nanobot/pkg/logger"
)

// gatewayResponse is the generalized execute_tool response shape: either a
// pending-approval envelope or a success/error result.
type gatewayResponse struct {
	PendingApproval bool        `json:"pending_approval"`
	RequestID       string      `json:"request_id"`
	Success         bool        `json:"success"`
	Result          interface{} `json:"result"`
	Error           string      `json:"error"`
}

// GatewayTool proxies a single server-side tool definition through a remote
// gateway's execute_tool endpoint. The LLM calls it exactly like a native
// tool; under the hood it POSTs {tool_name, params, nanobot_token,
// context_token?} and either returns a result or an approval-pending hint.
type GatewayTool struct {
	toolName    string
	description string
	parameters  map[string]interface{}
	baseURL     string
	nanobotTok  string
	contextTok  string
	client      *resty.Client
}

// NewGatewayTool builds a proxy for one gateway-exposed tool definition.
func NewGatewayTool(toolName, description string, parameters map[string]interface{}, baseURL, nanobotToken, contextToken string) *GatewayTool {
	if parameters == nil {
		parameters = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return &GatewayTool{
		toolName:    toolName,
		description: description,
		parameters:  parameters,
		baseURL:     baseURL,
		nanobotTok:  nanobotToken,
		contextTok:  contextToken,
		client:      resty.New().SetTimeout(120 * time.Second),
	}
}

func (t *GatewayTool) Name() string                       { return t.toolName }
func (t *GatewayTool) Description() string                { return t.description }
func (t *GatewayTool) Parameters() map[string]interface{} { return t.parameters }

// SetMetadata implements MetadataAwareTool: the inbound message's
// context_token (the approval-protocol's opaque per-request identifier)
// rides in on metadata rather than widening Execute's signature.
func (t *GatewayTool) SetMetadata(metadata map[string]string) {
	if tok, ok := metadata["context_token"]; ok {
		t.contextTok = tok
	}
}

func (t *GatewayTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	payload := map[string]interface{}{
		"tool_name":     t.toolName,
		"params":        args,
		"nanobot_token": t.nanobotTok,
	}
	if t.contextTok != "" {
		payload["context_token"] = t.contextTok
	}

	var body gatewayResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&body).
		Post(t.baseURL + "/execute_tool")

	if err != nil {
		logger.WarnCF("gateway", "tool call failed", map[string]interface{}{"tool": t.toolName, "error": err.Error()})
		return ErrorResult(fmt.Sprintf("calling %s: %v", t.toolName, err))
	}
	if resp.IsError() {
		logger.WarnCF("gateway", "tool call returned non-2xx", map[string]interface{}{"tool": t.toolName, "status": resp.StatusCode()})
		return ErrorResult(fmt.Sprintf("calling %s: HTTP %d", t.toolName, resp.StatusCode()))
	}

	if body.PendingApproval {
		hint := "This tool requires approval."
		if s, ok := body.Result.(string); ok && s != "" {
			hint = s
		}
		return TextResult(fmt.Sprintf(
			"%s\n\nApproval pending — request_id: %s\nUse the check_approval_result tool with this request_id to poll for the outcome.",
			hint, body.RequestID,
		))
	}

	if body.Success {
		return TextResult(stringifyResult(body.Result))
	}

	if body.Error != "" {
		return ErrorResult(body.Error)
	}
	if body.Result != nil {
		return TextResult(stringifyResult(body.Result))
	}

	raw, _ := json.Marshal(body)
	return TextResult(string(raw))
}

func stringifyResult(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// CheckApprovalResultTool polls a pending gateway approval request by ID.
type CheckApprovalResultTool struct {
	baseURL    string
	nanobotTok string
	contextTok string
	client     *resty.Client
}

// NewCheckApprovalResultTool builds the approval-poll companion tool.
func NewCheckApprovalResultTool(baseURL, nanobotToken, contextToken string) *CheckApprovalResultTool {
	return &CheckApprovalResultTool{
		baseURL:    baseURL,
		nanobotTok: nanobotToken,
		contextTok: contextToken,
		client:     resty.New().SetTimeout(30 * time.Second),
	}
}

// SetMetadata implements MetadataAwareTool, same contract as GatewayTool.
func (t *CheckApprovalResultTool) SetMetadata(metadata map[string]string) {
	if tok, ok := metadata["context_token"]; ok {
		t.contextTok = tok
	}
}

func (t *CheckApprovalResultTool) Name() string { return "check_approval_result" }

func (t *CheckApprovalResultTool) Description() string {
	return "Check the result of a pending tool approval request. Use the request_id returned by a tool that required approval."
}

func (t *CheckApprovalResultTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"request_id": map[string]interface{}{
				"type":        "string",
				"description": "The request_id from the pending approval response.",
			},
		},
		"required": []string{"request_id"},
	}
}

func (t *CheckApprovalResultTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	requestID, _ := args["request_id"].(string)
	if requestID == "" {
		return ErrorResult("request_id is required.")
	}

	payload := map[string]interface{}{
		"request_id":    requestID,
		"nanobot_token": t.nanobotTok,
	}
	if t.contextTok != "" {
		payload["context_token"] = t.contextTok
	}

	var body struct {
		Status string      `json:"status"`
		Result interface{} `json:"result"`
	}
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&body).
		Post(t.baseURL + "/check_result")

	if err != nil {
		logger.WarnCF("gateway", "check_approval_result failed", map[string]interface{}{"request_id": requestID, "error": err.Error()})
		return ErrorResult(fmt.Sprintf("checking result: %v", err))
	}
	if resp.IsError() {
		return ErrorResult(fmt.Sprintf("checking result: HTTP %d", resp.StatusCode()))
	}

	switch body.Status {
	case "pending", "Pending":
		return TextResult(fmt.Sprintf("Request %s is still pending approval. Try again shortly.", requestID))
	case "completed", "Completed", "approved", "Approved":
		if body.Result != nil {
			return TextResult(stringifyResult(body.Result))
		}
		return TextResult(fmt.Sprintf("Request %s was approved but result is not yet available. Try again.", requestID))
	case "denied", "Denied", "expired", "Expired":
		return TextResult(fmt.Sprintf("Request %s was %s.", requestID, body.Status))
	default:
		raw, _ := json.Marshal(body)
		return TextResult(string(raw))
	}
}
