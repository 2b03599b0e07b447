package tools

import "context"

// ScratchpadTool gives the model a place to reason out loud between tool
// calls without that reasoning becoming a reply. Nothing it records is
// ever sent to a channel (its calls are still logged as tool_action
// entries like any other tool's); it exists purely to let the model
// externalize a plan before acting on it.
type ScratchpadTool struct{}

func NewScratchpadTool() *ScratchpadTool {
	return &ScratchpadTool{}
}

func (t *ScratchpadTool) Name() string {
	return "think"
}

func (t *ScratchpadTool) Description() string {
	return "Jot down reasoning before your next action: weigh options, sketch a plan, or work through a tricky calculation. Nothing written here reaches the user — call it whenever you want to think before committing to a tool call or a final answer."
}

func (t *ScratchpadTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"thought": map[string]interface{}{
				"type":        "string",
				"description": "The reasoning to record",
			},
		},
		"required": []string{"thought"},
	}
}

func (t *ScratchpadTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	if thought, _ := args["thought"].(string); thought == "" {
		return ErrorResult("thought is required")
	}
	return SilentResult("noted")
}
