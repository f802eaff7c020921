package model

import (
	"encoding/json"
	"time"
)

const (
	RunKindLLM   = "llm"
	RunKindTool  = "tool"
	RunKindChain = "chain"
	RunKindRoot  = "root"
)

// Span is one observed execution unit of an agent run. It arrives from an
// external producer (OTLP exporter, log shipper) and is never mutated by the
// pipeline. A nil EndTime means the unit is still running, not that the end
// is unknown.
type Span struct {
	ID          string     `json:"id"`
	TraceID     *string    `json:"trace_id,omitempty"`
	ParentID    *string    `json:"parent_id"`
	Name        *string    `json:"name,omitempty"`
	RunKind     string     `json:"run_kind"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Error       *string    `json:"error,omitempty"`
	SessionID   *string    `json:"session_id,omitempty"`
	SessionName *string    `json:"session_name,omitempty"`
	Tags        []string   `json:"tags,omitempty"`

	// Exactly one payload is set for the known run kinds. Consumers switch
	// on RunKind, never on which pointer happens to be non-nil.
	LLM   *LLMPayload   `json:"llm,omitempty"`
	Tool  *ToolPayload  `json:"tool,omitempty"`
	Chain *ChainPayload `json:"chain,omitempty"`
}

// LLMPayload carries the fields specific to a model invocation.
type LLMPayload struct {
	PromptText       *string         `json:"prompt_text,omitempty"`
	OutputText       *string         `json:"output_text,omitempty"`
	FinishReason     *string         `json:"finish_reason,omitempty"`
	ModelName        *string         `json:"model_name,omitempty"`
	ModelProvider    *string         `json:"model_provider,omitempty"`
	PromptTokens     *int            `json:"prompt_tokens,omitempty"`
	CompletionTokens *int            `json:"completion_tokens,omitempty"`
	TotalTokens      *int            `json:"total_tokens,omitempty"`
	Cost             *float64        `json:"cost,omitempty"`
	ToolCallRequests json.RawMessage `json:"tool_call_requests,omitempty"`
}

// ToolPayload carries the fields specific to a tool invocation.
type ToolPayload struct {
	ToolName     *string                `json:"tool_name,omitempty"`
	ToolArgs     map[string]interface{} `json:"tool_args,omitempty"`
	ToolStatus   *string                `json:"tool_status,omitempty"`
	ToolResponse *string                `json:"tool_response,omitempty"`
	IsToolError  bool                   `json:"is_tool_error,omitempty"`
	ErrorType    *string                `json:"error_type,omitempty"`
}

// ChainPayload carries the fields specific to a sub-chain.
type ChainPayload struct {
	InputMessages  []map[string]interface{} `json:"input_messages,omitempty"`
	OutputMessages []map[string]interface{} `json:"output_messages,omitempty"`
}
