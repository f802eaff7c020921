package model

import "time"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// StepRecord is the canonical, flattened projection of one non-root span,
// shaped for relational storage. StepIndex is 1-based and dense within a
// trace; PreviousStepID is nil only for the first step. Spans without a
// usable start time keep StepIndex 0 and are marked Malformed.
type StepRecord struct {
	StepID         string     `json:"step_id"`
	TraceID        string     `json:"trace_id"`
	StepIndex      int        `json:"step_index"`
	PreviousStepID *string    `json:"previous_step_id"`
	Name           *string    `json:"name,omitempty"`
	IsLLM          bool       `json:"is_llm"`
	IsTool         bool       `json:"is_tool"`
	IsChain        bool       `json:"is_chain"`
	StartTime      *time.Time `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	LatencyMs      *int64     `json:"latency_ms,omitempty"`
	Error          *string    `json:"error,omitempty"`
	Malformed      bool       `json:"malformed,omitempty"`

	LLM   *LLMPayload   `json:"llm,omitempty"`
	Tool  *ToolPayload  `json:"tool,omitempty"`
	Chain *ChainPayload `json:"chain,omitempty"`
}

// Kind returns the discriminant implied by the type flags, or "" when the
// originating span had an unknown run kind.
func (r *StepRecord) Kind() string {
	switch {
	case r.IsLLM:
		return RunKindLLM
	case r.IsTool:
		return RunKindTool
	case r.IsChain:
		return RunKindChain
	}
	return ""
}

// TraceAggregate is the one-row-per-trace roll-up computed over every span
// of the trace, root included. EndTime is nil while any span is still open.
type TraceAggregate struct {
	TraceID     string     `json:"trace_id"`
	Name        *string    `json:"name,omitempty"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Status      string     `json:"status"`
	Error       *string    `json:"error,omitempty"`
	TotalCost   float64    `json:"total_cost"`
	TotalTokens int        `json:"total_tokens"`
	SpanCount   int        `json:"span_count"`
	SessionID   *string    `json:"session_id,omitempty"`
	SessionName *string    `json:"session_name,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}
