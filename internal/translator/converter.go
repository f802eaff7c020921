package translator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracesdkpb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/harryn0502/tracelens/internal/model"
)

// GenAI semantic-convention keys recognized on incoming spans. See
// https://opentelemetry.io/docs/specs/semconv/attributes-registry/gen-ai/
// and the traceloop/openinference variants that predate them.
const (
	GenAIOperationName     = "gen_ai.operation.name"
	GenAISystem            = "gen_ai.system"
	GenAIRequestModel      = "gen_ai.request.model"
	GenAIResponseModel     = "gen_ai.response.model"
	GenAIPrompt            = "gen_ai.prompt"
	GenAICompletion        = "gen_ai.completion"
	GenAIFinishReason      = "gen_ai.response.finish_reasons"
	GenAIUsageInputTokens  = "gen_ai.usage.input_tokens"
	GenAIUsageOutputTokens = "gen_ai.usage.output_tokens"
	GenAIUsageTotalTokens  = "gen_ai.usage.total_tokens"
	GenAIUsageCost         = "gen_ai.usage.cost"
	GenAIToolName          = "gen_ai.tool.name"

	TraceLoopSpanKind     = "traceloop.span.kind"
	OpenInferenceSpanKind = "openinference.span.kind"
	OpenInferenceToolName = "tool.name"

	AttrSpanKind      = "tracelens.span.kind"
	AttrSessionID     = "tracelens.session_id"
	AttrToolArguments = "tool_arguments"
	AttrToolResponse  = "tool_response"
	AttrToolStatus    = "tool_status"
	AttrInputValue    = "input.value"
	AttrOutputValue   = "output.value"
)

func strPointer(s string) *string {
	return &s
}

// idToUUID widens an OTLP 8/16-byte id into a UUID string, right-aligned.
func idToUUID(id []byte) (uuid.UUID, error) {
	if len(id) < 8 {
		return uuid.Nil, fmt.Errorf("invalid id length: expected >= 8 bytes, got %d", len(id))
	}
	var buf [16]byte
	if len(id) > 16 {
		id = id[len(id)-16:]
	}
	copy(buf[16-len(id):], id)
	return uuid.FromBytes(buf[:])
}

func attrString(attrs map[string]*commonpb.AnyValue, key string) (string, bool) {
	if v, ok := attrs[key]; ok && v != nil {
		if s, ok := v.Value.(*commonpb.AnyValue_StringValue); ok {
			return s.StringValue, true
		}
	}
	return "", false
}

func attrInt(attrs map[string]*commonpb.AnyValue, key string) (int, bool) {
	if v, ok := attrs[key]; ok && v != nil {
		switch n := v.Value.(type) {
		case *commonpb.AnyValue_IntValue:
			return int(n.IntValue), true
		case *commonpb.AnyValue_DoubleValue:
			return int(n.DoubleValue), true
		}
	}
	return 0, false
}

func attrFloat(attrs map[string]*commonpb.AnyValue, key string) (float64, bool) {
	if v, ok := attrs[key]; ok && v != nil {
		switch n := v.Value.(type) {
		case *commonpb.AnyValue_DoubleValue:
			return n.DoubleValue, true
		case *commonpb.AnyValue_IntValue:
			return float64(n.IntValue), true
		}
	}
	return 0, false
}

// Converter maps OTLP spans onto the internal Span model.
type Converter struct{}

// ConvertSpan builds a model.Span from one OTLP span. Zero timestamps map to
// nil so the pipeline can flag them; a missing parent makes the span a root
// candidate for the tree builder.
func (c *Converter) ConvertSpan(span *tracesdkpb.Span) (*model.Span, error) {
	spanID, err := idToUUID(span.GetSpanId())
	if err != nil {
		return nil, err
	}
	traceID, err := idToUUID(span.GetTraceId())
	if err != nil {
		return nil, err
	}

	s := &model.Span{
		ID:      spanID.String(),
		TraceID: strPointer(traceID.String()),
		Name:    &span.Name,
	}
	if len(span.ParentSpanId) > 0 {
		parent, err := idToUUID(span.ParentSpanId)
		if err != nil {
			return nil, err
		}
		s.ParentID = strPointer(parent.String())
	}
	if ns := span.GetStartTimeUnixNano(); ns > 0 {
		t := time.Unix(0, int64(ns)).UTC()
		s.StartTime = &t
	}
	if ns := span.GetEndTimeUnixNano(); ns > 0 {
		t := time.Unix(0, int64(ns)).UTC()
		s.EndTime = &t
	}
	if st := span.GetStatus(); st != nil && st.Code == tracesdkpb.Status_STATUS_CODE_ERROR {
		msg := st.Message
		if msg == "" {
			msg = "error"
		}
		s.Error = &msg
	}

	attrs := make(map[string]*commonpb.AnyValue, len(span.Attributes))
	for _, attr := range span.Attributes {
		if attr.Value != nil {
			attrs[attr.Key] = attr.Value
		}
	}

	if sid, ok := attrString(attrs, AttrSessionID); ok {
		s.SessionID = &sid
	}

	s.RunKind = runKind(attrs, s.ParentID == nil)
	switch s.RunKind {
	case model.RunKindLLM:
		s.LLM = llmPayload(attrs)
	case model.RunKindTool:
		s.Tool = toolPayload(attrs)
	case model.RunKindChain:
		s.Chain = chainPayload(attrs)
	}
	return s, nil
}

// runKind resolves the span's kind from the explicit kind attributes, then
// from GenAI operation hints. A span with no parent and no kind hint is the
// trace root; anything else defaults to chain, matching how LangChain-style
// exporters tag intermediate nodes.
func runKind(attrs map[string]*commonpb.AnyValue, isRoot bool) string {
	for _, key := range []string{AttrSpanKind, TraceLoopSpanKind, OpenInferenceSpanKind} {
		if v, ok := attrString(attrs, key); ok {
			switch strings.ToLower(v) {
			case "llm", "completion", "generation":
				return model.RunKindLLM
			case "tool":
				return model.RunKindTool
			case "chain", "workflow", "task", "agent":
				return model.RunKindChain
			case "root":
				return model.RunKindRoot
			default:
				return strings.ToLower(v)
			}
		}
	}
	if _, ok := attrString(attrs, GenAIToolName); ok {
		return model.RunKindTool
	}
	if _, ok := attrString(attrs, OpenInferenceToolName); ok {
		return model.RunKindTool
	}
	if op, ok := attrString(attrs, GenAIOperationName); ok {
		switch op {
		case "chat", "text_completion", "generate_content", "embeddings":
			return model.RunKindLLM
		case "execute_tool":
			return model.RunKindTool
		}
	}
	if _, ok := attrString(attrs, GenAIRequestModel); ok {
		return model.RunKindLLM
	}
	if isRoot {
		return model.RunKindRoot
	}
	return model.RunKindChain
}

func llmPayload(attrs map[string]*commonpb.AnyValue) *model.LLMPayload {
	p := &model.LLMPayload{}
	if v, ok := attrString(attrs, GenAIPrompt); ok {
		p.PromptText = &v
	}
	if v, ok := attrString(attrs, GenAICompletion); ok {
		p.OutputText = &v
	}
	if v, ok := attrString(attrs, GenAIFinishReason); ok {
		p.FinishReason = &v
	}
	if v, ok := attrString(attrs, GenAIRequestModel); ok {
		p.ModelName = &v
	} else if v, ok := attrString(attrs, GenAIResponseModel); ok {
		p.ModelName = &v
	}
	if v, ok := attrString(attrs, GenAISystem); ok {
		p.ModelProvider = &v
	}
	if n, ok := attrInt(attrs, GenAIUsageInputTokens); ok {
		p.PromptTokens = &n
	}
	if n, ok := attrInt(attrs, GenAIUsageOutputTokens); ok {
		p.CompletionTokens = &n
	}
	if n, ok := attrInt(attrs, GenAIUsageTotalTokens); ok {
		p.TotalTokens = &n
	} else if p.PromptTokens != nil || p.CompletionTokens != nil {
		total := 0
		if p.PromptTokens != nil {
			total += *p.PromptTokens
		}
		if p.CompletionTokens != nil {
			total += *p.CompletionTokens
		}
		p.TotalTokens = &total
	}
	if f, ok := attrFloat(attrs, GenAIUsageCost); ok {
		p.Cost = &f
	}
	if v, ok := attrString(attrs, "llm.tool_calls"); ok && json.Valid([]byte(v)) {
		p.ToolCallRequests = json.RawMessage(v)
	}
	return p
}

func toolPayload(attrs map[string]*commonpb.AnyValue) *model.ToolPayload {
	p := &model.ToolPayload{}
	if v, ok := attrString(attrs, GenAIToolName); ok {
		p.ToolName = &v
	} else if v, ok := attrString(attrs, OpenInferenceToolName); ok {
		p.ToolName = &v
	}
	if v, ok := attrString(attrs, AttrToolArguments); ok {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(v), &args); err == nil {
			p.ToolArgs = args
		} else {
			p.ToolArgs = map[string]interface{}{"raw": v}
		}
	}
	if v, ok := attrString(attrs, AttrToolResponse); ok {
		p.ToolResponse = &v
	} else if v, ok := attrString(attrs, AttrOutputValue); ok {
		p.ToolResponse = &v
	}
	if v, ok := attrString(attrs, AttrToolStatus); ok {
		p.ToolStatus = &v
		p.IsToolError = v == "error"
	}
	return p
}

func chainPayload(attrs map[string]*commonpb.AnyValue) *model.ChainPayload {
	p := &model.ChainPayload{}
	if v, ok := attrString(attrs, AttrInputValue); ok {
		p.InputMessages = asMessages(v, "input")
	}
	if v, ok := attrString(attrs, AttrOutputValue); ok {
		p.OutputMessages = asMessages(v, "output")
	}
	return p
}

// asMessages keeps a JSON message list as-is and wraps bare strings into a
// one-element content message.
func asMessages(v, role string) []map[string]interface{} {
	var msgs []map[string]interface{}
	if err := json.Unmarshal([]byte(v), &msgs); err == nil {
		return msgs
	}
	var one map[string]interface{}
	if err := json.Unmarshal([]byte(v), &one); err == nil {
		return []map[string]interface{}{one}
	}
	return []map[string]interface{}{{"role": role, "content": v}}
}
