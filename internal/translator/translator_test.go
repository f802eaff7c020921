package translator

import (
	"testing"
	"time"

	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracesdkpb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/harryn0502/tracelens/internal/model"
)

func strAttr(key, val string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: val}},
	}
}

func intAttr(key string, val int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: val}},
	}
}

func floatAttr(key string, val float64) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: val}},
	}
}

var (
	testTraceID = []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	rootSpanID  = []byte{1, 1, 1, 1, 1, 1, 1, 1}
	llmSpanID   = []byte{2, 2, 2, 2, 2, 2, 2, 2}
	toolSpanID  = []byte{3, 3, 3, 3, 3, 3, 3, 3}
	testStartNs = uint64(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixNano())
	testEndNs   = testStartNs + uint64(time.Second)
)

func otlpSpan(spanID, parentID []byte, name string, attrs ...*commonpb.KeyValue) *tracesdkpb.Span {
	return &tracesdkpb.Span{
		TraceId:           testTraceID,
		SpanId:            spanID,
		ParentSpanId:      parentID,
		Name:              name,
		StartTimeUnixNano: testStartNs,
		EndTimeUnixNano:   testEndNs,
		Attributes:        attrs,
	}
}

func request(spans ...*tracesdkpb.Span) *collectortracepb.ExportTraceServiceRequest {
	return &collectortracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracesdkpb.ResourceSpans{{
			ScopeSpans: []*tracesdkpb.ScopeSpans{{Spans: spans}},
		}},
	}
}

func TestTranslateBasicHierarchy(t *testing.T) {
	tr := NewTranslator()
	spans := tr.Translate(request(
		otlpSpan(rootSpanID, nil, "agent_run"),
		otlpSpan(llmSpanID, rootSpanID, "completion",
			strAttr(GenAIRequestModel, "gpt-4o"),
			strAttr(GenAISystem, "openai"),
			intAttr(GenAIUsageInputTokens, 100),
			intAttr(GenAIUsageOutputTokens, 50),
			floatAttr(GenAIUsageCost, 0.02),
		),
	))
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	root, llm := spans[0], spans[1]
	if root.RunKind != model.RunKindRoot {
		t.Errorf("parentless span without hints should be root, got %s", root.RunKind)
	}
	if root.ParentID != nil {
		t.Error("root span should have no parent")
	}
	if llm.RunKind != model.RunKindLLM {
		t.Errorf("gen_ai model attr should make an llm span, got %s", llm.RunKind)
	}
	if llm.ParentID == nil || *llm.ParentID != root.ID {
		t.Error("parent id not widened consistently with span ids")
	}
	if llm.TraceID == nil || *llm.TraceID != *root.TraceID {
		t.Error("spans of one request should share a trace id")
	}
	if llm.LLM == nil {
		t.Fatal("llm payload missing")
	}
	if *llm.LLM.ModelName != "gpt-4o" || *llm.LLM.ModelProvider != "openai" {
		t.Errorf("model fields wrong: %+v", llm.LLM)
	}
	if *llm.LLM.PromptTokens != 100 || *llm.LLM.CompletionTokens != 50 {
		t.Errorf("token fields wrong: %+v", llm.LLM)
	}
	if *llm.LLM.TotalTokens != 150 {
		t.Errorf("total tokens should be derived from the parts, got %d", *llm.LLM.TotalTokens)
	}
	if *llm.LLM.Cost != 0.02 {
		t.Errorf("cost wrong: %v", *llm.LLM.Cost)
	}
}

func TestTranslateToolSpan(t *testing.T) {
	tr := NewTranslator()
	spans := tr.Translate(request(
		otlpSpan(toolSpanID, rootSpanID, "search",
			strAttr(GenAIToolName, "web_search"),
			strAttr(AttrToolArguments, `{"query":"weather"}`),
			strAttr(AttrToolStatus, "error"),
		),
	))
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.RunKind != model.RunKindTool {
		t.Fatalf("tool name attr should make a tool span, got %s", s.RunKind)
	}
	if s.Tool == nil || *s.Tool.ToolName != "web_search" {
		t.Errorf("tool payload wrong: %+v", s.Tool)
	}
	if s.Tool.ToolArgs["query"] != "weather" {
		t.Errorf("tool args not decoded: %v", s.Tool.ToolArgs)
	}
	if !s.Tool.IsToolError {
		t.Error("error status should flag the tool call")
	}
}

func TestTranslateExplicitKindWins(t *testing.T) {
	tr := NewTranslator()
	spans := tr.Translate(request(
		otlpSpan(llmSpanID, rootSpanID, "spanname",
			strAttr(TraceLoopSpanKind, "workflow"),
			strAttr(GenAIRequestModel, "gpt-4o"), // would imply llm
		),
	))
	if spans[0].RunKind != model.RunKindChain {
		t.Errorf("explicit kind attr should win, got %s", spans[0].RunKind)
	}
}

func TestTranslateZeroTimestamps(t *testing.T) {
	sp := otlpSpan(llmSpanID, rootSpanID, "open")
	sp.EndTimeUnixNano = 0
	tr := NewTranslator()
	spans := tr.Translate(request(sp))
	if spans[0].EndTime != nil {
		t.Error("zero end timestamp should map to nil")
	}
	if spans[0].StartTime == nil {
		t.Error("start time lost")
	}

	sp2 := otlpSpan(toolSpanID, rootSpanID, "broken")
	sp2.StartTimeUnixNano = 0
	spans = tr.Translate(request(sp2))
	if spans[0].StartTime != nil {
		t.Error("zero start timestamp should map to nil for the pipeline to flag")
	}
}

func TestTranslateErrorStatus(t *testing.T) {
	sp := otlpSpan(toolSpanID, rootSpanID, "failed")
	sp.Status = &tracesdkpb.Status{
		Code:    tracesdkpb.Status_STATUS_CODE_ERROR,
		Message: "connection refused",
	}
	tr := NewTranslator()
	spans := tr.Translate(request(sp))
	if spans[0].Error == nil || *spans[0].Error != "connection refused" {
		t.Errorf("status error not mapped: %v", spans[0].Error)
	}
}

func TestTranslateSkipsBadIDs(t *testing.T) {
	bad := otlpSpan([]byte{1, 2}, nil, "short-id")
	good := otlpSpan(rootSpanID, nil, "fine")
	tr := NewTranslator()
	spans := tr.Translate(request(bad, good))
	if len(spans) != 1 {
		t.Fatalf("unconvertible span should be skipped, got %d spans", len(spans))
	}
	if *spans[0].Name != "fine" {
		t.Errorf("wrong span survived: %s", *spans[0].Name)
	}
}

func TestIDWideningDeterministic(t *testing.T) {
	a, err := idToUUID(rootSpanID)
	if err != nil {
		t.Fatalf("widening failed: %v", err)
	}
	b, _ := idToUUID(rootSpanID)
	if a != b {
		t.Error("same bytes should widen to the same UUID")
	}
	c, _ := idToUUID(llmSpanID)
	if a == c {
		t.Error("different bytes should widen to different UUIDs")
	}
}
