package trace

import (
	"math/rand"
	"testing"

	"github.com/harryn0502/tracelens/internal/model"
	"github.com/harryn0502/tracelens/internal/util"
)

func llmSpan(id, parent string, startSec int, cost float64, tokens int) *model.Span {
	s := span(id, parent, startSec)
	s.RunKind = model.RunKindLLM
	s.EndTime = ts(startSec + 1)
	s.LLM = &model.LLMPayload{
		Cost:        util.Float64Ptr(cost),
		TotalTokens: util.IntPtr(tokens),
	}
	return s
}

func TestAggregateSums(t *testing.T) {
	root := span("root", "", 0)
	root.RunKind = model.RunKindRoot
	root.EndTime = ts(10)
	spans := []*model.Span{
		root,
		llmSpan("l1", "root", 1, 0.5, 100),
		llmSpan("l2", "root", 2, 0.25, 50),
		span("c1", "root", 3),
	}
	spans[3].EndTime = ts(4)

	f := Build(spans, BuildOptions{})
	agg := Aggregate(f.Roots[0])

	if agg.TraceID != "trace1" {
		t.Errorf("expected trace id trace1, got %s", agg.TraceID)
	}
	if agg.SpanCount != 4 {
		t.Errorf("expected 4 spans counted, got %d", agg.SpanCount)
	}
	if agg.TotalCost != 0.75 {
		t.Errorf("expected cost 0.75, got %v", agg.TotalCost)
	}
	if agg.TotalTokens != 150 {
		t.Errorf("expected 150 tokens, got %d", agg.TotalTokens)
	}
	if agg.Status != model.StatusSuccess {
		t.Errorf("expected success status, got %s", agg.Status)
	}
	if agg.StartTime == nil || !agg.StartTime.Equal(*ts(0)) {
		t.Errorf("expected start at min(start), got %v", agg.StartTime)
	}
	if agg.EndTime == nil || !agg.EndTime.Equal(*ts(10)) {
		t.Errorf("expected end at max(end), got %v", agg.EndTime)
	}
}

func TestAggregateErrorStatus(t *testing.T) {
	root := span("root", "", 0)
	root.EndTime = ts(5)
	failed := span("bad", "root", 1)
	failed.EndTime = ts(2)
	failed.Error = util.StringPtr("tool exploded")

	f := Build([]*model.Span{root, failed}, BuildOptions{})
	agg := Aggregate(f.Roots[0])
	if agg.Status != model.StatusError {
		t.Errorf("any failed span should fail the trace, got %s", agg.Status)
	}
	if agg.Error == nil || *agg.Error != "tool exploded" {
		t.Errorf("expected first error carried up, got %v", agg.Error)
	}
}

func TestAggregateOpenTrace(t *testing.T) {
	root := span("root", "", 0)
	root.EndTime = ts(10)
	open := span("open", "root", 1) // no end time

	f := Build([]*model.Span{root, open}, BuildOptions{})
	agg := Aggregate(f.Roots[0])
	if agg.EndTime != nil {
		t.Errorf("open span should force a null trace end, got %v", agg.EndTime)
	}
}

func TestAggregateMissingPayloadFieldsAreZero(t *testing.T) {
	root := span("root", "", 0)
	bare := span("llm", "root", 1)
	bare.RunKind = model.RunKindLLM
	bare.LLM = &model.LLMPayload{} // no cost, no tokens

	f := Build([]*model.Span{root, bare}, BuildOptions{})
	agg := Aggregate(f.Roots[0])
	if agg.TotalCost != 0 || agg.TotalTokens != 0 {
		t.Errorf("absent fields must contribute zero, got cost=%v tokens=%d",
			agg.TotalCost, agg.TotalTokens)
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	mk := func() []*model.Span {
		root := span("root", "", 0)
		root.EndTime = ts(20)
		return []*model.Span{
			root,
			llmSpan("a", "root", 1, 0.1, 10),
			llmSpan("b", "root", 2, 0.2, 20),
			llmSpan("c", "b", 3, 0.3, 30),
		}
	}

	want := Aggregate(Build(mk(), BuildOptions{}).Roots[0])
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 10; i++ {
		spans := mk()
		rng.Shuffle(len(spans), func(i, j int) { spans[i], spans[j] = spans[j], spans[i] })
		got := Aggregate(Build(spans, BuildOptions{}).Roots[0])
		if got.TotalCost != want.TotalCost || got.TotalTokens != want.TotalTokens ||
			got.SpanCount != want.SpanCount || got.Status != want.Status {
			t.Fatalf("permutation %d changed the aggregate: %+v vs %+v", i, got, want)
		}
	}
}

func TestAggregateSessionPassthrough(t *testing.T) {
	root := span("root", "", 0)
	root.SessionName = util.StringPtr("prod-agents")
	root.Tags = []string{"nightly"}

	agg := Aggregate(Build([]*model.Span{root}, BuildOptions{}).Roots[0])
	if agg.SessionName == nil || *agg.SessionName != "prod-agents" {
		t.Error("session name not carried onto the aggregate")
	}
	if len(agg.Tags) != 1 || agg.Tags[0] != "nightly" {
		t.Error("tags not carried onto the aggregate")
	}
}
