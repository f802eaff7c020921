package trace

import (
	"fmt"

	"github.com/harryn0502/tracelens/internal/model"
)

// Normalize projects one span into its canonical step record. Root spans
// yield nil: they seed the trace aggregate instead of the record stream.
// index and prevID come from the sequencer; malformed spans (no start time)
// are passed with index 0.
//
// Latency is derived only when both timestamps are present and end does not
// precede start; a reversed interval marks the record malformed and leaves
// latency unset.
func Normalize(span *model.Span, traceID string, index int, prevID *string) (*model.StepRecord, []model.Diagnostic) {
	if span.RunKind == model.RunKindRoot {
		return nil, nil
	}

	rec := &model.StepRecord{
		StepID:         span.ID,
		TraceID:        traceID,
		StepIndex:      index,
		PreviousStepID: prevID,
		Name:           span.Name,
		StartTime:      span.StartTime,
		EndTime:        span.EndTime,
		Error:          span.Error,
	}

	var diags []model.Diagnostic
	switch span.RunKind {
	case model.RunKindLLM:
		rec.IsLLM = true
		rec.LLM = span.LLM
	case model.RunKindTool:
		rec.IsTool = true
		rec.Tool = span.Tool
	case model.RunKindChain:
		rec.IsChain = true
		rec.Chain = span.Chain
	default:
		diags = append(diags, model.Diagnostic{
			Kind:   model.DiagUnknownRunKind,
			SpanID: span.ID,
			Detail: fmt.Sprintf("run_kind %q", span.RunKind),
		})
	}

	switch {
	case span.StartTime == nil:
		rec.Malformed = true
		diags = append(diags, model.Diagnostic{
			Kind:   model.DiagMalformedSpan,
			SpanID: span.ID,
			Detail: "missing start_time",
		})
	case span.EndTime != nil && span.EndTime.Before(*span.StartTime):
		rec.Malformed = true
		diags = append(diags, model.Diagnostic{
			Kind:   model.DiagMalformedSpan,
			SpanID: span.ID,
			Detail: "end_time precedes start_time",
		})
	case span.EndTime != nil:
		ms := span.EndTime.Sub(*span.StartTime).Milliseconds()
		rec.LatencyMs = &ms
	}
	return rec, diags
}
