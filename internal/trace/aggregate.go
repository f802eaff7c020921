package trace

import "github.com/harryn0502/tracelens/internal/model"

// Aggregate folds the whole tree rooted at root into its trace-level
// roll-up. The fold is order-independent: cost and token sums treat absent
// fields as zero, status is error if any span carries an error, the time
// bounds are min(start) and max(end) with end forced to nil while any span
// is still open.
func Aggregate(root *Node) model.TraceAggregate {
	agg := model.TraceAggregate{
		TraceID:     root.TraceID(),
		Name:        root.Span.Name,
		Status:      model.StatusSuccess,
		SessionID:   root.Span.SessionID,
		SessionName: root.Span.SessionName,
		Tags:        root.Span.Tags,
	}

	open := false
	root.Walk(func(n *Node) {
		s := n.Span
		agg.SpanCount++
		if s.Error != nil {
			agg.Status = model.StatusError
			if agg.Error == nil {
				agg.Error = s.Error
			}
		}
		if s.StartTime != nil && (agg.StartTime == nil || s.StartTime.Before(*agg.StartTime)) {
			agg.StartTime = s.StartTime
		}
		if s.EndTime == nil {
			open = true
		} else if agg.EndTime == nil || s.EndTime.After(*agg.EndTime) {
			agg.EndTime = s.EndTime
		}
		if s.LLM != nil {
			if s.LLM.Cost != nil {
				agg.TotalCost += *s.LLM.Cost
			}
			if s.LLM.TotalTokens != nil {
				agg.TotalTokens += *s.LLM.TotalTokens
			}
		}
	})
	if open {
		agg.EndTime = nil
	}
	return agg
}
