// Package view holds presentation-side helpers for step listings: a
// multi-key, toggleable sort state evaluated left-to-right as one stable
// comparator.
package view

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harryn0502/tracelens/internal/model"
)

// Sortable step-list fields.
const (
	FieldStepIndex = "step_index"
	FieldStartTime = "start_time"
	FieldLatency   = "latency_ms"
	FieldName      = "name"
	FieldKind      = "kind"
	FieldError     = "error"
)

// Key is one (field, direction) pair.
type Key struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// SortState is an ordered list of keys. Earlier keys dominate; later keys
// break ties. The zero value sorts by step_index ascending.
type SortState []Key

// Toggle flips the direction of field if it is already a key, otherwise
// appends it ascending. The single mechanism covers both single- and
// multi-column sorting.
func (s SortState) Toggle(field string) SortState {
	for i, k := range s {
		if k.Field == field {
			out := append(SortState(nil), s...)
			out[i].Desc = !out[i].Desc
			return out
		}
	}
	return append(append(SortState(nil), s...), Key{Field: field})
}

// Parse reads a sort expression like "start_time:desc,name". Unknown fields
// are rejected so a typo surfaces instead of silently sorting by nothing.
func Parse(expr string) (SortState, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	var s SortState
	for _, part := range strings.Split(expr, ",") {
		field, dir, _ := strings.Cut(strings.TrimSpace(part), ":")
		switch field {
		case FieldStepIndex, FieldStartTime, FieldLatency, FieldName, FieldKind, FieldError:
		default:
			return nil, fmt.Errorf("unknown sort field %q", field)
		}
		switch dir {
		case "", "asc":
			s = append(s, Key{Field: field})
		case "desc":
			s = append(s, Key{Field: field, Desc: true})
		default:
			return nil, fmt.Errorf("unknown sort direction %q", dir)
		}
	}
	return s, nil
}

// Sort orders steps in place by the state's keys, falling back to
// step_index so the order is always total.
func (s SortState) Sort(steps []model.StepRecord) {
	sort.SliceStable(steps, func(i, j int) bool {
		for _, k := range s {
			c := compareField(&steps[i], &steps[j], k.Field)
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return steps[i].StepIndex < steps[j].StepIndex
	})
}

func compareField(a, b *model.StepRecord, field string) int {
	switch field {
	case FieldStepIndex:
		return a.StepIndex - b.StepIndex
	case FieldStartTime:
		switch {
		case a.StartTime == nil && b.StartTime == nil:
			return 0
		case a.StartTime == nil:
			return 1
		case b.StartTime == nil:
			return -1
		}
		return a.StartTime.Compare(*b.StartTime)
	case FieldLatency:
		switch {
		case a.LatencyMs == nil && b.LatencyMs == nil:
			return 0
		case a.LatencyMs == nil:
			return 1
		case b.LatencyMs == nil:
			return -1
		}
		switch {
		case *a.LatencyMs < *b.LatencyMs:
			return -1
		case *a.LatencyMs > *b.LatencyMs:
			return 1
		}
		return 0
	case FieldName:
		return strings.Compare(deref(a.Name), deref(b.Name))
	case FieldKind:
		return strings.Compare(a.Kind(), b.Kind())
	case FieldError:
		return strings.Compare(deref(a.Error), deref(b.Error))
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
