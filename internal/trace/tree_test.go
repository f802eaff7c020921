package trace

import (
	"math/rand"
	"testing"
	"time"

	"github.com/harryn0502/tracelens/internal/model"
	"github.com/harryn0502/tracelens/internal/util"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ts(sec int) *time.Time {
	t := base.Add(time.Duration(sec) * time.Second)
	return &t
}

func span(id, parent string, startSec int) *model.Span {
	s := &model.Span{
		ID:        id,
		TraceID:   util.StringPtr("trace1"),
		RunKind:   model.RunKindChain,
		StartTime: ts(startSec),
	}
	if parent != "" {
		s.ParentID = util.StringPtr(parent)
	}
	return s
}

func TestBuildBasicTree(t *testing.T) {
	spans := []*model.Span{
		span("a", "", 0),
		span("c", "a", 2),
		span("b", "a", 1),
	}

	f := Build(spans, BuildOptions{})
	if len(f.Roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(f.Roots))
	}
	root := f.Roots[0]
	if root.Span.ID != "a" {
		t.Fatalf("expected root a, got %s", root.Span.ID)
	}
	if len(root.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(root.Children))
	}
	if root.Children[0].Span.ID != "b" || root.Children[1].Span.ID != "c" {
		t.Errorf("children not in chronological order: %s, %s",
			root.Children[0].Span.ID, root.Children[1].Span.ID)
	}
	if len(f.Diagnostics) != 0 {
		t.Errorf("expected no diagnostics, got %v", f.Diagnostics)
	}
}

func TestBuildChildrenTieBreakByID(t *testing.T) {
	spans := []*model.Span{
		span("a", "", 0),
		span("z", "a", 1),
		span("m", "a", 1),
	}

	f := Build(spans, BuildOptions{})
	root := f.Roots[0]
	if root.Children[0].Span.ID != "m" || root.Children[1].Span.ID != "z" {
		t.Errorf("identical start times should order by id: got %s, %s",
			root.Children[0].Span.ID, root.Children[1].Span.ID)
	}
}

func TestBuildUnresolvedParent(t *testing.T) {
	spans := []*model.Span{
		span("a", "", 0),
		span("orphan", "missing", 1),
	}

	f := Build(spans, BuildOptions{})
	if len(f.Roots) != 2 {
		t.Fatalf("expected orphan promoted to root, got %d roots", len(f.Roots))
	}
	if len(f.Diagnostics) != 1 || f.Diagnostics[0].Kind != model.DiagUnresolvedParent {
		t.Fatalf("expected one unresolved-parent diagnostic, got %v", f.Diagnostics)
	}
	if f.Diagnostics[0].SpanID != "orphan" {
		t.Errorf("diagnostic should name the orphan, got %s", f.Diagnostics[0].SpanID)
	}
}

func TestBuildSelfParent(t *testing.T) {
	spans := []*model.Span{span("a", "a", 0)}

	f := Build(spans, BuildOptions{})
	if len(f.Roots) != 1 {
		t.Fatalf("expected self-parented span promoted to root, got %d roots", len(f.Roots))
	}
	if len(f.Diagnostics) != 1 || f.Diagnostics[0].Kind != model.DiagCycleDetected {
		t.Fatalf("expected cycle diagnostic, got %v", f.Diagnostics)
	}
}

func TestBuildCyclePair(t *testing.T) {
	spans := []*model.Span{
		span("x", "y", 0),
		span("y", "x", 1),
	}

	f := Build(spans, BuildOptions{})
	// Neither edge can attach without closing the loop.
	if len(f.Roots) != 2 {
		t.Fatalf("expected both cycle members promoted to roots, got %d", len(f.Roots))
	}
	cycles := 0
	for _, d := range f.Diagnostics {
		if d.Kind == model.DiagCycleDetected {
			cycles++
		}
	}
	if cycles == 0 {
		t.Error("expected cycle diagnostics")
	}
	for _, root := range f.Roots {
		root.Walk(func(n *Node) {
			if len(n.Children) > 0 && n.Children[0].Span.ID == root.Span.ID {
				t.Error("cycle survived reconstruction")
			}
		})
	}
}

func TestBuildDuplicateFirstWins(t *testing.T) {
	first := span("a", "", 0)
	first.Name = util.StringPtr("first")
	second := span("a", "", 5)
	second.Name = util.StringPtr("second")

	f := Build([]*model.Span{first, second}, BuildOptions{Duplicates: DuplicateFirstWins})
	if got := *f.Nodes["a"].Span.Name; got != "first" {
		t.Errorf("first-wins should keep the first span, got %s", got)
	}
	if len(f.Diagnostics) != 1 || f.Diagnostics[0].Kind != model.DiagDuplicateID {
		t.Errorf("expected duplicate diagnostic, got %v", f.Diagnostics)
	}
}

func TestBuildDuplicateLastWins(t *testing.T) {
	first := span("a", "", 0)
	first.Name = util.StringPtr("first")
	second := span("a", "", 5)
	second.Name = util.StringPtr("second")

	f := Build([]*model.Span{first, second}, BuildOptions{Duplicates: DuplicateLastWins})
	if got := *f.Nodes["a"].Span.Name; got != "second" {
		t.Errorf("last-wins should keep the last span, got %s", got)
	}
}

func TestBuildDuplicateReject(t *testing.T) {
	spans := []*model.Span{
		span("root", "", 0),
		span("a", "root", 1),
		span("a", "root", 2),
	}

	f := Build(spans, BuildOptions{Duplicates: DuplicateReject})
	if _, ok := f.Nodes["a"]; ok {
		t.Error("reject policy should drop every copy of a duplicated id")
	}
	if len(f.Roots) != 1 || len(f.Roots[0].Children) != 0 {
		t.Errorf("only the root should remain, got %d roots", len(f.Roots))
	}
}

func TestBuildNilAndEmptySpansIgnored(t *testing.T) {
	spans := []*model.Span{
		nil,
		{ID: "", RunKind: model.RunKindChain},
		span("a", "", 0),
	}

	f := Build(spans, BuildOptions{})
	if len(f.Nodes) != 1 {
		t.Fatalf("expected 1 retained span, got %d", len(f.Nodes))
	}
}

func TestBuildPermutationInvariant(t *testing.T) {
	mk := func() []*model.Span {
		return []*model.Span{
			span("a", "", 0),
			span("b", "a", 1),
			span("c", "a", 2),
			span("d", "b", 3),
			span("e", "b", 4),
		}
	}

	want := Build(mk(), BuildOptions{})
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		spans := mk()
		rng.Shuffle(len(spans), func(i, j int) { spans[i], spans[j] = spans[j], spans[i] })
		got := Build(spans, BuildOptions{})
		if !sameShape(want.Roots[0], got.Roots[0]) {
			t.Fatalf("permutation %d produced a different tree", i)
		}
	}
}

func sameShape(a, b *Node) bool {
	if a.Span.ID != b.Span.ID || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !sameShape(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

func TestTraceIDFallsBackToRootSpanID(t *testing.T) {
	s := span("a", "", 0)
	s.TraceID = nil
	f := Build([]*model.Span{s}, BuildOptions{})
	if got := f.Roots[0].TraceID(); got != "a" {
		t.Errorf("expected trace id to fall back to span id, got %s", got)
	}
}
