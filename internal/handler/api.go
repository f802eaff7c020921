package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harryn0502/tracelens/internal/export"
	"github.com/harryn0502/tracelens/internal/layout"
	"github.com/harryn0502/tracelens/internal/model"
	"github.com/harryn0502/tracelens/internal/replay"
	"github.com/harryn0502/tracelens/internal/trace"
	"github.com/harryn0502/tracelens/internal/view"
)

// TraceStore is the read surface the query handlers depend on.
type TraceStore interface {
	ListTraces(ctx context.Context) ([]model.TraceAggregate, error)
	GetTrace(ctx context.Context, traceID string) (*model.TraceAggregate, error)
	ListSteps(ctx context.Context, traceID string) ([]model.StepRecord, error)
	SpansByTrace(ctx context.Context, traceID string) ([]*model.Span, error)
}

// API serves the query and replay surface over processed traces.
type API struct {
	Store      TraceStore
	Replay     *replay.Manager
	Duplicates trace.DuplicatePolicy
}

// TreeNode is the recursive tree shape handed to UI renderers.
type TreeNode struct {
	ID        string      `json:"id"`
	Name      *string     `json:"name,omitempty"`
	RunKind   string      `json:"run_kind"`
	StartTime *time.Time  `json:"start_time"`
	EndTime   *time.Time  `json:"end_time"`
	Error     *string     `json:"error,omitempty"`
	Children  []*TreeNode `json:"children,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListTraces returns every stored trace aggregate.
func (a *API) ListTraces(w http.ResponseWriter, r *http.Request) {
	traces, err := a.Store.ListTraces(r.Context())
	if err != nil {
		handleError(w, r, http.StatusInternalServerError, err)
		return
	}
	if traces == nil {
		traces = []model.TraceAggregate{}
	}
	writeJSON(w, http.StatusOK, traces)
}

// GetTrace returns one aggregate row.
func (a *API) GetTrace(w http.ResponseWriter, r *http.Request) {
	agg, err := a.Store.GetTrace(r.Context(), chi.URLParam(r, "traceID"))
	if errors.Is(err, sql.ErrNoRows) {
		handleError(w, r, http.StatusNotFound, errors.New("trace not found"))
		return
	}
	if err != nil {
		handleError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// ListSteps returns a trace's step records, optionally reordered by a
// multi-key sort expression like ?sort=latency_ms:desc,name.
func (a *API) ListSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := a.Store.ListSteps(r.Context(), chi.URLParam(r, "traceID"))
	if err != nil {
		handleError(w, r, http.StatusInternalServerError, err)
		return
	}
	if expr := r.URL.Query().Get("sort"); expr != "" {
		state, err := view.Parse(expr)
		if err != nil {
			handleError(w, r, http.StatusBadRequest, err)
			return
		}
		state.Sort(steps)
	}
	if steps == nil {
		steps = []model.StepRecord{}
	}
	writeJSON(w, http.StatusOK, steps)
}

// Tree returns the reconstructed execution tree of a trace.
func (a *API) Tree(w http.ResponseWriter, r *http.Request) {
	tr, status, err := a.processTrace(r.Context(), chi.URLParam(r, "traceID"))
	if err != nil {
		handleError(w, r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, toTreeNode(tr.Root))
}

// Layout returns the positioned DAG of a trace. Node dimensions come from
// the query string; anything unset falls back to the engine defaults.
func (a *API) Layout(w http.ResponseWriter, r *http.Request) {
	tr, status, err := a.processTrace(r.Context(), chi.URLParam(r, "traceID"))
	if err != nil {
		handleError(w, r, status, err)
		return
	}
	q := r.URL.Query()
	opts := layout.Options{
		NodeWidth:     queryFloat(q.Get("node_width")),
		NodeHeight:    queryFloat(q.Get("node_height")),
		HorizontalGap: queryFloat(q.Get("h_gap")),
		VerticalGap:   queryFloat(q.Get("v_gap")),
	}
	seq := make(map[string]int, len(tr.Sequence))
	for _, st := range tr.Sequence {
		seq[st.Node.Span.ID] = st.Index
	}
	writeJSON(w, http.StatusOK, layout.Compute(tr.Root, seq, opts))
}

// Export streams the trace's zstd JSONL archive.
func (a *API) Export(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")
	tr, status, err := a.processTrace(r.Context(), traceID)
	if err != nil {
		handleError(w, r, status, err)
		return
	}
	data, err := export.Archive(tr, nil)
	if err != nil {
		handleError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Encoding", "zstd")
	w.Header().Set("X-Trace-Id", traceID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ReplayState selects the trace for replay (resetting the controller if a
// different trace was selected) and returns the current state.
func (a *API) ReplayState(w http.ResponseWriter, r *http.Request) {
	ctrl, status, err := a.selectReplay(r)
	if err != nil {
		handleError(w, r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// ReplayCommand handles play/pause/stop.
func (a *API) ReplayCommand(w http.ResponseWriter, r *http.Request) {
	ctrl, status, err := a.selectReplay(r)
	if err != nil {
		handleError(w, r, status, err)
		return
	}
	switch chi.URLParam(r, "command") {
	case "play":
		ctrl.Play()
	case "pause":
		ctrl.Pause()
	case "stop":
		ctrl.Stop()
	default:
		handleError(w, r, http.StatusNotFound, errors.New("unknown replay command"))
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// ReplaySeek jumps to the requested sequence, clamped by the controller.
func (a *API) ReplaySeek(w http.ResponseWriter, r *http.Request) {
	ctrl, status, err := a.selectReplay(r)
	if err != nil {
		handleError(w, r, status, err)
		return
	}
	var body struct {
		Sequence int `json:"sequence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handleError(w, r, http.StatusBadRequest, err)
		return
	}
	ctrl.Seek(body.Sequence)
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (a *API) selectReplay(r *http.Request) (*replay.Controller, int, error) {
	traceID := chi.URLParam(r, "traceID")
	if ctrl, ok := a.Replay.Current(traceID); ok {
		return ctrl, http.StatusOK, nil
	}
	tr, status, err := a.processTrace(r.Context(), traceID)
	if err != nil {
		return nil, status, err
	}
	return a.Replay.Select(traceID, len(tr.Sequence)), http.StatusOK, nil
}

// processTrace re-runs the pure pipeline over a trace's stored spans. The
// transform is deterministic and trace ids are distinct across its results,
// so exactly one result carries the requested id; a promoted root stored
// under its own span id resolves the same way.
func (a *API) processTrace(ctx context.Context, traceID string) (*trace.TraceResult, int, error) {
	spans, err := a.Store.SpansByTrace(ctx, traceID)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	if len(spans) == 0 {
		return nil, http.StatusNotFound, errors.New("trace not found")
	}
	res := trace.Process(spans, trace.BuildOptions{Duplicates: a.Duplicates})
	for i := range res.Traces {
		if res.Traces[i].TraceID == traceID {
			return &res.Traces[i], http.StatusOK, nil
		}
	}
	return nil, http.StatusNotFound, errors.New("trace not found")
}

func toTreeNode(n *trace.Node) *TreeNode {
	t := &TreeNode{
		ID:        n.Span.ID,
		Name:      n.Span.Name,
		RunKind:   n.Span.RunKind,
		StartTime: n.Span.StartTime,
		EndTime:   n.Span.EndTime,
		Error:     n.Span.Error,
	}
	for _, c := range n.Children {
		t.Children = append(t.Children, toTreeNode(c))
	}
	return t
}

func queryFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
