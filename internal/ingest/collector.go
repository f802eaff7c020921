// Package ingest buffers incoming spans per trace and decides when a trace
// has stopped arriving, at which point it runs the pure pipeline and hands
// the results to the store and the sink.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/harryn0502/tracelens/internal/export"
	"github.com/harryn0502/tracelens/internal/model"
	"github.com/harryn0502/tracelens/internal/trace"
	"github.com/harryn0502/tracelens/internal/uploader"
)

// Store is the persistence surface the collector writes through.
type Store interface {
	SaveTrace(ctx context.Context, tr *trace.TraceResult, spans []*model.Span) error
}

type Config struct {
	// FlushInterval is how often buffered traces are scanned for
	// completion (root span closed).
	FlushInterval time.Duration
	// TraceTTL forces a flush of traces that stopped receiving spans
	// without ever closing their root.
	TraceTTL time.Duration
	// GCInterval is how often the TTL scan runs.
	GCInterval time.Duration
	// Duplicates is the duplicate-id policy handed to the tree builder.
	Duplicates trace.DuplicatePolicy
}

type buffer struct {
	spans      []*model.Span
	lastSeen   time.Time
	rootClosed bool
}

// Collector owns the span channel. A single worker goroutine serializes all
// buffer access; Stop drains and flushes whatever remains.
type Collector struct {
	ch      chan *model.Span
	cfg     Config
	store   Store
	sink    uploader.Sink
	cancel  context.CancelFunc
	flushCh chan chan struct{}
	done    chan struct{}
}

func New(store Store, sink uploader.Sink, cfg Config, ch chan *model.Span) *Collector {
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 1 * time.Second
	}
	if cfg.GCInterval == 0 {
		cfg.GCInterval = 30 * time.Second
	}
	if cfg.TraceTTL == 0 {
		cfg.TraceTTL = 5 * time.Minute
	}
	return &Collector{
		ch:      ch,
		cfg:     cfg,
		store:   store,
		sink:    sink,
		flushCh: make(chan chan struct{}),
		done:    make(chan struct{}),
	}
}

func (c *Collector) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.worker(ctx)
}

func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

// Flush forces a completion scan, waits for the worker to acknowledge it,
// and then waits for in-flight sink deliveries. The acknowledgement matters:
// the sink only knows about sends the worker has already issued. After Stop
// the scan is skipped since the shutdown drain flushed everything.
func (c *Collector) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case c.flushCh <- ack:
		select {
		case <-ack:
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if c.sink == nil {
		return nil
	}
	return c.sink.WaitForCompletion(ctx)
}

func (c *Collector) worker(ctx context.Context) {
	defer close(c.done)

	buffers := make(map[string][]*model.Span)
	meta := make(map[string]*buffer)

	add := func(s *model.Span) {
		if s == nil || s.ID == "" {
			return
		}
		key := traceKey(s)
		buffers[key] = append(buffers[key], s)
		m := meta[key]
		if m == nil {
			m = &buffer{}
			meta[key] = m
		}
		m.lastSeen = time.Now()
		if (s.ParentID == nil || *s.ParentID == "") && s.EndTime != nil {
			m.rootClosed = true
		}
	}

	flushTrace := func(key string) {
		spans := buffers[key]
		delete(buffers, key)
		delete(meta, key)
		if len(spans) == 0 {
			return
		}
		res := trace.Process(spans, trace.BuildOptions{Duplicates: c.cfg.Duplicates})
		for _, d := range res.Diagnostics {
			slog.Warn("trace diagnostic", "kind", d.Kind, "span_id", d.SpanID, "detail", d.Detail)
		}
		for i := range res.Traces {
			tr := &res.Traces[i]
			if err := c.store.SaveTrace(context.Background(), tr, spans); err != nil {
				slog.Error("failed to persist trace", "trace_id", tr.TraceID, "err", err)
				continue
			}
			slog.Info("trace processed",
				"trace_id", tr.TraceID,
				"spans", tr.Aggregate.SpanCount,
				"status", tr.Aggregate.Status)
			if c.sink != nil {
				data, err := export.Archive(tr, res.Diagnostics)
				if err != nil {
					slog.Error("failed to build trace archive", "trace_id", tr.TraceID, "err", err)
					continue
				}
				c.sink.Send(context.Background(), uploader.Batch{TraceID: tr.TraceID, Data: data})
			}
		}
	}

	flushClosed := func() {
		for key, m := range meta {
			if m.rootClosed {
				flushTrace(key)
			}
		}
	}

	gc := func() {
		cutoff := time.Now().Add(-c.cfg.TraceTTL)
		for key, m := range meta {
			if m.lastSeen.Before(cutoff) {
				// Trace went quiet without closing its root; process what
				// arrived. The aggregate's end_time stays null.
				slog.Warn("flushing stale open trace", "trace", key)
				flushTrace(key)
			}
		}
	}

	flushTicker := time.NewTicker(c.cfg.FlushInterval)
	defer flushTicker.Stop()
	gcTicker := time.NewTicker(c.cfg.GCInterval)
	defer gcTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			for key := range buffers {
				flushTrace(key)
			}
			return

		case s := <-c.ch:
			add(s)

		case <-flushTicker.C:
			flushClosed()

		case ack := <-c.flushCh:
			flushClosed()
			close(ack)

		case <-gcTicker.C:
			gc()
		}
	}
}

// traceKey groups spans by producer-supplied trace id, falling back to the
// span's own id so an untagged root still forms a trace.
func traceKey(s *model.Span) string {
	if s.TraceID != nil && *s.TraceID != "" {
		return *s.TraceID
	}
	return s.ID
}
