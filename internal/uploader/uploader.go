package uploader

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
)

// Batch is one compressed trace archive bound for the analytics sink.
type Batch struct {
	TraceID string
	Data    []byte
}

type Config struct {
	SinkURL        string
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	InFlight       int
}

// Sink is the delivery surface the ingest collector depends on.
type Sink interface {
	Send(ctx context.Context, b Batch)
	WaitForCompletion(ctx context.Context) error
}

// Uploader delivers trace archives to a downstream HTTP sink. A weighted
// semaphore bounds in-flight requests; retryable failures back off
// exponentially with jitter up to MaxAttempts.
type Uploader struct {
	cfg    Config
	sem    *semaphore.Weighted
	slots  int64
	client *http.Client
}

func New(cfg Config) *Uploader {
	slots := int64(max(1, cfg.InFlight))
	return &Uploader{
		cfg:   cfg,
		sem:   semaphore.NewWeighted(slots),
		slots: slots,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (u *Uploader) Send(ctx context.Context, b Batch) {
	if err := u.sem.Acquire(ctx, 1); err != nil {
		slog.Warn("uploader ctx cancelled before send", "trace_id", b.TraceID)
		return
	}
	go func() {
		defer u.sem.Release(1)
		u.send(ctx, b)
	}()
}

// WaitForCompletion blocks until every in-flight send has finished or the
// context expires.
func (u *Uploader) WaitForCompletion(ctx context.Context) error {
	if err := u.sem.Acquire(ctx, u.slots); err != nil {
		return err
	}
	u.sem.Release(u.slots)
	return nil
}

func (u *Uploader) send(ctx context.Context, b Batch) {
	var attempt int
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.SinkURL, bytes.NewReader(b.Data))
		req.Header.Set("Content-Type", "application/x-ndjson")
		req.Header.Set("Content-Encoding", "zstd")
		req.Header.Set("X-Trace-Id", b.TraceID)

		resp, err := u.client.Do(req)
		if err == nil && (resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted) {
			resp.Body.Close()
			slog.Info("trace archive delivered", "trace_id", b.TraceID)
			return
		}

		shouldRetry := false
		if err != nil {
			shouldRetry = true
		} else if resp != nil {
			switch resp.StatusCode {
			case http.StatusBadGateway,
				http.StatusServiceUnavailable,
				http.StatusGatewayTimeout,
				http.StatusRequestTimeout,
				http.StatusTooEarly,
				http.StatusTooManyRequests,
				http.StatusInternalServerError,
				499: // client closed request
				shouldRetry = true
			}
		}

		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			slog.Error("archive delivery failed",
				"trace_id", b.TraceID, "attempts", attempt, "err", err,
				"status", resp.StatusCode, "response", string(body),
				"will_retry", shouldRetry)
		}

		if !shouldRetry {
			slog.Error("archive delivery failed; dropping batch (non-retryable error)",
				"trace_id", b.TraceID, "attempts", attempt, "err", err)
			return
		}

		attempt++
		if attempt >= u.cfg.MaxAttempts {
			slog.Error("archive delivery failed; dropping batch (max attempts reached)",
				"trace_id", b.TraceID, "attempts", attempt, "err", err)
			return
		}
		delay := backoff(u.cfg.BackoffInitial, u.cfg.BackoffMax, attempt)
		slog.Warn("archive delivery retry", "trace_id", b.TraceID, "attempt", attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	d := time.Duration(exp)
	if d > max {
		d = max
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	r := binary.BigEndian.Uint64(b[:])
	jitter := time.Duration(r % uint64(d/2))
	return d/2 + jitter
}
