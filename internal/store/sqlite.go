// Package store projects processed traces into SQLite for SQL analytics:
// one row per trace, one row per step, plus type-specific tables mirroring
// the llm/tool/chain payloads. The raw spans are kept alongside so the tree
// and layout endpoints can re-run the pure pipeline on demand.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harryn0502/tracelens/internal/model"
	"github.com/harryn0502/tracelens/internal/trace"
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and applies the
// schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// In-memory SQLite gives every connection its own database; pin one
	// connection so schema and data survive across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS traces (
			trace_id TEXT PRIMARY KEY,
			name TEXT,
			start_time TEXT,
			end_time TEXT,
			status TEXT NOT NULL,
			error TEXT,
			total_cost REAL NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			span_count INTEGER NOT NULL DEFAULT 0,
			session_id TEXT,
			session_name TEXT,
			tags JSON
		)`,
		`CREATE TABLE IF NOT EXISTS steps (
			step_id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			step_index INTEGER NOT NULL,
			previous_step_id TEXT,
			name TEXT,
			is_llm INTEGER NOT NULL DEFAULT 0,
			is_tool INTEGER NOT NULL DEFAULT 0,
			is_chain INTEGER NOT NULL DEFAULT 0,
			start_time TEXT,
			end_time TEXT,
			latency_ms INTEGER,
			error TEXT,
			malformed INTEGER NOT NULL DEFAULT 0,
			record JSON NOT NULL,
			FOREIGN KEY(trace_id) REFERENCES traces(trace_id)
		)`,
		`CREATE TABLE IF NOT EXISTS llm_steps (
			step_id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			prompt_text TEXT,
			llm_output_text TEXT,
			finish_reason TEXT,
			model_name TEXT,
			model_provider TEXT,
			prompt_tokens INTEGER,
			completion_tokens INTEGER,
			total_tokens INTEGER,
			cost REAL,
			tool_call_requests JSON,
			FOREIGN KEY(step_id) REFERENCES steps(step_id)
		)`,
		`CREATE TABLE IF NOT EXISTS tool_steps (
			step_id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			tool_name TEXT,
			tool_args JSON,
			tool_status TEXT,
			tool_response TEXT,
			is_tool_error INTEGER NOT NULL DEFAULT 0,
			error_type TEXT,
			FOREIGN KEY(step_id) REFERENCES steps(step_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chain_steps (
			step_id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			input_messages JSON,
			output_messages JSON,
			FOREIGN KEY(step_id) REFERENCES steps(step_id)
		)`,
		`CREATE TABLE IF NOT EXISTS spans (
			trace_id TEXT NOT NULL,
			span_id TEXT NOT NULL,
			payload JSON NOT NULL,
			PRIMARY KEY(trace_id, span_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_trace ON steps(trace_id, step_index)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// SaveTrace writes one processed trace: its aggregate row, its step rows
// with type-specific projections, and the raw spans. Re-saving a trace
// replaces the previous projection.
func (s *SQLiteStore) SaveTrace(ctx context.Context, tr *trace.TraceResult, spans []*model.Span) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	agg := tr.Aggregate
	tags, _ := json.Marshal(agg.Tags)
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO traces (
			trace_id, name, start_time, end_time, status, error,
			total_cost, total_tokens, span_count, session_id, session_name, tags
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agg.TraceID, agg.Name, timeStr(agg.StartTime), timeStr(agg.EndTime),
		agg.Status, agg.Error, agg.TotalCost, agg.TotalTokens, agg.SpanCount,
		agg.SessionID, agg.SessionName, string(tags),
	); err != nil {
		return fmt.Errorf("failed to insert trace: %w", err)
	}

	// Clear any previous projection before re-inserting.
	for _, table := range []string{"llm_steps", "tool_steps", "chain_steps", "steps", "spans"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE trace_id = ?`, agg.TraceID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for i := range tr.Steps {
		if err := insertStep(ctx, tx, &tr.Steps[i]); err != nil {
			return err
		}
	}
	for _, sp := range spans {
		payload, err := json.Marshal(sp)
		if err != nil {
			return fmt.Errorf("failed to marshal span %s: %w", sp.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO spans (trace_id, span_id, payload) VALUES (?, ?, ?)`,
			agg.TraceID, sp.ID, string(payload),
		); err != nil {
			return fmt.Errorf("failed to insert span %s: %w", sp.ID, err)
		}
	}
	return tx.Commit()
}

func insertStep(ctx context.Context, tx *sql.Tx, rec *model.StepRecord) error {
	record, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal step %s: %w", rec.StepID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO steps (
			step_id, trace_id, step_index, previous_step_id, name,
			is_llm, is_tool, is_chain, start_time, end_time,
			latency_ms, error, malformed, record
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.StepID, rec.TraceID, rec.StepIndex, rec.PreviousStepID, rec.Name,
		boolInt(rec.IsLLM), boolInt(rec.IsTool), boolInt(rec.IsChain),
		timeStr(rec.StartTime), timeStr(rec.EndTime),
		rec.LatencyMs, rec.Error, boolInt(rec.Malformed), string(record),
	); err != nil {
		return fmt.Errorf("failed to insert step %s: %w", rec.StepID, err)
	}

	switch {
	case rec.IsLLM && rec.LLM != nil:
		var reqs interface{}
		if rec.LLM.ToolCallRequests != nil {
			reqs = string(rec.LLM.ToolCallRequests)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO llm_steps (
				step_id, trace_id, prompt_text, llm_output_text, finish_reason,
				model_name, model_provider, prompt_tokens, completion_tokens,
				total_tokens, cost, tool_call_requests
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.StepID, rec.TraceID, rec.LLM.PromptText, rec.LLM.OutputText,
			rec.LLM.FinishReason, rec.LLM.ModelName, rec.LLM.ModelProvider,
			rec.LLM.PromptTokens, rec.LLM.CompletionTokens, rec.LLM.TotalTokens,
			rec.LLM.Cost, reqs,
		)
	case rec.IsTool && rec.Tool != nil:
		args, _ := json.Marshal(rec.Tool.ToolArgs)
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO tool_steps (
				step_id, trace_id, tool_name, tool_args, tool_status,
				tool_response, is_tool_error, error_type
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.StepID, rec.TraceID, rec.Tool.ToolName, string(args),
			rec.Tool.ToolStatus, rec.Tool.ToolResponse,
			boolInt(rec.Tool.IsToolError), rec.Tool.ErrorType,
		)
	case rec.IsChain && rec.Chain != nil:
		in, _ := json.Marshal(rec.Chain.InputMessages)
		out, _ := json.Marshal(rec.Chain.OutputMessages)
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO chain_steps (
				step_id, trace_id, input_messages, output_messages
			) VALUES (?, ?, ?, ?)`,
			rec.StepID, rec.TraceID, string(in), string(out),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to insert typed step %s: %w", rec.StepID, err)
	}
	return nil
}

// ListTraces returns every stored aggregate, newest first.
func (s *SQLiteStore) ListTraces(ctx context.Context) ([]model.TraceAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, name, start_time, end_time, status, error,
		       total_cost, total_tokens, span_count, session_id, session_name, tags
		FROM traces
		ORDER BY start_time DESC, trace_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	defer rows.Close()

	var out []model.TraceAggregate
	for rows.Next() {
		agg, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *agg)
	}
	return out, rows.Err()
}

// GetTrace returns one aggregate, or sql.ErrNoRows.
func (s *SQLiteStore) GetTrace(ctx context.Context, traceID string) (*model.TraceAggregate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT trace_id, name, start_time, end_time, status, error,
		       total_cost, total_tokens, span_count, session_id, session_name, tags
		FROM traces WHERE trace_id = ?`, traceID)
	return scanTrace(row)
}

// ListSteps returns the full step records of a trace in step_index order;
// unsequenced (malformed) records come last.
func (s *SQLiteStore) ListSteps(ctx context.Context, traceID string) ([]model.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record FROM steps
		WHERE trace_id = ?
		ORDER BY step_index = 0, step_index, step_id`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var out []model.StepRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec model.StepRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode step record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SpansByTrace returns the raw spans of a trace for pipeline re-runs.
func (s *SQLiteStore) SpansByTrace(ctx context.Context, traceID string) ([]*model.Span, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM spans WHERE trace_id = ? ORDER BY span_id`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load spans: %w", err)
	}
	defer rows.Close()

	var out []*model.Span
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var sp model.Span
		if err := json.Unmarshal([]byte(raw), &sp); err != nil {
			return nil, fmt.Errorf("failed to decode span: %w", err)
		}
		out = append(out, &sp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrace(row rowScanner) (*model.TraceAggregate, error) {
	var agg model.TraceAggregate
	var start, end sql.NullString
	var tags sql.NullString
	if err := row.Scan(&agg.TraceID, &agg.Name, &start, &end, &agg.Status, &agg.Error,
		&agg.TotalCost, &agg.TotalTokens, &agg.SpanCount,
		&agg.SessionID, &agg.SessionName, &tags); err != nil {
		return nil, err
	}
	agg.StartTime = parseTime(start)
	agg.EndTime = parseTime(end)
	if tags.Valid && tags.String != "" && tags.String != "null" {
		_ = json.Unmarshal([]byte(tags.String), &agg.Tags)
	}
	return &agg, nil
}

func timeStr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
