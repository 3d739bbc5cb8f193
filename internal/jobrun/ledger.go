package jobrun

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger records one row in ops.job_runs per batch invocation. It is
// best effort: a ledger write that fails is logged and swallowed, never
// surfaced to the job it is tracking. Start returns 0 when the insert
// itself failed and Complete/Fail treat a zero run id as a no-op.
type Ledger struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewLedger(db *pgxpool.Pool, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{db: db, log: logger}
}

func (l *Ledger) Start(ctx context.Context, jobName, functionName, triggeredBy, requestID string) int64 {
	var runID int64
	err := l.db.QueryRow(ctx, `
		INSERT INTO ops.job_runs (job_name, function_name, triggered_by, request_id, status, started_at)
		VALUES ($1, $2, $3, $4, 'running', now())
		RETURNING id
	`, jobName, functionName, triggeredBy, requestID).Scan(&runID)
	if err != nil {
		l.log.Error("job run start not recorded", "job", jobName, "err", err)
		return 0
	}
	return runID
}

func (l *Ledger) Complete(ctx context.Context, runID int64, duration time.Duration, processed, errCount, itemsAffected int, summary string) {
	if runID == 0 {
		return
	}
	_, err := l.db.Exec(ctx, `
		UPDATE ops.job_runs
		SET status = 'success',
		    completed_at = now(),
		    duration_ms = $2,
		    processed = $3,
		    errors = $4,
		    items_affected = $5,
		    summary = $6
		WHERE id = $1
	`, runID, duration.Milliseconds(), processed, errCount, itemsAffected, clip(summary, 2048))
	if err != nil {
		l.log.Error("job run completion not recorded", "run_id", runID, "err", err)
	}
}

func (l *Ledger) Fail(ctx context.Context, runID int64, duration time.Duration, jobErr error, summary string) {
	if runID == 0 {
		return
	}
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	_, err := l.db.Exec(ctx, `
		UPDATE ops.job_runs
		SET status = 'error',
		    completed_at = now(),
		    duration_ms = $2,
		    error_message = $3,
		    summary = $4
		WHERE id = $1
	`, runID, duration.Milliseconds(), clip(msg, 1024), clip(summary, 2048))
	if err != nil {
		l.log.Error("job run failure not recorded", "run_id", runID, "err", err)
	}
}

// Run is one ledger row, as served by the trigger API.
type Run struct {
	ID           int64      `json:"id"`
	JobName      string     `json:"job_name"`
	FunctionName string     `json:"function_name"`
	TriggeredBy  string     `json:"triggered_by"`
	RequestID    string     `json:"request_id"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMs   *int64     `json:"duration_ms,omitempty"`
	Processed    *int       `json:"processed,omitempty"`
	Errors       *int       `json:"errors,omitempty"`
	Summary      *string    `json:"summary,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := l.db.Query(ctx, `
		SELECT id, job_name, function_name, triggered_by, request_id, status,
		       started_at, completed_at, duration_ms, processed, errors, summary, error_message
		FROM ops.job_runs
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Run, 0, limit)
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.JobName, &r.FunctionName, &r.TriggeredBy, &r.RequestID, &r.Status,
			&r.StartedAt, &r.CompletedAt, &r.DurationMs, &r.Processed, &r.Errors, &r.Summary, &r.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max]
	}
	return s
}
