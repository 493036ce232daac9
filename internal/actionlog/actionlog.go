// Package actionlog records every SMS and relay attempt in SQLite.
package actionlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"thermalguard/internal/cooldown"
)

type Kind string

const (
	KindSMS   Kind = "sms"
	KindRelay Kind = "relay"
)

type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeCooldown Outcome = "cooldown"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

type Action struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Detail  string    `json:"detail"`
	Outcome Outcome   `json:"outcome"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// OutcomeOf classifies the error an action returned. rejected lists the
// input-validation errors of the caller.
func OutcomeOf(err error, rejected ...error) Outcome {
	if err == nil {
		return OutcomeSent
	}
	if errors.Is(err, cooldown.ErrCoolingDown) {
		return OutcomeCooldown
	}
	for _, r := range rejected {
		if errors.Is(err, r) {
			return OutcomeRejected
		}
	}
	return OutcomeFailed
}

type Repository interface {
	Insert(ctx context.Context, a Action) (Action, error)
	List(ctx context.Context, kind Kind, limit int) ([]Action, error)
}

type repositoryImpl struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db, now: time.Now}
}

// Insert stores a, filling in ID and At when empty.
func (r *repositoryImpl) Insert(ctx context.Context, a Action) (Action, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.At.IsZero() {
		a.At = r.now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO actions (id, kind, detail, outcome, error, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Kind), a.Detail, string(a.Outcome), a.Error, a.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Action{}, fmt.Errorf("insert action: %w", err)
	}
	return a, nil
}

// List returns the newest actions first. An empty kind lists all kinds.
func (r *repositoryImpl) List(ctx context.Context, kind Kind, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, detail, outcome, error, ts FROM actions
		 WHERE (? = '' OR kind = ?)
		 ORDER BY ts DESC LIMIT ?`,
		string(kind), string(kind), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close actions rows", "error", err)
		}
	}()

	var out []Action
	for rows.Next() {
		var a Action
		var kindStr, outcomeStr, ts string
		if err := rows.Scan(&a.ID, &kindStr, &a.Detail, &outcomeStr, &a.Error, &ts); err != nil {
			return nil, err
		}
		a.Kind, a.Outcome = Kind(kindStr), Outcome(outcomeStr)
		if a.At, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Recorder stores actions best-effort: storage errors are logged, never
// returned, so a broken log cannot block an alert.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
}

func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record stores the result of one attempt and returns the stored action.
// A nil Recorder only classifies.
func (r *Recorder) Record(ctx context.Context, kind Kind, detail string, err error, rejected ...error) Action {
	a := Action{Kind: kind, Detail: detail, Outcome: OutcomeOf(err, rejected...)}
	if err != nil {
		a.Error = err.Error()
	}
	if r == nil || r.repo == nil {
		return a
	}
	stored, insErr := r.repo.Insert(ctx, a)
	if insErr != nil {
		r.logger.Error("failed to record action", "kind", kind, "error", insErr)
		return a
	}
	return stored
}
