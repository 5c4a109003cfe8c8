package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS console_audit (
	id          UUID PRIMARY KEY,
	operator    TEXT NOT NULL,
	action      TEXT NOT NULL,
	schedule_id INTEGER,
	class_id    INTEGER,
	student_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	event_date  TEXT,
	detail      TEXT,
	occurred_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS console_audit_schedule_idx ON console_audit (schedule_id, occurred_at DESC);
`

// Repository persists audit events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the audit table if missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Insert writes an event. Replays of the same id are ignored.
func (r *Repository) Insert(ctx context.Context, evt Event) error {
	if evt.Operator == "" || evt.Action == "" {
		return errors.New("operator and action required")
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	ids, err := json.Marshal(nonNil(evt.StudentIDs))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO console_audit (id, operator, action, schedule_id, class_id, student_ids, event_date, detail, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, evt.Operator, string(evt.Action), nullInt(evt.ScheduleID), nullInt(evt.ClassID), string(ids), evt.Date, evt.Detail, evt.At)
	return err
}

// Filter narrows List.
type Filter struct {
	ScheduleID int
	StudentID  int
	Limit      int
	Offset     int
}

// List returns events newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Event, error) {
	query, args := buildListQuery(f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []Event{}
	for rows.Next() {
		var (
			evt                 Event
			action, ids         string
			scheduleID, classID sql.NullInt64
			date, detail        sql.NullString
		)
		if err := rows.Scan(&evt.ID, &evt.Operator, &action, &scheduleID, &classID, &ids, &date, &detail, &evt.At); err != nil {
			return nil, err
		}
		evt.Action = Action(action)
		evt.ScheduleID = int(scheduleID.Int64)
		evt.ClassID = int(classID.Int64)
		evt.Date = date.String
		evt.Detail = detail.String
		if err := json.Unmarshal([]byte(ids), &evt.StudentIDs); err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}

func buildListQuery(f Filter) (string, []any) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT id, operator, action, schedule_id, class_id, student_ids::text, event_date, detail, occurred_at FROM console_audit`
	args := []any{}
	clauses := []string{}
	if f.ScheduleID > 0 {
		args = append(args, f.ScheduleID)
		clauses = append(clauses, "schedule_id = $"+strconv.Itoa(len(args)))
	}
	if f.StudentID > 0 {
		args = append(args, "["+strconv.Itoa(f.StudentID)+"]")
		clauses = append(clauses, "student_ids @> $"+strconv.Itoa(len(args))+"::jsonb")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY occurred_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, f.Limit, f.Offset)
	return query, args
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v > 0}
}

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}
