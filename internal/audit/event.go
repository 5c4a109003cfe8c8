package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schoolconsole/internal/queue"
)

// Action names a console mutation.
type Action string

const (
	ActionMarkAttendance    Action = "mark_attendance"
	ActionEnrollBulk        Action = "enroll_bulk"
	ActionUnenroll          Action = "unenroll"
	ActionRemoveFromSession Action = "remove_from_session"
	ActionCreateStudent     Action = "create_student"
)

// MessageType tags audit messages on the queue.
const MessageType = "audit"

// Event is one successful mutation performed through the console.
type Event struct {
	ID         string    `json:"id"`
	Operator   string    `json:"operator"`
	Action     Action    `json:"action"`
	ScheduleID int       `json:"schedule_id,omitempty"`
	ClassID    int       `json:"class_id,omitempty"`
	StudentIDs []int     `json:"student_ids"`
	Date       string    `json:"date,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

// publishTimeout bounds how long a request waits on the queue backend.
const publishTimeout = 2 * time.Second

// Recorder publishes audit events for the worker to persist.
type Recorder struct {
	q   queue.Queue
	log *zap.Logger
}

// NewRecorder creates a recorder. A nil queue disables auditing.
func NewRecorder(q queue.Queue, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{q: q, log: log}
}

// Record stamps and publishes evt. Publishing failures are logged, never
// returned: the mutation already happened upstream.
func (r *Recorder) Record(ctx context.Context, evt Event) {
	if r == nil || r.q == nil {
		return
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	if evt.StudentIDs == nil {
		evt.StudentIDs = []int{}
	}
	body, err := json.Marshal(evt)
	if err != nil {
		r.log.Error("encode audit event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.q.Publish(ctx, queue.Message{Type: MessageType, Body: body}); err != nil {
		r.log.Warn("audit event dropped",
			zap.String("id", evt.ID),
			zap.String("action", string(evt.Action)),
			zap.Error(err))
	}
}

// Decode parses a queue message back into an event.
func Decode(msg queue.Message) (Event, error) {
	if msg.Type != MessageType {
		return Event{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var evt Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return Event{}, fmt.Errorf("decode audit event: %w", err)
	}
	return evt, nil
}
