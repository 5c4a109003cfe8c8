package attendance

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"schoolconsole/internal/apiclient"
	"schoolconsole/internal/model"
	"schoolconsole/internal/timefmt"
)

var (
	// ErrUpdateInFlight is returned while another transition for the same row is pending.
	ErrUpdateInFlight = errors.New("attendance update already in progress for this student")
	// ErrDateRequired is returned when a transition carries no date.
	ErrDateRequired = errors.New("date is required")
	// ErrInvalidRequest is returned for missing class, schedule or student ids.
	ErrInvalidRequest = errors.New("class, schedule and student ids must be positive")
)

type rowKey struct {
	scheduleID int
	date       string
	studentID  int
}

// Inflight tracks which roster rows have a pending transition. It is shared
// by every controller of a process.
type Inflight struct {
	mu   sync.Mutex
	rows map[rowKey]struct{}
}

// NewInflight creates an empty tracker.
func NewInflight() *Inflight {
	return &Inflight{rows: make(map[rowKey]struct{})}
}

func (f *Inflight) acquire(k rowKey) (func(), bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.rows[k]; busy {
		return nil, false
	}
	f.rows[k] = struct{}{}
	return func() {
		f.mu.Lock()
		delete(f.rows, k)
		f.mu.Unlock()
	}, true
}

// Updating reports whether the row has a pending transition.
func (f *Inflight) Updating(scheduleID int, date string, studentID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, busy := f.rows[rowKey{scheduleID, date, studentID}]
	return busy
}

// MarkRequest is one operator click on a roster row. Current is the status the
// row showed when clicked.
type MarkRequest struct {
	ClassID    int
	ScheduleID int
	StudentID  int
	Date       string
	Current    model.AttendanceStatus
	Status     model.AttendanceStatus
}

// MarkResult is the written status plus the roster re-read afterwards.
// Written is set once the school API accepted the write, even if the re-read
// then failed.
type MarkResult struct {
	Applied model.AttendanceStatus
	Written bool
	Roster  model.Roster
}

// Controller submits attendance transitions.
type Controller struct {
	api      API
	roster   *RosterService
	inflight *Inflight
	log      *zap.Logger
}

// NewController wires a controller. roster is used for the post-write re-read.
func NewController(api API, roster *RosterService, inflight *Inflight, log *zap.Logger) *Controller {
	if inflight == nil {
		inflight = NewInflight()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{api: api, roster: roster, inflight: inflight, log: log}
}

// Mark resolves the transition, writes it and re-reads the roster for the same
// schedule and date. Local state is never patched; the returned roster is what
// the school API holds after the write.
func (c *Controller) Mark(ctx context.Context, req MarkRequest) (MarkResult, error) {
	if req.ClassID <= 0 || req.ScheduleID <= 0 || req.StudentID <= 0 {
		return MarkResult{}, ErrInvalidRequest
	}
	if req.Date == "" {
		return MarkResult{}, ErrDateRequired
	}
	if _, err := timefmt.ParseDate(req.Date); err != nil {
		return MarkResult{}, err
	}

	status, err := Resolve(req.Current, req.Status)
	if err != nil {
		return MarkResult{}, err
	}

	release, ok := c.inflight.acquire(rowKey{req.ScheduleID, req.Date, req.StudentID})
	if !ok {
		return MarkResult{}, ErrUpdateInFlight
	}
	defer release()

	err = c.api.MarkAttendance(ctx, apiclient.MarkParams{
		ClassID:    req.ClassID,
		ScheduleID: req.ScheduleID,
		StudentID:  req.StudentID,
		Date:       req.Date,
		Status:     status,
	})
	if err != nil {
		c.log.Warn("mark attendance failed",
			zap.Int("schedule_id", req.ScheduleID),
			zap.Int("student_id", req.StudentID),
			zap.String("status", status.Wire()),
			zap.Error(err))
		return MarkResult{}, err
	}

	roster, err := c.roster.Fetch(ctx, req.ScheduleID, req.Date)
	return MarkResult{Applied: status, Written: true, Roster: roster}, err
}

// Updating reports whether a transition for the row is pending.
func (c *Controller) Updating(scheduleID int, date string, studentID int) bool {
	return c.inflight.Updating(scheduleID, date, studentID)
}
