// Package enrollment drives bulk enrollment of students into a session and
// the scoped removal of students from classes.
package enrollment

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"schoolconsole/internal/apiclient"
	"schoolconsole/internal/model"
)

var (
	// ErrInvalidSchedule is returned when a draft is opened without a schedule.
	ErrInvalidSchedule = errors.New("schedule id must be positive")
	// ErrClosed is returned by operations on a submitted or cancelled draft.
	ErrClosed = errors.New("enrollment draft is closed")
	// ErrNotLoaded is returned when adding a student before the context loaded.
	ErrNotLoaded = errors.New("enrollment context not loaded")
	// ErrSubmitInFlight is returned while a previous submit is still pending.
	ErrSubmitInFlight = errors.New("enrollment already being submitted")
)

// API is the part of the school API enrollment needs.
type API interface {
	SessionStudents(ctx context.Context, scheduleID int, date string) (model.Roster, error)
	Students(ctx context.Context) ([]model.Student, error)
	EnrollBulk(ctx context.Context, sessionID int, studentIDs []int) error
	CreateStudent(ctx context.Context, in model.NewStudent) (model.Student, error)
}

// Context is what the enrollment pick-list renders.
type Context struct {
	AllStudents     []model.Student `json:"allStudents"`
	AlreadyEnrolled []int           `json:"alreadyEnrolled"`
}

var validate = validator.New()

// Controller is one open enrollment draft for one schedule. It is safe for
// concurrent use.
type Controller struct {
	api        API
	log        *zap.Logger
	scheduleID int

	mu         sync.Mutex
	all        []model.Student
	enrolled   map[int]struct{}
	selected   []int
	loaded     bool
	closed     bool
	submitting bool
}

// NewController opens an empty draft.
func NewController(api API, scheduleID int, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		api:        api,
		log:        log,
		scheduleID: scheduleID,
		enrolled:   map[int]struct{}{},
	}
}

// ScheduleID returns the schedule the draft enrolls into.
func (c *Controller) ScheduleID() int { return c.scheduleID }

// Load reads the student directory and the session's enrollment concurrently.
// The enrollment read carries no date. Cancelling ctx aborts both reads.
func (c *Controller) Load(ctx context.Context) (Context, error) {
	if c.scheduleID <= 0 {
		return Context{}, ErrInvalidSchedule
	}

	var (
		all    []model.Student
		roster model.Roster
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		all, err = c.api.Students(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		roster, err = c.api.SessionStudents(gctx, c.scheduleID, "")
		if errors.Is(err, apiclient.ErrNotSuccessful) {
			// Same rule as a roster read: nobody enrolled yet.
			c.log.Warn("enrollment roster request not successful",
				zap.Int("schedule_id", c.scheduleID), zap.Error(err))
			roster = model.Roster{ScheduleID: c.scheduleID}
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		c.log.Warn("load enrollment context failed", zap.Int("schedule_id", c.scheduleID), zap.Error(err))
		return Context{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = all
	c.enrolled = make(map[int]struct{}, len(roster.Entries))
	for _, e := range roster.Entries {
		c.enrolled[e.StudentID] = struct{}{}
	}
	kept := c.selected[:0]
	for _, id := range c.selected {
		if _, done := c.enrolled[id]; !done {
			kept = append(kept, id)
		}
	}
	c.selected = kept
	c.loaded = true
	return c.contextLocked(), nil
}

// Snapshot returns the current pick-list state.
func (c *Controller) Snapshot() Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contextLocked()
}

func (c *Controller) contextLocked() Context {
	all := make([]model.Student, len(c.all))
	copy(all, c.all)
	enrolled := make([]int, 0, len(c.enrolled))
	for id := range c.enrolled {
		enrolled = append(enrolled, id)
	}
	sort.Ints(enrolled)
	return Context{AllStudents: all, AlreadyEnrolled: enrolled}
}

// IsEnrolled reports whether the student is already in the session.
func (c *Controller) IsEnrolled(studentID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.enrolled[studentID]
	return ok
}

// Toggle adds or removes a student from the selection and reports whether it
// is selected afterwards. Enrolled students and closed drafts are left alone.
func (c *Controller) Toggle(studentID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || studentID <= 0 {
		return false
	}
	if _, ok := c.enrolled[studentID]; ok {
		return false
	}
	for i, id := range c.selected {
		if id == studentID {
			c.selected = append(c.selected[:i], c.selected[i+1:]...)
			return false
		}
	}
	c.selected = append(c.selected, studentID)
	return true
}

// Selection returns the pending student ids in pick order.
func (c *Controller) Selection() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.selected))
	copy(out, c.selected)
	return out
}

// Closed reports whether the draft was submitted or cancelled.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Submit enrolls the selection. With nothing selected or no schedule it does
// nothing and reports false. On success the selection is cleared and the
// draft closes; the caller re-reads the roster. On failure the selection is
// kept for a retry.
func (c *Controller) Submit(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if c.submitting {
		c.mu.Unlock()
		return false, ErrSubmitInFlight
	}
	ids := make([]int, len(c.selected))
	copy(ids, c.selected)
	if len(ids) == 0 || c.scheduleID <= 0 {
		c.mu.Unlock()
		return false, nil
	}
	c.submitting = true
	c.mu.Unlock()

	err := c.api.EnrollBulk(ctx, c.scheduleID, ids)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if err != nil {
		c.log.Warn("bulk enroll failed",
			zap.Int("schedule_id", c.scheduleID), zap.Ints("student_ids", ids), zap.Error(err))
		return false, err
	}
	c.selected = nil
	c.closed = true
	return true, nil
}

// Cancel discards the selection and closes the draft.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = nil
	c.closed = true
}

// AddStudent creates a student and appends it to the directory so it can be
// selected without reloading.
func (c *Controller) AddStudent(ctx context.Context, in model.NewStudent) (model.Student, error) {
	if err := validate.Struct(in); err != nil {
		return model.Student{}, err
	}
	c.mu.Lock()
	closed, loaded := c.closed, c.loaded
	c.mu.Unlock()
	if closed {
		return model.Student{}, ErrClosed
	}
	if !loaded {
		return model.Student{}, ErrNotLoaded
	}

	created, err := c.api.CreateStudent(ctx, in)
	if err != nil {
		return model.Student{}, err
	}

	c.mu.Lock()
	if !containsStudent(c.all, created.ID) {
		c.all = append(c.all, created)
	}
	c.mu.Unlock()
	return created, nil
}

func containsStudent(all []model.Student, id int) bool {
	for _, s := range all {
		if s.ID == id {
			return true
		}
	}
	return false
}
