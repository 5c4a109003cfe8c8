package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"schoolconsole/internal/apiclient"
	"schoolconsole/internal/model"
	"schoolconsole/internal/timefmt"
)

var (
	// ErrInvalidSession is returned for non-positive schedule ids.
	ErrInvalidSession = errors.New("schedule id must be positive")
	// ErrLoadFailed wraps transport and HTTP failures of a roster read.
	ErrLoadFailed = errors.New("failed to load roster")
)

// API is the part of the school API the attendance workflow needs.
type API interface {
	SessionStudents(ctx context.Context, scheduleID int, date string) (model.Roster, error)
	MarkAttendance(ctx context.Context, p apiclient.MarkParams) error
}

// RosterService reads session rosters.
type RosterService struct {
	api API
	log *zap.Logger
	now func() time.Time
}

// NewRosterService creates a roster reader.
func NewRosterService(api API, log *zap.Logger) *RosterService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RosterService{api: api, log: log, now: time.Now}
}

// Fetch returns the roster of a session on a date, defaulting to today. An
// IsSuccess=false answer is an empty roster, not an error.
func (s *RosterService) Fetch(ctx context.Context, scheduleID int, date string) (model.Roster, error) {
	if scheduleID <= 0 {
		return model.Roster{}, ErrInvalidSession
	}
	date, err := timefmt.NormalizeDate(date, s.now())
	if err != nil {
		return model.Roster{}, err
	}

	roster, err := s.api.SessionStudents(ctx, scheduleID, date)
	switch {
	case err == nil:
		return roster, nil
	case errors.Is(err, apiclient.ErrNotSuccessful):
		s.log.Warn("roster request not successful",
			zap.Int("schedule_id", scheduleID), zap.String("date", date), zap.Error(err))
		return model.Roster{ScheduleID: scheduleID, Date: date, Entries: []model.RosterEntry{}}, nil
	case errors.Is(err, apiclient.ErrUnauthorized):
		return model.Roster{}, err
	}
	s.log.Error("roster load failed",
		zap.Int("schedule_id", scheduleID), zap.String("date", date), zap.Error(err))
	return model.Roster{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
}
