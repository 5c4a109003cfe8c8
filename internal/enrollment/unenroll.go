package enrollment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"schoolconsole/internal/model"
)

var (
	// ErrScopeRequired is returned until the operator picks a scope.
	ErrScopeRequired = errors.New("choose whether to unenroll from this class or from all classes")
	// ErrInvalidIDs is returned for non-positive ids.
	ErrInvalidIDs = errors.New("ids must be positive")
)

// RemovalAPI is the part of the school API unenrollment needs.
type RemovalAPI interface {
	UnenrollFromClass(ctx context.Context, studentID, classID int) error
	UnenrollFromAll(ctx context.Context, studentID int) error
	RemoveFromSession(ctx context.Context, classID, sessionID, studentID int) error
}

// Unenroller removes students from classes and sessions.
type Unenroller struct {
	api RemovalAPI
	log *zap.Logger
}

// NewUnenroller creates an Unenroller.
func NewUnenroller(api RemovalAPI, log *zap.Logger) *Unenroller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Unenroller{api: api, log: log}
}

// Unenroll removes a student with the chosen scope. Exactly one endpoint is
// called per scope; nothing is called without a scope.
func (u *Unenroller) Unenroll(ctx context.Context, studentID, classID int, scope model.UnenrollScope) error {
	if !scope.Valid() {
		return ErrScopeRequired
	}
	if studentID <= 0 {
		return ErrInvalidIDs
	}

	var err error
	switch scope {
	case model.ScopeThisAndFollowing:
		if classID <= 0 {
			return ErrInvalidIDs
		}
		err = u.api.UnenrollFromClass(ctx, studentID, classID)
	case model.ScopeEntireClass:
		err = u.api.UnenrollFromAll(ctx, studentID)
	}
	if err != nil {
		u.log.Warn("unenroll failed",
			zap.Int("student_id", studentID), zap.Int("class_id", classID),
			zap.String("scope", string(scope)), zap.Error(err))
	}
	return err
}

// RemoveFromSession drops a student from a single session only.
func (u *Unenroller) RemoveFromSession(ctx context.Context, classID, sessionID, studentID int) error {
	if classID <= 0 || sessionID <= 0 || studentID <= 0 {
		return ErrInvalidIDs
	}
	return u.api.RemoveFromSession(ctx, classID, sessionID, studentID)
}
