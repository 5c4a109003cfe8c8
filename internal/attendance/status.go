package attendance

import (
	"errors"

	"schoolconsole/internal/model"
)

var (
	// ErrExcusedLocked is returned when Present/Absent/Late is requested for an
	// excused student. The excuse has to be toggled off first.
	ErrExcusedLocked = errors.New("student is excused; clear the excuse first")
	// ErrUnknownStatus is returned for values outside the status set.
	ErrUnknownStatus = errors.New("unknown attendance status")
)

// Resolve applies the attendance state machine and returns the status to
// write. Re-selecting the held status clears it.
func Resolve(current, requested model.AttendanceStatus) (model.AttendanceStatus, error) {
	switch requested {
	case model.StatusNone, model.StatusPresent, model.StatusAbsent, model.StatusLate, model.StatusExcused:
	default:
		return model.StatusNone, ErrUnknownStatus
	}

	if requested == model.StatusNone || requested == current {
		return model.StatusNone, nil
	}
	if current == model.StatusExcused && requested != model.StatusExcused {
		return current, ErrExcusedLocked
	}
	return requested, nil
}

// Allowed lists the transitions offered for a row holding current, which is
// what the console renders as enabled buttons.
func Allowed(current model.AttendanceStatus) []model.AttendanceStatus {
	if current == model.StatusExcused {
		return []model.AttendanceStatus{model.StatusExcused}
	}
	return []model.AttendanceStatus{model.StatusPresent, model.StatusAbsent, model.StatusLate, model.StatusExcused}
}
