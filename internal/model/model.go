package model

// AttendanceStatus is the attendance value a student holds in one session on one date.
// The zero value is the unmarked state.
type AttendanceStatus string

const (
	StatusNone    AttendanceStatus = ""
	StatusPresent AttendanceStatus = "Present"
	StatusAbsent  AttendanceStatus = "Absent"
	StatusLate    AttendanceStatus = "Late"
	StatusExcused AttendanceStatus = "Excused"
)

// ParseStatus maps an upstream or operator supplied value onto a known status.
// "None", "null" and the empty string all mean unmarked.
func ParseStatus(s string) (AttendanceStatus, bool) {
	switch s {
	case "Present", "present", "PRESENT":
		return StatusPresent, true
	case "Absent", "absent", "ABSENT":
		return StatusAbsent, true
	case "Late", "late", "LATE":
		return StatusLate, true
	case "Excused", "excused", "EXCUSED":
		return StatusExcused, true
	case "", "None", "none", "NONE", "null":
		return StatusNone, true
	}
	return StatusNone, false
}

// Wire returns the value sent in the attendanceStatus query parameter.
func (s AttendanceStatus) Wire() string {
	if s == StatusNone {
		return "None"
	}
	return string(s)
}

// Session is one scheduled occurrence of a class.
type Session struct {
	ScheduleID    int      `json:"scheduleId"`
	ClassID       int      `json:"classId"`
	DayOfWeek     int      `json:"dayOfWeek"`
	StartTime     string   `json:"startTime"`
	EndTime       string   `json:"endTime"`
	TeacherNames  []string `json:"teacherNames"`
	TotalStudents int      `json:"totalStudents"`
	PresentCount  int      `json:"presentCount"`
	AbsentCount   int      `json:"absentCount"`
}

// RosterEntry is one student's attendance record within a session on a date.
type RosterEntry struct {
	StudentID        int              `json:"studentId"`
	StudentName      string           `json:"studentName"`
	ClassID          int              `json:"classId"`
	AttendanceStatus AttendanceStatus `json:"attendanceStatus"`
	Photo            string           `json:"photo,omitempty"`
}

// Roster is the result of a single roster fetch.
type Roster struct {
	ScheduleID int           `json:"scheduleId"`
	Date       string        `json:"date"`
	Entries    []RosterEntry `json:"entries"`
	Session    *Session      `json:"session,omitempty"`
}

// StudentIDs returns the ids of all entries in roster order.
func (r Roster) StudentIDs() []int {
	ids := make([]int, 0, len(r.Entries))
	for _, e := range r.Entries {
		ids = append(ids, e.StudentID)
	}
	return ids
}

// Entry looks up a student in the roster.
func (r Roster) Entry(studentID int) (RosterEntry, bool) {
	for _, e := range r.Entries {
		if e.StudentID == studentID {
			return e, true
		}
	}
	return RosterEntry{}, false
}

// Student is a directory record used to populate enrollment pick-lists.
type Student struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName"`
	Surname   string `json:"surname"`
}

// FullName joins first name and surname.
func (s Student) FullName() string {
	switch {
	case s.FirstName == "":
		return s.Surname
	case s.Surname == "":
		return s.FirstName
	}
	return s.FirstName + " " + s.Surname
}

// NewStudent is the payload of the add-new-student sub-flow.
type NewStudent struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	Surname   string `json:"surname" validate:"required,max=100"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Photo     string `json:"photo,omitempty" validate:"omitempty,url"`
}

// UnenrollScope is the breadth of an unenrollment. There is no default.
type UnenrollScope string

const (
	ScopeThisAndFollowing UnenrollScope = "thisAndFollowing"
	ScopeEntireClass      UnenrollScope = "entireClass"
)

// Valid reports whether the scope was explicitly chosen.
func (s UnenrollScope) Valid() bool {
	return s == ScopeThisAndFollowing || s == ScopeEntireClass
}
