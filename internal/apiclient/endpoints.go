package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"schoolconsole/internal/model"
)

// MarkParams identifies one attendance write.
type MarkParams struct {
	ClassID    int
	ScheduleID int
	StudentID  int
	Date       string
	Status     model.AttendanceStatus
}

// SessionStudents fetches the roster of a session. An empty date asks the
// school API for the session's enrollment regardless of date.
func (c *Client) SessionStudents(ctx context.Context, scheduleID int, date string) (model.Roster, error) {
	q := url.Values{}
	q.Set("scheduleId", strconv.Itoa(scheduleID))
	if date != "" {
		q.Set("date", date)
	}
	data, err := c.do(ctx, "GetStudentsForSession", http.MethodGet, "/Class/GetStudentsForSession", q, nil)
	if err != nil {
		return model.Roster{}, err
	}
	entries, session, err := parseRoster(data)
	if err != nil {
		return model.Roster{}, err
	}
	return model.Roster{ScheduleID: scheduleID, Date: date, Entries: entries, Session: session}, nil
}

// MarkAttendance writes one student's status. StatusNone clears it.
func (c *Client) MarkAttendance(ctx context.Context, p MarkParams) error {
	q := url.Values{}
	q.Set("classId", strconv.Itoa(p.ClassID))
	q.Set("scheduleId", strconv.Itoa(p.ScheduleID))
	q.Set("studentId", strconv.Itoa(p.StudentID))
	q.Set("date", p.Date)
	q.Set("attendanceStatus", p.Status.Wire())
	_, err := c.do(ctx, "MarkAttendance", http.MethodPost, "/Class/MarkAttendance", q, nil)
	return err
}

// Students returns the full student directory.
func (c *Client) Students(ctx context.Context) ([]model.Student, error) {
	data, err := c.do(ctx, "StudentGetAll", http.MethodGet, "/Student/GetAll", nil, nil)
	if err != nil {
		return nil, err
	}
	return parseStudents(data)
}

// EnrollBulk enrolls every student id into the session.
func (c *Client) EnrollBulk(ctx context.Context, sessionID int, studentIDs []int) error {
	if studentIDs == nil {
		studentIDs = []int{}
	}
	q := url.Values{}
	q.Set("sessionId", strconv.Itoa(sessionID))
	_, err := c.do(ctx, "EnrollStudentToClassInBulk", http.MethodPost, "/Class/EnrollStudentToClassInBulk", q, studentIDs)
	return err
}

// UnenrollFromClass removes the student from the class's future sessions.
func (c *Client) UnenrollFromClass(ctx context.Context, studentID, classID int) error {
	q := url.Values{}
	q.Set("studentId", strconv.Itoa(studentID))
	q.Set("classId", strconv.Itoa(classID))
	_, err := c.do(ctx, "UnenrollStudentFromClass", http.MethodPost, "/Class/UnenrollStudentFromClass", q, nil)
	return err
}

// UnenrollFromAll removes the student from every class.
func (c *Client) UnenrollFromAll(ctx context.Context, studentID int) error {
	q := url.Values{}
	q.Set("studentId", strconv.Itoa(studentID))
	_, err := c.do(ctx, "UnenrollStudentFromAll", http.MethodPost, "/Class/UnenrollStudentFromAll", q, nil)
	return err
}

// RemoveFromSession drops the student from a single session.
func (c *Client) RemoveFromSession(ctx context.Context, classID, sessionID, studentID int) error {
	q := url.Values{}
	q.Set("classId", strconv.Itoa(classID))
	q.Set("sessionId", strconv.Itoa(sessionID))
	q.Set("studentId", strconv.Itoa(studentID))
	_, err := c.do(ctx, "RemoveStudentFromSession", http.MethodDelete, "/Class/RemoveStudentFromSession", q, nil)
	return err
}

// CreateStudent registers a new student. The school API answers with either
// the created record or its bare id.
func (c *Client) CreateStudent(ctx context.Context, in model.NewStudent) (model.Student, error) {
	data, err := c.do(ctx, "StudentCreate", http.MethodPost, "/Student/Create", nil, in)
	if err != nil {
		return model.Student{}, err
	}
	created := model.Student{FirstName: in.FirstName, Surname: in.Surname}

	var id int
	if err := json.Unmarshal(data, &id); err == nil && id > 0 {
		created.ID = id
		return created, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err == nil {
		if s, ok := parseStudent(raw); ok {
			if s.FirstName == "" && s.Surname == "" {
				s.FirstName, s.Surname = in.FirstName, in.Surname
			}
			return s, nil
		}
	}
	return model.Student{}, fmt.Errorf("%w: create student: %w", ErrDecode, errors.New("response carries no student id"))
}
