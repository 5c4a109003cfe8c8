package apiclient

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"schoolconsole/internal/model"
)

// The school API is inconsistent about key casing and naming across
// endpoints. Every lookup below walks its key list in order and takes the
// first present, non-null value.
var (
	studentIDKeys   = []string{"studentId", "StudentId", "accountId", "AccountId", "id", "Id"}
	studentNameKeys = []string{"studentName", "StudentName", "fullName", "FullName", "name", "Name"}
	firstNameKeys   = []string{"firstName", "FirstName"}
	surnameKeys     = []string{"surname", "Surname", "lastName", "LastName"}
	classIDKeys     = []string{"classId", "ClassId"}
	statusKeys      = []string{"attendanceStatus", "AttendanceStatus", "status", "Status"}
	photoKeys       = []string{"photo", "Photo", "photoUrl", "PhotoUrl"}
	directoryIDKeys = []string{"id", "Id", "studentId", "StudentId", "accountId", "AccountId"}
	rosterListKeys  = []string{"students", "Students", "roster", "Roster"}
)

// ParseRosterEntry maps one raw roster row onto a RosterEntry.
//
// Precedence: student id from studentId, accountId then id; name from
// studentName, fullName, name and finally firstName+surname; status from
// attendanceStatus then status, where null, "None" and unknown values all
// read as unmarked. The second result is false when no positive student id
// is present.
func ParseRosterEntry(raw map[string]any) (model.RosterEntry, bool) {
	id, ok := intField(raw, studentIDKeys)
	if !ok || id <= 0 {
		return model.RosterEntry{}, false
	}
	entry := model.RosterEntry{StudentID: id}

	entry.StudentName = stringField(raw, studentNameKeys)
	if entry.StudentName == "" {
		entry.StudentName = model.Student{
			FirstName: stringField(raw, firstNameKeys),
			Surname:   stringField(raw, surnameKeys),
		}.FullName()
	}
	entry.ClassID, _ = intField(raw, classIDKeys)
	if s, ok := model.ParseStatus(stringField(raw, statusKeys)); ok {
		entry.AttendanceStatus = s
	}
	entry.Photo = stringField(raw, photoKeys)
	return entry, true
}

// parseStudent maps a directory row onto a Student.
func parseStudent(raw map[string]any) (model.Student, bool) {
	id, ok := intField(raw, directoryIDKeys)
	if !ok || id <= 0 {
		return model.Student{}, false
	}
	s := model.Student{
		ID:        id,
		FirstName: stringField(raw, firstNameKeys),
		Surname:   stringField(raw, surnameKeys),
	}
	if s.FirstName == "" && s.Surname == "" {
		s.FirstName = stringField(raw, studentNameKeys)
	}
	return s, true
}

// parseRoster accepts either a bare array of rows or an object carrying a
// student list next to session aggregates.
func parseRoster(data json.RawMessage) ([]model.RosterEntry, *model.Session, error) {
	if isNull(data) {
		return []model.RosterEntry{}, nil, nil
	}

	var rows []map[string]any
	var session *model.Session

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, nil, fmt.Errorf("%w: roster: %w", ErrDecode, err)
		}
		for _, k := range rosterListKeys {
			if list, ok := obj[k].([]any); ok {
				rows = toRows(list)
				break
			}
		}
		session = parseSession(obj)
	} else if err := json.Unmarshal(data, &rows); err != nil {
		return nil, nil, fmt.Errorf("%w: roster: %w", ErrDecode, err)
	}

	entries := make([]model.RosterEntry, 0, len(rows))
	seen := make(map[int]struct{}, len(rows))
	for _, row := range rows {
		e, ok := ParseRosterEntry(row)
		if !ok {
			continue
		}
		if _, dup := seen[e.StudentID]; dup {
			continue
		}
		seen[e.StudentID] = struct{}{}
		entries = append(entries, e)
	}
	return entries, session, nil
}

func parseSession(obj map[string]any) *model.Session {
	id, ok := intField(obj, []string{"scheduleId", "ScheduleId", "sessionId", "SessionId"})
	if !ok {
		return nil
	}
	s := &model.Session{ScheduleID: id}
	s.ClassID, _ = intField(obj, classIDKeys)
	s.DayOfWeek, _ = intField(obj, []string{"dayOfWeek", "DayOfWeek"})
	s.StartTime = stringField(obj, []string{"startTime", "StartTime"})
	s.EndTime = stringField(obj, []string{"endTime", "EndTime"})
	s.TotalStudents, _ = intField(obj, []string{"totalStudents", "TotalStudents"})
	s.PresentCount, _ = intField(obj, []string{"presentCount", "PresentCount"})
	s.AbsentCount, _ = intField(obj, []string{"absentCount", "AbsentCount"})
	for _, k := range []string{"teacherNames", "TeacherNames", "teachers", "Teachers"} {
		if list, ok := obj[k].([]any); ok {
			for _, v := range list {
				if name, ok := v.(string); ok && name != "" {
					s.TeacherNames = append(s.TeacherNames, name)
				}
			}
			break
		}
	}
	return s
}

func parseStudents(data json.RawMessage) ([]model.Student, error) {
	if isNull(data) {
		return []model.Student{}, nil
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: students: %w", ErrDecode, err)
	}
	out := make([]model.Student, 0, len(rows))
	for _, row := range rows {
		if s, ok := parseStudent(row); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func toRows(list []any) []map[string]any {
	rows := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]any); ok {
			rows = append(rows, m)
		}
	}
	return rows
}

func isNull(data json.RawMessage) bool {
	t := strings.TrimSpace(string(data))
	return t == "" || t == "null"
}

func stringField(raw map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func intField(raw map[string]any, keys []string) (int, bool) {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case float64:
			return int(v), true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
