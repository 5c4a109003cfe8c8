package console

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schoolconsole/internal/apiclient"
	"schoolconsole/internal/attendance"
	"schoolconsole/internal/audit"
	"schoolconsole/internal/export"
	"schoolconsole/internal/model"
	"schoolconsole/internal/timefmt"
)

type rosterResponse struct {
	model.Roster
	// Updating lists the rows with a pending transition.
	Updating []int `json:"updating"`
	// Same weekday one week either side, for paging through a weekly session.
	PreviousDate string `json:"previousDate,omitempty"`
	NextDate     string `json:"nextDate,omitempty"`
}

func (s *Server) rosterView(r model.Roster) rosterResponse {
	if r.Entries == nil {
		r.Entries = []model.RosterEntry{}
	}
	out := rosterResponse{Roster: r, Updating: []int{}}
	if prev, err := timefmt.ShiftDate(r.Date, -7); err == nil {
		out.PreviousDate = prev
		out.NextDate, _ = timefmt.ShiftDate(r.Date, 7)
	}
	for _, e := range r.Entries {
		if s.Inflight.Updating(r.ScheduleID, r.Date, e.StudentID) {
			out.Updating = append(out.Updating, e.StudentID)
		}
	}
	return out
}

// withRoster attaches the roster re-read after a mutation that already went
// through upstream. A failed read lands in roster_error so the caller still
// learns the write happened.
func (s *Server) withRoster(body gin.H, roster model.Roster, err error) gin.H {
	if err == nil {
		body["roster"] = s.rosterView(roster)
		return body
	}
	s.Log.Warn("roster re-read after write failed", zap.Int("schedule_id", roster.ScheduleID), zap.Error(err))
	body["roster_error"] = apiclient.Message(err)
	if errors.Is(err, apiclient.ErrUnauthorized) {
		body["logout"] = true
	}
	return body
}

func (s *Server) refetch(c *gin.Context, client *apiclient.Client, scheduleID int, date string, body gin.H) gin.H {
	roster, err := attendance.NewRosterService(client, s.Log).Fetch(c.Request.Context(), scheduleID, date)
	if err != nil {
		roster.ScheduleID = scheduleID
	}
	return s.withRoster(body, roster, err)
}

// rosterDate picks the date a roster read is for. ?date= wins; otherwise
// ?day= (a weekday name) selects its next occurrence, today included. With
// neither the roster service falls back to today.
func rosterDate(c *gin.Context) (string, bool) {
	date, day := c.Query("date"), c.Query("day")
	if date != "" || day == "" {
		return date, true
	}
	dow, err := timefmt.ParseDay(day)
	if err == nil {
		date, err = timefmt.NextOccurrence(dow, time.Now())
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return date, true
}

func (s *Server) getRoster(c *gin.Context) {
	scheduleID, ok := pathID(c, "scheduleId")
	if !ok {
		return
	}
	date, ok := rosterDate(c)
	if !ok {
		return
	}
	client, _ := s.school(c)
	roster, err := attendance.NewRosterService(client, s.Log).Fetch(c.Request.Context(), scheduleID, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.rosterView(roster))
}

func (s *Server) exportRoster(c *gin.Context) {
	scheduleID, ok := pathID(c, "scheduleId")
	if !ok {
		return
	}
	date, ok := rosterDate(c)
	if !ok {
		return
	}
	client, _ := s.school(c)
	roster, err := attendance.NewRosterService(client, s.Log).Fetch(c.Request.Context(), scheduleID, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteRoster(&buf, roster); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(roster)))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

type markRequest struct {
	ClassID   int    `json:"classId" binding:"required"`
	StudentID int    `json:"studentId" binding:"required"`
	Date      string `json:"date" binding:"required"`
	Current   string `json:"current"`
	Status    string `json:"status"`
}

// markAttendance applies one click on a roster row and answers with the
// roster as the school API holds it afterwards.
func (s *Server) markAttendance(c *gin.Context) {
	scheduleID, ok := pathID(c, "scheduleId")
	if !ok {
		return
	}
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	current, ok := model.ParseStatus(req.Current)
	if !ok {
		s.fail(c, attendance.ErrUnknownStatus)
		return
	}
	status, ok := model.ParseStatus(req.Status)
	if !ok {
		s.fail(c, attendance.ErrUnknownStatus)
		return
	}

	client, claims := s.school(c)
	ctl := attendance.NewController(client, attendance.NewRosterService(client, s.Log), s.Inflight, s.Log)
	res, err := ctl.Mark(c.Request.Context(), attendance.MarkRequest{
		ClassID:    req.ClassID,
		ScheduleID: scheduleID,
		StudentID:  req.StudentID,
		Date:       req.Date,
		Current:    current,
		Status:     status,
	})
	if res.Written {
		s.record(c, claims, audit.Event{
			Action:     audit.ActionMarkAttendance,
			ScheduleID: scheduleID,
			ClassID:    req.ClassID,
			StudentIDs: []int{req.StudentID},
			Date:       req.Date,
			Detail:     res.Applied.Wire(),
		})
	}
	if !res.Written {
		s.fail(c, err)
		return
	}
	if err != nil {
		res.Roster.ScheduleID = scheduleID
	}
	c.JSON(http.StatusOK, s.withRoster(gin.H{"applied": res.Applied.Wire()}, res.Roster, err))
}
