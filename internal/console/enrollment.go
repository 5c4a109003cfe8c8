package console

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schoolconsole/internal/audit"
	"schoolconsole/internal/auth"
	"schoolconsole/internal/enrollment"
	"schoolconsole/internal/model"
)

type draftResponse struct {
	enrollment.Context
	Selected []int `json:"selected"`
}

func draftView(ctx enrollment.Context, selected []int) draftResponse {
	if ctx.AllStudents == nil {
		ctx.AllStudents = []model.Student{}
	}
	if ctx.AlreadyEnrolled == nil {
		ctx.AlreadyEnrolled = []int{}
	}
	if selected == nil {
		selected = []int{}
	}
	return draftResponse{Context: ctx, Selected: selected}
}

// openEnrollment starts a fresh draft for the schedule, replacing any open one.
func (s *Server) openEnrollment(c *gin.Context) {
	scheduleID, ok := pathID(c, "scheduleId")
	if !ok {
		return
	}
	client, claims := s.school(c)
	ctl := enrollment.NewController(client, scheduleID, s.Log)
	s.Drafts.Open(claims.SessionID(), ctl)

	ctx, err := ctl.Load(c.Request.Context())
	if err != nil {
		s.Drafts.Discard(claims.SessionID(), scheduleID)
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, draftView(ctx, nil))
}

func (s *Server) draft(c *gin.Context) (*enrollment.Controller, auth.Claims, bool) {
	scheduleID, ok := pathID(c, "scheduleId")
	if !ok {
		return nil, auth.Claims{}, false
	}
	claims, _ := auth.FromContext(c)
	ctl, ok := s.Drafts.Get(claims.SessionID(), scheduleID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no open enrollment for this session"})
		return nil, claims, false
	}
	return ctl, claims, true
}

func (s *Server) toggleEnrollment(c *gin.Context) {
	ctl, _, ok := s.draft(c)
	if !ok {
		return
	}
	studentID, ok := pathID(c, "studentId")
	if !ok {
		return
	}
	if ctl.IsEnrolled(studentID) {
		c.JSON(http.StatusConflict, gin.H{"error": "student is already enrolled", "selected": ctl.Selection()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"studentId": studentID,
		"checked":   ctl.Toggle(studentID),
		"selected":  ctl.Selection(),
	})
}

type addStudentRequest struct {
	model.NewStudent
	// PhotoData is an optional data URL uploaded before the student is created.
	PhotoData string `json:"photoData"`
}

func (s *Server) addStudent(c *gin.Context) {
	ctl, claims, ok := s.draft(c)
	if !ok {
		return
	}
	var req addStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in := req.NewStudent
	if req.PhotoData != "" {
		if s.Photos == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
			return
		}
		res, err := s.Photos.UploadDataURL(c.Request.Context(), req.PhotoData, "")
		if err != nil {
			s.Log.Warn("photo upload failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
			return
		}
		in.Photo = res.SecureURL
	}

	student, err := ctl.AddStudent(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.record(c, claims, audit.Event{
		Action:     audit.ActionCreateStudent,
		ScheduleID: ctl.ScheduleID(),
		StudentIDs: []int{student.ID},
		Detail:     student.FullName(),
	})
	c.JSON(http.StatusCreated, student)
}

// submitEnrollment enrolls the selection. An empty selection is not sent.
// On success the roster is re-read for ?date= (today by default).
func (s *Server) submitEnrollment(c *gin.Context) {
	ctl, claims, ok := s.draft(c)
	if !ok {
		return
	}
	ids := ctl.Selection()
	submitted, err := ctl.Submit(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if !submitted {
		c.JSON(http.StatusOK, gin.H{"submitted": false, "selected": []int{}})
		return
	}
	s.record(c, claims, audit.Event{
		Action:     audit.ActionEnrollBulk,
		ScheduleID: ctl.ScheduleID(),
		StudentIDs: ids,
	})

	client, _ := s.school(c)
	c.JSON(http.StatusOK, s.refetch(c, client, ctl.ScheduleID(), c.Query("date"), gin.H{"submitted": true, "enrolled": ids}))
}

func (s *Server) cancelEnrollment(c *gin.Context) {
	scheduleID, ok := pathID(c, "scheduleId")
	if !ok {
		return
	}
	claims, _ := auth.FromContext(c)
	s.Drafts.Discard(claims.SessionID(), scheduleID)
	c.Status(http.StatusNoContent)
}

// removeFromSession drops one student from this session only, then re-reads
// the roster.
func (s *Server) removeFromSession(c *gin.Context) {
	scheduleID, ok := pathID(c, "scheduleId")
	if !ok {
		return
	}
	studentID, ok := pathID(c, "studentId")
	if !ok {
		return
	}
	classID, err := strconv.Atoi(c.Query("classId"))
	if err != nil || classID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "classId must be a positive integer"})
		return
	}

	client, claims := s.school(c)
	if err := enrollment.NewUnenroller(client, s.Log).RemoveFromSession(c.Request.Context(), classID, scheduleID, studentID); err != nil {
		s.fail(c, err)
		return
	}
	s.record(c, claims, audit.Event{
		Action:     audit.ActionRemoveFromSession,
		ScheduleID: scheduleID,
		ClassID:    classID,
		StudentIDs: []int{studentID},
		Date:       c.Query("date"),
	})

	c.JSON(http.StatusOK, s.refetch(c, client, scheduleID, c.Query("date"), gin.H{"removed": studentID}))
}

type unenrollRequest struct {
	Scope      model.UnenrollScope `json:"scope"`
	ClassID    int                 `json:"classId"`
	ScheduleID int                 `json:"scheduleId"`
	Date       string              `json:"date"`
}

// unenroll removes a student with an explicit scope. When the request names
// the schedule on screen, its roster is re-read once and returned.
func (s *Server) unenroll(c *gin.Context) {
	studentID, ok := pathID(c, "studentId")
	if !ok {
		return
	}
	var req unenrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, claims := s.school(c)
	if err := enrollment.NewUnenroller(client, s.Log).Unenroll(c.Request.Context(), studentID, req.ClassID, req.Scope); err != nil {
		s.fail(c, err)
		return
	}
	s.record(c, claims, audit.Event{
		Action:     audit.ActionUnenroll,
		ScheduleID: req.ScheduleID,
		ClassID:    req.ClassID,
		StudentIDs: []int{studentID},
		Date:       req.Date,
		Detail:     string(req.Scope),
	})

	if req.ScheduleID <= 0 {
		c.JSON(http.StatusOK, gin.H{"unenrolled": studentID, "scope": req.Scope})
		return
	}
	c.JSON(http.StatusOK, s.refetch(c, client, req.ScheduleID, req.Date, gin.H{"unenrolled": studentID, "scope": req.Scope}))
}
