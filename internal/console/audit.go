package console

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolconsole/internal/audit"
)

func (s *Server) listAudit(c *gin.Context) {
	if s.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit journal not configured"})
		return
	}
	var f audit.Filter
	var ok bool
	if f.StudentID, ok = queryInt(c, "student_id"); !ok {
		return
	}
	if f.ScheduleID, ok = queryInt(c, "schedule_id"); !ok {
		return
	}
	if f.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}
	if f.Offset, ok = queryInt(c, "offset"); !ok {
		return
	}
	events, err := s.Audit.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
