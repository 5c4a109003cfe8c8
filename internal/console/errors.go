package console

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"schoolconsole/internal/apiclient"
	"schoolconsole/internal/attendance"
	"schoolconsole/internal/enrollment"
	"schoolconsole/internal/timefmt"
)

var badRequest = []error{
	attendance.ErrInvalidRequest,
	attendance.ErrInvalidSession,
	attendance.ErrDateRequired,
	attendance.ErrUnknownStatus,
	timefmt.ErrInvalidDate,
	enrollment.ErrInvalidSchedule,
	enrollment.ErrScopeRequired,
	enrollment.ErrInvalidIDs,
}

var conflict = []error{
	attendance.ErrUpdateInFlight,
	attendance.ErrExcusedLocked,
	enrollment.ErrSubmitInFlight,
	enrollment.ErrClosed,
	enrollment.ErrNotLoaded,
}

// statusFor maps workflow and upstream errors to HTTP statuses.
func statusFor(err error) int {
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	for _, target := range conflict {
		if errors.Is(err, target) {
			return http.StatusConflict
		}
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest
	}
	var httpErr *apiclient.HTTPError
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apiclient.ErrNotSuccessful),
		errors.Is(err, apiclient.ErrTransport),
		errors.Is(err, apiclient.ErrDecode),
		errors.Is(err, attendance.ErrLoadFailed),
		errors.As(err, &httpErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	switch status {
	case http.StatusUnauthorized:
		body["error"] = apiclient.Message(err)
		body["logout"] = true
	case http.StatusBadGateway:
		body["error"] = apiclient.Message(err)
	case http.StatusInternalServerError:
		s.Log.Sugar().Errorw("request failed", "path", c.FullPath(), "error", err)
		body["error"] = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	v := c.Query(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}
