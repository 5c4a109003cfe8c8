package console

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"schoolconsole/internal/auth"
	"schoolconsole/internal/session"
)

type loginRequest struct {
	Token    string          `json:"token" binding:"required"`
	UserInfo json.RawMessage `json:"userInfo"`
	Operator string          `json:"operator"`
}

// login stores the school API credentials the operator signed in with and
// hands back a console token bound to them.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	operator := req.Operator
	if operator == "" {
		operator = operatorName(req.UserInfo)
	}

	sid := uuid.NewString()
	creds := session.Credentials{Token: req.Token, UserInfo: req.UserInfo}
	if err := s.Sessions.Save(c.Request.Context(), sid, creds); err != nil {
		s.Log.Error("save session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session store unavailable"})
		return
	}

	tok, err := auth.Issue(sid, operator, s.JWTIssuer, s.JWTSigningKey, s.SessionTTL)
	if err != nil {
		_ = s.Sessions.Clear(c.Request.Context(), sid)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	s.Log.Info("operator signed in", zap.String("session", sid), zap.String("operator", operator))

	c.JSON(http.StatusCreated, gin.H{
		"access_token": tok.Value,
		"expires_at":   tok.ExpiresAt.Unix(),
		"operator":     operator,
	})
}

func (s *Server) logout(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	sid := claims.SessionID()
	if err := s.Sessions.Clear(c.Request.Context(), sid); err != nil {
		s.Log.Warn("clear session failed", zap.String("session", sid), zap.Error(err))
	}
	s.Drafts.DiscardOwner(sid)
	c.Status(http.StatusNoContent)
}

// operatorName picks a display name out of the stored userInfo blob.
func operatorName(raw json.RawMessage) string {
	var info map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &info) != nil {
		return ""
	}
	for _, k := range []string{"userName", "username", "name", "email"} {
		if v, ok := info[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
