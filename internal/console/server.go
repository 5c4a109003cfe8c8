// Package console is the HTTP API the school operator console talks to. It
// owns the operator sessions and forwards every workflow to the school API.
package console

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"schoolconsole/internal/apiclient"
	"schoolconsole/internal/attendance"
	"schoolconsole/internal/audit"
	"schoolconsole/internal/auth"
	"schoolconsole/internal/cloudinary"
	"schoolconsole/internal/enrollment"
	"schoolconsole/internal/httpmiddleware"
	"schoolconsole/internal/session"
)

// AuditLog lists persisted audit events.
type AuditLog interface {
	List(ctx context.Context, f audit.Filter) ([]audit.Event, error)
}

// PhotoUploader stores a student photo and returns its public URL.
type PhotoUploader interface {
	UploadDataURL(ctx context.Context, data, publicID string) (*cloudinary.UploadResult, error)
}

// Deps wires the server. School is the template client; every request gets a
// copy authenticated as the calling operator.
type Deps struct {
	School   *apiclient.Client
	Sessions session.Store
	Inflight *attendance.Inflight
	Drafts   *enrollment.Drafts
	Recorder *audit.Recorder
	Audit    AuditLog
	Photos   PhotoUploader
	Limiter  *httpmiddleware.SimpleTokenBucket
	Checks   map[string]func(context.Context) bool
	Log      *zap.Logger
	// AllowedOrigins get CORS headers; any other origin gets none.
	AllowedOrigins []string

	JWTIssuer     string
	JWTSigningKey string
	SessionTTL    time.Duration
}

// Server holds the handlers.
type Server struct {
	Deps
}

// NewServer fills in defaults for optional dependencies.
func NewServer(d Deps) *Server {
	if d.Inflight == nil {
		d.Inflight = attendance.NewInflight()
	}
	if d.Drafts == nil {
		d.Drafts = enrollment.NewDrafts()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = 12 * time.Hour
	}
	return &Server{Deps: d}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware(s.AllowedOrigins))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.health)

	open := r.Group("/v1")
	if s.Limiter != nil {
		open.Use(s.Limiter.GinMiddleware())
	}
	open.POST("/login", s.login)

	v1 := r.Group("/v1", auth.OperatorAuth(s.JWTSigningKey, s.JWTIssuer))
	if s.Limiter != nil {
		v1.Use(s.Limiter.GinMiddleware())
	}
	v1.POST("/logout", s.logout)

	sessions := v1.Group("/sessions/:scheduleId")
	sessions.GET("/roster", s.getRoster)
	sessions.GET("/roster/export", s.exportRoster)
	sessions.POST("/attendance", s.markAttendance)
	sessions.GET("/enrollment", s.openEnrollment)
	sessions.POST("/enrollment", s.submitEnrollment)
	sessions.DELETE("/enrollment", s.cancelEnrollment)
	sessions.POST("/enrollment/toggle/:studentId", s.toggleEnrollment)
	sessions.POST("/enrollment/students", s.addStudent)
	sessions.DELETE("/students/:studentId", s.removeFromSession)

	v1.POST("/students/:studentId/unenroll", s.unenroll)
	v1.GET("/audit", s.listAudit)

	return r
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.Checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// school returns the upstream client acting for the calling operator. A
// rejected token clears the stored credentials and the operator's drafts.
func (s *Server) school(c *gin.Context) (*apiclient.Client, auth.Claims) {
	claims, _ := auth.FromContext(c)
	a := session.NewAuth(s.Sessions, claims.SessionID(), s.Log, s.Drafts.DiscardOwner)
	return s.School.WithAuth(a), claims
}

func (s *Server) record(c *gin.Context, claims auth.Claims, evt audit.Event) {
	evt.Operator = claims.Operator
	if evt.Operator == "" {
		evt.Operator = claims.SessionID()
	}
	s.Recorder.Record(c.Request.Context(), evt)
}

// corsMiddleware answers browsers calling from an allowed origin. Credentials
// are only ever granted to an exact match.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "600")
			c.Header("Access-Control-Expose-Headers", "Content-Disposition")
		}
		if origin != "" {
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions && origin != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Cache-Control", "no-store")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000")
		}
		c.Next()
	}
}
