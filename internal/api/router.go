// Package api serves the portal's list and mutation endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"madrasah/internal/attendance"
	"madrasah/internal/auth"
	"madrasah/internal/config"
	"madrasah/internal/enrollment"
	"madrasah/internal/httpmiddleware"
	"madrasah/internal/idempotency"
	"madrasah/internal/metrics"
	"madrasah/internal/notification"
	"madrasah/internal/realtime"
	"madrasah/internal/resource"
)

// Options wires the router. Hub, Metrics and Idempotency are optional.
type Options struct {
	Config       config.App
	Attendance   *attendance.Service
	Enrollment   *enrollment.Service
	Notification *notification.Service
	Resource     *resource.Service
	Idempotency  idempotency.Store
	Hub          *realtime.Hub
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	// Checks are reported by /healthz; any false answer fails it.
	Checks map[string]func(context.Context) bool
	Log    *zap.Logger
}

// Server holds the handlers' dependencies.
type Server struct {
	cfg        config.App
	attendance *attendance.Service
	enrollment *enrollment.Service
	notify     *notification.Service
	resources  *resource.Service
	idem       idempotency.Store
	hub        *realtime.Hub
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// NewRouter builds the gin engine.
func NewRouter(o Options) *gin.Engine {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	s := &Server{
		cfg:        o.Config,
		attendance: o.Attendance,
		enrollment: o.Enrollment,
		notify:     o.Notification,
		resources:  o.Resource,
		idem:       o.Idempotency,
		hub:        o.Hub,
		metrics:    o.Metrics,
		log:        o.Log,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware(o.Config.CORSOrigins))
	r.Use(securityHeaders())
	if o.Metrics != nil {
		r.Use(o.Metrics.GinMiddleware())
	}

	if o.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/healthz", health(o.Checks))

	limiter := httpmiddleware.NewSimpleTokenBucket(o.Config.RateLimitPerMin, o.Config.RateLimitPerMin, subjectOrIP)

	if !o.Config.Production() {
		r.POST("/v1/auth/token", limiter.GinMiddleware(), s.issueToken)
	}

	v1 := r.Group("/v1", auth.Required(o.Config.JWTSigningKey, o.Config.JWTIssuer), limiter.GinMiddleware())
	staff := auth.RequireRole(auth.RoleAdmin, auth.RoleTeacher)

	v1.POST("/attendance/actions", staff, s.actions(attendance.Entity, s.attendanceAction))
	v1.GET("/attendance/:scheduleID", staff, s.listAttendance)
	v1.GET("/attendance/:scheduleID/summary", staff, s.attendanceSummary)

	v1.POST("/enrollment/actions", staff, s.actions(enrollment.Entity, s.enrollmentAction))
	v1.GET("/enrollment/:classID", staff, s.listEnrollment)

	v1.POST("/notifications", staff, s.createNotification)
	v1.POST("/notifications/actions", s.actions(notification.Entity, s.notificationAction))
	v1.GET("/notifications", s.listNotifications)
	v1.GET("/notifications/unread-count", s.unreadCount)

	v1.POST("/resources/actions", staff, s.actions(resource.Entity, s.resourceAction))
	v1.POST("/resources/upload", staff, s.uploadResource)
	v1.GET("/resources", s.listResources)

	if o.Hub != nil {
		v1.GET("/ws", s.serveWS)
	}
	return r
}

func subjectOrIP(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok {
		return "sub:" + claims.Subject
	}
	return "ip:" + httpmiddleware.ClientIP(c)
}

func health(checks map[string]func(context.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		body := gin.H{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			healthy := check(ctx)
			body[name] = healthy
			if !healthy {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}

func (s *Server) issueToken(c *gin.Context) {
	var req struct {
		Subject string    `json:"subject" binding:"required"`
		Role    auth.Role `json:"role" binding:"required,oneof=admin teacher parent student"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error(), "kind": "validation"})
		return
	}
	tok, err := auth.Issue(req.Subject, req.Role, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusCreated, gin.H{"access_token": tok.AccessToken, "expires_at": tok.ExpiresAt.Unix()})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
