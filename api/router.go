// Package api exposes the scheduling facade over JSON HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/rbtsched/core/audit"
	"github.com/kilianp07/rbtsched/core/conflict"
	"github.com/kilianp07/rbtsched/core/impact"
	"github.com/kilianp07/rbtsched/core/logger"
	"github.com/kilianp07/rbtsched/core/scheduling"
)

// Scheduler is the facade surface served over HTTP.
type Scheduler interface {
	ScheduleSession(ctx context.Context, req scheduling.ScheduleRequest) (scheduling.ScheduleResult, error)
	FindReschedulingOptions(ctx context.Context, req scheduling.ReschedulingRequest) (scheduling.ReschedulingResult, error)
	ExecuteReschedule(ctx context.Context, req scheduling.ExecuteRequest) (scheduling.ExecuteResult, error)
	CancelSession(ctx context.Context, req scheduling.CancelRequest) (scheduling.SessionResult, error)
	CompleteSession(ctx context.Context, req scheduling.CompleteRequest) (scheduling.SessionResult, error)
	MarkProviderUnavailable(ctx context.Context, req scheduling.UnavailableRequest) (scheduling.UnavailableResult, error)
	AnalyzeReschedulingImpact(ctx context.Context, sessionID string, newStart time.Time, newRBTID string) (impact.Report, error)
	GetAuditTrail(ctx context.Context, entityType, entityID string, r *scheduling.TimeRange) (audit.Trail, error)
	DoubleBookings(ctx context.Context, rbtID string, from, to time.Time) ([]conflict.DoubleBooking, error)
	CreateTeam(ctx context.Context, req scheduling.TeamRequest) (scheduling.TeamResult, error)
	UpdateTeam(ctx context.Context, req scheduling.TeamRequest) (scheduling.TeamResult, error)
	AddProvider(ctx context.Context, req scheduling.RosterChange) (scheduling.TeamResult, error)
	RemoveProvider(ctx context.Context, req scheduling.RosterChange) (scheduling.TeamResult, error)
	ChangePrimary(ctx context.Context, req scheduling.RosterChange) (scheduling.TeamResult, error)
	EndTeam(ctx context.Context, req scheduling.RosterChange) (scheduling.TeamResult, error)
}

var _ Scheduler = (*scheduling.Service)(nil)

// Options configures the router.
type Options struct {
	// Token, when set, is required as "Authorization: Bearer <token>" on /api.
	Token string
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   logger.Logger
}

// NewRouter builds the gin engine serving the API, /healthz and /metrics.
func NewRouter(svc Scheduler, opts Options) *gin.Engine {
	h := &Handler{svc: svc, log: logger.OrNop(opts.Logger)}
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	if opts.Token != "" {
		api.Use(bearer(opts.Token))
	}
	sessions := api.Group("/sessions")
	{
		sessions.POST("", h.schedule)
		sessions.POST("/:id/options", h.options)
		sessions.POST("/:id/reschedule", h.reschedule)
		sessions.POST("/:id/cancel", h.cancel)
		sessions.POST("/:id/complete", h.complete)
		sessions.GET("/:id/impact", h.impact)
	}
	providers := api.Group("/providers/:id")
	{
		providers.POST("/unavailable", h.unavailable)
		providers.GET("/double-bookings", h.doubleBookings)
	}
	teams := api.Group("/teams")
	{
		teams.POST("", h.createTeam)
		teams.PUT("/:client_id", h.updateTeam)
		teams.DELETE("/:client_id", h.endTeam)
		teams.POST("/:client_id/members", h.addMember)
		teams.DELETE("/:client_id/members/:rbt_id", h.removeMember)
		teams.PUT("/:client_id/primary", h.changePrimary)
	}
	api.GET("/audit/:entity_type/:entity_id", h.auditTrail)
	return r
}

func bearer(token string) gin.HandlerFunc {
	want := []byte("Bearer " + token)
	return func(c *gin.Context) {
		if subtle.ConstantTimeCompare([]byte(c.GetHeader("Authorization")), want) != 1 {
			respondError(c, http.StatusUnauthorized, CodeAuth, "unauthorized")
			return
		}
		c.Next()
	}
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()
		h.log.Debugw("request", map[string]any{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(began).String(),
		})
	}
}
