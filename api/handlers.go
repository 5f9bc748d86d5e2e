package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/rbtsched/core/constraints"
	"github.com/kilianp07/rbtsched/core/logger"
	"github.com/kilianp07/rbtsched/core/scheduling"
)

// Handler serves the facade operations.
type Handler struct {
	svc Scheduler
	log logger.Logger
}

// bind decodes an optional JSON body into v.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		respondBind(c, err)
		return false
	}
	return true
}

// queryTime parses an RFC3339 query parameter. Missing optional values
// return the zero time.
func queryTime(c *gin.Context, name string, required bool) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		if required {
			v := constraints.Violation{Rule: constraints.RuleRequired, Message: name + " is required"}
			respondError(c, http.StatusBadRequest, CodeValidation, v.String(), v)
			return time.Time{}, false
		}
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		v := constraints.Violation{Rule: constraints.RuleFormat, Message: name + " must be RFC3339"}
		respondError(c, http.StatusBadRequest, CodeValidation, v.String(), v)
		return time.Time{}, false
	}
	return t, true
}

func (h *Handler) schedule(c *gin.Context) {
	var req scheduling.ScheduleRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.svc.ScheduleSession(c.Request.Context(), req)
	if err != nil {
		h.respondErr(c, "schedule", err)
		return
	}
	switch {
	case res.Success:
		c.JSON(http.StatusCreated, res)
	case res.Conflicted():
		c.JSON(http.StatusConflict, res)
	default:
		respondResult(c, false, res.Violations, res)
	}
}

func (h *Handler) options(c *gin.Context) {
	var req scheduling.ReschedulingRequest
	if !bind(c, &req) {
		return
	}
	req.SessionID = c.Param("id")
	res, err := h.svc.FindReschedulingOptions(c.Request.Context(), req)
	if err != nil {
		h.respondErr(c, "options", err)
		return
	}
	respondResult(c, res.Success, res.Violations, res)
}

func (h *Handler) reschedule(c *gin.Context) {
	var req scheduling.ExecuteRequest
	if !bind(c, &req) {
		return
	}
	req.SessionID = c.Param("id")
	res, err := h.svc.ExecuteReschedule(c.Request.Context(), req)
	if err != nil {
		h.respondErr(c, "reschedule", err)
		return
	}
	respondResult(c, res.Success, res.Violations, res)
}

func (h *Handler) cancel(c *gin.Context) {
	var req scheduling.CancelRequest
	if !bind(c, &req) {
		return
	}
	req.SessionID = c.Param("id")
	res, err := h.svc.CancelSession(c.Request.Context(), req)
	if err != nil {
		h.respondErr(c, "cancel", err)
		return
	}
	respondResult(c, res.Success, res.Violations, res)
}

func (h *Handler) complete(c *gin.Context) {
	var req scheduling.CompleteRequest
	if !bind(c, &req) {
		return
	}
	req.SessionID = c.Param("id")
	res, err := h.svc.CompleteSession(c.Request.Context(), req)
	if err != nil {
		h.respondErr(c, "complete", err)
		return
	}
	respondResult(c, res.Success, res.Violations, res)
}

func (h *Handler) impact(c *gin.Context) {
	start, ok := queryTime(c, "new_start", true)
	if !ok {
		return
	}
	rep, err := h.svc.AnalyzeReschedulingImpact(c.Request.Context(), c.Param("id"), start, c.Query("new_rbt_id"))
	if err != nil {
		h.respondErr(c, "impact", err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) unavailable(c *gin.Context) {
	var req scheduling.UnavailableRequest
	if !bind(c, &req) {
		return
	}
	req.RBTID = c.Param("id")
	res, err := h.svc.MarkProviderUnavailable(c.Request.Context(), req)
	if err != nil {
		h.respondErr(c, "unavailable", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) doubleBookings(c *gin.Context) {
	from, ok := queryTime(c, "from", true)
	if !ok {
		return
	}
	to, ok := queryTime(c, "to", true)
	if !ok {
		return
	}
	found, err := h.svc.DoubleBookings(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		h.respondErr(c, "double_bookings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rbt_id": c.Param("id"), "double_bookings": found})
}

func (h *Handler) createTeam(c *gin.Context) {
	var req scheduling.TeamRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.svc.CreateTeam(c.Request.Context(), req)
	if err != nil {
		h.respondErr(c, "create_team", err)
		return
	}
	if res.Success {
		c.JSON(http.StatusCreated, res)
		return
	}
	respondResult(c, false, res.Violations, res)
}

func (h *Handler) updateTeam(c *gin.Context) {
	var req scheduling.TeamRequest
	if !bind(c, &req) {
		return
	}
	req.ClientID = c.Param("client_id")
	res, err := h.svc.UpdateTeam(c.Request.Context(), req)
	h.teamResult(c, "update_team", res, err)
}

func (h *Handler) endTeam(c *gin.Context) {
	req := scheduling.RosterChange{ClientID: c.Param("client_id"), Reason: c.Query("reason"), By: c.Query("by")}
	res, err := h.svc.EndTeam(c.Request.Context(), req)
	h.teamResult(c, "end_team", res, err)
}

func (h *Handler) addMember(c *gin.Context) {
	var req scheduling.RosterChange
	if !bind(c, &req) {
		return
	}
	req.ClientID = c.Param("client_id")
	res, err := h.svc.AddProvider(c.Request.Context(), req)
	h.teamResult(c, "add_member", res, err)
}

func (h *Handler) removeMember(c *gin.Context) {
	req := scheduling.RosterChange{
		ClientID: c.Param("client_id"),
		RBTID:    c.Param("rbt_id"),
		Reason:   c.Query("reason"),
		By:       c.Query("by"),
	}
	res, err := h.svc.RemoveProvider(c.Request.Context(), req)
	h.teamResult(c, "remove_member", res, err)
}

func (h *Handler) changePrimary(c *gin.Context) {
	var req scheduling.RosterChange
	if !bind(c, &req) {
		return
	}
	req.ClientID = c.Param("client_id")
	res, err := h.svc.ChangePrimary(c.Request.Context(), req)
	h.teamResult(c, "change_primary", res, err)
}

func (h *Handler) teamResult(c *gin.Context, op string, res scheduling.TeamResult, err error) {
	if err != nil {
		h.respondErr(c, op, err)
		return
	}
	respondResult(c, res.Success, res.Violations, res)
}

func (h *Handler) auditTrail(c *gin.Context) {
	from, ok := queryTime(c, "from", false)
	if !ok {
		return
	}
	to, ok := queryTime(c, "to", false)
	if !ok {
		return
	}
	var r *scheduling.TimeRange
	if !from.IsZero() || !to.IsZero() {
		r = &scheduling.TimeRange{From: from, To: to}
	}
	trail, err := h.svc.GetAuditTrail(c.Request.Context(), c.Param("entity_type"), c.Param("entity_id"), r)
	if err != nil {
		h.respondErr(c, "audit_trail", err)
		return
	}
	c.JSON(http.StatusOK, trail)
}
