package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/rbtsched/core/constraints"
	coremon "github.com/kilianp07/rbtsched/core/monitoring"
)

// APIError is the body of every failed request.
type APIError struct {
	Message    string                  `json:"message"`
	Code       string                  `json:"code,omitempty"`
	Violations []constraints.Violation `json:"violations,omitempty"`
}

// ErrorEnvelope wraps an APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

const (
	CodeValidation = "validation_failed"
	CodeNotFound   = "not_found"
	CodeBadRequest = "bad_request"
	CodeInternal   = "internal"
	CodeAuth       = "unauthorized"
)

func respondError(c *gin.Context, status int, code, msg string, vs ...constraints.Violation) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code, Violations: vs}})
}

// respondErr maps a facade error: validation failures become 400 and
// anything else a 500 without detail.
func (h *Handler) respondErr(c *gin.Context, op string, err error) {
	var verr *constraints.ValidationError
	if errors.As(err, &verr) {
		if notFound(verr.Violations) {
			respondError(c, http.StatusNotFound, CodeNotFound, verr.Error(), verr.Violations...)
			return
		}
		respondError(c, http.StatusBadRequest, CodeValidation, verr.Error(), verr.Violations...)
		return
	}
	h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	coremon.CaptureException(err, map[string]string{"module": "api", "op": op})
	respondError(c, http.StatusInternalServerError, CodeInternal, "internal error")
}

func respondBind(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
}

// respondResult writes a business result. A not-found rejection is a 404,
// other rejections are 200 with success=false.
func respondResult(c *gin.Context, success bool, vs []constraints.Violation, body any) {
	if !success && notFound(vs) {
		c.JSON(http.StatusNotFound, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func notFound(vs []constraints.Violation) bool {
	return len(vs) > 0 && vs[0].Rule == constraints.RuleNotFound
}
