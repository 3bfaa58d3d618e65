package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/hordu-ma/wuhao-tutor-sub002/internal/errors"
	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/http/dto"
	guardUseCase "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/usecase"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/httputil"
	customValidation "github.com/hordu-ma/wuhao-tutor-sub002/internal/validation"
)

// GuardHandler handles HTTP requests for the guard API: explicit policy
// checks, the audit trail, and cache management.
type GuardHandler struct {
	engine guardUseCase.Engine
	logger *slog.Logger
}

// NewGuardHandler creates a new guard handler with required dependencies.
func NewGuardHandler(engine guardUseCase.Engine, logger *slog.Logger) *GuardHandler {
	return &GuardHandler{
		engine: engine,
		logger: logger,
	}
}

// CheckHandler evaluates one action for the calling subject.
// POST /api/v1/guard/check.
// Always returns 200 OK with the decision body: a denial is a successful
// evaluation, not a request failure.
func (h *GuardHandler) CheckHandler(c *gin.Context) {
	var req dto.CheckRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	subject, _ := GetSubject(c.Request.Context())
	decision := h.engine.Evaluate(c.Request.Context(), subject, req.ResourceKey, req.ToEvalContext())

	c.JSON(http.StatusOK, dto.MapDecisionToResponse(decision))
}

// AuditHandler returns the most recent evaluation records, newest first.
// GET /api/v1/guard/audit?limit=50 - admin only.
func (h *GuardHandler) AuditHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	limit, err := httputil.ParseLimit(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	records := h.engine.RecentAudit(limit)
	c.JSON(http.StatusOK, dto.MapAuditToListResponse(records))
}

// ClearCacheHandler drops cached decisions for one subject or for everyone.
// POST /api/v1/guard/cache/clear - admin only.
func (h *GuardHandler) ClearCacheHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	var req dto.ClearCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	h.engine.ClearCache(req.SubjectID)
	c.Status(http.StatusNoContent)
}

// requireAdmin aborts with 401/403 unless the caller is an authenticated
// admin. Returns true when the request may proceed.
func (h *GuardHandler) requireAdmin(c *gin.Context) bool {
	subject, ok := GetSubject(c.Request.Context())
	if !ok || subject == nil || !subject.Authenticated {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, h.logger)
		c.Abort()
		return false
	}
	if subject.Role != guardDomain.AdminRole {
		httputil.HandleErrorGin(c, apperrors.ErrForbidden, h.logger)
		c.Abort()
		return false
	}
	return true
}
