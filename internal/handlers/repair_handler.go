package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fixunreads/internal/repair"
)

// Pinger reports whether the message store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type RepairHandler struct {
	runner   *repair.Runner
	repairer *repair.Repairer
	db       Pinger
	log      *zap.Logger
}

func NewRepairHandler(runner *repair.Runner, repairer *repair.Repairer, db Pinger, log *zap.Logger) *RepairHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RepairHandler{
		runner:   runner,
		repairer: repairer,
		db:       db,
		log:      log,
	}
}

type repairRequest struct {
	Email string `json:"email" binding:"required"`
	Realm string `json:"realm"`

	// Unset fields fall back to the server's configured options
	ApplyPreMarker *bool `json:"apply_pre_marker"`
	DryRun         *bool `json:"dry_run"`
}

// Health handles GET /health
func (h *RepairHandler) Health(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		h.log.Error("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Repair handles POST /api/admin/repair
func (h *RepairHandler) Repair(c *gin.Context) {
	var req repairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}

	ctx := c.Request.Context()

	realmID, err := h.runner.ResolveRealm(ctx, req.Realm)
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	user, err := h.runner.ResolveUser(ctx, email, realmID)
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	opts := h.repairer.Options()
	if req.ApplyPreMarker != nil {
		opts.ApplyPreMarker = *req.ApplyPreMarker
	}
	if req.DryRun != nil {
		opts.DryRun = *req.DryRun
	}

	report, err := h.repairer.WithOptions(opts).Repair(ctx, user)
	if err != nil {
		h.fail(c, err, report)
		return
	}

	h.log.Info("repair requested over http",
		zap.String("email", user.Email),
		zap.String("outcome", report.Outcome),
		zap.Int("cleared", report.Cleared()))

	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (h *RepairHandler) fail(c *gin.Context, err error, report *repair.Report) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("repair failed", zap.Error(err))
	}

	body := gin.H{"error": err.Error()}
	if report != nil {
		body["report"] = report
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repair.ErrRealmNotFound), errors.Is(err, repair.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, repair.ErrAmbiguousUser):
		return http.StatusConflict
	case errors.Is(err, repair.ErrUnknownChannel),
		errors.Is(err, repair.ErrAmbiguousChannel),
		errors.Is(err, repair.ErrMalformedMuteList):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
