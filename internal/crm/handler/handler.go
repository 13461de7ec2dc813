// Package handler exposes the CRM module over HTTP.
package handler

import (
	"strconv"
	"time"

	"cityguide_crm_backend/internal/crm/activity"
	"cityguide_crm_backend/internal/crm/contacts"
	"cityguide_crm_backend/internal/crm/pipeline"
	"cityguide_crm_backend/internal/crm/scoring"
	"cityguide_crm_backend/internal/crm/segments"
	"cityguide_crm_backend/internal/crm/tasks"
	"cityguide_crm_backend/internal/scheduler"
	"cityguide_crm_backend/platform/httpkit"
	"cityguide_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for the CRM.
type Handler struct {
	contacts   *contacts.Service
	segments   *segments.Service
	scoring    *scoring.Service
	pipeline   *pipeline.Service
	activity   *activity.Service
	tasks      *tasks.Service
	engagement scheduler.EngagementEnqueuer
	val        *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

// New creates a new CRM handler.
func New(
	contactsSvc *contacts.Service,
	segmentsSvc *segments.Service,
	scoringSvc *scoring.Service,
	pipelineSvc *pipeline.Service,
	activitySvc *activity.Service,
	tasksSvc *tasks.Service,
	val *validator.Validator,
) *Handler {
	return &Handler{
		contacts: contactsSvc,
		segments: segmentsSvc,
		scoring:  scoringSvc,
		pipeline: pipelineSvc,
		activity: activitySvc,
		tasks:    tasksSvc,
		val:      val,
	}
}

// SetEngagementEnqueuer routes engagement events through the background
// queue instead of scoring them inline.
func (h *Handler) SetEngagementEnqueuer(enqueuer scheduler.EngagementEnqueuer) {
	h.engagement = enqueuer
}

// actingUser resolves the authenticated user for performed_by stamps.
// Aborts with 401 when the request carries no identity.
func actingUser(c *gin.Context) (*uuid.UUID, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return nil, false
	}
	userID := identity.UserID()
	return &userID, true
}

func parsePage(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "50"))
	return page, pageSize
}

func queryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}

func queryString(c *gin.Context, name string) *string {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	return &raw
}

func queryInt(c *gin.Context, name string) *int {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &value
}

func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	return &t, true
}
