package handler

import (
	"net/http"
	"strconv"
	"strings"

	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/internal/scheduler"
	"cityguide_crm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ApplyScoreChange applies a manual score delta to a contact.
// POST /api/v1/crm/contacts/:id/score
func (h *Handler) ApplyScoreChange(c *gin.Context) {
	contactID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.ApplyScoreChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	performedBy, ok := actingUser(c)
	if !ok {
		return
	}

	result, err := h.scoring.ApplyScoreChange(c.Request.Context(), contactID, req, performedBy)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetScoreHistory returns a contact's score history.
// GET /api/v1/crm/contacts/:id/score-history
func (h *Handler) GetScoreHistory(c *gin.Context) {
	contactID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	history, err := h.scoring.GetHistory(c.Request.Context(), contactID, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": history})
}

// ApplyEngagementEvent scores an engagement event against the matching
// active rules. The contact comes from the path; the body carries the
// event type and its idempotency key. With a queue wired, the event is
// accepted for background scoring instead of being scored inline.
// POST /api/v1/crm/contacts/:id/events
func (h *Handler) ApplyEngagementEvent(c *gin.Context) {
	var req transport.EngagementEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	req.ContactID = c.Param("id")
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if h.engagement != nil {
		err := h.engagement.EnqueueEngagementEvent(c.Request.Context(), scheduler.EngagementEventPayload{
			ContactID: req.ContactID,
			EventType: req.EventType,
			EventKey:  req.EventKey,
		})
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.JSON(c, http.StatusAccepted, gin.H{"queued": true})
		return
	}

	results, err := h.scoring.ApplyEngagementEvent(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"applied": results})
}

// CreateScoreRule registers a scoring rule.
// POST /api/v1/crm/score-rules
func (h *Handler) CreateScoreRule(c *gin.Context) {
	var req transport.CreateScoreRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	if _, ok := actingUser(c); !ok {
		return
	}

	result, err := h.scoring.CreateRule(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// UpdateScoreRule applies a partial update to a scoring rule.
// PUT /api/v1/crm/score-rules/:id
func (h *Handler) UpdateScoreRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.UpdateScoreRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	if _, ok := actingUser(c); !ok {
		return
	}

	result, err := h.scoring.UpdateRule(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetScoreRule retrieves a scoring rule by ID.
// GET /api/v1/crm/score-rules/:id
func (h *Handler) GetScoreRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	result, err := h.scoring.GetRule(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListScoreRules lists scoring rules.
// GET /api/v1/crm/score-rules?onlyActive=true
func (h *Handler) ListScoreRules(c *gin.Context) {
	onlyActive := strings.EqualFold(c.Query("onlyActive"), "true")

	rules, err := h.scoring.ListRules(c.Request.Context(), onlyActive)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": rules})
}
