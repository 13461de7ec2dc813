package handler

import (
	"net/http"
	"strings"

	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// LogActivity appends a manual timeline entry.
// POST /api/v1/crm/activities
func (h *Handler) LogActivity(c *gin.Context) {
	var req transport.LogActivityRequest
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

	result, err := h.activity.LogActivity(c.Request.Context(), req, performedBy)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// ListActivities serves the filtered activity feed.
// GET /api/v1/crm/activities
func (h *Handler) ListActivities(c *gin.Context) {
	contactID, ok := queryUUID(c, "contactId")
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	dealID, ok := queryUUID(c, "dealId")
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	performedBy, ok := queryUUID(c, "performedBy")
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	from, ok := queryTime(c, "from")
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, "invalid from timestamp", nil)
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, "invalid to timestamp", nil)
		return
	}

	var activityTypes []string
	if raw := c.Query("types"); raw != "" {
		activityTypes = strings.Split(raw, ",")
	}
	page, pageSize := parsePage(c)

	result, err := h.activity.ListActivities(c.Request.Context(), repository.ListActivitiesParams{
		ContactID:     contactID,
		DealID:        dealID,
		ActivityTypes: activityTypes,
		PerformedBy:   performedBy,
		From:          from,
		To:            to,
		Page:          page,
		PageSize:      pageSize,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
