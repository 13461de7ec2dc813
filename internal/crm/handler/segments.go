package handler

import (
	"net/http"

	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateSegment creates a static or dynamic segment.
// POST /api/v1/crm/segments
func (h *Handler) CreateSegment(c *gin.Context) {
	var req transport.CreateSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	createdBy, ok := actingUser(c)
	if !ok {
		return
	}

	result, err := h.segments.CreateSegment(c.Request.Context(), req, createdBy)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// GetSegment retrieves a segment by ID.
// GET /api/v1/crm/segments/:id
func (h *Handler) GetSegment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	result, err := h.segments.GetSegment(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListSegments lists all segments.
// GET /api/v1/crm/segments
func (h *Handler) ListSegments(c *gin.Context) {
	result, err := h.segments.ListSegments(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// UpdateSegment applies a partial update to a segment.
// PUT /api/v1/crm/segments/:id
func (h *Handler) UpdateSegment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.UpdateSegmentRequest
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

	result, err := h.segments.UpdateSegment(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DeleteSegment removes a segment.
// DELETE /api/v1/crm/segments/:id
func (h *Handler) DeleteSegment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	if _, ok := actingUser(c); !ok {
		return
	}

	if httpkit.HandleError(c, h.segments.DeleteSegment(c.Request.Context(), id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// EvaluateSegment resolves the current members of a segment.
// GET /api/v1/crm/segments/:id/contacts
func (h *Handler) EvaluateSegment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	members, err := h.segments.EvaluateSegment(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{
		"segmentId": id.String(),
		"count":     len(members),
		"members":   transport.ToContactResponses(members),
	})
}

// AddSegmentContact adds one contact to a static segment.
// POST /api/v1/crm/segments/:id/contacts/:contactId
func (h *Handler) AddSegmentContact(c *gin.Context) {
	segmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	contactID, err := uuid.Parse(c.Param("contactId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	performedBy, ok := actingUser(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.segments.AddContact(c.Request.Context(), segmentID, contactID, performedBy)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveSegmentContact removes one contact from a static segment.
// DELETE /api/v1/crm/segments/:id/contacts/:contactId
func (h *Handler) RemoveSegmentContact(c *gin.Context) {
	segmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	contactID, err := uuid.Parse(c.Param("contactId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	performedBy, ok := actingUser(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.segments.RemoveContact(c.Request.Context(), segmentID, contactID, performedBy)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// BulkAddSegmentContacts adds many contacts to a static segment,
// skipping ones that are already members.
// POST /api/v1/crm/segments/:id/contacts
func (h *Handler) BulkAddSegmentContacts(c *gin.Context) {
	segmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.AddSegmentMembersRequest
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

	contactIDs := make([]uuid.UUID, 0, len(req.ContactIDs))
	for _, raw := range req.ContactIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
			return
		}
		contactIDs = append(contactIDs, id)
	}

	result, err := h.segments.BulkAddContacts(c.Request.Context(), segmentID, contactIDs, performedBy)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"added": result.Added, "skipped": result.Skipped})
}
