package handler

import (
	"net/http"

	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateContact creates a contact.
// POST /api/v1/crm/contacts
func (h *Handler) CreateContact(c *gin.Context) {
	var req transport.CreateContactRequest
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

	result, err := h.contacts.CreateContact(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// GetContact retrieves a contact by ID.
// GET /api/v1/crm/contacts/:id
func (h *Handler) GetContact(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	result, err := h.contacts.GetContact(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListContacts retrieves a filtered page of contacts.
// GET /api/v1/crm/contacts
func (h *Handler) ListContacts(c *gin.Context) {
	assignedTo, ok := queryUUID(c, "assignedTo")
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	page, pageSize := parsePage(c)

	result, err := h.contacts.ListContacts(c.Request.Context(), repository.ListContactsParams{
		Status:     queryString(c, "status"),
		Source:     queryString(c, "source"),
		AssignedTo: assignedTo,
		Search:     c.Query("search"),
		MinScore:   queryInt(c, "minScore"),
		MaxScore:   queryInt(c, "maxScore"),
		Page:       page,
		PageSize:   pageSize,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// UpdateContact applies a partial update to a contact.
// PUT /api/v1/crm/contacts/:id
func (h *Handler) UpdateContact(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.UpdateContactRequest
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

	result, err := h.contacts.UpdateContact(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DeleteContact removes a contact.
// DELETE /api/v1/crm/contacts/:id
func (h *Handler) DeleteContact(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	if _, ok := actingUser(c); !ok {
		return
	}

	if httpkit.HandleError(c, h.contacts.DeleteContact(c.Request.Context(), id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// ListContactSegments lists the static segments a contact belongs to.
// GET /api/v1/crm/contacts/:id/segments
func (h *Handler) ListContactSegments(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	segmentIDs, err := h.contacts.ListContactSegments(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"segmentIds": segmentIDs})
}
