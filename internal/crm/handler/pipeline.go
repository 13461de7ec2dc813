package handler

import (
	"net/http"

	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListPipelineStages lists the pipeline stages in order.
// GET /api/v1/crm/pipeline/stages
func (h *Handler) ListPipelineStages(c *gin.Context) {
	stages, err := h.pipeline.ListStages(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": stages})
}

// CreateDeal opens a deal against a contact.
// POST /api/v1/crm/deals
func (h *Handler) CreateDeal(c *gin.Context) {
	var req transport.CreateDealRequest
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

	result, err := h.pipeline.CreateDeal(c.Request.Context(), req, performedBy)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// GetDeal retrieves a deal by ID.
// GET /api/v1/crm/deals/:id
func (h *Handler) GetDeal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	result, err := h.pipeline.GetDeal(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListDeals lists a filtered page of deals.
// GET /api/v1/crm/deals
func (h *Handler) ListDeals(c *gin.Context) {
	contactID, ok := queryUUID(c, "contactId")
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	stageID, ok := queryUUID(c, "stageId")
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	page, pageSize := parsePage(c)

	result, err := h.pipeline.ListDeals(c.Request.Context(), repository.ListDealsParams{
		ContactID: contactID,
		StageID:   stageID,
		Status:    queryString(c, "status"),
		Page:      page,
		PageSize:  pageSize,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// UpdateDeal applies a partial update to deal metadata.
// PUT /api/v1/crm/deals/:id
func (h *Handler) UpdateDeal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.UpdateDealRequest
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

	result, err := h.pipeline.UpdateDeal(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// MoveDeal moves an open deal to another stage.
// POST /api/v1/crm/deals/:id/move
func (h *Handler) MoveDeal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.MoveDealRequest
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

	result, err := h.pipeline.MoveDeal(c.Request.Context(), id, req, performedBy)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CloseDeal transitions a deal to won or lost.
// POST /api/v1/crm/deals/:id/close
func (h *Handler) CloseDeal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.CloseDealRequest
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

	result, err := h.pipeline.CloseDeal(c.Request.Context(), id, req, performedBy)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetDealStageHistory returns a deal's stage moves.
// GET /api/v1/crm/deals/:id/history
func (h *Handler) GetDealStageHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	history, err := h.pipeline.GetStageHistory(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": history})
}

// GetPipelineBoard groups open deals per stage.
// GET /api/v1/crm/deals/board
func (h *Handler) GetPipelineBoard(c *gin.Context) {
	board, err := h.pipeline.Board(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"columns": board})
}

// GetPipelineStats aggregates the pipeline for dashboards.
// GET /api/v1/crm/pipeline/stats
func (h *Handler) GetPipelineStats(c *gin.Context) {
	stats, err := h.pipeline.Stats(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, stats)
}
