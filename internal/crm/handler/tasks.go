package handler

import (
	"net/http"
	"time"

	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateTask registers a follow-up task.
// POST /api/v1/crm/tasks
func (h *Handler) CreateTask(c *gin.Context) {
	var req transport.CreateTaskRequest
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

	result, err := h.tasks.CreateTask(c.Request.Context(), req, createdBy)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// GetTask retrieves a task by ID.
// GET /api/v1/crm/tasks/:id
func (h *Handler) GetTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	result, err := h.tasks.GetTask(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListTasks lists a filtered page of tasks.
// GET /api/v1/crm/tasks
func (h *Handler) ListTasks(c *gin.Context) {
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
	assignedTo, ok := queryUUID(c, "assignedTo")
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	dueBefore, ok := queryTime(c, "dueBefore")
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, "invalid dueBefore timestamp", nil)
		return
	}
	dueAfter, ok := queryTime(c, "dueAfter")
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, "invalid dueAfter timestamp", nil)
		return
	}
	page, pageSize := parsePage(c)

	result, err := h.tasks.ListTasks(c.Request.Context(), repository.ListTasksParams{
		ContactID:  contactID,
		DealID:     dealID,
		Status:     queryString(c, "status"),
		Priority:   queryString(c, "priority"),
		AssignedTo: assignedTo,
		DueBefore:  dueBefore,
		DueAfter:   dueAfter,
		Page:       page,
		PageSize:   pageSize,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// UpdateTask applies a partial update to an open task.
// PUT /api/v1/crm/tasks/:id
func (h *Handler) UpdateTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.UpdateTaskRequest
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

	result, err := h.tasks.UpdateTask(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CompleteTask marks a task completed.
// POST /api/v1/crm/tasks/:id/complete
func (h *Handler) CompleteTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	completedBy, ok := actingUser(c)
	if !ok {
		return
	}

	result, err := h.tasks.CompleteTask(c.Request.Context(), id, completedBy)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CancelTask cancels an open task.
// POST /api/v1/crm/tasks/:id/cancel
func (h *Handler) CancelTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	if _, ok := actingUser(c); !ok {
		return
	}

	result, err := h.tasks.CancelTask(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListOverdueTasks lists the open tasks past their due date.
// GET /api/v1/crm/tasks/overdue
func (h *Handler) ListOverdueTasks(c *gin.Context) {
	overdue, err := h.tasks.ListOverdue(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": overdue})
}

// ListUpcomingTasks lists open tasks due within the window (default 7 days).
// GET /api/v1/crm/tasks/upcoming?days=7
func (h *Handler) ListUpcomingTasks(c *gin.Context) {
	days := 7
	if v := queryInt(c, "days"); v != nil && *v > 0 {
		days = *v
	}

	upcoming, err := h.tasks.ListUpcoming(c.Request.Context(), time.Duration(days)*24*time.Hour)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": upcoming})
}
