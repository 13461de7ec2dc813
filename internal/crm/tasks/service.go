// Package tasks manages follow-up tasks tied to contacts and deals,
// including the overdue sweep run by the background worker.
package tasks

import (
	"context"
	"time"

	"cityguide_crm_backend/internal/crm/domain"
	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/internal/metrics"
	"cityguide_crm_backend/platform/apperr"
	"cityguide_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Repository defines the data access the task service needs.
// This is a consumer-driven interface - only what tasks needs.
type Repository interface {
	repository.TaskReader
	repository.TaskWriter

	GetContactByID(ctx context.Context, id uuid.UUID) (repository.Contact, error)
	GetDealByID(ctx context.Context, id uuid.UUID) (repository.Deal, error)
}

// Service manages follow-up tasks.
type Service struct {
	repo    Repository
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New creates a new task service.
func New(repo Repository, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, log: log, metrics: m}
}

// CreateTask registers a follow-up task. Contact and deal references are
// both optional but must point at existing records when set.
func (s *Service) CreateTask(ctx context.Context, req transport.CreateTaskRequest, createdBy *uuid.UUID) (transport.TaskResponse, error) {
	contactID, ok := transport.ParseUUIDPtr(req.ContactID)
	if !ok {
		return transport.TaskResponse{}, apperr.Validation("invalid contact id")
	}
	dealID, ok := transport.ParseUUIDPtr(req.DealID)
	if !ok {
		return transport.TaskResponse{}, apperr.Validation("invalid deal id")
	}
	assignedTo, ok := transport.ParseUUIDPtr(req.AssignedTo)
	if !ok {
		return transport.TaskResponse{}, apperr.Validation("invalid assignee id")
	}

	if contactID != nil {
		if _, err := s.repo.GetContactByID(ctx, *contactID); err != nil {
			return transport.TaskResponse{}, err
		}
	}
	if dealID != nil {
		if _, err := s.repo.GetDealByID(ctx, *dealID); err != nil {
			return transport.TaskResponse{}, err
		}
	}

	priority := req.Priority
	if priority == "" {
		priority = domain.TaskPriorityMedium
	}
	if !domain.IsKnownTaskPriority(priority) {
		return transport.TaskResponse{}, apperr.Validation("unknown task priority")
	}

	task, err := s.repo.CreateTask(ctx, repository.CreateTaskParams{
		ContactID:   contactID,
		DealID:      dealID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Priority:    priority,
		AssignedTo:  assignedTo,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return transport.TaskResponse{}, err
	}
	return transport.ToTaskResponse(task, time.Now()), nil
}

// GetTask returns one task.
func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (transport.TaskResponse, error) {
	task, err := s.repo.GetTaskByID(ctx, id)
	if err != nil {
		return transport.TaskResponse{}, err
	}
	return transport.ToTaskResponse(task, time.Now()), nil
}

// UpdateTask applies a partial update to an open task. Closed tasks are
// immutable.
func (s *Service) UpdateTask(ctx context.Context, id uuid.UUID, req transport.UpdateTaskRequest) (transport.TaskResponse, error) {
	if req.Status != nil && !domain.IsOpenTaskStatus(*req.Status) {
		return transport.TaskResponse{}, apperr.Validation("status can only move between pending and in_progress; use complete or cancel")
	}
	assignedTo, ok := transport.ParseUUIDPtr(req.AssignedTo)
	if !ok {
		return transport.TaskResponse{}, apperr.Validation("invalid assignee id")
	}

	task, err := s.repo.UpdateTask(ctx, repository.UpdateTaskParams{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Priority:    req.Priority,
		Status:      req.Status,
		AssignedTo:  assignedTo,
	})
	if err != nil {
		return transport.TaskResponse{}, err
	}
	return transport.ToTaskResponse(task, time.Now()), nil
}

// CompleteTask marks an open task completed. Completing a completed or
// cancelled task fails with a conflict.
func (s *Service) CompleteTask(ctx context.Context, id uuid.UUID, completedBy *uuid.UUID) (transport.TaskResponse, error) {
	task, err := s.repo.CompleteTask(ctx, id, completedBy)
	if err != nil {
		return transport.TaskResponse{}, err
	}
	if s.metrics != nil {
		s.metrics.TasksCompleted.Inc()
	}
	return transport.ToTaskResponse(task, time.Now()), nil
}

// CancelTask cancels an open task.
func (s *Service) CancelTask(ctx context.Context, id uuid.UUID) (transport.TaskResponse, error) {
	task, err := s.repo.CancelTask(ctx, id)
	if err != nil {
		return transport.TaskResponse{}, err
	}
	return transport.ToTaskResponse(task, time.Now()), nil
}

// ListTasks returns a filtered page of tasks ordered by due date.
func (s *Service) ListTasks(ctx context.Context, params repository.ListTasksParams) (transport.PagedTasksResponse, error) {
	result, err := s.repo.ListTasks(ctx, params)
	if err != nil {
		return transport.PagedTasksResponse{}, err
	}
	return transport.PagedTasksResponse{
		Items:      transport.ToTaskResponses(result.Items, time.Now()),
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}, nil
}

// ListOverdue returns the open tasks whose due date has passed.
func (s *Service) ListOverdue(ctx context.Context) ([]transport.TaskResponse, error) {
	now := time.Now()
	overdue, err := s.repo.ListOverdueTasks(ctx, now)
	if err != nil {
		return nil, err
	}
	return transport.ToTaskResponses(overdue, now), nil
}

// ListUpcoming returns open tasks due within the given window.
func (s *Service) ListUpcoming(ctx context.Context, window time.Duration) ([]transport.TaskResponse, error) {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	now := time.Now()
	upcoming, err := s.repo.ListUpcomingTasks(ctx, now, now.Add(window))
	if err != nil {
		return nil, err
	}
	return transport.ToTaskResponses(upcoming, now), nil
}

// SweepOverdue counts the currently overdue tasks for the periodic
// background job. The sweep never mutates tasks: overdue is a derived
// state, so it only reports.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	overdue, err := s.repo.ListOverdueTasks(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.OverdueTasksSwept.Add(float64(len(overdue)))
	}
	if s.log != nil && len(overdue) > 0 {
		s.log.Info("overdue task sweep", "count", len(overdue))
	}
	return len(overdue), nil
}
