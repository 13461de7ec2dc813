package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cityguide_crm_backend/internal/crm/domain"
	"cityguide_crm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const taskNotFoundMsg = "task not found"

// Task is the database model for a follow-up task.
type Task struct {
	ID          uuid.UUID
	ContactID   *uuid.UUID
	DealID      *uuid.UUID
	Title       string
	Description *string
	DueDate     *time.Time
	Priority    string
	Status      string
	AssignedTo  *uuid.UUID
	CreatedBy   *uuid.UUID
	CompletedAt *time.Time
	CompletedBy *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateTaskParams struct {
	ContactID   *uuid.UUID
	DealID      *uuid.UUID
	Title       string
	Description *string
	DueDate     *time.Time
	Priority    string
	AssignedTo  *uuid.UUID
	CreatedBy   *uuid.UUID
}

type UpdateTaskParams struct {
	ID          uuid.UUID
	Title       *string
	Description *string
	DueDate     *time.Time
	Priority    *string
	Status      *string
	AssignedTo  *uuid.UUID
}

// ListTasksParams contains filters for listing tasks.
type ListTasksParams struct {
	ContactID  *uuid.UUID
	DealID     *uuid.UUID
	Status     *string
	Priority   *string
	AssignedTo *uuid.UUID
	DueBefore  *time.Time
	DueAfter   *time.Time
	Page       int
	PageSize   int
}

// ListTasksResult contains the paginated result of listing tasks.
type ListTasksResult struct {
	Items      []Task
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

const taskSelectCols = `
	id, contact_id, deal_id, title, description, due_date, priority, status,
	assigned_to, created_by, completed_at, completed_by, created_at, updated_at`

func scanTask(s rowScanner) (Task, error) {
	var t Task
	if err := s.Scan(
		&t.ID,
		&t.ContactID,
		&t.DealID,
		&t.Title,
		&t.Description,
		&t.DueDate,
		&t.Priority,
		&t.Status,
		&t.AssignedTo,
		&t.CreatedBy,
		&t.CompletedAt,
		&t.CompletedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return Task{}, err
	}
	return t, nil
}

func collectTasks(rows pgxRows) ([]Task, error) {
	items := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateTask inserts a task in pending status.
func (r *Repository) CreateTask(ctx context.Context, params CreateTaskParams) (Task, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO crm_tasks (contact_id, deal_id, title, description, due_date, priority, status, assigned_to, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING`+taskSelectCols+`
	`, params.ContactID, params.DealID, params.Title, params.Description,
		params.DueDate, params.Priority, domain.TaskStatusPending,
		params.AssignedTo, params.CreatedBy)

	t, err := scanTask(row)
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// GetTaskByID retrieves a task by id.
func (r *Repository) GetTaskByID(ctx context.Context, id uuid.UUID) (Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+taskSelectCols+`
		FROM crm_tasks
		WHERE id = $1
	`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, apperr.NotFound(taskNotFoundMsg)
		}
		return Task{}, fmt.Errorf("get task by id: %w", err)
	}
	return t, nil
}

// UpdateTask applies a partial update. Status changes here only move
// between pending and in_progress; completion goes through CompleteTask.
func (r *Repository) UpdateTask(ctx context.Context, params UpdateTaskParams) (Task, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE crm_tasks SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			due_date = COALESCE($4, due_date),
			priority = COALESCE($5, priority),
			status = COALESCE($6, status),
			assigned_to = COALESCE($7, assigned_to),
			updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled')
		RETURNING`+taskSelectCols+`
	`, params.ID, params.Title, params.Description, params.DueDate,
		params.Priority, params.Status, params.AssignedTo)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, apperr.NotFound(taskNotFoundMsg)
		}
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	return t, nil
}

// CompleteTask transitions an open task to completed and stamps who
// finished it when. The guard in the WHERE clause makes the transition
// one-way: completed and cancelled tasks never move again.
func (r *Repository) CompleteTask(ctx context.Context, id uuid.UUID, completedBy *uuid.UUID) (Task, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE crm_tasks SET
			status = $2,
			completed_at = now(),
			completed_by = $3,
			updated_at = now()
		WHERE id = $1 AND status IN ($4, $5)
		RETURNING`+taskSelectCols+`
	`, id, domain.TaskStatusCompleted, completedBy,
		domain.TaskStatusPending, domain.TaskStatusInProgress)

	t, err := scanTask(row)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Task{}, fmt.Errorf("complete task: %w", err)
	}

	// Distinguish a missing task from an illegal transition.
	var status string
	lookupErr := r.pool.QueryRow(ctx, `SELECT status FROM crm_tasks WHERE id = $1`, id).Scan(&status)
	if lookupErr != nil {
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return Task{}, apperr.NotFound(taskNotFoundMsg)
		}
		return Task{}, fmt.Errorf("complete task: %w", lookupErr)
	}
	return Task{}, apperr.Conflict(fmt.Sprintf("task is %s and cannot be completed", status))
}

// CancelTask transitions an open task to cancelled.
func (r *Repository) CancelTask(ctx context.Context, id uuid.UUID) (Task, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE crm_tasks SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)
		RETURNING`+taskSelectCols+`
	`, id, domain.TaskStatusCancelled, domain.TaskStatusPending, domain.TaskStatusInProgress)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, apperr.Conflict("task is not open")
		}
		return Task{}, fmt.Errorf("cancel task: %w", err)
	}
	return t, nil
}

// ListTasks returns a filtered, paginated page of tasks ordered by due
// date ascending with undated tasks last.
func (r *Repository) ListTasks(ctx context.Context, params ListTasksParams) (ListTasksResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 200 {
		params.PageSize = 50
	}

	where := "WHERE 1=1"
	args := []any{}
	arg := 0
	next := func(v any) string {
		arg++
		args = append(args, v)
		return fmt.Sprintf("$%d", arg)
	}

	if params.ContactID != nil {
		where += " AND contact_id = " + next(*params.ContactID)
	}
	if params.DealID != nil {
		where += " AND deal_id = " + next(*params.DealID)
	}
	if params.Status != nil {
		where += " AND status = " + next(*params.Status)
	}
	if params.Priority != nil {
		where += " AND priority = " + next(*params.Priority)
	}
	if params.AssignedTo != nil {
		where += " AND assigned_to = " + next(*params.AssignedTo)
	}
	if params.DueBefore != nil {
		where += " AND due_date <= " + next(*params.DueBefore)
	}
	if params.DueAfter != nil {
		where += " AND due_date >= " + next(*params.DueAfter)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM crm_tasks "+where, args...).Scan(&total); err != nil {
		return ListTasksResult{}, fmt.Errorf("count tasks: %w", err)
	}

	limit := next(params.PageSize)
	offset := next((params.Page - 1) * params.PageSize)
	rows, err := r.pool.Query(ctx, `
		SELECT`+taskSelectCols+`
		FROM crm_tasks `+where+`
		ORDER BY due_date ASC NULLS LAST, created_at DESC
		LIMIT `+limit+` OFFSET `+offset,
		args...)
	if err != nil {
		return ListTasksResult{}, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items, err := collectTasks(rows)
	if err != nil {
		return ListTasksResult{}, fmt.Errorf("list tasks: %w", err)
	}

	totalPages := (total + params.PageSize - 1) / params.PageSize
	return ListTasksResult{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}, nil
}

// ListOverdueTasks returns open tasks whose due date has passed.
func (r *Repository) ListOverdueTasks(ctx context.Context, now time.Time) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+taskSelectCols+`
		FROM crm_tasks
		WHERE due_date < $1 AND status IN ($2, $3)
		ORDER BY due_date ASC
	`, now, domain.TaskStatusPending, domain.TaskStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListUpcomingTasks returns open tasks due within the window.
func (r *Repository) ListUpcomingTasks(ctx context.Context, from, to time.Time) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+taskSelectCols+`
		FROM crm_tasks
		WHERE due_date >= $1 AND due_date <= $2 AND status IN ($3, $4)
		ORDER BY due_date ASC
	`, from, to, domain.TaskStatusPending, domain.TaskStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("list upcoming tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}
