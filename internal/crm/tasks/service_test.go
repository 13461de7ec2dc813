package tasks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cityguide_crm_backend/internal/crm/domain"
	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/platform/apperr"

	"github.com/google/uuid"
)

type fakeRepo struct {
	contacts map[uuid.UUID]repository.Contact
	deals    map[uuid.UUID]repository.Deal
	tasks    map[uuid.UUID]repository.Task
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		contacts: map[uuid.UUID]repository.Contact{},
		deals:    map[uuid.UUID]repository.Deal{},
		tasks:    map[uuid.UUID]repository.Task{},
	}
}

func (f *fakeRepo) GetContactByID(_ context.Context, id uuid.UUID) (repository.Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return repository.Contact{}, apperr.NotFound("contact not found")
	}
	return c, nil
}

func (f *fakeRepo) GetDealByID(_ context.Context, id uuid.UUID) (repository.Deal, error) {
	d, ok := f.deals[id]
	if !ok {
		return repository.Deal{}, apperr.NotFound("deal not found")
	}
	return d, nil
}

func (f *fakeRepo) GetTaskByID(_ context.Context, id uuid.UUID) (repository.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return repository.Task{}, apperr.NotFound("task not found")
	}
	return t, nil
}

func (f *fakeRepo) ListTasks(_ context.Context, params repository.ListTasksParams) (repository.ListTasksResult, error) {
	items := make([]repository.Task, 0)
	for _, t := range f.tasks {
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.Priority != nil && t.Priority != *params.Priority {
			continue
		}
		items = append(items, t)
	}
	return repository.ListTasksResult{Items: items, Total: len(items), Page: 1, PageSize: 50, TotalPages: 1}, nil
}

func (f *fakeRepo) ListOverdueTasks(_ context.Context, now time.Time) ([]repository.Task, error) {
	out := make([]repository.Task, 0)
	for _, t := range f.tasks {
		if domain.IsTaskOverdue(t.DueDate, t.Status, now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListUpcomingTasks(_ context.Context, from, to time.Time) ([]repository.Task, error) {
	out := make([]repository.Task, 0)
	for _, t := range f.tasks {
		if !domain.IsOpenTaskStatus(t.Status) || t.DueDate == nil {
			continue
		}
		if t.DueDate.After(from) && t.DueDate.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateTask(_ context.Context, params repository.CreateTaskParams) (repository.Task, error) {
	t := repository.Task{
		ID:          uuid.New(),
		ContactID:   params.ContactID,
		DealID:      params.DealID,
		Title:       params.Title,
		Description: params.Description,
		DueDate:     params.DueDate,
		Priority:    params.Priority,
		Status:      domain.TaskStatusPending,
		AssignedTo:  params.AssignedTo,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   time.Now(),
	}
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeRepo) UpdateTask(_ context.Context, params repository.UpdateTaskParams) (repository.Task, error) {
	t, ok := f.tasks[params.ID]
	if !ok || !domain.IsOpenTaskStatus(t.Status) {
		return repository.Task{}, apperr.NotFound("task not found")
	}
	if params.Title != nil {
		t.Title = *params.Title
	}
	if params.Status != nil {
		t.Status = *params.Status
	}
	if params.DueDate != nil {
		t.DueDate = params.DueDate
	}
	f.tasks[params.ID] = t
	return t, nil
}

func (f *fakeRepo) CompleteTask(_ context.Context, id uuid.UUID, completedBy *uuid.UUID) (repository.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return repository.Task{}, apperr.NotFound("task not found")
	}
	if !domain.IsOpenTaskStatus(t.Status) {
		return repository.Task{}, apperr.Conflict(fmt.Sprintf("task is %s and cannot be completed", t.Status))
	}
	now := time.Now()
	t.Status = domain.TaskStatusCompleted
	t.CompletedAt = &now
	t.CompletedBy = completedBy
	f.tasks[id] = t
	return t, nil
}

func (f *fakeRepo) CancelTask(_ context.Context, id uuid.UUID) (repository.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return repository.Task{}, apperr.NotFound("task not found")
	}
	if !domain.IsOpenTaskStatus(t.Status) {
		return repository.Task{}, apperr.Conflict("task is not open")
	}
	t.Status = domain.TaskStatusCancelled
	f.tasks[id] = t
	return t, nil
}

func TestCreateTask_DefaultsPriorityToMedium(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, nil, nil)

	resp, err := svc.CreateTask(context.Background(), transport.CreateTaskRequest{Title: "Call back"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Priority != domain.TaskPriorityMedium {
		t.Fatalf("expected medium priority, got %s", resp.Priority)
	}
	if resp.Status != domain.TaskStatusPending {
		t.Fatalf("new task must be pending, got %s", resp.Status)
	}
}

func TestCreateTask_ValidatesReferences(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, nil, nil)

	missing := uuid.NewString()
	_, err := svc.CreateTask(context.Background(), transport.CreateTaskRequest{
		Title:     "Call back",
		ContactID: &missing,
	}, nil)
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("expected not found for missing contact, got %v", err)
	}

	_, err = svc.CreateTask(context.Background(), transport.CreateTaskRequest{
		Title:  "Prep proposal",
		DealID: &missing,
	}, nil)
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("expected not found for missing deal, got %v", err)
	}
}

func TestCompleteTask_IsOneWay(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, nil, nil)

	created, err := svc.CreateTask(context.Background(), transport.CreateTaskRequest{Title: "Send quote"}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	taskID := uuid.MustParse(created.ID)

	userID := uuid.New()
	completed, err := svc.CompleteTask(context.Background(), taskID, &userID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.TaskStatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("expected completed task with timestamp, got %+v", completed)
	}
	if completed.CompletedBy == nil || *completed.CompletedBy != userID.String() {
		t.Fatal("completion must stamp who finished the task")
	}

	if _, err := svc.CompleteTask(context.Background(), taskID, &userID); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("expected conflict on double completion, got %v", err)
	}
	if _, err := svc.CancelTask(context.Background(), taskID); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("expected conflict cancelling a completed task, got %v", err)
	}
}

func TestUpdateTask_RejectsTerminalStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, nil, nil)

	created, _ := svc.CreateTask(context.Background(), transport.CreateTaskRequest{Title: "Send quote"}, nil)
	taskID := uuid.MustParse(created.ID)

	completedStatus := domain.TaskStatusCompleted
	_, err := svc.UpdateTask(context.Background(), taskID, transport.UpdateTaskRequest{Status: &completedStatus})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("completion must not go through update, got %v", err)
	}

	inProgress := domain.TaskStatusInProgress
	resp, err := svc.UpdateTask(context.Background(), taskID, transport.UpdateTaskRequest{Status: &inProgress})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if resp.Status != domain.TaskStatusInProgress {
		t.Fatalf("expected in_progress, got %s", resp.Status)
	}
}

func TestListOverdue_DerivedFromDueDate(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, nil, nil)

	past := time.Now().Add(-48 * time.Hour)
	future := time.Now().Add(48 * time.Hour)

	late, _ := svc.CreateTask(context.Background(), transport.CreateTaskRequest{Title: "Late", DueDate: &past}, nil)
	svc.CreateTask(context.Background(), transport.CreateTaskRequest{Title: "On time", DueDate: &future}, nil)
	svc.CreateTask(context.Background(), transport.CreateTaskRequest{Title: "No due date"}, nil)

	doneLate, _ := svc.CreateTask(context.Background(), transport.CreateTaskRequest{Title: "Done late", DueDate: &past}, nil)
	svc.CompleteTask(context.Background(), uuid.MustParse(doneLate.ID), nil)

	overdue, err := svc.ListOverdue(context.Background())
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID != late.ID {
		t.Fatalf("only the open late task is overdue, got %d", len(overdue))
	}
	if !overdue[0].IsOverdue {
		t.Fatal("overdue flag must be set")
	}

	count, err := svc.SweepOverdue(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("sweep should count 1 overdue task, got %d", count)
	}
}

func TestListUpcoming_WindowBoundsResults(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, nil, nil)

	soon := time.Now().Add(24 * time.Hour)
	far := time.Now().Add(30 * 24 * time.Hour)
	svc.CreateTask(context.Background(), transport.CreateTaskRequest{Title: "Soon", DueDate: &soon}, nil)
	svc.CreateTask(context.Background(), transport.CreateTaskRequest{Title: "Far", DueDate: &far}, nil)

	upcoming, err := svc.ListUpcoming(context.Background(), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("list upcoming: %v", err)
	}
	if len(upcoming) != 1 || upcoming[0].Title != "Soon" {
		t.Fatalf("expected only the task inside the window, got %d", len(upcoming))
	}
}
