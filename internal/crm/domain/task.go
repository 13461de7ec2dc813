package domain

import "time"

const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

var knownTaskStatuses = map[string]struct{}{
	TaskStatusPending:    {},
	TaskStatusInProgress: {},
	TaskStatusCompleted:  {},
	TaskStatusCancelled:  {},
}

func IsKnownTaskStatus(status string) bool {
	_, ok := knownTaskStatuses[status]
	return ok
}

const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
	TaskPriorityUrgent = "urgent"
)

var knownTaskPriorities = map[string]struct{}{
	TaskPriorityLow:    {},
	TaskPriorityMedium: {},
	TaskPriorityHigh:   {},
	TaskPriorityUrgent: {},
}

func IsKnownTaskPriority(priority string) bool {
	_, ok := knownTaskPriorities[priority]
	return ok
}

// IsOpenTaskStatus reports whether a task can still be acted on.
// Completed and cancelled tasks are terminal.
func IsOpenTaskStatus(status string) bool {
	return status == TaskStatusPending || status == TaskStatusInProgress
}

// IsTaskOverdue reports whether a task has passed its due date while
// still open. Tasks without a due date are never overdue.
func IsTaskOverdue(dueDate *time.Time, status string, now time.Time) bool {
	if dueDate == nil {
		return false
	}
	if !IsOpenTaskStatus(status) {
		return false
	}
	return dueDate.Before(now)
}
