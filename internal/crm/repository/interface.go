package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// ContactReader provides read-only access to contacts.
type ContactReader interface {
	GetContactByID(ctx context.Context, id uuid.UUID) (Contact, error)
	ListContacts(ctx context.Context, params ListContactsParams) (ListContactsResult, error)
	ListContactsAfter(ctx context.Context, afterID uuid.UUID, limit int) ([]Contact, error)
	ListContactsByIDs(ctx context.Context, ids []uuid.UUID) ([]Contact, error)
}

// ContactWriter provides write operations for contact profiles.
type ContactWriter interface {
	CreateContact(ctx context.Context, params CreateContactParams) (Contact, error)
	UpdateContact(ctx context.Context, params UpdateContactParams) (Contact, error)
	TouchContactInteraction(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteContact(ctx context.Context, id uuid.UUID) error
}

// SegmentReader provides read access to segment definitions and static
// membership.
type SegmentReader interface {
	GetSegmentByID(ctx context.Context, id uuid.UUID) (Segment, error)
	ListSegments(ctx context.Context) ([]Segment, error)
	ListStaticMembers(ctx context.Context, segmentID uuid.UUID) ([]Contact, error)
	ListSegmentIDsForContact(ctx context.Context, contactID uuid.UUID) ([]uuid.UUID, error)
}

// SegmentWriter provides segment definition management and static
// membership mutations.
type SegmentWriter interface {
	CreateSegment(ctx context.Context, params CreateSegmentParams) (Segment, error)
	UpdateSegment(ctx context.Context, params UpdateSegmentParams) (Segment, error)
	DeleteSegment(ctx context.Context, id uuid.UUID) error
	AddContactToSegment(ctx context.Context, params SegmentMembershipParams) (Activity, error)
	RemoveContactFromSegment(ctx context.Context, params SegmentMembershipParams) (Activity, error)
}

// ScoreRuleReader provides read access to scoring rules.
type ScoreRuleReader interface {
	GetScoreRuleByID(ctx context.Context, id uuid.UUID) (LeadScoreRule, error)
	ListScoreRules(ctx context.Context, onlyActive bool) ([]LeadScoreRule, error)
	ListScoreRulesByEventType(ctx context.Context, eventType string) ([]LeadScoreRule, error)
}

// ScoreRuleWriter provides scoring rule management.
type ScoreRuleWriter interface {
	CreateScoreRule(ctx context.Context, params CreateScoreRuleParams) (LeadScoreRule, error)
	UpdateScoreRule(ctx context.Context, params UpdateScoreRuleParams) (LeadScoreRule, error)
}

// ScoreApplier executes the composite score mutation.
type ScoreApplier interface {
	ApplyScoreChange(ctx context.Context, params ApplyScoreChangeParams) (ScoreChangeResult, error)
	ListScoreHistory(ctx context.Context, contactID uuid.UUID, limit int) ([]LeadScoreHistoryEntry, error)
}

// StageReader provides read access to pipeline stages.
type StageReader interface {
	ListStages(ctx context.Context) ([]PipelineStage, error)
	GetStageByID(ctx context.Context, id uuid.UUID) (PipelineStage, error)
	GetDefaultStage(ctx context.Context) (PipelineStage, error)
}

// DealReader provides read access to deals and their stage history.
type DealReader interface {
	GetDealByID(ctx context.Context, id uuid.UUID) (Deal, error)
	ListDeals(ctx context.Context, params ListDealsParams) (ListDealsResult, error)
	ListDealStageHistory(ctx context.Context, dealID uuid.UUID) ([]DealStageHistoryEntry, error)
	GetDealStats(ctx context.Context) (DealStats, error)
}

// DealWriter executes deal mutations including the composite stage and
// close transitions.
type DealWriter interface {
	CreateDeal(ctx context.Context, params CreateDealParams) (Deal, error)
	UpdateDeal(ctx context.Context, params UpdateDealParams) (Deal, error)
	MoveDealStage(ctx context.Context, params MoveDealStageParams) (DealStageHistoryEntry, error)
	CloseDeal(ctx context.Context, params CloseDealParams) (Deal, error)
}

// ActivityAppender records audit trail entries.
type ActivityAppender interface {
	CreateActivity(ctx context.Context, params CreateActivityParams) (Activity, error)
}

// ActivityReader provides the filtered audit feed.
type ActivityReader interface {
	ListActivities(ctx context.Context, params ListActivitiesParams) (ListActivitiesResult, error)
}

// TaskReader provides read access to tasks.
type TaskReader interface {
	GetTaskByID(ctx context.Context, id uuid.UUID) (Task, error)
	ListTasks(ctx context.Context, params ListTasksParams) (ListTasksResult, error)
	ListOverdueTasks(ctx context.Context, now time.Time) ([]Task, error)
	ListUpcomingTasks(ctx context.Context, from, to time.Time) ([]Task, error)
}

// TaskWriter provides task mutations.
type TaskWriter interface {
	CreateTask(ctx context.Context, params CreateTaskParams) (Task, error)
	UpdateTask(ctx context.Context, params UpdateTaskParams) (Task, error)
	CompleteTask(ctx context.Context, id uuid.UUID, completedBy *uuid.UUID) (Task, error)
	CancelTask(ctx context.Context, id uuid.UUID) (Task, error)
}

// Compile-time check that the repository satisfies every interface.
var (
	_ ContactReader    = (*Repository)(nil)
	_ ContactWriter    = (*Repository)(nil)
	_ SegmentReader    = (*Repository)(nil)
	_ SegmentWriter    = (*Repository)(nil)
	_ ScoreRuleReader  = (*Repository)(nil)
	_ ScoreRuleWriter  = (*Repository)(nil)
	_ ScoreApplier     = (*Repository)(nil)
	_ StageReader      = (*Repository)(nil)
	_ DealReader       = (*Repository)(nil)
	_ DealWriter       = (*Repository)(nil)
	_ ActivityAppender = (*Repository)(nil)
	_ ActivityReader   = (*Repository)(nil)
	_ TaskReader       = (*Repository)(nil)
	_ TaskWriter       = (*Repository)(nil)
)
