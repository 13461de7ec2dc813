package transport

import (
	"time"

	"cityguide_crm_backend/internal/crm/domain"
	"cityguide_crm_backend/internal/crm/repository"

	"github.com/google/uuid"
)

// Request DTOs

type CreateContactRequest struct {
	Email         *string  `json:"email,omitempty" validate:"omitempty,email"`
	FirstName     *string  `json:"firstName,omitempty" validate:"omitempty,min=1,max=100"`
	LastName      *string  `json:"lastName,omitempty" validate:"omitempty,min=1,max=100"`
	Phone         *string  `json:"phone,omitempty" validate:"omitempty,min=5,max=20"`
	Company       *string  `json:"company,omitempty" validate:"omitempty,max=200"`
	JobTitle      *string  `json:"jobTitle,omitempty" validate:"omitempty,max=100"`
	City          *string  `json:"city,omitempty" validate:"omitempty,max=100"`
	Country       string   `json:"country,omitempty" validate:"omitempty,max=100"`
	Status        string   `json:"status,omitempty" validate:"omitempty,oneof=lead prospect customer churned inactive"`
	Source        string   `json:"source,omitempty" validate:"omitempty,oneof=website referral social_media advertising event cold_outreach partnership organic other"`
	LifetimeValue float64  `json:"lifetimeValue,omitempty" validate:"omitempty,gte=0"`
	AssignedTo    *string  `json:"assignedTo,omitempty" validate:"omitempty,uuid"`
	Tags          []string `json:"tags,omitempty" validate:"omitempty,dive,min=1,max=50"`
	Notes         *string  `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

type UpdateContactRequest struct {
	Email         *string  `json:"email,omitempty" validate:"omitempty,email"`
	FirstName     *string  `json:"firstName,omitempty" validate:"omitempty,min=1,max=100"`
	LastName      *string  `json:"lastName,omitempty" validate:"omitempty,min=1,max=100"`
	Phone         *string  `json:"phone,omitempty" validate:"omitempty,min=5,max=20"`
	Company       *string  `json:"company,omitempty" validate:"omitempty,max=200"`
	JobTitle      *string  `json:"jobTitle,omitempty" validate:"omitempty,max=100"`
	City          *string  `json:"city,omitempty" validate:"omitempty,max=100"`
	Country       *string  `json:"country,omitempty" validate:"omitempty,max=100"`
	Status        *string  `json:"status,omitempty" validate:"omitempty,oneof=lead prospect customer churned inactive"`
	Source        *string  `json:"source,omitempty" validate:"omitempty,oneof=website referral social_media advertising event cold_outreach partnership organic other"`
	LifetimeValue *float64 `json:"lifetimeValue,omitempty" validate:"omitempty,gte=0"`
	AssignedTo    *string  `json:"assignedTo,omitempty" validate:"omitempty,uuid"`
	Tags          []string `json:"tags,omitempty" validate:"omitempty,dive,min=1,max=50"`
	Notes         *string  `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

type SegmentConditionRequest struct {
	Field    string `json:"field" validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Value    any    `json:"value"`
}

type SegmentRulesRequest struct {
	Operator   string                    `json:"operator,omitempty" validate:"omitempty,oneof=AND OR"`
	Conditions []SegmentConditionRequest `json:"conditions,omitempty" validate:"omitempty,dive"`
}

func (r SegmentRulesRequest) ToDomain() domain.SegmentRules {
	rules := domain.SegmentRules{Operator: r.Operator}
	for _, c := range r.Conditions {
		rules.Conditions = append(rules.Conditions, domain.Condition{
			Field:    c.Field,
			Operator: c.Operator,
			Value:    c.Value,
		})
	}
	return rules
}

type CreateSegmentRequest struct {
	Name        string               `json:"name" validate:"required,min=1,max=200"`
	Description *string              `json:"description,omitempty" validate:"omitempty,max=1000"`
	SegmentType string               `json:"segmentType" validate:"required,oneof=static dynamic"`
	Rules       *SegmentRulesRequest `json:"rules,omitempty"`
	Color       string               `json:"color,omitempty" validate:"omitempty,max=20"`
	Icon        string               `json:"icon,omitempty" validate:"omitempty,max=50"`
}

type UpdateSegmentRequest struct {
	Name        *string              `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string              `json:"description,omitempty" validate:"omitempty,max=1000"`
	Rules       *SegmentRulesRequest `json:"rules,omitempty"`
	Color       *string              `json:"color,omitempty" validate:"omitempty,max=20"`
	Icon        *string              `json:"icon,omitempty" validate:"omitempty,max=50"`
}

type AddSegmentMembersRequest struct {
	ContactIDs []string `json:"contactIds" validate:"required,min=1,max=500,dive,uuid"`
}

type ApplyScoreChangeRequest struct {
	Delta  int     `json:"delta" validate:"required"`
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
	RuleID *string `json:"ruleId,omitempty" validate:"omitempty,uuid"`
	// EventKey deduplicates rule-triggered changes across retries.
	EventKey *string `json:"eventKey,omitempty" validate:"omitempty,max=200"`
}

type CreateScoreRuleRequest struct {
	Name            string  `json:"name" validate:"required,min=1,max=200"`
	Description     *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	EventType       string  `json:"eventType" validate:"required,min=1,max=100"`
	ScoreChange     int     `json:"scoreChange" validate:"required"`
	MaxApplications *int    `json:"maxApplications,omitempty" validate:"omitempty,gt=0"`
	IsActive        *bool   `json:"isActive,omitempty"`
}

type UpdateScoreRuleRequest struct {
	Name            *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description     *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	EventType       *string `json:"eventType,omitempty" validate:"omitempty,min=1,max=100"`
	ScoreChange     *int    `json:"scoreChange,omitempty"`
	MaxApplications *int    `json:"maxApplications,omitempty" validate:"omitempty,gt=0"`
	IsActive        *bool   `json:"isActive,omitempty"`
}

type EngagementEventRequest struct {
	// ContactID is taken from the URL path, not the body.
	ContactID string `json:"-" validate:"required,uuid"`
	EventType string `json:"eventType" validate:"required,min=1,max=100"`
	// EventKey identifies the triggering event so webhook retries do
	// not double-apply matching rules.
	EventKey string `json:"eventKey" validate:"required,min=1,max=200"`
}

type CreateDealRequest struct {
	ContactID         string     `json:"contactId" validate:"required,uuid"`
	Title             string     `json:"title" validate:"required,min=1,max=200"`
	Description       *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	Value             float64    `json:"value" validate:"gte=0"`
	Currency          string     `json:"currency,omitempty" validate:"omitempty,len=3"`
	StageID           *string    `json:"stageId,omitempty" validate:"omitempty,uuid"`
	ExpectedCloseDate *time.Time `json:"expectedCloseDate,omitempty"`
	AssignedTo        *string    `json:"assignedTo,omitempty" validate:"omitempty,uuid"`
}

type UpdateDealRequest struct {
	Title             *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description       *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	Value             *float64   `json:"value,omitempty" validate:"omitempty,gte=0"`
	Probability       *int       `json:"probability,omitempty" validate:"omitempty,gte=0,lte=100"`
	ExpectedCloseDate *time.Time `json:"expectedCloseDate,omitempty"`
	AssignedTo        *string    `json:"assignedTo,omitempty" validate:"omitempty,uuid"`
}

type MoveDealRequest struct {
	StageID string `json:"stageId" validate:"required,uuid"`
}

type CloseDealRequest struct {
	Status string  `json:"status" validate:"required,oneof=won lost"`
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=1000"`
}

type LogActivityRequest struct {
	ContactID    string         `json:"contactId" validate:"required,uuid"`
	DealID       *string        `json:"dealId,omitempty" validate:"omitempty,uuid"`
	ActivityType string         `json:"activityType" validate:"required"`
	Title        string         `json:"title" validate:"required,min=1,max=300"`
	Description  *string        `json:"description,omitempty" validate:"omitempty,max=5000"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type CreateTaskRequest struct {
	ContactID   *string    `json:"contactId,omitempty" validate:"omitempty,uuid"`
	DealID      *string    `json:"dealId,omitempty" validate:"omitempty,uuid"`
	Title       string     `json:"title" validate:"required,min=1,max=300"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    string     `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	AssignedTo  *string    `json:"assignedTo,omitempty" validate:"omitempty,uuid"`
}

type UpdateTaskRequest struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,min=1,max=300"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    *string    `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	Status      *string    `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress"`
	AssignedTo  *string    `json:"assignedTo,omitempty" validate:"omitempty,uuid"`
}

// Response DTOs

type ContactResponse struct {
	ID                string     `json:"id"`
	Email             *string    `json:"email"`
	FirstName         *string    `json:"firstName"`
	LastName          *string    `json:"lastName"`
	Phone             *string    `json:"phone"`
	Company           *string    `json:"company"`
	JobTitle          *string    `json:"jobTitle"`
	City              *string    `json:"city"`
	Country           string     `json:"country"`
	Status            string     `json:"status"`
	Source            string     `json:"source"`
	LeadScore         int        `json:"leadScore"`
	LifetimeValue     float64    `json:"lifetimeValue"`
	AssignedTo        *string    `json:"assignedTo"`
	Tags              []string   `json:"tags"`
	Notes             *string    `json:"notes"`
	TotalInteractions int        `json:"totalInteractions"`
	LastInteractionAt *time.Time `json:"lastInteractionAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func ToContactResponse(c repository.Contact) ContactResponse {
	resp := ContactResponse{
		ID:                c.ID.String(),
		Email:             c.Email,
		FirstName:         c.FirstName,
		LastName:          c.LastName,
		Phone:             c.Phone,
		Company:           c.Company,
		JobTitle:          c.JobTitle,
		City:              c.City,
		Country:           c.Country,
		Status:            c.Status,
		Source:            c.Source,
		LeadScore:         c.LeadScore,
		LifetimeValue:     c.LifetimeValue,
		Tags:              c.Tags,
		Notes:             c.Notes,
		TotalInteractions: c.TotalInteractions,
		LastInteractionAt: c.LastInteractionAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
	if c.AssignedTo != nil {
		id := c.AssignedTo.String()
		resp.AssignedTo = &id
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	return resp
}

func ToContactResponses(contacts []repository.Contact) []ContactResponse {
	out := make([]ContactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, ToContactResponse(c))
	}
	return out
}

type PagedContactsResponse struct {
	Items      []ContactResponse `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalPages int               `json:"totalPages"`
}

type SegmentResponse struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Description  *string              `json:"description"`
	SegmentType  string               `json:"segmentType"`
	Rules        *SegmentRulesRequest `json:"rules,omitempty"`
	ContactCount int                  `json:"contactCount"`
	Color        string               `json:"color"`
	Icon         string               `json:"icon"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

func ToSegmentResponse(s repository.Segment) SegmentResponse {
	resp := SegmentResponse{
		ID:           s.ID.String(),
		Name:         s.Name,
		Description:  s.Description,
		SegmentType:  s.SegmentType,
		ContactCount: s.ContactCount,
		Color:        s.Color,
		Icon:         s.Icon,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.SegmentType == domain.SegmentTypeDynamic {
		rules := SegmentRulesRequest{Operator: s.Rules.Operator}
		for _, c := range s.Rules.Conditions {
			rules.Conditions = append(rules.Conditions, SegmentConditionRequest{
				Field:    c.Field,
				Operator: c.Operator,
				Value:    c.Value,
			})
		}
		resp.Rules = &rules
	}
	return resp
}

type ScoreChangeResponse struct {
	ContactID      string  `json:"contactId"`
	PreviousScore  int     `json:"previousScore"`
	RequestedDelta int     `json:"requestedDelta"`
	NewScore       int     `json:"newScore"`
	HistoryID      string  `json:"historyId"`
	Applied        bool    `json:"applied"`
	RuleID         *string `json:"ruleId,omitempty"`
}

type ScoreRuleResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     *string   `json:"description"`
	EventType       string    `json:"eventType"`
	ScoreChange     int       `json:"scoreChange"`
	MaxApplications *int      `json:"maxApplications"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func ToScoreRuleResponse(r repository.LeadScoreRule) ScoreRuleResponse {
	return ScoreRuleResponse{
		ID:              r.ID.String(),
		Name:            r.Name,
		Description:     r.Description,
		EventType:       r.EventType,
		ScoreChange:     r.ScoreChange,
		MaxApplications: r.MaxApplications,
		IsActive:        r.IsActive,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type ScoreHistoryResponse struct {
	ID            string    `json:"id"`
	ContactID     string    `json:"contactId"`
	RuleID        *string   `json:"ruleId"`
	PreviousScore int       `json:"previousScore"`
	ScoreChange   int       `json:"scoreChange"`
	NewScore      int       `json:"newScore"`
	Reason        *string   `json:"reason"`
	CreatedAt     time.Time `json:"createdAt"`
}

func ToScoreHistoryResponse(e repository.LeadScoreHistoryEntry) ScoreHistoryResponse {
	resp := ScoreHistoryResponse{
		ID:            e.ID.String(),
		ContactID:     e.ContactID.String(),
		PreviousScore: e.PreviousScore,
		ScoreChange:   e.ScoreChange,
		NewScore:      e.NewScore,
		Reason:        e.Reason,
		CreatedAt:     e.CreatedAt,
	}
	if e.RuleID != nil {
		id := e.RuleID.String()
		resp.RuleID = &id
	}
	return resp
}

type PipelineStageResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Description    *string `json:"description"`
	StageOrder     int     `json:"stageOrder"`
	Color          string  `json:"color"`
	IsDefault      bool    `json:"isDefault"`
	WinProbability int     `json:"winProbability"`
}

func ToStageResponse(s repository.PipelineStage) PipelineStageResponse {
	return PipelineStageResponse{
		ID:             s.ID.String(),
		Name:           s.Name,
		Description:    s.Description,
		StageOrder:     s.StageOrder,
		Color:          s.Color,
		IsDefault:      s.IsDefault,
		WinProbability: s.WinProbability,
	}
}

type DealResponse struct {
	ID                string     `json:"id"`
	ContactID         string     `json:"contactId"`
	Title             string     `json:"title"`
	Description       *string    `json:"description"`
	Value             float64    `json:"value"`
	Currency          string     `json:"currency"`
	StageID           string     `json:"stageId"`
	Status            string     `json:"status"`
	Probability       int        `json:"probability"`
	ExpectedCloseDate *time.Time `json:"expectedCloseDate"`
	ActualCloseDate   *time.Time `json:"actualCloseDate"`
	AssignedTo        *string    `json:"assignedTo"`
	CloseReason       *string    `json:"closeReason"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func ToDealResponse(d repository.Deal) DealResponse {
	resp := DealResponse{
		ID:                d.ID.String(),
		ContactID:         d.ContactID.String(),
		Title:             d.Title,
		Description:       d.Description,
		Value:             d.Value,
		Currency:          d.Currency,
		StageID:           d.StageID.String(),
		Status:            d.Status,
		Probability:       d.Probability,
		ExpectedCloseDate: d.ExpectedCloseDate,
		ActualCloseDate:   d.ActualCloseDate,
		CloseReason:       d.CloseReason,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.AssignedTo != nil {
		id := d.AssignedTo.String()
		resp.AssignedTo = &id
	}
	return resp
}

type PagedDealsResponse struct {
	Items      []DealResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

type StageHistoryResponse struct {
	ID          string    `json:"id"`
	DealID      string    `json:"dealId"`
	FromStageID *string   `json:"fromStageId"`
	ToStageID   string    `json:"toStageId"`
	ChangedBy   *string   `json:"changedBy"`
	ChangedAt   time.Time `json:"changedAt"`
}

func ToStageHistoryResponse(e repository.DealStageHistoryEntry) StageHistoryResponse {
	resp := StageHistoryResponse{
		ID:        e.ID.String(),
		DealID:    e.DealID.String(),
		ToStageID: e.ToStageID.String(),
		ChangedAt: e.ChangedAt,
	}
	if e.FromStageID != nil {
		id := e.FromStageID.String()
		resp.FromStageID = &id
	}
	if e.ChangedBy != nil {
		id := e.ChangedBy.String()
		resp.ChangedBy = &id
	}
	return resp
}

// BoardColumnResponse groups the open deals of one stage for the
// pipeline board view.
type BoardColumnResponse struct {
	Stage PipelineStageResponse `json:"stage"`
	Deals []DealResponse        `json:"deals"`
	Value float64               `json:"value"`
}

type DealStatsResponse struct {
	OpenCount  int     `json:"openCount"`
	WonCount   int     `json:"wonCount"`
	LostCount  int     `json:"lostCount"`
	OpenValue  float64 `json:"openValue"`
	WonValue   float64 `json:"wonValue"`
	LostValue  float64 `json:"lostValue"`
	AvgOpenAge float64 `json:"avgOpenAgeDays"`
	WinRate    float64 `json:"winRate"`
}

type ActivityResponse struct {
	ID                string         `json:"id"`
	ContactID         string         `json:"contactId"`
	DealID            *string        `json:"dealId"`
	ActivityType      string         `json:"activityType"`
	Title             string         `json:"title"`
	Description       *string        `json:"description"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	PerformedBy       *string        `json:"performedBy"`
	IsSystemGenerated bool           `json:"isSystemGenerated"`
	PerformedAt       time.Time      `json:"performedAt"`
}

func ToActivityResponse(a repository.Activity) ActivityResponse {
	resp := ActivityResponse{
		ID:                a.ID.String(),
		ContactID:         a.ContactID.String(),
		ActivityType:      a.ActivityType,
		Title:             a.Title,
		Description:       a.Description,
		Metadata:          a.Metadata,
		IsSystemGenerated: a.IsSystemGenerated,
		PerformedAt:       a.PerformedAt,
	}
	if a.DealID != nil {
		id := a.DealID.String()
		resp.DealID = &id
	}
	if a.PerformedBy != nil {
		id := a.PerformedBy.String()
		resp.PerformedBy = &id
	}
	return resp
}

type PagedActivitiesResponse struct {
	Items      []ActivityResponse `json:"items"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
	TotalPages int                `json:"totalPages"`
}

type TaskResponse struct {
	ID          string     `json:"id"`
	ContactID   *string    `json:"contactId"`
	DealID      *string    `json:"dealId"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	AssignedTo  *string    `json:"assignedTo"`
	CompletedAt *time.Time `json:"completedAt"`
	CompletedBy *string    `json:"completedBy"`
	IsOverdue   bool       `json:"isOverdue"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func ToTaskResponse(t repository.Task, now time.Time) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID.String(),
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Priority:    t.Priority,
		Status:      t.Status,
		CompletedAt: t.CompletedAt,
		IsOverdue:   domain.IsTaskOverdue(t.DueDate, t.Status, now),
		CreatedAt:   t.CreatedAt,
	}
	if t.ContactID != nil {
		id := t.ContactID.String()
		resp.ContactID = &id
	}
	if t.DealID != nil {
		id := t.DealID.String()
		resp.DealID = &id
	}
	if t.AssignedTo != nil {
		id := t.AssignedTo.String()
		resp.AssignedTo = &id
	}
	if t.CompletedBy != nil {
		id := t.CompletedBy.String()
		resp.CompletedBy = &id
	}
	return resp
}

func ToTaskResponses(tasks []repository.Task, now time.Time) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, ToTaskResponse(t, now))
	}
	return out
}

type PagedTasksResponse struct {
	Items      []TaskResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

// ParseUUIDPtr converts an optional string id to uuid, returning nil for
// nil input. Invalid ids surface as (nil, false).
func ParseUUIDPtr(s *string) (*uuid.UUID, bool) {
	if s == nil {
		return nil, true
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, false
	}
	return &id, true
}
