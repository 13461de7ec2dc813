// Package scoring maintains contact lead scores: manual adjustments,
// rule-driven changes from engagement events, and the audit history.
package scoring

import (
	"context"
	"time"

	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/internal/events"
	"cityguide_crm_backend/internal/metrics"
	"cityguide_crm_backend/platform/apperr"
	"cityguide_crm_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	triggerManual = "manual"
	triggerRule   = "rule"
)

// Repository defines the data access the scoring service needs.
// This is a consumer-driven interface - only what scoring needs.
type Repository interface {
	repository.ScoreRuleReader
	repository.ScoreRuleWriter
	repository.ScoreApplier

	TouchContactInteraction(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Service applies score changes and manages scoring rules.
type Service struct {
	repo     Repository
	eventBus events.Bus
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// New creates a new lead scoring service.
func New(repo Repository, eventBus events.Bus, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, eventBus: eventBus, log: log, metrics: m}
}

// ApplyScoreChange applies a manual (or rule-referencing) score delta to
// a contact. The result reports both the requested delta and the score
// the contact actually landed on after clamping.
func (s *Service) ApplyScoreChange(ctx context.Context, contactID uuid.UUID, req transport.ApplyScoreChangeRequest, performedBy *uuid.UUID) (transport.ScoreChangeResponse, error) {
	if req.Delta == 0 {
		return transport.ScoreChangeResponse{}, apperr.Validation("score delta must be non-zero")
	}

	params := repository.ApplyScoreChangeParams{
		ContactID:   contactID,
		Delta:       req.Delta,
		Reason:      req.Reason,
		EventKey:    req.EventKey,
		PerformedBy: performedBy,
	}

	trigger := triggerManual
	if req.RuleID != nil {
		ruleID, err := uuid.Parse(*req.RuleID)
		if err != nil {
			return transport.ScoreChangeResponse{}, apperr.Validation("invalid rule id")
		}
		rule, err := s.repo.GetScoreRuleByID(ctx, ruleID)
		if err != nil {
			return transport.ScoreChangeResponse{}, err
		}
		params.RuleID = &rule.ID
		params.MaxApplications = rule.MaxApplications
		trigger = triggerRule
	}

	result, err := s.repo.ApplyScoreChange(ctx, params)
	if err != nil {
		return transport.ScoreChangeResponse{}, err
	}
	s.afterScoreChange(ctx, contactID, params, result, trigger)

	return toScoreChangeResponse(contactID, req.Delta, params.RuleID, result), nil
}

// ApplyEngagementEvent matches an engagement event against every active
// rule for its event type and applies each one. Rules already at their
// application cap, and events already seen under the same key, leave the
// score untouched.
func (s *Service) ApplyEngagementEvent(ctx context.Context, req transport.EngagementEventRequest) ([]transport.ScoreChangeResponse, error) {
	contactID, err := uuid.Parse(req.ContactID)
	if err != nil {
		return nil, apperr.Validation("invalid contact id")
	}

	rules, err := s.repo.ListScoreRulesByEventType(ctx, req.EventType)
	if err != nil {
		return nil, err
	}

	responses := make([]transport.ScoreChangeResponse, 0, len(rules))
	for _, rule := range rules {
		ruleID := rule.ID
		eventKey := req.EventKey
		params := repository.ApplyScoreChangeParams{
			ContactID:       contactID,
			Delta:           rule.ScoreChange,
			Reason:          &rule.Name,
			RuleID:          &ruleID,
			EventKey:        &eventKey,
			MaxApplications: rule.MaxApplications,
		}
		result, err := s.repo.ApplyScoreChange(ctx, params)
		if err != nil {
			return nil, err
		}
		s.afterScoreChange(ctx, contactID, params, result, triggerRule)
		responses = append(responses, toScoreChangeResponse(contactID, rule.ScoreChange, &ruleID, result))
	}

	// Any engagement counts as an interaction, even when no rule fired.
	if err := s.repo.TouchContactInteraction(ctx, contactID, time.Now()); err != nil {
		return nil, err
	}
	return responses, nil
}

func (s *Service) afterScoreChange(ctx context.Context, contactID uuid.UUID, params repository.ApplyScoreChangeParams, result repository.ScoreChangeResult, trigger string) {
	if !result.Applied {
		return
	}
	if s.metrics != nil {
		s.metrics.ScoreChanges.WithLabelValues(trigger).Inc()
	}
	s.eventBus.Publish(ctx, events.ScoreChanged{
		BaseEvent:      events.NewBaseEvent(),
		ContactID:      contactID,
		PreviousScore:  result.Entry.PreviousScore,
		NewScore:       result.NewScore,
		RequestedDelta: params.Delta,
		RuleID:         params.RuleID,
	})
	s.eventBus.Publish(ctx, events.ContactUpdated{
		BaseEvent: events.NewBaseEvent(),
		ContactID: contactID,
	})
}

func toScoreChangeResponse(contactID uuid.UUID, delta int, ruleID *uuid.UUID, result repository.ScoreChangeResult) transport.ScoreChangeResponse {
	resp := transport.ScoreChangeResponse{
		ContactID:      contactID.String(),
		PreviousScore:  result.Entry.PreviousScore,
		RequestedDelta: delta,
		NewScore:       result.NewScore,
		Applied:        result.Applied,
	}
	if result.Entry.ID != uuid.Nil {
		resp.HistoryID = result.Entry.ID.String()
	}
	if !result.Applied {
		// A skipped change never moved the score.
		resp.PreviousScore = result.NewScore
	}
	if ruleID != nil {
		id := ruleID.String()
		resp.RuleID = &id
	}
	return resp
}

// GetHistory returns a contact's score change history, newest first.
func (s *Service) GetHistory(ctx context.Context, contactID uuid.UUID, limit int) ([]transport.ScoreHistoryResponse, error) {
	entries, err := s.repo.ListScoreHistory(ctx, contactID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]transport.ScoreHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, transport.ToScoreHistoryResponse(entry))
	}
	return out, nil
}

// CreateRule registers a scoring rule.
func (s *Service) CreateRule(ctx context.Context, req transport.CreateScoreRuleRequest) (transport.ScoreRuleResponse, error) {
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	rule, err := s.repo.CreateScoreRule(ctx, repository.CreateScoreRuleParams{
		Name:            req.Name,
		Description:     req.Description,
		EventType:       req.EventType,
		ScoreChange:     req.ScoreChange,
		MaxApplications: req.MaxApplications,
		IsActive:        isActive,
	})
	if err != nil {
		return transport.ScoreRuleResponse{}, err
	}
	return transport.ToScoreRuleResponse(rule), nil
}

// UpdateRule applies a partial update to a scoring rule.
func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, req transport.UpdateScoreRuleRequest) (transport.ScoreRuleResponse, error) {
	rule, err := s.repo.UpdateScoreRule(ctx, repository.UpdateScoreRuleParams{
		ID:              id,
		Name:            req.Name,
		Description:     req.Description,
		EventType:       req.EventType,
		ScoreChange:     req.ScoreChange,
		MaxApplications: req.MaxApplications,
		IsActive:        req.IsActive,
	})
	if err != nil {
		return transport.ScoreRuleResponse{}, err
	}
	return transport.ToScoreRuleResponse(rule), nil
}

// GetRule returns one scoring rule.
func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (transport.ScoreRuleResponse, error) {
	rule, err := s.repo.GetScoreRuleByID(ctx, id)
	if err != nil {
		return transport.ScoreRuleResponse{}, err
	}
	return transport.ToScoreRuleResponse(rule), nil
}

// ListRules returns scoring rules, optionally only the active ones.
func (s *Service) ListRules(ctx context.Context, onlyActive bool) ([]transport.ScoreRuleResponse, error) {
	rules, err := s.repo.ListScoreRules(ctx, onlyActive)
	if err != nil {
		return nil, err
	}
	out := make([]transport.ScoreRuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, transport.ToScoreRuleResponse(rule))
	}
	return out, nil
}
