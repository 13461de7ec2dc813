// Package pipeline tracks deals through the ordered sales stages and
// their terminal won/lost transitions.
package pipeline

import (
	"context"

	"cityguide_crm_backend/internal/crm/domain"
	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/internal/events"
	"cityguide_crm_backend/internal/metrics"
	"cityguide_crm_backend/platform/apperr"
	"cityguide_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Repository defines the data access the pipeline service needs.
// This is a consumer-driven interface - only what pipeline needs.
type Repository interface {
	repository.ContactReader
	repository.StageReader
	repository.DealReader
	repository.DealWriter
}

// Service manages deals and their movement through the pipeline.
type Service struct {
	repo     Repository
	eventBus events.Bus
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// New creates a new deal pipeline service.
func New(repo Repository, eventBus events.Bus, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, eventBus: eventBus, log: log, metrics: m}
}

// ListStages returns the pipeline stages in canonical order.
func (s *Service) ListStages(ctx context.Context) ([]transport.PipelineStageResponse, error) {
	stages, err := s.repo.ListStages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]transport.PipelineStageResponse, 0, len(stages))
	for _, stage := range stages {
		out = append(out, transport.ToStageResponse(stage))
	}
	return out, nil
}

// CreateDeal opens a deal against a contact. Without an explicit stage
// the deal starts in the default stage; the probability is seeded from
// the stage's win probability.
func (s *Service) CreateDeal(ctx context.Context, req transport.CreateDealRequest, performedBy *uuid.UUID) (transport.DealResponse, error) {
	contactID, err := uuid.Parse(req.ContactID)
	if err != nil {
		return transport.DealResponse{}, apperr.Validation("invalid contact id")
	}
	if _, err := s.repo.GetContactByID(ctx, contactID); err != nil {
		return transport.DealResponse{}, err
	}

	var stage repository.PipelineStage
	if req.StageID != nil {
		stageID, err := uuid.Parse(*req.StageID)
		if err != nil {
			return transport.DealResponse{}, apperr.Validation("invalid stage id")
		}
		stage, err = s.repo.GetStageByID(ctx, stageID)
		if err != nil {
			return transport.DealResponse{}, err
		}
	} else {
		stage, err = s.repo.GetDefaultStage(ctx)
		if err != nil {
			return transport.DealResponse{}, err
		}
	}

	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}
	assignedTo, ok := transport.ParseUUIDPtr(req.AssignedTo)
	if !ok {
		return transport.DealResponse{}, apperr.Validation("invalid assignee id")
	}

	deal, err := s.repo.CreateDeal(ctx, repository.CreateDealParams{
		ContactID:         contactID,
		Title:             req.Title,
		Description:       req.Description,
		Value:             req.Value,
		Currency:          currency,
		StageID:           stage.ID,
		Probability:       stage.WinProbability,
		ExpectedCloseDate: req.ExpectedCloseDate,
		AssignedTo:        assignedTo,
		PerformedBy:       performedBy,
	})
	if err != nil {
		return transport.DealResponse{}, err
	}
	return transport.ToDealResponse(deal), nil
}

// GetDeal returns one deal.
func (s *Service) GetDeal(ctx context.Context, id uuid.UUID) (transport.DealResponse, error) {
	deal, err := s.repo.GetDealByID(ctx, id)
	if err != nil {
		return transport.DealResponse{}, err
	}
	return transport.ToDealResponse(deal), nil
}

// UpdateDeal applies a partial update to deal metadata. Stage and status
// only move through MoveDeal and CloseDeal.
func (s *Service) UpdateDeal(ctx context.Context, id uuid.UUID, req transport.UpdateDealRequest) (transport.DealResponse, error) {
	assignedTo, ok := transport.ParseUUIDPtr(req.AssignedTo)
	if !ok {
		return transport.DealResponse{}, apperr.Validation("invalid assignee id")
	}
	deal, err := s.repo.UpdateDeal(ctx, repository.UpdateDealParams{
		ID:                id,
		Title:             req.Title,
		Description:       req.Description,
		Value:             req.Value,
		Probability:       req.Probability,
		ExpectedCloseDate: req.ExpectedCloseDate,
		AssignedTo:        assignedTo,
	})
	if err != nil {
		return transport.DealResponse{}, err
	}
	return transport.ToDealResponse(deal), nil
}

// ListDeals returns a filtered page of deals.
func (s *Service) ListDeals(ctx context.Context, params repository.ListDealsParams) (transport.PagedDealsResponse, error) {
	result, err := s.repo.ListDeals(ctx, params)
	if err != nil {
		return transport.PagedDealsResponse{}, err
	}
	items := make([]transport.DealResponse, 0, len(result.Items))
	for _, deal := range result.Items {
		items = append(items, transport.ToDealResponse(deal))
	}
	return transport.PagedDealsResponse{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}, nil
}

// MoveDeal moves an open deal to another stage and records the
// transition. Moving a closed deal fails with a conflict.
func (s *Service) MoveDeal(ctx context.Context, dealID uuid.UUID, req transport.MoveDealRequest, performedBy *uuid.UUID) (transport.StageHistoryResponse, error) {
	stageID, err := uuid.Parse(req.StageID)
	if err != nil {
		return transport.StageHistoryResponse{}, apperr.Validation("invalid stage id")
	}
	target, err := s.repo.GetStageByID(ctx, stageID)
	if err != nil {
		// The caller named a stage that does not exist; that is a bad
		// request, not a missing resource.
		if apperr.Is(err, apperr.KindNotFound) {
			return transport.StageHistoryResponse{}, apperr.Validation("unknown target stage")
		}
		return transport.StageHistoryResponse{}, err
	}

	deal, err := s.repo.GetDealByID(ctx, dealID)
	if err != nil {
		return transport.StageHistoryResponse{}, err
	}
	fromStage, err := s.repo.GetStageByID(ctx, deal.StageID)
	if err != nil {
		return transport.StageHistoryResponse{}, err
	}

	entry, err := s.repo.MoveDealStage(ctx, repository.MoveDealStageParams{
		DealID:          dealID,
		TargetStageID:   target.ID,
		TargetStageName: target.Name,
		WinProbability:  target.WinProbability,
		PerformedBy:     performedBy,
	})
	if err != nil {
		return transport.StageHistoryResponse{}, err
	}

	if s.metrics != nil {
		direction := "forward"
		if target.StageOrder < fromStage.StageOrder {
			direction = "backward"
		}
		s.metrics.DealTransitions.WithLabelValues(direction).Inc()
	}
	s.eventBus.Publish(ctx, events.DealStageChanged{
		BaseEvent:   events.NewBaseEvent(),
		DealID:      dealID,
		ContactID:   deal.ContactID,
		FromStageID: entry.FromStageID,
		ToStageID:   entry.ToStageID,
	})
	return transport.ToStageHistoryResponse(entry), nil
}

// CloseDeal transitions an open deal to won or lost. The transition is
// terminal; closing an already closed deal fails with a conflict.
func (s *Service) CloseDeal(ctx context.Context, dealID uuid.UUID, req transport.CloseDealRequest, performedBy *uuid.UUID) (transport.DealResponse, error) {
	if !domain.IsClosedDealStatus(req.Status) {
		return transport.DealResponse{}, apperr.Validation("close status must be won or lost")
	}

	deal, err := s.repo.CloseDeal(ctx, repository.CloseDealParams{
		DealID:      dealID,
		Status:      req.Status,
		CloseReason: req.Reason,
		PerformedBy: performedBy,
	})
	if err != nil {
		return transport.DealResponse{}, err
	}

	if s.metrics != nil {
		s.metrics.DealClosures.WithLabelValues(deal.Status).Inc()
	}
	s.eventBus.Publish(ctx, events.DealClosed{
		BaseEvent: events.NewBaseEvent(),
		DealID:    deal.ID,
		ContactID: deal.ContactID,
		Status:    deal.Status,
		Value:     deal.Value,
	})
	return transport.ToDealResponse(deal), nil
}

// GetStageHistory returns a deal's stage moves, newest first.
func (s *Service) GetStageHistory(ctx context.Context, dealID uuid.UUID) ([]transport.StageHistoryResponse, error) {
	if _, err := s.repo.GetDealByID(ctx, dealID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListDealStageHistory(ctx, dealID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.StageHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, transport.ToStageHistoryResponse(entry))
	}
	return out, nil
}

// Board groups the open deals per stage for the kanban view.
func (s *Service) Board(ctx context.Context) ([]transport.BoardColumnResponse, error) {
	stages, err := s.repo.ListStages(ctx)
	if err != nil {
		return nil, err
	}

	open := domain.DealStatusOpen
	columns := make([]transport.BoardColumnResponse, 0, len(stages))
	for _, stage := range stages {
		stageID := stage.ID
		result, err := s.repo.ListDeals(ctx, repository.ListDealsParams{
			StageID:  &stageID,
			Status:   &open,
			PageSize: 200,
		})
		if err != nil {
			return nil, err
		}
		column := transport.BoardColumnResponse{
			Stage: transport.ToStageResponse(stage),
			Deals: make([]transport.DealResponse, 0, len(result.Items)),
		}
		for _, deal := range result.Items {
			column.Deals = append(column.Deals, transport.ToDealResponse(deal))
			column.Value += deal.Value
		}
		columns = append(columns, column)
	}
	return columns, nil
}

// Stats aggregates pipeline counts, values and the win rate.
func (s *Service) Stats(ctx context.Context) (transport.DealStatsResponse, error) {
	stats, err := s.repo.GetDealStats(ctx)
	if err != nil {
		return transport.DealStatsResponse{}, err
	}
	resp := transport.DealStatsResponse{
		OpenCount:  stats.OpenCount,
		WonCount:   stats.WonCount,
		LostCount:  stats.LostCount,
		OpenValue:  stats.OpenValue,
		WonValue:   stats.WonValue,
		LostValue:  stats.LostValue,
		AvgOpenAge: stats.AvgOpenAge,
	}
	if closed := stats.WonCount + stats.LostCount; closed > 0 {
		resp.WinRate = float64(stats.WonCount) / float64(closed)
	}
	return resp, nil
}
