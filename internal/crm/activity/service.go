// Package activity records and serves the contact interaction timeline.
// Most entries are appended by the other services inside their own
// transactions; this service covers manual entries and the feed.
package activity

import (
	"context"

	"cityguide_crm_backend/internal/crm/domain"
	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/internal/metrics"
	"cityguide_crm_backend/platform/apperr"
	"cityguide_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Repository defines the data access the activity service needs.
// This is a consumer-driven interface - only what activity needs.
type Repository interface {
	repository.ContactReader
	repository.ActivityAppender
	repository.ActivityReader
}

// Service records manual activity entries and serves the feed.
type Service struct {
	repo    Repository
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New creates a new activity log service.
func New(repo Repository, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, log: log, metrics: m}
}

// LogActivity appends a manual timeline entry for a contact.
func (s *Service) LogActivity(ctx context.Context, req transport.LogActivityRequest, performedBy *uuid.UUID) (transport.ActivityResponse, error) {
	if !domain.IsKnownActivityType(req.ActivityType) {
		return transport.ActivityResponse{}, apperr.Validation("unknown activity type")
	}

	contactID, err := uuid.Parse(req.ContactID)
	if err != nil {
		return transport.ActivityResponse{}, apperr.Validation("invalid contact id")
	}
	if _, err := s.repo.GetContactByID(ctx, contactID); err != nil {
		return transport.ActivityResponse{}, err
	}

	dealID, ok := transport.ParseUUIDPtr(req.DealID)
	if !ok {
		return transport.ActivityResponse{}, apperr.Validation("invalid deal id")
	}

	created, err := s.repo.CreateActivity(ctx, repository.CreateActivityParams{
		ContactID:    contactID,
		DealID:       dealID,
		ActivityType: req.ActivityType,
		Title:        req.Title,
		Description:  req.Description,
		Metadata:     req.Metadata,
		PerformedBy:  performedBy,
	})
	if err != nil {
		return transport.ActivityResponse{}, err
	}

	if s.metrics != nil {
		s.metrics.ActivitiesLogged.WithLabelValues(created.ActivityType).Inc()
	}
	return transport.ToActivityResponse(created), nil
}

// ListActivities returns a filtered page of the activity feed, newest
// first.
func (s *Service) ListActivities(ctx context.Context, params repository.ListActivitiesParams) (transport.PagedActivitiesResponse, error) {
	for _, activityType := range params.ActivityTypes {
		if !domain.IsKnownActivityType(activityType) {
			return transport.PagedActivitiesResponse{}, apperr.Validation("unknown activity type filter")
		}
	}

	result, err := s.repo.ListActivities(ctx, params)
	if err != nil {
		return transport.PagedActivitiesResponse{}, err
	}
	items := make([]transport.ActivityResponse, 0, len(result.Items))
	for _, a := range result.Items {
		items = append(items, transport.ToActivityResponse(a))
	}
	return transport.PagedActivitiesResponse{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}, nil
}
