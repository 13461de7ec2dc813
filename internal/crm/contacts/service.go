// Package contacts manages contact profiles, the root entity the rest of
// the CRM hangs off.
package contacts

import (
	"context"

	"cityguide_crm_backend/internal/crm/domain"
	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/internal/events"
	"cityguide_crm_backend/platform/apperr"
	"cityguide_crm_backend/platform/logger"
	"cityguide_crm_backend/platform/phone"

	"github.com/google/uuid"
)

// Repository defines the data access the contact service needs.
// This is a consumer-driven interface - only what contacts needs.
type Repository interface {
	repository.ContactReader
	repository.ContactWriter

	ListSegmentIDsForContact(ctx context.Context, contactID uuid.UUID) ([]uuid.UUID, error)
}

// Service manages contact profiles.
type Service struct {
	repo     Repository
	eventBus events.Bus
	log      *logger.Logger
}

// New creates a new contact service.
func New(repo Repository, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, eventBus: eventBus, log: log}
}

// CreateContact registers a contact. Status defaults to lead, source to
// other; phone numbers normalize to E.164 where parseable.
func (s *Service) CreateContact(ctx context.Context, req transport.CreateContactRequest) (transport.ContactResponse, error) {
	status := req.Status
	if status == "" {
		status = domain.ContactStatusLead
	}
	if !domain.IsKnownContactStatus(status) {
		return transport.ContactResponse{}, apperr.Validation("unknown contact status")
	}
	source := req.Source
	if source == "" {
		source = domain.ContactSourceOther
	}
	if !domain.IsKnownContactSource(source) {
		return transport.ContactResponse{}, apperr.Validation("unknown contact source")
	}
	assignedTo, ok := transport.ParseUUIDPtr(req.AssignedTo)
	if !ok {
		return transport.ContactResponse{}, apperr.Validation("invalid assignee id")
	}

	contact, err := s.repo.CreateContact(ctx, repository.CreateContactParams{
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         normalizePhone(req.Phone),
		Company:       req.Company,
		JobTitle:      req.JobTitle,
		City:          req.City,
		Country:       req.Country,
		Status:        status,
		Source:        source,
		LifetimeValue: req.LifetimeValue,
		AssignedTo:    assignedTo,
		Tags:          req.Tags,
		Notes:         req.Notes,
	})
	if err != nil {
		return transport.ContactResponse{}, err
	}

	s.eventBus.Publish(ctx, events.ContactCreated{
		BaseEvent: events.NewBaseEvent(),
		ContactID: contact.ID,
		Status:    contact.Status,
		Source:    contact.Source,
	})
	return transport.ToContactResponse(contact), nil
}

// GetContact returns one contact profile.
func (s *Service) GetContact(ctx context.Context, id uuid.UUID) (transport.ContactResponse, error) {
	contact, err := s.repo.GetContactByID(ctx, id)
	if err != nil {
		return transport.ContactResponse{}, err
	}
	return transport.ToContactResponse(contact), nil
}

// UpdateContact applies a partial profile update. The lead score is
// untouchable here; it only moves through the scoring service.
func (s *Service) UpdateContact(ctx context.Context, id uuid.UUID, req transport.UpdateContactRequest) (transport.ContactResponse, error) {
	if req.Status != nil && !domain.IsKnownContactStatus(*req.Status) {
		return transport.ContactResponse{}, apperr.Validation("unknown contact status")
	}
	if req.Source != nil && !domain.IsKnownContactSource(*req.Source) {
		return transport.ContactResponse{}, apperr.Validation("unknown contact source")
	}
	assignedTo, ok := transport.ParseUUIDPtr(req.AssignedTo)
	if !ok {
		return transport.ContactResponse{}, apperr.Validation("invalid assignee id")
	}

	contact, err := s.repo.UpdateContact(ctx, repository.UpdateContactParams{
		ID:            id,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         normalizePhone(req.Phone),
		Company:       req.Company,
		JobTitle:      req.JobTitle,
		City:          req.City,
		Country:       req.Country,
		Status:        req.Status,
		Source:        req.Source,
		LifetimeValue: req.LifetimeValue,
		AssignedTo:    assignedTo,
		Tags:          req.Tags,
		Notes:         req.Notes,
	})
	if err != nil {
		return transport.ContactResponse{}, err
	}

	s.eventBus.Publish(ctx, events.ContactUpdated{
		BaseEvent: events.NewBaseEvent(),
		ContactID: contact.ID,
	})
	return transport.ToContactResponse(contact), nil
}

// ListContacts returns a filtered page of contacts.
func (s *Service) ListContacts(ctx context.Context, params repository.ListContactsParams) (transport.PagedContactsResponse, error) {
	result, err := s.repo.ListContacts(ctx, params)
	if err != nil {
		return transport.PagedContactsResponse{}, err
	}
	return transport.PagedContactsResponse{
		Items:      transport.ToContactResponses(result.Items),
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}, nil
}

// ListContactSegments returns the ids of the static segments a contact
// belongs to.
func (s *Service) ListContactSegments(ctx context.Context, contactID uuid.UUID) ([]uuid.UUID, error) {
	if _, err := s.repo.GetContactByID(ctx, contactID); err != nil {
		return nil, err
	}
	return s.repo.ListSegmentIDsForContact(ctx, contactID)
}

// DeleteContact removes a contact and, via cascades, everything hanging
// off it.
func (s *Service) DeleteContact(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteContact(ctx, id); err != nil {
		return err
	}
	s.eventBus.Publish(ctx, events.ContactUpdated{
		BaseEvent: events.NewBaseEvent(),
		ContactID: id,
	})
	return nil
}

func normalizePhone(p *string) *string {
	if p == nil {
		return nil
	}
	normalized := phone.NormalizeE164(*p)
	return &normalized
}
