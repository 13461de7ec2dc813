// Package segments resolves which contacts belong to a segment and
// manages segment definitions and static membership.
package segments

import (
	"context"
	"sort"
	"sync"
	"time"

	"cityguide_crm_backend/internal/crm/domain"
	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/internal/events"
	"cityguide_crm_backend/internal/metrics"
	"cityguide_crm_backend/platform/apperr"
	"cityguide_crm_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Repository defines the data access the segment service needs.
// This is a consumer-driven interface - only what segments needs.
type Repository interface {
	repository.ContactReader
	repository.SegmentReader
	repository.SegmentWriter
}

// RefreshScheduler queues a segment re-evaluation off the request path.
type RefreshScheduler interface {
	ScheduleSegmentRefresh(ctx context.Context, segmentID uuid.UUID, runAt time.Time) error
}

// Service resolves segment membership and manages segment definitions.
type Service struct {
	repo     Repository
	cache    MembershipCache
	eventBus events.Bus
	refresh  RefreshScheduler
	log      *logger.Logger
	metrics  *metrics.Metrics

	scanBatchSize int
	scanWorkers   int
}

// Config tunes the dynamic evaluation scan.
type Config struct {
	ScanBatchSize int
	ScanWorkers   int
}

// New creates a new segment membership service. The cache may be nil;
// every evaluation then recomputes from the store.
func New(repo Repository, cache MembershipCache, eventBus events.Bus, log *logger.Logger, m *metrics.Metrics, cfg Config) *Service {
	if cfg.ScanBatchSize < 1 {
		cfg.ScanBatchSize = 500
	}
	if cfg.ScanWorkers < 1 {
		cfg.ScanWorkers = 4
	}
	return &Service{
		repo:          repo,
		cache:         cache,
		eventBus:      eventBus,
		log:           log,
		metrics:       m,
		scanBatchSize: cfg.ScanBatchSize,
		scanWorkers:   cfg.ScanWorkers,
	}
}

// SetRefreshScheduler wires the background queue used to warm the
// membership cache after rule changes. Without one, a changed segment
// is only re-evaluated on the next read.
func (s *Service) SetRefreshScheduler(refresh RefreshScheduler) {
	s.refresh = refresh
}

// RegisterInvalidation subscribes the cache to the contact mutation
// events. Any contact change can move contacts across dynamic segment
// boundaries, so the whole cache is dropped. The subscriptions are
// synchronous: the cache must be stale-free before the mutation
// returns, or the next evaluation could serve the old membership.
func (s *Service) RegisterInvalidation(bus events.Bus) {
	if s.cache == nil {
		return
	}
	invalidateAll := events.HandlerFunc(func(ctx context.Context, _ events.Event) error {
		s.cache.InvalidateAll(ctx)
		return nil
	})
	bus.SubscribeSync(events.ContactCreated{}.EventName(), invalidateAll)
	bus.SubscribeSync(events.ContactUpdated{}.EventName(), invalidateAll)
	bus.SubscribeSync(events.ScoreChanged{}.EventName(), invalidateAll)

	bus.SubscribeSync(events.SegmentRulesChanged{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		if e, ok := event.(events.SegmentRulesChanged); ok {
			s.cache.InvalidateSegment(ctx, e.SegmentID)
		}
		return nil
	}))
}

// CreateSegment validates and stores a segment definition. Dynamic
// segments must carry a valid rule payload.
func (s *Service) CreateSegment(ctx context.Context, req transport.CreateSegmentRequest, createdBy *uuid.UUID) (transport.SegmentResponse, error) {
	params := repository.CreateSegmentParams{
		Name:        req.Name,
		Description: req.Description,
		SegmentType: req.SegmentType,
		Color:       req.Color,
		Icon:        req.Icon,
		CreatedBy:   createdBy,
	}

	switch req.SegmentType {
	case domain.SegmentTypeDynamic:
		if req.Rules == nil {
			return transport.SegmentResponse{}, apperr.Validation("dynamic segments require rules")
		}
		rules := req.Rules.ToDomain()
		if err := domain.ValidateSegmentRules(rules); err != nil {
			return transport.SegmentResponse{}, err
		}
		params.Rules = rules
	case domain.SegmentTypeStatic:
		if req.Rules != nil && len(req.Rules.Conditions) > 0 {
			return transport.SegmentResponse{}, apperr.Validation("static segments do not carry rules")
		}
	default:
		return transport.SegmentResponse{}, apperr.Validation("unknown segment type")
	}

	seg, err := s.repo.CreateSegment(ctx, params)
	if err != nil {
		return transport.SegmentResponse{}, err
	}
	if seg.SegmentType == domain.SegmentTypeDynamic {
		s.scheduleRefresh(ctx, seg.ID)
	}
	return transport.ToSegmentResponse(seg), nil
}

// scheduleRefresh warms the membership cache for a segment whose rules
// just changed. Best effort: a queue failure never fails the mutation.
func (s *Service) scheduleRefresh(ctx context.Context, segmentID uuid.UUID) {
	if s.refresh == nil {
		return
	}
	if err := s.refresh.ScheduleSegmentRefresh(ctx, segmentID, time.Now()); err != nil && s.log != nil {
		s.log.Warn("failed to schedule segment refresh", "segment_id", segmentID, "error", err)
	}
}

// GetSegment returns one segment definition.
func (s *Service) GetSegment(ctx context.Context, id uuid.UUID) (transport.SegmentResponse, error) {
	seg, err := s.repo.GetSegmentByID(ctx, id)
	if err != nil {
		return transport.SegmentResponse{}, err
	}
	return transport.ToSegmentResponse(seg), nil
}

// ListSegments returns all segment definitions.
func (s *Service) ListSegments(ctx context.Context) ([]transport.SegmentResponse, error) {
	segs, err := s.repo.ListSegments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]transport.SegmentResponse, 0, len(segs))
	for _, seg := range segs {
		out = append(out, transport.ToSegmentResponse(seg))
	}
	return out, nil
}

// UpdateSegment applies a partial update. Rule changes on dynamic
// segments are validated and invalidate any cached membership.
func (s *Service) UpdateSegment(ctx context.Context, id uuid.UUID, req transport.UpdateSegmentRequest) (transport.SegmentResponse, error) {
	existing, err := s.repo.GetSegmentByID(ctx, id)
	if err != nil {
		return transport.SegmentResponse{}, err
	}

	params := repository.UpdateSegmentParams{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Icon:        req.Icon,
	}

	rulesChanged := false
	if req.Rules != nil {
		if existing.SegmentType != domain.SegmentTypeDynamic {
			return transport.SegmentResponse{}, apperr.Validation("static segments do not carry rules")
		}
		rules := req.Rules.ToDomain()
		if err := domain.ValidateSegmentRules(rules); err != nil {
			return transport.SegmentResponse{}, err
		}
		params.Rules = &rules
		rulesChanged = true
	}

	seg, err := s.repo.UpdateSegment(ctx, params)
	if err != nil {
		return transport.SegmentResponse{}, err
	}

	if rulesChanged {
		s.eventBus.Publish(ctx, events.SegmentRulesChanged{
			BaseEvent: events.NewBaseEvent(),
			SegmentID: seg.ID,
		})
		s.scheduleRefresh(ctx, seg.ID)
	}
	return transport.ToSegmentResponse(seg), nil
}

// DeleteSegment removes a segment definition and its membership rows.
func (s *Service) DeleteSegment(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteSegment(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateSegment(ctx, id)
	}
	return nil
}

// EvaluateSegment resolves the current members of a segment. Static
// segments return their explicit membership set. Dynamic segments are
// recomputed against current contact state: raising a contact's score
// past a rule threshold changes the result of the very next call.
func (s *Service) EvaluateSegment(ctx context.Context, segmentID uuid.UUID) ([]repository.Contact, error) {
	seg, err := s.repo.GetSegmentByID(ctx, segmentID)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SegmentEvaluations.WithLabelValues(seg.SegmentType).Inc()
	}

	if seg.SegmentType == domain.SegmentTypeStatic {
		return s.repo.ListStaticMembers(ctx, segmentID)
	}

	if s.cache != nil {
		if ids, ok := s.cache.GetMembers(ctx, segmentID); ok {
			return s.repo.ListContactsByIDs(ctx, ids)
		}
	}

	members, err := s.scanDynamicMembers(ctx, seg.Rules)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		ids := make([]uuid.UUID, 0, len(members))
		for _, c := range members {
			ids = append(ids, c.ID)
		}
		s.cache.StoreMembers(ctx, segmentID, ids)
	}
	return members, nil
}

// scanDynamicMembers walks the contact table in keyset batches and
// evaluates the rules against each contact. The producer stops on
// context cancellation; a rule validation error from any worker aborts
// the whole scan.
func (s *Service) scanDynamicMembers(ctx context.Context, rules domain.SegmentRules) ([]repository.Contact, error) {
	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan []repository.Contact, s.scanWorkers)

	g.Go(func() error {
		defer close(batches)
		cursor := uuid.Nil
		for {
			batch, err := s.repo.ListContactsAfter(ctx, cursor, s.scanBatchSize)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				return nil
			}
			cursor = batch[len(batch)-1].ID
			select {
			case batches <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
			if len(batch) < s.scanBatchSize {
				return nil
			}
		}
	})

	var mu sync.Mutex
	matched := make([]repository.Contact, 0)
	for i := 0; i < s.scanWorkers; i++ {
		g.Go(func() error {
			for batch := range batches {
				for _, contact := range batch {
					ok, err := domain.EvaluateRules(rules, contact.Attributes())
					if err != nil {
						return err
					}
					if ok {
						mu.Lock()
						matched = append(matched, contact)
						mu.Unlock()
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

// AddContact joins a contact to a static segment. Mutating a dynamic
// segment's membership directly is a validation error: derived
// membership only moves through contact attribute changes.
func (s *Service) AddContact(ctx context.Context, segmentID, contactID uuid.UUID, performedBy *uuid.UUID) error {
	seg, err := s.repo.GetSegmentByID(ctx, segmentID)
	if err != nil {
		return err
	}
	if seg.SegmentType != domain.SegmentTypeStatic {
		return apperr.Validation("cannot modify membership of a dynamic segment")
	}

	if _, err := s.repo.GetContactByID(ctx, contactID); err != nil {
		return err
	}

	if _, err := s.repo.AddContactToSegment(ctx, repository.SegmentMembershipParams{
		SegmentID:   segmentID,
		ContactID:   contactID,
		PerformedBy: performedBy,
		SegmentName: seg.Name,
	}); err != nil {
		return err
	}

	s.eventBus.Publish(ctx, events.SegmentMembershipChanged{
		BaseEvent: events.NewBaseEvent(),
		SegmentID: segmentID,
		ContactID: contactID,
		Added:     true,
	})
	return nil
}

// RemoveContact removes a contact from a static segment.
func (s *Service) RemoveContact(ctx context.Context, segmentID, contactID uuid.UUID, performedBy *uuid.UUID) error {
	seg, err := s.repo.GetSegmentByID(ctx, segmentID)
	if err != nil {
		return err
	}
	if seg.SegmentType != domain.SegmentTypeStatic {
		return apperr.Validation("cannot modify membership of a dynamic segment")
	}

	if _, err := s.repo.RemoveContactFromSegment(ctx, repository.SegmentMembershipParams{
		SegmentID:   segmentID,
		ContactID:   contactID,
		PerformedBy: performedBy,
		SegmentName: seg.Name,
	}); err != nil {
		return err
	}

	s.eventBus.Publish(ctx, events.SegmentMembershipChanged{
		BaseEvent: events.NewBaseEvent(),
		SegmentID: segmentID,
		ContactID: contactID,
		Added:     false,
	})
	return nil
}

// BulkAddResult reports per-contact outcomes of a bulk add.
type BulkAddResult struct {
	Added   int
	Skipped int
}

// BulkAddContacts joins many contacts to a static segment. Contacts that
// are already members are skipped rather than failing the batch.
func (s *Service) BulkAddContacts(ctx context.Context, segmentID uuid.UUID, contactIDs []uuid.UUID, performedBy *uuid.UUID) (BulkAddResult, error) {
	seg, err := s.repo.GetSegmentByID(ctx, segmentID)
	if err != nil {
		return BulkAddResult{}, err
	}
	if seg.SegmentType != domain.SegmentTypeStatic {
		return BulkAddResult{}, apperr.Validation("cannot modify membership of a dynamic segment")
	}

	var result BulkAddResult
	for _, contactID := range contactIDs {
		_, err := s.repo.AddContactToSegment(ctx, repository.SegmentMembershipParams{
			SegmentID:   segmentID,
			ContactID:   contactID,
			PerformedBy: performedBy,
			SegmentName: seg.Name,
		})
		if err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				result.Skipped++
				continue
			}
			return result, err
		}
		result.Added++
		s.eventBus.Publish(ctx, events.SegmentMembershipChanged{
			BaseEvent: events.NewBaseEvent(),
			SegmentID: segmentID,
			ContactID: contactID,
			Added:     true,
		})
	}
	return result, nil
}
