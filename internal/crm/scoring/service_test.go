package scoring

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"cityguide_crm_backend/internal/crm/domain"
	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/internal/events"
	"cityguide_crm_backend/platform/apperr"

	"github.com/google/uuid"
)

type fakeRepo struct {
	mu      sync.Mutex
	scores  map[uuid.UUID]int
	rules   map[uuid.UUID]repository.LeadScoreRule
	history []repository.LeadScoreHistoryEntry
	touched int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		scores: map[uuid.UUID]int{},
		rules:  map[uuid.UUID]repository.LeadScoreRule{},
	}
}

func (f *fakeRepo) GetScoreRuleByID(_ context.Context, id uuid.UUID) (repository.LeadScoreRule, error) {
	rule, ok := f.rules[id]
	if !ok {
		return repository.LeadScoreRule{}, apperr.NotFound("score rule not found")
	}
	return rule, nil
}

func (f *fakeRepo) ListScoreRules(_ context.Context, onlyActive bool) ([]repository.LeadScoreRule, error) {
	out := make([]repository.LeadScoreRule, 0, len(f.rules))
	for _, rule := range f.rules {
		if onlyActive && !rule.IsActive {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

func (f *fakeRepo) ListScoreRulesByEventType(_ context.Context, eventType string) ([]repository.LeadScoreRule, error) {
	out := make([]repository.LeadScoreRule, 0)
	for _, rule := range f.rules {
		if rule.IsActive && rule.EventType == eventType {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateScoreRule(_ context.Context, params repository.CreateScoreRuleParams) (repository.LeadScoreRule, error) {
	rule := repository.LeadScoreRule{
		ID:              uuid.New(),
		Name:            params.Name,
		EventType:       params.EventType,
		ScoreChange:     params.ScoreChange,
		MaxApplications: params.MaxApplications,
		IsActive:        params.IsActive,
	}
	f.rules[rule.ID] = rule
	return rule, nil
}

func (f *fakeRepo) UpdateScoreRule(_ context.Context, params repository.UpdateScoreRuleParams) (repository.LeadScoreRule, error) {
	rule, ok := f.rules[params.ID]
	if !ok {
		return repository.LeadScoreRule{}, apperr.NotFound("score rule not found")
	}
	if params.IsActive != nil {
		rule.IsActive = *params.IsActive
	}
	f.rules[params.ID] = rule
	return rule, nil
}

// ApplyScoreChange mirrors the store semantics: event key dedup,
// application cap, clamping, history. The store serializes concurrent
// changes through a row lock; the mutex stands in for it here.
func (f *fakeRepo) ApplyScoreChange(_ context.Context, params repository.ApplyScoreChangeParams) (repository.ScoreChangeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	previous, ok := f.scores[params.ContactID]
	if !ok {
		return repository.ScoreChangeResult{}, apperr.NotFound("contact not found")
	}

	if params.RuleID != nil && params.EventKey != nil {
		for _, entry := range f.history {
			if entry.ContactID == params.ContactID && entry.RuleID != nil &&
				*entry.RuleID == *params.RuleID && entry.EventKey != nil && *entry.EventKey == *params.EventKey {
				return repository.ScoreChangeResult{Entry: entry, NewScore: previous, Applied: false}, nil
			}
		}
	}

	if params.RuleID != nil && params.MaxApplications != nil {
		applications := 0
		for _, entry := range f.history {
			if entry.ContactID == params.ContactID && entry.RuleID != nil && *entry.RuleID == *params.RuleID {
				applications++
			}
		}
		if applications >= *params.MaxApplications {
			return repository.ScoreChangeResult{NewScore: previous, Applied: false}, nil
		}
	}

	newScore := domain.ClampScore(previous + params.Delta)
	f.scores[params.ContactID] = newScore
	entry := repository.LeadScoreHistoryEntry{
		ID:            uuid.New(),
		ContactID:     params.ContactID,
		RuleID:        params.RuleID,
		PreviousScore: previous,
		ScoreChange:   params.Delta,
		NewScore:      newScore,
		Reason:        params.Reason,
		EventKey:      params.EventKey,
		CreatedAt:     time.Now(),
	}
	f.history = append(f.history, entry)
	return repository.ScoreChangeResult{Entry: entry, NewScore: newScore, Applied: true}, nil
}

func (f *fakeRepo) ListScoreHistory(_ context.Context, contactID uuid.UUID, _ int) ([]repository.LeadScoreHistoryEntry, error) {
	out := make([]repository.LeadScoreHistoryEntry, 0)
	for i := len(f.history) - 1; i >= 0; i-- {
		if f.history[i].ContactID == contactID {
			out = append(out, f.history[i])
		}
	}
	return out, nil
}

func (f *fakeRepo) TouchContactInteraction(_ context.Context, _ uuid.UUID, _ time.Time) error {
	f.touched++
	return nil
}

func newTestService(repo Repository) *Service {
	return New(repo, events.NewInMemoryBus(nil), nil, nil)
}

func TestApplyScoreChange_ClampsAtUpperBound(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	contactID := uuid.New()
	repo.scores[contactID] = 95

	resp, err := svc.ApplyScoreChange(context.Background(), contactID, transport.ApplyScoreChangeRequest{Delta: 10}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.NewScore != 100 {
		t.Fatalf("expected score clamped to 100, got %d", resp.NewScore)
	}
	if resp.RequestedDelta != 10 || resp.PreviousScore != 95 {
		t.Fatalf("response must keep the requested delta, got %+v", resp)
	}
	if !resp.Applied {
		t.Fatal("clamped change is still an applied change")
	}
	if len(repo.history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(repo.history))
	}
	if repo.history[0].ScoreChange != 10 {
		t.Fatalf("history must record the requested delta, got %d", repo.history[0].ScoreChange)
	}
}

func TestApplyScoreChange_ClampsAtLowerBound(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	contactID := uuid.New()
	repo.scores[contactID] = 5

	resp, err := svc.ApplyScoreChange(context.Background(), contactID, transport.ApplyScoreChangeRequest{Delta: -20}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.NewScore != 0 {
		t.Fatalf("expected score clamped to 0, got %d", resp.NewScore)
	}
}

func TestApplyScoreChange_ConcurrentDeltasSerialize(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	contactID := uuid.New()
	repo.scores[contactID] = 50

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyScoreChange(context.Background(), contactID, transport.ApplyScoreChangeRequest{Delta: 5}, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Both deltas apply against the score the other produced, never
	// against the same stale read.
	if repo.scores[contactID] != 60 {
		t.Fatalf("two +5 deltas from 50 must land on 60, got %d", repo.scores[contactID])
	}
	if len(repo.history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(repo.history))
	}
	bases := map[int]bool{}
	for _, entry := range repo.history {
		bases[entry.PreviousScore] = true
	}
	if !bases[50] || !bases[55] {
		t.Fatalf("expected one change from 50 and one from 55, got %+v", repo.history)
	}
}

func TestApplyScoreChange_ZeroDeltaRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.ApplyScoreChange(context.Background(), uuid.New(), transport.ApplyScoreChangeRequest{Delta: 0}, nil)
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyScoreChange_UnknownContact(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.ApplyScoreChange(context.Background(), uuid.New(), transport.ApplyScoreChangeRequest{Delta: 5}, nil)
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyEngagementEvent_AppliesMatchingRules(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	contactID := uuid.New()
	repo.scores[contactID] = 10

	rule, _ := repo.CreateScoreRule(context.Background(), repository.CreateScoreRuleParams{
		Name: "Email opened", EventType: "email_opened", ScoreChange: 5, IsActive: true,
	})
	repo.CreateScoreRule(context.Background(), repository.CreateScoreRuleParams{
		Name: "Form submitted", EventType: "form_submitted", ScoreChange: 20, IsActive: true,
	})

	responses, err := svc.ApplyEngagementEvent(context.Background(), transport.EngagementEventRequest{
		ContactID: contactID.String(),
		EventType: "email_opened",
		EventKey:  "msg-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("expected one matching rule, got %d", len(responses))
	}
	if responses[0].NewScore != 15 || !responses[0].Applied {
		t.Fatalf("unexpected response: %+v", responses[0])
	}
	if responses[0].RuleID == nil || *responses[0].RuleID != rule.ID.String() {
		t.Fatal("response must carry the rule id")
	}
	if repo.touched != 1 {
		t.Fatalf("engagement must touch last interaction, touched=%d", repo.touched)
	}
}

func TestApplyEngagementEvent_ReplayIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	contactID := uuid.New()
	repo.scores[contactID] = 10
	repo.CreateScoreRule(context.Background(), repository.CreateScoreRuleParams{
		Name: "Email opened", EventType: "email_opened", ScoreChange: 5, IsActive: true,
	})

	event := transport.EngagementEventRequest{
		ContactID: contactID.String(),
		EventType: "email_opened",
		EventKey:  "msg-1",
	}
	if _, err := svc.ApplyEngagementEvent(context.Background(), event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	responses, err := svc.ApplyEngagementEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if responses[0].Applied {
		t.Fatal("replayed event key must not re-apply")
	}
	if repo.scores[contactID] != 15 {
		t.Fatalf("score changed on replay: %d", repo.scores[contactID])
	}
	if len(repo.history) != 1 {
		t.Fatalf("replay must not append history, got %d entries", len(repo.history))
	}
}

func TestApplyEngagementEvent_RespectsApplicationCap(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	contactID := uuid.New()
	repo.scores[contactID] = 0
	capTwo := 2
	repo.CreateScoreRule(context.Background(), repository.CreateScoreRuleParams{
		Name: "Page visit", EventType: "page_visit", ScoreChange: 10, MaxApplications: &capTwo, IsActive: true,
	})

	for i := 0; i < 4; i++ {
		_, err := svc.ApplyEngagementEvent(context.Background(), transport.EngagementEventRequest{
			ContactID: contactID.String(),
			EventType: "page_visit",
			EventKey:  fmt.Sprintf("visit-%d", i),
		})
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
	}

	if repo.scores[contactID] != 20 {
		t.Fatalf("rule capped at 2 applications, score should be 20, got %d", repo.scores[contactID])
	}
	if len(repo.history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(repo.history))
	}
}

func TestGetHistory_NewestFirst(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	contactID := uuid.New()
	repo.scores[contactID] = 0

	for _, delta := range []int{10, 20, 30} {
		if _, err := svc.ApplyScoreChange(context.Background(), contactID, transport.ApplyScoreChangeRequest{Delta: delta}, nil); err != nil {
			t.Fatalf("apply %d: %v", delta, err)
		}
	}

	history, err := svc.GetHistory(context.Background(), contactID, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	if history[0].ScoreChange != 30 || history[2].ScoreChange != 10 {
		t.Fatalf("history must be newest first, got %+v", history)
	}
}
