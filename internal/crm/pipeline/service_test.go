package pipeline

import (
	"context"
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
	contacts map[uuid.UUID]repository.Contact
	stages   []repository.PipelineStage
	deals    map[uuid.UUID]repository.Deal
	history  []repository.DealStageHistoryEntry
}

func newFakeRepo() *fakeRepo {
	f := &fakeRepo{
		contacts: map[uuid.UUID]repository.Contact{},
		deals:    map[uuid.UUID]repository.Deal{},
	}
	for i, name := range []string{"Lead In", "Qualified", "Proposal", "Negotiation"} {
		f.stages = append(f.stages, repository.PipelineStage{
			ID:             uuid.New(),
			Name:           name,
			StageOrder:     i + 1,
			IsDefault:      i == 0,
			WinProbability: (i + 1) * 20,
		})
	}
	return f
}

func (f *fakeRepo) GetContactByID(_ context.Context, id uuid.UUID) (repository.Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return repository.Contact{}, apperr.NotFound("contact not found")
	}
	return c, nil
}

func (f *fakeRepo) ListContacts(context.Context, repository.ListContactsParams) (repository.ListContactsResult, error) {
	return repository.ListContactsResult{}, nil
}

func (f *fakeRepo) ListContactsAfter(context.Context, uuid.UUID, int) ([]repository.Contact, error) {
	return nil, nil
}

func (f *fakeRepo) ListContactsByIDs(context.Context, []uuid.UUID) ([]repository.Contact, error) {
	return nil, nil
}

func (f *fakeRepo) ListStages(context.Context) ([]repository.PipelineStage, error) {
	return f.stages, nil
}

func (f *fakeRepo) GetStageByID(_ context.Context, id uuid.UUID) (repository.PipelineStage, error) {
	for _, stage := range f.stages {
		if stage.ID == id {
			return stage, nil
		}
	}
	return repository.PipelineStage{}, apperr.NotFound("pipeline stage not found")
}

func (f *fakeRepo) GetDefaultStage(context.Context) (repository.PipelineStage, error) {
	for _, stage := range f.stages {
		if stage.IsDefault {
			return stage, nil
		}
	}
	return f.stages[0], nil
}

func (f *fakeRepo) GetDealByID(_ context.Context, id uuid.UUID) (repository.Deal, error) {
	d, ok := f.deals[id]
	if !ok {
		return repository.Deal{}, apperr.NotFound("deal not found")
	}
	return d, nil
}

func (f *fakeRepo) ListDeals(_ context.Context, params repository.ListDealsParams) (repository.ListDealsResult, error) {
	items := make([]repository.Deal, 0)
	for _, d := range f.deals {
		if params.StageID != nil && d.StageID != *params.StageID {
			continue
		}
		if params.Status != nil && d.Status != *params.Status {
			continue
		}
		if params.ContactID != nil && d.ContactID != *params.ContactID {
			continue
		}
		items = append(items, d)
	}
	return repository.ListDealsResult{Items: items, Total: len(items), Page: 1, PageSize: 200, TotalPages: 1}, nil
}

func (f *fakeRepo) ListDealStageHistory(_ context.Context, dealID uuid.UUID) ([]repository.DealStageHistoryEntry, error) {
	out := make([]repository.DealStageHistoryEntry, 0)
	for i := len(f.history) - 1; i >= 0; i-- {
		if f.history[i].DealID == dealID {
			out = append(out, f.history[i])
		}
	}
	return out, nil
}

func (f *fakeRepo) GetDealStats(context.Context) (repository.DealStats, error) {
	var stats repository.DealStats
	for _, d := range f.deals {
		switch d.Status {
		case domain.DealStatusOpen:
			stats.OpenCount++
			stats.OpenValue += d.Value
		case domain.DealStatusWon:
			stats.WonCount++
			stats.WonValue += d.Value
		case domain.DealStatusLost:
			stats.LostCount++
			stats.LostValue += d.Value
		}
	}
	return stats, nil
}

func (f *fakeRepo) CreateDeal(_ context.Context, params repository.CreateDealParams) (repository.Deal, error) {
	deal := repository.Deal{
		ID:                uuid.New(),
		ContactID:         params.ContactID,
		Title:             params.Title,
		Description:       params.Description,
		Value:             params.Value,
		Currency:          params.Currency,
		StageID:           params.StageID,
		Status:            domain.DealStatusOpen,
		Probability:       params.Probability,
		ExpectedCloseDate: params.ExpectedCloseDate,
		AssignedTo:        params.AssignedTo,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	f.deals[deal.ID] = deal
	f.history = append(f.history, repository.DealStageHistoryEntry{
		ID: uuid.New(), DealID: deal.ID, ToStageID: deal.StageID, ChangedAt: time.Now(),
	})
	return deal, nil
}

func (f *fakeRepo) UpdateDeal(_ context.Context, params repository.UpdateDealParams) (repository.Deal, error) {
	deal, ok := f.deals[params.ID]
	if !ok {
		return repository.Deal{}, apperr.NotFound("deal not found")
	}
	if params.Title != nil {
		deal.Title = *params.Title
	}
	if params.Value != nil {
		deal.Value = *params.Value
	}
	f.deals[params.ID] = deal
	return deal, nil
}

func (f *fakeRepo) MoveDealStage(_ context.Context, params repository.MoveDealStageParams) (repository.DealStageHistoryEntry, error) {
	deal, ok := f.deals[params.DealID]
	if !ok {
		return repository.DealStageHistoryEntry{}, apperr.NotFound("deal not found")
	}
	if domain.IsClosedDealStatus(deal.Status) {
		return repository.DealStageHistoryEntry{}, apperr.Conflict("deal already closed")
	}
	from := deal.StageID
	entry := repository.DealStageHistoryEntry{
		ID:          uuid.New(),
		DealID:      deal.ID,
		FromStageID: &from,
		ToStageID:   params.TargetStageID,
		ChangedAt:   time.Now(),
	}
	deal.StageID = params.TargetStageID
	deal.Probability = params.WinProbability
	f.deals[deal.ID] = deal
	f.history = append(f.history, entry)
	return entry, nil
}

func (f *fakeRepo) CloseDeal(_ context.Context, params repository.CloseDealParams) (repository.Deal, error) {
	deal, ok := f.deals[params.DealID]
	if !ok {
		return repository.Deal{}, apperr.NotFound("deal not found")
	}
	if domain.IsClosedDealStatus(deal.Status) {
		return repository.Deal{}, apperr.Conflict("deal already closed")
	}
	now := time.Now()
	deal.Status = params.Status
	deal.CloseReason = params.CloseReason
	deal.ActualCloseDate = &now
	f.deals[deal.ID] = deal
	return deal, nil
}

func newTestService(repo Repository) *Service {
	return New(repo, events.NewInMemoryBus(nil), nil, nil)
}

func seedContact(repo *fakeRepo) uuid.UUID {
	c := repository.Contact{ID: uuid.New(), Status: domain.ContactStatusLead}
	repo.contacts[c.ID] = c
	return c.ID
}

func TestCreateDeal_DefaultsToFirstStage(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	contactID := seedContact(repo)

	resp, err := svc.CreateDeal(context.Background(), transport.CreateDealRequest{
		ContactID: contactID.String(),
		Title:     "Annual license",
		Value:     4800,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StageID != repo.stages[0].ID.String() {
		t.Fatalf("deal must open in the default stage, got %s", resp.StageID)
	}
	if resp.Status != domain.DealStatusOpen {
		t.Fatalf("new deal must be open, got %s", resp.Status)
	}
	if resp.Probability != repo.stages[0].WinProbability {
		t.Fatalf("probability must seed from the stage, got %d", resp.Probability)
	}
	if resp.Currency != "EUR" {
		t.Fatalf("currency must default to EUR, got %s", resp.Currency)
	}
	if len(repo.history) != 1 {
		t.Fatalf("opening a deal must record the first stage entry, got %d", len(repo.history))
	}
}

func TestCreateDeal_UnknownContact(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.CreateDeal(context.Background(), transport.CreateDealRequest{
		ContactID: uuid.NewString(),
		Title:     "Ghost deal",
	}, nil)
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMoveDeal_UpdatesStageAndProbability(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	contactID := seedContact(repo)

	created, err := svc.CreateDeal(context.Background(), transport.CreateDealRequest{
		ContactID: contactID.String(), Title: "Annual license", Value: 4800,
	}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	dealID := uuid.MustParse(created.ID)
	target := repo.stages[2]

	entry, err := svc.MoveDeal(context.Background(), dealID, transport.MoveDealRequest{StageID: target.ID.String()}, nil)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if entry.ToStageID != target.ID.String() {
		t.Fatalf("history must record the target stage, got %s", entry.ToStageID)
	}
	if entry.FromStageID == nil || *entry.FromStageID != repo.stages[0].ID.String() {
		t.Fatal("history must record the source stage")
	}

	moved := repo.deals[dealID]
	if moved.StageID != target.ID || moved.Probability != target.WinProbability {
		t.Fatalf("deal must carry the new stage and probability, got %+v", moved)
	}
}

func TestMoveDeal_UnknownStageIsValidationError(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	contactID := seedContact(repo)

	created, _ := svc.CreateDeal(context.Background(), transport.CreateDealRequest{
		ContactID: contactID.String(), Title: "Annual license", Value: 4800,
	}, nil)
	dealID := uuid.MustParse(created.ID)

	historyBefore := len(repo.history)
	_, err := svc.MoveDeal(context.Background(), dealID, transport.MoveDealRequest{StageID: uuid.NewString()}, nil)
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for unknown stage, got %v", err)
	}
	if len(repo.history) != historyBefore {
		t.Fatal("a rejected move must not append stage history")
	}
}

func TestMoveDeal_ClosedDealConflicts(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	contactID := seedContact(repo)

	created, _ := svc.CreateDeal(context.Background(), transport.CreateDealRequest{
		ContactID: contactID.String(), Title: "Annual license", Value: 4800,
	}, nil)
	dealID := uuid.MustParse(created.ID)

	if _, err := svc.CloseDeal(context.Background(), dealID, transport.CloseDealRequest{Status: domain.DealStatusWon}, nil); err != nil {
		t.Fatalf("close: %v", err)
	}

	historyBefore := len(repo.history)
	_, err := svc.MoveDeal(context.Background(), dealID, transport.MoveDealRequest{StageID: repo.stages[1].ID.String()}, nil)
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("expected conflict on closed deal, got %v", err)
	}
	if len(repo.history) != historyBefore {
		t.Fatal("a rejected move must not append stage history")
	}
}

func TestCloseDeal_Terminal(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	contactID := seedContact(repo)

	created, _ := svc.CreateDeal(context.Background(), transport.CreateDealRequest{
		ContactID: contactID.String(), Title: "Annual license", Value: 4800,
	}, nil)
	dealID := uuid.MustParse(created.ID)

	reason := "budget approved"
	closed, err := svc.CloseDeal(context.Background(), dealID, transport.CloseDealRequest{
		Status: domain.DealStatusWon, Reason: &reason,
	}, nil)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.DealStatusWon || closed.ActualCloseDate == nil {
		t.Fatalf("closed deal must be won with a close date, got %+v", closed)
	}

	_, err = svc.CloseDeal(context.Background(), dealID, transport.CloseDealRequest{Status: domain.DealStatusLost}, nil)
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("expected conflict on second close, got %v", err)
	}
	if repo.deals[dealID].Status != domain.DealStatusWon {
		t.Fatal("a rejected close must not change the status")
	}
}

func TestCloseDeal_RejectsOpenStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.CloseDeal(context.Background(), uuid.New(), transport.CloseDealRequest{Status: domain.DealStatusOpen}, nil)
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBoard_GroupsOpenDealsByStage(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	contactID := seedContact(repo)

	first, _ := svc.CreateDeal(context.Background(), transport.CreateDealRequest{
		ContactID: contactID.String(), Title: "Deal A", Value: 100,
	}, nil)
	svc.CreateDeal(context.Background(), transport.CreateDealRequest{
		ContactID: contactID.String(), Title: "Deal B", Value: 250,
	}, nil)
	wonDeal, _ := svc.CreateDeal(context.Background(), transport.CreateDealRequest{
		ContactID: contactID.String(), Title: "Deal C", Value: 999,
	}, nil)
	svc.CloseDeal(context.Background(), uuid.MustParse(wonDeal.ID), transport.CloseDealRequest{Status: domain.DealStatusWon}, nil)
	svc.MoveDeal(context.Background(), uuid.MustParse(first.ID), transport.MoveDealRequest{StageID: repo.stages[1].ID.String()}, nil)

	board, err := svc.Board(context.Background())
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(board) != len(repo.stages) {
		t.Fatalf("board must have one column per stage, got %d", len(board))
	}
	if len(board[0].Deals) != 1 || board[0].Value != 250 {
		t.Fatalf("first column should hold one open deal worth 250, got %d deals worth %v", len(board[0].Deals), board[0].Value)
	}
	if len(board[1].Deals) != 1 || board[1].Value != 100 {
		t.Fatalf("second column should hold the moved deal, got %d deals", len(board[1].Deals))
	}
}

func TestStats_WinRate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	contactID := seedContact(repo)

	for i, status := range []string{domain.DealStatusWon, domain.DealStatusWon, domain.DealStatusLost} {
		created, _ := svc.CreateDeal(context.Background(), transport.CreateDealRequest{
			ContactID: contactID.String(), Title: "Deal", Value: float64(100 * (i + 1)),
		}, nil)
		svc.CloseDeal(context.Background(), uuid.MustParse(created.ID), transport.CloseDealRequest{Status: status}, nil)
	}
	svc.CreateDeal(context.Background(), transport.CreateDealRequest{
		ContactID: contactID.String(), Title: "Still open", Value: 50,
	}, nil)

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.WonCount != 2 || stats.LostCount != 1 || stats.OpenCount != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	want := 2.0 / 3.0
	if stats.WinRate < want-0.0001 || stats.WinRate > want+0.0001 {
		t.Fatalf("expected win rate %.4f, got %.4f", want, stats.WinRate)
	}
}
