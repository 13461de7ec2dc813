package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cityguide_crm_backend/internal/crm/domain"
	"cityguide_crm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	dealNotFoundMsg  = "deal not found"
	stageNotFoundMsg = "pipeline stage not found"
)

// PipelineStage is one ordered step in the sales process.
type PipelineStage struct {
	ID             uuid.UUID
	Name           string
	Description    *string
	StageOrder     int
	Color          string
	IsDefault      bool
	WinProbability int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Deal is the database model for a tracked sales opportunity.
type Deal struct {
	ID                uuid.UUID
	ContactID         uuid.UUID
	Title             string
	Description       *string
	Value             float64
	Currency          string
	StageID           uuid.UUID
	Status            string
	Probability       int
	ExpectedCloseDate *time.Time
	ActualCloseDate   *time.Time
	AssignedTo        *uuid.UUID
	CloseReason       *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DealStageHistoryEntry is one immutable record of a stage move.
type DealStageHistoryEntry struct {
	ID          uuid.UUID
	DealID      uuid.UUID
	FromStageID *uuid.UUID
	ToStageID   uuid.UUID
	ChangedBy   *uuid.UUID
	ChangedAt   time.Time
}

type CreateDealParams struct {
	ContactID         uuid.UUID
	Title             string
	Description       *string
	Value             float64
	Currency          string
	StageID           uuid.UUID
	Probability       int
	ExpectedCloseDate *time.Time
	AssignedTo        *uuid.UUID
	PerformedBy       *uuid.UUID
}

type UpdateDealParams struct {
	ID                uuid.UUID
	Title             *string
	Description       *string
	Value             *float64
	Probability       *int
	ExpectedCloseDate *time.Time
	AssignedTo        *uuid.UUID
}

// ListDealsParams contains filters for listing deals.
type ListDealsParams struct {
	ContactID *uuid.UUID
	StageID   *uuid.UUID
	Status    *string
	Page      int
	PageSize  int
}

// ListDealsResult contains the paginated result of listing deals.
type ListDealsResult struct {
	Items      []Deal
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// DealStats aggregates the pipeline for dashboards.
type DealStats struct {
	OpenCount  int
	WonCount   int
	LostCount  int
	OpenValue  float64
	WonValue   float64
	LostValue  float64
	AvgOpenAge float64
}

const stageSelectCols = `
	id, name, description, stage_order, color, is_default, win_probability,
	created_at, updated_at`

func scanStage(s rowScanner) (PipelineStage, error) {
	var stage PipelineStage
	if err := s.Scan(
		&stage.ID,
		&stage.Name,
		&stage.Description,
		&stage.StageOrder,
		&stage.Color,
		&stage.IsDefault,
		&stage.WinProbability,
		&stage.CreatedAt,
		&stage.UpdatedAt,
	); err != nil {
		return PipelineStage{}, err
	}
	return stage, nil
}

// ListStages returns all pipeline stages in canonical order.
func (r *Repository) ListStages(ctx context.Context) ([]PipelineStage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+stageSelectCols+`
		FROM crm_pipeline_stages
		ORDER BY stage_order ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pipeline stages: %w", err)
	}
	defer rows.Close()

	items := make([]PipelineStage, 0)
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, stage)
	}
	return items, rows.Err()
}

// GetStageByID retrieves a pipeline stage by id.
func (r *Repository) GetStageByID(ctx context.Context, id uuid.UUID) (PipelineStage, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+stageSelectCols+`
		FROM crm_pipeline_stages
		WHERE id = $1
	`, id)

	stage, err := scanStage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PipelineStage{}, apperr.NotFound(stageNotFoundMsg)
		}
		return PipelineStage{}, fmt.Errorf("get stage by id: %w", err)
	}
	return stage, nil
}

// GetDefaultStage returns the stage new deals start in. Falls back to
// the lowest stage_order when none is flagged default.
func (r *Repository) GetDefaultStage(ctx context.Context) (PipelineStage, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+stageSelectCols+`
		FROM crm_pipeline_stages
		ORDER BY is_default DESC, stage_order ASC
		LIMIT 1
	`)

	stage, err := scanStage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PipelineStage{}, apperr.NotFound(stageNotFoundMsg)
		}
		return PipelineStage{}, fmt.Errorf("get default stage: %w", err)
	}
	return stage, nil
}

const dealSelectCols = `
	id, contact_id, title, description, value, currency, stage_id, status,
	probability, expected_close_date, actual_close_date, assigned_to, close_reason,
	created_at, updated_at`

func scanDeal(s rowScanner) (Deal, error) {
	var d Deal
	if err := s.Scan(
		&d.ID,
		&d.ContactID,
		&d.Title,
		&d.Description,
		&d.Value,
		&d.Currency,
		&d.StageID,
		&d.Status,
		&d.Probability,
		&d.ExpectedCloseDate,
		&d.ActualCloseDate,
		&d.AssignedTo,
		&d.CloseReason,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return Deal{}, err
	}
	return d, nil
}

func collectDeals(rows pgxRows) ([]Deal, error) {
	items := make([]Deal, 0)
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateDeal inserts a deal, its opening stage history entry and the
// deal_created activity in one transaction.
func (r *Repository) CreateDeal(ctx context.Context, params CreateDealParams) (Deal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Deal{}, apperr.Persistence("begin create deal", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO crm_deals (
			contact_id, title, description, value, currency, stage_id, status,
			probability, expected_close_date, assigned_to
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING`+dealSelectCols+`
	`, params.ContactID, params.Title, params.Description, params.Value,
		params.Currency, params.StageID, domain.DealStatusOpen,
		params.Probability, params.ExpectedCloseDate, params.AssignedTo)
	deal, err := scanDeal(row)
	if err != nil {
		return Deal{}, apperr.Persistence("insert deal", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO crm_deal_stage_history (deal_id, from_stage_id, to_stage_id, changed_by)
		VALUES ($1, NULL, $2, $3)
	`, deal.ID, deal.StageID, params.PerformedBy); err != nil {
		return Deal{}, apperr.Persistence("insert opening stage history", err)
	}

	if _, err := insertActivity(ctx, tx, CreateActivityParams{
		ContactID:    deal.ContactID,
		DealID:       &deal.ID,
		ActivityType: domain.ActivityTypeDealCreated,
		Title:        "Deal created: " + deal.Title,
		Metadata: map[string]any{
			"deal_value": deal.Value,
			"stage_id":   deal.StageID.String(),
		},
		PerformedBy:       params.PerformedBy,
		IsSystemGenerated: true,
	}); err != nil {
		return Deal{}, apperr.Persistence("record deal_created activity", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Deal{}, apperr.Persistence("commit create deal", err)
	}
	return deal, nil
}

// GetDealByID retrieves a deal by id.
func (r *Repository) GetDealByID(ctx context.Context, id uuid.UUID) (Deal, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+dealSelectCols+`
		FROM crm_deals
		WHERE id = $1
	`, id)

	deal, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, apperr.NotFound(dealNotFoundMsg)
		}
		return Deal{}, fmt.Errorf("get deal by id: %w", err)
	}
	return deal, nil
}

// UpdateDeal applies a partial update to deal metadata. Stage and status
// never change here; those go through MoveDealStage and CloseDeal.
func (r *Repository) UpdateDeal(ctx context.Context, params UpdateDealParams) (Deal, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE crm_deals SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			value = COALESCE($4, value),
			probability = COALESCE($5, probability),
			expected_close_date = COALESCE($6, expected_close_date),
			assigned_to = COALESCE($7, assigned_to),
			updated_at = now()
		WHERE id = $1
		RETURNING`+dealSelectCols+`
	`, params.ID, params.Title, params.Description, params.Value,
		params.Probability, params.ExpectedCloseDate, params.AssignedTo)

	deal, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, apperr.NotFound(dealNotFoundMsg)
		}
		return Deal{}, fmt.Errorf("update deal: %w", err)
	}
	return deal, nil
}

// ListDeals returns a filtered, paginated page of deals ordered by
// creation time descending.
func (r *Repository) ListDeals(ctx context.Context, params ListDealsParams) (ListDealsResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 200 {
		params.PageSize = 50
	}

	where := "WHERE 1=1"
	args := []any{}
	arg := 0
	next := func(v any) string {
		arg++
		args = append(args, v)
		return fmt.Sprintf("$%d", arg)
	}

	if params.ContactID != nil {
		where += " AND contact_id = " + next(*params.ContactID)
	}
	if params.StageID != nil {
		where += " AND stage_id = " + next(*params.StageID)
	}
	if params.Status != nil {
		where += " AND status = " + next(*params.Status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM crm_deals "+where, args...).Scan(&total); err != nil {
		return ListDealsResult{}, fmt.Errorf("count deals: %w", err)
	}

	limit := next(params.PageSize)
	offset := next((params.Page - 1) * params.PageSize)
	rows, err := r.pool.Query(ctx, `
		SELECT`+dealSelectCols+`
		FROM crm_deals `+where+`
		ORDER BY created_at DESC
		LIMIT `+limit+` OFFSET `+offset,
		args...)
	if err != nil {
		return ListDealsResult{}, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	items, err := collectDeals(rows)
	if err != nil {
		return ListDealsResult{}, fmt.Errorf("list deals: %w", err)
	}

	totalPages := (total + params.PageSize - 1) / params.PageSize
	return ListDealsResult{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}, nil
}

const stageHistorySelectCols = `
	id, deal_id, from_stage_id, to_stage_id, changed_by, changed_at`

func scanStageHistory(s rowScanner) (DealStageHistoryEntry, error) {
	var entry DealStageHistoryEntry
	if err := s.Scan(
		&entry.ID,
		&entry.DealID,
		&entry.FromStageID,
		&entry.ToStageID,
		&entry.ChangedBy,
		&entry.ChangedAt,
	); err != nil {
		return DealStageHistoryEntry{}, err
	}
	return entry, nil
}

// ListDealStageHistory returns a deal's stage moves, newest first.
func (r *Repository) ListDealStageHistory(ctx context.Context, dealID uuid.UUID) ([]DealStageHistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+stageHistorySelectCols+`
		FROM crm_deal_stage_history
		WHERE deal_id = $1
		ORDER BY changed_at DESC
	`, dealID)
	if err != nil {
		return nil, fmt.Errorf("list deal stage history: %w", err)
	}
	defer rows.Close()

	items := make([]DealStageHistoryEntry, 0)
	for rows.Next() {
		entry, err := scanStageHistory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, entry)
	}
	return items, rows.Err()
}

type MoveDealStageParams struct {
	DealID        uuid.UUID
	TargetStageID uuid.UUID
	// TargetStageName and WinProbability come from the caller's stage
	// lookup so the activity title and probability update stay in one
	// round trip.
	TargetStageName string
	WinProbability  int
	PerformedBy     *uuid.UUID
}

// MoveDealStage atomically moves an open deal to another stage, appends
// the stage history entry and the deal_updated activity. The deal row is
// locked so concurrent moves against the same deal serialize. Moving a
// closed deal is a conflict and writes nothing.
func (r *Repository) MoveDealStage(ctx context.Context, params MoveDealStageParams) (DealStageHistoryEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return DealStageHistoryEntry{}, apperr.Persistence("begin move deal", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT`+dealSelectCols+`
		FROM crm_deals
		WHERE id = $1
		FOR UPDATE
	`, params.DealID)
	deal, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DealStageHistoryEntry{}, apperr.NotFound(dealNotFoundMsg)
		}
		return DealStageHistoryEntry{}, apperr.Persistence("lock deal for move", err)
	}

	if domain.IsClosedDealStatus(deal.Status) {
		return DealStageHistoryEntry{}, apperr.Conflict("deal already closed")
	}

	if _, err := tx.Exec(ctx, `
		UPDATE crm_deals SET stage_id = $2, probability = $3, updated_at = now()
		WHERE id = $1
	`, deal.ID, params.TargetStageID, params.WinProbability); err != nil {
		return DealStageHistoryEntry{}, apperr.Persistence("update deal stage", err)
	}

	historyRow := tx.QueryRow(ctx, `
		INSERT INTO crm_deal_stage_history (deal_id, from_stage_id, to_stage_id, changed_by)
		VALUES ($1, $2, $3, $4)
		RETURNING`+stageHistorySelectCols+`
	`, deal.ID, deal.StageID, params.TargetStageID, params.PerformedBy)
	entry, err := scanStageHistory(historyRow)
	if err != nil {
		return DealStageHistoryEntry{}, apperr.Persistence("insert stage history", err)
	}

	if _, err := insertActivity(ctx, tx, CreateActivityParams{
		ContactID:    deal.ContactID,
		DealID:       &deal.ID,
		ActivityType: domain.ActivityTypeDealUpdated,
		Title:        fmt.Sprintf("Deal %q moved to %s", deal.Title, params.TargetStageName),
		Metadata: map[string]any{
			"from_stage_id": deal.StageID.String(),
			"to_stage_id":   params.TargetStageID.String(),
		},
		PerformedBy:       params.PerformedBy,
		IsSystemGenerated: true,
	}); err != nil {
		return DealStageHistoryEntry{}, apperr.Persistence("record deal_updated activity", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return DealStageHistoryEntry{}, apperr.Persistence("commit move deal", err)
	}
	return entry, nil
}

type CloseDealParams struct {
	DealID      uuid.UUID
	Status      string // won or lost
	CloseReason *string
	PerformedBy *uuid.UUID
}

// CloseDeal atomically transitions an open deal to won or lost, stamps
// the close date and appends the deal_won/deal_lost activity. Closing an
// already closed deal is a conflict and writes nothing.
func (r *Repository) CloseDeal(ctx context.Context, params CloseDealParams) (Deal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Deal{}, apperr.Persistence("begin close deal", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT`+dealSelectCols+`
		FROM crm_deals
		WHERE id = $1
		FOR UPDATE
	`, params.DealID)
	deal, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, apperr.NotFound(dealNotFoundMsg)
		}
		return Deal{}, apperr.Persistence("lock deal for close", err)
	}

	if domain.IsClosedDealStatus(deal.Status) {
		return Deal{}, apperr.Conflict("deal already closed")
	}

	closedRow := tx.QueryRow(ctx, `
		UPDATE crm_deals SET
			status = $2,
			close_reason = $3,
			actual_close_date = CURRENT_DATE,
			updated_at = now()
		WHERE id = $1
		RETURNING`+dealSelectCols+`
	`, deal.ID, params.Status, params.CloseReason)
	closed, err := scanDeal(closedRow)
	if err != nil {
		return Deal{}, apperr.Persistence("close deal", err)
	}

	activityType := domain.ActivityTypeDealWon
	title := fmt.Sprintf("Deal won: %s", closed.Title)
	if params.Status == domain.DealStatusLost {
		activityType = domain.ActivityTypeDealLost
		title = fmt.Sprintf("Deal lost: %s", closed.Title)
	}
	metadata := map[string]any{"deal_value": closed.Value}
	if params.CloseReason != nil {
		metadata["close_reason"] = *params.CloseReason
	}
	if _, err := insertActivity(ctx, tx, CreateActivityParams{
		ContactID:         closed.ContactID,
		DealID:            &closed.ID,
		ActivityType:      activityType,
		Title:             title,
		Description:       params.CloseReason,
		Metadata:          metadata,
		PerformedBy:       params.PerformedBy,
		IsSystemGenerated: true,
	}); err != nil {
		return Deal{}, apperr.Persistence("record deal close activity", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Deal{}, apperr.Persistence("commit close deal", err)
	}
	return closed, nil
}

// GetDealStats aggregates deal counts and values by status.
func (r *Repository) GetDealStats(ctx context.Context) (DealStats, error) {
	var stats DealStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'open'),
			COUNT(*) FILTER (WHERE status = 'won'),
			COUNT(*) FILTER (WHERE status = 'lost'),
			COALESCE(SUM(value) FILTER (WHERE status = 'open'), 0),
			COALESCE(SUM(value) FILTER (WHERE status = 'won'), 0),
			COALESCE(SUM(value) FILTER (WHERE status = 'lost'), 0),
			COALESCE(AVG(EXTRACT(EPOCH FROM now() - created_at) / 86400) FILTER (WHERE status = 'open'), 0)
		FROM crm_deals
	`).Scan(
		&stats.OpenCount,
		&stats.WonCount,
		&stats.LostCount,
		&stats.OpenValue,
		&stats.WonValue,
		&stats.LostValue,
		&stats.AvgOpenAge,
	)
	if err != nil {
		return DealStats{}, fmt.Errorf("get deal stats: %w", err)
	}
	return stats, nil
}
