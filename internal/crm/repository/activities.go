package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Activity is the database model for one audit trail entry. Rows are
// append-only: nothing in the engine updates or deletes them.
type Activity struct {
	ID                uuid.UUID
	ContactID         uuid.UUID
	DealID            *uuid.UUID
	ActivityType      string
	Title             string
	Description       *string
	Metadata          map[string]any
	PerformedBy       *uuid.UUID
	IsSystemGenerated bool
	PerformedAt       time.Time
	CreatedAt         time.Time
}

type CreateActivityParams struct {
	ContactID         uuid.UUID
	DealID            *uuid.UUID
	ActivityType      string
	Title             string
	Description       *string
	Metadata          map[string]any
	PerformedBy       *uuid.UUID
	IsSystemGenerated bool
}

// ListActivitiesParams contains filters for the activity feed.
type ListActivitiesParams struct {
	ContactID     *uuid.UUID
	DealID        *uuid.UUID
	ActivityTypes []string
	PerformedBy   *uuid.UUID
	From          *time.Time
	To            *time.Time
	Page          int
	PageSize      int
}

// ListActivitiesResult contains the paginated activity feed.
type ListActivitiesResult struct {
	Items      []Activity
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

const activitySelectCols = `
	id, contact_id, deal_id, activity_type, title, description, metadata,
	performed_by, is_system_generated, performed_at, created_at`

func scanActivity(s rowScanner) (Activity, error) {
	var a Activity
	var rawMetadata []byte
	if err := s.Scan(
		&a.ID,
		&a.ContactID,
		&a.DealID,
		&a.ActivityType,
		&a.Title,
		&a.Description,
		&rawMetadata,
		&a.PerformedBy,
		&a.IsSystemGenerated,
		&a.PerformedAt,
		&a.CreatedAt,
	); err != nil {
		return Activity{}, err
	}
	if len(rawMetadata) > 0 {
		if err := json.Unmarshal(rawMetadata, &a.Metadata); err != nil {
			return Activity{}, fmt.Errorf("decode activity metadata: %w", err)
		}
	}
	return a, nil
}

func collectActivities(rows pgxRows) ([]Activity, error) {
	items := make([]Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so activity
// inserts can participate in composite transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// insertActivity appends one audit entry through q. Composite writes
// pass their transaction so the activity commits or rolls back together
// with the triggering mutation.
func insertActivity(ctx context.Context, q querier, params CreateActivityParams) (Activity, error) {
	metadataJSON, err := json.Marshal(params.Metadata)
	if err != nil {
		return Activity{}, fmt.Errorf("marshal activity metadata: %w", err)
	}

	row := q.QueryRow(ctx, `
		INSERT INTO crm_activities (
			contact_id, deal_id, activity_type, title, description, metadata,
			performed_by, is_system_generated, performed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING`+activitySelectCols+`
	`, params.ContactID, params.DealID, params.ActivityType, params.Title,
		params.Description, metadataJSON, params.PerformedBy, params.IsSystemGenerated)

	a, err := scanActivity(row)
	if err != nil {
		return Activity{}, fmt.Errorf("insert activity: %w", err)
	}
	return a, nil
}

// CreateActivity appends a standalone audit entry (manual notes, calls,
// meetings). System-generated entries ride inside the composite writes
// of the scoring, pipeline and segment operations instead.
func (r *Repository) CreateActivity(ctx context.Context, params CreateActivityParams) (Activity, error) {
	return insertActivity(ctx, r.pool, params)
}

// ListActivities returns the filtered audit feed ordered by performed_at
// descending.
func (r *Repository) ListActivities(ctx context.Context, params ListActivitiesParams) (ListActivitiesResult, error) {
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
	if params.DealID != nil {
		where += " AND deal_id = " + next(*params.DealID)
	}
	if len(params.ActivityTypes) > 0 {
		where += " AND activity_type = ANY(" + next(params.ActivityTypes) + ")"
	}
	if params.PerformedBy != nil {
		where += " AND performed_by = " + next(*params.PerformedBy)
	}
	if params.From != nil {
		where += " AND performed_at >= " + next(*params.From)
	}
	if params.To != nil {
		where += " AND performed_at <= " + next(*params.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM crm_activities "+where, args...).Scan(&total); err != nil {
		return ListActivitiesResult{}, fmt.Errorf("count activities: %w", err)
	}

	limit := next(params.PageSize)
	offset := next((params.Page - 1) * params.PageSize)
	rows, err := r.pool.Query(ctx, `
		SELECT`+activitySelectCols+`
		FROM crm_activities `+where+`
		ORDER BY performed_at DESC
		LIMIT `+limit+` OFFSET `+offset,
		args...)
	if err != nil {
		return ListActivitiesResult{}, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	items, err := collectActivities(rows)
	if err != nil {
		return ListActivitiesResult{}, fmt.Errorf("list activities: %w", err)
	}

	totalPages := (total + params.PageSize - 1) / params.PageSize
	return ListActivitiesResult{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}, nil
}
