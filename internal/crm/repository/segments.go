package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cityguide_crm_backend/internal/crm/domain"
	"cityguide_crm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const segmentNotFoundMsg = "segment not found"

// Segment is the database model for a contact segment. Rules only carry
// meaning for dynamic segments; static segments own explicit membership
// rows in crm_contact_segments.
type Segment struct {
	ID           uuid.UUID
	Name         string
	Description  *string
	SegmentType  string
	Rules        domain.SegmentRules
	ContactCount int
	Color        string
	Icon         string
	CreatedBy    *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateSegmentParams struct {
	Name        string
	Description *string
	SegmentType string
	Rules       domain.SegmentRules
	Color       string
	Icon        string
	CreatedBy   *uuid.UUID
}

type UpdateSegmentParams struct {
	ID          uuid.UUID
	Name        *string
	Description *string
	Rules       *domain.SegmentRules
	Color       *string
	Icon        *string
}

const segmentSelectCols = `
	id, name, description, segment_type, rules, contact_count, color, icon,
	created_by, created_at, updated_at`

func scanSegment(s rowScanner) (Segment, error) {
	var seg Segment
	var rawRules []byte
	if err := s.Scan(
		&seg.ID,
		&seg.Name,
		&seg.Description,
		&seg.SegmentType,
		&rawRules,
		&seg.ContactCount,
		&seg.Color,
		&seg.Icon,
		&seg.CreatedBy,
		&seg.CreatedAt,
		&seg.UpdatedAt,
	); err != nil {
		return Segment{}, err
	}
	if len(rawRules) > 0 {
		if err := json.Unmarshal(rawRules, &seg.Rules); err != nil {
			return Segment{}, fmt.Errorf("decode segment rules: %w", err)
		}
	}
	return seg, nil
}

// CreateSegment inserts a segment definition.
func (r *Repository) CreateSegment(ctx context.Context, params CreateSegmentParams) (Segment, error) {
	rulesJSON, err := json.Marshal(params.Rules)
	if err != nil {
		return Segment{}, fmt.Errorf("marshal segment rules: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO crm_segments (name, description, segment_type, rules, color, icon, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING`+segmentSelectCols+`
	`, params.Name, params.Description, params.SegmentType, rulesJSON,
		params.Color, params.Icon, params.CreatedBy)

	seg, err := scanSegment(row)
	if err != nil {
		return Segment{}, fmt.Errorf("create segment: %w", err)
	}
	return seg, nil
}

// GetSegmentByID retrieves a segment definition by id.
func (r *Repository) GetSegmentByID(ctx context.Context, id uuid.UUID) (Segment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+segmentSelectCols+`
		FROM crm_segments
		WHERE id = $1
	`, id)

	seg, err := scanSegment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Segment{}, apperr.NotFound(segmentNotFoundMsg)
		}
		return Segment{}, fmt.Errorf("get segment by id: %w", err)
	}
	return seg, nil
}

// ListSegments returns all segment definitions ordered by name.
func (r *Repository) ListSegments(ctx context.Context) ([]Segment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+segmentSelectCols+`
		FROM crm_segments
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	items := make([]Segment, 0)
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateSegment applies a partial update to a segment definition.
// Switching segment_type after creation is not supported.
func (r *Repository) UpdateSegment(ctx context.Context, params UpdateSegmentParams) (Segment, error) {
	var rulesJSON []byte
	if params.Rules != nil {
		encoded, err := json.Marshal(*params.Rules)
		if err != nil {
			return Segment{}, fmt.Errorf("marshal segment rules: %w", err)
		}
		rulesJSON = encoded
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE crm_segments SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			rules = COALESCE($4, rules),
			color = COALESCE($5, color),
			icon = COALESCE($6, icon),
			updated_at = now()
		WHERE id = $1
		RETURNING`+segmentSelectCols+`
	`, params.ID, params.Name, params.Description, rulesJSON, params.Color, params.Icon)

	seg, err := scanSegment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Segment{}, apperr.NotFound(segmentNotFoundMsg)
		}
		return Segment{}, fmt.Errorf("update segment: %w", err)
	}
	return seg, nil
}

// DeleteSegment removes a segment and its membership rows.
func (r *Repository) DeleteSegment(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM crm_segments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(segmentNotFoundMsg)
	}
	return nil
}

// ListStaticMembers returns the contacts explicitly joined to a static
// segment.
func (r *Repository) ListStaticMembers(ctx context.Context, segmentID uuid.UUID) ([]Contact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+contactJoinSelectCols+`
		FROM crm_contacts c
		JOIN crm_contact_segments cs ON cs.contact_id = c.id
		WHERE cs.segment_id = $1
		ORDER BY cs.added_at DESC
	`, segmentID)
	if err != nil {
		return nil, fmt.Errorf("list static members: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

// ListSegmentIDsForContact returns the static segments a contact belongs
// to.
func (r *Repository) ListSegmentIDsForContact(ctx context.Context, contactID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT segment_id FROM crm_contact_segments WHERE contact_id = $1
	`, contactID)
	if err != nil {
		return nil, fmt.Errorf("list segments for contact: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type SegmentMembershipParams struct {
	SegmentID   uuid.UUID
	ContactID   uuid.UUID
	PerformedBy *uuid.UUID
	SegmentName string
}

// AddContactToSegment inserts a membership row, bumps the cached contact
// count and appends the segment_added activity in one transaction.
// Adding a contact that is already a member is a conflict; nothing is
// written in that case.
func (r *Repository) AddContactToSegment(ctx context.Context, params SegmentMembershipParams) (Activity, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Activity{}, apperr.Persistence("begin add to segment", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		INSERT INTO crm_contact_segments (contact_id, segment_id, added_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (contact_id, segment_id) DO NOTHING
	`, params.ContactID, params.SegmentID, params.PerformedBy)
	if err != nil {
		return Activity{}, apperr.Persistence("add contact to segment", err)
	}
	if result.RowsAffected() == 0 {
		return Activity{}, apperr.Conflict("contact already in segment")
	}

	if _, err := tx.Exec(ctx, `
		UPDATE crm_segments SET contact_count = contact_count + 1, updated_at = now()
		WHERE id = $1
	`, params.SegmentID); err != nil {
		return Activity{}, apperr.Persistence("bump segment contact count", err)
	}

	activity, err := insertActivity(ctx, tx, CreateActivityParams{
		ContactID:    params.ContactID,
		ActivityType: domain.ActivityTypeSegmentAdded,
		Title:        "Added to segment " + params.SegmentName,
		Metadata: map[string]any{
			"segment_id":   params.SegmentID.String(),
			"segment_name": params.SegmentName,
		},
		PerformedBy:       params.PerformedBy,
		IsSystemGenerated: true,
	})
	if err != nil {
		return Activity{}, apperr.Persistence("record segment_added activity", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Activity{}, apperr.Persistence("commit add to segment", err)
	}
	return activity, nil
}

// RemoveContactFromSegment deletes a membership row, lowers the cached
// contact count and appends the segment_removed activity in one
// transaction.
func (r *Repository) RemoveContactFromSegment(ctx context.Context, params SegmentMembershipParams) (Activity, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Activity{}, apperr.Persistence("begin remove from segment", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		DELETE FROM crm_contact_segments
		WHERE contact_id = $1 AND segment_id = $2
	`, params.ContactID, params.SegmentID)
	if err != nil {
		return Activity{}, apperr.Persistence("remove contact from segment", err)
	}
	if result.RowsAffected() == 0 {
		return Activity{}, apperr.NotFound("contact not in segment")
	}

	if _, err := tx.Exec(ctx, `
		UPDATE crm_segments
		SET contact_count = GREATEST(contact_count - 1, 0), updated_at = now()
		WHERE id = $1
	`, params.SegmentID); err != nil {
		return Activity{}, apperr.Persistence("lower segment contact count", err)
	}

	activity, err := insertActivity(ctx, tx, CreateActivityParams{
		ContactID:    params.ContactID,
		ActivityType: domain.ActivityTypeSegmentRemoved,
		Title:        "Removed from segment " + params.SegmentName,
		Metadata: map[string]any{
			"segment_id":   params.SegmentID.String(),
			"segment_name": params.SegmentName,
		},
		PerformedBy:       params.PerformedBy,
		IsSystemGenerated: true,
	})
	if err != nil {
		return Activity{}, apperr.Persistence("record segment_removed activity", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Activity{}, apperr.Persistence("commit remove from segment", err)
	}
	return activity, nil
}
