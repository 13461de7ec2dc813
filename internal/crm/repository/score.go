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

const scoreRuleNotFoundMsg = "score rule not found"

// LeadScoreRule is reference data matched against engagement events.
type LeadScoreRule struct {
	ID              uuid.UUID
	Name            string
	Description     *string
	EventType       string
	ScoreChange     int
	MaxApplications *int
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LeadScoreHistoryEntry is one immutable audit record of a score change.
// ScoreChange holds the requested delta; the applied delta is
// NewScore - PreviousScore, which differs when clamping kicked in.
type LeadScoreHistoryEntry struct {
	ID            uuid.UUID
	ContactID     uuid.UUID
	RuleID        *uuid.UUID
	PreviousScore int
	ScoreChange   int
	NewScore      int
	Reason        *string
	EventKey      *string
	CreatedAt     time.Time
}

type CreateScoreRuleParams struct {
	Name            string
	Description     *string
	EventType       string
	ScoreChange     int
	MaxApplications *int
	IsActive        bool
}

type UpdateScoreRuleParams struct {
	ID              uuid.UUID
	Name            *string
	Description     *string
	EventType       *string
	ScoreChange     *int
	MaxApplications *int
	IsActive        *bool
}

const scoreRuleSelectCols = `
	id, name, description, event_type, score_change, max_applications, is_active,
	created_at, updated_at`

func scanScoreRule(s rowScanner) (LeadScoreRule, error) {
	var rule LeadScoreRule
	if err := s.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.EventType,
		&rule.ScoreChange,
		&rule.MaxApplications,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return LeadScoreRule{}, err
	}
	return rule, nil
}

// CreateScoreRule inserts a scoring rule.
func (r *Repository) CreateScoreRule(ctx context.Context, params CreateScoreRuleParams) (LeadScoreRule, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO crm_lead_score_rules (name, description, event_type, score_change, max_applications, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING`+scoreRuleSelectCols+`
	`, params.Name, params.Description, params.EventType, params.ScoreChange,
		params.MaxApplications, params.IsActive)

	rule, err := scanScoreRule(row)
	if err != nil {
		return LeadScoreRule{}, fmt.Errorf("create score rule: %w", err)
	}
	return rule, nil
}

// UpdateScoreRule applies a partial update to a scoring rule.
func (r *Repository) UpdateScoreRule(ctx context.Context, params UpdateScoreRuleParams) (LeadScoreRule, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE crm_lead_score_rules SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			event_type = COALESCE($4, event_type),
			score_change = COALESCE($5, score_change),
			max_applications = COALESCE($6, max_applications),
			is_active = COALESCE($7, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING`+scoreRuleSelectCols+`
	`, params.ID, params.Name, params.Description, params.EventType,
		params.ScoreChange, params.MaxApplications, params.IsActive)

	rule, err := scanScoreRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LeadScoreRule{}, apperr.NotFound(scoreRuleNotFoundMsg)
		}
		return LeadScoreRule{}, fmt.Errorf("update score rule: %w", err)
	}
	return rule, nil
}

// GetScoreRuleByID retrieves a scoring rule by id.
func (r *Repository) GetScoreRuleByID(ctx context.Context, id uuid.UUID) (LeadScoreRule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+scoreRuleSelectCols+`
		FROM crm_lead_score_rules
		WHERE id = $1
	`, id)

	rule, err := scanScoreRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LeadScoreRule{}, apperr.NotFound(scoreRuleNotFoundMsg)
		}
		return LeadScoreRule{}, fmt.Errorf("get score rule by id: %w", err)
	}
	return rule, nil
}

// ListScoreRules returns scoring rules, optionally only the active ones.
func (r *Repository) ListScoreRules(ctx context.Context, onlyActive bool) ([]LeadScoreRule, error) {
	query := `SELECT` + scoreRuleSelectCols + ` FROM crm_lead_score_rules`
	if onlyActive {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list score rules: %w", err)
	}
	defer rows.Close()

	items := make([]LeadScoreRule, 0)
	for rows.Next() {
		rule, err := scanScoreRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rule)
	}
	return items, rows.Err()
}

// ListScoreRulesByEventType returns the active rules matching an
// engagement event type.
func (r *Repository) ListScoreRulesByEventType(ctx context.Context, eventType string) ([]LeadScoreRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+scoreRuleSelectCols+`
		FROM crm_lead_score_rules
		WHERE event_type = $1 AND is_active = true
		ORDER BY name ASC
	`, eventType)
	if err != nil {
		return nil, fmt.Errorf("list score rules by event type: %w", err)
	}
	defer rows.Close()

	items := make([]LeadScoreRule, 0)
	for rows.Next() {
		rule, err := scanScoreRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rule)
	}
	return items, rows.Err()
}

const scoreHistorySelectCols = `
	id, contact_id, rule_id, previous_score, score_change, new_score, reason,
	event_key, created_at`

func scanScoreHistory(s rowScanner) (LeadScoreHistoryEntry, error) {
	var entry LeadScoreHistoryEntry
	if err := s.Scan(
		&entry.ID,
		&entry.ContactID,
		&entry.RuleID,
		&entry.PreviousScore,
		&entry.ScoreChange,
		&entry.NewScore,
		&entry.Reason,
		&entry.EventKey,
		&entry.CreatedAt,
	); err != nil {
		return LeadScoreHistoryEntry{}, err
	}
	return entry, nil
}

// ListScoreHistory returns a contact's score history, newest first.
func (r *Repository) ListScoreHistory(ctx context.Context, contactID uuid.UUID, limit int) ([]LeadScoreHistoryEntry, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+scoreHistorySelectCols+`
		FROM crm_lead_score_history
		WHERE contact_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, contactID, limit)
	if err != nil {
		return nil, fmt.Errorf("list score history: %w", err)
	}
	defer rows.Close()

	items := make([]LeadScoreHistoryEntry, 0)
	for rows.Next() {
		entry, err := scanScoreHistory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, entry)
	}
	return items, rows.Err()
}

type ApplyScoreChangeParams struct {
	ContactID uuid.UUID
	Delta     int
	Reason    *string
	RuleID    *uuid.UUID
	// EventKey deduplicates rule-triggered applications: a replayed
	// engagement event carries the same key and is skipped.
	EventKey *string
	// MaxApplications caps how many times the rule may fire for this
	// contact. Nil means unlimited.
	MaxApplications *int
	PerformedBy     *uuid.UUID
}

// ScoreChangeResult reports the outcome of ApplyScoreChange.
type ScoreChangeResult struct {
	Entry    LeadScoreHistoryEntry
	NewScore int
	// Applied is false when the change was skipped as a duplicate
	// event or because the rule's application cap was reached. The
	// contact's score is untouched in that case.
	Applied bool
}

// ApplyScoreChange atomically updates a contact's lead score, appends
// the history entry and the score_updated activity. The contact row is
// locked for the duration so concurrent deltas against the same contact
// serialize instead of losing updates.
func (r *Repository) ApplyScoreChange(ctx context.Context, params ApplyScoreChangeParams) (ScoreChangeResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ScoreChangeResult{}, apperr.Persistence("begin score change", err)
	}
	defer tx.Rollback(ctx)

	var previous int
	err = tx.QueryRow(ctx, `
		SELECT lead_score FROM crm_contacts WHERE id = $1 FOR UPDATE
	`, params.ContactID).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ScoreChangeResult{}, apperr.NotFound(contactNotFoundMsg)
		}
		return ScoreChangeResult{}, apperr.Persistence("lock contact for score change", err)
	}

	// Replayed event: return the original application untouched.
	if params.RuleID != nil && params.EventKey != nil {
		row := tx.QueryRow(ctx, `
			SELECT`+scoreHistorySelectCols+`
			FROM crm_lead_score_history
			WHERE contact_id = $1 AND rule_id = $2 AND event_key = $3
		`, params.ContactID, *params.RuleID, *params.EventKey)
		existing, err := scanScoreHistory(row)
		if err == nil {
			return ScoreChangeResult{Entry: existing, NewScore: previous, Applied: false}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return ScoreChangeResult{}, apperr.Persistence("check score event key", err)
		}
	}

	// Rule application cap.
	if params.RuleID != nil && params.MaxApplications != nil {
		var applications int
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM crm_lead_score_history
			WHERE contact_id = $1 AND rule_id = $2
		`, params.ContactID, *params.RuleID).Scan(&applications)
		if err != nil {
			return ScoreChangeResult{}, apperr.Persistence("count rule applications", err)
		}
		if applications >= *params.MaxApplications {
			return ScoreChangeResult{NewScore: previous, Applied: false}, nil
		}
	}

	newScore := domain.ClampScore(previous + params.Delta)

	if _, err := tx.Exec(ctx, `
		UPDATE crm_contacts SET lead_score = $2, updated_at = now() WHERE id = $1
	`, params.ContactID, newScore); err != nil {
		return ScoreChangeResult{}, apperr.Persistence("update lead score", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO crm_lead_score_history (contact_id, rule_id, previous_score, score_change, new_score, reason, event_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING`+scoreHistorySelectCols+`
	`, params.ContactID, params.RuleID, previous, params.Delta, newScore, params.Reason, params.EventKey)
	entry, err := scanScoreHistory(row)
	if err != nil {
		return ScoreChangeResult{}, apperr.Persistence("insert score history", err)
	}

	title := fmt.Sprintf("Lead score changed from %d to %d", previous, newScore)
	metadata := map[string]any{
		"previous_score": previous,
		"new_score":      newScore,
		"score_change":   params.Delta,
	}
	if params.RuleID != nil {
		metadata["rule_id"] = params.RuleID.String()
	}
	if _, err := insertActivity(ctx, tx, CreateActivityParams{
		ContactID:         params.ContactID,
		ActivityType:      domain.ActivityTypeScoreUpdated,
		Title:             title,
		Description:       params.Reason,
		Metadata:          metadata,
		PerformedBy:       params.PerformedBy,
		IsSystemGenerated: true,
	}); err != nil {
		return ScoreChangeResult{}, apperr.Persistence("record score_updated activity", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ScoreChangeResult{}, apperr.Persistence("commit score change", err)
	}
	return ScoreChangeResult{Entry: entry, NewScore: newScore, Applied: true}, nil
}
