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

const contactNotFoundMsg = "contact not found"

// Contact is the database model for a CRM contact.
type Contact struct {
	ID                uuid.UUID
	Email             *string
	FirstName         *string
	LastName          *string
	Phone             *string
	Company           *string
	JobTitle          *string
	City              *string
	Country           string
	Status            string
	Source            string
	LeadScore         int
	LifetimeValue     float64
	AssignedTo        *uuid.UUID
	Tags              []string
	Notes             *string
	TotalInteractions int
	LastInteractionAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Attributes projects the contact onto the rule evaluator's view.
func (c Contact) Attributes() domain.ContactAttributes {
	attrs := domain.ContactAttributes{
		Status:            c.Status,
		Source:            c.Source,
		Country:           c.Country,
		LeadScore:         c.LeadScore,
		LifetimeValue:     c.LifetimeValue,
		TotalInteractions: c.TotalInteractions,
		Tags:              c.Tags,
		CreatedAt:         c.CreatedAt,
		LastInteractionAt: c.LastInteractionAt,
	}
	if c.Email != nil {
		attrs.Email = *c.Email
	}
	if c.Company != nil {
		attrs.Company = *c.Company
	}
	if c.City != nil {
		attrs.City = *c.City
	}
	return attrs
}

type CreateContactParams struct {
	Email         *string
	FirstName     *string
	LastName      *string
	Phone         *string
	Company       *string
	JobTitle      *string
	City          *string
	Country       string
	Status        string
	Source        string
	LeadScore     int
	LifetimeValue float64
	AssignedTo    *uuid.UUID
	Tags          []string
	Notes         *string
}

type UpdateContactParams struct {
	ID            uuid.UUID
	Email         *string
	FirstName     *string
	LastName      *string
	Phone         *string
	Company       *string
	JobTitle      *string
	City          *string
	Country       *string
	Status        *string
	Source        *string
	LifetimeValue *float64
	AssignedTo    *uuid.UUID
	Tags          []string
	Notes         *string
}

// ListContactsParams contains filters for listing contacts.
type ListContactsParams struct {
	Status     *string
	Source     *string
	AssignedTo *uuid.UUID
	Search     string
	MinScore   *int
	MaxScore   *int
	Page       int
	PageSize   int
}

// ListContactsResult contains the paginated result of listing contacts.
type ListContactsResult struct {
	Items      []Contact
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

const contactSelectCols = `
	id, email, first_name, last_name, phone, company, job_title, city, country,
	status, source, lead_score, lifetime_value, assigned_to, tags, notes,
	total_interactions, last_interaction_at, created_at, updated_at`

// contactJoinSelectCols is the same column list qualified for queries
// joining crm_contacts as c.
const contactJoinSelectCols = `
	c.id, c.email, c.first_name, c.last_name, c.phone, c.company, c.job_title, c.city, c.country,
	c.status, c.source, c.lead_score, c.lifetime_value, c.assigned_to, c.tags, c.notes,
	c.total_interactions, c.last_interaction_at, c.created_at, c.updated_at`

func scanContact(s rowScanner) (Contact, error) {
	var c Contact
	if err := s.Scan(
		&c.ID,
		&c.Email,
		&c.FirstName,
		&c.LastName,
		&c.Phone,
		&c.Company,
		&c.JobTitle,
		&c.City,
		&c.Country,
		&c.Status,
		&c.Source,
		&c.LeadScore,
		&c.LifetimeValue,
		&c.AssignedTo,
		&c.Tags,
		&c.Notes,
		&c.TotalInteractions,
		&c.LastInteractionAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Contact{}, err
	}
	return c, nil
}

func collectContacts(rows pgxRows) ([]Contact, error) {
	items := make([]Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateContact inserts a contact and returns the stored row.
func (r *Repository) CreateContact(ctx context.Context, params CreateContactParams) (Contact, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO crm_contacts (
			email, first_name, last_name, phone, company, job_title, city, country,
			status, source, lead_score, lifetime_value, assigned_to, tags, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING`+contactSelectCols+`
	`, params.Email, params.FirstName, params.LastName, params.Phone, params.Company,
		params.JobTitle, params.City, params.Country, params.Status, params.Source,
		params.LeadScore, params.LifetimeValue, params.AssignedTo, params.Tags, params.Notes)

	c, err := scanContact(row)
	if err != nil {
		return Contact{}, fmt.Errorf("create contact: %w", err)
	}
	return c, nil
}

// GetContactByID retrieves a contact by id.
func (r *Repository) GetContactByID(ctx context.Context, id uuid.UUID) (Contact, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+contactSelectCols+`
		FROM crm_contacts
		WHERE id = $1
	`, id)

	c, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, apperr.NotFound(contactNotFoundMsg)
		}
		return Contact{}, fmt.Errorf("get contact by id: %w", err)
	}
	return c, nil
}

// UpdateContact applies a partial update to a contact's profile fields.
// The lead score is never touched here; score mutations go through
// ApplyScoreChange so that history and audit writes stay atomic.
func (r *Repository) UpdateContact(ctx context.Context, params UpdateContactParams) (Contact, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE crm_contacts SET
			email = COALESCE($2, email),
			first_name = COALESCE($3, first_name),
			last_name = COALESCE($4, last_name),
			phone = COALESCE($5, phone),
			company = COALESCE($6, company),
			job_title = COALESCE($7, job_title),
			city = COALESCE($8, city),
			country = COALESCE($9, country),
			status = COALESCE($10, status),
			source = COALESCE($11, source),
			lifetime_value = COALESCE($12, lifetime_value),
			assigned_to = COALESCE($13, assigned_to),
			tags = COALESCE($14, tags),
			notes = COALESCE($15, notes),
			updated_at = now()
		WHERE id = $1
		RETURNING`+contactSelectCols+`
	`, params.ID, params.Email, params.FirstName, params.LastName, params.Phone,
		params.Company, params.JobTitle, params.City, params.Country, params.Status,
		params.Source, params.LifetimeValue, params.AssignedTo, params.Tags, params.Notes)

	c, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, apperr.NotFound(contactNotFoundMsg)
		}
		return Contact{}, fmt.Errorf("update contact: %w", err)
	}
	return c, nil
}

// TouchContactInteraction bumps the interaction counters after an
// engagement event.
func (r *Repository) TouchContactInteraction(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE crm_contacts
		SET total_interactions = total_interactions + 1,
			last_interaction_at = $2,
			updated_at = now()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("touch contact interaction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(contactNotFoundMsg)
	}
	return nil
}

// ListContacts returns a filtered, paginated page of contacts ordered by
// creation time descending.
func (r *Repository) ListContacts(ctx context.Context, params ListContactsParams) (ListContactsResult, error) {
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

	if params.Status != nil {
		where += " AND status = " + next(*params.Status)
	}
	if params.Source != nil {
		where += " AND source = " + next(*params.Source)
	}
	if params.AssignedTo != nil {
		where += " AND assigned_to = " + next(*params.AssignedTo)
	}
	if params.MinScore != nil {
		where += " AND lead_score >= " + next(*params.MinScore)
	}
	if params.MaxScore != nil {
		where += " AND lead_score <= " + next(*params.MaxScore)
	}
	if params.Search != "" {
		p := next("%" + params.Search + "%")
		where += fmt.Sprintf(" AND (email ILIKE %s OR first_name ILIKE %s OR last_name ILIKE %s OR company ILIKE %s)", p, p, p, p)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM crm_contacts "+where, args...).Scan(&total); err != nil {
		return ListContactsResult{}, fmt.Errorf("count contacts: %w", err)
	}

	limit := next(params.PageSize)
	offset := next((params.Page - 1) * params.PageSize)
	rows, err := r.pool.Query(ctx, `
		SELECT`+contactSelectCols+`
		FROM crm_contacts `+where+`
		ORDER BY created_at DESC
		LIMIT `+limit+` OFFSET `+offset,
		args...)
	if err != nil {
		return ListContactsResult{}, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	items, err := collectContacts(rows)
	if err != nil {
		return ListContactsResult{}, fmt.Errorf("list contacts: %w", err)
	}

	totalPages := (total + params.PageSize - 1) / params.PageSize
	return ListContactsResult{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}, nil
}

// ListContactsAfter returns up to limit contacts with id greater than
// afterID, ordered by id. It is the keyset scan used by dynamic segment
// evaluation so large contact sets can be walked in bounded batches.
func (r *Repository) ListContactsAfter(ctx context.Context, afterID uuid.UUID, limit int) ([]Contact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+contactSelectCols+`
		FROM crm_contacts
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list contacts after: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

// ListContactsByIDs returns the contacts matching the given ids. Missing
// ids are silently skipped.
func (r *Repository) ListContactsByIDs(ctx context.Context, ids []uuid.UUID) ([]Contact, error) {
	if len(ids) == 0 {
		return []Contact{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+contactSelectCols+`
		FROM crm_contacts
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list contacts by ids: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

// DeleteContact removes a contact. Membership rows, history, activities
// and tasks cascade at the schema level.
func (r *Repository) DeleteContact(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM crm_contacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(contactNotFoundMsg)
	}
	return nil
}
