// Package repository provides database operations for the CRM engine.
package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides database operations for contacts, segments,
// scoring, deals, activities and tasks.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new CRM repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// rowScanner is satisfied by pgx.Rows and pgx.Row so scan helpers can be
// shared between single-row and multi-row queries.
type rowScanner interface {
	Scan(dest ...any) error
}

// pgxRows is the subset of pgx.Rows the collect helpers need.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}
