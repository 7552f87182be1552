package domain

import (
	"context"
	"errors"
	"time"

	"github.com/hmoscout/hmoscout/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository is the persistence collaborator for enriched properties. The
// unique constraint on (postcode, external_id) is the authoritative dedup
// guard; callers treat duplicate-key errors as "row already exists".
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Property) error
	Save(ctx context.Context, db *gorm.DB, p *Property) error
	FindByNaturalKey(ctx context.Context, db *gorm.DB, postcode, externalID string) (*Property, error)
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Property, error)
	// ListEnrichmentBacklog returns non-stale rows still missing key fields
	// (no purchase price or never scored), oldest first, capped to limit.
	ListEnrichmentBacklog(ctx context.Context, db *gorm.DB, limit int) ([]*Property, error)
	// MarkStaleBefore soft-deletes rows unseen since cutoff and returns the
	// number of rows flagged. Nothing is ever physically removed.
	MarkStaleBefore(ctx context.Context, db *gorm.DB, cutoff, now time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Property, error)
}

type ListFilter struct {
	Classification Classification
	MinScore       int
	IncludeStale   bool
	City           string
}

var (
	ErrNotFound   = errors.New("property_not_found")
	ErrInvalidKey = errors.New("invalid_natural_key")
)
