package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hmoscout/hmoscout/internal/property/domain"
	"github.com/hmoscout/hmoscout/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Property) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, p *domain.Property) error {
	return db.WithContext(ctx).Save(p).Error
}

func (r *repo) FindByNaturalKey(ctx context.Context, db *gorm.DB, postcode, externalID string) (*domain.Property, error) {
	postcode = strings.ToUpper(strings.Join(strings.Fields(postcode), " "))
	externalID = strings.TrimSpace(externalID)
	if postcode == "" || externalID == "" {
		return nil, domain.ErrInvalidKey
	}

	var p domain.Property
	err := db.WithContext(ctx).
		Where("postcode = ? AND external_id = ?", postcode, externalID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Property, error) {
	var p domain.Property
	err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) ListEnrichmentBacklog(ctx context.Context, db *gorm.DB, limit int) ([]*domain.Property, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []*domain.Property
	err := db.WithContext(ctx).
		Where("is_stale = ?", false).
		Where("purchase_price IS NULL OR is_potential_hmo IS NULL").
		Order("last_seen_at asc, id asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) MarkStaleBefore(ctx context.Context, db *gorm.DB, cutoff, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Property{}).
		Where("is_stale = ?", false).
		Where("last_seen_at < ?", cutoff).
		Updates(map[string]any{
			"is_stale":   true,
			"stale_at":   now,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Property, error) {
	var rows []*domain.Property
	stmt := db.WithContext(ctx).Model(&domain.Property{})
	if !filter.IncludeStale {
		stmt = stmt.Where("is_stale = ?", false)
	}
	if filter.Classification != "" {
		stmt = stmt.Where("classification = ?", filter.Classification)
	}
	if filter.MinScore > 0 {
		stmt = stmt.Where("deal_score >= ?", filter.MinScore)
	}
	if filter.City != "" {
		stmt = stmt.Where("city = ?", filter.City)
	}

	limit := page.PageSize
	if limit <= 0 {
		limit = 50
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		if cursor.ID != "" && cursor.Score != nil {
			stmt = stmt.Where("deal_score < ? OR (deal_score = ? AND id < ?)",
				*cursor.Score, *cursor.Score, cursor.ID)
		} else if cursor.ID != "" {
			stmt = stmt.Where("id < ?", cursor.ID)
		}
	}

	err := stmt.
		Order("deal_score desc, id desc").
		Limit(limit + 1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
