package repository

import (
	"context"
	"database/sql"

	"github.com/bee-cms/bee/internal/database"
	"github.com/bee-cms/bee/internal/models"
)

type legacyURLRepo struct {
	db *database.DB
}

// NewLegacyURLRepo creates a new legacy URL repository
func NewLegacyURLRepo(db *database.DB) LegacyURLRepository {
	return &legacyURLRepo{db: db}
}

// Create inserts a new legacy URL mapping
func (r *legacyURLRepo) Create(ctx context.Context, legacy *models.PostLegacyURL) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO post_legacy_urls (id, post_id, netloc, path) VALUES ($1, $2, $3, $4)`,
		legacy.ID, legacy.PostID, legacy.Netloc, legacy.Path,
	)
	return mapError(err)
}

// GetByPostID retrieves the legacy URL recorded for a post
func (r *legacyURLRepo) GetByPostID(ctx context.Context, postID string) (*models.PostLegacyURL, error) {
	return r.getOne(ctx,
		`SELECT id, post_id, netloc, path FROM post_legacy_urls WHERE post_id = $1 ORDER BY id LIMIT 1`, postID)
}

// GetByLocation retrieves the mapping for an old (netloc, path) pair
func (r *legacyURLRepo) GetByLocation(ctx context.Context, netloc, path string) (*models.PostLegacyURL, error) {
	return r.getOne(ctx,
		`SELECT id, post_id, netloc, path FROM post_legacy_urls WHERE netloc = $1 AND path = $2`, netloc, path)
}

func (r *legacyURLRepo) getOne(ctx context.Context, query string, args ...interface{}) (*models.PostLegacyURL, error) {
	var legacy models.PostLegacyURL
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&legacy.ID, &legacy.PostID, &legacy.Netloc, &legacy.Path)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &legacy, nil
}
