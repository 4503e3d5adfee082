package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bee-cms/bee/internal/database"
	"github.com/bee-cms/bee/internal/models"
)

type assetRepo struct {
	db *database.DB
}

// NewAssetRepo creates a new asset repository
func NewAssetRepo(db *database.DB) AssetRepository {
	return &assetRepo{db: db}
}

const assetColumns = `id, author_id, original_url, storage_name, url, created_at`

// Create inserts a new asset
func (r *assetRepo) Create(ctx context.Context, asset *models.Asset) error {
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (`+assetColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
	`, asset.ID, asset.AuthorID, asset.OriginalURL, asset.StorageName, asset.URL, asset.CreatedAt)
	return mapError(err)
}

// GetByOriginalURL retrieves the author's asset resolved from originalURL
func (r *assetRepo) GetByOriginalURL(ctx context.Context, authorID, originalURL string) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE author_id = $1 AND original_url = $2`,
		authorID, originalURL,
	).Scan(&asset.ID, &asset.AuthorID, &asset.OriginalURL, &asset.StorageName, &asset.URL, &asset.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// AttachToPost records that a post references the asset
func (r *assetRepo) AttachToPost(ctx context.Context, assetID, postID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO asset_posts (asset_id, post_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		assetID, postID,
	)
	return err
}

// ListForPost returns the assets a post references
func (r *assetRepo) ListForPost(ctx context.Context, postID string) ([]*models.Asset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.author_id, a.original_url, a.storage_name, a.url, a.created_at
		FROM assets a JOIN asset_posts ap ON ap.asset_id = a.id
		WHERE ap.post_id = $1
		ORDER BY a.created_at, a.id
	`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		var asset models.Asset
		if err := rows.Scan(&asset.ID, &asset.AuthorID, &asset.OriginalURL, &asset.StorageName, &asset.URL, &asset.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, &asset)
	}
	return assets, rows.Err()
}

// Count returns the total number of assets
func (r *assetRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assets").Scan(&count)
	return count, err
}
