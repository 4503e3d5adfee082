package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bee-cms/bee/internal/database"
	"github.com/bee-cms/bee/internal/models"
)

type avatarRepo struct {
	db *database.DB
}

// NewAvatarRepo creates a new avatar repository
func NewAvatarRepo(db *database.DB) AvatarRepository {
	return &avatarRepo{db: db}
}

// Create inserts a new avatar
func (r *avatarRepo) Create(ctx context.Context, avatar *models.Avatar) error {
	if avatar.CreatedAt.IsZero() {
		avatar.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO avatars (id, user_id, name, storage_name, url, width, height, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		avatar.ID, avatar.UserID, avatar.Name, avatar.StorageName, avatar.URL,
		avatar.Width, avatar.Height, avatar.CreatedAt,
	)
	return mapError(err)
}

// GetByName retrieves a user's avatar by name
func (r *avatarRepo) GetByName(ctx context.Context, userID, name string) (*models.Avatar, error) {
	var avatar models.Avatar
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, storage_name, url, width, height, created_at
		FROM avatars WHERE user_id = $1 AND name = $2
	`, userID, name).Scan(
		&avatar.ID, &avatar.UserID, &avatar.Name, &avatar.StorageName, &avatar.URL,
		&avatar.Width, &avatar.Height, &avatar.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &avatar, nil
}
