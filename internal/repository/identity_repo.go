package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bee-cms/bee/internal/database"
	"github.com/bee-cms/bee/internal/models"
)

type identityRepo struct {
	db *database.DB
}

// NewIdentityRepo creates a new identity repository
func NewIdentityRepo(db *database.DB) IdentityRepository {
	return &identityRepo{db: db}
}

// Create inserts a new identity, bound to a user when UserID is set
func (r *identityRepo) Create(ctx context.Context, identity *models.Identity) error {
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, identifier, user_id, created_at) VALUES ($1, $2, $3, $4)`,
		identity.ID, identity.Identifier, nullString(identity.UserID), identity.CreatedAt,
	)
	return mapError(err)
}

// BindUser attaches the identity to a local user
func (r *identityRepo) BindUser(ctx context.Context, identityID, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE identities SET user_id = $1 WHERE id = $2`, userID, identityID)
	return err
}

// GetByIdentifier retrieves an identity by its external identifier
func (r *identityRepo) GetByIdentifier(ctx context.Context, identifier string) (*models.Identity, error) {
	var identity models.Identity
	var userID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, identifier, user_id, created_at FROM identities WHERE identifier = $1`, identifier,
	).Scan(&identity.ID, &identity.Identifier, &userID, &identity.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	identity.UserID = userID.String
	return &identity, nil
}
