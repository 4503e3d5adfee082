package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bee-cms/bee/internal/database"
	"github.com/bee-cms/bee/internal/models"
	"github.com/lib/pq"
)

type trustGroupRepo struct {
	db *database.DB
}

// NewTrustGroupRepo creates a new trust group repository
func NewTrustGroupRepo(db *database.DB) TrustGroupRepository {
	return &trustGroupRepo{db: db}
}

// Create inserts a new trust group
func (r *trustGroupRepo) Create(ctx context.Context, group *models.TrustGroup) error {
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO trust_groups (id, user_id, tag, display_name, created_at) VALUES ($1, $2, $3, $4, $5)`,
		group.ID, group.UserID, group.Tag, group.DisplayName, group.CreatedAt,
	)
	return mapError(err)
}

// GetByTag retrieves the owner's group with the given tag
func (r *trustGroupRepo) GetByTag(ctx context.Context, userID, tag string) (*models.TrustGroup, error) {
	var group models.TrustGroup
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, tag, display_name, created_at FROM trust_groups WHERE user_id = $1 AND tag = $2`,
		userID, tag,
	).Scan(&group.ID, &group.UserID, &group.Tag, &group.DisplayName, &group.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// SetMemberships replaces the identity's memberships among the owner's groups
func (r *trustGroupRepo) SetMemberships(ctx context.Context, ownerID, identityID string, groupIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM trust_group_members
		WHERE identity_id = $1
		  AND group_id IN (SELECT id FROM trust_groups WHERE user_id = $2)
	`, identityID, ownerID)
	if err != nil {
		return err
	}

	if len(groupIDs) > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trust_group_members (group_id, identity_id)
			SELECT DISTINCT unnest($1::uuid[]), $2::uuid
			ON CONFLICT DO NOTHING
		`, pq.Array(groupIDs), identityID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListMembers returns the identity IDs in a group
func (r *trustGroupRepo) ListMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT identity_id FROM trust_group_members WHERE group_id = $1 ORDER BY identity_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
