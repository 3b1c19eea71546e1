package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrChildNotFound = errors.New("child not found")

// LinkRepository reads the child↔parent link rows owned by the external
// linking flow. This service never writes them.
type LinkRepository interface {
	IsLinked(ctx context.Context, childID, parentID int64) (bool, error)
	PrimaryParent(ctx context.Context, childID int64) (int64, error)
}

// LinkRepo is a sqlx implementation of LinkRepository.
type LinkRepo struct {
	db *sqlx.DB
}

// NewLinkRepo constructs a LinkRepo.
func NewLinkRepo(db *sqlx.DB) *LinkRepo {
	return &LinkRepo{db: db}
}

// IsLinked reports whether the parent is linked to the child record.
func (r *LinkRepo) IsLinked(ctx context.Context, childID, parentID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM child_links WHERE child_id=$1 AND parent_id=$2)`,
		childID, parentID)
	return exists, err
}

// PrimaryParent resolves the child's primary linked parent.
func (r *LinkRepo) PrimaryParent(ctx context.Context, childID int64) (int64, error) {
	var parentID int64
	err := r.db.GetContext(ctx, &parentID,
		`SELECT parent_id FROM child_links WHERE child_id=$1 ORDER BY is_primary DESC, parent_id LIMIT 1`,
		childID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrChildNotFound
	}
	return parentID, err
}
