package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/embermatch/engine/internal/db"
	"github.com/embermatch/engine/internal/utils/pagination"
)

// ActionRepository provides data access methods for the Action model.
// It encapsulates all queries related to likes/passes/super-likes.
type ActionRepository struct {
	db *gorm.DB
}

// NewActionRepository creates a new repository bound to the given DB connection.
func NewActionRepository(database *gorm.DB) *ActionRepository {
	return &ActionRepository{db: database}
}

// Upsert inserts or replaces the action made by actor -> target.
//
// Behavior:
//   - If the (actor_id, target_id) pair exists, the row is updated with the
//     new kind and is_unmatched is cleared (an action is an upsert, never an
//     append).
//   - Composite PK ensures the overwrite guarantee; a resubmission is
//     therefore naturally idempotent.
func (r *ActionRepository) Upsert(ctx context.Context, actorID, targetID uint64, kind string) (*db.Action, error) {
	action := db.Action{
		ActorID:  actorID,
		TargetID: targetID,
		Kind:     kind,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"kind":         kind,
				"is_unmatched": false,
				"updated_at":   time.Now().UTC(),
			}),
		}).
		Create(&action).Error
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, actorID, targetID)
}

// Get returns the action for the ordered pair, or nil when none exists.
func (r *ActionRepository) Get(ctx context.Context, actorID, targetID uint64) (*db.Action, error) {
	var action db.Action
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ?", actorID, targetID).
		First(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

// Delete removes the action row for the ordered pair.
func (r *ActionRepository) Delete(ctx context.Context, actorID, targetID uint64) error {
	return r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ?", actorID, targetID).
		Delete(&db.Action{}).Error
}

// SetUnmatched flags both directions of the pair as unmatched, permanently
// removing the pair from mutual-match and exclusion computations.
func (r *ActionRepository) SetUnmatched(ctx context.Context, userA, userB uint64) error {
	return r.db.WithContext(ctx).
		Model(&db.Action{}).
		Where("(actor_id = ? AND target_id = ?) OR (actor_id = ? AND target_id = ?)",
			userA, userB, userB, userA).
		Update("is_unmatched", true).Error
}

// HasPositive checks whether actor has a live like/super-like on target.
func (r *ActionRepository) HasPositive(ctx context.Context, actorID, targetID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Action{}).
		Where("actor_id = ? AND target_id = ? AND kind IN ? AND is_unmatched = false",
			actorID, targetID, []string{db.ActionLike, db.ActionSuperLike}).
		Count(&count).Error
	return count > 0, err
}

// IsMutual reports whether a mutual match currently holds between the pair:
// both directions like/super_like and neither unmatched.
func (r *ActionRepository) IsMutual(ctx context.Context, userA, userB uint64) (bool, error) {
	forward, err := r.HasPositive(ctx, userA, userB)
	if err != nil || !forward {
		return false, err
	}
	return r.HasPositive(ctx, userB, userA)
}

// ExclusionIDs computes the viewer's exclusion set from the actions table:
// every target the viewer has judged (non-unmatched) plus every actor who
// passed on the viewer. Passes hide symmetrically; incoming likes do not.
func (r *ActionRepository) ExclusionIDs(ctx context.Context, viewerID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Raw(`
		SELECT target_id AS id FROM actions
		WHERE actor_id = ? AND is_unmatched = false
		UNION
		SELECT actor_id AS id FROM actions
		WHERE target_id = ? AND kind = 'pass' AND is_unmatched = false`,
		viewerID, viewerID).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Admirers returns users with a live like/super-like on the viewer.
//
// Behavior:
//   - Excludes actors the viewer explicitly passed (not unmatched).
//   - Excludes actors in a block relation with the viewer, either direction.
//   - With newOnly, excludes admirers the viewer already liked back.
//   - Ordered by updated_at DESC, actor_id DESC; cursor-paginated.
func (r *ActionRepository) Admirers(
	ctx context.Context,
	viewerID uint64,
	newOnly bool,
	paginationToken *string,
	limit int,
) ([]db.Action, *string, error) {
	var actions []db.Action

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.admirerQuery(ctx, viewerID).
		Order("a.updated_at DESC, a.actor_id DESC").
		Limit(limit + 1)

	if newOnly {
		query = query.Where(`
			NOT EXISTS (
				SELECT 1 FROM actions a3
				WHERE a3.actor_id = a.target_id
				  AND a3.target_id = a.actor_id
				  AND a3.kind IN ('like', 'super_like')
				  AND a3.is_unmatched = false
			)`)
	}

	if cursor.ActorID > 0 && cursor.UpdatedUnix > 0 {
		ts := time.UnixMilli(cursor.UpdatedUnix)
		query = query.Where(
			"(a.updated_at < ? OR (a.updated_at = ? AND a.actor_id < ?))",
			ts, ts, cursor.ActorID,
		)
	}

	if err := query.Find(&actions).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(actions) > limit {
		last := actions[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ActorID:     last.ActorID,
			UpdatedUnix: last.UpdatedAt.UnixMilli(),
		})
		nextToken = &token
		actions = actions[:limit]
	}

	return actions, nextToken, nil
}

// CountAdmirers returns how many users have a live like/super-like on the
// viewer, under the same exclusions as Admirers.
func (r *ActionRepository) CountAdmirers(ctx context.Context, viewerID uint64) (int64, error) {
	var count int64
	err := r.admirerQuery(ctx, viewerID).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ActionRepository) admirerQuery(ctx context.Context, viewerID uint64) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("actions a").
		Where("a.target_id = ? AND a.kind IN ? AND a.is_unmatched = false",
			viewerID, []string{db.ActionLike, db.ActionSuperLike}).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM actions a2
				WHERE a2.actor_id = ?
				  AND a2.target_id = a.actor_id
				  AND a2.kind = 'pass'
				  AND a2.is_unmatched = false
			)`, viewerID).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE (b.blocker_id = ? AND b.blocked_id = a.actor_id)
				   OR (b.blocker_id = a.actor_id AND b.blocked_id = ?)
			)`, viewerID, viewerID)
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
