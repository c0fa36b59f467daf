package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/embermatch/engine/internal/db"
)

// BlockRepository provides data access methods for the Block model.
type BlockRepository struct {
	db *gorm.DB
}

// NewBlockRepository creates a new repository bound to the given DB connection.
func NewBlockRepository(database *gorm.DB) *BlockRepository {
	return &BlockRepository{db: database}
}

// Create inserts the directed block edge. Re-blocking the same user returns
// the existing row rather than erroring.
func (r *BlockRepository) Create(ctx context.Context, blockerID, blockedID uint64) (*db.Block, error) {
	block := db.Block{BlockerID: blockerID, BlockedID: blockedID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blocker_id"}, {Name: "blocked_id"}},
			DoNothing: true,
		}).
		Create(&block).Error
	if err != nil {
		return nil, err
	}
	if block.ID == 0 {
		// conflict: fetch the existing edge
		err = r.db.WithContext(ctx).
			Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
			First(&block).Error
		if err != nil {
			return nil, err
		}
	}
	return &block, nil
}

// GetByID returns the block row; gorm.ErrRecordNotFound when absent.
func (r *BlockRepository) GetByID(ctx context.Context, id uint64) (*db.Block, error) {
	var block db.Block
	if err := r.db.WithContext(ctx).First(&block, id).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

// Delete removes the block row by id.
func (r *BlockRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&db.Block{}, id).Error
}

// IsBlocked reports whether a block exists between the two users in either
// direction. The relation is symmetric in effect though stored directed.
func (r *BlockRepository) IsBlocked(ctx context.Context, userX, userY uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)",
			userX, userY, userY, userX).
		Count(&count).Error
	return count > 0, err
}

// RelatedIDs returns every user in a block relation with the given user,
// regardless of which side issued the block.
func (r *BlockRepository) RelatedIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Raw(`
		SELECT blocked_id AS id FROM blocks WHERE blocker_id = ?
		UNION
		SELECT blocker_id AS id FROM blocks WHERE blocked_id = ?`,
		userID, userID).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
