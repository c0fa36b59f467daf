// Package blocks implements the block registry. A block is stored as a
// directed edge owned by the blocker, but its effect is symmetric: either
// direction voids visibility and interaction both ways.
package blocks

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/embermatch/engine/internal/app"
	"github.com/embermatch/engine/internal/apperr"
	"github.com/embermatch/engine/internal/db"
	"github.com/embermatch/engine/internal/repository"
)

type Service struct {
	appCtx    *app.AppContext
	blockRepo *repository.BlockRepository
	userRepo  *repository.UserRepository
}

// NewService creates the block registry with dependencies from AppContext.
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:    appCtx,
		blockRepo: repository.NewBlockRepository(appCtx.DB),
		userRepo:  repository.NewUserRepository(appCtx.DB),
	}
}

// Create blocks blockedID on behalf of blockerID. Idempotent: re-blocking
// returns the existing edge.
func (s *Service) Create(ctx context.Context, blockerID, blockedID uint64) (*db.Block, error) {
	if blockerID == 0 || blockedID == 0 {
		return nil, apperr.Validation("blocker_id and blocked_id are required")
	}
	if blockerID == blockedID {
		return nil, apperr.Validation("cannot block yourself")
	}
	if _, err := s.userRepo.Get(ctx, blockedID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("blocked user not found")
		}
		return nil, err
	}

	block, err := s.blockRepo.Create(ctx, blockerID, blockedID)
	if err != nil {
		return nil, err
	}

	// A block hides both users from each other immediately.
	_ = s.appCtx.RedisCache.AddExclusion(ctx, blockerID, blockedID)
	_ = s.appCtx.RedisCache.AddExclusion(ctx, blockedID, blockerID)
	_ = s.appCtx.RedisCache.InvalidateAdmirerCount(ctx, blockerID)
	_ = s.appCtx.RedisCache.InvalidateAdmirerCount(ctx, blockedID)

	return block, nil
}

// Remove deletes a block. Only the blocker may remove their own block.
func (s *Service) Remove(ctx context.Context, blockID, requesterID uint64) error {
	block, err := s.blockRepo.GetByID(ctx, blockID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("block not found")
		}
		return err
	}
	if block.BlockerID != requesterID {
		return apperr.Authorization("only the blocker may remove a block")
	}
	if err := s.blockRepo.Delete(ctx, blockID); err != nil {
		return err
	}

	// The pair may become visible again; let discovery rebuild from the DB.
	_ = s.appCtx.RedisCache.InvalidateExclusions(ctx, block.BlockerID, block.BlockedID)
	_ = s.appCtx.RedisCache.InvalidateAdmirerCount(ctx, block.BlockerID)
	_ = s.appCtx.RedisCache.InvalidateAdmirerCount(ctx, block.BlockedID)
	return nil
}

// IsBlocked reports whether a block exists between the users in either
// direction. Consulted by every other component before exposing or mutating
// anything about the pair.
func (s *Service) IsBlocked(ctx context.Context, userX, userY uint64) (bool, error) {
	return s.blockRepo.IsBlocked(ctx, userX, userY)
}
