// Package match implements the action recorder: like/pass/super-like
// upserts, exactly-once mutual-match commits, bounded undo, unmatch, and
// the admirer ("liked you") listings.
package match

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/embermatch/engine/internal/app"
	"github.com/embermatch/engine/internal/apperr"
	"github.com/embermatch/engine/internal/collab"
	"github.com/embermatch/engine/internal/db"
	"github.com/embermatch/engine/internal/repository"
)

type Service struct {
	appCtx        *app.AppContext
	actionRepo    *repository.ActionRepository
	blockRepo     *repository.BlockRepository
	userRepo      *repository.UserRepository
	conversations collab.Conversations
	notifier      collab.Notifier
}

// NewService creates the action recorder with dependencies from AppContext
// and the external collaborators.
func NewService(appCtx *app.AppContext, conversations collab.Conversations, notifier collab.Notifier) *Service {
	return &Service{
		appCtx:        appCtx,
		actionRepo:    repository.NewActionRepository(appCtx.DB),
		blockRepo:     repository.NewBlockRepository(appCtx.DB),
		userRepo:      repository.NewUserRepository(appCtx.DB),
		conversations: conversations,
		notifier:      notifier,
	}
}

// ActionResult is what a recorded action produced.
type ActionResult struct {
	Action         *db.Action
	MutualMatch    bool
	ConversationID uint64
}

// RecordAction upserts the (actor, target) action and commits a mutual
// match when the reverse action is a live like/super-like.
//
// The mutual commit is race-free: conversation creation is idempotent per
// normalized pair, so two near-simultaneous likes both report a mutual
// match but only one performs the creation side effect and notifies.
// Resubmitting the same action overwrites the row and returns the existing
// result rather than erroring.
func (s *Service) RecordAction(ctx context.Context, actorID, targetID uint64, kind string) (*ActionResult, error) {
	switch kind {
	case db.ActionLike, db.ActionPass, db.ActionSuperLike:
	default:
		return nil, apperr.Validation("kind must be like, pass or super_like")
	}
	if actorID == 0 || targetID == 0 {
		return nil, apperr.Validation("actor_id and target_id are required")
	}
	if actorID == targetID {
		return nil, apperr.Validation("cannot act on yourself")
	}

	target, err := s.userRepo.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("target user not found")
		}
		return nil, err
	}
	if target.Status != db.UserStatusActive {
		return nil, apperr.Conflict("target user is not active")
	}

	blocked, err := s.blockRepo.IsBlocked(ctx, actorID, targetID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, apperr.Conflict("users are blocked")
	}

	prior, err := s.actionRepo.Get(ctx, actorID, targetID)
	if err != nil {
		return nil, err
	}

	action, err := s.actionRepo.Upsert(ctx, actorID, targetID, kind)
	if err != nil {
		return nil, err
	}

	// Maintain the materialized exclusion index incrementally.
	_ = s.appCtx.RedisCache.AddExclusion(ctx, actorID, targetID)
	if kind == db.ActionPass {
		// a pass hides the actor from the target too
		_ = s.appCtx.RedisCache.AddExclusion(ctx, targetID, actorID)
	} else if prior != nil && prior.Kind == db.ActionPass {
		// the symmetric hide no longer applies; let the target's set rebuild
		_ = s.appCtx.RedisCache.InvalidateExclusions(ctx, targetID)
	}
	_ = s.appCtx.RedisCache.InvalidateAdmirerCount(ctx, targetID)

	result := &ActionResult{Action: action}
	if kind == db.ActionPass {
		return result, nil
	}

	reverse, err := s.actionRepo.Get(ctx, targetID, actorID)
	if err != nil {
		return nil, err
	}
	if reverse == nil || !reverse.Positive() {
		return result, nil
	}

	convID, created, err := s.conversations.CreateDirect(ctx, actorID, targetID)
	if err != nil {
		return nil, err
	}
	result.MutualMatch = true
	result.ConversationID = convID

	if created {
		s.appCtx.Logger.Info("mutual match committed", "user_a", actorID, "user_b", targetID, "conversation", convID)
		payload := map[string]any{"conversation_id": strconv.FormatUint(convID, 10)}
		s.notifier.Enqueue(ctx, actorID, collab.NotifyMutualMatch, withOther(payload, targetID))
		s.notifier.Enqueue(ctx, targetID, collab.NotifyMutualMatch, withOther(payload, actorID))
	}

	return result, nil
}

// UndoAction reverts a recent action.
//
// Permitted only within the configured undo window of the action's latest
// submission, and only when the action never produced a mutual match
// (mutual matches are permanent and cannot be undone by this path). Undo
// does not un-notify.
func (s *Service) UndoAction(ctx context.Context, actorID, targetID uint64) error {
	action, err := s.actionRepo.Get(ctx, actorID, targetID)
	if err != nil {
		return err
	}
	if action == nil {
		return apperr.NotFound("no action to undo")
	}
	if time.Since(action.UpdatedAt) > s.appCtx.Cfg.Engine.UndoWindow {
		return apperr.TooLate("undo window expired")
	}
	if action.Positive() {
		reverse, err := s.actionRepo.Get(ctx, targetID, actorID)
		if err != nil {
			return err
		}
		if reverse != nil && reverse.Positive() {
			return apperr.Immutable("action produced a mutual match")
		}
	}

	if err := s.actionRepo.Delete(ctx, actorID, targetID); err != nil {
		return err
	}

	// The cached set carries no provenance: the undone entry may also be
	// backed by a block, so a targeted removal could unhide a blocked user.
	// Drop the whole set and let discovery rebuild it.
	_ = s.appCtx.RedisCache.InvalidateExclusions(ctx, actorID)
	if action.Kind == db.ActionPass {
		_ = s.appCtx.RedisCache.InvalidateExclusions(ctx, targetID)
	}
	_ = s.appCtx.RedisCache.InvalidateAdmirerCount(ctx, targetID)
	return nil
}

// Unmatch flags both directions of an existing mutual match as unmatched,
// permanently removing the pair from mutual-match computations and
// re-admitting each to the other's candidate pool (unless a block exists).
func (s *Service) Unmatch(ctx context.Context, userID, otherID uint64) error {
	if userID == otherID {
		return apperr.Validation("cannot unmatch yourself")
	}
	mutual, err := s.actionRepo.IsMutual(ctx, userID, otherID)
	if err != nil {
		return err
	}
	if !mutual {
		return apperr.NotFound("no mutual match between users")
	}
	if err := s.actionRepo.SetUnmatched(ctx, userID, otherID); err != nil {
		return err
	}

	_ = s.appCtx.RedisCache.InvalidateExclusions(ctx, userID, otherID)
	_ = s.appCtx.RedisCache.InvalidateAdmirerCount(ctx, userID)
	_ = s.appCtx.RedisCache.InvalidateAdmirerCount(ctx, otherID)
	return nil
}

// Admirer is one entry of the "liked you" listing.
type Admirer struct {
	ActorID       uint64 `json:"actor_id"`
	Kind          string `json:"kind"`
	UnixTimestamp int64  `json:"unix_timestamp"`
}

// Admirers lists users with a live like on the viewer, newest first. With
// newOnly, admirers the viewer already liked back are skipped.
func (s *Service) Admirers(ctx context.Context, viewerID uint64, newOnly bool, pageToken *string) ([]Admirer, *string, error) {
	if _, err := s.userRepo.Get(ctx, viewerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("viewer not found")
		}
		return nil, nil, err
	}

	actions, nextToken, err := s.actionRepo.Admirers(ctx, viewerID, newOnly, pageToken, s.appCtx.Cfg.Engine.PageSize)
	if err != nil {
		return nil, nil, err
	}

	admirers := make([]Admirer, 0, len(actions))
	for _, a := range actions {
		admirers = append(admirers, Admirer{
			ActorID:       a.ActorID,
			Kind:          a.Kind,
			UnixTimestamp: a.UpdatedAt.UnixMilli(),
		})
	}
	return admirers, nextToken, nil
}

// AdmirerCount returns how many users have a live like on the viewer.
// Cache-first: Redis, falling back to the DB and repopulating with a TTL.
func (s *Service) AdmirerCount(ctx context.Context, viewerID uint64) (int64, error) {
	if n, ok, err := s.appCtx.RedisCache.GetAdmirerCount(ctx, viewerID); err == nil && ok {
		return n, nil
	}

	count, err := s.actionRepo.CountAdmirers(ctx, viewerID)
	if err != nil {
		return 0, err
	}
	_ = s.appCtx.RedisCache.SetAdmirerCount(ctx, viewerID, count)
	return count, nil
}

func withOther(base map[string]any, otherID uint64) map[string]any {
	payload := map[string]any{"other_user_id": strconv.FormatUint(otherID, 10)}
	for k, v := range base {
		payload[k] = v
	}
	return payload
}
