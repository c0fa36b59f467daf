// Package collab declares the narrow interfaces through which the engine
// consumes its external collaborators. The engine never redesigns these
// systems; it only calls them.
package collab

import (
	"context"

	"github.com/embermatch/engine/internal/db"
	"github.com/embermatch/engine/internal/repository"
)

// Notification kinds dispatched by the engine.
const (
	NotifyMutualMatch       = "mutual_match"
	NotifyIntroductionOffer = "introduction_offer"
	NotifyIntroductionLive  = "introduction_active"
)

// Conversations creates conversations on behalf of the engine. Creation is
// idempotent per mutual-match pair and per introduction; the boolean result
// reports whether this call performed the creation, so racing commits can
// tell exactly one winner apart.
type Conversations interface {
	CreateDirect(ctx context.Context, userA, userB uint64) (conversationID uint64, created bool, err error)
	CreateGroupForIntroduction(ctx context.Context, introductionID uint64, participantIDs []uint64, createdBy uint64) (conversationID uint64, created bool, err error)
}

// Notifier enqueues a notification for a user. Fire-and-forget: no return
// value is consumed and implementations must never fail the request path.
type Notifier interface {
	Enqueue(ctx context.Context, userID uint64, kind string, payload map[string]any)
}

// StoreConversations is the storage-backed Conversations implementation,
// keyed by the conversations table's unique pair_key.
type StoreConversations struct {
	repo *repository.ConversationRepository
}

// NewStoreConversations wraps a conversation repository.
func NewStoreConversations(repo *repository.ConversationRepository) *StoreConversations {
	return &StoreConversations{repo: repo}
}

func (s *StoreConversations) CreateDirect(ctx context.Context, userA, userB uint64) (uint64, bool, error) {
	conv, created, err := s.repo.CreateIfAbsent(
		ctx,
		repository.DirectPairKey(userA, userB),
		db.ConversationDirect,
		userA,
		[]uint64{userA, userB},
	)
	if err != nil {
		return 0, false, err
	}
	return conv.ID, created, nil
}

func (s *StoreConversations) CreateGroupForIntroduction(ctx context.Context, introductionID uint64, participantIDs []uint64, createdBy uint64) (uint64, bool, error) {
	conv, created, err := s.repo.CreateIfAbsent(
		ctx,
		repository.IntroPairKey(introductionID),
		db.ConversationGroup,
		createdBy,
		participantIDs,
	)
	if err != nil {
		return 0, false, err
	}
	return conv.ID, created, nil
}
