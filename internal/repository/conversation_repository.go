package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/embermatch/engine/internal/db"
)

// ConversationRepository provides idempotent conversation creation. The
// unique pair_key index is the exactly-once guard for both the mutual-match
// race and the introduction double-accept race.
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new repository bound to the given DB connection.
func NewConversationRepository(database *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: database}
}

// DirectPairKey builds the pair key of a mutual-match conversation. The pair
// is normalized so both like directions compute the same key.
func DirectPairKey(userA, userB uint64) string {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("d:%d:%d", lo, hi)
}

// IntroPairKey builds the pair key of an introduction group conversation.
func IntroPairKey(introductionID uint64) string {
	return fmt.Sprintf("i:%d", introductionID)
}

// CreateIfAbsent inserts a conversation under the given pair key, or fetches
// the existing one. The boolean reports whether this call performed the
// insert; concurrent callers see created=true at most once.
func (r *ConversationRepository) CreateIfAbsent(
	ctx context.Context,
	pairKey, kind string,
	createdBy uint64,
	participants []uint64,
) (*db.Conversation, bool, error) {
	conv := db.Conversation{
		UUID:         uuid.NewString(),
		PairKey:      pairKey,
		Kind:         kind,
		CreatedBy:    createdBy,
		Participants: db.JoinIDs(participants),
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_key"}},
			DoNothing: true,
		}).
		Create(&conv)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return &conv, true, nil
	}

	var existing db.Conversation
	if err := r.db.WithContext(ctx).Where("pair_key = ?", pairKey).First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

// GetByPairKey returns the conversation for a pair key, or nil when absent.
func (r *ConversationRepository) GetByPairKey(ctx context.Context, pairKey string) (*db.Conversation, error) {
	var conv db.Conversation
	err := r.db.WithContext(ctx).Where("pair_key = ?", pairKey).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}
