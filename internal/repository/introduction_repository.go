package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/embermatch/engine/internal/db"
)

// IntroductionRepository provides data access methods for the Introduction
// model. All state transitions are conditional UPDATEs so that concurrent
// requests cannot double-apply a transition: the guard encodes the legal
// source state and RowsAffected tells the caller whether it won.
type IntroductionRepository struct {
	db *gorm.DB
}

// NewIntroductionRepository creates a new repository bound to the given DB connection.
func NewIntroductionRepository(database *gorm.DB) *IntroductionRepository {
	return &IntroductionRepository{db: database}
}

// Create inserts a new introduction.
func (r *IntroductionRepository) Create(ctx context.Context, intro *db.Introduction) error {
	return r.db.WithContext(ctx).Create(intro).Error
}

// Get returns the introduction; gorm.ErrRecordNotFound when absent.
func (r *IntroductionRepository) Get(ctx context.Context, id uint64) (*db.Introduction, error) {
	var intro db.Introduction
	if err := r.db.WithContext(ctx).First(&intro, id).Error; err != nil {
		return nil, err
	}
	return &intro, nil
}

// HasOpen reports whether a non-terminal introduction already exists for the
// matchmaker and the normalized (lo < hi) pair: not expired, not declined by
// either party, not fully accepted, and not past its deadline.
func (r *IntroductionRepository) HasOpen(ctx context.Context, matchmakerID, loID, hiID uint64, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Introduction{}).
		Where("matchmaker_id = ? AND user_a_id = ? AND user_b_id = ?", matchmakerID, loID, hiID).
		Where("expired = false").
		Where("user_a_response <> ? AND user_b_response <> ?", db.ResponseDeclined, db.ResponseDeclined).
		Where("user_a_response = ? OR user_b_response = ?", db.ResponseNone, db.ResponseNone).
		Where("expires_at > ?", now).
		Count(&count).Error
	return count > 0, err
}

// SetResponse writes one party's response, guarded on that party not having
// responded yet and the introduction being non-terminal. Returns whether the
// update applied.
func (r *IntroductionRepository) SetResponse(ctx context.Context, id uint64, isUserA bool, response string) (bool, error) {
	column := "user_b_response"
	if isUserA {
		column = "user_a_response"
	}
	res := r.db.WithContext(ctx).
		Model(&db.Introduction{}).
		Where("id = ? AND expired = false", id).
		Where("user_a_response <> ? AND user_b_response <> ?", db.ResponseDeclined, db.ResponseDeclined).
		Where(column+" = ?", db.ResponseNone).
		Update(column, response)
	return res.RowsAffected == 1, res.Error
}

// ClaimConversation atomically sets the conversation id if it is not set
// yet. Exactly one of two racing "both accepted" responders wins the claim.
func (r *IntroductionRepository) ClaimConversation(ctx context.Context, id, conversationID uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Introduction{}).
		Where("id = ? AND conversation_id IS NULL", id).
		Update("conversation_id", conversationID)
	return res.RowsAffected == 1, res.Error
}

// MarkExpired flips the expired flag, guarded on the introduction still
// being non-terminal. Idempotent: a second call affects zero rows.
func (r *IntroductionRepository) MarkExpired(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Introduction{}).
		Where("id = ? AND expired = false", id).
		Where("user_a_response <> ? AND user_b_response <> ?", db.ResponseDeclined, db.ResponseDeclined).
		Where("user_a_response = ? OR user_b_response = ?", db.ResponseNone, db.ResponseNone).
		Update("expired", true)
	return res.RowsAffected == 1, res.Error
}

// SetOutcome records the matchmaker's post-hoc outcome classification.
func (r *IntroductionRepository) SetOutcome(ctx context.Context, id uint64, outcome string) error {
	return r.db.WithContext(ctx).
		Model(&db.Introduction{}).
		Where("id = ?", id).
		Update("outcome", outcome).Error
}
