package db

import (
	"strconv"
	"strings"
	"time"
)

// User statuses.
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
	UserStatusDeleted   = "deleted"
)

// Action kinds.
const (
	ActionLike      = "like"
	ActionPass      = "pass"
	ActionSuperLike = "super_like"
)

// Introduction per-party responses.
const (
	ResponseNone     = "none"
	ResponseAccepted = "accepted"
	ResponseDeclined = "declined"
)

// Introduction outcomes, recorded post-hoc by the matchmaker.
const (
	OutcomeUnset        = "unset"
	OutcomeNoResponse   = "no_response"
	OutcomeDeclined     = "declined"
	OutcomeChatted      = "chatted"
	OutcomeDated        = "dated"
	OutcomeRelationship = "relationship"
)

// Matchmaker statuses.
const (
	MatchmakerPending  = "pending"
	MatchmakerApproved = "approved"
	MatchmakerRevoked  = "revoked"
)

// Conversation kinds.
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// User table. Owned by the account subsystem; the engine reads it and only
// the seed command writes it.
type User struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	Username         string `gorm:"uniqueIndex;size:64;not null"`
	Email            string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash     string `gorm:"size:255;not null"`
	Status           string `gorm:"size:16;not null;default:active;index"`
	Gender           string `gorm:"size:16;not null"`
	LookingFor       string `gorm:"size:64;not null"` // comma-separated set of accepted genders
	CanStartMatching bool   `gorm:"default:true"`
	ProfileHidden    bool   `gorm:"default:false"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// Wants reports whether the user's looking_for set contains the given gender.
func (u *User) Wants(gender string) bool {
	for _, g := range strings.Split(u.LookingFor, ",") {
		if strings.TrimSpace(g) == gender {
			return true
		}
	}
	return false
}

// Discoverable reports whether the user may appear in anyone's candidate pool.
func (u *User) Discoverable() bool {
	return u.Status == UserStatusActive && u.CanStartMatching && !u.ProfileHidden
}

// Profile holds the filterable attributes of a user.
type Profile struct {
	UserID      uint64    `gorm:"primaryKey"`
	DisplayName string    `gorm:"size:64;not null"`
	DateOfBirth time.Time `gorm:"not null"`
	BodyType    string    `gorm:"size:32"`
	Ethnicity   string    `gorm:"size:32"`
	Religion    string    `gorm:"size:32"`
	Bio         string    `gorm:"size:512"`
}

// Matchmaker marks a user as an (aspiring) matchmaker. Only approved
// matchmakers may create introductions.
type Matchmaker struct {
	UserID    uint64    `gorm:"primaryKey"`
	Status    string    `gorm:"size:16;not null;default:pending"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Action represents an actor's like/pass/super-like on a target.
//
// Composite PK: (ActorID, TargetID)
//   - Ensures a single row per ordered pair (overwrite guarantee).
//
// Indexes:
//   - idx_target_kind_updated_actor(target_id, kind, updated_at DESC, actor_id)
//     Optimizes "who liked me" lists with pagination.
//
// IsUnmatched is set on both directions when either party unmatches; a true
// value removes the pair from mutual-match and exclusion computations.
type Action struct {
	ActorID     uint64    `gorm:"primaryKey"`
	TargetID    uint64    `gorm:"primaryKey;index:idx_target_kind_updated_actor,priority:1"`
	Kind        string    `gorm:"size:16;not null;index:idx_target_kind_updated_actor,priority:2"`
	IsUnmatched bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime;index:idx_target_kind_updated_actor,priority:3,sort:desc"`
}

// Positive reports whether the action counts toward a mutual match.
func (a *Action) Positive() bool {
	return !a.IsUnmatched && (a.Kind == ActionLike || a.Kind == ActionSuperLike)
}

// Block is a directed edge stored per blocker; its effect is symmetric.
type Block struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	BlockerID uint64    `gorm:"not null;uniqueIndex:uidx_blocker_blocked,priority:1"`
	BlockedID uint64    `gorm:"not null;uniqueIndex:uidx_blocker_blocked,priority:2;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Introduction is a matchmaker-initiated bilateral-consent offer.
//
// The pair is conceptually unordered; UserAID/UserBID store it normalized
// (UserAID < UserBID) so the duplicate-pending check is one indexed lookup.
// Consent state is two independent response fields; any combined status is
// derived from them, never stored.
type Introduction struct {
	ID            uint64  `gorm:"primaryKey;autoIncrement"`
	MatchmakerID  uint64  `gorm:"not null;index:idx_matchmaker_pair,priority:1"`
	UserAID       uint64  `gorm:"not null;index:idx_matchmaker_pair,priority:2"`
	UserBID       uint64  `gorm:"not null;index:idx_matchmaker_pair,priority:3"`
	Message       string  `gorm:"size:512"`
	UserAResponse string  `gorm:"size:16;not null;default:none"`
	UserBResponse string  `gorm:"size:16;not null;default:none"`
	Expired       bool    `gorm:"not null;default:false"`
	Outcome       string  `gorm:"size:16;not null;default:unset"`
	ConversationID *uint64
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	ExpiresAt     time.Time `gorm:"not null"`
}

// Terminal reports whether the introduction accepts no further responses.
func (i *Introduction) Terminal() bool {
	if i.Expired {
		return true
	}
	if i.UserAResponse == ResponseDeclined || i.UserBResponse == ResponseDeclined {
		return true
	}
	return i.UserAResponse == ResponseAccepted && i.UserBResponse == ResponseAccepted
}

// BothAccepted reports whether both parties accepted.
func (i *Introduction) BothAccepted() bool {
	return i.UserAResponse == ResponseAccepted && i.UserBResponse == ResponseAccepted
}

// ResponseOf returns the response recorded for the given party, or "" when
// the user is not a party to the introduction.
func (i *Introduction) ResponseOf(userID uint64) string {
	switch userID {
	case i.UserAID:
		return i.UserAResponse
	case i.UserBID:
		return i.UserBResponse
	}
	return ""
}

// Conversation rows exist to make conversation creation idempotent: PairKey
// is unique, so concurrent commits of the same mutual match or introduction
// insert at most one row. `d:<lo>:<hi>` keys direct conversations,
// `i:<introduction_id>` keys introduction group conversations.
type Conversation struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	UUID         string    `gorm:"size:36;uniqueIndex;not null"`
	PairKey      string    `gorm:"size:64;uniqueIndex;not null"`
	Kind         string    `gorm:"size:8;not null"`
	CreatedBy    uint64    `gorm:"not null"`
	Participants string    `gorm:"size:255;not null"` // comma-separated user ids
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// JoinIDs renders a participant list for the Conversation.Participants column.
func JoinIDs(ids []uint64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatUint(id, 10))
	}
	return strings.Join(parts, ",")
}
