// Package intro implements the introduction coordinator: the
// matchmaker-initiated bilateral-consent workflow, from offer creation
// through independent accept/decline responses to the committed group
// conversation, plus expiry and the matchmaker's outcome bookkeeping.
package intro

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

// Derived introduction statuses. Never stored: always computed from the two
// response fields and the expired flag.
const (
	StatusPending       = "pending"
	StatusAwaitingUserA = "awaiting_user_a"
	StatusAwaitingUserB = "awaiting_user_b"
	StatusActive        = "active"
	StatusDeclined      = "declined"
	StatusExpired       = "expired"
)

type Service struct {
	appCtx        *app.AppContext
	introRepo     *repository.IntroductionRepository
	actionRepo    *repository.ActionRepository
	blockRepo     *repository.BlockRepository
	userRepo      *repository.UserRepository
	conversations collab.Conversations
	notifier      collab.Notifier
}

// NewService creates the introduction coordinator with dependencies from
// AppContext and the external collaborators.
func NewService(appCtx *app.AppContext, conversations collab.Conversations, notifier collab.Notifier) *Service {
	return &Service{
		appCtx:        appCtx,
		introRepo:     repository.NewIntroductionRepository(appCtx.DB),
		actionRepo:    repository.NewActionRepository(appCtx.DB),
		blockRepo:     repository.NewBlockRepository(appCtx.DB),
		userRepo:      repository.NewUserRepository(appCtx.DB),
		conversations: conversations,
		notifier:      notifier,
	}
}

// DeriveStatus computes the combined status from the stored consent state.
// Pure function of the row: the two response fields plus the expired flag
// fully determine it.
func DeriveStatus(i *db.Introduction) string {
	switch {
	case i.Expired:
		return StatusExpired
	case i.UserAResponse == db.ResponseDeclined || i.UserBResponse == db.ResponseDeclined:
		return StatusDeclined
	case i.BothAccepted():
		return StatusActive
	case i.UserAResponse == db.ResponseAccepted:
		return StatusAwaitingUserB
	case i.UserBResponse == db.ResponseAccepted:
		return StatusAwaitingUserA
	default:
		return StatusPending
	}
}

// View is an introduction as presented to one of its participants. The
// other party's pending response never leaks: only the derived status and
// the viewer's own response are exposed.
type View struct {
	ID             uint64    `json:"id"`
	MatchmakerID   uint64    `json:"matchmaker_id"`
	UserAID        uint64    `json:"user_a_id"`
	UserBID        uint64    `json:"user_b_id"`
	Message        string    `json:"message,omitempty"`
	Status         string    `json:"status"`
	YourResponse   string    `json:"your_response,omitempty"`
	Outcome        string    `json:"outcome"`
	ConversationID *uint64   `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func viewOf(i *db.Introduction, viewerID uint64) *View {
	return &View{
		ID:             i.ID,
		MatchmakerID:   i.MatchmakerID,
		UserAID:        i.UserAID,
		UserBID:        i.UserBID,
		Message:        i.Message,
		Status:         DeriveStatus(i),
		YourResponse:   i.ResponseOf(viewerID),
		Outcome:        i.Outcome,
		ConversationID: i.ConversationID,
		CreatedAt:      i.CreatedAt,
		ExpiresAt:      i.ExpiresAt,
	}
}

// Create opens an introduction between userA and userB on behalf of an
// approved matchmaker.
//
// Preconditions, in check order: distinct users, requester is an approved
// matchmaker, both users exist and are active, the pair is not blocked, no
// mutual match exists between them, and no other non-terminal introduction
// by this matchmaker for this pair is open. Both users get an offer
// notification, fire-and-forget.
func (s *Service) Create(ctx context.Context, matchmakerID, userA, userB uint64, message string) (*View, error) {
	if matchmakerID == 0 || userA == 0 || userB == 0 {
		return nil, apperr.Validation("matchmaker_id, user_a and user_b are required")
	}
	if userA == userB {
		return nil, apperr.Validation("cannot introduce a user to themselves")
	}

	mm, err := s.userRepo.GetMatchmaker(ctx, matchmakerID)
	if err != nil {
		return nil, err
	}
	if mm == nil || mm.Status != db.MatchmakerApproved {
		return nil, apperr.Authorization("requester is not an approved matchmaker")
	}

	for _, id := range []uint64{userA, userB} {
		u, err := s.userRepo.Get(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("user not found")
			}
			return nil, err
		}
		if u.Status != db.UserStatusActive {
			return nil, apperr.Conflict("user is not active")
		}
	}

	blocked, err := s.blockRepo.IsBlocked(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, apperr.Conflict("users are blocked")
	}

	mutual, err := s.actionRepo.IsMutual(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	if mutual {
		return nil, apperr.Conflict("users are already mutually matched")
	}

	lo, hi := orderPair(userA, userB)
	open, err := s.introRepo.HasOpen(ctx, matchmakerID, lo, hi, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if open {
		return nil, apperr.Conflict("a pending introduction already exists for this pair")
	}

	now := time.Now().UTC()
	intro := &db.Introduction{
		MatchmakerID:  matchmakerID,
		UserAID:       lo,
		UserBID:       hi,
		Message:       message,
		UserAResponse: db.ResponseNone,
		UserBResponse: db.ResponseNone,
		Outcome:       db.OutcomeUnset,
		ExpiresAt:     now.Add(s.appCtx.Cfg.Engine.IntroTTL),
	}
	if err := s.introRepo.Create(ctx, intro); err != nil {
		return nil, err
	}

	s.appCtx.Logger.Info("introduction created",
		"introduction", intro.ID, "matchmaker", matchmakerID, "user_a", lo, "user_b", hi)

	payload := map[string]any{
		"introduction_id": strconv.FormatUint(intro.ID, 10),
		"matchmaker_id":   strconv.FormatUint(matchmakerID, 10),
	}
	s.notifier.Enqueue(ctx, lo, collab.NotifyIntroductionOffer, payload)
	s.notifier.Enqueue(ctx, hi, collab.NotifyIntroductionOffer, payload)

	return viewOf(intro, matchmakerID), nil
}

// Respond records one party's accept or decline.
//
// A decline is terminal immediately; the other party's eventual response is
// ignored. When both parties have accepted, the group conversation with both
// users and the matchmaker is created exactly once, even when the two
// accepts race in together: the write is a conditional update, the
// conversation insert is idempotent on its pair key, and only the creating
// request notifies.
func (s *Service) Respond(ctx context.Context, introID, userID uint64, decision string) (*View, error) {
	var response string
	switch decision {
	case "accept":
		response = db.ResponseAccepted
	case "decline":
		response = db.ResponseDeclined
	default:
		return nil, apperr.Validation("decision must be accept or decline")
	}

	intro, err := s.getIntro(ctx, introID)
	if err != nil {
		return nil, err
	}
	intro = s.lazyExpire(ctx, intro)

	if userID != intro.UserAID && userID != intro.UserBID {
		return nil, apperr.Authorization("user is not a party to this introduction")
	}
	if intro.Expired {
		return nil, apperr.Conflict("introduction has expired")
	}
	if intro.ResponseOf(userID) != db.ResponseNone {
		return nil, apperr.Immutable("response already recorded")
	}
	if intro.Terminal() {
		return nil, apperr.Conflict("introduction is no longer open")
	}

	ok, err := s.introRepo.SetResponse(ctx, introID, userID == intro.UserAID, response)
	if err != nil {
		return nil, err
	}
	if !ok {
		// lost a race; re-read to classify
		intro, err = s.getIntro(ctx, introID)
		if err != nil {
			return nil, err
		}
		if intro.ResponseOf(userID) != db.ResponseNone {
			return nil, apperr.Immutable("response already recorded")
		}
		return nil, apperr.Conflict("introduction is no longer open")
	}

	intro, err = s.getIntro(ctx, introID)
	if err != nil {
		return nil, err
	}

	if intro.BothAccepted() {
		if err := s.activate(ctx, intro); err != nil {
			return nil, err
		}
		intro, err = s.getIntro(ctx, introID)
		if err != nil {
			return nil, err
		}
	}

	return viewOf(intro, userID), nil
}

// activate commits the both-accepted transition: create the group
// conversation for the introduction and claim it onto the row. Racing
// responders converge on the same conversation; only the creator notifies.
func (s *Service) activate(ctx context.Context, intro *db.Introduction) error {
	participants := []uint64{intro.UserAID, intro.UserBID, intro.MatchmakerID}
	convID, created, err := s.conversations.CreateGroupForIntroduction(ctx, intro.ID, participants, intro.MatchmakerID)
	if err != nil {
		return err
	}

	if _, err := s.introRepo.ClaimConversation(ctx, intro.ID, convID); err != nil {
		return err
	}

	if created {
		s.appCtx.Logger.Info("introduction activated",
			"introduction", intro.ID, "conversation", convID)
		payload := map[string]any{
			"introduction_id": strconv.FormatUint(intro.ID, 10),
			"conversation_id": strconv.FormatUint(convID, 10),
		}
		s.notifier.Enqueue(ctx, intro.UserAID, collab.NotifyIntroductionLive, payload)
		s.notifier.Enqueue(ctx, intro.UserBID, collab.NotifyIntroductionLive, payload)
	}
	return nil
}

// Get returns the introduction as seen by the viewer. Only the matchmaker
// and the two parties may read it. Expiry is applied lazily on read.
func (s *Service) Get(ctx context.Context, introID, viewerID uint64) (*View, error) {
	intro, err := s.getIntro(ctx, introID)
	if err != nil {
		return nil, err
	}
	if viewerID != intro.MatchmakerID && viewerID != intro.UserAID && viewerID != intro.UserBID {
		return nil, apperr.Authorization("not a participant of this introduction")
	}
	intro = s.lazyExpire(ctx, intro)
	return viewOf(intro, viewerID), nil
}

// ExpireIfPast marks the introduction expired if its deadline has passed
// and it is still non-terminal. Idempotent: repeat calls and calls on
// already-terminal introductions are no-ops. Reports whether this call
// performed the transition, so a periodic sweep can count its work.
func (s *Service) ExpireIfPast(ctx context.Context, introID uint64) (bool, error) {
	intro, err := s.getIntro(ctx, introID)
	if err != nil {
		return false, err
	}
	if intro.Terminal() || time.Now().UTC().Before(intro.ExpiresAt) {
		return false, nil
	}
	flipped, err := s.introRepo.MarkExpired(ctx, introID)
	if err != nil {
		return false, err
	}
	if flipped {
		s.appCtx.Logger.Info("introduction expired", "introduction", introID)
	}
	return flipped, nil
}

// SetOutcome records the matchmaker's post-hoc classification. Matchmaker
// only; allowed at any time after creation, regardless of consent or expiry
// state, and freely overwritable. Never affects the consent protocol.
func (s *Service) SetOutcome(ctx context.Context, introID, matchmakerID uint64, outcome string) error {
	switch outcome {
	case db.OutcomeUnset, db.OutcomeNoResponse, db.OutcomeDeclined,
		db.OutcomeChatted, db.OutcomeDated, db.OutcomeRelationship:
	default:
		return apperr.Validation("unknown outcome")
	}

	intro, err := s.getIntro(ctx, introID)
	if err != nil {
		return err
	}
	if intro.MatchmakerID != matchmakerID {
		return apperr.Authorization("only the introducing matchmaker may set the outcome")
	}
	return s.introRepo.SetOutcome(ctx, introID, outcome)
}

func (s *Service) getIntro(ctx context.Context, id uint64) (*db.Introduction, error) {
	intro, err := s.introRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("introduction not found")
		}
		return nil, err
	}
	return intro, nil
}

// lazyExpire applies the expiry transition on read when the deadline has
// passed. Best-effort: on any failure the caller proceeds with the row as
// read.
func (s *Service) lazyExpire(ctx context.Context, intro *db.Introduction) *db.Introduction {
	if intro.Terminal() || time.Now().UTC().Before(intro.ExpiresAt) {
		return intro
	}
	if flipped, err := s.introRepo.MarkExpired(ctx, intro.ID); err == nil && flipped {
		intro.Expired = true
		s.appCtx.Logger.Info("introduction expired", "introduction", intro.ID)
	}
	return intro
}

func orderPair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}
