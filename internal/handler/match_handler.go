package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/embermatch/engine/internal/apperr"
	"github.com/embermatch/engine/internal/service/match"
)

// MatchService is the slice of the action recorder the handler needs.
type MatchService interface {
	RecordAction(ctx context.Context, actorID, targetID uint64, kind string) (*match.ActionResult, error)
	UndoAction(ctx context.Context, actorID, targetID uint64) error
	Unmatch(ctx context.Context, userID, otherID uint64) error
	Admirers(ctx context.Context, viewerID uint64, newOnly bool, pageToken *string) ([]match.Admirer, *string, error)
	AdmirerCount(ctx context.Context, viewerID uint64) (int64, error)
}

type MatchHandler struct {
	svc MatchService
	log *slog.Logger
}

func NewMatchHandler(svc MatchService, log *slog.Logger) *MatchHandler {
	return &MatchHandler{svc: svc, log: log}
}

func (h *MatchHandler) Register(r gin.IRouter) {
	r.POST("/actions", h.recordAction)
	r.POST("/actions/undo", h.undoAction)
	r.POST("/unmatch", h.unmatch)
	r.GET("/admirers", h.admirers)
	r.GET("/admirers/count", h.admirerCount)
}

type actionRequest struct {
	TargetID uint64 `json:"target_id" binding:"required"`
	Kind     string `json:"kind" binding:"required"`
}

type actionResponse struct {
	MutualMatch    bool   `json:"mutual_match"`
	ConversationID uint64 `json:"conversation_id,omitempty"`
}

func (h *MatchHandler) recordAction(c *gin.Context) {
	actorID, err := requesterID(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, apperr.Validation("invalid request body"))
		return
	}

	result, err := h.svc.RecordAction(c.Request.Context(), actorID, req.TargetID, req.Kind)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	jsonOK(c, actionResponse{
		MutualMatch:    result.MutualMatch,
		ConversationID: result.ConversationID,
	})
}

type undoRequest struct {
	TargetID uint64 `json:"target_id" binding:"required"`
}

func (h *MatchHandler) undoAction(c *gin.Context) {
	actorID, err := requesterID(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	var req undoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, apperr.Validation("invalid request body"))
		return
	}

	if err := h.svc.UndoAction(c.Request.Context(), actorID, req.TargetID); err != nil {
		fail(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type unmatchRequest struct {
	UserID uint64 `json:"user_id" binding:"required"`
}

func (h *MatchHandler) unmatch(c *gin.Context) {
	requester, err := requesterID(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	var req unmatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, apperr.Validation("invalid request body"))
		return
	}

	if err := h.svc.Unmatch(c.Request.Context(), requester, req.UserID); err != nil {
		fail(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type admirersResponse struct {
	Admirers      []match.Admirer `json:"admirers"`
	NextPageToken *string         `json:"next_page_token,omitempty"`
}

func (h *MatchHandler) admirers(c *gin.Context) {
	viewerID, err := requesterID(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	newOnly := c.Query("new_only") == "true"
	admirers, next, err := h.svc.Admirers(c.Request.Context(), viewerID, newOnly, pageTokenOf(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	jsonOK(c, admirersResponse{Admirers: admirers, NextPageToken: next})
}

func (h *MatchHandler) admirerCount(c *gin.Context) {
	viewerID, err := requesterID(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	count, err := h.svc.AdmirerCount(c.Request.Context(), viewerID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	jsonOK(c, gin.H{"count": count})
}
