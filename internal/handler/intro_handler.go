package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/embermatch/engine/internal/apperr"
	"github.com/embermatch/engine/internal/service/intro"
)

// IntroService is the slice of the introduction coordinator the handler needs.
type IntroService interface {
	Create(ctx context.Context, matchmakerID, userA, userB uint64, message string) (*intro.View, error)
	Get(ctx context.Context, introID, viewerID uint64) (*intro.View, error)
	Respond(ctx context.Context, introID, userID uint64, decision string) (*intro.View, error)
	SetOutcome(ctx context.Context, introID, matchmakerID uint64, outcome string) error
}

type IntroHandler struct {
	svc IntroService
	log *slog.Logger
}

func NewIntroHandler(svc IntroService, log *slog.Logger) *IntroHandler {
	return &IntroHandler{svc: svc, log: log}
}

func (h *IntroHandler) Register(r gin.IRouter) {
	r.POST("/introductions", h.create)
	r.GET("/introductions/:id", h.get)
	r.POST("/introductions/:id/response", h.respond)
	r.POST("/introductions/:id/outcome", h.outcome)
}

type introCreateRequest struct {
	UserA   uint64 `json:"user_a" binding:"required"`
	UserB   uint64 `json:"user_b" binding:"required"`
	Message string `json:"message"`
}

func (h *IntroHandler) create(c *gin.Context) {
	matchmakerID, err := requesterID(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	var req introCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, apperr.Validation("invalid request body"))
		return
	}

	view, err := h.svc.Create(c.Request.Context(), matchmakerID, req.UserA, req.UserB, req.Message)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *IntroHandler) get(c *gin.Context) {
	viewerID, err := requesterID(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	introID, err := pathID(c, "id")
	if err != nil {
		fail(c, h.log, err)
		return
	}

	view, err := h.svc.Get(c.Request.Context(), introID, viewerID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	jsonOK(c, view)
}

type respondRequest struct {
	Decision string `json:"decision" binding:"required"`
}

func (h *IntroHandler) respond(c *gin.Context) {
	userID, err := requesterID(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	introID, err := pathID(c, "id")
	if err != nil {
		fail(c, h.log, err)
		return
	}
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, apperr.Validation("invalid request body"))
		return
	}

	view, err := h.svc.Respond(c.Request.Context(), introID, userID, req.Decision)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	jsonOK(c, view)
}

type outcomeRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

func (h *IntroHandler) outcome(c *gin.Context) {
	matchmakerID, err := requesterID(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	introID, err := pathID(c, "id")
	if err != nil {
		fail(c, h.log, err)
		return
	}
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, apperr.Validation("invalid request body"))
		return
	}

	if err := h.svc.SetOutcome(c.Request.Context(), introID, matchmakerID, req.Outcome); err != nil {
		fail(c, h.log, err)
		return
	}
	jsonOK(c, gin.H{"success": true})
}
