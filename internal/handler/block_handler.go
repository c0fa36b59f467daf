package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/embermatch/engine/internal/apperr"
	"github.com/embermatch/engine/internal/db"
)

// BlockService is the slice of the block registry the handler needs.
type BlockService interface {
	Create(ctx context.Context, blockerID, blockedID uint64) (*db.Block, error)
	Remove(ctx context.Context, blockID, requesterID uint64) error
}

type BlockHandler struct {
	svc BlockService
	log *slog.Logger
}

func NewBlockHandler(svc BlockService, log *slog.Logger) *BlockHandler {
	return &BlockHandler{svc: svc, log: log}
}

func (h *BlockHandler) Register(r gin.IRouter) {
	r.POST("/blocks", h.create)
	r.DELETE("/blocks/:id", h.remove)
}

type blockRequest struct {
	BlockedID uint64 `json:"blocked_id" binding:"required"`
}

func (h *BlockHandler) create(c *gin.Context) {
	blockerID, err := requesterID(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, apperr.Validation("invalid request body"))
		return
	}

	block, err := h.svc.Create(c.Request.Context(), blockerID, req.BlockedID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"block_id": block.ID})
}

func (h *BlockHandler) remove(c *gin.Context) {
	requester, err := requesterID(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	blockID, err := pathID(c, "id")
	if err != nil {
		fail(c, h.log, err)
		return
	}

	if err := h.svc.Remove(c.Request.Context(), blockID, requester); err != nil {
		fail(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
