package handler

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/embermatch/engine/internal/apperr"
	"github.com/embermatch/engine/internal/repository"
	"github.com/embermatch/engine/internal/service/discovery"
)

// DiscoveryService is the slice of the candidate selector the handler needs.
type DiscoveryService interface {
	Candidates(ctx context.Context, viewerID uint64, f repository.Filters, pageToken *string) (*discovery.Page, error)
}

type DiscoveryHandler struct {
	svc DiscoveryService
	log *slog.Logger
}

func NewDiscoveryHandler(svc DiscoveryService, log *slog.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{svc: svc, log: log}
}

func (h *DiscoveryHandler) Register(r gin.IRouter) {
	r.GET("/candidates", h.candidates)
}

func (h *DiscoveryHandler) candidates(c *gin.Context) {
	viewerID, err := requesterID(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	filters, err := filtersOf(c)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	page, err := h.svc.Candidates(c.Request.Context(), viewerID, filters, pageTokenOf(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	jsonOK(c, page)
}

func filtersOf(c *gin.Context) (repository.Filters, error) {
	var f repository.Filters
	var err error
	if f.AgeMin, err = intQuery(c, "age_min"); err != nil {
		return f, err
	}
	if f.AgeMax, err = intQuery(c, "age_max"); err != nil {
		return f, err
	}
	if f.AgeMin < 0 || f.AgeMax < 0 || (f.AgeMax > 0 && f.AgeMin > f.AgeMax) {
		return f, apperr.Validation("invalid age range")
	}
	f.BodyType = c.Query("body_type")
	f.Ethnicity = c.Query("ethnicity")
	f.Religion = c.Query("religion")
	return f, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation("invalid " + name)
	}
	return n, nil
}
