// Package discovery implements the candidate selector: the computation of
// which profiles a viewer is allowed to see, with exclusions, reciprocal
// preference, attribute filters, and stable pagination.
package discovery

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/embermatch/engine/internal/app"
	"github.com/embermatch/engine/internal/apperr"
	"github.com/embermatch/engine/internal/db"
	"github.com/embermatch/engine/internal/repository"
	"github.com/embermatch/engine/internal/utils/pagination"
)

type Service struct {
	appCtx     *app.AppContext
	userRepo   *repository.UserRepository
	actionRepo *repository.ActionRepository
	blockRepo  *repository.BlockRepository
}

// NewService creates the candidate selector with dependencies from AppContext.
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:     appCtx,
		userRepo:   repository.NewUserRepository(appCtx.DB),
		actionRepo: repository.NewActionRepository(appCtx.DB),
		blockRepo:  repository.NewBlockRepository(appCtx.DB),
	}
}

// CandidateSummary is one discovery result.
type CandidateSummary struct {
	UserID      uint64 `json:"user_id"`
	DisplayName string `json:"display_name"`
	Gender      string `json:"gender"`
	Age         int    `json:"age"`
	BodyType    string `json:"body_type,omitempty"`
	Ethnicity   string `json:"ethnicity,omitempty"`
	Religion    string `json:"religion,omitempty"`
}

// FilterDiagnostic reports how many candidates remained after a filter
// stage, so callers can see which filter emptied the pool.
type FilterDiagnostic struct {
	Filter    string `json:"filter"`
	Remaining int64  `json:"remaining"`
}

// Page is one page of discovery results. An empty page is a valid outcome,
// not an error; Diagnostics is populated on an empty first page.
type Page struct {
	Candidates  []CandidateSummary `json:"candidates"`
	NextToken   *string            `json:"next_page_token,omitempty"`
	Diagnostics []FilterDiagnostic `json:"filter_diagnostics,omitempty"`
}

// Candidates computes the viewer's discovery page.
//
// Exclusion set (always applied):
//   - the viewer themselves
//   - every target of a live action by the viewer
//   - every actor who passed on the viewer (symmetric hide: rejection is
//     mutually final, even though the viewer never acted)
//   - every user in a block relation with the viewer
//
// Then: candidate must be active, matchable, not hidden; reciprocal gender
// preference must hold both ways; attribute filters AND together.
// Ordering is by user id ascending, so pages over the same exclusion
// snapshot never reorder already-seen candidates.
func (s *Service) Candidates(ctx context.Context, viewerID uint64, f repository.Filters, pageToken *string) (*Page, error) {
	viewer, err := s.userRepo.Get(ctx, viewerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("viewer not found")
		}
		return nil, err
	}
	if viewer.Status != db.UserStatusActive {
		return nil, apperr.Authorization("viewer is not active")
	}

	genders := lookingForList(viewer)
	if len(genders) == 0 {
		return &Page{Candidates: []CandidateSummary{}}, nil
	}

	cursor, err := pagination.Decode(deref(pageToken))
	if err != nil {
		return nil, apperr.Validation("invalid page token")
	}

	exclude, err := s.exclusionSet(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	pageSize := s.appCtx.Cfg.Engine.PageSize
	batch := pageSize + 1

	out := make([]CandidateSummary, 0, pageSize)
	afterID := cursor.LastID
	more := false

scan:
	for {
		rows, err := s.userRepo.FindCandidates(ctx, afterID, batch, exclude, genders, f)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		for i := range rows {
			row := &rows[i]
			afterID = row.ID
			// reciprocal preference: the candidate must want the viewer back
			if !row.Wants(viewer.Gender) {
				continue
			}
			out = append(out, summarize(row))
			if len(out) == pageSize {
				more = i < len(rows)-1 || len(rows) == batch
				break scan
			}
		}
		if len(rows) < batch {
			break
		}
	}

	page := &Page{Candidates: out}
	if more {
		token, err := pagination.Encode(pagination.Cursor{LastID: afterID})
		if err != nil {
			return nil, err
		}
		page.NextToken = &token
	}

	// Report which filter narrowed the pool when the first page is empty.
	if len(out) == 0 && cursor.LastID == 0 && f.Active() {
		diags, err := s.filterDiagnostics(ctx, exclude, genders, f)
		if err != nil {
			s.appCtx.Logger.Warn("filter diagnostics failed", "viewer", viewerID, "err", err)
		} else {
			page.Diagnostics = diags
		}
	}

	return page, nil
}

// exclusionSet returns the viewer's exclusion ids, Redis-first with a DB
// rebuild on miss. The materialized set is refreshed incrementally on every
// action/block write, so discovery stays an indexed lookup as history grows.
func (s *Service) exclusionSet(ctx context.Context, viewerID uint64) ([]uint64, error) {
	if ids, ok, err := s.appCtx.RedisCache.GetExclusions(ctx, viewerID); err == nil && ok {
		return ids, nil
	}

	actionIDs, err := s.actionRepo.ExclusionIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	blockIDs, err := s.blockRepo.RelatedIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	seen := map[uint64]struct{}{viewerID: {}}
	ids := []uint64{viewerID}
	for _, id := range append(actionIDs, blockIDs...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	_ = s.appCtx.RedisCache.SetExclusions(ctx, viewerID, ids)
	return ids, nil
}

// filterDiagnostics counts the pool after each filter stage cumulatively.
// Reciprocal preference is applied in Go and is not part of the staged
// counts; the "eligible" stage is the pool before any attribute filter.
func (s *Service) filterDiagnostics(ctx context.Context, exclude []uint64, genders []string, f repository.Filters) ([]FilterDiagnostic, error) {
	stages := []struct {
		name  string
		apply func(*repository.Filters)
	}{
		{"eligible", func(*repository.Filters) {}},
		{"age", func(p *repository.Filters) { p.AgeMin, p.AgeMax = f.AgeMin, f.AgeMax }},
		{"body_type", func(p *repository.Filters) { p.BodyType = f.BodyType }},
		{"ethnicity", func(p *repository.Filters) { p.Ethnicity = f.Ethnicity }},
		{"religion", func(p *repository.Filters) { p.Religion = f.Religion }},
	}

	var partial repository.Filters
	diags := make([]FilterDiagnostic, 0, len(stages))
	for _, stage := range stages {
		before := partial
		stage.apply(&partial)
		if stage.name != "eligible" && partial == before {
			continue // filter not set
		}
		count, err := s.userRepo.CountCandidates(ctx, exclude, genders, partial)
		if err != nil {
			return nil, err
		}
		diags = append(diags, FilterDiagnostic{Filter: stage.name, Remaining: count})
	}
	return diags, nil
}

func summarize(c *repository.Candidate) CandidateSummary {
	return CandidateSummary{
		UserID:      c.ID,
		DisplayName: c.DisplayName,
		Gender:      c.Gender,
		Age:         ageOf(c.DateOfBirth),
		BodyType:    c.BodyType,
		Ethnicity:   c.Ethnicity,
		Religion:    c.Religion,
	}
}

func ageOf(dob time.Time) int {
	now := time.Now().UTC()
	age := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		age--
	}
	return age
}

func lookingForList(u *db.User) []string {
	var out []string
	for _, g := range strings.Split(u.LookingFor, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
