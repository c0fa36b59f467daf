package discovery_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/embermatch/engine/internal/app"
	"github.com/embermatch/engine/internal/apperr"
	"github.com/embermatch/engine/internal/cache"
	"github.com/embermatch/engine/internal/collab"
	"github.com/embermatch/engine/internal/config"
	"github.com/embermatch/engine/internal/db"
	"github.com/embermatch/engine/internal/repository"
	"github.com/embermatch/engine/internal/service/blocks"
	"github.com/embermatch/engine/internal/service/discovery"
	"github.com/embermatch/engine/internal/service/match"
)

type fixture struct {
	svc    *discovery.Service
	gdb    *gorm.DB
	cfg    *config.Config
	appCtx *app.AppContext
}

// noopNotifier discards notifications; discovery tests never assert on them.
type noopNotifier struct{}

func (noopNotifier) Enqueue(context.Context, uint64, string, map[string]any) {}

type seedUser struct {
	id         uint64
	gender     string
	lookingFor string
	status     string
	hidden     bool
	age        int
	religion   string
	bodyType   string
}

// setupService builds the candidate selector over in-memory SQLite and
// miniredis with a deterministic pool.
//
// Viewer is user 1 (male, looking for female). Candidates:
//   - 2, 3, 4: female looking for male (eligible)
//   - 5: female looking for female only (fails reciprocal preference)
//   - 6: male (fails the viewer's preference)
//   - 7: suspended female
//   - 8: hidden female
func setupService(t *testing.T) *fixture {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	seeds := []seedUser{
		{1, "male", "female", db.UserStatusActive, false, 30, "", ""},
		{2, "female", "male", db.UserStatusActive, false, 25, "agnostic", "slim"},
		{3, "female", "male,female", db.UserStatusActive, false, 30, "muslim", "athletic"},
		{4, "female", "male", db.UserStatusActive, false, 35, "christian", "average"},
		{5, "female", "female", db.UserStatusActive, false, 28, "", ""},
		{6, "male", "female", db.UserStatusActive, false, 29, "", ""},
		{7, "female", "male", db.UserStatusSuspended, false, 27, "", ""},
		{8, "female", "male", db.UserStatusActive, true, 26, "", ""},
	}
	now := time.Now().UTC()
	for _, s := range seeds {
		require.NoError(t, gdb.Create(&db.User{
			ID: s.id, Username: fmt.Sprintf("user%d", s.id),
			Email: fmt.Sprintf("u%d@test.com", s.id), PasswordHash: "x",
			Status: s.status, Gender: s.gender, LookingFor: s.lookingFor,
			CanStartMatching: true, ProfileHidden: s.hidden,
		}).Error)
		require.NoError(t, gdb.Create(&db.Profile{
			UserID: s.id, DisplayName: fmt.Sprintf("User %d", s.id),
			DateOfBirth: now.AddDate(-s.age, 0, -1),
			Religion:    s.religion, BodyType: s.bodyType,
		}).Error)
	}

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()

	redisCache := cache.NewRedisCache(cfg)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := app.New(cfg, gdb, redisCache, log, nil)

	return &fixture{svc: discovery.NewService(appCtx), gdb: gdb, cfg: cfg, appCtx: appCtx}
}

func candidateIDs(page *discovery.Page) []uint64 {
	ids := make([]uint64, 0, len(page.Candidates))
	for _, c := range page.Candidates {
		ids = append(ids, c.UserID)
	}
	return ids
}

// TestCandidatesBaseline: only active, visible, reciprocally interested
// users of a wanted gender appear.
func TestCandidatesBaseline(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	page, err := f.svc.Candidates(ctx, 1, repository.Filters{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3, 4}, candidateIDs(page))
	assert.Nil(t, page.NextToken)
}

// TestPassHidesSymmetrically: user 3 passing on the viewer removes user 3
// from the viewer's pool even though the viewer never acted.
func TestPassHidesSymmetrically(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := repository.NewActionRepository(f.gdb).Upsert(ctx, 3, 1, db.ActionPass)
	require.NoError(t, err)

	page, err := f.svc.Candidates(ctx, 1, repository.Filters{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 4}, candidateIDs(page))
}

// TestIncomingLikeStaysVisible: an incoming like is not an exclusion; the
// viewer still discovers the admirer organically.
func TestIncomingLikeStaysVisible(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := repository.NewActionRepository(f.gdb).Upsert(ctx, 2, 1, db.ActionLike)
	require.NoError(t, err)

	page, err := f.svc.Candidates(ctx, 1, repository.Filters{}, nil)
	require.NoError(t, err)
	assert.Contains(t, candidateIDs(page), uint64(2))
}

// TestBlockExcludesEitherDirection: a block hides the pair from each other
// regardless of who issued it.
func TestBlockExcludesEitherDirection(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := repository.NewActionRepository(f.gdb).Upsert(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)
	_, err = repository.NewBlockRepository(f.gdb).Create(ctx, 4, 1)
	require.NoError(t, err)

	page, err := f.svc.Candidates(ctx, 1, repository.Filters{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, candidateIDs(page))
}

func TestCandidatesFilters(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	page, err := f.svc.Candidates(ctx, 1, repository.Filters{Religion: "muslim"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, candidateIDs(page))

	page, err = f.svc.Candidates(ctx, 1, repository.Filters{AgeMin: 24, AgeMax: 31}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, candidateIDs(page))
}

// TestEmptyPoolDiagnostics: an empty first page under filters reports which
// stage emptied the pool.
func TestEmptyPoolDiagnostics(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	page, err := f.svc.Candidates(ctx, 1, repository.Filters{Religion: "muslim", BodyType: "slim"}, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Candidates)
	require.NotEmpty(t, page.Diagnostics)

	byFilter := map[string]int64{}
	for _, d := range page.Diagnostics {
		byFilter[d.Filter] = d.Remaining
	}
	// user 5 fails reciprocal preference only in Go, so the staged counts
	// include it: 2, 3, 4, 5 are eligible by SQL predicates alone
	assert.Equal(t, int64(4), byFilter["eligible"])
	assert.Equal(t, int64(1), byFilter["body_type"])
	assert.Equal(t, int64(0), byFilter["religion"])
}

// TestPaginationStable walks one-candidate pages and checks order without
// repeats across pages.
func TestPaginationStable(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	f.cfg.Engine.PageSize = 1

	var seen []uint64
	var token *string
	for i := 0; i < 5; i++ {
		page, err := f.svc.Candidates(ctx, 1, repository.Filters{}, token)
		require.NoError(t, err)
		seen = append(seen, candidateIDs(page)...)
		if page.NextToken == nil {
			break
		}
		token = page.NextToken
	}
	assert.Equal(t, []uint64{2, 3, 4}, seen)
}

func TestInvalidPageToken(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	bad := "not-a-token"
	_, err := f.svc.Candidates(ctx, 1, repository.Filters{}, &bad)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

// TestUndoKeepsBlockedUserHidden drives the full cross-service sequence
// against the materialized exclusion cache: the viewer discovers (set
// materialized), likes a user, gets blocked by them, then undoes the like.
// The blocked user must stay out of the viewer's pool; the undo may not
// strip the block-origin exclusion.
func TestUndoKeepsBlockedUserHidden(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	conversations := collab.NewStoreConversations(repository.NewConversationRepository(f.gdb))
	actions := match.NewService(f.appCtx, conversations, noopNotifier{})
	registry := blocks.NewService(f.appCtx)

	page, err := f.svc.Candidates(ctx, 1, repository.Filters{}, nil)
	require.NoError(t, err)
	require.Contains(t, candidateIDs(page), uint64(2))

	_, err = actions.RecordAction(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)
	_, err = registry.Create(ctx, 2, 1)
	require.NoError(t, err)
	require.NoError(t, actions.UndoAction(ctx, 1, 2))

	page, err = f.svc.Candidates(ctx, 1, repository.Filters{}, nil)
	require.NoError(t, err)
	assert.NotContains(t, candidateIDs(page), uint64(2))
	assert.Equal(t, []uint64{3, 4}, candidateIDs(page))
}

func TestViewerChecks(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := f.svc.Candidates(ctx, 999, repository.Filters{}, nil)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.Candidates(ctx, 7, repository.Filters{}, nil)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}
