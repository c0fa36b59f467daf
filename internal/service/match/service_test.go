package match_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
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
	"github.com/embermatch/engine/internal/service/match"
)

// fakeNotifier records enqueued notifications synchronously so tests can
// assert on dispatch without a worker pool.
type fakeNotifier struct {
	sent []sentNotification
}

type sentNotification struct {
	UserID uint64
	Kind   string
}

func (f *fakeNotifier) Enqueue(_ context.Context, userID uint64, kind string, _ map[string]any) {
	f.sent = append(f.sent, sentNotification{UserID: userID, Kind: kind})
}

func (f *fakeNotifier) countOf(kind string) int {
	n := 0
	for _, s := range f.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	svc      *match.Service
	gdb      *gorm.DB
	notifier *fakeNotifier
}

// setupService wires an in-memory SQLite DB, a miniredis, a store-backed
// conversation creator and a recording notifier into the action recorder.
// Users 1-6 exist and are active.
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

	users := make([]db.User, 0, 6)
	for i := 1; i <= 6; i++ {
		users = append(users, db.User{
			ID:           uint64(i),
			Username:     fmt.Sprintf("user%d", i),
			Email:        fmt.Sprintf("u%d@test.com", i),
			PasswordHash: "x",
			Status:       db.UserStatusActive,
			Gender:       "female",
			LookingFor:   "male,female",
		})
	}
	require.NoError(t, gdb.Create(&users).Error)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()

	redisCache := cache.NewRedisCache(cfg)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := app.New(cfg, gdb, redisCache, log, nil)

	notifier := &fakeNotifier{}
	conversations := collab.NewStoreConversations(repository.NewConversationRepository(gdb))

	return &fixture{
		svc:      match.NewService(appCtx, conversations, notifier),
		gdb:      gdb,
		notifier: notifier,
	}
}

// TestMutualMatchExactlyOnce runs the mutual-like sequence and checks that
// exactly one conversation is created and each party is notified once, even
// when the winning like is resubmitted.
func TestMutualMatchExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	first, err := f.svc.RecordAction(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)
	assert.False(t, first.MutualMatch)

	second, err := f.svc.RecordAction(ctx, 2, 1, db.ActionLike)
	require.NoError(t, err)
	assert.True(t, second.MutualMatch)
	assert.NotZero(t, second.ConversationID)

	// resubmission reports the match again but creates nothing new
	again, err := f.svc.RecordAction(ctx, 2, 1, db.ActionLike)
	require.NoError(t, err)
	assert.True(t, again.MutualMatch)
	assert.Equal(t, second.ConversationID, again.ConversationID)

	var convCount int64
	require.NoError(t, f.gdb.Model(&db.Conversation{}).Count(&convCount).Error)
	assert.Equal(t, int64(1), convCount)
	assert.Equal(t, 2, f.notifier.countOf(collab.NotifyMutualMatch))
}

func TestPassNeverMatches(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := f.svc.RecordAction(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)

	result, err := f.svc.RecordAction(ctx, 2, 1, db.ActionPass)
	require.NoError(t, err)
	assert.False(t, result.MutualMatch)
	assert.Empty(t, f.notifier.sent)
}

func TestRecordActionValidation(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := f.svc.RecordAction(ctx, 1, 1, db.ActionLike)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.RecordAction(ctx, 1, 2, "wink")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.RecordAction(ctx, 1, 999, db.ActionLike)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRecordActionBlockedPair(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	blockRepo := repository.NewBlockRepository(f.gdb)
	_, err := blockRepo.Create(ctx, 2, 1)
	require.NoError(t, err)

	_, err = f.svc.RecordAction(ctx, 1, 2, db.ActionLike)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestUndoWithinWindow(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := f.svc.RecordAction(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)
	require.NoError(t, f.svc.UndoAction(ctx, 1, 2))

	action, err := repository.NewActionRepository(f.gdb).Get(ctx, 1, 2)
	require.NoError(t, err)
	assert.Nil(t, action)
}

func TestUndoTooLate(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := f.svc.RecordAction(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)

	require.NoError(t, f.gdb.Exec(
		"UPDATE actions SET updated_at = ? WHERE actor_id = 1 AND target_id = 2",
		time.Now().UTC().Add(-time.Minute),
	).Error)

	err = f.svc.UndoAction(ctx, 1, 2)
	assert.Equal(t, apperr.KindTooLate, apperr.KindOf(err))
}

// TestUndoAfterMutualMatch: an action that produced a mutual match is
// permanent; only unmatch can dissolve the pair.
func TestUndoAfterMutualMatch(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := f.svc.RecordAction(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)
	_, err = f.svc.RecordAction(ctx, 2, 1, db.ActionLike)
	require.NoError(t, err)

	err = f.svc.UndoAction(ctx, 2, 1)
	assert.Equal(t, apperr.KindImmutable, apperr.KindOf(err))
}

func TestUndoNothingRecorded(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	err := f.svc.UndoAction(ctx, 1, 2)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUnmatch(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := f.svc.RecordAction(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)
	_, err = f.svc.RecordAction(ctx, 2, 1, db.ActionLike)
	require.NoError(t, err)

	require.NoError(t, f.svc.Unmatch(ctx, 1, 2))

	mutual, err := repository.NewActionRepository(f.gdb).IsMutual(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, mutual)

	// no mutual match left to dissolve
	err = f.svc.Unmatch(ctx, 1, 2)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUnmatchRequiresMutual(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := f.svc.RecordAction(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)

	err = f.svc.Unmatch(ctx, 1, 2)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

// TestAdmirerCountCache verifies the count is served from Redis after the
// first computation and invalidated when a new like arrives.
func TestAdmirerCountCache(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := f.svc.RecordAction(ctx, 2, 1, db.ActionLike)
	require.NoError(t, err)

	count, err := f.svc.AdmirerCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// cached
	count, err = f.svc.AdmirerCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// a new like invalidates the cached count
	_, err = f.svc.RecordAction(ctx, 3, 1, db.ActionLike)
	require.NoError(t, err)

	count, err = f.svc.AdmirerCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

// TestMutualMatchProperty drives a long randomized sequence of record,
// undo and unmatch operations and checks after every step that the service
// agrees with a shadow model recomputed from first principles: a mutual
// match holds iff both directions carry a live like or super-like, and a
// conversation row exists for a pair iff a mutual match was ever committed.
func TestMutualMatchProperty(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	r := rand.New(rand.NewSource(1))

	type edge struct {
		kind      string
		unmatched bool
	}
	shadow := map[[2]uint64]edge{}
	positive := func(a, b uint64) bool {
		e, ok := shadow[[2]uint64{a, b}]
		return ok && !e.unmatched && (e.kind == db.ActionLike || e.kind == db.ActionSuperLike)
	}
	mutual := func(a, b uint64) bool { return positive(a, b) && positive(b, a) }
	everMatched := map[string]bool{}
	pairKey := func(a, b uint64) string {
		if a > b {
			a, b = b, a
		}
		return fmt.Sprintf("%d:%d", a, b)
	}

	kinds := []string{db.ActionLike, db.ActionLike, db.ActionSuperLike, db.ActionPass}
	actionRepo := repository.NewActionRepository(f.gdb)

	for i := 0; i < 300; i++ {
		actor := uint64(r.Intn(5) + 1)
		target := uint64(r.Intn(5) + 1)
		if actor == target {
			continue
		}

		switch op := r.Intn(10); {
		case op < 6:
			kind := kinds[r.Intn(len(kinds))]
			result, err := f.svc.RecordAction(ctx, actor, target, kind)
			require.NoError(t, err)
			shadow[[2]uint64{actor, target}] = edge{kind: kind}

			wantMutual := kind != db.ActionPass && positive(target, actor)
			require.Equal(t, wantMutual, result.MutualMatch,
				"step %d: %d %s %d", i, actor, kind, target)
			if result.MutualMatch {
				everMatched[pairKey(actor, target)] = true
			}
		case op < 8:
			err := f.svc.UndoAction(ctx, actor, target)
			switch {
			case shadow[[2]uint64{actor, target}] == edge{}:
				require.Equal(t, apperr.KindNotFound, apperr.KindOf(err), "step %d", i)
			case mutual(actor, target):
				require.Equal(t, apperr.KindImmutable, apperr.KindOf(err), "step %d", i)
			default:
				require.NoError(t, err, "step %d", i)
				delete(shadow, [2]uint64{actor, target})
			}
		default:
			err := f.svc.Unmatch(ctx, actor, target)
			if mutual(actor, target) {
				require.NoError(t, err, "step %d", i)
				for _, dir := range [][2]uint64{{actor, target}, {target, actor}} {
					e := shadow[dir]
					e.unmatched = true
					shadow[dir] = e
				}
			} else {
				require.Equal(t, apperr.KindNotFound, apperr.KindOf(err), "step %d", i)
			}
		}
	}

	for a := uint64(1); a <= 5; a++ {
		for b := a + 1; b <= 5; b++ {
			got, err := actionRepo.IsMutual(ctx, a, b)
			require.NoError(t, err)
			assert.Equal(t, mutual(a, b), got, "pair %d-%d", a, b)

			var convCount int64
			require.NoError(t, f.gdb.Model(&db.Conversation{}).
				Where("pair_key = ?", repository.DirectPairKey(a, b)).
				Count(&convCount).Error)
			want := int64(0)
			if everMatched[pairKey(a, b)] {
				want = 1
			}
			assert.Equal(t, want, convCount, "pair %d-%d", a, b)
		}
	}
}

func TestAdmirersListing(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	for _, actor := range []uint64{2, 3, 4} {
		_, err := f.svc.RecordAction(ctx, actor, 1, db.ActionLike)
		require.NoError(t, err)
	}
	// liking user4 back hides them from the new-only listing
	_, err := f.svc.RecordAction(ctx, 1, 4, db.ActionLike)
	require.NoError(t, err)

	all, _, err := f.svc.Admirers(ctx, 1, false, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	fresh, _, err := f.svc.Admirers(ctx, 1, true, nil)
	require.NoError(t, err)
	ids := make([]uint64, 0, len(fresh))
	for _, a := range fresh {
		ids = append(ids, a.ActorID)
	}
	assert.ElementsMatch(t, []uint64{2, 3}, ids)
}
