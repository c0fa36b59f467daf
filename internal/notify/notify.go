// Package notify implements the fire-and-forget notification dispatcher.
// Deliveries are handed to a worker pool and pushed onto a Redis outbox
// consumed by the notification collaborator; the request path never waits
// on them and never observes their failures.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/embermatch/engine/internal/cache"
)

// dispatchTimeout bounds a single outbox push.
const dispatchTimeout = 5 * time.Second

type envelope struct {
	UserID    uint64         `json:"user_id"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AsyncNotifier satisfies collab.Notifier over an ants pool and a Redis
// outbox list.
type AsyncNotifier struct {
	pool  *ants.Pool
	cache *cache.RedisCache
	log   *slog.Logger
}

// NewAsyncNotifier builds the dispatcher.
func NewAsyncNotifier(pool *ants.Pool, redisCache *cache.RedisCache, log *slog.Logger) *AsyncNotifier {
	return &AsyncNotifier{pool: pool, cache: redisCache, log: log}
}

// NewPool builds the worker pool backing the dispatcher. Nonblocking: if
// the pool is saturated, Submit fails fast and the notification is dropped
// with a log line rather than stalling a request.
func NewPool(size int, log *slog.Logger) (*ants.Pool, error) {
	return ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			log.Error("notification task panic", "panic", p, "stack", string(debug.Stack()))
		}),
	)
}

// Enqueue schedules a notification. Never blocks, never returns an error:
// failures are logged and the caller's request proceeds regardless.
func (n *AsyncNotifier) Enqueue(_ context.Context, userID uint64, kind string, payload map[string]any) {
	env := envelope{
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	err := n.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		body, err := json.Marshal(env)
		if err != nil {
			n.log.Error("notification marshal failed", "user", userID, "kind", kind, "err", err)
			return
		}
		if err := n.cache.EnqueueNotification(ctx, body); err != nil {
			n.log.Error("notification enqueue failed", "user", userID, "kind", kind, "err", err)
			return
		}
		n.log.Debug("notification enqueued", "user", userID, "kind", kind)
	})
	if err != nil {
		n.log.Error("notification submit failed", "user", userID, "kind", kind, "err", err)
	}
}
