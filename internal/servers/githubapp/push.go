package githubapp

import (
	"context"
	"sync"
	"time"

	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/servers/webhook"
)

// pushGate serializes the push tasks of one pull request.
type pushGate struct {
	active int
	turn   chan struct{}
}

// pushTracker drops redundant push triggers. With a backlog one task may
// wait behind the running one; any further push is skipped because the
// waiting task will see its commits anyway.
type pushTracker struct {
	mu    sync.Mutex
	gates *webhook.TTLMap[string, *pushGate]
}

func newPushTracker(ttl time.Duration) *pushTracker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &pushTracker{gates: webhook.NewTTLMap[string, *pushGate](ttl)}
}

// run calls fn unless enough tasks for key are already running or waiting.
// It reports whether fn ran.
func (t *pushTracker) run(ctx context.Context, key string, backlog bool, fn func()) bool {
	limit := 1
	if backlog {
		limit = 2
	}

	t.mu.Lock()
	g := t.gates.GetOrCreate(key, func() *pushGate { return &pushGate{turn: make(chan struct{}, 1)} })
	if g.active >= limit {
		t.mu.Unlock()
		return false
	}
	g.active++
	waiting := g.active > 1
	t.mu.Unlock()

	if waiting {
		logger.Info(ctx, "waiting for the running push task to finish")
	}
	g.turn <- struct{}{}
	defer func() {
		<-g.turn
		t.mu.Lock()
		g.active--
		t.mu.Unlock()
	}()
	fn()
	return true
}
