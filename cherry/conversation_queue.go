package cherry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/lmittmann/tint"
)

// ConversationQueue runs units of work one at a time per key (thread ID),
// in submission order. Different keys run independently. A failing or
// panicking unit is logged and the next one still runs.
type ConversationQueue struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string][]queuedTurn
	wg      sync.WaitGroup
}

type queuedTurn struct {
	ctx  context.Context
	work func(ctx context.Context) error
	done chan error
}

func NewConversationQueue(logger *slog.Logger) *ConversationQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationQueue{
		logger:  logger.With(loggerNameKey, "conversation_queue"),
		pending: map[string][]queuedTurn{},
	}
}

// Enqueue adds work to the queue for key. If nothing is queued for key,
// a worker is started and the work runs immediately. The returned
// channel receives the work's result once it has run.
func (q *ConversationQueue) Enqueue(
	ctx context.Context,
	key string,
	work func(ctx context.Context) error,
) <-chan error {
	done := make(chan error, 1)
	q.mu.Lock()
	defer q.mu.Unlock()

	queue, running := q.pending[key]
	q.pending[key] = append(queue, queuedTurn{ctx: ctx, work: work, done: done})
	if !running {
		q.wg.Add(1)
		go q.drain(key)
	}
	return done
}

// Len returns the number of queued (including running) units for key
func (q *ConversationQueue) Len(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[key])
}

// Wait blocks until every queue is empty
func (q *ConversationQueue) Wait() {
	q.wg.Wait()
}

// drain runs queued units for key until none remain. The head of the
// queue stays in place while it runs, so Enqueue sees the key as busy.
func (q *ConversationQueue) drain(key string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		queue := q.pending[key]
		if len(queue) == 0 {
			delete(q.pending, key)
			q.mu.Unlock()
			return
		}
		turn := queue[0]
		q.mu.Unlock()

		err := q.run(key, turn)
		turn.done <- err
		close(turn.done)

		q.mu.Lock()
		rest := q.pending[key][1:]
		if len(rest) == 0 {
			delete(q.pending, key)
			q.mu.Unlock()
			return
		}
		q.pending[key] = rest
		q.mu.Unlock()
	}
}

func (q *ConversationQueue) run(key string, turn queuedTurn) (err error) {
	defer func() {
		if rc := recover(); rc != nil {
			q.logger.ErrorContext(
				turn.ctx,
				"recovered from panic",
				"key", key,
				"panic", rc,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", rc)
		}
	}()
	if err = turn.work(turn.ctx); err != nil {
		q.logger.ErrorContext(turn.ctx, "queued work failed", "key", key, tint.Err(err))
	}
	return err
}
