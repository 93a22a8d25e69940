package transcription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"transcriber/internal/container"
)

// Launch is one batch of containers sharing a config.
type Launch struct {
	Config   container.Config
	Commands []string
	Detach   bool
	Remove   bool
}

// Executor fans container commands out over a bounded pool.
type Executor struct {
	runtime container.Runtime
	limit   int
	newID   func() string

	mu      sync.Mutex
	pending map[string]bool // waiting for a slot; true once cancelled by StopAll
}

// NewExecutor creates an executor running at most limit containers at once.
func NewExecutor(runtime container.Runtime, limit int) *Executor {
	if limit < 1 {
		limit = 1
	}
	return &Executor{
		runtime: runtime,
		limit:   limit,
		newID:   func() string { return "transcription-" + uuid.New().String() },
		pending: make(map[string]bool),
	}
}

// Dispatch names one container per command and hands every name to record,
// in command order, before any container starts. It then runs all commands
// and waits for every one of them, returning the first error.
//
// A record error aborts the dispatch before anything is launched. Commands
// still waiting for a slot when StopAll names them are never started and
// fail with container.ErrStopped.
func (e *Executor) Dispatch(ctx context.Context, l Launch, record func(ctx context.Context, id string) error) ([]string, error) {
	ids := make([]string, len(l.Commands))
	for i := range l.Commands {
		ids[i] = e.newID()
		if err := record(ctx, ids[i]); err != nil {
			return ids[:i], fmt.Errorf("record task %d: %w", i, err)
		}
	}

	e.mu.Lock()
	for _, id := range ids {
		e.pending[id] = false
	}
	e.mu.Unlock()
	defer e.forget(ids)

	var g errgroup.Group
	g.SetLimit(e.limit)
	for i, cmd := range l.Commands {
		id := ids[i]
		g.Go(func() error {
			if e.take(id) {
				log.Printf("Container %s cancelled before launch", id)
				return fmt.Errorf("container %s: %w", id, container.ErrStopped)
			}
			_, err := e.runtime.Start(ctx, l.Config, cmd, container.StartOptions{
				Name:   id,
				Detach: l.Detach,
				Remove: l.Remove,
			})
			if err != nil {
				log.Printf("Container %s failed: %v", id, err)
				return fmt.Errorf("container %s: %w", id, err)
			}
			return nil
		})
	}
	return ids, g.Wait()
}

// StopAll stops every container concurrently and waits for all stops.
// Containers that no longer exist count as stopped.
func (e *Executor) StopAll(ctx context.Context, ids []string) error {
	e.mu.Lock()
	for _, id := range ids {
		if _, ok := e.pending[id]; ok {
			e.pending[id] = true
		}
	}
	e.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(e.limit)
	for _, id := range ids {
		g.Go(func() error {
			err := e.runtime.Stop(ctx, id)
			if err == nil || errors.Is(err, container.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("stop %s: %w", id, err)
		})
	}
	return g.Wait()
}

// take removes id from the pending set and reports whether it was cancelled.
func (e *Executor) take(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancelled := e.pending[id]
	delete(e.pending, id)
	return cancelled
}

func (e *Executor) forget(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		delete(e.pending, id)
	}
}
