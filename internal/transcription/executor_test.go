package transcription

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"transcriber/internal/container"
)

func TestDispatchRecordsBeforeLaunchInOrder(t *testing.T) {
	rt := newFakeRuntime()
	exec := NewExecutor(rt, 2)

	var mu sync.Mutex
	var recorded []string
	rt.onStart = func(string) {
		mu.Lock()
		defer mu.Unlock()
		if len(recorded) != 3 {
			t.Errorf("container started with only %d ids recorded", len(recorded))
		}
	}

	commands := []string{"run --file a", "run --file b", "run --file c"}
	ids, err := exec.Dispatch(context.Background(), Launch{Commands: commands}, func(_ context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		recorded = append(recorded, id)
		return nil
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(ids) != len(commands) {
		t.Fatalf("got %d ids for %d commands", len(ids), len(commands))
	}
	for i, id := range ids {
		if recorded[i] != id {
			t.Errorf("recorded[%d] = %s, want %s", i, recorded[i], id)
		}
		if rt.started[id] != commands[i] {
			t.Errorf("container %s ran %q, want %q", id, rt.started[id], commands[i])
		}
	}
}

func TestDispatchJoinsAllAndReportsFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.startErr = func(cmd string) error {
		if strings.HasSuffix(cmd, "b") {
			return &container.ExitError{Name: "b", Code: 1}
		}
		return nil
	}
	exec := NewExecutor(rt, 4)

	_, err := exec.Dispatch(context.Background(), Launch{Commands: []string{"a", "b", "c"}},
		func(context.Context, string) error { return nil })

	var exit *container.ExitError
	if !errors.As(err, &exit) {
		t.Fatalf("err = %v, want ExitError", err)
	}
	if rt.startedCount() != 3 {
		t.Errorf("started %d containers, want all 3", rt.startedCount())
	}
}

func TestDispatchRecordErrorLaunchesNothing(t *testing.T) {
	rt := newFakeRuntime()
	exec := NewExecutor(rt, 4)

	calls := 0
	ids, err := exec.Dispatch(context.Background(), Launch{Commands: []string{"a", "b"}},
		func(context.Context, string) error {
			calls++
			if calls == 2 {
				return errors.New("row deleted")
			}
			return nil
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(ids) != 1 {
		t.Errorf("ids = %v", ids)
	}
	if rt.startedCount() != 0 {
		t.Errorf("started %d containers", rt.startedCount())
	}
}

func TestStopAllCancelsQueuedLaunches(t *testing.T) {
	rt := newFakeRuntime()
	release := make(chan struct{})
	started := make(chan string, 2)
	rt.onStart = func(name string) {
		started <- name
		<-release
	}
	exec := NewExecutor(rt, 1)

	var ids []string
	done := make(chan error, 1)
	go func() {
		_, err := exec.Dispatch(context.Background(), Launch{Commands: []string{"a", "b"}},
			func(_ context.Context, id string) error {
				ids = append(ids, id)
				return nil
			})
		done <- err
	}()

	<-started
	if err := exec.StopAll(context.Background(), ids); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	close(release)

	if err := <-done; !errors.Is(err, container.ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
	if rt.startedCount() != 1 {
		t.Errorf("started %d containers, want 1", rt.startedCount())
	}
	if len(exec.pending) != 0 {
		t.Errorf("pending = %v, want empty", exec.pending)
	}
}

func TestStopAll(t *testing.T) {
	rt := newFakeRuntime()
	rt.missing["gone"] = true
	exec := NewExecutor(rt, 2)

	if err := exec.StopAll(context.Background(), []string{"a", "gone", "b"}); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	stopped := rt.stoppedSet()
	for _, id := range []string{"a", "gone", "b"} {
		if !stopped[id] {
			t.Errorf("%s was not stopped", id)
		}
	}

	rt.stopErr = container.ErrUnavailable
	if err := exec.StopAll(context.Background(), []string{"a"}); !errors.Is(err, container.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
