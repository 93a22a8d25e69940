package transcription

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"transcriber/internal/container"
	"transcriber/internal/models"
)

// fakeRuntime records starts and stops. startErr, when set, decides the
// outcome of each start from its command.
type fakeRuntime struct {
	mu       sync.Mutex
	started  map[string]string
	stopped  []string
	missing  map[string]bool
	startErr func(cmd string) error
	stopErr  error
	onStart  func(name string)
	onStop   func(name string)
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		started: make(map[string]string),
		missing: make(map[string]bool),
	}
}

func (f *fakeRuntime) Start(_ context.Context, _ container.Config, cmd string, opts container.StartOptions) (string, error) {
	if f.onStart != nil {
		f.onStart(opts.Name)
	}
	f.mu.Lock()
	f.started[opts.Name] = cmd
	f.mu.Unlock()
	if f.startErr != nil {
		if err := f.startErr(cmd); err != nil {
			return "", err
		}
	}
	return opts.Name, nil
}

func (f *fakeRuntime) Stop(_ context.Context, name string) error {
	if f.onStop != nil {
		f.onStop(name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, name)
	if f.missing[name] {
		return container.ErrNotFound
	}
	return f.stopErr
}

func (f *fakeRuntime) startedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func (f *fakeRuntime) stoppedSet() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[string]bool, len(f.stopped))
	for _, id := range f.stopped {
		set[id] = true
	}
	return set
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, n models.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
}

func (p *recordingPublisher) last() (models.Notification, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		return models.Notification{}, false
	}
	return p.sent[len(p.sent)-1], true
}

type fixedProber float64

func (p fixedProber) Duration(context.Context, string) (float64, error) {
	return float64(p), nil
}

func segmentOf(cmd string) string {
	fields := strings.Fields(cmd)
	for i, f := range fields {
		if f == "--file" && i+1 < len(fields) {
			return filepath.Base(fields[i+1])
		}
	}
	return ""
}
