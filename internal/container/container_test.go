package container

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigBinds(t *testing.T) {
	cfg := Config{
		Image: "transcription-service",
		Volumes: map[string]Volume{
			"/srv/data":   {Bind: "/home/files", Mode: "rw"},
			"/srv/models": {Bind: "/models", Mode: "ro"},
			"/srv/cache":  {Bind: "/cache"},
		},
	}

	got := cfg.Binds()
	want := []string{
		"/srv/cache:/cache:rw",
		"/srv/data:/home/files:rw",
		"/srv/models:/models:ro",
	}
	if len(got) != len(want) {
		t.Fatalf("Binds() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Binds()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Error("expected error for missing image")
	}
	bad := Config{Image: "x", Volumes: map[string]Volume{"/data": {}}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for volume without bind")
	}
	ok := Config{Image: "x", Volumes: map[string]Volume{"/data": {Bind: "/home/files"}}}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExitErrorStopped(t *testing.T) {
	tests := []struct {
		code    int64
		stopped bool
	}{
		{1, false},
		{2, false},
		{137, true},
		{143, true},
	}

	for _, tt := range tests {
		err := fmt.Errorf("segment 0: %w", &ExitError{Name: "c1", Code: tt.code})
		if got := errors.Is(err, ErrStopped); got != tt.stopped {
			t.Errorf("code %d: errors.Is(ErrStopped) = %v, want %v", tt.code, got, tt.stopped)
		}
	}
}
