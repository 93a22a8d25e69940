package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Library resolves the on-disk layout of uploaded files:
// <root>/<file_id>/ holds the original upload, file.wav and its split parts,
// and <root>/<file_id>/transcriptions/ holds the recognition output.
type Library struct {
	root string
}

// NewLibrary creates a library rooted at dataDir.
func NewLibrary(dataDir string) *Library {
	return &Library{root: dataDir}
}

// Root returns the data directory.
func (l *Library) Root() string {
	return l.root
}

// Dir returns the folder of a file.
func (l *Library) Dir(fileID string) string {
	return filepath.Join(l.root, fileID)
}

// TranscriptionsDir returns the folder recognition output is written to.
func (l *Library) TranscriptionsDir(fileID string) string {
	return filepath.Join(l.root, fileID, "transcriptions")
}

// Segments lists the WAV segments available for a file, sorted by name.
// A missing folder yields no segments.
func (l *Library) Segments(fileID string) ([]string, error) {
	entries, err := os.ReadDir(l.Dir(fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// DurationProber measures media duration in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// SegmentDurations probes each named segment of a file, in order.
func (l *Library) SegmentDurations(ctx context.Context, prober DurationProber, fileID string, segments []string) ([]float64, error) {
	durations := make([]float64, len(segments))
	for i, seg := range segments {
		d, err := prober.Duration(ctx, filepath.Join(l.Dir(fileID), seg))
		if err != nil {
			return nil, err
		}
		durations[i] = d
	}
	return durations, nil
}
