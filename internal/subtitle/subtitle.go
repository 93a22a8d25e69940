// Package subtitle merges per-segment recognition output into one transcript
// and renders it as SRT, WebVTT, JSON and CSV.
package subtitle

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/asticode/go-astisub"
)

// BaseName is the stem of every merged artifact.
const BaseName = "file"

// Event is one cue in the JSON and CSV renditions. Times are milliseconds.
type Event struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Text  string `json:"text"`
}

// Merge loads each SRT input, shifts it by the matching offset and merges
// the cues into one timeline. inputs and offsets are index-aligned.
func Merge(inputs []string, offsets []time.Duration) (*astisub.Subtitles, error) {
	if len(inputs) != len(offsets) {
		return nil, fmt.Errorf("subtitle merge: %d inputs but %d offsets", len(inputs), len(offsets))
	}

	merged := astisub.NewSubtitles()
	for i, input := range inputs {
		subs, err := astisub.OpenFile(input)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(input), err)
		}
		subs.Add(offsets[i])
		merged.Merge(subs)
	}
	return merged, nil
}

// Offsets turns segment durations into cumulative start offsets.
func Offsets(durations []float64) []time.Duration {
	offsets := make([]time.Duration, len(durations))
	var total float64
	for i, d := range durations {
		offsets[i] = time.Duration(total * float64(time.Second))
		total += d
	}
	return offsets
}

// Events flattens the cues of subs.
func Events(subs *astisub.Subtitles) []Event {
	events := make([]Event, 0, len(subs.Items))
	for _, item := range subs.Items {
		lines := make([]string, 0, len(item.Lines))
		for _, l := range item.Lines {
			lines = append(lines, l.String())
		}
		events = append(events, Event{
			Start: item.StartAt.Milliseconds(),
			End:   item.EndAt.Milliseconds(),
			Text:  strings.Join(lines, "\n"),
		})
	}
	return events
}

// WriteAll writes file.srt, file.vtt, file.json and file.csv into dir and
// returns the written paths.
func WriteAll(subs *astisub.Subtitles, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	srtPath := filepath.Join(dir, BaseName+".srt")
	vttPath := filepath.Join(dir, BaseName+".vtt")
	jsonPath := filepath.Join(dir, BaseName+".json")
	csvPath := filepath.Join(dir, BaseName+".csv")

	if len(subs.Items) == 0 {
		// astisub refuses to write an empty document
		if err := os.WriteFile(srtPath, nil, 0644); err != nil {
			return nil, err
		}
		if err := os.WriteFile(vttPath, []byte("WEBVTT\n"), 0644); err != nil {
			return nil, err
		}
	} else {
		if err := subs.Write(srtPath); err != nil {
			return nil, fmt.Errorf("failed to write srt: %w", err)
		}
		if err := subs.Write(vttPath); err != nil {
			return nil, fmt.Errorf("failed to write vtt: %w", err)
		}
	}

	events := Events(subs)
	if err := writeJSON(jsonPath, events); err != nil {
		return nil, err
	}
	if err := writeCSV(csvPath, events); err != nil {
		return nil, err
	}

	return []string{srtPath, vttPath, jsonPath, csvPath}, nil
}

func writeJSON(path string, events []Event) error {
	data, err := json.MarshalIndent(map[string][]Event{"events": events}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func writeCSV(path string, events []Event) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, e := range events {
		if err := w.Write([]string{strconv.FormatInt(e.Start, 10), strconv.FormatInt(e.End, 10), e.Text}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
