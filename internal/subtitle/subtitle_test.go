package subtitle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const segmentSRT = `1
00:00:00,000 --> 00:00:01,500
hello

2
00:00:02,000 --> 00:00:03,000
world
`

func writeSegment(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(segmentSRT), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOffsets(t *testing.T) {
	got := Offsets([]float64{10, 2.5, 7})
	want := []time.Duration{0, 10 * time.Second, 12500 * time.Millisecond}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("offset[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMergeShiftsAndRenumbers(t *testing.T) {
	dir := t.TempDir()
	a := writeSegment(t, dir, "file1.srt")
	b := writeSegment(t, dir, "file2.srt")

	subs, err := Merge([]string{a, b}, Offsets([]float64{10, 10}))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	events := Events(subs)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	if events[2].Start != 10000 || events[2].End != 11500 || events[2].Text != "hello" {
		t.Errorf("shifted event = %+v", events[2])
	}

	out := filepath.Join(dir, "transcriptions")
	paths, err := WriteAll(subs, out)
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("wrote %d files", len(paths))
	}

	srt, err := os.ReadFile(filepath.Join(out, "file.srt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(srt), "4\n00:00:12,000 --> 00:00:13,000") {
		t.Errorf("merged srt not renumbered/shifted:\n%s", srt)
	}

	data, err := os.ReadFile(filepath.Join(out, "file.json"))
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Events []Event `json:"events"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Events) != 4 {
		t.Errorf("json events = %d", len(doc.Events))
	}

	csvData, err := os.ReadFile(filepath.Join(out, "file.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(csvData), "0,1500,hello\n") {
		t.Errorf("csv = %q", csvData)
	}
}

func TestMergeMismatchedOffsets(t *testing.T) {
	if _, err := Merge([]string{"a.srt"}, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestWriteAllEmpty(t *testing.T) {
	subs, err := Merge(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := WriteAll(subs, t.TempDir()); err != nil {
		t.Fatalf("WriteAll empty: %v", err)
	}
}
