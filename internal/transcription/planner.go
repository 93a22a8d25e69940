package transcription

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"transcriber/internal/apperr"
	"transcriber/internal/models"
)

// SegmentLister lists the audio segment file names available for a file.
type SegmentLister interface {
	Segments(fileID string) ([]string, error)
}

// PlannerConfig controls how commands are built.
type PlannerConfig struct {
	Bin       string                  // recognizer binary inside the container
	Model     string                  // model path inside the container
	Root      string                  // data directory as mounted in the container
	CPUCount  int                     // logical CPUs shared by all containers
	Divisors  map[models.Priority]int // CPU share per priority
	Reduction int                     // threads held back per container
	Fine      *regexp.Regexp          // names matching this form the fine-grained set
}

// Plan is the per-segment work for one transcription.
// Segments[i] is transcribed by Commands[i].
type Plan struct {
	Segments []string
	Commands []string
	Threads  int
}

// Planner turns a transcription request into container commands.
type Planner struct {
	lister SegmentLister
	cfg    PlannerConfig
}

// NewPlanner creates a planner. A nil Fine pattern means "contains a digit".
func NewPlanner(lister SegmentLister, cfg PlannerConfig) *Planner {
	if cfg.Fine == nil {
		cfg.Fine = regexp.MustCompile(`\d`)
	}
	if cfg.CPUCount < 1 {
		cfg.CPUCount = 1
	}
	return &Planner{lister: lister, cfg: cfg}
}

// Threads returns the thread count each container of the given priority gets.
func (p *Planner) Threads(priority models.Priority) int {
	divisor := p.cfg.Divisors[priority]
	if divisor < 1 {
		divisor = 1
	}
	threads := p.cfg.CPUCount/divisor - p.cfg.Reduction
	if threads < 1 {
		return 1
	}
	return threads
}

// Plan selects the segment set for priority and builds one command per segment.
func (p *Planner) Plan(fileID string, language models.Language, priority models.Priority) (*Plan, error) {
	names, err := p.lister.Segments(fileID)
	if err != nil {
		return nil, err
	}

	segments := SelectSegments(names, p.cfg.Fine, priority)
	if len(segments) == 0 {
		return nil, apperr.NotFound("Segments not found")
	}

	threads := p.Threads(priority)
	commands := make([]string, len(segments))
	for i, seg := range segments {
		commands[i] = p.command(fileID, seg, language, threads)
	}

	return &Plan{Segments: segments, Commands: commands, Threads: threads}, nil
}

func (p *Planner) command(fileID, segment string, language models.Language, threads int) string {
	stem := SegmentStem(segment)
	dir := path.Join(p.cfg.Root, fileID)
	return strings.Join([]string{
		p.cfg.Bin,
		"--threads", strconv.Itoa(threads),
		"--language", language.Code(),
		"--model", p.cfg.Model,
		"--file", path.Join(dir, segment),
		"--output-srt",
		"--output-file", path.Join(dir, "transcriptions", stem, stem),
	}, " ")
}

// SelectSegments keeps the fine-grained set for HIGH and the coarse set
// otherwise, ordered by the number embedded in each name.
func SelectSegments(names []string, fine *regexp.Regexp, priority models.Priority) []string {
	wantFine := priority == models.PriorityHigh

	var out []string
	for _, name := range names {
		if fine.MatchString(name) == wantFine {
			out = append(out, name)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := compareDigits(segmentNumber(out[i]), segmentNumber(out[j])); c != 0 {
			return c < 0
		}
		return out[i] < out[j]
	})
	return out
}

// SegmentStem strips the extension from a segment name.
func SegmentStem(segment string) string {
	return strings.TrimSuffix(segment, filepath.Ext(segment))
}

// segmentNumber returns the trailing digit run of the stem without leading
// zeros, "" when there is none.
func segmentNumber(name string) string {
	stem := SegmentStem(name)
	i := len(stem)
	for i > 0 && stem[i-1] >= '0' && stem[i-1] <= '9' {
		i--
	}
	return strings.TrimLeft(stem[i:], "0")
}

// compareDigits orders decimal digit strings numerically without parsing
// them, so runs of any length compare correctly.
func compareDigits(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

func (p *Plan) String() string {
	return fmt.Sprintf("%d segments, %d threads", len(p.Segments), p.Threads)
}
