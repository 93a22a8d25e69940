package transcription

import (
	"testing"

	"transcriber/internal/apperr"
	"transcriber/internal/models"
)

func TestAdmit(t *testing.T) {
	tests := []struct {
		name     string
		counts   Counts
		priority models.Priority
		reason   string
	}{
		{"idle", Counts{}, models.PriorityHigh, ""},
		{"two high running", Counts{High: 2}, models.PriorityHigh, ReasonHighCap},
		{"two high running blocks low", Counts{High: 2}, models.PriorityLow, ReasonHighCap},
		{"one high two low", Counts{High: 1, Low: 2}, models.PriorityMedium, ReasonLowAlongside},
		{"one high one low", Counts{High: 1, Low: 1}, models.PriorityLow, ""},
		{"low saturated blocks high", Counts{Low: 3}, models.PriorityHigh, ReasonLowSaturated},
		{"low saturated admits low", Counts{Low: 3}, models.PriorityLow, ""},
		{"exactly two low admits high", Counts{Low: 2}, models.PriorityHigh, ""},
		{"medium is not capped", Counts{Medium: 10}, models.PriorityMedium, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Admit(tt.counts, tt.priority)
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("unexpected rejection: %v", err)
				}
				return
			}
			if apperr.KindOf(err) != apperr.KindBadRequest {
				t.Fatalf("err = %v, want BadRequest", err)
			}
			if got := apperr.Detail(err); got != tt.reason {
				t.Errorf("reason = %q, want %q", got, tt.reason)
			}
		})
	}
}

// A rejection at (h, m, l) stays a rejection at any higher count of the same shape.
func TestAdmitMonotonic(t *testing.T) {
	priorities := []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh}
	for h := 0; h <= 3; h++ {
		for l := 0; l <= 4; l++ {
			for _, p := range priorities {
				if Admit(Counts{High: h, Low: l}, p) == nil {
					continue
				}
				for dl := 0; dl <= 2; dl++ {
					if Admit(Counts{High: h, Low: l + dl}, p) == nil {
						t.Errorf("rejected at h=%d l=%d but admitted at l=%d (%s)", h, l, l+dl, p)
					}
				}
				if h >= 2 {
					if Admit(Counts{High: h + 1, Low: l}, p) == nil {
						t.Errorf("rejected at h=%d but admitted at h=%d (%s)", h, h+1, p)
					}
				}
			}
		}
	}
}

func TestCountByPriority(t *testing.T) {
	running := []models.Transcription{
		{Priority: models.PriorityHigh},
		{Priority: models.PriorityLow},
		{Priority: models.PriorityLow},
		{Priority: models.PriorityMedium},
	}
	got := CountByPriority(running)
	if got != (Counts{High: 1, Medium: 1, Low: 2}) {
		t.Errorf("counts = %+v", got)
	}
}
