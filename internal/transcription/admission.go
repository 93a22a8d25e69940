package transcription

import (
	"transcriber/internal/apperr"
	"transcriber/internal/models"
)

// Rejection reasons.
const (
	ReasonHighCap      = "Only 2 high priority tasks can be executed concurrently"
	ReasonLowAlongside = "Only 2 low priority tasks can be executed alongside a high priority task"
	ReasonLowSaturated = "High priority tasks cannot be executed while more than 2 low priority tasks are in process"
)

// Counts is the number of PROCESSING transcriptions per priority.
type Counts struct {
	High   int
	Medium int
	Low    int
}

// CountByPriority tallies running transcriptions.
func CountByPriority(running []models.Transcription) Counts {
	var c Counts
	for _, t := range running {
		switch t.Priority {
		case models.PriorityHigh:
			c.High++
		case models.PriorityMedium:
			c.Medium++
		case models.PriorityLow:
			c.Low++
		}
	}
	return c
}

// Admit applies the concurrency policy; the first matching rule rejects.
// MEDIUM jobs are counted but never capped.
func Admit(c Counts, priority models.Priority) error {
	switch {
	case c.High >= 2:
		return apperr.BadRequest(ReasonHighCap)
	case c.High == 1 && c.Low >= 2:
		return apperr.BadRequest(ReasonLowAlongside)
	case c.Low > 2 && priority == models.PriorityHigh:
		return apperr.BadRequest(ReasonLowSaturated)
	}
	return nil
}
