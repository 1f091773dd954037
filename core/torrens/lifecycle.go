package torrens

import (
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darslik/core"
)

// allowed status transitions; re-grading is allowed
var transitions = map[string][]string{
	StatusDraft:    {StatusFinished},
	StatusFinished: {StatusGraded},
	StatusGraded:   {StatusGraded},
}

func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transitionErr(from, to string) error {
	return core.NewConflictError(fmt.Sprintf("a %s submission cannot become %s", from, to))
}

// Finish moves a draft to finished.
func (s *Submission) Finish(at time.Time) error {
	if !CanTransition(s.Status, StatusFinished) {
		return transitionErr(s.Status, StatusFinished)
	}
	s.Status = StatusFinished
	s.FinishedAt = null.TimeFrom(at)
	return nil
}

// MarkGraded sets the total score of a finished (or already graded) submission.
func (s *Submission) MarkGraded(total float64) error {
	if !CanTransition(s.Status, StatusGraded) {
		return transitionErr(s.Status, StatusGraded)
	}
	s.Status = StatusGraded
	s.TotalScore = total
	return nil
}

func (s Submission) IsDraft() bool { return s.Status == StatusDraft }
