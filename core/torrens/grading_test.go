package torrens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darslik/core"
)

func TestGradeSubmission(t *testing.T) {
	answers := []Answer{{ID: 1, TaskID: 10}, {ID: 2, TaskID: 20}}

	tests := []struct {
		name       string
		scores     map[int64]string
		notes      map[int64]string
		wantScores []float64
		wantTotal  float64
	}{
		{name: "sum", scores: map[int64]string{1: "3", 2: "5"}, wantScores: []float64{3, 5}, wantTotal: 8},
		{name: "decimals", scores: map[int64]string{1: " 2.5 ", 2: "1.25"}, wantScores: []float64{2.5, 1.25}, wantTotal: 3.75},
		{name: "unparseable is 0", scores: map[int64]string{1: "abc", 2: "4"}, wantScores: []float64{0, 4}, wantTotal: 4},
		{name: "missing is 0", scores: map[int64]string{2: "4"}, wantScores: []float64{0, 4}, wantTotal: 4},
		{name: "NaN is 0", scores: map[int64]string{1: "NaN", 2: "Inf"}, wantScores: []float64{0, 0}},
		{name: "notes", scores: map[int64]string{}, notes: map[int64]string{2: "good idea"}, wantScores: []float64{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graded, total := GradeSubmission(answers, tt.scores, tt.notes)
			require.Len(t, graded, len(answers))
			for i, ans := range graded {
				assert.Equal(t, tt.wantScores[i], ans.Score)
				assert.Equal(t, tt.notes[ans.ID], ans.Note)
			}
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}

func TestGradeSubmission_regradeOverwrites(t *testing.T) {
	sub := Submission{Status: StatusFinished, Answers: []Answer{{ID: 1}, {ID: 2}}}

	answers, total := GradeSubmission(sub.Answers, map[int64]string{1: "3", 2: "5"}, nil)
	require.NoError(t, sub.MarkGraded(total))
	sub.Answers = answers
	assert.Equal(t, 8.0, sub.Score())

	answers, total = GradeSubmission(sub.Answers, map[int64]string{1: "4", 2: "5"}, nil)
	require.NoError(t, sub.MarkGraded(total))
	sub.Answers = answers
	assert.Equal(t, 9.0, sub.Score())
	assert.Equal(t, 4.0, sub.Answers[0].Score)
}

func TestSubmissionLifecycle(t *testing.T) {
	now := time.Now()

	t.Run("draft -> finished -> graded", func(t *testing.T) {
		sub := Submission{Status: StatusDraft, TotalScore: 12}
		assert.Zero(t, sub.Score(), "score before grading")

		require.NoError(t, sub.Finish(now))
		assert.Equal(t, StatusFinished, sub.Status)
		assert.True(t, sub.FinishedAt.Valid)
		assert.Zero(t, sub.Score(), "score before grading")

		require.NoError(t, sub.MarkGraded(7))
		assert.Equal(t, StatusGraded, sub.Status)
		assert.Equal(t, 7.0, sub.Score())
	})

	tests := []struct {
		name   string
		status string
		do     func(*Submission) error
	}{
		{name: "grade a draft", status: StatusDraft, do: func(s *Submission) error { return s.MarkGraded(1) }},
		{name: "finish twice", status: StatusFinished, do: func(s *Submission) error { return s.Finish(now) }},
		{name: "finish a graded", status: StatusGraded, do: func(s *Submission) error { return s.Finish(now) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := Submission{Status: tt.status}
			err := tt.do(&sub)
			require.Error(t, err)
			assert.True(t, core.IsConflictError(err))
			assert.Equal(t, tt.status, sub.Status)
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusFinished))
	assert.True(t, CanTransition(StatusFinished, StatusGraded))
	assert.True(t, CanTransition(StatusGraded, StatusGraded))
	assert.False(t, CanTransition(StatusGraded, StatusDraft))
	assert.False(t, CanTransition(StatusFinished, StatusDraft))
	assert.False(t, CanTransition(StatusDraft, StatusGraded))
	assert.False(t, CanTransition("lol", StatusFinished))
}
