package quiz

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
)

func makeQuestions(quizID int64, n int) []Question {
	qs := make([]Question, 0, n)
	for i := n; i >= 1; i-- { // reversed on purpose: selection must sort
		qs = append(qs, Question{
			ID:     int64(100 + i),
			QuizID: quizID,
			Order:  i,
			Type:   TypeSingle,
			Points: 1,
			Choices: []Choice{
				{ID: int64(1000 + i*10 + 1), Text: "a", IsCorrect: true},
				{ID: int64(1000 + i*10 + 2), Text: "b"},
				{ID: int64(1000 + i*10 + 3), Text: "c"},
			},
		})
	}
	return qs
}

func TestSelectQuestionIDs(t *testing.T) {
	questions := makeQuestions(1, 10)
	all := []int64{101, 102, 103, 104, 105, 106, 107, 108, 109, 110}

	tests := []struct {
		name    string
		quiz    Quiz
		wantLen int
		ordered bool
	}{
		{name: "no shuffle, no limit", quiz: Quiz{ID: 1}, wantLen: 10, ordered: true},
		{name: "no shuffle, limit 3", quiz: Quiz{ID: 1, LimitQuestions: null.IntFrom(3)}, wantLen: 3, ordered: true},
		{name: "limit 0 is ignored", quiz: Quiz{ID: 1, LimitQuestions: null.IntFrom(0)}, wantLen: 10, ordered: true},
		{name: "limit > available", quiz: Quiz{ID: 1, LimitQuestions: null.IntFrom(50)}, wantLen: 10, ordered: true},
		{name: "shuffle, no limit", quiz: Quiz{ID: 1, ShuffleQuestions: true}, wantLen: 10},
		{name: "shuffle, limit 4", quiz: Quiz{ID: 1, ShuffleQuestions: true, LimitQuestions: null.IntFrom(4)}, wantLen: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rnd := rand.New(rand.NewSource(42))
			for i := 0; i < 20; i++ {
				ids := SelectQuestionIDs(tt.quiz, questions, rnd)
				require.Len(t, ids, tt.wantLen)
				assert.Subset(t, all, ids)

				seen := make(map[int64]bool)
				for _, id := range ids {
					assert.False(t, seen[id], "duplicate id %d", id)
					seen[id] = true
				}
				if tt.ordered {
					assert.Equal(t, all[:tt.wantLen], ids)
				}
			}
		})
	}
}

func TestSelectQuestionIDs_empty(t *testing.T) {
	ids := SelectQuestionIDs(Quiz{ID: 1, ShuffleQuestions: true, LimitQuestions: null.IntFrom(5)}, nil, nil)
	assert.Empty(t, ids)
}

func TestSelectQuestionIDs_otherQuizIgnored(t *testing.T) {
	questions := append(makeQuestions(1, 2), makeQuestions(2, 3)...)
	assert.Equal(t, []int64{101, 102}, SelectQuestionIDs(Quiz{ID: 1}, questions, nil))
}

func TestSelectQuestionIDs_orderTies(t *testing.T) {
	questions := []Question{
		{ID: 9, QuizID: 1, Order: 1},
		{ID: 3, QuizID: 1, Order: 2},
		{ID: 5, QuizID: 1, Order: 1},
	}
	assert.Equal(t, []int64{5, 9, 3}, SelectQuestionIDs(Quiz{ID: 1}, questions, nil))
}

func TestSelectQuestionIDs_shuffleRerolls(t *testing.T) {
	questions := makeQuestions(1, 10)
	qz := Quiz{ID: 1, ShuffleQuestions: true, LimitQuestions: null.IntFrom(5)}
	rnd := rand.New(rand.NewSource(7))

	first := SelectQuestionIDs(qz, questions, rnd)
	var differs bool
	for i := 0; i < 10 && !differs; i++ {
		differs = !assert.ObjectsAreEqual(first, SelectQuestionIDs(qz, questions, rnd))
	}
	assert.True(t, differs, "fresh selections should re-roll")
}

func TestBuildView(t *testing.T) {
	questions := makeQuestions(1, 3)

	t.Run("keeps the given order and skips unknown ids", func(t *testing.T) {
		view := BuildView(Quiz{ID: 1}, questions, []int64{103, 999, 101, 103}, nil)
		require.Len(t, view, 2)
		assert.Equal(t, int64(103), view[0].ID)
		assert.Equal(t, int64(101), view[1].ID)
		// choices untouched without ShuffleChoices
		assert.Equal(t, []ChoiceView{{ID: 1031, Text: "a"}, {ID: 1032, Text: "b"}, {ID: 1033, Text: "c"}}, view[0].Choices)
	})

	t.Run("shuffles choices", func(t *testing.T) {
		rnd := rand.New(rand.NewSource(3))
		var shuffled bool
		for i := 0; i < 10 && !shuffled; i++ {
			view := BuildView(Quiz{ID: 1, ShuffleChoices: true}, questions, []int64{101}, rnd)
			require.Len(t, view, 1)
			assert.ElementsMatch(t, []ChoiceView{{ID: 1011, Text: "a"}, {ID: 1012, Text: "b"}, {ID: 1013, Text: "c"}}, view[0].Choices)
			shuffled = view[0].Choices[0].ID != 1011 || view[0].Choices[1].ID != 1012
		}
		assert.True(t, shuffled)
	})
}

func TestValidIDs(t *testing.T) {
	questions := makeQuestions(1, 3)
	assert.Equal(t, []int64{102, 101}, ValidIDs(questions, []int64{0, 102, 7, 101, 102}))
	assert.Empty(t, ValidIDs(questions, nil))
}
