package quiz

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Shuffler permutes n elements. *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// lockedRand is the process wide random source; *rand.Rand is not safe for concurrent use.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (r *lockedRand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rnd.Shuffle(n, swap)
}

var defaultRand Shuffler = &lockedRand{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

func sortQuestions(questions []Question) {
	sort.SliceStable(questions, func(i, j int) bool {
		if questions[i].Order != questions[j].Order {
			return questions[i].Order < questions[j].Order
		}
		return questions[i].ID < questions[j].ID
	})
}

// SelectQuestionIDs returns the ordered question sequence of a new attempt:
// the quiz questions in (order, id) sequence, permuted when ShuffleQuestions is set,
// then truncated to LimitQuestions when it is positive.
// rnd may be nil (process wide source).
func SelectQuestionIDs(qz Quiz, questions []Question, rnd Shuffler) []int64 {
	sorted := make([]Question, 0, len(questions))
	for _, q := range questions {
		if q.QuizID == qz.ID {
			sorted = append(sorted, q)
		}
	}
	sortQuestions(sorted)

	ids := make([]int64, len(sorted))
	for i, q := range sorted {
		ids[i] = q.ID
	}

	if qz.ShuffleQuestions {
		if rnd == nil {
			rnd = defaultRand
		}
		rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}
	if qz.LimitQuestions.Valid && qz.LimitQuestions.Int > 0 && qz.LimitQuestions.Int < len(ids) {
		ids = ids[:qz.LimitQuestions.Int]
	}
	return ids
}

// BuildView returns the questions with the given ids, in the given order (unknown ids are skipped).
// Choices are permuted independently when ShuffleChoices is set. Correctness flags are never exposed.
func BuildView(qz Quiz, questions []Question, ids []int64, rnd Shuffler) []QuestionView {
	if rnd == nil {
		rnd = defaultRand
	}
	byID := make(map[int64]Question, len(questions))
	for _, q := range questions {
		if q.QuizID == qz.ID {
			byID[q.ID] = q
		}
	}

	view := make([]QuestionView, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true

		choices := make([]ChoiceView, len(q.Choices))
		for i, c := range q.Choices {
			choices[i] = ChoiceView{ID: c.ID, Text: c.Text}
		}
		if qz.ShuffleChoices {
			rnd.Shuffle(len(choices), func(i, j int) { choices[i], choices[j] = choices[j], choices[i] })
		}
		view = append(view, QuestionView{
			ID:      q.ID,
			Order:   q.Order,
			Text:    q.Text,
			Type:    q.Type,
			Points:  q.Points,
			Image:   q.Image,
			Choices: choices,
		})
	}
	return view
}

// ValidIDs keeps the ids that belong to the questions set, in order, without duplicates.
func ValidIDs(questions []Question, ids []int64) []int64 {
	known := make(map[int64]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}
	valid := make([]int64, 0, len(ids))
	for _, id := range ids {
		if known[id] {
			valid = append(valid, id)
			known[id] = false
		}
	}
	return valid
}
