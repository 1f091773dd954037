package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/quiz"
)

type quizRepository struct {
	db *DB
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *DB) *quizRepository {
	return &quizRepository{db: db}
}

func (repo *quizRepository) CreateQuiz(_ context.Context, qz quiz.Quiz) (quiz.Quiz, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, q := range repo.db.quizzes {
		if q.LessonID == qz.LessonID {
			return quiz.Quiz{}, core.NewConflictError("this lesson already has a quiz")
		}
	}
	qz.ID = repo.db.nextPK()
	repo.db.quizzes[qz.ID] = &qz
	return qz, nil
}

func (repo *quizRepository) UpdateQuiz(_ context.Context, qz quiz.Quiz) (quiz.Quiz, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.quizzes[qz.ID]; !ok {
		return quiz.Quiz{}, quiz.ErrNotFound
	}
	repo.db.quizzes[qz.ID] = &qz
	return qz, nil
}

func (repo *quizRepository) GetQuiz(_ context.Context, id int64) (quiz.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if qz, ok := repo.db.quizzes[id]; ok {
		return *qz, nil
	}
	return quiz.Quiz{}, quiz.ErrNotFound
}

func (repo *quizRepository) GetQuizByLesson(_ context.Context, lessonID int64) (quiz.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, qz := range repo.db.quizzes {
		if qz.LessonID == lessonID {
			return *qz, nil
		}
	}
	return quiz.Quiz{}, quiz.ErrNotFound
}

func (repo *quizRepository) DeleteQuiz(_ context.Context, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.quizzes[id]; !ok {
		return quiz.ErrNotFound
	}
	repo.db.deleteQuiz(id)
	return nil
}

// Questions

func (repo *quizRepository) QueryQuestions(_ context.Context, quizID int64) ([]quiz.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	qs := make([]quiz.Question, 0)
	for _, q := range repo.db.questions {
		if q.QuizID == quizID {
			qs = append(qs, copyQuestion(*q))
		}
	}
	sort.Slice(qs, func(i, j int) bool {
		if qs[i].Order != qs[j].Order {
			return qs[i].Order < qs[j].Order
		}
		return qs[i].ID < qs[j].ID
	})
	return qs, nil
}

func (repo *quizRepository) GetQuestion(_ context.Context, id int64) (quiz.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if q, ok := repo.db.questions[id]; ok {
		return copyQuestion(*q), nil
	}
	return quiz.Question{}, quiz.ErrNotFound
}

func (repo *quizRepository) checkQuestionOrder(q quiz.Question) error {
	for _, other := range repo.db.questions {
		if other.QuizID == q.QuizID && other.Order == q.Order && other.ID != q.ID {
			return quiz.ErrOrderExists
		}
	}
	return nil
}

// insertQuestion must be called with the write lock held.
func (repo *quizRepository) insertQuestion(q quiz.Question) quiz.Question {
	q.ID = repo.db.nextPK()
	repo.setChoices(&q)
	repo.db.questions[q.ID] = &q
	return copyQuestion(q)
}

func (repo *quizRepository) setChoices(q *quiz.Question) {
	choices := make([]quiz.Choice, len(q.Choices))
	for i, c := range q.Choices {
		c.ID = repo.db.nextPK()
		c.QuestionID = q.ID
		choices[i] = c
	}
	q.Choices = choices
}

func (repo *quizRepository) CreateQuestion(_ context.Context, q quiz.Question) (quiz.Question, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.quizzes[q.QuizID]; !ok {
		return quiz.Question{}, quiz.ErrNotFound
	}
	if err := repo.checkQuestionOrder(q); err != nil {
		return quiz.Question{}, err
	}
	return repo.insertQuestion(q), nil
}

func (repo *quizRepository) UpdateQuestion(_ context.Context, q quiz.Question) (quiz.Question, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.questions[q.ID]; !ok {
		return quiz.Question{}, quiz.ErrNotFound
	}
	if err := repo.checkQuestionOrder(q); err != nil {
		return quiz.Question{}, err
	}
	repo.setChoices(&q)
	repo.db.questions[q.ID] = &q
	return copyQuestion(q), nil
}

func (repo *quizRepository) DeleteQuestion(_ context.Context, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.questions[id]; !ok {
		return quiz.ErrNotFound
	}
	delete(repo.db.questions, id)
	return nil
}

func (repo *quizRepository) ReplaceQuestions(_ context.Context, quizID int64, qs []quiz.Question) ([]quiz.Question, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.quizzes[quizID]; !ok {
		return nil, quiz.ErrNotFound
	}
	orders := make(map[int]bool, len(qs))
	for _, q := range qs {
		if orders[q.Order] {
			return nil, quiz.ErrOrderExists
		}
		orders[q.Order] = true
	}

	for id, q := range repo.db.questions {
		if q.QuizID == quizID {
			delete(repo.db.questions, id)
		}
	}
	created := make([]quiz.Question, len(qs))
	for i, q := range qs {
		q.QuizID = quizID
		created[i] = repo.insertQuestion(q)
	}
	return created, nil
}

// Attempts

func (repo *quizRepository) CreateAttempt(_ context.Context, a quiz.Attempt) (quiz.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.quizzes[a.QuizID]; !ok {
		return quiz.Attempt{}, quiz.ErrNotFound
	}
	a.ID = repo.db.nextPK()
	repo.db.attempts[a.ID] = &a
	return a, nil
}

func (repo *quizRepository) GetAttempt(_ context.Context, id int64) (quiz.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.attempts[id]; ok {
		return *a, nil
	}
	return quiz.Attempt{}, quiz.ErrNotFound
}

func (repo *quizRepository) FinishAttempt(_ context.Context, id int64, at time.Time) (quiz.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	a, ok := repo.db.attempts[id]
	if !ok {
		return quiz.Attempt{}, quiz.ErrNotFound
	}
	if !a.FinishedAt.Valid {
		a.FinishedAt = null.TimeFrom(at)
	}
	return *a, nil
}

func (repo *quizRepository) CountAttempts(_ context.Context, userID string, quizID int64) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var n int
	for _, a := range repo.db.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func (repo *quizRepository) QueryAttempts(_ context.Context, filter quiz.AttemptFilter) ([]quiz.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	attempts := make([]quiz.Attempt, 0)
	for _, a := range repo.db.attempts {
		switch {
		case filter.UserID != "" && a.UserID != filter.UserID,
			filter.QuizID != 0 && a.QuizID != filter.QuizID,
			filter.LessonID != 0 && a.LessonID != filter.LessonID:
			continue
		}
		attempts = append(attempts, *a)
	}
	sort.Slice(attempts, func(i, j int) bool {
		if !attempts[i].CreatedAt.Equal(attempts[j].CreatedAt) {
			return attempts[i].CreatedAt.After(attempts[j].CreatedAt)
		}
		return attempts[i].ID > attempts[j].ID
	})
	return attempts, nil
}

func copyQuestion(q quiz.Question) quiz.Question {
	q.Choices = append([]quiz.Choice{}, q.Choices...)
	return q
}

// deleteQuiz must be called with the write lock held.
func (db *DB) deleteQuiz(id int64) {
	delete(db.quizzes, id)
	for qid, q := range db.questions {
		if q.QuizID == id {
			delete(db.questions, qid)
		}
	}
	for aid, a := range db.attempts {
		if a.QuizID == id {
			delete(db.attempts, aid)
		}
	}
}
