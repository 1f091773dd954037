package quiz

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"gorm.io/datatypes"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/catalog"
)

var (
	// errors
	ErrNotFound        = errors.New("quiz not found")
	ErrOrderExists     = errors.New("a question with this order already exists")
	ErrNotATestLesson  = errors.New("the lesson is not a test")
	ErrAttemptsReached = errors.New("attempts limit reached")

	errSelectionMismatch = core.NewFieldError("question_ids", "the questions do not match the quiz you started")
)

var nowFunc = time.Now

type (
	Repository interface {
		CreateQuiz(ctx context.Context, qz Quiz) (Quiz, error)
		UpdateQuiz(ctx context.Context, qz Quiz) (Quiz, error)
		GetQuiz(ctx context.Context, id int64) (Quiz, error)
		GetQuizByLesson(ctx context.Context, lessonID int64) (Quiz, error)
		// DeleteQuiz deletes the quiz with its questions, choices and attempts.
		DeleteQuiz(ctx context.Context, id int64) error

		// QueryQuestions returns the quiz questions (with their choices) ordered by (order, id).
		QueryQuestions(ctx context.Context, quizID int64) ([]Question, error)
		GetQuestion(ctx context.Context, id int64) (Question, error)
		CreateQuestion(ctx context.Context, q Question) (Question, error)
		// UpdateQuestion updates the question and replaces its choices.
		UpdateQuestion(ctx context.Context, q Question) (Question, error)
		DeleteQuestion(ctx context.Context, id int64) error
		// ReplaceQuestions deletes all the quiz questions then creates qs, atomically.
		ReplaceQuestions(ctx context.Context, quizID int64, qs []Question) ([]Question, error)

		CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
		GetAttempt(ctx context.Context, id int64) (Attempt, error)
		FinishAttempt(ctx context.Context, id int64, at time.Time) (Attempt, error)
		CountAttempts(ctx context.Context, userID string, quizID int64) (int, error)
		// QueryAttempts returns the attempts matching filter, newest first.
		QueryAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error)
	}

	LessonFinder interface {
		GetLesson(ctx context.Context, id int64) (catalog.Lesson, error)
	}

	Service struct {
		repo    Repository
		lessons LessonFinder
		store   SelectionStore
		logger  core.Logger
		rnd     Shuffler
	}
)

// NewService returns a quiz Service. rnd may be nil (process wide random source).
func NewService(repo Repository, lessons LessonFinder, store SelectionStore, logger core.Logger, rnd Shuffler) *Service {
	if rnd == nil {
		rnd = defaultRand
	}
	return &Service{
		repo:    repo,
		lessons: lessons,
		store:   store,
		logger:  logger,
		rnd:     rnd,
	}
}

// Session is a quiz as presented to a learner.
type Session struct {
	Quiz         Quiz           `json:"quiz"`
	QuestionIDs  []int64        `json:"question_ids"`
	Questions    []QuestionView `json:"questions"`
	StartedAt    time.Time      `json:"started_at"`
	AttemptsUsed int            `json:"attempts_used"`
}

func (svc *Service) load(ctx context.Context, lessonID int64) (Quiz, []Question, error) {
	lesson, err := svc.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		return Quiz{}, nil, err
	}
	if lesson.Kind != catalog.KindTest {
		return Quiz{}, nil, ErrNotFound
	}
	qz, err := svc.repo.GetQuizByLesson(ctx, lessonID)
	if err != nil {
		return Quiz{}, nil, err
	}
	questions, err := svc.repo.QueryQuestions(ctx, qz.ID)
	if err != nil {
		return Quiz{}, nil, errors.Wrap(err, "querying questions")
	}
	return qz, questions, nil
}

// Start makes a fresh question selection for the learner and remembers it.
func (svc *Service) Start(ctx context.Context, userID string, lessonID int64) (Session, error) {
	qz, questions, err := svc.load(ctx, lessonID)
	if err != nil {
		return Session{}, err
	}
	sel := Selection{QuestionIDs: SelectQuestionIDs(qz, questions, svc.rnd), StartedAt: nowFunc().UTC()}
	svc.store.Put(ctx, SelectionKey(userID, lessonID), sel)
	return svc.session(ctx, userID, qz, questions, sel)
}

// Resume returns the learner's current selection. Posted ids are only used when nothing is stored
// and they form a complete selection; otherwise the stored or a fresh selection is returned.
func (svc *Service) Resume(ctx context.Context, userID string, lessonID int64, postedIDs []int64) (Session, error) {
	qz, questions, err := svc.load(ctx, lessonID)
	if err != nil {
		return Session{}, err
	}
	sel, _ := svc.resolveSelection(ctx, userID, qz, questions, postedIDs)
	return svc.session(ctx, userID, qz, questions, sel)
}

// resolveSelection returns the selection to present or score: the stored one, else the posted ids
// when they form a complete selection of the quiz, else a fresh one.
// The returned selection is always usable; err reports posted ids that were not accepted.
func (svc *Service) resolveSelection(ctx context.Context, userID string, qz Quiz, questions []Question, postedIDs []int64) (Selection, error) {
	key := SelectionKey(userID, qz.LessonID)
	if stored, found := svc.store.Get(ctx, key); found {
		stored.QuestionIDs = ValidIDs(questions, stored.QuestionIDs)
		if len(stored.QuestionIDs) > 0 {
			if len(postedIDs) > 0 && !sameIDs(postedIDs, stored.QuestionIDs) {
				return stored, errSelectionMismatch
			}
			return stored, nil
		}
	}

	var err error
	if len(postedIDs) > 0 {
		if isCompleteSelection(qz, questions, postedIDs) {
			sel := Selection{QuestionIDs: postedIDs, StartedAt: nowFunc().UTC()}
			svc.store.Put(ctx, key, sel)
			return sel, nil
		}
		err = errSelectionMismatch
	}
	sel := Selection{QuestionIDs: SelectQuestionIDs(qz, questions, svc.rnd), StartedAt: nowFunc().UTC()}
	svc.store.Put(ctx, key, sel)
	return sel, err
}

// isCompleteSelection reports whether ids could have been drawn by SelectQuestionIDs:
// distinct questions of the quiz, as many as a selection holds.
func isCompleteSelection(qz Quiz, questions []Question, ids []int64) bool {
	var own []Question
	for _, q := range questions {
		if q.QuizID == qz.ID {
			own = append(own, q)
		}
	}
	want := len(own)
	if qz.LimitQuestions.Valid && qz.LimitQuestions.Int > 0 && qz.LimitQuestions.Int < want {
		want = qz.LimitQuestions.Int
	}
	return len(ids) == want && len(ValidIDs(own, ids)) == want
}

// sameIDs compares a and b as sets.
func sameIDs(a, b []int64) bool {
	set := make(map[int64]bool, len(b))
	for _, id := range b {
		set[id] = true
	}
	seen := make(map[int64]bool, len(a))
	for _, id := range a {
		if !set[id] {
			return false
		}
		seen[id] = true
	}
	return len(seen) == len(set)
}

func (svc *Service) session(ctx context.Context, userID string, qz Quiz, questions []Question, sel Selection) (Session, error) {
	used, err := svc.repo.CountAttempts(ctx, userID, qz.ID)
	if err != nil {
		return Session{}, errors.Wrap(err, "counting attempts")
	}
	return Session{
		Quiz:         qz,
		QuestionIDs:  sel.QuestionIDs,
		Questions:    BuildView(qz, questions, sel.QuestionIDs, svc.rnd),
		StartedAt:    sel.StartedAt,
		AttemptsUsed: used,
	}, nil
}

// Submit scores the learner's answers and records the attempt.
// The attempt is flagged late when the time limit was exceeded, it is still recorded.
func (svc *Service) Submit(ctx context.Context, userID string, lessonID int64, postedIDs []int64, rawAnswers []byte) (Attempt, error) {
	qz, questions, err := svc.load(ctx, lessonID)
	if err != nil {
		return Attempt{}, err
	}
	answers, err := ParseAnswers(rawAnswers)
	if err != nil {
		return Attempt{}, err
	}

	if qz.AttemptsLimit > 0 {
		used, err := svc.repo.CountAttempts(ctx, userID, qz.ID)
		if err != nil {
			return Attempt{}, errors.Wrap(err, "counting attempts")
		}
		if used >= qz.AttemptsLimit {
			return Attempt{}, core.NewValidationError(ErrAttemptsReached, core.FieldError{
				Field: "attempts",
				Error: fmt.Sprintf("you have used all %d attempts of this quiz", qz.AttemptsLimit),
			})
		}
	}

	sel, err := svc.resolveSelection(ctx, userID, qz, questions, postedIDs)
	if err != nil {
		return Attempt{}, err
	}
	score := ScoreAttempt(qz, questions, sel.QuestionIDs, answers)
	now := nowFunc().UTC()

	if isEmptyPayload(rawAnswers) {
		rawAnswers = []byte("{}")
	}
	attempt := Attempt{
		UserID:       userID,
		LessonID:     lessonID,
		QuizID:       qz.ID,
		CreatedAt:    now,
		FinishedAt:   null.TimeFrom(now),
		PointsTotal:  score.PointsTotal,
		PointsGained: score.PointsGained,
		Percent:      score.Percent,
		QuestionIDs:  sel.QuestionIDs,
		Answers:      datatypes.JSON(rawAnswers),
		AdviceShown:  score.Advice,
		Passed:       score.Passed,
		Late:         qz.TimeLimitSeconds > 0 && now.Sub(sel.StartedAt) > qz.TimeLimit(),
	}
	attempt, err = svc.repo.CreateAttempt(ctx, attempt)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "creating attempt")
	}

	// the next attempt re-rolls the selection
	svc.store.Delete(ctx, SelectionKey(userID, lessonID))
	return attempt, nil
}

// Finish sets the finish timestamp of an attempt that has none.
func (svc *Service) Finish(ctx context.Context, attemptID int64) (Attempt, error) {
	a, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.FinishedAt.Valid {
		return a, nil
	}
	return svc.repo.FinishAttempt(ctx, a.ID, nowFunc().UTC())
}

func (svc *Service) GetAttempt(ctx context.Context, id int64) (Attempt, error) {
	return svc.repo.GetAttempt(ctx, id)
}

func (svc *Service) QueryAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error) {
	return svc.repo.QueryAttempts(ctx, filter)
}

// Back office

// Detail returns the lesson quiz and its questions, correct choices included.
func (svc *Service) Detail(ctx context.Context, lessonID int64) (Quiz, []Question, error) {
	return svc.load(ctx, lessonID)
}

// Save creates the quiz of a test lesson, or updates it.
func (svc *Service) Save(ctx context.Context, validate *validator.Validate, lessonID int64, in QuizInput) (Quiz, error) {
	if err := validate.Struct(in); err != nil {
		return Quiz{}, err
	}
	timeLimit, err := core.ParseISODuration(in.TimeLimit)
	if err != nil {
		return Quiz{}, core.NewFieldError("time_limit", err.Error())
	}

	qz, err := svc.getOrNewQuiz(ctx, lessonID)
	if err != nil {
		return Quiz{}, err
	}
	if title := core.CleanString(in.Title); title != "" {
		qz.Title = title
	}
	qz.TimeLimitSeconds = int(timeLimit / time.Second)
	qz.PassPercent = in.PassPercent
	qz.AttemptsLimit = in.AttemptsLimit
	qz.LimitQuestions = null.IntFromPtr(in.LimitQuestions)
	if in.ShuffleQuestions != nil {
		qz.ShuffleQuestions = *in.ShuffleQuestions
	}
	if in.ShuffleChoices != nil {
		qz.ShuffleChoices = *in.ShuffleChoices
	}
	if in.AdviceMidMin != nil {
		qz.AdviceMidMin = *in.AdviceMidMin
	}
	if in.AdviceHighMin != nil {
		qz.AdviceHighMin = *in.AdviceHighMin
	}
	if in.AdviceLow != "" {
		qz.AdviceLow = in.AdviceLow
	}
	if in.AdviceMid != "" {
		qz.AdviceMid = in.AdviceMid
	}
	if in.AdviceHigh != "" {
		qz.AdviceHigh = in.AdviceHigh
	}
	if qz.AdviceHighMin <= qz.AdviceMidMin {
		svc.logger.Warn(fmt.Sprintf("quiz of lesson %d: advice_high_min (%d) <= advice_mid_min (%d)",
			lessonID, qz.AdviceHighMin, qz.AdviceMidMin))
	}

	if qz.ID == 0 {
		return svc.repo.CreateQuiz(ctx, qz)
	}
	return svc.repo.UpdateQuiz(ctx, qz)
}

// getOrNewQuiz returns the quiz of a test lesson, or a new unsaved one with the defaults.
func (svc *Service) getOrNewQuiz(ctx context.Context, lessonID int64) (Quiz, error) {
	lesson, err := svc.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		return Quiz{}, err
	}
	if lesson.Kind != catalog.KindTest {
		return Quiz{}, core.NewValidationError(ErrNotATestLesson, core.FieldError{Field: "lesson", Error: ErrNotATestLesson.Error()})
	}
	qz, err := svc.repo.GetQuizByLesson(ctx, lessonID)
	switch {
	case err == nil:
		return qz, nil
	case errors.Cause(err) == ErrNotFound:
		qz = NewQuiz(lessonID)
		qz.Title = lesson.Title
		return qz, nil
	}
	return Quiz{}, errors.Wrap(err, "finding quiz")
}

func (svc *Service) Delete(ctx context.Context, lessonID int64) error {
	qz, err := svc.repo.GetQuizByLesson(ctx, lessonID)
	if err != nil {
		return err
	}
	return svc.repo.DeleteQuiz(ctx, qz.ID)
}

func (in QuestionInput) toQuestion(quizID int64) Question {
	q := Question{
		QuizID:      quizID,
		Order:       in.Order,
		Text:        in.Text,
		Type:        in.Type,
		Points:      1,
		Image:       in.Image,
		Explanation: in.Explanation,
	}
	if in.Points != nil {
		q.Points = *in.Points
	}
	for _, c := range in.Choices {
		q.Choices = append(q.Choices, Choice{Text: c.Text, IsCorrect: c.IsCorrect})
	}
	return q
}

func (svc *Service) validateQuestion(validate *validator.Validate, in *QuestionInput) error {
	in.Clean()
	if err := validate.Struct(in); err != nil {
		return err
	}
	return in.Validate()
}

func (svc *Service) CreateQuestion(ctx context.Context, validate *validator.Validate, lessonID int64, in QuestionInput) (Question, error) {
	if err := svc.validateQuestion(validate, &in); err != nil {
		return Question{}, err
	}
	qz, err := svc.repo.GetQuizByLesson(ctx, lessonID)
	if err != nil {
		return Question{}, err
	}
	q, err := svc.repo.CreateQuestion(ctx, in.toQuestion(qz.ID))
	if err != nil {
		return Question{}, trapOrderErr(err, "creating question")
	}
	return q, nil
}

func (svc *Service) UpdateQuestion(ctx context.Context, validate *validator.Validate, id int64, in QuestionInput) (Question, error) {
	orig, err := svc.repo.GetQuestion(ctx, id)
	if err != nil {
		return Question{}, err
	}
	if err = svc.validateQuestion(validate, &in); err != nil {
		return Question{}, err
	}
	if in.Image == "" {
		in.Image = orig.Image
	}
	q := in.toQuestion(orig.QuizID)
	q.ID = orig.ID
	if q, err = svc.repo.UpdateQuestion(ctx, q); err != nil {
		return Question{}, trapOrderErr(err, "updating question")
	}
	return q, nil
}

func (svc *Service) DeleteQuestion(ctx context.Context, id int64) error {
	return svc.repo.DeleteQuestion(ctx, id)
}

// ImportQuestions replaces the questions of the lesson quiz (created when missing).
func (svc *Service) ImportQuestions(ctx context.Context, validate *validator.Validate, lessonID int64, inputs []QuestionInput) (Quiz, []Question, error) {
	qz, err := svc.getOrNewQuiz(ctx, lessonID)
	if err != nil {
		return Quiz{}, nil, err
	}

	seen := make(map[int]int, len(inputs))
	for i := range inputs {
		if err := svc.validateQuestion(validate, &inputs[i]); err != nil {
			return Quiz{}, nil, errors.Wrapf(err, "question #%d", i+1)
		}
		if prev, ok := seen[inputs[i].Order]; ok {
			return Quiz{}, nil, core.NewFieldError("order",
				fmt.Sprintf("questions #%d and #%d have the same order %d", prev+1, i+1, inputs[i].Order))
		}
		seen[inputs[i].Order] = i
	}

	if qz.ID == 0 {
		if qz, err = svc.repo.CreateQuiz(ctx, qz); err != nil {
			return Quiz{}, nil, errors.Wrap(err, "creating quiz")
		}
	}
	qs := make([]Question, 0, len(inputs))
	for _, in := range inputs {
		qs = append(qs, in.toQuestion(qz.ID))
	}
	qs, err = svc.repo.ReplaceQuestions(ctx, qz.ID, qs)
	if err != nil {
		return Quiz{}, nil, trapOrderErr(err, "replacing questions")
	}
	return qz, qs, nil
}

func trapOrderErr(err error, msg string) error {
	if errors.Cause(err) == ErrOrderExists {
		return core.NewValidationError(ErrOrderExists, core.FieldError{Field: "order", Error: ErrOrderExists.Error()})
	}
	return errors.Wrap(err, msg)
}
