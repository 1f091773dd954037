package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"gorm.io/datatypes"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/quiz"
)

const (
	quizColumns = `id, lesson_id, title, time_limit_seconds, pass_percent, attempts_limit, limit_questions,
		shuffle_questions, shuffle_choices, advice_mid_min, advice_high_min, advice_low, advice_mid, advice_high`
	questionColumns = `id, quiz_id, "order", text, qtype, points, image, explanation`
	attemptColumns  = `id, user_id, lesson_id, quiz_id, created_at, finished_at, points_total, points_gained, percent,
		question_ids, answers, advice_shown, passed, late`
)

var questionUniques = map[string]error{
	"questions_quiz_id_order_key": quiz.ErrOrderExists,
}

type dbAttempt struct {
	ID           int64          `db:"id" boil:"id"`
	UserID       string         `db:"user_id" boil:"user_id"`
	LessonID     int64          `db:"lesson_id" boil:"lesson_id"`
	QuizID       int64          `db:"quiz_id" boil:"quiz_id"`
	CreatedAt    time.Time      `db:"created_at" boil:"created_at"`
	FinishedAt   null.Time      `db:"finished_at" boil:"finished_at"`
	PointsTotal  float64        `db:"points_total" boil:"points_total"`
	PointsGained float64        `db:"points_gained" boil:"points_gained"`
	Percent      float64        `db:"percent" boil:"percent"`
	QuestionIDs  pq.Int64Array  `db:"question_ids" boil:"question_ids"`
	Answers      datatypes.JSON `db:"answers" boil:"answers"`
	AdviceShown  string         `db:"advice_shown" boil:"advice_shown"`
	Passed       bool           `db:"passed" boil:"passed"`
	Late         bool           `db:"late" boil:"late"`
}

func toDBAttempt(a quiz.Attempt) dbAttempt {
	ids := a.QuestionIDs
	if ids == nil {
		ids = []int64{}
	}
	answers := a.Answers
	if len(answers) == 0 {
		answers = datatypes.JSON("{}")
	}
	return dbAttempt{
		ID:           a.ID,
		UserID:       a.UserID,
		LessonID:     a.LessonID,
		QuizID:       a.QuizID,
		CreatedAt:    a.CreatedAt.UTC(),
		FinishedAt:   a.FinishedAt,
		PointsTotal:  a.PointsTotal,
		PointsGained: a.PointsGained,
		Percent:      a.Percent,
		QuestionIDs:  ids,
		Answers:      answers,
		AdviceShown:  a.AdviceShown,
		Passed:       a.Passed,
		Late:         a.Late,
	}
}

func (row dbAttempt) attempt() quiz.Attempt {
	a := quiz.Attempt{
		ID:           row.ID,
		UserID:       row.UserID,
		LessonID:     row.LessonID,
		QuizID:       row.QuizID,
		CreatedAt:    row.CreatedAt.UTC(),
		FinishedAt:   row.FinishedAt,
		PointsTotal:  row.PointsTotal,
		PointsGained: row.PointsGained,
		Percent:      row.Percent,
		QuestionIDs:  row.QuestionIDs,
		Answers:      row.Answers,
		AdviceShown:  row.AdviceShown,
		Passed:       row.Passed,
		Late:         row.Late,
	}
	if a.FinishedAt.Valid {
		a.FinishedAt.Time = a.FinishedAt.Time.UTC()
	}
	return a
}

type quizRepository struct {
	db *sqlx.DB
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *sqlx.DB) *quizRepository {
	return &quizRepository{db: db}
}

func (repo quizRepository) CreateQuiz(ctx context.Context, qz quiz.Quiz) (quiz.Quiz, error) {
	var err error
	qz.ID, err = insertReturningID(ctx, repo.db, `
		INSERT INTO quizzes (lesson_id, title, time_limit_seconds, pass_percent, attempts_limit, limit_questions,
			shuffle_questions, shuffle_choices, advice_mid_min, advice_high_min, advice_low, advice_mid, advice_high)
		VALUES (:lesson_id, :title, :time_limit_seconds, :pass_percent, :attempts_limit, :limit_questions,
			:shuffle_questions, :shuffle_choices, :advice_mid_min, :advice_high_min, :advice_low, :advice_mid, :advice_high)
		RETURNING id`,
		qz)
	if err != nil {
		uniques := map[string]error{"quizzes_lesson_id_key": core.NewConflictError("this lesson already has a quiz")}
		return quiz.Quiz{}, trapConstraintErr(err, quiz.ErrNotFound, uniques, "inserting quiz")
	}
	return qz, nil
}

func (repo quizRepository) UpdateQuiz(ctx context.Context, qz quiz.Quiz) (quiz.Quiz, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE quizzes SET
			title = :title, time_limit_seconds = :time_limit_seconds, pass_percent = :pass_percent,
			attempts_limit = :attempts_limit, limit_questions = :limit_questions,
			shuffle_questions = :shuffle_questions, shuffle_choices = :shuffle_choices,
			advice_mid_min = :advice_mid_min, advice_high_min = :advice_high_min,
			advice_low = :advice_low, advice_mid = :advice_mid, advice_high = :advice_high
		WHERE id = :id`,
		qz)
	if err = mustAffect(res, err, quiz.ErrNotFound, "updating quiz"); err != nil {
		return quiz.Quiz{}, err
	}
	return qz, nil
}

func (repo quizRepository) getQuiz(ctx context.Context, where string, arg interface{}) (quiz.Quiz, error) {
	var qz quiz.Quiz
	if err := repo.db.GetContext(ctx, &qz, "SELECT "+quizColumns+" FROM quizzes WHERE "+where, arg); err != nil {
		return quiz.Quiz{}, trapNoRowsErr(err, quiz.ErrNotFound, "finding quiz")
	}
	return qz, nil
}

func (repo quizRepository) GetQuiz(ctx context.Context, id int64) (quiz.Quiz, error) {
	return repo.getQuiz(ctx, "id = $1", id)
}

func (repo quizRepository) GetQuizByLesson(ctx context.Context, lessonID int64) (quiz.Quiz, error) {
	return repo.getQuiz(ctx, "lesson_id = $1", lessonID)
}

func (repo quizRepository) DeleteQuiz(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM quizzes WHERE id = $1", id)
	return mustAffect(res, err, quiz.ErrNotFound, "deleting quiz")
}

// Questions

func (repo quizRepository) QueryQuestions(ctx context.Context, quizID int64) ([]quiz.Question, error) {
	qs := make([]quiz.Question, 0)
	err := repo.db.SelectContext(ctx, &qs,
		`SELECT `+questionColumns+` FROM questions WHERE quiz_id = $1 ORDER BY "order", id`, quizID)
	if err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	return repo.attachChoices(ctx, repo.db, qs)
}

func (repo quizRepository) GetQuestion(ctx context.Context, id int64) (quiz.Question, error) {
	return repo.getQuestion(ctx, repo.db, id)
}

func (repo quizRepository) getQuestion(ctx context.Context, q sqlx.QueryerContext, id int64) (quiz.Question, error) {
	var question quiz.Question
	err := sqlx.GetContext(ctx, q, &question, "SELECT "+questionColumns+" FROM questions WHERE id = $1", id)
	if err != nil {
		return quiz.Question{}, trapNoRowsErr(err, quiz.ErrNotFound, "finding question")
	}
	qs, err := repo.attachChoices(ctx, q, []quiz.Question{question})
	if err != nil {
		return quiz.Question{}, err
	}
	return qs[0], nil
}

// attachChoices loads the choices of qs ordered by id.
func (repo quizRepository) attachChoices(ctx context.Context, q sqlx.QueryerContext, qs []quiz.Question) ([]quiz.Question, error) {
	if len(qs) == 0 {
		return qs, nil
	}
	ids := make([]int64, len(qs))
	for i, question := range qs {
		ids[i] = question.ID
	}
	var choices []quiz.Choice
	err := sqlx.SelectContext(ctx, q, &choices,
		"SELECT id, question_id, text, is_correct FROM choices WHERE question_id = ANY($1) ORDER BY id", pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "querying choices")
	}

	byQuestion := make(map[int64][]quiz.Choice, len(qs))
	for _, c := range choices {
		byQuestion[c.QuestionID] = append(byQuestion[c.QuestionID], c)
	}
	for i := range qs {
		qs[i].Choices = byQuestion[qs[i].ID]
		if qs[i].Choices == nil {
			qs[i].Choices = []quiz.Choice{}
		}
	}
	return qs, nil
}

func insertChoices(ctx context.Context, tx *sqlx.Tx, questionID int64, choices []quiz.Choice) error {
	for _, c := range choices {
		c.QuestionID = questionID
		if _, err := insertReturningID(ctx, tx,
			`INSERT INTO choices (question_id, text, is_correct) VALUES (:question_id, :text, :is_correct) RETURNING id`,
			c); err != nil {
			return errors.Wrap(err, "inserting choice")
		}
	}
	return nil
}

func insertQuestion(ctx context.Context, tx *sqlx.Tx, q quiz.Question) (int64, error) {
	id, err := insertReturningID(ctx, tx, `
		INSERT INTO questions (quiz_id, "order", text, qtype, points, image, explanation)
		VALUES (:quiz_id, :order, :text, :qtype, :points, :image, :explanation)
		RETURNING id`,
		q)
	if err != nil {
		return 0, trapConstraintErr(err, quiz.ErrNotFound, questionUniques, "inserting question")
	}
	return id, insertChoices(ctx, tx, id, q.Choices)
}

func (repo quizRepository) CreateQuestion(ctx context.Context, q quiz.Question) (quiz.Question, error) {
	var created quiz.Question
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		id, err := insertQuestion(ctx, tx, q)
		if err != nil {
			return err
		}
		created, err = repo.getQuestion(ctx, tx, id)
		return err
	})
	return created, err
}

func (repo quizRepository) UpdateQuestion(ctx context.Context, q quiz.Question) (quiz.Question, error) {
	var updated quiz.Question
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE questions SET
				"order" = :order, text = :text, qtype = :qtype, points = :points, image = :image, explanation = :explanation
			WHERE id = :id`,
			q)
		if err != nil {
			return trapConstraintErr(err, quiz.ErrNotFound, questionUniques, "updating question")
		}
		if err = mustAffect(res, nil, quiz.ErrNotFound, "updating question"); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM choices WHERE question_id = $1", q.ID); err != nil {
			return errors.Wrap(err, "deleting choices")
		}
		if err = insertChoices(ctx, tx, q.ID, q.Choices); err != nil {
			return err
		}
		updated, err = repo.getQuestion(ctx, tx, q.ID)
		return err
	})
	return updated, err
}

func (repo quizRepository) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM questions WHERE id = $1", id)
	return mustAffect(res, err, quiz.ErrNotFound, "deleting question")
}

func (repo quizRepository) ReplaceQuestions(ctx context.Context, quizID int64, qs []quiz.Question) ([]quiz.Question, error) {
	created := make([]quiz.Question, 0, len(qs))
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1)", quizID); err != nil {
			return errors.Wrap(err, "checking quiz")
		}
		if !exists {
			return quiz.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM questions WHERE quiz_id = $1", quizID); err != nil {
			return errors.Wrap(err, "deleting questions")
		}
		for _, q := range qs {
			q.QuizID = quizID
			id, err := insertQuestion(ctx, tx, q)
			if err != nil {
				return err
			}
			question, err := repo.getQuestion(ctx, tx, id)
			if err != nil {
				return err
			}
			created = append(created, question)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Attempts

func (repo quizRepository) CreateAttempt(ctx context.Context, a quiz.Attempt) (quiz.Attempt, error) {
	row := toDBAttempt(a)
	id, err := insertReturningID(ctx, repo.db, `
		INSERT INTO quiz_attempts (user_id, lesson_id, quiz_id, created_at, finished_at, points_total, points_gained,
			percent, question_ids, answers, advice_shown, passed, late)
		VALUES (:user_id, :lesson_id, :quiz_id, :created_at, :finished_at, :points_total, :points_gained,
			:percent, :question_ids, :answers, :advice_shown, :passed, :late)
		RETURNING id`,
		row)
	if err != nil {
		return quiz.Attempt{}, trapConstraintErr(err, quiz.ErrNotFound, nil, "inserting attempt")
	}
	row.ID = id
	return row.attempt(), nil
}

func (repo quizRepository) GetAttempt(ctx context.Context, id int64) (quiz.Attempt, error) {
	var row dbAttempt
	if err := repo.db.GetContext(ctx, &row, "SELECT "+attemptColumns+" FROM quiz_attempts WHERE id = $1", id); err != nil {
		return quiz.Attempt{}, trapNoRowsErr(err, quiz.ErrNotFound, "finding attempt")
	}
	return row.attempt(), nil
}

// FinishAttempt sets finished_at once; finishing again keeps the first timestamp.
func (repo quizRepository) FinishAttempt(ctx context.Context, id int64, at time.Time) (quiz.Attempt, error) {
	_, err := repo.db.ExecContext(ctx,
		"UPDATE quiz_attempts SET finished_at = $1 WHERE id = $2 AND finished_at IS NULL", at.UTC(), id)
	if err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "finishing attempt")
	}
	return repo.GetAttempt(ctx, id)
}

func (repo quizRepository) CountAttempts(ctx context.Context, userID string, quizID int64) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n,
		"SELECT count(*) FROM quiz_attempts WHERE user_id = $1 AND quiz_id = $2", userID, quizID)
	return n, errors.Wrap(err, "counting attempts")
}

func (repo quizRepository) QueryAttempts(ctx context.Context, filter quiz.AttemptFilter) ([]quiz.Attempt, error) {
	var c conds
	if filter.UserID != "" {
		c.add("user_id::text = ?", filter.UserID)
	}
	if filter.QuizID != 0 {
		c.add("quiz_id = ?", filter.QuizID)
	}
	if filter.LessonID != 0 {
		c.add("lesson_id = ?", filter.LessonID)
	}
	q := repo.db.Rebind("SELECT " + attemptColumns + " FROM quiz_attempts" + c.where() + " ORDER BY created_at DESC, id DESC")

	var rows []dbAttempt
	if err := queries.Raw(q, c.args...).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	attempts := make([]quiz.Attempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, row.attempt())
	}
	return attempts, nil
}
