package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/darslik/core/torrens"
)

const (
	testColumns       = "id, title, slug, description, is_published, time_limit_minutes, created_at"
	taskColumns       = `id, test_id, "order", prompt, response_type, hint, reference_image, allow_text, allow_images, max_images`
	submissionColumns = "id, test_id, user_id, started_at, finished_at, total_score, status"
	answerColumns     = "id, submission_id, task_id, text_answer, list_answer, drawing_image, score, note"
)

var torrensUniques = map[string]error{
	"torrens_tests_slug_key":          torrens.ErrSlugExists,
	"torrens_tasks_test_id_order_key": torrens.ErrOrderExists,
}

type dbAnswer struct {
	ID           int64          `db:"id"`
	SubmissionID int64          `db:"submission_id"`
	TaskID       int64          `db:"task_id"`
	TextAnswer   string         `db:"text_answer"`
	ListAnswer   pq.StringArray `db:"list_answer"`
	DrawingImage string         `db:"drawing_image"`
	Score        float64        `db:"score"`
	Note         string         `db:"note"`
}

func (row dbAnswer) answer() torrens.Answer {
	list := []string(row.ListAnswer)
	if list == nil {
		list = []string{}
	}
	return torrens.Answer{
		ID:           row.ID,
		SubmissionID: row.SubmissionID,
		TaskID:       row.TaskID,
		TextAnswer:   row.TextAnswer,
		ListAnswer:   list,
		DrawingImage: row.DrawingImage,
		Score:        row.Score,
		Note:         row.Note,
		Images:       []torrens.AnswerImage{},
	}
}

// dbSubmission is bound by the sqlboiler raw query binder.
type dbSubmission struct {
	torrens.Submission `boil:",bind"`
}

type torrensRepository struct {
	db *sqlx.DB
}

var _ torrens.Repository = (*torrensRepository)(nil) // interface compliance check

func NewTorrensRepository(db *sqlx.DB) *torrensRepository {
	return &torrensRepository{db: db}
}

func (repo torrensRepository) CreateTest(ctx context.Context, test torrens.Test) (torrens.Test, error) {
	var created torrens.Test
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		id, err := insertReturningID(ctx, tx, `
			INSERT INTO torrens_tests (title, slug, description, is_published, time_limit_minutes, created_at)
			VALUES (:title, :slug, :description, :is_published, :time_limit_minutes, :created_at)
			RETURNING id`,
			test)
		if err != nil {
			return trapConstraintErr(err, torrens.ErrNotFound, torrensUniques, "inserting test")
		}
		for _, task := range test.Tasks {
			task.TestID = id
			if _, err = insertReturningID(ctx, tx, `
				INSERT INTO torrens_tasks (test_id, "order", prompt, response_type, hint, reference_image,
					allow_text, allow_images, max_images)
				VALUES (:test_id, :order, :prompt, :response_type, :hint, :reference_image,
					:allow_text, :allow_images, :max_images)
				RETURNING id`,
				task); err != nil {
				return trapConstraintErr(err, torrens.ErrNotFound, torrensUniques, "inserting task")
			}
		}
		created, err = repo.getTest(ctx, tx, "id = $1", id)
		return err
	})
	return created, err
}

func (repo torrensRepository) getTest(ctx context.Context, q sqlx.QueryerContext, where string, arg interface{}) (torrens.Test, error) {
	var test torrens.Test
	if err := sqlx.GetContext(ctx, q, &test, "SELECT "+testColumns+" FROM torrens_tests WHERE "+where, arg); err != nil {
		return torrens.Test{}, trapNoRowsErr(err, torrens.ErrNotFound, "finding test")
	}
	test.CreatedAt = test.CreatedAt.UTC()

	tasks := make([]torrens.Task, 0)
	err := sqlx.SelectContext(ctx, q, &tasks,
		`SELECT `+taskColumns+` FROM torrens_tasks WHERE test_id = $1 ORDER BY "order", id`, test.ID)
	if err != nil {
		return torrens.Test{}, errors.Wrap(err, "querying tasks")
	}
	if len(tasks) > 0 {
		ids := make([]int64, len(tasks))
		for i, t := range tasks {
			ids[i] = t.ID
		}
		var images []torrens.TaskImage
		err = sqlx.SelectContext(ctx, q, &images,
			"SELECT id, task_id, image, caption FROM torrens_task_images WHERE task_id = ANY($1) ORDER BY id", pq.Array(ids))
		if err != nil {
			return torrens.Test{}, errors.Wrap(err, "querying task images")
		}
		byTask := make(map[int64][]torrens.TaskImage, len(tasks))
		for _, img := range images {
			byTask[img.TaskID] = append(byTask[img.TaskID], img)
		}
		for i := range tasks {
			tasks[i].Images = byTask[tasks[i].ID]
			if tasks[i].Images == nil {
				tasks[i].Images = []torrens.TaskImage{}
			}
		}
	}
	test.Tasks = tasks
	return test, nil
}

func (repo torrensRepository) GetTestBySlug(ctx context.Context, slug string) (torrens.Test, error) {
	return repo.getTest(ctx, repo.db, "slug = $1", slug)
}

func (repo torrensRepository) GetTest(ctx context.Context, id int64) (torrens.Test, error) {
	return repo.getTest(ctx, repo.db, "id = $1", id)
}

func (repo torrensRepository) QueryTests(ctx context.Context, publishedOnly bool) ([]torrens.Test, error) {
	q := "SELECT " + testColumns + " FROM torrens_tests"
	if publishedOnly {
		q += " WHERE is_published"
	}
	tests := make([]torrens.Test, 0)
	if err := repo.db.SelectContext(ctx, &tests, q+" ORDER BY created_at DESC, id DESC"); err != nil {
		return nil, errors.Wrap(err, "querying tests")
	}
	for i := range tests {
		tests[i].CreatedAt = tests[i].CreatedAt.UTC()
	}
	return tests, nil
}

func (repo torrensRepository) DeleteTest(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM torrens_tests WHERE id = $1", id)
	return mustAffect(res, err, torrens.ErrNotFound, "deleting test")
}

func (repo torrensRepository) AddTaskImages(ctx context.Context, taskID int64, images []torrens.TaskImage) ([]torrens.TaskImage, error) {
	created := make([]torrens.TaskImage, 0, len(images))
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, img := range images {
			img.TaskID = taskID
			id, err := insertReturningID(ctx, tx,
				`INSERT INTO torrens_task_images (task_id, image, caption) VALUES (:task_id, :image, :caption) RETURNING id`,
				img)
			if err != nil {
				return trapConstraintErr(err, torrens.ErrNotFound, nil, "inserting task image")
			}
			img.ID = id
			created = append(created, img)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Submissions

func (repo torrensRepository) CreateSubmission(ctx context.Context, sub torrens.Submission) (torrens.Submission, error) {
	var err error
	sub.Answers = nil
	sub.StartedAt = sub.StartedAt.UTC()
	sub.ID, err = insertReturningID(ctx, repo.db, `
		INSERT INTO torrens_submissions (test_id, user_id, started_at, finished_at, total_score, status)
		VALUES (:test_id, :user_id, :started_at, :finished_at, :total_score, :status)
		RETURNING id`,
		sub)
	if err != nil {
		return torrens.Submission{}, trapConstraintErr(err, torrens.ErrNotFound, nil, "inserting submission")
	}
	return sub, nil
}

// loadSubmission attaches the submission answers (with their images) in task order.
func (repo torrensRepository) loadSubmission(ctx context.Context, sub torrens.Submission) (torrens.Submission, error) {
	sub.StartedAt = sub.StartedAt.UTC()
	if sub.FinishedAt.Valid {
		sub.FinishedAt.Time = sub.FinishedAt.Time.UTC()
	}

	var rows []dbAnswer
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.submission_id, a.task_id, a.text_answer, a.list_answer, a.drawing_image, a.score, a.note
		FROM torrens_answers a
			JOIN torrens_tasks t ON t.id = a.task_id
		WHERE a.submission_id = $1
		ORDER BY t."order", a.task_id`,
		sub.ID)
	if err != nil {
		return torrens.Submission{}, errors.Wrap(err, "querying answers")
	}
	answers := make([]torrens.Answer, len(rows))
	ids := make([]int64, len(rows))
	for i, row := range rows {
		answers[i] = row.answer()
		ids[i] = row.ID
	}

	if len(ids) > 0 {
		var images []torrens.AnswerImage
		err = repo.db.SelectContext(ctx, &images,
			"SELECT id, answer_id, image, caption FROM torrens_answer_images WHERE answer_id = ANY($1) ORDER BY id",
			pq.Array(ids))
		if err != nil {
			return torrens.Submission{}, errors.Wrap(err, "querying answer images")
		}
		byAnswer := make(map[int64][]torrens.AnswerImage, len(ids))
		for _, img := range images {
			byAnswer[img.AnswerID] = append(byAnswer[img.AnswerID], img)
		}
		for i := range answers {
			if imgs, ok := byAnswer[answers[i].ID]; ok {
				answers[i].Images = imgs
			}
		}
	}
	sub.Answers = answers
	return sub, nil
}

func (repo torrensRepository) getSubmission(ctx context.Context, where string, args ...interface{}) (torrens.Submission, error) {
	var sub torrens.Submission
	q := "SELECT " + submissionColumns + " FROM torrens_submissions WHERE " + where
	if err := repo.db.GetContext(ctx, &sub, q, args...); err != nil {
		return torrens.Submission{}, trapNoRowsErr(err, torrens.ErrNotFound, "finding submission")
	}
	return repo.loadSubmission(ctx, sub)
}

func (repo torrensRepository) GetDraft(ctx context.Context, testID int64, userID string) (torrens.Submission, error) {
	return repo.getSubmission(ctx,
		"test_id = $1 AND user_id::text = $2 AND status = $3 ORDER BY started_at DESC, id DESC LIMIT 1",
		testID, userID, torrens.StatusDraft)
}

func (repo torrensRepository) GetSubmission(ctx context.Context, id int64) (torrens.Submission, error) {
	return repo.getSubmission(ctx, "id = $1", id)
}

func (repo torrensRepository) UpdateSubmission(ctx context.Context, sub torrens.Submission) (torrens.Submission, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE torrens_submissions SET status = :status, finished_at = :finished_at, total_score = :total_score
		WHERE id = :id`,
		sub)
	if err = mustAffect(res, err, torrens.ErrNotFound, "updating submission"); err != nil {
		return torrens.Submission{}, err
	}
	return repo.GetSubmission(ctx, sub.ID)
}

func (repo torrensRepository) QuerySubmissions(ctx context.Context, filter torrens.SubmissionFilter) ([]torrens.Submission, error) {
	var c conds
	if filter.TestID != 0 {
		c.add("test_id = ?", filter.TestID)
	}
	if filter.UserID != "" {
		c.add("user_id::text = ?", filter.UserID)
	}
	if filter.Status != "" {
		c.add("status = ?", filter.Status)
	}
	q := repo.db.Rebind("SELECT " + submissionColumns + " FROM torrens_submissions" + c.where() + " ORDER BY started_at DESC, id DESC")

	var rows []dbSubmission
	if err := queries.Raw(q, c.args...).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]torrens.Submission, 0, len(rows))
	for _, row := range rows {
		sub := row.Submission
		sub.StartedAt = sub.StartedAt.UTC()
		subs = append(subs, sub)
	}
	return subs, nil
}

// Answers

func (repo torrensRepository) SaveAnswer(ctx context.Context, ans torrens.Answer) (torrens.Answer, error) {
	list := ans.ListAnswer
	if list == nil {
		list = []string{}
	}

	var row dbAnswer
	err := repo.db.GetContext(ctx, &row, `
		INSERT INTO torrens_answers (submission_id, task_id, text_answer, list_answer, drawing_image)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (submission_id, task_id) DO UPDATE SET
			text_answer = EXCLUDED.text_answer, list_answer = EXCLUDED.list_answer, drawing_image = EXCLUDED.drawing_image
		RETURNING `+answerColumns,
		ans.SubmissionID, ans.TaskID, ans.TextAnswer, pq.StringArray(list), ans.DrawingImage)
	if err != nil {
		return torrens.Answer{}, trapConstraintErr(err, torrens.ErrNotFound, nil, "saving answer")
	}

	saved := row.answer()
	var images []torrens.AnswerImage
	err = repo.db.SelectContext(ctx, &images,
		"SELECT id, answer_id, image, caption FROM torrens_answer_images WHERE answer_id = $1 ORDER BY id", row.ID)
	if err != nil {
		return torrens.Answer{}, errors.Wrap(err, "querying answer images")
	}
	if len(images) > 0 {
		saved.Images = images
	}
	return saved, nil
}

func (repo torrensRepository) ReplaceAnswerImages(ctx context.Context, answerID int64, images []torrens.AnswerImage) ([]torrens.AnswerImage, error) {
	var removed []torrens.AnswerImage
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM torrens_answers WHERE id = $1)", answerID); err != nil {
			return errors.Wrap(err, "checking answer")
		}
		if !exists {
			return torrens.ErrNotFound
		}
		err := tx.SelectContext(ctx, &removed,
			"DELETE FROM torrens_answer_images WHERE answer_id = $1 RETURNING id, answer_id, image, caption", answerID)
		if err != nil {
			return errors.Wrap(err, "deleting answer images")
		}
		for _, img := range images {
			img.AnswerID = answerID
			if _, err = insertReturningID(ctx, tx,
				`INSERT INTO torrens_answer_images (answer_id, image, caption) VALUES (:answer_id, :image, :caption) RETURNING id`,
				img); err != nil {
				return errors.Wrap(err, "inserting answer image")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (repo torrensRepository) UpdateAnswerGrades(ctx context.Context, answers []torrens.Answer) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, ans := range answers {
			res, err := tx.ExecContext(ctx, "UPDATE torrens_answers SET score = $1, note = $2 WHERE id = $3", ans.Score, ans.Note, ans.ID)
			if err = mustAffect(res, err, torrens.ErrNotFound, "grading answer"); err != nil {
				return err
			}
		}
		return nil
	})
}
