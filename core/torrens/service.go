package torrens

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/darslik/core"
)

const (
	answerImagesFolder  = "torrens/ans_images"
	drawingsFolder      = "torrens/ans"
	taskImagesFolder    = "torrens/task_images"
	maxConcurrentImages = 4
)

var (
	// errors
	ErrNotFound    = errors.New("not found")
	ErrSlugExists  = errors.New("this slug is already taken")
	ErrOrderExists = errors.New("a task with this order already exists")
)

var nowFunc = time.Now

type (
	Repository interface {
		// CreateTest creates the test with its tasks.
		CreateTest(ctx context.Context, test Test) (Test, error)
		// GetTestBySlug returns the test with its tasks (and their images) ordered by (order, id).
		GetTestBySlug(ctx context.Context, slug string) (Test, error)
		GetTest(ctx context.Context, id int64) (Test, error)
		// QueryTests returns the tests (without tasks), newest first.
		QueryTests(ctx context.Context, publishedOnly bool) ([]Test, error)
		DeleteTest(ctx context.Context, id int64) error
		AddTaskImages(ctx context.Context, taskID int64, images []TaskImage) ([]TaskImage, error)

		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		// GetDraft returns the most recent draft of the user for the test, with its answers.
		GetDraft(ctx context.Context, testID int64, userID string) (Submission, error)
		// GetSubmission returns the submission with its answers and their images.
		GetSubmission(ctx context.Context, id int64) (Submission, error)
		// UpdateSubmission saves the status, finished_at and total_score of sub.
		UpdateSubmission(ctx context.Context, sub Submission) (Submission, error)
		// QuerySubmissions returns the submissions matching filter, most recently started first.
		QuerySubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)

		// SaveAnswer creates or updates the (submission, task) answer texts and drawing.
		SaveAnswer(ctx context.Context, ans Answer) (Answer, error)
		// ReplaceAnswerImages swaps the answer images for new ones and returns the removed ones.
		ReplaceAnswerImages(ctx context.Context, answerID int64, images []AnswerImage) (removed []AnswerImage, err error)
		// UpdateAnswerGrades saves the score and note of each answer.
		UpdateAnswerGrades(ctx context.Context, answers []Answer) error
	}

	Service struct {
		repo   Repository
		media  core.MediaStorage
		images core.ImageProcessor
		logger core.Logger
	}
)

func NewService(repo Repository, media core.MediaStorage, images core.ImageProcessor, logger core.Logger) *Service {
	return &Service{
		repo:   repo,
		media:  media,
		images: images,
		logger: logger,
	}
}

// Tests

func (svc *Service) CreateTest(ctx context.Context, validate *validator.Validate, nt NewTest) (Test, error) {
	nt.Clean()
	if err := validate.Struct(nt); err != nil {
		return Test{}, err
	}
	if nt.TimeLimit != "" {
		limit, err := core.ParseISODuration(nt.TimeLimit)
		if err != nil {
			return Test{}, core.NewFieldError("time_limit", err.Error())
		}
		nt.TimeLimitMinutes = int(limit / time.Minute)
		if nt.TimeLimitMinutes > MaxTimeLimitMinutes {
			return Test{}, core.NewFieldError("time_limit", fmt.Sprintf("must not exceed %d minutes", MaxTimeLimitMinutes))
		}
	}

	test := Test{
		Title:            nt.Title,
		Slug:             nt.Slug,
		Description:      nt.Description,
		IsPublished:      nt.IsPublished,
		TimeLimitMinutes: nt.TimeLimitMinutes,
		CreatedAt:        nowFunc().UTC(),
	}
	orders := make(map[int]bool, len(nt.Tasks))
	for _, t := range nt.Tasks {
		if orders[t.Order] {
			return Test{}, core.NewFieldError("tasks", fmt.Sprintf("order %d is used by several tasks", t.Order))
		}
		orders[t.Order] = true
		test.Tasks = append(test.Tasks, t.toTask())
	}

	test, err := svc.repo.CreateTest(ctx, test)
	if err != nil {
		switch cause := errors.Cause(err); cause {
		case ErrSlugExists:
			return Test{}, core.NewValidationError(cause, core.FieldError{Field: "slug", Error: cause.Error()})
		case ErrOrderExists:
			return Test{}, core.NewValidationError(cause, core.FieldError{Field: "tasks", Error: cause.Error()})
		}
		return Test{}, errors.Wrap(err, "creating test")
	}
	return test, nil
}

// ListTests returns the tests newest first; learners only see the published ones.
func (svc *Service) ListTests(ctx context.Context, publishedOnly bool) ([]Test, error) {
	return svc.repo.QueryTests(ctx, publishedOnly)
}

func (svc *Service) GetTest(ctx context.Context, slug string) (Test, error) {
	return svc.repo.GetTestBySlug(ctx, slug)
}

// GetPublishedTest returns a test that can be taken.
func (svc *Service) GetPublishedTest(ctx context.Context, slug string) (Test, error) {
	test, err := svc.repo.GetTestBySlug(ctx, slug)
	if err != nil {
		return Test{}, err
	}
	if !test.IsPublished {
		return Test{}, ErrNotFound
	}
	return test, nil
}

func (svc *Service) DeleteTest(ctx context.Context, id int64) error {
	return svc.repo.DeleteTest(ctx, id)
}

// AddTaskImages stores example images for a task of test.
func (svc *Service) AddTaskImages(ctx context.Context, test Test, taskID int64, uploads []core.Upload, caption string) ([]TaskImage, error) {
	var found bool
	for _, t := range test.Tasks {
		found = found || t.ID == taskID
	}
	if !found {
		return nil, ErrNotFound
	}
	paths, err := svc.storeImages(ctx, taskImagesFolder, uploads)
	if err != nil {
		return nil, err
	}
	images := make([]TaskImage, len(paths))
	for i, p := range paths {
		images[i] = TaskImage{TaskID: taskID, Image: p, Caption: caption}
	}
	images, err = svc.repo.AddTaskImages(ctx, taskID, images)
	if err != nil {
		svc.discard(ctx, paths...)
		return nil, errors.Wrap(err, "adding task images")
	}
	return images, nil
}

// Submissions

// OpenDraft returns the user's draft for the test, creating it when there is none.
func (svc *Service) OpenDraft(ctx context.Context, test Test, userID string) (Submission, error) {
	sub, err := svc.repo.GetDraft(ctx, test.ID, userID)
	if err == nil {
		return sub, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return Submission{}, errors.Wrap(err, "finding draft")
	}
	sub, err = svc.repo.CreateSubmission(ctx, Submission{
		TestID:    test.ID,
		UserID:    userID,
		StartedAt: nowFunc().UTC(),
		Status:    StatusDraft,
	})
	return sub, errors.Wrap(err, "creating draft")
}

// SaveResult is the outcome of SaveAnswers; Notices tells the learner about dropped images.
type SaveResult struct {
	Submission Submission `json:"submission"`
	Notices    []string   `json:"notices"`
}

// taskUploads holds the stored files of one task, ready to be attached to its answer.
type taskUploads struct {
	drawing string
	images  []string
	capped  bool
}

// SaveAnswers merges the posted inputs (keyed by task ID) into the draft answers, then finishes
// the submission when finish is set. Every task of the test gets an answer.
func (svc *Service) SaveAnswers(ctx context.Context, test Test, sub Submission, inputs map[int64]AnswerInput, finish bool) (SaveResult, error) {
	if !sub.IsDraft() {
		return SaveResult{}, transitionErr(sub.Status, "edited")
	}

	uploads, stored, err := svc.storeUploads(ctx, test.Tasks, inputs)
	if err != nil {
		return SaveResult{}, err
	}

	// files not yet attached to a saved answer; a failure deletes them and keeps the others
	pending := make(map[string]bool, len(stored))
	for _, p := range stored {
		pending[p] = true
	}
	var removed []string
	abort := func() {
		left := make([]string, 0, len(pending))
		for p := range pending {
			left = append(left, p)
		}
		svc.discard(ctx, left...)
		svc.discard(ctx, removed...)
	}

	res := SaveResult{Notices: []string{}}
	for i, task := range test.Tasks {
		up := uploads[i]
		ans, _ := sub.Answer(task.ID)
		ans.SubmissionID = sub.ID
		ans.TaskID = task.ID
		ans = MergeText(task, ans, inputs[task.ID])
		oldDrawing := ""
		if up.drawing != "" {
			oldDrawing, ans.DrawingImage = ans.DrawingImage, up.drawing
		}

		saved, err := svc.repo.SaveAnswer(ctx, ans)
		if err != nil {
			abort()
			return SaveResult{}, errors.Wrapf(err, "saving answer to task %d", task.ID)
		}
		if up.drawing != "" {
			delete(pending, up.drawing)
			removed = append(removed, oldDrawing)
		}

		if up.images != nil {
			images := make([]AnswerImage, len(up.images))
			for j, p := range up.images {
				images[j] = AnswerImage{AnswerID: saved.ID, Image: p}
			}
			old, err := svc.repo.ReplaceAnswerImages(ctx, saved.ID, images)
			if err != nil {
				abort()
				return SaveResult{}, errors.Wrapf(err, "replacing answer images of task %d", task.ID)
			}
			for _, p := range up.images {
				delete(pending, p)
			}
			for _, img := range old {
				removed = append(removed, img.Image)
			}
			if up.capped {
				res.Notices = append(res.Notices, fmt.Sprintf("#%d: a maximum of %d images was saved.", task.Order, task.MaxImages))
			}
		}
	}
	svc.discard(ctx, removed...)

	if finish {
		if err := sub.Finish(nowFunc().UTC()); err != nil {
			return SaveResult{}, err
		}
		if sub, err = svc.repo.UpdateSubmission(ctx, sub); err != nil {
			return SaveResult{}, errors.Wrap(err, "finishing submission")
		}
	}

	sub, err = svc.repo.GetSubmission(ctx, sub.ID)
	if err != nil {
		return SaveResult{}, errors.Wrap(err, "reloading submission")
	}
	res.Submission = sub
	return res, nil
}

// storeUploads processes and stores the drawings and images of all tasks concurrently.
// On error, the files stored so far are deleted.
func (svc *Service) storeUploads(ctx context.Context, tasks []Task, inputs map[int64]AnswerInput) ([]taskUploads, []string, error) {
	uploads := make([]taskUploads, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxConcurrentImages)

	type job struct {
		task, image int // image -1: drawing
		name        string
		open        func() ([]byte, error)
	}
	var jobs []job
	for i, task := range tasks {
		in := inputs[task.ID]
		field := "task_" + strconv.FormatInt(task.ID, 10)

		if task.ResponseType == ResponseDrawing {
			if in.Drawing != nil {
				up := *in.Drawing
				jobs = append(jobs, job{task: i, image: -1, name: up.Filename, open: uploadReader(up)})
			}
			png, ok, err := DecodeDrawing(in.DrawingDataURL)
			if err != nil {
				return nil, nil, core.NewFieldError(field+"_fabric_png", "invalid drawing")
			}
			if ok {
				name := fmt.Sprintf("torrens_task_%d.png", task.ID)
				jobs = append(jobs, job{task: i, image: -1, name: name, open: func() ([]byte, error) { return png, nil }})
			}
		}
		if task.AllowImages && len(in.Images) > 0 {
			kept, capped := KeepImages(task, in.Images)
			uploads[i].images = make([]string, len(kept))
			uploads[i].capped = capped
			for j, up := range kept {
				jobs = append(jobs, job{task: i, image: j, name: up.Filename, open: uploadReader(up)})
			}
		}
	}

	// several drawing sources: the canvas export (last) wins
	drawings := make([]string, len(jobs))
	for k, jb := range jobs {
		k, jb := k, jb
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			data, err := jb.open()
			if err != nil {
				return errors.Wrap(err, "reading upload")
			}
			img, err := svc.images.Process(bytes.NewReader(data), jb.name)
			if err != nil {
				field := "task_" + strconv.FormatInt(tasks[jb.task].ID, 10) + "_images"
				if jb.image < 0 {
					field = "task_" + strconv.FormatInt(tasks[jb.task].ID, 10) + "_image"
				}
				return core.NewFieldError(field, fmt.Sprintf("%s is not a valid image", jb.name))
			}
			folder := answerImagesFolder
			if jb.image < 0 {
				folder = drawingsFolder
			}
			path, err := svc.media.Save(gctx, folder, img.Filename, img.ContentType, bytes.NewReader(img.Data))
			if err != nil {
				return errors.Wrap(err, "storing image")
			}
			if jb.image < 0 {
				drawings[k] = path
			} else {
				uploads[jb.task].images[jb.image] = path
			}
			return nil
		})
	}

	err := g.Wait()

	var stored []string
	for k, jb := range jobs {
		if jb.image < 0 {
			if drawings[k] != "" {
				stored = append(stored, drawings[k])
			}
		} else if p := uploads[jb.task].images[jb.image]; p != "" {
			stored = append(stored, p)
		}
	}
	if err != nil {
		svc.discard(ctx, stored...)
		return nil, nil, err
	}

	var superseded []string
	for k, jb := range jobs {
		if jb.image < 0 {
			if prev := uploads[jb.task].drawing; prev != "" {
				superseded = append(superseded, prev)
			}
			uploads[jb.task].drawing = drawings[k]
		}
	}
	svc.discard(ctx, superseded...)
	return uploads, stored, nil
}

func (svc *Service) storeImages(ctx context.Context, folder string, uploads []core.Upload) ([]string, error) {
	paths := make([]string, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	for i, up := range uploads {
		i, up := i, up
		g.Go(func() error {
			data, err := uploadReader(up)()
			if err != nil {
				return errors.Wrap(err, "reading upload")
			}
			img, err := svc.images.Process(bytes.NewReader(data), up.Filename)
			if err != nil {
				return core.NewFieldError("images", fmt.Sprintf("%s is not a valid image", up.Filename))
			}
			paths[i], err = svc.media.Save(gctx, folder, img.Filename, img.ContentType, bytes.NewReader(img.Data))
			return errors.Wrap(err, "storing image")
		})
	}
	if err := g.Wait(); err != nil {
		svc.discard(ctx, paths...)
		return nil, err
	}
	return paths, nil
}

func uploadReader(up core.Upload) func() ([]byte, error) {
	return func() ([]byte, error) {
		rc, err := up.Open()
		if err != nil {
			return nil, err
		}
		//goland:noinspection GoUnhandledErrorResult
		defer rc.Close()
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		return buf.Bytes(), err
	}
}

// discard deletes media files, logging failures.
func (svc *Service) discard(ctx context.Context, paths ...string) {
	var nonEmpty []string
	for _, p := range paths {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		return
	}
	if err := svc.media.Delete(ctx, nonEmpty...); err != nil {
		svc.logger.Warn(fmt.Sprintf("deleting media files: %v", err))
	}
}

// Finish moves the draft to finished.
func (svc *Service) Finish(ctx context.Context, sub Submission) (Submission, error) {
	if err := sub.Finish(nowFunc().UTC()); err != nil {
		return Submission{}, err
	}
	return svc.repo.UpdateSubmission(ctx, sub)
}

func (svc *Service) GetSubmission(ctx context.Context, test Test, id int64) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if sub.TestID != test.ID {
		return Submission{}, ErrNotFound
	}
	return sub, nil
}

func (svc *Service) QuerySubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, filter)
}

// Grade scores every answer of a finished (or graded) submission; see GradeSubmission.
func (svc *Service) Grade(ctx context.Context, sub Submission, scores, notes map[int64]string) (Submission, error) {
	if !CanTransition(sub.Status, StatusGraded) {
		return Submission{}, transitionErr(sub.Status, StatusGraded)
	}
	answers, total := GradeSubmission(sub.Answers, scores, notes)
	if err := svc.repo.UpdateAnswerGrades(ctx, answers); err != nil {
		return Submission{}, errors.Wrap(err, "saving grades")
	}
	if err := sub.MarkGraded(total); err != nil {
		return Submission{}, err
	}
	sub, err := svc.repo.UpdateSubmission(ctx, sub)
	if err != nil {
		return Submission{}, errors.Wrap(err, "updating submission")
	}
	sub.Answers = answers
	return sub, nil
}
