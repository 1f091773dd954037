package torrens_test

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/torrens"
	logsvc "github.com/trezcool/darslik/services/logger"
	mediasvc "github.com/trezcool/darslik/services/media"
	dummydb "github.com/trezcool/darslik/storage/database/dummy"
	testutil "github.com/trezcool/darslik/tests"
)

const learnerID = "learner-1"

func newService(t *testing.T) (*torrens.Service, torrens.Repository, *mediasvc.LocalStorage) {
	repo := dummydb.NewTorrensRepository(dummydb.Open())
	media := testutil.Media(t)
	return torrens.NewService(repo, media, testutil.Images(), logsvc.NewDiscardLogger()), repo, media
}

func fileExists(t *testing.T, media core.MediaStorage, path string) bool {
	rc, err := media.Open(context.Background(), path)
	if err != nil {
		return false
	}
	_ = rc.Close()
	return true
}

func TestService_CreateTest(t *testing.T) {
	ctx := context.Background()
	validate, _ := testutil.Validator()
	svc, _, _ := newService(t)

	noImages := false
	test, err := svc.CreateTest(ctx, validate, torrens.NewTest{
		Title:     " Unusual Uses ",
		TimeLimit: "PT1H30M",
		Tasks: []torrens.NewTask{
			{Order: 2, Prompt: "Draw what this could become", ResponseType: "DRAWING"},
			{Order: 1, Prompt: "List all the uses of a brick", ResponseType: "list", AllowImages: &noImages},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "unusual-uses", test.Slug)
	assert.Equal(t, 90, test.TimeLimitMinutes)
	require.Len(t, test.Tasks, 2)
	assert.Equal(t, torrens.ResponseList, test.Tasks[0].ResponseType)
	assert.False(t, test.Tasks[0].AllowImages)
	assert.Equal(t, torrens.ResponseDrawing, test.Tasks[1].ResponseType)
	assert.True(t, test.Tasks[1].AllowText)
	assert.Equal(t, torrens.DefaultMaxImages, test.Tasks[1].MaxImages)

	tests := []struct {
		name      string
		nt        torrens.NewTest
		wantField string
	}{
		{
			name:      "slug taken",
			nt:        torrens.NewTest{Title: "Unusual uses"},
			wantField: "slug",
		},
		{
			name: "same task order",
			nt: torrens.NewTest{Title: "Circles", Tasks: []torrens.NewTask{
				{Order: 1, Prompt: "Turn circles into pictures"},
				{Order: 1, Prompt: "Give each picture a title"},
			}},
			wantField: "tasks",
		},
		{
			name:      "time limit over a day",
			nt:        torrens.NewTest{Title: "Marathon", TimeLimit: "P2D"},
			wantField: "time_limit",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTest(ctx, validate, tt.nt)
			require.Error(t, err)
			vErr, ok := errors.Cause(err).(*core.ValidationError)
			require.True(t, ok, "got %T: %v", err, err)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}

	t.Run("short prompt", func(t *testing.T) {
		_, err := svc.CreateTest(ctx, validate, torrens.NewTest{Title: "Short", Tasks: []torrens.NewTask{{Order: 1, Prompt: "Go"}}})
		assert.Error(t, err)
	})
}

func TestService_GetPublishedTest(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t)
	published := testutil.CreateTest(t, repo, "Circles", torrens.ResponseText)
	draft, err := repo.CreateTest(ctx, torrens.Test{Title: "Hidden", Slug: "hidden", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	got, err := svc.GetPublishedTest(ctx, published.Slug)
	require.NoError(t, err)
	assert.Equal(t, published.ID, got.ID)

	_, err = svc.GetPublishedTest(ctx, draft.Slug)
	assert.Equal(t, torrens.ErrNotFound, errors.Cause(err))

	all, err := svc.ListTests(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	visible, err := svc.ListTests(ctx, true)
	require.NoError(t, err)
	assert.Len(t, visible, 1)
}

func TestService_OpenDraft(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t)
	test := testutil.CreateTest(t, repo, "Circles", torrens.ResponseText)

	draft, err := svc.OpenDraft(ctx, test, learnerID)
	require.NoError(t, err)
	assert.Equal(t, torrens.StatusDraft, draft.Status)
	assert.False(t, draft.FinishedAt.Valid)

	again, err := svc.OpenDraft(ctx, test, learnerID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, again.ID, "the draft is reused")

	_, err = svc.Finish(ctx, again)
	require.NoError(t, err)
	fresh, err := svc.OpenDraft(ctx, test, learnerID)
	require.NoError(t, err)
	assert.NotEqual(t, draft.ID, fresh.ID, "a finished submission starts a new draft")
}

func TestService_SaveAnswers(t *testing.T) {
	ctx := context.Background()
	svc, repo, media := newService(t)
	test := testutil.CreateTest(t, repo, "Circles", torrens.ResponseText, torrens.ResponseList, torrens.ResponseDrawing)
	textTask, listTask, drawTask := test.Tasks[0], test.Tasks[1], test.Tasks[2]

	draft, err := svc.OpenDraft(ctx, test, learnerID)
	require.NoError(t, err)

	png := testutil.PNG(t, 300, 150)
	res, err := svc.SaveAnswers(ctx, test, draft, map[int64]torrens.AnswerInput{
		textTask.ID: {Text: "  A wheel, a clock face  "},
		listTask.ID: {List: "sun\r\n\n  moon \nplate", Text: "ignored? no, appended"},
		drawTask.ID: {
			Text:           "my owl",
			DrawingDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
			Images: []core.Upload{
				testutil.Upload("a.png", png),
				testutil.Upload("b.png", png),
				testutil.Upload("c.png", png),
			},
		},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"#3: a maximum of 2 images was saved."}, res.Notices)

	sub := res.Submission
	assert.Equal(t, torrens.StatusDraft, sub.Status)
	require.Len(t, sub.Answers, 3, "every task gets an answer")

	text, _ := sub.Answer(textTask.ID)
	assert.Equal(t, "A wheel, a clock face", text.TextAnswer)

	list, _ := sub.Answer(listTask.ID)
	assert.Equal(t, []string{"sun", "moon", "plate"}, list.ListAnswer)
	assert.Equal(t, "ignored? no, appended", list.TextAnswer)

	drawing, _ := sub.Answer(drawTask.ID)
	assert.Equal(t, "my owl", drawing.TextAnswer)
	require.NotEmpty(t, drawing.DrawingImage)
	assert.True(t, fileExists(t, media, drawing.DrawingImage))
	require.Len(t, drawing.Images, 2)
	firstImages := []string{drawing.Images[0].Image, drawing.Images[1].Image}

	t.Run("saving again merges text and replaces files", func(t *testing.T) {
		owl := testutil.Upload("owl.png", png)
		res, err := svc.SaveAnswers(ctx, test, sub, map[int64]torrens.AnswerInput{
			drawTask.ID: {
				Text:    "with a hat",
				Drawing: &owl,
				Images:  []core.Upload{testutil.Upload("d.png", png)},
			},
		}, false)
		require.NoError(t, err)
		assert.Empty(t, res.Notices)

		again, _ := res.Submission.Answer(drawTask.ID)
		assert.Equal(t, "my owl\nwith a hat", again.TextAnswer)
		assert.NotEqual(t, drawing.DrawingImage, again.DrawingImage)
		assert.False(t, fileExists(t, media, drawing.DrawingImage), "old drawing is deleted")
		require.Len(t, again.Images, 1)
		for _, p := range firstImages {
			assert.False(t, fileExists(t, media, p), "old images are deleted")
		}

		text, _ := res.Submission.Answer(textTask.ID)
		assert.Empty(t, text.TextAnswer, "text tasks take the posted text as is")
		sub = res.Submission
	})

	t.Run("invalid image", func(t *testing.T) {
		_, err := svc.SaveAnswers(ctx, test, sub, map[int64]torrens.AnswerInput{
			drawTask.ID: {Images: []core.Upload{
				testutil.Upload("ok.png", png),
				testutil.Upload("notes.txt", []byte("not an image at all")),
			}},
		}, false)
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))

		current, err := svc.GetSubmission(ctx, test, sub.ID)
		require.NoError(t, err)
		kept, _ := current.Answer(drawTask.ID)
		assert.Len(t, kept.Images, 1, "nothing changed")
	})

	t.Run("invalid drawing data", func(t *testing.T) {
		_, err := svc.SaveAnswers(ctx, test, sub, map[int64]torrens.AnswerInput{
			drawTask.ID: {DrawingDataURL: "data:image/png;base64,%%%"},
		}, false)
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("finish", func(t *testing.T) {
		res, err := svc.SaveAnswers(ctx, test, sub, nil, true)
		require.NoError(t, err)
		assert.Equal(t, torrens.StatusFinished, res.Submission.Status)
		assert.True(t, res.Submission.FinishedAt.Valid)

		_, err = svc.SaveAnswers(ctx, test, res.Submission, nil, false)
		assert.True(t, core.IsConflictError(err), "finished submissions are read only")
	})
}

// failingRepo fails the nth SaveAnswer call.
type failingRepo struct {
	torrens.Repository
	failAt, calls int
}

func (r *failingRepo) SaveAnswer(ctx context.Context, ans torrens.Answer) (torrens.Answer, error) {
	r.calls++
	if r.calls == r.failAt {
		return torrens.Answer{}, errors.New("connection reset")
	}
	return r.Repository.SaveAnswer(ctx, ans)
}

// deleteRecorder records the deleted media paths.
type deleteRecorder struct {
	core.MediaStorage
	deleted []string
}

func (m *deleteRecorder) Delete(ctx context.Context, paths ...string) error {
	m.deleted = append(m.deleted, paths...)
	return m.MediaStorage.Delete(ctx, paths...)
}

func TestService_SaveAnswers_partialFailure(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{Repository: dummydb.NewTorrensRepository(dummydb.Open()), failAt: 2}
	media := &deleteRecorder{MediaStorage: testutil.Media(t)}
	svc := torrens.NewService(repo, media, testutil.Images(), logsvc.NewDiscardLogger())
	test := testutil.CreateTest(t, repo, "Owls", torrens.ResponseDrawing, torrens.ResponseDrawing)
	first, second := test.Tasks[0], test.Tasks[1]

	draft, err := svc.OpenDraft(ctx, test, learnerID)
	require.NoError(t, err)

	png := testutil.PNG(t, 40, 40)
	owl, hat := testutil.Upload("owl.png", png), testutil.Upload("hat.png", png)
	_, err = svc.SaveAnswers(ctx, test, draft, map[int64]torrens.AnswerInput{
		first.ID:  {Drawing: &owl, Images: []core.Upload{testutil.Upload("a.png", png)}},
		second.ID: {Drawing: &hat},
	}, false)
	require.Error(t, err)

	sub, err := repo.GetSubmission(ctx, draft.ID)
	require.NoError(t, err)
	saved, ok := sub.Answer(first.ID)
	require.True(t, ok, "the first answer was saved")
	require.NotEmpty(t, saved.DrawingImage)
	require.Len(t, saved.Images, 1)

	kept := []string{saved.DrawingImage, saved.Images[0].Image}
	for _, p := range kept {
		assert.True(t, fileExists(t, media, p), "files of saved answers are kept")
		assert.NotContains(t, media.deleted, p)
	}
	require.Len(t, media.deleted, 1, "only the unsaved drawing is deleted")
	assert.False(t, fileExists(t, media, media.deleted[0]))
}

func TestService_Grade(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t)
	test := testutil.CreateTest(t, repo, "Circles", torrens.ResponseText, torrens.ResponseList)

	draft, err := svc.OpenDraft(ctx, test, learnerID)
	require.NoError(t, err)
	res, err := svc.SaveAnswers(ctx, test, draft, map[int64]torrens.AnswerInput{
		test.Tasks[0].ID: {Text: "a wheel"},
		test.Tasks[1].ID: {List: "sun\nmoon"},
	}, false)
	require.NoError(t, err)
	sub := res.Submission
	first, second := sub.Answers[0], sub.Answers[1]

	_, err = svc.Grade(ctx, sub, nil, nil)
	assert.True(t, core.IsConflictError(err), "drafts cannot be graded")

	sub, err = svc.Finish(ctx, sub)
	require.NoError(t, err)
	graded, err := svc.Grade(ctx, sub,
		map[int64]string{first.ID: "2.5", second.ID: "x"},
		map[int64]string{first.ID: "original"},
	)
	require.NoError(t, err)
	assert.Equal(t, torrens.StatusGraded, graded.Status)
	assert.Equal(t, 2.5, graded.TotalScore)
	assert.Equal(t, 2.5, graded.Score())

	stored, err := svc.GetSubmission(ctx, test, sub.ID)
	require.NoError(t, err)
	a, _ := stored.Answer(first.TaskID)
	assert.Equal(t, 2.5, a.Score)
	assert.Equal(t, "original", a.Note)

	regraded, err := svc.Grade(ctx, stored, map[int64]string{first.ID: "1", second.ID: "3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, regraded.TotalScore, "scores are replaced, not added")

	subs, err := svc.QuerySubmissions(ctx, torrens.SubmissionFilter{Status: torrens.StatusGraded})
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestService_GetSubmission(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t)
	circles := testutil.CreateTest(t, repo, "Circles", torrens.ResponseText)
	lines := testutil.CreateTest(t, repo, "Lines", torrens.ResponseText)

	draft, err := svc.OpenDraft(ctx, circles, learnerID)
	require.NoError(t, err)

	_, err = svc.GetSubmission(ctx, circles, draft.ID)
	assert.NoError(t, err)
	_, err = svc.GetSubmission(ctx, lines, draft.ID)
	assert.Equal(t, torrens.ErrNotFound, errors.Cause(err))
}

func TestService_AddTaskImages(t *testing.T) {
	ctx := context.Background()
	svc, repo, media := newService(t)
	test := testutil.CreateTest(t, repo, "Circles", torrens.ResponseDrawing)
	png := testutil.PNG(t, 50, 50)

	images, err := svc.AddTaskImages(ctx, test, test.Tasks[0].ID, []core.Upload{testutil.Upload("example.png", png)}, "an example")
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "an example", images[0].Caption)
	assert.True(t, fileExists(t, media, images[0].Image))

	reloaded, err := svc.GetTest(ctx, test.Slug)
	require.NoError(t, err)
	assert.Len(t, reloaded.Tasks[0].Images, 1)

	_, err = svc.AddTaskImages(ctx, test, 999999, nil, "")
	assert.Equal(t, torrens.ErrNotFound, err)
}
