package echoapi_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/darslik/apps/api/echo"
	"github.com/trezcool/darslik/core/torrens"
	testutil "github.com/trezcool/darslik/tests"
)

func taskField(task torrens.Task, suffix string) string {
	return "task_" + strconv.FormatInt(task.ID, 10) + "_" + suffix
}

func Test_torrensApi_public(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateTest(t, app.torrensRepo, "Creative Thinking", torrens.ResponseText)
	_, err := app.torrensRepo.CreateTest(context.Background(), torrens.Test{Title: "Hidden", Slug: "hidden"})
	require.NoError(t, err)
	_, heroToken := app.learner(t, "hero")

	t.Run("list", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/torrens")
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var tests []torrens.Test
		unmarshall(t, rec, &tests)
		require.Len(t, tests, 1)
		assert.Equal(t, "creative-thinking", tests[0].Slug)
	})

	app.run(t, []httpTest{
		{name: "detail", path: "/v1/torrens/creative-thinking"},
		{name: "unpublished", path: "/v1/torrens/hidden", wantCode: http.StatusNotFound},
		{name: "unknown", path: "/v1/torrens/lol", wantCode: http.StatusNotFound},
		{name: "take: auth required", path: "/v1/torrens/creative-thinking/take", wantCode: http.StatusUnauthorized},
		{name: "take: unpublished", path: "/v1/torrens/hidden/take", token: heroToken, wantCode: http.StatusNotFound},
	})
}

func Test_torrensApi_take(t *testing.T) {
	app := newTestApp(t)
	test := testutil.CreateTest(t, app.torrensRepo, "Creative Thinking",
		torrens.ResponseText, torrens.ResponseList, torrens.ResponseDrawing)
	textTask, listTask, drawingTask := test.Tasks[0], test.Tasks[1], test.Tasks[2]
	hero, heroToken := app.learner(t, "hero")
	_, staffToken := app.staff(t)
	takePath := "/v1/torrens/creative-thinking/take"

	var draft torrens.Submission
	t.Run("open draft", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, takePath, heroToken)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.DraftResponse
		unmarshall(t, rec, &resp)
		draft = resp.Submission
		assert.Equal(t, hero.ID, draft.UserID)
		assert.Equal(t, torrens.StatusDraft, draft.Status)
		assert.Len(t, resp.Test.Tasks, 3)

		// same draft
		req, rec = newAuthRequest(http.MethodGet, takePath, heroToken)
		app.srv.ServeHTTP(rec, req)
		resp = echoapi.DraftResponse{}
		unmarshall(t, rec, &resp)
		assert.Equal(t, draft.ID, resp.Submission.ID)
	})

	t.Run("invalid image", func(t *testing.T) {
		req := newMultipartRequest(t, http.MethodPost, takePath, heroToken, nil,
			formFile{field: taskField(textTask, "images"), filename: "notes.txt", data: []byte("not an image")},
		)
		rec := app.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), taskField(textTask, "images"))
	})

	t.Run("save", func(t *testing.T) {
		png := testutil.PNG(t, 30, 30)
		req := newMultipartRequest(t, http.MethodPost, takePath, heroToken,
			map[string][]string{
				taskField(textTask, "text"):          {"  my answer  "},
				taskField(listTask, "list"):          {"idea one\r\n\r\n idea two "},
				taskField(listTask, "text"):          {"extra"},
				taskField(drawingTask, "fabric_png"): {"data:image/png;base64," + base64.StdEncoding.EncodeToString(png)},
			},
			formFile{field: taskField(textTask, "images"), filename: "a.png", data: png},
			formFile{field: taskField(textTask, "images"), filename: "b.png", data: png},
			formFile{field: taskField(textTask, "images"), filename: "c.png", data: png},
		)
		rec := app.do(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res torrens.SaveResult
		unmarshall(t, rec, &res)
		assert.Equal(t, []string{"#1: a maximum of 2 images was saved."}, res.Notices)
		assert.Equal(t, draft.ID, res.Submission.ID)
		assert.Equal(t, torrens.StatusDraft, res.Submission.Status)
		require.Len(t, res.Submission.Answers, 3)

		ans, ok := res.Submission.Answer(textTask.ID)
		require.True(t, ok)
		assert.Equal(t, "my answer", ans.TextAnswer)
		assert.Len(t, ans.Images, 2)

		ans, _ = res.Submission.Answer(listTask.ID)
		assert.Equal(t, []string{"idea one", "idea two"}, ans.ListAnswer)
		assert.Equal(t, "extra", ans.TextAnswer)

		ans, _ = res.Submission.Answer(drawingTask.ID)
		assert.NotEmpty(t, ans.DrawingImage)
	})

	t.Run("grading a draft", func(t *testing.T) {
		path := "/v1/torrens/creative-thinking/grade/" + strconv.FormatInt(draft.ID, 10)
		req, rec := newAuthRequest(http.MethodPost, path, staffToken, []byte(`{}`))
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	})

	t.Run("finish set to false keeps the draft", func(t *testing.T) {
		for _, val := range []string{"false", "0"} {
			req := newMultipartRequest(t, http.MethodPost, takePath, heroToken, map[string][]string{"finish": {val}})
			rec := app.do(req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var res torrens.SaveResult
			unmarshall(t, rec, &res)
			assert.Equal(t, torrens.StatusDraft, res.Submission.Status, val)
		}
	})

	t.Run("finish", func(t *testing.T) {
		// a blank finish field still finishes
		req := newMultipartRequest(t, http.MethodPost, takePath, heroToken, map[string][]string{
			taskField(listTask, "text"): {"more"},
			"finish":                    {""},
		})
		rec := app.do(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res torrens.SaveResult
		unmarshall(t, rec, &res)
		assert.Equal(t, torrens.StatusFinished, res.Submission.Status)
		assert.True(t, res.Submission.FinishedAt.Valid)
		assert.Empty(t, res.Notices)

		ans, _ := res.Submission.Answer(listTask.ID)
		assert.Equal(t, "extra\nmore", ans.TextAnswer)
		assert.Empty(t, ans.ListAnswer, "the posted list replaces the saved one")
		ans, _ = res.Submission.Answer(textTask.ID)
		assert.Empty(t, ans.TextAnswer)
		assert.Len(t, ans.Images, 2, "images are kept when none is posted")
	})

	t.Run("a new draft after finishing", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, takePath, heroToken)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.DraftResponse
		unmarshall(t, rec, &resp)
		assert.NotEqual(t, draft.ID, resp.Submission.ID)
		assert.Equal(t, torrens.StatusDraft, resp.Submission.Status)
	})

	gradePath := "/v1/torrens/creative-thinking/grade/" + strconv.FormatInt(draft.ID, 10)
	app.run(t, []httpTest{
		{name: "submissions: staff required", path: "/v1/torrens/creative-thinking/submissions", token: heroToken, wantCode: http.StatusForbidden},
		{name: "grade: staff required", path: gradePath, token: heroToken, wantCode: http.StatusForbidden},
		{name: "grade: wrong test", path: "/v1/torrens/lol/grade/" + strconv.FormatInt(draft.ID, 10), token: staffToken, wantCode: http.StatusNotFound},
	})

	t.Run("submissions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/torrens/creative-thinking/submissions?status=finished", staffToken)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var subs []torrens.Submission
		unmarshall(t, rec, &subs)
		require.Len(t, subs, 1)
		assert.Equal(t, draft.ID, subs[0].ID)
	})

	t.Run("grade", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, gradePath, staffToken)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.SubmissionResponse
		unmarshall(t, rec, &resp)
		assert.Equal(t, "hero", resp.User.Username)
		require.Len(t, resp.Submission.Answers, 3)

		fields := map[string][]string{}
		for i, ans := range resp.Submission.Answers {
			id := strconv.FormatInt(ans.ID, 10)
			fields["score_"+id] = []string{strconv.Itoa(i + 1)}
			fields["note_"+id] = []string{"ok"}
		}
		fields["score_"+strconv.FormatInt(resp.Submission.Answers[2].ID, 10)] = []string{"lol"}

		rec = app.do(newMultipartRequest(t, http.MethodPost, gradePath, staffToken, fields))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sub torrens.Submission
		unmarshall(t, rec, &sub)
		assert.Equal(t, torrens.StatusGraded, sub.Status)
		assert.Equal(t, 3.0, sub.Score())

		// re-grading overwrites
		body := marshallObj(t, echoapi.GradeRequest{Scores: map[int64]echoapi.Score{resp.Submission.Answers[0].ID: "2.5"}})
		req, rec = newAuthRequest(http.MethodPost, gradePath, staffToken, body)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		sub = torrens.Submission{}
		unmarshall(t, rec, &sub)
		assert.Equal(t, 2.5, sub.Score())
		for _, ans := range sub.Answers {
			assert.Empty(t, ans.Note)
		}
	})

	t.Run("grade JSON scores", func(t *testing.T) {
		sub, err := app.torrensRepo.GetSubmission(context.Background(), draft.ID)
		require.NoError(t, err)
		require.Len(t, sub.Answers, 3)
		a0, a1, a2 := sub.Answers[0].ID, sub.Answers[1].ID, sub.Answers[2].ID

		tests := []struct {
			name      string
			scores    string
			wantScore float64
		}{
			{name: "number", scores: fmt.Sprintf(`{"%d": 4}`, a0), wantScore: 4},
			{name: "numbers and strings", scores: fmt.Sprintf(`{"%d": 1, "%d": "2.5", "%d": 0.5}`, a0, a1, a2), wantScore: 4},
			{name: "null and garbage", scores: fmt.Sprintf(`{"%d": null, "%d": true, "%d": {"x": 1}}`, a0, a1, a2), wantScore: 0},
			{name: "list", scores: fmt.Sprintf(`{"%d": [1], "%d": "lol", "%d": 2.5}`, a0, a1, a2), wantScore: 2.5},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				body := []byte(`{"scores": ` + tt.scores + `}`)
				req, rec := newAuthRequest(http.MethodPost, gradePath, staffToken, body)
				app.srv.ServeHTTP(rec, req)
				require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

				var graded torrens.Submission
				unmarshall(t, rec, &graded)
				assert.Equal(t, tt.wantScore, graded.Score())
			})
		}
	})

	t.Run("grades are stored", func(t *testing.T) {
		subs, err := app.torrensRepo.QuerySubmissions(context.Background(), torrens.SubmissionFilter{Status: torrens.StatusGraded})
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, 2.5, subs[0].TotalScore)
	})
}

func Test_torrensApi_admin(t *testing.T) {
	app := newTestApp(t)
	_, staffToken := app.staff(t)
	_, heroToken := app.learner(t, "hero")

	newTest := []byte(`{
		"title": "Design Sprint",
		"time_limit": "PT1H30M",
		"tasks": [
			{"order": 1, "prompt": "Sketch a logo", "response_type": "drawing", "max_images": 1},
			{"order": 2, "prompt": "List ten uses of a brick"}
		]
	}`)

	app.run(t, []httpTest{
		{name: "staff required", method: http.MethodPost, path: "/v1/torrens", token: heroToken, body: newTest, wantCode: http.StatusForbidden},
		{
			name: "duplicate task order", method: http.MethodPost, path: "/v1/torrens", token: staffToken,
			body:     []byte(`{"title": "Dup", "tasks": [{"order": 1, "prompt": "First task"}, {"order": 1, "prompt": "Second task"}]}`),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"tasks": "order 1 is used by several tasks"}),
		},
		{
			name: "time limit too long", method: http.MethodPost, path: "/v1/torrens", token: staffToken,
			body:     []byte(`{"title": "Long", "time_limit": "P2D"}`),
			wantCode: http.StatusBadRequest,
		},
	})

	var test torrens.Test
	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/torrens", staffToken, newTest)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		unmarshall(t, rec, &test)
		assert.Equal(t, "design-sprint", test.Slug)
		assert.Equal(t, 90, test.TimeLimitMinutes)
		assert.False(t, test.IsPublished)
		require.Len(t, test.Tasks, 2)
		assert.Equal(t, 1, test.Tasks[0].MaxImages)
		assert.Equal(t, torrens.ResponseText, test.Tasks[1].ResponseType)
		assert.Equal(t, torrens.DefaultMaxImages, test.Tasks[1].MaxImages)

		req, rec = newAuthRequest(http.MethodPost, "/v1/torrens", staffToken, newTest)
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"slug": "this slug is already taken"}`, rec.Body.String())
	})

	t.Run("task images", func(t *testing.T) {
		path := "/v1/torrens/design-sprint/tasks/" + strconv.FormatInt(test.Tasks[0].ID, 10) + "/images"
		rec := app.do(newMultipartRequest(t, http.MethodPost, path, staffToken, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = app.do(newMultipartRequest(t, http.MethodPost, path, staffToken,
			map[string][]string{"caption": {"Example"}},
			formFile{field: "images", filename: "example.png", data: testutil.PNG(t, 300, 100)},
		))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var imgs []torrens.TaskImage
		unmarshall(t, rec, &imgs)
		require.Len(t, imgs, 1)
		assert.Equal(t, "Example", imgs[0].Caption)

		rec = app.do(newMultipartRequest(t, http.MethodPost, "/v1/torrens/design-sprint/tasks/999/images", staffToken, nil,
			formFile{field: "images", filename: "example.png", data: testutil.PNG(t, 10, 10)},
		))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("admin list shows unpublished", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/admin/torrens", staffToken)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var tests []torrens.Test
		unmarshall(t, rec, &tests)
		assert.Len(t, tests, 1)

		req, rec = newRequest(http.MethodGet, "/v1/torrens")
		app.srv.ServeHTTP(rec, req)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, idPath("/v1/admin/torrens/%d", test.ID), staffToken)
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodDelete, idPath("/v1/admin/torrens/%d", test.ID), staffToken)
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
