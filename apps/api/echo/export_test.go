package echoapi_test

import (
	"context"
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"gorm.io/datatypes"

	"github.com/trezcool/darslik/core/quiz"
	"github.com/trezcool/darslik/core/torrens"
	testutil "github.com/trezcool/darslik/tests"
)

func Test_exportApi(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	_, staffToken := app.staff(t)
	hero, heroToken := app.learner(t, "hero")

	qz, _ := testutil.CreateQuiz(t, app.quizRepo, 7, 0)
	created := time.Date(2021, 3, 1, 9, 30, 0, 0, time.UTC)
	_, err := app.quizRepo.CreateAttempt(ctx, quiz.Attempt{
		UserID:       hero.ID,
		LessonID:     7,
		QuizID:       qz.ID,
		CreatedAt:    created,
		FinishedAt:   null.TimeFrom(created.Add(5 * time.Minute)),
		PointsTotal:  3,
		PointsGained: 2,
		Percent:      200.0 / 3,
		QuestionIDs:  []int64{11, 12, 13},
		Answers:      datatypes.JSON(`{"11":21}`),
	})
	require.NoError(t, err)

	test := testutil.CreateTest(t, app.torrensRepo, "Creative Thinking", torrens.ResponseText)
	_, err = app.torrensRepo.CreateSubmission(ctx, torrens.Submission{
		TestID:     test.ID,
		UserID:     "deleted-user",
		StartedAt:  created,
		TotalScore: 8, // not graded yet: exported as 0
		Status:     torrens.StatusFinished,
		FinishedAt: null.TimeFrom(created.Add(time.Hour)),
	})
	require.NoError(t, err)

	app.run(t, []httpTest{
		{name: "auth required", path: "/v1/exports/quiz-attempts", wantCode: http.StatusUnauthorized},
		{name: "staff required", path: "/v1/exports/quiz-attempts", token: heroToken, wantCode: http.StatusForbidden},
	})

	readCSV := func(t *testing.T, path, accept string) [][]string {
		req, rec := newAuthRequest(http.MethodGet, path, staffToken)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment;")

		records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
		require.NoError(t, err)
		return records
	}

	t.Run("quiz attempts CSV", func(t *testing.T) {
		records := readCSV(t, "/v1/exports/quiz-attempts", "")
		require.Len(t, records, 2)
		assert.Equal(t, "User", records[0][0])
		assert.Equal(t, []string{
			"hero", strconv.FormatInt(qz.ID, 10), "7", "2.00", "3.00", "66.67",
			"2021-03-01T09:30:00Z", "2021-03-01T09:35:00Z", "11;12;13", `{"11":21}`,
		}, records[1])
	})

	t.Run("filtered out", func(t *testing.T) {
		records := readCSV(t, "/v1/exports/quiz-attempts?lesson_id=8", "text/*")
		assert.Len(t, records, 1, "header only")
	})

	t.Run("torrens submissions CSV", func(t *testing.T) {
		records := readCSV(t, "/v1/exports/torrens-submissions", "text/csv, application/json;q=0.5")
		require.Len(t, records, 2)
		assert.Equal(t, []string{
			"deleted-user", strconv.FormatInt(test.ID, 10), "finished", "0.00", "2021-03-01T09:30:00Z", "2021-03-01T10:30:00Z",
		}, records[1])
	})

	t.Run("JSON when preferred", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/exports/torrens-submissions?status=graded", staffToken)
		req.Header.Set("Accept", "application/json")
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, "[]", rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/exports/quiz-attempts", staffToken)
		req.Header.Set("Accept", "application/json, text/csv;q=0.8")
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var attempts []quiz.Attempt
		unmarshall(t, rec, &attempts)
		require.Len(t, attempts, 1)
		assert.Equal(t, hero.ID, attempts[0].UserID)
	})
}
