package echoapi

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/munnerz/goautoneg"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core/quiz"
	"github.com/trezcool/darslik/core/torrens"
	"github.com/trezcool/darslik/core/user"
)

const mimeTextCSV = "text/csv"

type exportApi struct {
	quizzes *quiz.Service
	torrens *torrens.Service
	users   *user.Service
}

func registerExportAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := exportApi{
		quizzes: deps.QuizSvc,
		torrens: deps.TorrensSvc,
		users:   deps.UserSvc,
	}

	eg := g.Group("/exports", jwt, staffMiddleware())
	eg.GET("/quiz-attempts", api.quizAttempts)
	eg.GET("/torrens-submissions", api.torrensSubmissions)
}

// wantsJSON negotiates the export format: CSV unless JSON is explicitly preferred.
func wantsJSON(accept string) bool {
	for _, clause := range goautoneg.ParseAccept(accept) {
		switch {
		case clause.Type == "application" && clause.SubType == "json":
			return true
		case clause.Type == "text" && (clause.SubType == "csv" || clause.SubType == "*"),
			clause.Type == "*" && clause.SubType == "*":
			return false
		}
	}
	return false
}

// usernames resolves user IDs to usernames, once per ID.
type usernames struct {
	svc   *user.Service
	cache map[string]string
}

func (u *usernames) get(ctx context.Context, id string) string {
	if name, ok := u.cache[id]; ok {
		return name
	}
	name := id
	if usr, err := u.svc.GetByID(ctx, id); err == nil {
		name = usr.Username
	}
	u.cache[id] = name
	return name
}

func (api *exportApi) newUsernames() *usernames {
	return &usernames{svc: api.users, cache: make(map[string]string)}
}

func writeCSV(ctx echo.Context, filename string, header []string, rows [][]string) error {
	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, mimeTextCSV+"; charset=utf-8")
	resp.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	resp.WriteHeader(http.StatusOK)

	w := csv.NewWriter(resp)
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	if err := w.WriteAll(rows); err != nil {
		return errors.Wrap(err, "writing csv rows")
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

var attemptsHeader = []string{
	"User", "Quiz ID", "Lesson ID", "Points gained", "Points total", "Percent",
	"Created", "Finished", "Question IDs", "Answers",
}

// quizAttempts exports the attempts matching the user_id, quiz_id & lesson_id query params.
func (api *exportApi) quizAttempts(ctx echo.Context) error {
	var filter quiz.AttemptFilter
	_ = ctx.Bind(&filter)
	attempts, err := api.quizzes.QueryAttempts(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}

	if wantsJSON(ctx.Request().Header.Get(echo.HeaderAccept)) {
		if attempts == nil {
			attempts = []quiz.Attempt{}
		}
		return ctx.JSON(http.StatusOK, attempts)
	}

	names := api.newUsernames()
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		ids := make([]string, len(a.QuestionIDs))
		for i, id := range a.QuestionIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		var finished string
		if a.FinishedAt.Valid {
			finished = formatTime(a.FinishedAt.Time)
		}
		rows = append(rows, []string{
			names.get(ctx.Request().Context(), a.UserID),
			strconv.FormatInt(a.QuizID, 10),
			strconv.FormatInt(a.LessonID, 10),
			formatFloat(a.PointsGained),
			formatFloat(a.PointsTotal),
			formatFloat(a.Percent),
			formatTime(a.CreatedAt),
			finished,
			strings.Join(ids, ";"),
			string(a.Answers),
		})
	}
	return writeCSV(ctx, "quiz-attempts.csv", attemptsHeader, rows)
}

var submissionsHeader = []string{"User", "Test ID", "Status", "Total score", "Started", "Finished"}

// torrensSubmissions exports the submissions matching the test_id, user_id & status query params.
func (api *exportApi) torrensSubmissions(ctx echo.Context) error {
	var filter torrens.SubmissionFilter
	_ = ctx.Bind(&filter)
	subs, err := api.torrens.QuerySubmissions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}

	if wantsJSON(ctx.Request().Header.Get(echo.HeaderAccept)) {
		if subs == nil {
			subs = []torrens.Submission{}
		}
		return ctx.JSON(http.StatusOK, subs)
	}

	names := api.newUsernames()
	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		var finished string
		if s.FinishedAt.Valid {
			finished = formatTime(s.FinishedAt.Time)
		}
		rows = append(rows, []string{
			names.get(ctx.Request().Context(), s.UserID),
			strconv.FormatInt(s.TestID, 10),
			s.Status,
			formatFloat(s.Score()),
			formatTime(s.StartedAt),
			finished,
		})
	}
	return writeCSV(ctx, "torrens-submissions.csv", submissionsHeader, rows)
}
