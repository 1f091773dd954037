package echoapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/quiz"
	"github.com/trezcool/darslik/core/user"
)

// QuestionsImporter parses an uploaded question sheet.
type QuestionsImporter interface {
	ParseQuestions(r io.Reader) ([]quiz.QuestionInput, error)
}

// answer fields of a form submission: `q_<question id>`
const answerFieldPrefix = "q_"

type quizApi struct {
	svc      *quiz.Service
	users    *user.Service
	media    core.MediaStorage
	importer QuestionsImporter
	validate *validator.Validate
}

func registerQuizAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := quizApi{
		svc:      deps.QuizSvc,
		users:    deps.UserSvc,
		media:    deps.Media,
		importer: deps.QuestionsImporter,
		validate: deps.Validate,
	}

	lg := g.Group("/lessons/:id/quiz", jwt, activeUserMiddleware(deps.UserSvc))
	lg.GET("", api.start)
	lg.GET("/current", api.resume)
	lg.POST("", api.submit)
	lg.GET("/attempts", api.attempts)

	g.POST("/attempts/:id/finish", api.finish, jwt, activeUserMiddleware(deps.UserSvc))

	// back office
	ag := g.Group("/admin", jwt, staffMiddleware())
	ag.GET("/lessons/:id/quiz", api.detail)
	ag.PUT("/lessons/:id/quiz", api.save)
	ag.DELETE("/lessons/:id/quiz", api.destroy)
	ag.POST("/lessons/:id/quiz/questions", api.createQuestion)
	ag.POST("/lessons/:id/quiz/import", api.importQuestions)
	ag.GET("/lessons/:id/quiz/attempts", api.lessonAttempts)
	ag.PUT("/questions/:id", api.updateQuestion)
	ag.DELETE("/questions/:id", api.destroyQuestion)
}

func (api *quizApi) start(ctx echo.Context) error {
	lessonID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sess, err := api.svc.Start(ctx.Request().Context(), claims.Subject, lessonID)
	if err != nil {
		return errors.Wrap(err, "starting quiz")
	}
	return ctx.JSON(http.StatusOK, sess)
}

// resume re-renders the running selection, e.g. after a failed submission.
// The IDs the client still holds may be posted back as `question_ids`.
func (api *quizApi) resume(ctx echo.Context) error {
	lessonID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	postedIDs := ParseIDs(ctx.QueryParam("question_ids"))
	sess, err := api.svc.Resume(ctx.Request().Context(), claims.Subject, lessonID, postedIDs)
	if err != nil {
		return errors.Wrap(err, "resuming quiz")
	}
	return ctx.JSON(http.StatusOK, sess)
}

// SubmitRequest is the JSON body of a quiz submission.
// Answers map question IDs to a choice ID, a list of choice IDs or a text.
type SubmitRequest struct {
	QuestionIDs []int64         `json:"question_ids"`
	Answers     json.RawMessage `json:"answers"`
}

func (api *quizApi) submit(ctx echo.Context) error {
	lessonID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data SubmitRequest
	if isJSONRequest(ctx) {
		if err = ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to SubmitRequest")
		}
	} else if data, err = submitFromForm(ctx); err != nil {
		return err
	}

	attempt, err := api.svc.Submit(ctx.Request().Context(), claims.Subject, lessonID, data.QuestionIDs, data.Answers)
	if err != nil {
		return errors.Wrap(err, "submitting quiz")
	}
	return ctx.JSON(http.StatusCreated, attempt)
}

// submitFromForm reads `question_ids` (comma separated) and either an `answers` JSON document
// or one `q_<id>` field per question.
func submitFromForm(ctx echo.Context) (SubmitRequest, error) {
	data := SubmitRequest{QuestionIDs: ParseIDs(ctx.FormValue("question_ids"))}
	if raw := strings.TrimSpace(ctx.FormValue("answers")); raw != "" {
		data.Answers = json.RawMessage(raw)
		return data, nil
	}

	params, err := ctx.FormParams()
	if err != nil {
		return data, errors.Wrap(err, "parsing form")
	}
	answers := make(map[string]interface{})
	for field, vals := range params {
		if !strings.HasPrefix(field, answerFieldPrefix) || len(vals) == 0 {
			continue
		}
		qid := strings.TrimPrefix(field, answerFieldPrefix)
		if _, err := strconv.ParseInt(qid, 10, 64); err != nil {
			continue
		}
		answers[qid] = formAnswer(vals)
	}
	if len(answers) == 0 {
		return data, nil
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return data, errors.Wrap(err, "encoding answers")
	}
	data.Answers = raw
	return data, nil
}

// formAnswer turns checkbox values into a list of IDs, a radio value into an ID, anything else into a text.
func formAnswer(vals []string) interface{} {
	ids := make([]int64, 0, len(vals))
	for _, v := range vals {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return vals[0]
		}
		ids = append(ids, id)
	}
	if len(ids) == 1 {
		return ids[0]
	}
	return ids
}

func (api *quizApi) attempts(ctx echo.Context) error {
	lessonID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	attempts, err := api.svc.QueryAttempts(ctx.Request().Context(), quiz.AttemptFilter{
		UserID:   claims.Subject,
		LessonID: lessonID,
	})
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	if attempts == nil {
		attempts = []quiz.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

// finish is allowed to the attempt owner and to staff.
func (api *quizApi) finish(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	attempt, err := api.svc.GetAttempt(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting attempt")
	}
	ctxUsr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if attempt.UserID != ctxUsr.ID && !ctxUsr.IsStaff() {
		return errHttpNotFound
	}

	if attempt, err = api.svc.Finish(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "finishing attempt")
	}
	return ctx.JSON(http.StatusOK, attempt)
}

// Back office

type QuizDetailResponse struct {
	Quiz      quiz.Quiz       `json:"quiz"`
	Questions []quiz.Question `json:"questions"`
}

func (api *quizApi) detail(ctx echo.Context) error {
	lessonID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	qz, questions, err := api.svc.Detail(ctx.Request().Context(), lessonID)
	if err != nil {
		return errors.Wrap(err, "getting quiz detail")
	}
	if questions == nil {
		questions = []quiz.Question{}
	}
	return ctx.JSON(http.StatusOK, QuizDetailResponse{Quiz: qz, Questions: questions})
}

func (api *quizApi) save(ctx echo.Context) error {
	lessonID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data quiz.QuizInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizInput")
	}
	qz, err := api.svc.Save(ctx.Request().Context(), api.validate, lessonID, data)
	if err != nil {
		return errors.Wrap(err, "saving quiz")
	}
	return ctx.JSON(http.StatusOK, qz)
}

func (api *quizApi) destroy(ctx echo.Context) error {
	lessonID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), lessonID); err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *quizApi) bindQuestion(ctx echo.Context) (quiz.QuestionInput, error) {
	var data quiz.QuestionInput
	if err := bindDocument(ctx, &data); err != nil {
		return data, errors.Wrap(err, "binding to QuestionInput")
	}
	var err error
	if data.Image, err = saveUpload(ctx, api.media, "questions", "image"); err != nil {
		return data, errors.Wrap(err, "saving image")
	}
	return data, nil
}

func (api *quizApi) createQuestion(ctx echo.Context) error {
	lessonID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	data, err := api.bindQuestion(ctx)
	if err != nil {
		return err
	}
	q, err := api.svc.CreateQuestion(ctx.Request().Context(), api.validate, lessonID, data)
	if err != nil {
		api.discard(ctx, data.Image)
		return errors.Wrap(err, "creating question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *quizApi) updateQuestion(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	data, err := api.bindQuestion(ctx)
	if err != nil {
		return err
	}
	q, err := api.svc.UpdateQuestion(ctx.Request().Context(), api.validate, id, data)
	if err != nil {
		api.discard(ctx, data.Image)
		return errors.Wrap(err, "updating question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *quizApi) destroyQuestion(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteQuestion(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting question")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// importQuestions replaces the quiz questions with the ones of the uploaded `file` sheet.
func (api *quizApi) importQuestions(ctx echo.Context) error {
	if api.importer == nil {
		return errHttpNotFound
	}
	lessonID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	up := formUpload(ctx, "file")
	if up == nil {
		return core.NewFieldError("file", "this field is required")
	}
	rc, err := up.Open()
	if err != nil {
		return core.NewFieldError("file", "unreadable file")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer rc.Close()

	inputs, err := api.importer.ParseQuestions(rc)
	if err != nil {
		return errors.Wrap(err, "parsing question sheet")
	}
	qz, questions, err := api.svc.ImportQuestions(ctx.Request().Context(), api.validate, lessonID, inputs)
	if err != nil {
		return errors.Wrap(err, "importing questions")
	}
	return ctx.JSON(http.StatusOK, QuizDetailResponse{Quiz: qz, Questions: questions})
}

func (api *quizApi) lessonAttempts(ctx echo.Context) error {
	lessonID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var filter quiz.AttemptFilter
	_ = ctx.Bind(&filter)
	filter.LessonID = lessonID
	attempts, err := api.svc.QueryAttempts(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	if attempts == nil {
		attempts = []quiz.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func (api *quizApi) discard(ctx echo.Context, path string) {
	if path != "" {
		_ = api.media.Delete(ctx.Request().Context(), path)
	}
}
