package echoapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/torrens"
	"github.com/trezcool/darslik/core/user"
)

type torrensApi struct {
	svc      *torrens.Service
	users    *user.Service
	validate *validator.Validate
}

func registerTorrensAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := torrensApi{
		svc:      deps.TorrensSvc,
		users:    deps.UserSvc,
		validate: deps.Validate,
	}

	tg := g.Group("/torrens")
	tg.GET("", api.list)
	tg.GET("/:slug", api.retrieve)

	// learners
	lg := tg.Group("/:slug/take", jwt, activeUserMiddleware(deps.UserSvc))
	lg.GET("", api.openDraft)
	lg.POST("", api.saveAnswers)

	// back office; not a sub group, its catch-all routes would shadow the public list
	staff := []echo.MiddlewareFunc{jwt, staffMiddleware()}
	tg.POST("", api.create, staff...)
	tg.GET("/:slug/submissions", api.submissions, staff...)
	tg.GET("/:slug/grade/:id", api.submission, staff...)
	tg.POST("/:slug/grade/:id", api.grade, staff...)
	tg.POST("/:slug/tasks/:id/images", api.addTaskImages, staff...)

	ag := g.Group("/admin", jwt, staffMiddleware())
	ag.GET("/torrens", api.listAll)
	ag.DELETE("/torrens/:id", api.destroy)
}

func (api *torrensApi) list(ctx echo.Context) error {
	tests, err := api.svc.ListTests(ctx.Request().Context(), true /* publishedOnly */)
	if err != nil {
		return errors.Wrap(err, "listing tests")
	}
	if tests == nil {
		tests = []torrens.Test{}
	}
	return ctx.JSON(http.StatusOK, tests)
}

func (api *torrensApi) listAll(ctx echo.Context) error {
	tests, err := api.svc.ListTests(ctx.Request().Context(), false)
	if err != nil {
		return errors.Wrap(err, "listing tests")
	}
	if tests == nil {
		tests = []torrens.Test{}
	}
	return ctx.JSON(http.StatusOK, tests)
}

func (api *torrensApi) retrieve(ctx echo.Context) error {
	test, err := api.svc.GetPublishedTest(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting test")
	}
	return ctx.JSON(http.StatusOK, test)
}

type DraftResponse struct {
	Test       torrens.Test       `json:"test"`
	Submission torrens.Submission `json:"submission"`
}

func (api *torrensApi) openDraft(ctx echo.Context) error {
	test, err := api.svc.GetPublishedTest(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting test")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sub, err := api.svc.OpenDraft(ctx.Request().Context(), test, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "opening draft")
	}
	return ctx.JSON(http.StatusOK, DraftResponse{Test: test, Submission: sub})
}

// saveAnswers merges the posted answers into the user's draft; a truthy `finish` field finishes it.
//
// Per task fields: task_<id>_text, task_<id>_list, task_<id>_image (drawing file),
// task_<id>_fabric_png (canvas data URL) and task_<id>_images (attachments).
func (api *torrensApi) saveAnswers(ctx echo.Context) error {
	c := ctx.Request().Context()
	test, err := api.svc.GetPublishedTest(c, ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting test")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sub, err := api.svc.OpenDraft(c, test, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "opening draft")
	}

	files := formFiles(ctx)
	inputs := make(map[int64]torrens.AnswerInput, len(test.Tasks))
	for _, task := range test.Tasks {
		prefix := "task_" + strconv.FormatInt(task.ID, 10) + "_"
		in := torrens.AnswerInput{
			Text:           ctx.FormValue(prefix + "text"),
			List:           ctx.FormValue(prefix + "list"),
			DrawingDataURL: ctx.FormValue(prefix + "fabric_png"),
			Images:         formUploads(files, prefix+"images"),
		}
		if ups := formUploads(files, prefix+"image"); len(ups) > 0 {
			in.Drawing = &ups[0]
		}
		inputs[task.ID] = in
	}
	res, err := api.svc.SaveAnswers(c, test, sub, inputs, formFlag(ctx, "finish"))
	if err != nil {
		return errors.Wrap(err, "saving answers")
	}
	if res.Notices == nil {
		res.Notices = []string{}
	}
	return ctx.JSON(http.StatusOK, res)
}

// Back office

func (api *torrensApi) create(ctx echo.Context) error {
	var data torrens.NewTest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTest")
	}
	test, err := api.svc.CreateTest(ctx.Request().Context(), api.validate, data)
	if err != nil {
		return errors.Wrap(err, "creating test")
	}
	return ctx.JSON(http.StatusCreated, test)
}

func (api *torrensApi) destroy(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTest(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting test")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// addTaskImages attaches the `images` files, captioned with `caption`, to a task of the test.
func (api *torrensApi) addTaskImages(ctx echo.Context) error {
	test, err := api.svc.GetTest(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting test")
	}
	taskID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	ups := formUploads(formFiles(ctx), "images")
	if len(ups) == 0 {
		return core.NewFieldError("images", "this field is required")
	}
	imgs, err := api.svc.AddTaskImages(ctx.Request().Context(), test, taskID, ups, ctx.FormValue("caption"))
	if err != nil {
		return errors.Wrap(err, "adding task images")
	}
	return ctx.JSON(http.StatusCreated, imgs)
}

func (api *torrensApi) submissions(ctx echo.Context) error {
	test, err := api.svc.GetTest(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting test")
	}
	var filter torrens.SubmissionFilter
	_ = ctx.Bind(&filter)
	filter.TestID = test.ID

	subs, err := api.svc.QuerySubmissions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []torrens.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

type SubmissionResponse struct {
	Test       torrens.Test       `json:"test"`
	Submission torrens.Submission `json:"submission"`
	User       user.User          `json:"user"`
}

func (api *torrensApi) loadSubmission(ctx echo.Context) (torrens.Test, torrens.Submission, error) {
	test, err := api.svc.GetTest(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return test, torrens.Submission{}, errors.Wrap(err, "getting test")
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return test, torrens.Submission{}, err
	}
	sub, err := api.svc.GetSubmission(ctx.Request().Context(), test, id)
	if err != nil {
		return test, sub, errors.Wrap(err, "getting submission")
	}
	return test, sub, nil
}

func (api *torrensApi) submission(ctx echo.Context) error {
	test, sub, err := api.loadSubmission(ctx)
	if err != nil {
		return err
	}
	usr, err := api.users.GetByID(ctx.Request().Context(), sub.UserID)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return errors.Wrap(err, "getting submission user")
	}
	return ctx.JSON(http.StatusOK, SubmissionResponse{Test: test, Submission: sub, User: usr})
}

// GradeRequest maps answer IDs to scores and notes. Forms post them as score_<id> and note_<id>.
type GradeRequest struct {
	Scores map[int64]Score  `json:"scores"`
	Notes  map[int64]string `json:"notes"`
}

// Score is a posted score, either a JSON number or a string. Anything else reads as blank, which grades as zero.
type Score string

func (s *Score) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = Score(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err == nil {
		*s = Score(num)
		return nil
	}
	*s = ""
	return nil
}

func (r GradeRequest) scores() map[int64]string {
	scores := make(map[int64]string, len(r.Scores))
	for id, s := range r.Scores {
		scores[id] = string(s)
	}
	return scores
}

func (api *torrensApi) grade(ctx echo.Context) error {
	_, sub, err := api.loadSubmission(ctx)
	if err != nil {
		return err
	}

	var data GradeRequest
	if isJSONRequest(ctx) {
		if err = ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to GradeRequest")
		}
	} else if data, err = gradeFromForm(ctx); err != nil {
		return err
	}

	sub, err = api.svc.Grade(ctx.Request().Context(), sub, data.scores(), data.Notes)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func gradeFromForm(ctx echo.Context) (GradeRequest, error) {
	data := GradeRequest{Scores: map[int64]Score{}, Notes: map[int64]string{}}
	params, err := ctx.FormParams()
	if err != nil {
		return data, errors.Wrap(err, "parsing form")
	}
	for field, vals := range params {
		if len(vals) == 0 {
			continue
		}
		switch {
		case strings.HasPrefix(field, "score_"):
			if id, err := strconv.ParseInt(strings.TrimPrefix(field, "score_"), 10, 64); err == nil {
				data.Scores[id] = Score(vals[0])
			}
		case strings.HasPrefix(field, "note_"):
			if id, err := strconv.ParseInt(strings.TrimPrefix(field, "note_"), 10, 64); err == nil {
				data.Notes[id] = vals[0]
			}
		}
	}
	return data, nil
}
