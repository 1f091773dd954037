package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/catalog"
	"github.com/trezcool/darslik/core/testimonial"
)

// home page sizes
const (
	homeCategories   = 4
	homeCourses      = 6
	homeInstructors  = 4
	homeTestimonials = 8
)

type catalogApi struct {
	svc          *catalog.Service
	testimonials *testimonial.Service
	media        core.MediaStorage
	validate     *validator.Validate
}

func registerCatalogAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := catalogApi{
		svc:          deps.CatalogSvc,
		testimonials: deps.TestimonialSvc,
		media:        deps.Media,
		validate:     deps.Validate,
	}

	g.GET("/home", api.home)
	g.GET("/categories", api.categories)

	cg := g.Group("/courses")
	cg.GET("", api.courses)
	cg.GET("/:slug", api.courseDetail)
	cg.POST("/:slug/enroll", api.enroll)
	cg.GET("/:slug/learn", api.learn)

	// back office
	ag := g.Group("/admin", jwt, staffMiddleware())
	ag.POST("/categories", api.createCategory)
	ag.PUT("/categories/:id", api.updateCategory)
	ag.DELETE("/categories/:id", api.destroyCategory)
	ag.GET("/instructors", api.instructors)
	ag.POST("/instructors", api.createInstructor)
	ag.PUT("/instructors/:id", api.updateInstructor)
	ag.DELETE("/instructors/:id", api.destroyInstructor)
	ag.POST("/courses", api.createCourse)
	ag.PUT("/courses/:id", api.updateCourse)
	ag.DELETE("/courses/:id", api.destroyCourse)
	ag.POST("/courses/:id/sections", api.createSection)
	ag.PUT("/sections/:id", api.updateSection)
	ag.DELETE("/sections/:id", api.destroySection)
	ag.POST("/sections/:id/lessons", api.createLesson)
	ag.PUT("/lessons/:id", api.updateLesson)
	ag.DELETE("/lessons/:id", api.destroyLesson)
	ag.POST("/lessons/:id/convert", api.convertLesson)
	ag.POST("/slides", api.createSlide)
	ag.DELETE("/slides/:id", api.destroySlide)
}

type HomeResponse struct {
	Slides       []catalog.HomepageSlide   `json:"slides"`
	Categories   []catalog.Category        `json:"categories"`
	Courses      []catalog.Course          `json:"courses"`
	Instructors  []catalog.Instructor      `json:"instructors"`
	Testimonials []testimonial.Testimonial `json:"testimonials"`
}

func (api *catalogApi) home(ctx echo.Context) error {
	c := ctx.Request().Context()
	var (
		resp HomeResponse
		err  error
	)
	if resp.Slides, err = api.svc.Slides(c); err != nil {
		return errors.Wrap(err, "querying slides")
	}
	if resp.Categories, err = api.svc.TopCategories(c, homeCategories); err != nil {
		return errors.Wrap(err, "querying top categories")
	}
	if resp.Courses, err = api.svc.FeaturedCourses(c, homeCourses); err != nil {
		return errors.Wrap(err, "querying featured courses")
	}
	if resp.Instructors, err = api.svc.Instructors(c, homeInstructors); err != nil {
		return errors.Wrap(err, "querying instructors")
	}
	if resp.Testimonials, err = api.testimonials.ListPublished(c, homeTestimonials); err != nil {
		return errors.Wrap(err, "querying testimonials")
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *catalogApi) categories(ctx echo.Context) error {
	cats, err := api.svc.Categories(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying categories")
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *catalogApi) courses(ctx echo.Context) error {
	var filter catalog.CourseFilter
	if err := ctx.Bind(&filter); err != nil {
		filter = catalog.CourseFilter{} // malformed params: first page
	}
	page, err := api.svc.ListCourses(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	return ctx.JSON(http.StatusOK, page)
}

type CourseDetailResponse struct {
	Course  catalog.Course   `json:"course"`
	Related []catalog.Course `json:"related"`
}

func (api *catalogApi) courseDetail(ctx echo.Context) error {
	course, related, err := api.svc.CourseDetail(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting course detail")
	}
	return ctx.JSON(http.StatusOK, CourseDetailResponse{Course: course, Related: related})
}

type EnrollResponse struct {
	Course  catalog.Course `json:"course"`
	Message string         `json:"message"`
}

// enroll confirms the enrolment request; nothing is stored.
func (api *catalogApi) enroll(ctx echo.Context) error {
	course, err := api.svc.GetCourse(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, EnrollResponse{
		Course:  course,
		Message: "Your enrolment request has been received. We will contact you shortly.",
	})
}

func (api *catalogApi) learn(ctx echo.Context) error {
	siteURL := ctx.Scheme() + "://" + ctx.Request().Host
	view, err := api.svc.Learn(ctx.Request().Context(), ctx.Param("slug"), ctx.QueryParam("l"), siteURL)
	if err != nil {
		return errors.Wrap(err, "building course player")
	}
	return ctx.JSON(http.StatusOK, view)
}

// Back office
//
// Create/update endpoints take a JSON body, or a multipart form holding the JSON document
// in its `data` field along with the files.

func bindDocument(ctx echo.Context, i interface{}) error {
	return bindJSONOrForm(ctx, i, func(get func(string) string) error {
		return jsonField(get, "data", i)
	})
}

func (api *catalogApi) createCategory(ctx echo.Context) error {
	var data catalog.NewCategory
	if err := bindDocument(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	var err error
	if data.Image, err = saveUpload(ctx, api.media, "categories", "image"); err != nil {
		return errors.Wrap(err, "saving image")
	}
	cat, err := api.svc.CreateCategory(ctx.Request().Context(), api.validate, data)
	if err != nil {
		api.discard(ctx, data.Image)
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *catalogApi) updateCategory(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data catalog.NewCategory
	if err = bindDocument(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	if data.Image, err = saveUpload(ctx, api.media, "categories", "image"); err != nil {
		return errors.Wrap(err, "saving image")
	}
	cat, err := api.svc.UpdateCategory(ctx.Request().Context(), api.validate, id, data)
	if err != nil {
		api.discard(ctx, data.Image)
		return errors.Wrap(err, "updating category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *catalogApi) destroyCategory(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCategory(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting category")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catalogApi) instructors(ctx echo.Context) error {
	ins, err := api.svc.Instructors(ctx.Request().Context(), 0)
	if err != nil {
		return errors.Wrap(err, "querying instructors")
	}
	return ctx.JSON(http.StatusOK, ins)
}

func (api *catalogApi) createInstructor(ctx echo.Context) error {
	var data catalog.NewInstructor
	if err := bindDocument(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewInstructor")
	}
	var err error
	if data.Photo, err = saveUpload(ctx, api.media, "instructors", "photo"); err != nil {
		return errors.Wrap(err, "saving photo")
	}
	ins, err := api.svc.CreateInstructor(ctx.Request().Context(), api.validate, data)
	if err != nil {
		api.discard(ctx, data.Photo)
		return errors.Wrap(err, "creating instructor")
	}
	return ctx.JSON(http.StatusCreated, ins)
}

func (api *catalogApi) updateInstructor(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data catalog.NewInstructor
	if err = bindDocument(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewInstructor")
	}
	if data.Photo, err = saveUpload(ctx, api.media, "instructors", "photo"); err != nil {
		return errors.Wrap(err, "saving photo")
	}
	ins, err := api.svc.UpdateInstructor(ctx.Request().Context(), api.validate, id, data)
	if err != nil {
		api.discard(ctx, data.Photo)
		return errors.Wrap(err, "updating instructor")
	}
	return ctx.JSON(http.StatusOK, ins)
}

func (api *catalogApi) destroyInstructor(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteInstructor(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting instructor")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catalogApi) createCourse(ctx echo.Context) error {
	var data catalog.CourseInput
	if err := bindDocument(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to CourseInput")
	}
	var err error
	if data.Image, err = saveUpload(ctx, api.media, "courses", "image"); err != nil {
		return errors.Wrap(err, "saving image")
	}
	course, err := api.svc.CreateCourse(ctx.Request().Context(), api.validate, data)
	if err != nil {
		api.discard(ctx, data.Image)
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, course)
}

func (api *catalogApi) updateCourse(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data catalog.CourseInput
	if err = bindDocument(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to CourseInput")
	}
	if data.Image, err = saveUpload(ctx, api.media, "courses", "image"); err != nil {
		return errors.Wrap(err, "saving image")
	}
	course, err := api.svc.UpdateCourse(ctx.Request().Context(), api.validate, id, data)
	if err != nil {
		api.discard(ctx, data.Image)
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, course)
}

func (api *catalogApi) destroyCourse(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCourse(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catalogApi) createSection(ctx echo.Context) error {
	courseID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data catalog.SectionInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SectionInput")
	}
	sec, err := api.svc.CreateSection(ctx.Request().Context(), api.validate, courseID, data)
	if err != nil {
		return errors.Wrap(err, "creating section")
	}
	return ctx.JSON(http.StatusCreated, sec)
}

func (api *catalogApi) updateSection(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data catalog.SectionInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SectionInput")
	}
	sec, err := api.svc.UpdateSection(ctx.Request().Context(), api.validate, id, data)
	if err != nil {
		return errors.Wrap(err, "updating section")
	}
	return ctx.JSON(http.StatusOK, sec)
}

func (api *catalogApi) destroySection(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSection(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting section")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// bindLesson binds the lesson document and stores its `video_file` and `document_file` uploads.
func (api *catalogApi) bindLesson(ctx echo.Context) (catalog.LessonInput, error) {
	var data catalog.LessonInput
	if err := bindDocument(ctx, &data); err != nil {
		return data, errors.Wrap(err, "binding to LessonInput")
	}
	var err error
	if data.VideoFile, err = saveUpload(ctx, api.media, "lessons/videos", "video_file"); err != nil {
		return data, errors.Wrap(err, "saving video")
	}
	if data.DocumentFile, err = saveUpload(ctx, api.media, "lessons/docs", "document_file"); err != nil {
		api.discard(ctx, data.VideoFile)
		return data, errors.Wrap(err, "saving document")
	}
	return data, nil
}

func (api *catalogApi) createLesson(ctx echo.Context) error {
	sectionID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	data, err := api.bindLesson(ctx)
	if err != nil {
		return err
	}
	lesson, err := api.svc.CreateLesson(ctx.Request().Context(), api.validate, sectionID, data)
	if err != nil {
		api.discard(ctx, data.VideoFile, data.DocumentFile)
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, lesson)
}

func (api *catalogApi) updateLesson(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	data, err := api.bindLesson(ctx)
	if err != nil {
		return err
	}
	lesson, err := api.svc.UpdateLesson(ctx.Request().Context(), api.validate, id, data)
	if err != nil {
		api.discard(ctx, data.VideoFile, data.DocumentFile)
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, lesson)
}

func (api *catalogApi) destroyLesson(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteLesson(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// convertLesson re-runs the PDF conversion of a DOC/DOCX lesson; it is a no-op for other kinds.
func (api *catalogApi) convertLesson(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	lesson, err := api.svc.ConvertDocLesson(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "converting lesson")
	}
	return ctx.JSON(http.StatusOK, lesson)
}

func (api *catalogApi) createSlide(ctx echo.Context) error {
	var data catalog.NewSlide
	if err := bindDocument(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewSlide")
	}
	var err error
	if data.Image, err = saveUpload(ctx, api.media, "slides", "image"); err != nil {
		return errors.Wrap(err, "saving image")
	}
	slide, err := api.svc.CreateSlide(ctx.Request().Context(), api.validate, data)
	if err != nil {
		api.discard(ctx, data.Image)
		return errors.Wrap(err, "creating slide")
	}
	return ctx.JSON(http.StatusCreated, slide)
}

func (api *catalogApi) destroySlide(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSlide(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting slide")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catalogApi) discard(ctx echo.Context, paths ...string) {
	var nonEmpty []string
	for _, p := range paths {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) > 0 {
		_ = api.media.Delete(ctx.Request().Context(), nonEmpty...)
	}
}
