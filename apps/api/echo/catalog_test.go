package echoapi_test

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/darslik/apps/api/echo"
	"github.com/trezcool/darslik/core/catalog"
	"github.com/trezcool/darslik/core/testimonial"
	testutil "github.com/trezcool/darslik/tests"
)

func Test_catalogApi_public(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	cat, err := app.catRepo.CreateCategory(ctx, catalog.Category{Name: "Design", Slug: "design"})
	require.NoError(t, err)
	course, lessons := testutil.CreateCourse(t, app.catRepo, "Colour Theory", catalog.KindVideo, catalog.KindPDF)
	course.CategoryID = cat.ID
	course.IsFeatured = true
	course, err = app.catRepo.UpdateCourse(ctx, course)
	require.NoError(t, err)
	testutil.CreateCourse(t, app.catRepo, "Typography")
	_, err = app.tstRepo.CreateTestimonial(ctx, testimonial.Testimonial{FullName: "Aziza", Quote: "Great!", Rating: 5, IsPublished: true})
	require.NoError(t, err)

	t.Run("home", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/home")
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.HomeResponse
		unmarshall(t, rec, &resp)
		require.Len(t, resp.Courses, 2) // padded with the newest courses
		assert.Equal(t, course.ID, resp.Courses[0].ID)
		require.Len(t, resp.Categories, 1)
		assert.Equal(t, 1, resp.Categories[0].CourseCount)
		require.Len(t, resp.Testimonials, 1)
		assert.Equal(t, "Aziza", resp.Testimonials[0].FullName)
	})

	t.Run("courses", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses?q=colour")
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var page catalog.CoursePage
		unmarshall(t, rec, &page)
		require.Len(t, page.Courses, 1)
		assert.Equal(t, "colour-theory", page.Courses[0].Slug)
	})

	t.Run("malformed page param is the first page", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses?page=lol")
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var page catalog.CoursePage
		unmarshall(t, rec, &page)
		assert.Len(t, page.Courses, 2)
	})

	app.run(t, []httpTest{
		{name: "unknown course", path: "/v1/courses/lol", wantCode: http.StatusNotFound},
		{name: "unknown course player", path: "/v1/courses/lol/learn", wantCode: http.StatusNotFound},
	})

	t.Run("detail", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses/colour-theory")
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.CourseDetailResponse
		unmarshall(t, rec, &resp)
		assert.Equal(t, course.ID, resp.Course.ID)
		require.NotNil(t, resp.Course.Category)
		assert.Equal(t, "design", resp.Course.Category.Slug)
	})

	t.Run("enroll", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/courses/colour-theory/enroll")
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.EnrollResponse
		unmarshall(t, rec, &resp)
		assert.Equal(t, course.ID, resp.Course.ID)
		assert.NotEmpty(t, resp.Message)
	})

	t.Run("learn", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses/colour-theory/learn")
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var view catalog.LearnView
		unmarshall(t, rec, &view)
		require.NotNil(t, view.Lesson)
		assert.Equal(t, lessons[0].ID, view.Lesson.ID)
		assert.Nil(t, view.PrevLesson)
		require.NotNil(t, view.NextLesson)
		assert.Contains(t, view.VideoEmbedURL, "/embed/dQw4w9WgXcQ")

		path := "/v1/courses/colour-theory/learn?l=" + strconv.FormatInt(lessons[1].ID, 10)
		req, rec = newRequest(http.MethodGet, path)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		view = catalog.LearnView{}
		unmarshall(t, rec, &view)
		require.NotNil(t, view.Lesson)
		assert.Equal(t, lessons[1].ID, view.Lesson.ID)
		assert.Equal(t, "http://example.com/media/lessons/docs/handout.pdf", view.PDFEmbedURL)
	})
}

func Test_catalogApi_admin(t *testing.T) {
	app := newTestApp(t)
	_, staffToken := app.staff(t)
	_, heroToken := app.learner(t, "hero")

	app.run(t, []httpTest{
		{
			name: "auth required", method: http.MethodPost, path: "/v1/admin/categories",
			wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken),
		},
		{
			name: "staff required", method: http.MethodPost, path: "/v1/admin/categories", token: heroToken,
			wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden),
		},
		{
			name: "category: required fields", method: http.MethodPost, path: "/v1/admin/categories", token: staffToken,
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"name": "this field is required"}),
		},
		{
			name: "course: bad id", method: http.MethodPut, path: "/v1/admin/courses/lol", token: staffToken,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, errNotFound),
		},
	})

	var cat catalog.Category
	t.Run("category with image", func(t *testing.T) {
		req := newMultipartRequest(t, http.MethodPost, "/v1/admin/categories", staffToken,
			map[string][]string{"data": {`{"name": "Web Development"}`}},
			formFile{field: "image", filename: "web.png", data: testutil.PNG(t, 10, 10)},
		)
		rec := app.do(req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshall(t, rec, &cat)
		assert.Equal(t, "web-development", cat.Slug)
		assert.True(t, strings.HasPrefix(cat.Image, "categories/"), cat.Image)
	})

	t.Run("duplicate slug", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/categories", staffToken, []byte(`{"name": "Web development"}`))
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("category update keeps image", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, idPath("/v1/admin/categories/%d", cat.ID), staffToken, []byte(`{"name": "Web"}`))
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated catalog.Category
		unmarshall(t, rec, &updated)
		assert.Equal(t, "web", updated.Slug)
		assert.Equal(t, cat.Image, updated.Image)
		cat = updated
	})

	t.Run("instructor update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/instructors", staffToken, []byte(`{"full_name": "Aziz Rahimov"}`))
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var ins catalog.Instructor
		unmarshall(t, rec, &ins)

		req, rec = newAuthRequest(http.MethodPut, idPath("/v1/admin/instructors/%d", ins.ID), staffToken,
			[]byte(`{"full_name": "Aziz Rahimov", "title": "Gopher"}`))
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &ins)
		assert.Equal(t, "Gopher", ins.Title)

		req, rec = newAuthRequest(http.MethodPut, "/v1/admin/instructors/9999", staffToken, []byte(`{"full_name": "Nobody"}`))
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})

	var course catalog.Course
	t.Run("course", func(t *testing.T) {
		body := marshallObj(t, catalog.CourseInput{CategoryID: cat.ID, Title: "Go for beginners", Price: 10, Rating: 4.5})
		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/courses", staffToken, body)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshall(t, rec, &course)
		assert.Equal(t, "go-for-beginners", course.Slug)

		body = marshallObj(t, catalog.CourseInput{CategoryID: cat.ID, Title: "Go for beginners", Slug: "go-101", IsFeatured: true})
		req, rec = newAuthRequest(http.MethodPut, idPath("/v1/admin/courses/%d", course.ID), staffToken, body)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &course)
		assert.Equal(t, "go-101", course.Slug)
		assert.True(t, course.IsFeatured)
	})

	var sec catalog.Section
	t.Run("section", func(t *testing.T) {
		body := marshallObj(t, catalog.SectionInput{Title: "Basics", Order: 1})
		req, rec := newAuthRequest(http.MethodPost, idPath("/v1/admin/courses/%d/sections", course.ID), staffToken, body)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshall(t, rec, &sec)
		assert.Equal(t, course.ID, sec.CourseID)

		// same order in the same course
		req, rec = newAuthRequest(http.MethodPost, idPath("/v1/admin/courses/%d/sections", course.ID), staffToken, body)
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("lessons", func(t *testing.T) {
		body := marshallObj(t, catalog.LessonInput{Kind: catalog.KindText, Title: "Hello", Order: 1})
		req, rec := newAuthRequest(http.MethodPost, idPath("/v1/admin/sections/%d/lessons", sec.ID), staffToken, body)
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "text lessons need a text: %s", rec.Body.String())

		req = newMultipartRequest(t, http.MethodPost, idPath("/v1/admin/sections/%d/lessons", sec.ID), staffToken,
			map[string][]string{"data": {`{"kind": "pdf", "title": "Handout", "order": 2}`}},
			formFile{field: "document_file", filename: "handout.pdf", data: []byte("%PDF-1.4")},
		)
		rec = app.do(req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var lesson catalog.Lesson
		unmarshall(t, rec, &lesson)
		assert.True(t, strings.HasPrefix(lesson.DocumentFile, "lessons/docs/"), lesson.DocumentFile)

		// not a doc lesson: conversion is a no-op
		req, rec = newAuthRequest(http.MethodPost, idPath("/v1/admin/lessons/%d/convert", lesson.ID), staffToken)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodDelete, idPath("/v1/admin/lessons/%d", lesson.ID), staffToken)
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		_, err := app.catRepo.GetLesson(context.Background(), lesson.ID)
		assert.Equal(t, catalog.ErrNotFound, err)
	})

	t.Run("slide", func(t *testing.T) {
		req := newMultipartRequest(t, http.MethodPost, "/v1/admin/slides", staffToken,
			map[string][]string{"data": {`{"title": "Learn anything", "order": 1}`}},
			formFile{field: "image", filename: "slide.png", data: testutil.PNG(t, 20, 10)},
		)
		rec := app.do(req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		req, rec = newRequest(http.MethodGet, "/v1/home")
		app.srv.ServeHTTP(rec, req)
		var resp echoapi.HomeResponse
		unmarshall(t, rec, &resp)
		require.Len(t, resp.Slides, 1)
		assert.Equal(t, "Learn anything", resp.Slides[0].Title)

		req, rec = newAuthRequest(http.MethodDelete, idPath("/v1/admin/slides/%d", resp.Slides[0].ID), staffToken)
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newRequest(http.MethodGet, "/v1/home")
		app.srv.ServeHTTP(rec, req)
		resp = echoapi.HomeResponse{}
		unmarshall(t, rec, &resp)
		assert.Empty(t, resp.Slides)
	})

	t.Run("delete course", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, idPath("/v1/admin/courses/%d", course.ID), staffToken)
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newRequest(http.MethodGet, "/v1/courses/go-101")
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
