package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
)

const CoursesPerPage = 9

var (
	// errors
	ErrNotFound    = errors.New("not found")
	ErrSlugExists  = errors.New("this slug is already taken")
	ErrOrderExists = errors.New("this order is already taken")

	courseOrderings = map[string]core.DBOrdering{
		"created_at":  {Field: "created_at", Ascending: true},
		"-created_at": {Field: "created_at", Ascending: false},
		"price":       {Field: "price", Ascending: true},
		"-price":      {Field: "price", Ascending: false},
		"rating":      {Field: "rating", Ascending: true},
		"-rating":     {Field: "rating", Ascending: false},
		"title":       {Field: "title", Ascending: true},
		"-title":      {Field: "title", Ascending: false},
	}
	defaultCourseOrder = "-created_at"
)

type (
	// CourseQuery is a resolved CourseFilter.
	CourseQuery struct {
		Search       string
		CategorySlug string
		Featured     *bool
		ExcludeIDs   []int64
		CategoryID   int64
		Ordering     []core.DBOrdering
		Pagination   core.Pagination // PerPage 0: no limit
	}

	Repository interface {
		CreateCategory(ctx context.Context, cat Category) (Category, error)
		UpdateCategory(ctx context.Context, cat Category) (Category, error)
		GetCategory(ctx context.Context, id int64) (Category, error)
		// QueryCategories returns categories (with their course count) ordered by name.
		QueryCategories(ctx context.Context) ([]Category, error)
		DeleteCategory(ctx context.Context, id int64) error

		CreateInstructor(ctx context.Context, ins Instructor) (Instructor, error)
		UpdateInstructor(ctx context.Context, ins Instructor) (Instructor, error)
		GetInstructor(ctx context.Context, id int64) (Instructor, error)
		// QueryInstructors returns instructors ordered by full name (limit 0: all).
		QueryInstructors(ctx context.Context, limit int) ([]Instructor, error)
		DeleteInstructor(ctx context.Context, id int64) error

		CreateCourse(ctx context.Context, course Course) (Course, error)
		UpdateCourse(ctx context.Context, course Course) (Course, error)
		GetCourseByID(ctx context.Context, id int64) (Course, error)
		GetCourseBySlug(ctx context.Context, slug string) (Course, error)
		// QueryCourses returns the requested page of courses (category & instructor loaded) and the total count.
		QueryCourses(ctx context.Context, query CourseQuery) ([]Course, int, error)
		// DeleteCourse deletes the course with its sections, lessons and their quizzes.
		DeleteCourse(ctx context.Context, id int64) error

		CreateSection(ctx context.Context, sec Section) (Section, error)
		UpdateSection(ctx context.Context, sec Section) (Section, error)
		GetSection(ctx context.Context, id int64) (Section, error)
		// QuerySections returns the course sections ordered by (order, id), each with its lessons ordered by (order, id).
		QuerySections(ctx context.Context, courseID int64) ([]Section, error)
		DeleteSection(ctx context.Context, id int64) error

		CreateLesson(ctx context.Context, lesson Lesson) (Lesson, error)
		UpdateLesson(ctx context.Context, lesson Lesson) (Lesson, error)
		GetLesson(ctx context.Context, id int64) (Lesson, error)
		QueryLessons(ctx context.Context, kind string) ([]Lesson, error)
		DeleteLesson(ctx context.Context, id int64) error

		CreateSlide(ctx context.Context, slide HomepageSlide) (HomepageSlide, error)
		// QuerySlides returns slides ordered by (order, id).
		QuerySlides(ctx context.Context, activeOnly bool) ([]HomepageSlide, error)
		DeleteSlide(ctx context.Context, id int64) error
	}

	// DocConverter converts a stored DOC/DOCX document into a PDF, returning the path of the new file.
	DocConverter interface {
		ConvertToPDF(ctx context.Context, docPath string) (string, error)
	}

	Service struct {
		repo      Repository
		media     core.MediaStorage
		converter DocConverter
		logger    core.Logger
	}
)

// NewService returns a catalog Service. converter may be nil (no conversion).
func NewService(repo Repository, media core.MediaStorage, converter DocConverter, logger core.Logger) *Service {
	return &Service{
		repo:      repo,
		media:     media,
		converter: converter,
		logger:    logger,
	}
}

// Catalog

// ListCourses searches (title or instructor name), filters by category slug, orders and paginates courses.
// Unknown orderings fall back to newest first.
func (svc *Service) ListCourses(ctx context.Context, filter CourseFilter) (CoursePage, error) {
	order := filter.Order
	ordering, ok := courseOrderings[order]
	if !ok {
		order = defaultCourseOrder
		ordering = courseOrderings[order]
	}
	query := CourseQuery{
		Search:       core.CleanString(filter.Q),
		CategorySlug: core.CleanString(filter.Category),
		Ordering:     []core.DBOrdering{ordering, {Field: "title", Ascending: true}},
		Pagination:   core.Pagination{Page: filter.Page}.Normalize(CoursesPerPage),
	}

	courses, total, err := svc.repo.QueryCourses(ctx, query)
	if err != nil {
		return CoursePage{}, errors.Wrap(err, "querying courses")
	}
	info := core.NewPageInfo(query.Pagination, total)
	if info.Page != query.Pagination.Page { // out of range: serve the last page
		query.Pagination.Page = info.Page
		if courses, _, err = svc.repo.QueryCourses(ctx, query); err != nil {
			return CoursePage{}, errors.Wrap(err, "querying courses")
		}
	}
	if courses == nil {
		courses = []Course{}
	}
	return CoursePage{Courses: courses, PageInfo: info, Order: order}, nil
}

// FeaturedCourses returns up to n featured courses, padded with the newest non featured ones.
func (svc *Service) FeaturedCourses(ctx context.Context, n int) ([]Course, error) {
	featured := true
	newest := []core.DBOrdering{courseOrderings[defaultCourseOrder], {Field: "title", Ascending: true}}
	courses, _, err := svc.repo.QueryCourses(ctx, CourseQuery{
		Featured:   &featured,
		Ordering:   newest,
		Pagination: core.Pagination{Page: 1, PerPage: n},
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying featured courses")
	}
	if len(courses) < n {
		excl := make([]int64, 0, len(courses))
		for _, c := range courses {
			excl = append(excl, c.ID)
		}
		extras, _, err := svc.repo.QueryCourses(ctx, CourseQuery{
			ExcludeIDs: excl,
			Ordering:   newest,
			Pagination: core.Pagination{Page: 1, PerPage: n - len(courses)},
		})
		if err != nil {
			return nil, errors.Wrap(err, "querying extra courses")
		}
		courses = append(courses, extras...)
	}
	return courses, nil
}

// TopCategories returns the n categories with the most courses (ties by name).
func (svc *Service) TopCategories(ctx context.Context, n int) ([]Category, error) {
	cats, err := svc.repo.QueryCategories(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying categories")
	}
	sortCategoriesByCount(cats)
	if n > 0 && len(cats) > n {
		cats = cats[:n]
	}
	return cats, nil
}

func (svc *Service) Categories(ctx context.Context) ([]Category, error) {
	return svc.repo.QueryCategories(ctx)
}

func (svc *Service) Instructors(ctx context.Context, limit int) ([]Instructor, error) {
	return svc.repo.QueryInstructors(ctx, limit)
}

func (svc *Service) Slides(ctx context.Context) ([]HomepageSlide, error) {
	return svc.repo.QuerySlides(ctx, true)
}

// CourseDetail returns the course and up to 6 other courses of the same category.
func (svc *Service) CourseDetail(ctx context.Context, slug string) (Course, []Course, error) {
	course, err := svc.repo.GetCourseBySlug(ctx, slug)
	if err != nil {
		return Course{}, nil, err
	}
	related := []Course{}
	if course.CategoryID != 0 {
		related, _, err = svc.repo.QueryCourses(ctx, CourseQuery{
			CategoryID: course.CategoryID,
			ExcludeIDs: []int64{course.ID},
			Ordering:   []core.DBOrdering{courseOrderings[defaultCourseOrder], {Field: "title", Ascending: true}},
			Pagination: core.Pagination{Page: 1, PerPage: 6},
		})
		if err != nil {
			return Course{}, nil, errors.Wrap(err, "querying related courses")
		}
	}
	return course, related, nil
}

func (svc *Service) GetCourse(ctx context.Context, slug string) (Course, error) {
	return svc.repo.GetCourseBySlug(ctx, slug)
}

func (svc *Service) GetLesson(ctx context.Context, id int64) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

// Learn

// LearnView is the course player: the course outline and the selected lesson with its neighbours.
type LearnView struct {
	Course         Course    `json:"course"`
	Sections       []Section `json:"sections"`
	Lesson         *Lesson   `json:"lesson"`
	PrevLesson     *Lesson   `json:"prev_lesson"`
	NextLesson     *Lesson   `json:"next_lesson"`
	VideoEmbedURL  string    `json:"video_embed_url,omitempty"`
	PDFEmbedURL    string    `json:"pdf_embed_url,omitempty"`
	OfficeEmbedURL string    `json:"office_embed_url,omitempty"`
}

// Learn builds the LearnView of a course. With no lessonID the first lesson is selected;
// an unknown lessonID selects nothing. siteURL makes relative media URLs absolute.
func (svc *Service) Learn(ctx context.Context, slug, lessonID, siteURL string) (LearnView, error) {
	course, err := svc.repo.GetCourseBySlug(ctx, slug)
	if err != nil {
		return LearnView{}, err
	}
	sections, err := svc.repo.QuerySections(ctx, course.ID)
	if err != nil {
		return LearnView{}, errors.Wrap(err, "querying sections")
	}
	if sections == nil {
		sections = []Section{}
	}
	view := LearnView{Course: course, Sections: sections}

	flat := FlattenLessons(sections)
	idx := -1
	if lessonID == "" {
		if len(flat) > 0 {
			idx = 0
		}
	} else {
		for i, l := range flat {
			if strconv.FormatInt(l.ID, 10) == lessonID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return view, nil
	}

	lesson := flat[idx]
	view.Lesson = &lesson
	if idx > 0 {
		view.PrevLesson = &flat[idx-1]
	}
	if idx < len(flat)-1 {
		view.NextLesson = &flat[idx+1]
	}

	switch lesson.Kind {
	case KindVideo:
		if lesson.VideoURL != "" {
			view.VideoEmbedURL = VideoEmbedURL(lesson.VideoURL)
		} else if lesson.VideoFile != "" {
			view.VideoEmbedURL = absoluteURL(siteURL, svc.media.URL(lesson.VideoFile))
		}
	case KindPDF:
		if lesson.DocumentFile != "" {
			view.PDFEmbedURL = absoluteURL(siteURL, svc.media.URL(lesson.DocumentFile))
		}
	case KindDoc:
		if lesson.DocumentFile != "" {
			view.OfficeEmbedURL = OfficeViewerURL(absoluteURL(siteURL, svc.media.URL(lesson.DocumentFile)))
		}
	}
	return view, nil
}

// FlattenLessons returns the lessons of all sections in outline order.
func FlattenLessons(sections []Section) []Lesson {
	var flat []Lesson
	for _, s := range sections {
		flat = append(flat, s.Lessons...)
	}
	return flat
}

func absoluteURL(siteURL, u string) string {
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return strings.TrimRight(siteURL, "/") + "/" + strings.TrimLeft(u, "/")
}

// Back office

func (svc *Service) CreateCategory(ctx context.Context, validate *validator.Validate, nc NewCategory) (Category, error) {
	nc.Clean()
	if err := validate.Struct(nc); err != nil {
		return Category{}, err
	}
	cat, err := svc.repo.CreateCategory(ctx, Category{Name: nc.Name, Slug: nc.Slug, Image: nc.Image})
	if err != nil {
		return Category{}, trapUniqueErr(err, "slug", "creating category")
	}
	return cat, nil
}

// UpdateCategory replaces the name and slug of a category; its image is kept when nc has none.
func (svc *Service) UpdateCategory(ctx context.Context, validate *validator.Validate, id int64, nc NewCategory) (Category, error) {
	cat, err := svc.repo.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	nc.Clean()
	if err = validate.Struct(nc); err != nil {
		return Category{}, err
	}
	cat.Name, cat.Slug = nc.Name, nc.Slug
	if nc.Image != "" {
		cat.Image = nc.Image
	}
	if cat, err = svc.repo.UpdateCategory(ctx, cat); err != nil {
		return Category{}, trapUniqueErr(err, "slug", "updating category")
	}
	return cat, nil
}

func (svc *Service) DeleteCategory(ctx context.Context, id int64) error {
	return svc.repo.DeleteCategory(ctx, id)
}

func (svc *Service) CreateInstructor(ctx context.Context, validate *validator.Validate, ni NewInstructor) (Instructor, error) {
	ni.Clean()
	if err := validate.Struct(ni); err != nil {
		return Instructor{}, err
	}
	return svc.repo.CreateInstructor(ctx, ni.apply(Instructor{}))
}

// UpdateInstructor replaces the instructor fields; the photo is kept when ni has none.
func (svc *Service) UpdateInstructor(ctx context.Context, validate *validator.Validate, id int64, ni NewInstructor) (Instructor, error) {
	ins, err := svc.repo.GetInstructor(ctx, id)
	if err != nil {
		return Instructor{}, err
	}
	ni.Clean()
	if err = validate.Struct(ni); err != nil {
		return Instructor{}, err
	}
	return svc.repo.UpdateInstructor(ctx, ni.apply(ins))
}

func (svc *Service) DeleteInstructor(ctx context.Context, id int64) error {
	return svc.repo.DeleteInstructor(ctx, id)
}

func (svc *Service) CreateCourse(ctx context.Context, validate *validator.Validate, in CourseInput) (Course, error) {
	in.Clean()
	if err := validate.Struct(in); err != nil {
		return Course{}, err
	}
	course := in.apply(Course{CreatedAt: time.Now().UTC()})
	course, err := svc.repo.CreateCourse(ctx, course)
	if err != nil {
		return Course{}, trapUniqueErr(err, "slug", "creating course")
	}
	return course, nil
}

func (svc *Service) UpdateCourse(ctx context.Context, validate *validator.Validate, id int64, in CourseInput) (Course, error) {
	course, err := svc.repo.GetCourseByID(ctx, id)
	if err != nil {
		return Course{}, err
	}
	in.Clean()
	if err := validate.Struct(in); err != nil {
		return Course{}, err
	}
	if in.Image == "" {
		in.Image = course.Image
	}
	course, err = svc.repo.UpdateCourse(ctx, in.apply(course))
	if err != nil {
		return Course{}, trapUniqueErr(err, "slug", "updating course")
	}
	return course, nil
}

func (in CourseInput) apply(c Course) Course {
	c.CategoryID = in.CategoryID
	c.InstructorID = in.InstructorID
	c.Title = in.Title
	c.Slug = in.Slug
	c.ShortDesc = in.ShortDesc
	c.Image = in.Image
	c.Price = in.Price
	c.Rating = in.Rating
	c.DurationHours = in.DurationHours
	c.StudentsCount = in.StudentsCount
	c.IsFeatured = in.IsFeatured
	return c
}

func (svc *Service) DeleteCourse(ctx context.Context, id int64) error {
	return svc.repo.DeleteCourse(ctx, id)
}

func (svc *Service) CreateSection(ctx context.Context, validate *validator.Validate, courseID int64, in SectionInput) (Section, error) {
	in.Title = core.CleanString(in.Title)
	if err := validate.Struct(in); err != nil {
		return Section{}, err
	}
	if _, err := svc.repo.GetCourseByID(ctx, courseID); err != nil {
		return Section{}, err
	}
	sec, err := svc.repo.CreateSection(ctx, Section{CourseID: courseID, Title: in.Title, Order: in.Order})
	if err != nil {
		return Section{}, trapUniqueErr(err, "order", "creating section")
	}
	return sec, nil
}

func (svc *Service) UpdateSection(ctx context.Context, validate *validator.Validate, id int64, in SectionInput) (Section, error) {
	sec, err := svc.repo.GetSection(ctx, id)
	if err != nil {
		return Section{}, err
	}
	in.Title = core.CleanString(in.Title)
	if err := validate.Struct(in); err != nil {
		return Section{}, err
	}
	sec.Title, sec.Order = in.Title, in.Order
	if sec, err = svc.repo.UpdateSection(ctx, sec); err != nil {
		return Section{}, trapUniqueErr(err, "order", "updating section")
	}
	return sec, nil
}

func (svc *Service) DeleteSection(ctx context.Context, id int64) error {
	return svc.repo.DeleteSection(ctx, id)
}

// CreateLesson validates and stores a lesson; DOC/DOCX lessons are then converted to PDF (best effort).
func (svc *Service) CreateLesson(ctx context.Context, validate *validator.Validate, sectionID int64, in LessonInput) (Lesson, error) {
	if _, err := svc.repo.GetSection(ctx, sectionID); err != nil {
		return Lesson{}, err
	}
	lesson := in.apply(Lesson{SectionID: sectionID})
	if err := svc.validateLesson(validate, in, lesson); err != nil {
		return Lesson{}, err
	}
	lesson, err := svc.repo.CreateLesson(ctx, lesson)
	if err != nil {
		return Lesson{}, trapUniqueErr(err, "order", "creating lesson")
	}
	return svc.convertDoc(ctx, lesson), nil
}

func (svc *Service) UpdateLesson(ctx context.Context, validate *validator.Validate, id int64, in LessonInput) (Lesson, error) {
	orig, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	if in.VideoFile == "" {
		in.VideoFile = orig.VideoFile
	}
	if in.DocumentFile == "" {
		in.DocumentFile = orig.DocumentFile
	}
	lesson := in.apply(orig)
	if err := svc.validateLesson(validate, in, lesson); err != nil {
		return Lesson{}, err
	}
	if lesson, err = svc.repo.UpdateLesson(ctx, lesson); err != nil {
		return Lesson{}, trapUniqueErr(err, "order", "updating lesson")
	}
	return svc.convertDoc(ctx, lesson), nil
}

func (svc *Service) validateLesson(validate *validator.Validate, in LessonInput, lesson Lesson) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	return lesson.Validate()
}

func (in LessonInput) apply(l Lesson) Lesson {
	l.Order = in.Order
	l.Kind = in.Kind
	l.Title = core.CleanString(in.Title)
	l.Text = in.Text
	l.VideoURL = core.CleanString(in.VideoURL)
	l.VideoFile = in.VideoFile
	l.DocumentFile = in.DocumentFile
	l.DurationMinutes = in.DurationMinutes
	return l
}

// ConvertDocLesson runs the DOC/DOCX to PDF conversion of a stored lesson.
func (svc *Service) ConvertDocLesson(ctx context.Context, id int64) (Lesson, error) {
	lesson, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	return svc.convertDoc(ctx, lesson), nil
}

// convertDoc never fails: on any error the lesson is left unchanged and the error is logged.
func (svc *Service) convertDoc(ctx context.Context, lesson Lesson) Lesson {
	if svc.converter == nil || lesson.Kind != KindDoc || lesson.DocumentFile == "" {
		return lesson
	}
	pdfPath, err := svc.converter.ConvertToPDF(ctx, lesson.DocumentFile)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("converting lesson %d document to PDF: %v", lesson.ID, err), err)
		return lesson
	}

	converted := lesson
	converted.DocumentFile = pdfPath
	converted.Kind = KindPDF
	converted, err = svc.repo.UpdateLesson(ctx, converted)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("saving converted lesson %d: %v", lesson.ID, err), err)
		_ = svc.media.Delete(ctx, pdfPath)
		return lesson
	}
	svc.logger.Info(fmt.Sprintf("lesson %d: PDF version created", lesson.ID))
	return converted
}

func (svc *Service) DeleteLesson(ctx context.Context, id int64) error {
	return svc.repo.DeleteLesson(ctx, id)
}

func (svc *Service) DocLessons(ctx context.Context) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, KindDoc)
}

func (svc *Service) CreateSlide(ctx context.Context, validate *validator.Validate, ns NewSlide) (HomepageSlide, error) {
	ns.Title = core.CleanString(ns.Title)
	if err := validate.Struct(ns); err != nil {
		return HomepageSlide{}, err
	}
	if ns.Image == "" {
		return HomepageSlide{}, core.NewFieldError("image", "this field is required")
	}
	slide := HomepageSlide{
		Title:            ns.Title,
		Subtitle:         ns.Subtitle,
		Description:      ns.Description,
		Image:            ns.Image,
		CTAPrimaryText:   ns.CTAPrimaryText,
		CTAPrimaryURL:    ns.CTAPrimaryURL,
		CTASecondaryText: ns.CTASecondaryText,
		CTASecondaryURL:  ns.CTASecondaryURL,
		IsActive:         ns.IsActive == nil || *ns.IsActive,
		Order:            ns.Order,
	}
	if slide.CTAPrimaryURL == "" {
		slide.CTAPrimaryURL = "#"
	}
	if slide.CTASecondaryURL == "" {
		slide.CTASecondaryURL = "#"
	}
	return svc.repo.CreateSlide(ctx, slide)
}

func (svc *Service) DeleteSlide(ctx context.Context, id int64) error {
	return svc.repo.DeleteSlide(ctx, id)
}

// trapUniqueErr maps repository uniqueness errors to field errors.
func trapUniqueErr(err error, field, msg string) error {
	switch cause := errors.Cause(err); cause {
	case ErrSlugExists, ErrOrderExists:
		return core.NewValidationError(cause, core.FieldError{Field: field, Error: cause.Error()})
	}
	return errors.Wrap(err, msg)
}

func sortCategoriesByCount(cats []Category) {
	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].CourseCount != cats[j].CourseCount {
			return cats[i].CourseCount > cats[j].CourseCount
		}
		return cats[i].Name < cats[j].Name
	})
}
