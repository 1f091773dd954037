package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darslik/core/catalog"
)

const (
	courseSelect = `
		SELECT c.id, c.category_id, c.instructor_id, c.title, c.slug, c.short_desc, c.image, c.price, c.rating,
			c.duration_hours, c.students_count, c.is_featured, c.created_at,
			cat.name AS category_name, cat.slug AS category_slug, cat.image AS category_image,
			ins.full_name AS instructor_full_name, ins.title AS instructor_title, ins.photo AS instructor_photo,
			ins.facebook AS instructor_facebook, ins.twitter AS instructor_twitter, ins.instagram AS instructor_instagram
		FROM courses c
			LEFT JOIN categories cat ON cat.id = c.category_id
			LEFT JOIN instructors ins ON ins.id = c.instructor_id`
	courseCount = `
		SELECT count(*)
		FROM courses c
			LEFT JOIN categories cat ON cat.id = c.category_id
			LEFT JOIN instructors ins ON ins.id = c.instructor_id`

	lessonColumns = `id, section_id, "order", kind, title, text, video_url, video_file, document_file, duration_minutes`
	slideColumns  = `id, title, subtitle, description, image, cta_primary_text, cta_primary_url, cta_secondary_text,
		cta_secondary_url, is_active, "order"`
)

var (
	catalogUniques = map[string]error{
		"categories_slug_key":          catalog.ErrSlugExists,
		"courses_slug_key":             catalog.ErrSlugExists,
		"sections_course_id_order_key": catalog.ErrOrderExists,
		"lessons_section_id_order_key": catalog.ErrOrderExists,
	}
	courseOrderings = map[string]string{
		"created_at": "c.created_at",
		"price":      "c.price",
		"rating":     "c.rating",
		"title":      "c.title",
	}
)

type dbCourse struct {
	ID            int64      `db:"id"`
	CategoryID    null.Int64 `db:"category_id"`
	InstructorID  null.Int64 `db:"instructor_id"`
	Title         string     `db:"title"`
	Slug          string     `db:"slug"`
	ShortDesc     string     `db:"short_desc"`
	Image         string     `db:"image"`
	Price         float64    `db:"price"`
	Rating        float64    `db:"rating"`
	DurationHours int        `db:"duration_hours"`
	StudentsCount int        `db:"students_count"`
	IsFeatured    bool       `db:"is_featured"`
	CreatedAt     time.Time  `db:"created_at"`

	CategoryName        null.String `db:"category_name"`
	CategorySlug        null.String `db:"category_slug"`
	CategoryImage       null.String `db:"category_image"`
	InstructorFullName  null.String `db:"instructor_full_name"`
	InstructorTitle     null.String `db:"instructor_title"`
	InstructorPhoto     null.String `db:"instructor_photo"`
	InstructorFacebook  null.String `db:"instructor_facebook"`
	InstructorTwitter   null.String `db:"instructor_twitter"`
	InstructorInstagram null.String `db:"instructor_instagram"`
}

func (row dbCourse) course() catalog.Course {
	c := catalog.Course{
		ID:            row.ID,
		CategoryID:    row.CategoryID.Int64,
		InstructorID:  row.InstructorID.Int64,
		Title:         row.Title,
		Slug:          row.Slug,
		ShortDesc:     row.ShortDesc,
		Image:         row.Image,
		Price:         row.Price,
		Rating:        row.Rating,
		DurationHours: row.DurationHours,
		StudentsCount: row.StudentsCount,
		IsFeatured:    row.IsFeatured,
		CreatedAt:     row.CreatedAt.UTC(),
	}
	if row.CategoryID.Valid {
		c.Category = &catalog.Category{
			ID:    row.CategoryID.Int64,
			Name:  row.CategoryName.String,
			Slug:  row.CategorySlug.String,
			Image: row.CategoryImage.String,
		}
	}
	if row.InstructorID.Valid {
		c.Instructor = &catalog.Instructor{
			ID:        row.InstructorID.Int64,
			FullName:  row.InstructorFullName.String,
			Title:     row.InstructorTitle.String,
			Photo:     row.InstructorPhoto.String,
			Facebook:  row.InstructorFacebook.String,
			Twitter:   row.InstructorTwitter.String,
			Instagram: row.InstructorInstagram.String,
		}
	}
	return c
}

// nullID maps the zero ID to NULL.
func nullID(id int64) null.Int64 {
	return null.NewInt64(id, id != 0)
}

type catalogRepository struct {
	db *sqlx.DB
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *sqlx.DB) *catalogRepository {
	return &catalogRepository{db: db}
}

// Categories

func (repo catalogRepository) CreateCategory(ctx context.Context, cat catalog.Category) (catalog.Category, error) {
	var err error
	cat.CourseCount = 0
	cat.ID, err = insertReturningID(ctx, repo.db,
		`INSERT INTO categories (name, slug, image) VALUES (:name, :slug, :image) RETURNING id`,
		map[string]interface{}{"name": cat.Name, "slug": cat.Slug, "image": cat.Image})
	if err != nil {
		return catalog.Category{}, trapConstraintErr(err, catalog.ErrNotFound, catalogUniques, "inserting category")
	}
	return cat, nil
}

func (repo catalogRepository) QueryCategories(ctx context.Context) ([]catalog.Category, error) {
	cats := make([]catalog.Category, 0)
	err := repo.db.SelectContext(ctx, &cats, `
		SELECT cat.id, cat.name, cat.slug, cat.image, count(c.id) AS course_count
		FROM categories cat
			LEFT JOIN courses c ON c.category_id = cat.id
		GROUP BY cat.id
		ORDER BY cat.name, cat.id`)
	return cats, errors.Wrap(err, "querying categories")
}

func (repo catalogRepository) GetCategory(ctx context.Context, id int64) (catalog.Category, error) {
	var cat catalog.Category
	err := repo.db.GetContext(ctx, &cat, `
		SELECT cat.id, cat.name, cat.slug, cat.image, count(c.id) AS course_count
		FROM categories cat
			LEFT JOIN courses c ON c.category_id = cat.id
		WHERE cat.id = $1
		GROUP BY cat.id`,
		id)
	if err != nil {
		return catalog.Category{}, trapNoRowsErr(err, catalog.ErrNotFound, "finding category")
	}
	return cat, nil
}

func (repo catalogRepository) UpdateCategory(ctx context.Context, cat catalog.Category) (catalog.Category, error) {
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE categories SET name = :name, slug = :slug, image = :image WHERE id = :id`,
		map[string]interface{}{"id": cat.ID, "name": cat.Name, "slug": cat.Slug, "image": cat.Image})
	if err != nil {
		return catalog.Category{}, trapConstraintErr(err, catalog.ErrNotFound, catalogUniques, "updating category")
	}
	if err = mustAffect(res, nil, catalog.ErrNotFound, "updating category"); err != nil {
		return catalog.Category{}, err
	}
	return cat, nil
}

func (repo catalogRepository) DeleteCategory(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM categories WHERE id = $1", id)
	return mustAffect(res, err, catalog.ErrNotFound, "deleting category")
}

// Instructors

func (repo catalogRepository) CreateInstructor(ctx context.Context, ins catalog.Instructor) (catalog.Instructor, error) {
	var err error
	ins.ID, err = insertReturningID(ctx, repo.db, `
		INSERT INTO instructors (full_name, title, photo, facebook, twitter, instagram)
		VALUES (:full_name, :title, :photo, :facebook, :twitter, :instagram)
		RETURNING id`,
		ins)
	if err != nil {
		return catalog.Instructor{}, errors.Wrap(err, "inserting instructor")
	}
	return ins, nil
}

func (repo catalogRepository) QueryInstructors(ctx context.Context, limit int) ([]catalog.Instructor, error) {
	q := "SELECT id, full_name, title, photo, facebook, twitter, instagram FROM instructors ORDER BY full_name, id"
	var args []interface{}
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}
	inss := make([]catalog.Instructor, 0)
	err := repo.db.SelectContext(ctx, &inss, q, args...)
	return inss, errors.Wrap(err, "querying instructors")
}

func (repo catalogRepository) GetInstructor(ctx context.Context, id int64) (catalog.Instructor, error) {
	var ins catalog.Instructor
	err := repo.db.GetContext(ctx, &ins,
		"SELECT id, full_name, title, photo, facebook, twitter, instagram FROM instructors WHERE id = $1", id)
	if err != nil {
		return catalog.Instructor{}, trapNoRowsErr(err, catalog.ErrNotFound, "finding instructor")
	}
	return ins, nil
}

func (repo catalogRepository) UpdateInstructor(ctx context.Context, ins catalog.Instructor) (catalog.Instructor, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE instructors SET
			full_name = :full_name, title = :title, photo = :photo,
			facebook = :facebook, twitter = :twitter, instagram = :instagram
		WHERE id = :id`,
		ins)
	if err = mustAffect(res, err, catalog.ErrNotFound, "updating instructor"); err != nil {
		return catalog.Instructor{}, err
	}
	return ins, nil
}

func (repo catalogRepository) DeleteInstructor(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM instructors WHERE id = $1", id)
	return mustAffect(res, err, catalog.ErrNotFound, "deleting instructor")
}

// Courses

func courseArgs(c catalog.Course) map[string]interface{} {
	return map[string]interface{}{
		"id":             c.ID,
		"category_id":    nullID(c.CategoryID),
		"instructor_id":  nullID(c.InstructorID),
		"title":          c.Title,
		"slug":           c.Slug,
		"short_desc":     c.ShortDesc,
		"image":          c.Image,
		"price":          c.Price,
		"rating":         c.Rating,
		"duration_hours": c.DurationHours,
		"students_count": c.StudentsCount,
		"is_featured":    c.IsFeatured,
		"created_at":     c.CreatedAt.UTC(),
	}
}

func (repo catalogRepository) CreateCourse(ctx context.Context, course catalog.Course) (catalog.Course, error) {
	id, err := insertReturningID(ctx, repo.db, `
		INSERT INTO courses (category_id, instructor_id, title, slug, short_desc, image, price, rating,
			duration_hours, students_count, is_featured, created_at)
		VALUES (:category_id, :instructor_id, :title, :slug, :short_desc, :image, :price, :rating,
			:duration_hours, :students_count, :is_featured, :created_at)
		RETURNING id`,
		courseArgs(course))
	if err != nil {
		return catalog.Course{}, trapConstraintErr(err, catalog.ErrNotFound, catalogUniques, "inserting course")
	}
	return repo.GetCourseByID(ctx, id)
}

func (repo catalogRepository) UpdateCourse(ctx context.Context, course catalog.Course) (catalog.Course, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE courses SET
			category_id = :category_id, instructor_id = :instructor_id, title = :title, slug = :slug,
			short_desc = :short_desc, image = :image, price = :price, rating = :rating,
			duration_hours = :duration_hours, students_count = :students_count, is_featured = :is_featured
		WHERE id = :id`,
		courseArgs(course))
	if err != nil {
		return catalog.Course{}, trapConstraintErr(err, catalog.ErrNotFound, catalogUniques, "updating course")
	}
	if err = mustAffect(res, nil, catalog.ErrNotFound, "updating course"); err != nil {
		return catalog.Course{}, err
	}
	return repo.GetCourseByID(ctx, course.ID)
}

func (repo catalogRepository) getCourse(ctx context.Context, where string, arg interface{}) (catalog.Course, error) {
	var row dbCourse
	if err := repo.db.GetContext(ctx, &row, courseSelect+" WHERE "+where, arg); err != nil {
		return catalog.Course{}, trapNoRowsErr(err, catalog.ErrNotFound, "finding course")
	}
	return row.course(), nil
}

func (repo catalogRepository) GetCourseByID(ctx context.Context, id int64) (catalog.Course, error) {
	return repo.getCourse(ctx, "c.id = $1", id)
}

func (repo catalogRepository) GetCourseBySlug(ctx context.Context, slug string) (catalog.Course, error) {
	return repo.getCourse(ctx, "c.slug = $1", slug)
}

func (repo catalogRepository) QueryCourses(ctx context.Context, query catalog.CourseQuery) ([]catalog.Course, int, error) {
	var c conds
	if query.Search != "" {
		val := likePattern(query.Search)
		c.add("(c.title ILIKE ? OR ins.full_name ILIKE ?)", val, val)
	}
	if query.CategorySlug != "" {
		c.add("cat.slug = ?", query.CategorySlug)
	}
	if query.CategoryID != 0 {
		c.add("c.category_id = ?", query.CategoryID)
	}
	if query.Featured != nil {
		c.add("c.is_featured = ?", *query.Featured)
	}
	if len(query.ExcludeIDs) > 0 {
		c.add("NOT (c.id = ANY(?))", pq.Array(query.ExcludeIDs))
	}

	var total int
	if err := repo.db.GetContext(ctx, &total, repo.db.Rebind(courseCount+c.where()), c.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting courses")
	}

	q := courseSelect + c.where() + orderBy(query.Ordering, courseOrderings, "c.id")
	args := c.args
	if p := query.Pagination; p.PerPage > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, p.PerPage, p.Offset())
	}
	var rows []dbCourse
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying courses")
	}
	courses := make([]catalog.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.course())
	}
	return courses, total, nil
}

func (repo catalogRepository) DeleteCourse(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM courses WHERE id = $1", id)
	return mustAffect(res, err, catalog.ErrNotFound, "deleting course")
}

// Sections

func (repo catalogRepository) CreateSection(ctx context.Context, sec catalog.Section) (catalog.Section, error) {
	var err error
	sec.Lessons = nil
	sec.ID, err = insertReturningID(ctx, repo.db,
		`INSERT INTO sections (course_id, title, "order") VALUES (:course_id, :title, :order) RETURNING id`,
		sec)
	if err != nil {
		return catalog.Section{}, trapConstraintErr(err, catalog.ErrNotFound, catalogUniques, "inserting section")
	}
	return sec, nil
}

func (repo catalogRepository) UpdateSection(ctx context.Context, sec catalog.Section) (catalog.Section, error) {
	sec.Lessons = nil
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE sections SET title = :title, "order" = :order WHERE id = :id`, sec)
	if err != nil {
		return catalog.Section{}, trapConstraintErr(err, catalog.ErrNotFound, catalogUniques, "updating section")
	}
	if err = mustAffect(res, nil, catalog.ErrNotFound, "updating section"); err != nil {
		return catalog.Section{}, err
	}
	return sec, nil
}

func (repo catalogRepository) GetSection(ctx context.Context, id int64) (catalog.Section, error) {
	var sec catalog.Section
	err := repo.db.GetContext(ctx, &sec, `SELECT id, course_id, title, "order" FROM sections WHERE id = $1`, id)
	if err != nil {
		return catalog.Section{}, trapNoRowsErr(err, catalog.ErrNotFound, "finding section")
	}
	secs, err := repo.attachLessons(ctx, []catalog.Section{sec})
	if err != nil {
		return catalog.Section{}, err
	}
	return secs[0], nil
}

func (repo catalogRepository) QuerySections(ctx context.Context, courseID int64) ([]catalog.Section, error) {
	secs := make([]catalog.Section, 0)
	err := repo.db.SelectContext(ctx, &secs,
		`SELECT id, course_id, title, "order" FROM sections WHERE course_id = $1 ORDER BY "order", id`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying sections")
	}
	return repo.attachLessons(ctx, secs)
}

// attachLessons loads the lessons of secs ordered by (order, id).
func (repo catalogRepository) attachLessons(ctx context.Context, secs []catalog.Section) ([]catalog.Section, error) {
	if len(secs) == 0 {
		return secs, nil
	}
	ids := make([]int64, len(secs))
	for i, s := range secs {
		ids[i] = s.ID
	}
	var lessons []catalog.Lesson
	err := repo.db.SelectContext(ctx, &lessons,
		`SELECT `+lessonColumns+` FROM lessons WHERE section_id = ANY($1) ORDER BY "order", id`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}

	bySection := make(map[int64][]catalog.Lesson, len(secs))
	for _, l := range lessons {
		bySection[l.SectionID] = append(bySection[l.SectionID], l)
	}
	for i := range secs {
		secs[i].Lessons = bySection[secs[i].ID]
		if secs[i].Lessons == nil {
			secs[i].Lessons = []catalog.Lesson{}
		}
	}
	return secs, nil
}

func (repo catalogRepository) DeleteSection(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM sections WHERE id = $1", id)
	return mustAffect(res, err, catalog.ErrNotFound, "deleting section")
}

// Lessons

func (repo catalogRepository) CreateLesson(ctx context.Context, lesson catalog.Lesson) (catalog.Lesson, error) {
	var err error
	lesson.ID, err = insertReturningID(ctx, repo.db, `
		INSERT INTO lessons (section_id, "order", kind, title, text, video_url, video_file, document_file, duration_minutes)
		VALUES (:section_id, :order, :kind, :title, :text, :video_url, :video_file, :document_file, :duration_minutes)
		RETURNING id`,
		lesson)
	if err != nil {
		return catalog.Lesson{}, trapConstraintErr(err, catalog.ErrNotFound, catalogUniques, "inserting lesson")
	}
	return lesson, nil
}

func (repo catalogRepository) UpdateLesson(ctx context.Context, lesson catalog.Lesson) (catalog.Lesson, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE lessons SET
			"order" = :order, kind = :kind, title = :title, text = :text, video_url = :video_url,
			video_file = :video_file, document_file = :document_file, duration_minutes = :duration_minutes
		WHERE id = :id`,
		lesson)
	if err != nil {
		return catalog.Lesson{}, trapConstraintErr(err, catalog.ErrNotFound, catalogUniques, "updating lesson")
	}
	if err = mustAffect(res, nil, catalog.ErrNotFound, "updating lesson"); err != nil {
		return catalog.Lesson{}, err
	}
	return lesson, nil
}

func (repo catalogRepository) GetLesson(ctx context.Context, id int64) (catalog.Lesson, error) {
	var lesson catalog.Lesson
	err := repo.db.GetContext(ctx, &lesson, "SELECT "+lessonColumns+" FROM lessons WHERE id = $1", id)
	if err != nil {
		return catalog.Lesson{}, trapNoRowsErr(err, catalog.ErrNotFound, "finding lesson")
	}
	return lesson, nil
}

func (repo catalogRepository) QueryLessons(ctx context.Context, kind string) ([]catalog.Lesson, error) {
	var c conds
	if kind != "" {
		c.add("kind = ?", kind)
	}
	lessons := make([]catalog.Lesson, 0)
	q := repo.db.Rebind("SELECT " + lessonColumns + " FROM lessons" + c.where() + " ORDER BY id")
	err := repo.db.SelectContext(ctx, &lessons, q, c.args...)
	return lessons, errors.Wrap(err, "querying lessons")
}

func (repo catalogRepository) DeleteLesson(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM lessons WHERE id = $1", id)
	return mustAffect(res, err, catalog.ErrNotFound, "deleting lesson")
}

// Slides

func (repo catalogRepository) CreateSlide(ctx context.Context, slide catalog.HomepageSlide) (catalog.HomepageSlide, error) {
	var err error
	slide.ID, err = insertReturningID(ctx, repo.db, `
		INSERT INTO homepage_slides (title, subtitle, description, image, cta_primary_text, cta_primary_url,
			cta_secondary_text, cta_secondary_url, is_active, "order")
		VALUES (:title, :subtitle, :description, :image, :cta_primary_text, :cta_primary_url,
			:cta_secondary_text, :cta_secondary_url, :is_active, :order)
		RETURNING id`,
		slide)
	if err != nil {
		return catalog.HomepageSlide{}, errors.Wrap(err, "inserting slide")
	}
	return slide, nil
}

func (repo catalogRepository) QuerySlides(ctx context.Context, activeOnly bool) ([]catalog.HomepageSlide, error) {
	q := "SELECT " + slideColumns + " FROM homepage_slides"
	if activeOnly {
		q += " WHERE is_active"
	}
	slides := make([]catalog.HomepageSlide, 0)
	err := repo.db.SelectContext(ctx, &slides, q+` ORDER BY "order", id`)
	return slides, errors.Wrap(err, "querying slides")
}

func (repo catalogRepository) DeleteSlide(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM homepage_slides WHERE id = $1", id)
	return mustAffect(res, err, catalog.ErrNotFound, "deleting slide")
}
