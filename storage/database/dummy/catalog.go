package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/catalog"
)

type catalogRepository struct {
	db *DB
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *DB) *catalogRepository {
	return &catalogRepository{db: db}
}

// Categories

func (repo *catalogRepository) CreateCategory(_ context.Context, cat catalog.Category) (catalog.Category, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, c := range repo.db.categories {
		if c.Slug == cat.Slug {
			return catalog.Category{}, catalog.ErrSlugExists
		}
	}
	cat.ID = repo.db.nextPK()
	cat.CourseCount = 0
	repo.db.categories[cat.ID] = &cat
	return cat, nil
}

func (repo *catalogRepository) QueryCategories(_ context.Context) ([]catalog.Category, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	counts := make(map[int64]int)
	for _, c := range repo.db.courses {
		counts[c.CategoryID]++
	}
	cats := make([]catalog.Category, 0, len(repo.db.categories))
	for _, c := range repo.db.categories {
		cat := *c
		cat.CourseCount = counts[cat.ID]
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Name != cats[j].Name {
			return cats[i].Name < cats[j].Name
		}
		return cats[i].ID < cats[j].ID
	})
	return cats, nil
}

func (repo *catalogRepository) GetCategory(_ context.Context, id int64) (catalog.Category, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	c, ok := repo.db.categories[id]
	if !ok {
		return catalog.Category{}, catalog.ErrNotFound
	}
	cat := *c
	for _, course := range repo.db.courses {
		if course.CategoryID == id {
			cat.CourseCount++
		}
	}
	return cat, nil
}

func (repo *catalogRepository) UpdateCategory(_ context.Context, cat catalog.Category) (catalog.Category, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.categories[cat.ID]; !ok {
		return catalog.Category{}, catalog.ErrNotFound
	}
	for _, c := range repo.db.categories {
		if c.ID != cat.ID && c.Slug == cat.Slug {
			return catalog.Category{}, catalog.ErrSlugExists
		}
	}
	repo.db.categories[cat.ID] = &cat
	return cat, nil
}

func (repo *catalogRepository) DeleteCategory(_ context.Context, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.categories[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(repo.db.categories, id)
	for _, c := range repo.db.courses {
		if c.CategoryID == id {
			c.CategoryID = 0
		}
	}
	return nil
}

// Instructors

func (repo *catalogRepository) CreateInstructor(_ context.Context, ins catalog.Instructor) (catalog.Instructor, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ins.ID = repo.db.nextPK()
	repo.db.instructors[ins.ID] = &ins
	return ins, nil
}

func (repo *catalogRepository) QueryInstructors(_ context.Context, limit int) ([]catalog.Instructor, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	inss := make([]catalog.Instructor, 0, len(repo.db.instructors))
	for _, ins := range repo.db.instructors {
		inss = append(inss, *ins)
	}
	sort.Slice(inss, func(i, j int) bool {
		if inss[i].FullName != inss[j].FullName {
			return inss[i].FullName < inss[j].FullName
		}
		return inss[i].ID < inss[j].ID
	})
	if limit > 0 && len(inss) > limit {
		inss = inss[:limit]
	}
	return inss, nil
}

func (repo *catalogRepository) GetInstructor(_ context.Context, id int64) (catalog.Instructor, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ins, ok := repo.db.instructors[id]; ok {
		return *ins, nil
	}
	return catalog.Instructor{}, catalog.ErrNotFound
}

func (repo *catalogRepository) UpdateInstructor(_ context.Context, ins catalog.Instructor) (catalog.Instructor, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.instructors[ins.ID]; !ok {
		return catalog.Instructor{}, catalog.ErrNotFound
	}
	repo.db.instructors[ins.ID] = &ins
	return ins, nil
}

func (repo *catalogRepository) DeleteInstructor(_ context.Context, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.instructors[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(repo.db.instructors, id)
	for _, c := range repo.db.courses {
		if c.InstructorID == id {
			c.InstructorID = 0
		}
	}
	return nil
}

// Courses

func (repo *catalogRepository) checkCourseSlug(course catalog.Course) error {
	for _, c := range repo.db.courses {
		if c.Slug == course.Slug && c.ID != course.ID {
			return catalog.ErrSlugExists
		}
	}
	return nil
}

func (repo *catalogRepository) CreateCourse(_ context.Context, course catalog.Course) (catalog.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.checkCourseSlug(course); err != nil {
		return catalog.Course{}, err
	}
	course.ID = repo.db.nextPK()
	course.Category, course.Instructor = nil, nil
	repo.db.courses[course.ID] = &course
	return repo.loadCourse(course), nil
}

func (repo *catalogRepository) UpdateCourse(_ context.Context, course catalog.Course) (catalog.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[course.ID]; !ok {
		return catalog.Course{}, catalog.ErrNotFound
	}
	if err := repo.checkCourseSlug(course); err != nil {
		return catalog.Course{}, err
	}
	course.Category, course.Instructor = nil, nil
	repo.db.courses[course.ID] = &course
	return repo.loadCourse(course), nil
}

// loadCourse attaches the course category and instructor.
func (repo *catalogRepository) loadCourse(c catalog.Course) catalog.Course {
	if cat, ok := repo.db.categories[c.CategoryID]; ok {
		cp := *cat
		c.Category = &cp
	}
	if ins, ok := repo.db.instructors[c.InstructorID]; ok {
		cp := *ins
		c.Instructor = &cp
	}
	return c
}

func (repo *catalogRepository) GetCourseByID(_ context.Context, id int64) (catalog.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return repo.loadCourse(*c), nil
	}
	return catalog.Course{}, catalog.ErrNotFound
}

func (repo *catalogRepository) GetCourseBySlug(_ context.Context, slug string) (catalog.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, c := range repo.db.courses {
		if c.Slug == slug {
			return repo.loadCourse(*c), nil
		}
	}
	return catalog.Course{}, catalog.ErrNotFound
}

func (repo *catalogRepository) QueryCourses(_ context.Context, query catalog.CourseQuery) ([]catalog.Course, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[int64]bool, len(query.ExcludeIDs))
	for _, id := range query.ExcludeIDs {
		excluded[id] = true
	}
	search := strings.ToLower(query.Search)

	courses := make([]catalog.Course, 0)
	for _, c := range repo.db.courses {
		course := repo.loadCourse(*c)
		switch {
		case excluded[course.ID]:
			continue
		case query.Featured != nil && course.IsFeatured != *query.Featured:
			continue
		case query.CategoryID != 0 && course.CategoryID != query.CategoryID:
			continue
		case query.CategorySlug != "" && (course.Category == nil || course.Category.Slug != query.CategorySlug):
			continue
		}
		if search != "" {
			inTitle := strings.Contains(strings.ToLower(course.Title), search)
			inInstructor := course.Instructor != nil && strings.Contains(strings.ToLower(course.Instructor.FullName), search)
			if !inTitle && !inInstructor {
				continue
			}
		}
		courses = append(courses, course)
	}
	sortCourses(courses, query.Ordering)

	total := len(courses)
	if p := query.Pagination; p.PerPage > 0 {
		start := p.Offset()
		if start > total {
			start = total
		}
		end := start + p.PerPage
		if end > total {
			end = total
		}
		courses = courses[start:end]
	}
	return courses, total, nil
}

func sortCourses(courses []catalog.Course, ordering []core.DBOrdering) {
	sort.SliceStable(courses, func(i, j int) bool {
		a, b := courses[i], courses[j]
		for _, o := range ordering {
			var cmp int
			switch o.Field {
			case "created_at":
				switch {
				case a.CreatedAt.Before(b.CreatedAt):
					cmp = -1
				case a.CreatedAt.After(b.CreatedAt):
					cmp = 1
				}
			case "price":
				cmp = compareFloats(a.Price, b.Price)
			case "rating":
				cmp = compareFloats(a.Rating, b.Rating)
			case "title":
				cmp = strings.Compare(a.Title, b.Title)
			}
			if cmp != 0 {
				return (cmp < 0) == o.Ascending
			}
		}
		return a.ID < b.ID
	})
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (repo *catalogRepository) DeleteCourse(_ context.Context, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(repo.db.courses, id)
	for sid, s := range repo.db.sections {
		if s.CourseID == id {
			repo.db.deleteSection(sid)
		}
	}
	return nil
}

// Sections

func (repo *catalogRepository) checkSectionOrder(sec catalog.Section) error {
	for _, s := range repo.db.sections {
		if s.CourseID == sec.CourseID && s.Order == sec.Order && s.ID != sec.ID {
			return catalog.ErrOrderExists
		}
	}
	return nil
}

func (repo *catalogRepository) CreateSection(_ context.Context, sec catalog.Section) (catalog.Section, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[sec.CourseID]; !ok {
		return catalog.Section{}, catalog.ErrNotFound
	}
	if err := repo.checkSectionOrder(sec); err != nil {
		return catalog.Section{}, err
	}
	sec.ID = repo.db.nextPK()
	sec.Lessons = nil
	repo.db.sections[sec.ID] = &sec
	return sec, nil
}

func (repo *catalogRepository) UpdateSection(_ context.Context, sec catalog.Section) (catalog.Section, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.sections[sec.ID]; !ok {
		return catalog.Section{}, catalog.ErrNotFound
	}
	if err := repo.checkSectionOrder(sec); err != nil {
		return catalog.Section{}, err
	}
	sec.Lessons = nil
	repo.db.sections[sec.ID] = &sec
	return sec, nil
}

func (repo *catalogRepository) GetSection(_ context.Context, id int64) (catalog.Section, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.sections[id]; ok {
		sec := *s
		sec.Lessons = repo.sectionLessons(id)
		return sec, nil
	}
	return catalog.Section{}, catalog.ErrNotFound
}

func (repo *catalogRepository) sectionLessons(sectionID int64) []catalog.Lesson {
	lessons := make([]catalog.Lesson, 0)
	for _, l := range repo.db.lessons {
		if l.SectionID == sectionID {
			lessons = append(lessons, *l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool {
		if lessons[i].Order != lessons[j].Order {
			return lessons[i].Order < lessons[j].Order
		}
		return lessons[i].ID < lessons[j].ID
	})
	return lessons
}

func (repo *catalogRepository) QuerySections(_ context.Context, courseID int64) ([]catalog.Section, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sections := make([]catalog.Section, 0)
	for _, s := range repo.db.sections {
		if s.CourseID == courseID {
			sec := *s
			sec.Lessons = repo.sectionLessons(sec.ID)
			sections = append(sections, sec)
		}
	}
	sort.Slice(sections, func(i, j int) bool {
		if sections[i].Order != sections[j].Order {
			return sections[i].Order < sections[j].Order
		}
		return sections[i].ID < sections[j].ID
	})
	return sections, nil
}

func (repo *catalogRepository) DeleteSection(_ context.Context, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.sections[id]; !ok {
		return catalog.ErrNotFound
	}
	repo.db.deleteSection(id)
	return nil
}

// Lessons

func (repo *catalogRepository) checkLessonOrder(lesson catalog.Lesson) error {
	for _, l := range repo.db.lessons {
		if l.SectionID == lesson.SectionID && l.Order == lesson.Order && l.ID != lesson.ID {
			return catalog.ErrOrderExists
		}
	}
	return nil
}

func (repo *catalogRepository) CreateLesson(_ context.Context, lesson catalog.Lesson) (catalog.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.sections[lesson.SectionID]; !ok {
		return catalog.Lesson{}, catalog.ErrNotFound
	}
	if err := repo.checkLessonOrder(lesson); err != nil {
		return catalog.Lesson{}, err
	}
	lesson.ID = repo.db.nextPK()
	repo.db.lessons[lesson.ID] = &lesson
	return lesson, nil
}

func (repo *catalogRepository) UpdateLesson(_ context.Context, lesson catalog.Lesson) (catalog.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.lessons[lesson.ID]; !ok {
		return catalog.Lesson{}, catalog.ErrNotFound
	}
	if err := repo.checkLessonOrder(lesson); err != nil {
		return catalog.Lesson{}, err
	}
	repo.db.lessons[lesson.ID] = &lesson
	return lesson, nil
}

func (repo *catalogRepository) GetLesson(_ context.Context, id int64) (catalog.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if l, ok := repo.db.lessons[id]; ok {
		return *l, nil
	}
	return catalog.Lesson{}, catalog.ErrNotFound
}

func (repo *catalogRepository) QueryLessons(_ context.Context, kind string) ([]catalog.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	lessons := make([]catalog.Lesson, 0)
	for _, l := range repo.db.lessons {
		if kind == "" || l.Kind == kind {
			lessons = append(lessons, *l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].ID < lessons[j].ID })
	return lessons, nil
}

func (repo *catalogRepository) DeleteLesson(_ context.Context, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.lessons[id]; !ok {
		return catalog.ErrNotFound
	}
	repo.db.deleteLesson(id)
	return nil
}

// Slides

func (repo *catalogRepository) CreateSlide(_ context.Context, slide catalog.HomepageSlide) (catalog.HomepageSlide, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	slide.ID = repo.db.nextPK()
	repo.db.slides[slide.ID] = &slide
	return slide, nil
}

func (repo *catalogRepository) QuerySlides(_ context.Context, activeOnly bool) ([]catalog.HomepageSlide, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	slides := make([]catalog.HomepageSlide, 0)
	for _, s := range repo.db.slides {
		if !activeOnly || s.IsActive {
			slides = append(slides, *s)
		}
	}
	sort.Slice(slides, func(i, j int) bool {
		if slides[i].Order != slides[j].Order {
			return slides[i].Order < slides[j].Order
		}
		return slides[i].ID < slides[j].ID
	})
	return slides, nil
}

func (repo *catalogRepository) DeleteSlide(_ context.Context, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.slides[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(repo.db.slides, id)
	return nil
}

// cascades; the write lock must be held

func (db *DB) deleteSection(id int64) {
	delete(db.sections, id)
	for lid, l := range db.lessons {
		if l.SectionID == id {
			db.deleteLesson(lid)
		}
	}
}

func (db *DB) deleteLesson(id int64) {
	delete(db.lessons, id)
	for qid, qz := range db.quizzes {
		if qz.LessonID == id {
			db.deleteQuiz(qid)
		}
	}
}
