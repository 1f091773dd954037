// Package dummydb is an in-memory implementation of every repository, used by tests and the "dummy" database engine.
// Foreign keys are emulated: deleting a row cascades like the SQL schema does.
package dummydb

import (
	"sync"

	"github.com/trezcool/darslik/core/catalog"
	"github.com/trezcool/darslik/core/library"
	"github.com/trezcool/darslik/core/quiz"
	"github.com/trezcool/darslik/core/testimonial"
	"github.com/trezcool/darslik/core/torrens"
	"github.com/trezcool/darslik/core/user"
)

type DB struct {
	sync.RWMutex
	pk int64

	users map[string]*user.User

	categories  map[int64]*catalog.Category
	instructors map[int64]*catalog.Instructor
	courses     map[int64]*catalog.Course
	sections    map[int64]*catalog.Section
	lessons     map[int64]*catalog.Lesson
	slides      map[int64]*catalog.HomepageSlide

	quizzes   map[int64]*quiz.Quiz
	questions map[int64]*quiz.Question
	attempts  map[int64]*quiz.Attempt

	tests       map[int64]*torrens.Test
	tasks       map[int64]*torrens.Task
	taskImages  map[int64]*torrens.TaskImage
	submissions map[int64]*torrens.Submission
	answers     map[int64]*torrens.Answer
	ansImages   map[int64]*torrens.AnswerImage

	testimonials map[int64]*testimonial.Testimonial
	libItems     map[int64]*library.Item
}

func Open() *DB {
	return &DB{
		users:        make(map[string]*user.User),
		categories:   make(map[int64]*catalog.Category),
		instructors:  make(map[int64]*catalog.Instructor),
		courses:      make(map[int64]*catalog.Course),
		sections:     make(map[int64]*catalog.Section),
		lessons:      make(map[int64]*catalog.Lesson),
		slides:       make(map[int64]*catalog.HomepageSlide),
		quizzes:      make(map[int64]*quiz.Quiz),
		questions:    make(map[int64]*quiz.Question),
		attempts:     make(map[int64]*quiz.Attempt),
		tests:        make(map[int64]*torrens.Test),
		tasks:        make(map[int64]*torrens.Task),
		taskImages:   make(map[int64]*torrens.TaskImage),
		submissions:  make(map[int64]*torrens.Submission),
		answers:      make(map[int64]*torrens.Answer),
		ansImages:    make(map[int64]*torrens.AnswerImage),
		testimonials: make(map[int64]*testimonial.Testimonial),
		libItems:     make(map[int64]*library.Item),
	}
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK() int64 {
	db.pk++
	return db.pk
}
