package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/ioutil"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/catalog"
	"github.com/trezcool/darslik/core/quiz"
	"github.com/trezcool/darslik/core/torrens"
	"github.com/trezcool/darslik/core/user"
	mediasvc "github.com/trezcool/darslik/services/media"
)

// Validator returns a validator with all the app validators registered.
func Validator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// Media returns a local media storage rooted in a temp dir removed with the test.
func Media(t *testing.T) *mediasvc.LocalStorage {
	store, err := mediasvc.NewLocalStorage(t.TempDir(), "/media/")
	if err != nil {
		t.Fatalf("Media() failed: %v", err)
	}
	return store
}

func Images() *mediasvc.ImageNormalizer {
	return mediasvc.NewImageNormalizer(core.MediaConfig{ImageMaxWidth: 200, ImageMaxHeight: 200})
}

// PNG encodes a w x h image.
func PNG(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{B: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("PNG() failed: %v", err)
	}
	return buf.Bytes()
}

// Upload wraps data into a core.Upload.
func Upload(filename string, data []byte) core.Upload {
	return core.Upload{
		Filename: filename,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return ioutil.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateCourse creates a course with one section holding a lesson of each given kind (orders 1..n).
func CreateCourse(t *testing.T, repo catalog.Repository, title string, kinds ...string) (catalog.Course, []catalog.Lesson) {
	ctx := context.Background()
	course, err := repo.CreateCourse(ctx, catalog.Course{
		Title:     title,
		Slug:      core.Slugify(title),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("createCourse() failed: %v", err)
	}
	sec, err := repo.CreateSection(ctx, catalog.Section{CourseID: course.ID, Title: "Module 1", Order: 1})
	if err != nil {
		t.Fatalf("createCourse() failed: %v", err)
	}

	lessons := make([]catalog.Lesson, 0, len(kinds))
	for i, kind := range kinds {
		lesson := catalog.Lesson{SectionID: sec.ID, Order: i + 1, Kind: kind, Title: title + " / " + kind}
		switch kind {
		case catalog.KindText:
			lesson.Text = "Read this."
		case catalog.KindVideo:
			lesson.VideoURL = "https://youtu.be/dQw4w9WgXcQ"
		case catalog.KindPDF:
			lesson.DocumentFile = "lessons/docs/handout.pdf"
		case catalog.KindDoc:
			lesson.DocumentFile = "lessons/docs/handout.docx"
		}
		if lesson, err = repo.CreateLesson(ctx, lesson); err != nil {
			t.Fatalf("createCourse() failed: %v", err)
		}
		lessons = append(lessons, lesson)
	}
	return course, lessons
}

// CreateQuiz creates the quiz of a test lesson with n single choice questions (1 point each).
// The first choice of every question is the correct one; shuffling is off.
func CreateQuiz(t *testing.T, repo quiz.Repository, lessonID int64, n int, opts ...func(*quiz.Quiz)) (quiz.Quiz, []quiz.Question) {
	ctx := context.Background()
	qz := quiz.NewQuiz(lessonID)
	qz.Title = "Check yourself"
	qz.ShuffleQuestions = false
	qz.ShuffleChoices = false
	for _, opt := range opts {
		opt(&qz)
	}
	qz, err := repo.CreateQuiz(ctx, qz)
	if err != nil {
		t.Fatalf("createQuiz() failed: %v", err)
	}

	questions := make([]quiz.Question, 0, n)
	for i := 1; i <= n; i++ {
		q, err := repo.CreateQuestion(ctx, quiz.Question{
			QuizID: qz.ID,
			Order:  i,
			Text:   "Question?",
			Type:   quiz.TypeSingle,
			Points: 1,
			Choices: []quiz.Choice{
				{Text: "right", IsCorrect: true},
				{Text: "wrong"},
			},
		})
		if err != nil {
			t.Fatalf("createQuiz() failed: %v", err)
		}
		questions = append(questions, q)
	}
	return qz, questions
}

// CreateTest creates a published Torrens test with a task of each given response type (orders 1..n).
func CreateTest(t *testing.T, repo torrens.Repository, title string, types ...string) torrens.Test {
	test := torrens.Test{
		Title:       title,
		Slug:        core.Slugify(title),
		IsPublished: true,
		CreatedAt:   time.Now().UTC(),
	}
	for i, typ := range types {
		test.Tasks = append(test.Tasks, torrens.Task{
			Order:        i + 1,
			Prompt:       "Task prompt " + typ,
			ResponseType: typ,
			AllowText:    true,
			AllowImages:  true,
			MaxImages:    2,
		})
	}
	test, err := repo.CreateTest(context.Background(), test)
	if err != nil {
		t.Fatalf("createTest() failed: %v", err)
	}
	return test
}
