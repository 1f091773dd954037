package torrens

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darslik/core"
)

// Response types
const (
	ResponseText    = "text"
	ResponseList    = "list"
	ResponseDrawing = "drawing"
)

// Submission statuses
const (
	StatusDraft    = "draft"
	StatusFinished = "finished"
	StatusGraded   = "graded"
)

const (
	DefaultMaxImages    = 5
	MaxTimeLimitMinutes = 24 * 60
)

var ResponseTypes = []string{ResponseText, ResponseList, ResponseDrawing}

type Test struct {
	ID               int64     `db:"id" json:"id"`
	Title            string    `db:"title" json:"title"`
	Slug             string    `db:"slug" json:"slug"`
	Description      string    `db:"description" json:"description"`
	IsPublished      bool      `db:"is_published" json:"is_published"`
	TimeLimitMinutes int       `db:"time_limit_minutes" json:"time_limit_minutes"` // 0: unlimited
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	Tasks            []Task    `json:"tasks,omitempty"`
}

type Task struct {
	ID             int64       `db:"id" json:"id"`
	TestID         int64       `db:"test_id" json:"test_id"`
	Order          int         `db:"order" json:"order"`
	Prompt         string      `db:"prompt" json:"prompt"`
	ResponseType   string      `db:"response_type" json:"response_type"`
	Hint           string      `db:"hint" json:"hint"`
	ReferenceImage string      `db:"reference_image" json:"reference_image,omitempty"`
	AllowText      bool        `db:"allow_text" json:"allow_text"`
	AllowImages    bool        `db:"allow_images" json:"allow_images"`
	MaxImages      int         `db:"max_images" json:"max_images"`
	Images         []TaskImage `json:"images"`
}

// TaskImage is an example/instruction image attached to a task.
type TaskImage struct {
	ID      int64  `db:"id" json:"id"`
	TaskID  int64  `db:"task_id" json:"task_id"`
	Image   string `db:"image" json:"image"`
	Caption string `db:"caption" json:"caption"`
}

// Submission is one learner's attempt at a test: draft -> finished -> graded.
// Several drafts of the same (test, user) may exist: uniqueness only holds on (test, user, finished_at).
type Submission struct {
	ID         int64     `db:"id" json:"id"`
	TestID     int64     `db:"test_id" json:"test_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	FinishedAt null.Time `db:"finished_at" json:"finished_at"`
	TotalScore float64   `db:"total_score" json:"total_score"`
	Status     string    `db:"status" json:"status"`
	Answers    []Answer  `json:"answers,omitempty"`
}

// Score returns the total score, 0 until graded.
func (s Submission) Score() float64 {
	if s.Status != StatusGraded {
		return 0
	}
	return s.TotalScore
}

// Answer returns the submission answer to a task.
func (s Submission) Answer(taskID int64) (Answer, bool) {
	for _, a := range s.Answers {
		if a.TaskID == taskID {
			return a, true
		}
	}
	return Answer{}, false
}

type Answer struct {
	ID           int64         `json:"id"`
	SubmissionID int64         `json:"submission_id"`
	TaskID       int64         `json:"task_id"`
	TextAnswer   string        `json:"text_answer"`
	ListAnswer   []string      `json:"list_answer"`
	DrawingImage string        `json:"drawing_image,omitempty"`
	Score        float64       `json:"score"`
	Note         string        `json:"note"`
	Images       []AnswerImage `json:"images"`
}

type AnswerImage struct {
	ID       int64  `db:"id" json:"id"`
	AnswerID int64  `db:"answer_id" json:"answer_id"`
	Image    string `db:"image" json:"image"`
	Caption  string `db:"caption" json:"caption"`
}

type SubmissionFilter struct {
	TestID int64  `query:"test_id"`
	UserID string `query:"user_id"`
	Status string `query:"status"`
}

// Inputs

type NewTest struct {
	Title            string    `json:"title" validate:"required,max=200"`
	Slug             string    `json:"slug" validate:"omitempty,slug,max=220"`
	Description      string    `json:"description"`
	IsPublished      bool      `json:"is_published"`
	TimeLimitMinutes int       `json:"time_limit_minutes" validate:"gte=0,lte=1440"`
	TimeLimit        string    `json:"time_limit" validate:"omitempty,isoduration"` // ISO 8601, overrides TimeLimitMinutes
	Tasks            []NewTask `json:"tasks" validate:"dive"`
}

type NewTask struct {
	Order        int    `json:"order" validate:"gte=1,lte=1000"`
	Prompt       string `json:"prompt" validate:"required,min=5"`
	ResponseType string `json:"response_type" validate:"required,oneof=text list drawing"`
	Hint         string `json:"hint"`
	AllowText    *bool  `json:"allow_text"`
	AllowImages  *bool  `json:"allow_images"`
	MaxImages    *int   `json:"max_images" validate:"omitempty,gte=0,lte=50"`
}

func (nt *NewTest) Clean() {
	nt.Title = core.CleanString(nt.Title)
	nt.Slug = core.CleanString(nt.Slug, true /* lower */)
	if nt.Slug == "" {
		nt.Slug = core.Slugify(nt.Title)
	}
	for i := range nt.Tasks {
		nt.Tasks[i].Prompt = core.CleanString(nt.Tasks[i].Prompt)
		nt.Tasks[i].ResponseType = core.CleanString(nt.Tasks[i].ResponseType, true /* lower */)
		if nt.Tasks[i].ResponseType == "" {
			nt.Tasks[i].ResponseType = ResponseText
		}
	}
}

func (nt NewTask) toTask() Task {
	t := Task{
		Order:        nt.Order,
		Prompt:       nt.Prompt,
		ResponseType: nt.ResponseType,
		Hint:         nt.Hint,
		AllowText:    true,
		AllowImages:  true,
		MaxImages:    DefaultMaxImages,
	}
	if nt.AllowText != nil {
		t.AllowText = *nt.AllowText
	}
	if nt.AllowImages != nil {
		t.AllowImages = *nt.AllowImages
	}
	if nt.MaxImages != nil {
		t.MaxImages = *nt.MaxImages
	}
	return t
}

// AnswerInput is what a learner posted for one task.
type AnswerInput struct {
	Text           string        // task_<id>_text
	List           string        // task_<id>_list, one idea per line
	Drawing        *core.Upload  // task_<id>_image
	DrawingDataURL string        // task_<id>_fabric_png, canvas export
	Images         []core.Upload // task_<id>_images
}
