package quiz

import (
	"time"

	"github.com/volatiletech/null/v8"
	"gorm.io/datatypes"

	"github.com/trezcool/darslik/core"
)

// Question types
const (
	TypeSingle = "sc"  // single choice
	TypeMulti  = "mc"  // multiple choice
	TypeText   = "txt" // free text, manual grade
)

const (
	DefaultAdviceMidMin  = 50
	DefaultAdviceHighMin = 80

	DefaultAdviceLow  = "Your result is low. Review the lesson again, write a short summary and do more practice exercises."
	DefaultAdviceMid  = "Good! Now try harder examples and consolidate with extra exercises."
	DefaultAdviceHigh = "Excellent! Move on to the next module and try the advanced tasks."

	// fallbackAdvice is shown when every band text is empty.
	fallbackAdvice = "Keep practising: go over the key concepts of the lesson once more."
)

var QuestionTypes = []string{TypeSingle, TypeMulti, TypeText}

type Quiz struct {
	ID               int64    `db:"id" json:"id"`
	LessonID         int64    `db:"lesson_id" json:"lesson_id"`
	Title            string   `db:"title" json:"title"`
	TimeLimitSeconds int      `db:"time_limit_seconds" json:"time_limit_seconds"` // 0: unlimited
	PassPercent      int      `db:"pass_percent" json:"pass_percent"`             // 0: no pass requirement
	AttemptsLimit    int      `db:"attempts_limit" json:"attempts_limit"`         // 0: unlimited
	LimitQuestions   null.Int `db:"limit_questions" json:"limit_questions"`       // null: all questions
	ShuffleQuestions bool     `db:"shuffle_questions" json:"shuffle_questions"`
	ShuffleChoices   bool     `db:"shuffle_choices" json:"shuffle_choices"`
	AdviceMidMin     int      `db:"advice_mid_min" json:"advice_mid_min"`
	AdviceHighMin    int      `db:"advice_high_min" json:"advice_high_min"`
	AdviceLow        string   `db:"advice_low" json:"advice_low"`
	AdviceMid        string   `db:"advice_mid" json:"advice_mid"`
	AdviceHigh       string   `db:"advice_high" json:"advice_high"`
}

// NewQuiz returns a Quiz with the default settings.
func NewQuiz(lessonID int64) Quiz {
	return Quiz{
		LessonID:         lessonID,
		ShuffleQuestions: true,
		ShuffleChoices:   true,
		AdviceMidMin:     DefaultAdviceMidMin,
		AdviceHighMin:    DefaultAdviceHighMin,
		AdviceLow:        DefaultAdviceLow,
		AdviceMid:        DefaultAdviceMid,
		AdviceHigh:       DefaultAdviceHigh,
	}
}

func (q Quiz) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

type Question struct {
	ID          int64    `db:"id" json:"id"`
	QuizID      int64    `db:"quiz_id" json:"quiz_id"`
	Order       int      `db:"order" json:"order"`
	Text        string   `db:"text" json:"text"`
	Type        string   `db:"qtype" json:"qtype"`
	Points      int      `db:"points" json:"points"`
	Image       string   `db:"image" json:"image,omitempty"`
	Explanation string   `db:"explanation" json:"explanation,omitempty"`
	Choices     []Choice `json:"choices"`
}

// CorrectChoiceIDs returns the set of the correct choices IDs.
func (q Question) CorrectChoiceIDs() map[int64]struct{} {
	ids := make(map[int64]struct{})
	for _, c := range q.Choices {
		if c.IsCorrect {
			ids[c.ID] = struct{}{}
		}
	}
	return ids
}

type Choice struct {
	ID         int64  `db:"id" json:"id"`
	QuestionID int64  `db:"question_id" json:"question_id"`
	Text       string `db:"text" json:"text"`
	IsCorrect  bool   `db:"is_correct" json:"is_correct"`
}

// Attempt is one learner's submitted quiz. It is immutable once created, except for FinishedAt.
type Attempt struct {
	ID           int64          `json:"id"`
	UserID       string         `json:"user_id"`
	LessonID     int64          `json:"lesson_id"`
	QuizID       int64          `json:"quiz_id"`
	CreatedAt    time.Time      `json:"created_at"`
	FinishedAt   null.Time      `json:"finished_at"`
	PointsTotal  float64        `json:"points_total"`
	PointsGained float64        `json:"points_gained"`
	Percent      float64        `json:"percent"`
	QuestionIDs  []int64        `json:"question_ids"`
	Answers      datatypes.JSON `json:"answers"`
	AdviceShown  string         `json:"advice_shown"`
	Passed       bool           `json:"passed"`
	Late         bool           `json:"late"`
}

// AttemptFilter filters attempts; zero fields are ignored.
type AttemptFilter struct {
	UserID   string `query:"user_id"`
	QuizID   int64  `query:"quiz_id"`
	LessonID int64  `query:"lesson_id"`
}

// View

// QuestionView is a question as presented to the learner: no correctness flags.
type QuestionView struct {
	ID      int64        `json:"id"`
	Order   int          `json:"order"`
	Text    string       `json:"text"`
	Type    string       `json:"qtype"`
	Points  int          `json:"points"`
	Image   string       `json:"image,omitempty"`
	Choices []ChoiceView `json:"choices"`
}

type ChoiceView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Inputs

type QuizInput struct {
	Title            string `json:"title" validate:"max=200"`
	TimeLimit        string `json:"time_limit" validate:"omitempty,isoduration"` // ISO 8601, e.g. PT15M
	PassPercent      int    `json:"pass_percent" validate:"gte=0,lte=100"`
	AttemptsLimit    int    `json:"attempts_limit" validate:"gte=0"`
	LimitQuestions   *int   `json:"limit_questions" validate:"omitempty,gte=1"`
	ShuffleQuestions *bool  `json:"shuffle_questions"`
	ShuffleChoices   *bool  `json:"shuffle_choices"`
	AdviceMidMin     *int   `json:"advice_mid_min" validate:"omitempty,gte=0,lte=100"`
	AdviceHighMin    *int   `json:"advice_high_min" validate:"omitempty,gte=0,lte=100"`
	AdviceLow        string `json:"advice_low"`
	AdviceMid        string `json:"advice_mid"`
	AdviceHigh       string `json:"advice_high"`
}

type QuestionInput struct {
	Order       int           `json:"order" validate:"gte=0"`
	Text        string        `json:"text" validate:"notblank"`
	Type        string        `json:"qtype" validate:"required,oneof=sc mc txt"`
	Points      *int          `json:"points" validate:"omitempty,gte=0"`
	Explanation string        `json:"explanation"`
	Choices     []ChoiceInput `json:"choices" validate:"dive"`
	Image       string        `json:"-"`
}

type ChoiceInput struct {
	Text      string `json:"text" validate:"required,max=300"`
	IsCorrect bool   `json:"is_correct"`
}

func (in *QuestionInput) Clean() {
	in.Text = core.CleanString(in.Text)
	in.Type = core.CleanString(in.Type, true /* lower */)
	if in.Type == "" {
		in.Type = TypeSingle
	}
	for i := range in.Choices {
		in.Choices[i].Text = core.CleanString(in.Choices[i].Text)
	}
}

// Validate checks the choices against the question type.
func (in QuestionInput) Validate() error {
	var correct int
	for _, c := range in.Choices {
		if c.IsCorrect {
			correct++
		}
	}
	switch in.Type {
	case TypeSingle:
		if correct != 1 {
			return core.NewFieldError("choices", "single choice questions require exactly 1 correct choice")
		}
	case TypeMulti:
		if correct < 1 {
			return core.NewFieldError("choices", "multiple choice questions require at least 1 correct choice")
		}
	case TypeText:
		if len(in.Choices) > 0 {
			return core.NewFieldError("choices", "text questions do not have choices")
		}
	}
	return nil
}
