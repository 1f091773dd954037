package catalog

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/trezcool/darslik/core"
)

// Lesson kinds
const (
	KindVideo = "video"
	KindText  = "text"
	KindPDF   = "pdf"
	KindDoc   = "doc"
	KindTest  = "test"
)

var LessonKinds = []string{KindVideo, KindText, KindPDF, KindDoc, KindTest}

type Category struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Slug        string `db:"slug" json:"slug"`
	Image       string `db:"image" json:"image"`
	CourseCount int    `db:"course_count" json:"course_count"`
}

type Instructor struct {
	ID        int64  `db:"id" json:"id"`
	FullName  string `db:"full_name" json:"full_name"`
	Title     string `db:"title" json:"title"`
	Photo     string `db:"photo" json:"photo"`
	Facebook  string `db:"facebook" json:"facebook"`
	Twitter   string `db:"twitter" json:"twitter"`
	Instagram string `db:"instagram" json:"instagram"`
}

type Course struct {
	ID            int64       `json:"id"`
	CategoryID    int64       `json:"category_id,omitempty"`
	InstructorID  int64       `json:"instructor_id,omitempty"`
	Title         string      `json:"title"`
	Slug          string      `json:"slug"`
	ShortDesc     string      `json:"short_desc"`
	Image         string      `json:"image"`
	Price         float64     `json:"price"`
	Rating        float64     `json:"rating"`
	DurationHours int         `json:"duration_hours"`
	StudentsCount int         `json:"students_count"`
	IsFeatured    bool        `json:"is_featured"`
	CreatedAt     time.Time   `json:"created_at"`
	Category      *Category   `json:"category,omitempty"`
	Instructor    *Instructor `json:"instructor,omitempty"`
}

func (c Course) DurationMinutes() int { return c.DurationHours * 60 }

type Section struct {
	ID       int64    `db:"id" json:"id"`
	CourseID int64    `db:"course_id" json:"course_id"`
	Title    string   `db:"title" json:"title"`
	Order    int      `db:"order" json:"order"`
	Lessons  []Lesson `json:"lessons"`
}

type Lesson struct {
	ID              int64  `db:"id" json:"id"`
	SectionID       int64  `db:"section_id" json:"section_id"`
	Order           int    `db:"order" json:"order"`
	Kind            string `db:"kind" json:"kind"`
	Title           string `db:"title" json:"title"`
	Text            string `db:"text" json:"text,omitempty"`
	VideoURL        string `db:"video_url" json:"video_url,omitempty"`
	VideoFile       string `db:"video_file" json:"video_file,omitempty"`
	DocumentFile    string `db:"document_file" json:"document_file,omitempty"`
	DurationMinutes int    `db:"duration_minutes" json:"duration_minutes"`
}

// Validate checks that the content required by the lesson kind is present.
func (l Lesson) Validate() error {
	var flds []core.FieldError
	switch l.Kind {
	case KindVideo:
		if l.VideoURL == "" && l.VideoFile == "" {
			flds = append(flds, core.FieldError{Field: "video_url", Error: "a video link or a video file is required"})
		}
	case KindText:
		if strings.TrimSpace(l.Text) == "" {
			flds = append(flds, core.FieldError{Field: "text", Error: "text lessons require a text"})
		}
	case KindPDF:
		if l.DocumentFile == "" {
			flds = append(flds, core.FieldError{Field: "document_file", Error: "PDF lessons require a file"})
		} else if ext := strings.ToLower(filepath.Ext(l.DocumentFile)); ext != ".pdf" {
			flds = append(flds, core.FieldError{Field: "document_file", Error: "only .pdf files are allowed"})
		}
	case KindDoc:
		if l.DocumentFile == "" {
			flds = append(flds, core.FieldError{Field: "document_file", Error: "DOC/DOCX lessons require a file"})
		} else if ext := strings.ToLower(filepath.Ext(l.DocumentFile)); ext != ".doc" && ext != ".docx" {
			flds = append(flds, core.FieldError{Field: "document_file", Error: "only .doc or .docx files are allowed"})
		}
	case KindTest:
	default:
		flds = append(flds, core.FieldError{Field: "kind", Error: "invalid lesson kind"})
	}
	if l.Order < 0 {
		flds = append(flds, core.FieldError{Field: "order", Error: "order must be greater than or equal to 0"})
	}
	if strings.TrimSpace(l.Title) == "" {
		flds = append(flds, core.FieldError{Field: "title", Error: "this field is required"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

type HomepageSlide struct {
	ID               int64  `db:"id" json:"id"`
	Title            string `db:"title" json:"title"`
	Subtitle         string `db:"subtitle" json:"subtitle"`
	Description      string `db:"description" json:"description"`
	Image            string `db:"image" json:"image"`
	CTAPrimaryText   string `db:"cta_primary_text" json:"cta_primary_text"`
	CTAPrimaryURL    string `db:"cta_primary_url" json:"cta_primary_url"`
	CTASecondaryText string `db:"cta_secondary_text" json:"cta_secondary_text"`
	CTASecondaryURL  string `db:"cta_secondary_url" json:"cta_secondary_url"`
	IsActive         bool   `db:"is_active" json:"is_active"`
	Order            int    `db:"order" json:"order"`
}

// Inputs

type NewCategory struct {
	Name  string `json:"name" validate:"required,max=120"`
	Slug  string `json:"slug" validate:"omitempty,slug,max=140"`
	Image string `json:"-"`
}

func (nc *NewCategory) Clean() {
	nc.Name = core.CleanString(nc.Name)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	if nc.Slug == "" {
		nc.Slug = core.Slugify(nc.Name)
	}
}

type NewInstructor struct {
	FullName  string `json:"full_name" validate:"required,max=120"`
	Title     string `json:"title" validate:"max=120"`
	Facebook  string `json:"facebook" validate:"omitempty,url"`
	Twitter   string `json:"twitter" validate:"omitempty,url"`
	Instagram string `json:"instagram" validate:"omitempty,url"`
	Photo     string `json:"-"`
}

func (ni *NewInstructor) Clean() {
	ni.FullName = core.CleanString(ni.FullName)
	ni.Title = core.CleanString(ni.Title)
}

func (ni NewInstructor) apply(ins Instructor) Instructor {
	ins.FullName = ni.FullName
	ins.Title = ni.Title
	ins.Facebook = ni.Facebook
	ins.Twitter = ni.Twitter
	ins.Instagram = ni.Instagram
	if ni.Photo != "" {
		ins.Photo = ni.Photo
	}
	return ins
}

type CourseInput struct {
	CategoryID    int64   `json:"category_id"`
	InstructorID  int64   `json:"instructor_id"`
	Title         string  `json:"title" validate:"required,max=200"`
	Slug          string  `json:"slug" validate:"omitempty,slug,max=240"`
	ShortDesc     string  `json:"short_desc"`
	Price         float64 `json:"price" validate:"gte=0"`
	Rating        float64 `json:"rating" validate:"gte=0,lte=5"`
	DurationHours int     `json:"duration_hours" validate:"gte=0"`
	StudentsCount int     `json:"students_count" validate:"gte=0"`
	IsFeatured    bool    `json:"is_featured"`
	Image         string  `json:"-"`
}

func (in *CourseInput) Clean() {
	in.Title = core.CleanString(in.Title)
	in.Slug = core.CleanString(in.Slug, true /* lower */)
	if in.Slug == "" {
		in.Slug = core.Slugify(in.Title)
	}
}

type SectionInput struct {
	Title string `json:"title" validate:"required,max=200"`
	Order int    `json:"order" validate:"gte=0"`
}

type LessonInput struct {
	Order           int    `json:"order" validate:"gte=0"`
	Kind            string `json:"kind" validate:"required,oneof=video text pdf doc test"`
	Title           string `json:"title" validate:"required,max=220"`
	Text            string `json:"text"`
	VideoURL        string `json:"video_url" validate:"omitempty,url"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
	VideoFile       string `json:"-"`
	DocumentFile    string `json:"-"`
}

type NewSlide struct {
	Title            string `json:"title" validate:"required,max=150"`
	Subtitle         string `json:"subtitle" validate:"max=150"`
	Description      string `json:"description"`
	CTAPrimaryText   string `json:"cta_primary_text" validate:"max=40"`
	CTAPrimaryURL    string `json:"cta_primary_url" validate:"max=200"`
	CTASecondaryText string `json:"cta_secondary_text" validate:"max=40"`
	CTASecondaryURL  string `json:"cta_secondary_url" validate:"max=200"`
	IsActive         *bool  `json:"is_active"`
	Order            int    `json:"order" validate:"gte=0"`
	Image            string `json:"-"`
}

// CourseFilter holds the course list query parameters.
type CourseFilter struct {
	Q        string `query:"q"`
	Category string `query:"category"`
	Order    string `query:"order"`
	Page     int    `query:"page"`
}

type CoursePage struct {
	Courses  []Course      `json:"courses"`
	PageInfo core.PageInfo `json:"page_info"`
	Order    string        `json:"order"`
}
