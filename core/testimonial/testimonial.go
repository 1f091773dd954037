// Package testimonial manages learners' feedback shown on the site once moderated.
package testimonial

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
)

const (
	photosFolder = "testimonials"
	maxPhotoSize = 5 << 20
	minPhotoSide = 100
)

var ErrNotFound = errors.New("testimonial not found")

type Testimonial struct {
	ID          int64     `db:"id" json:"id"`
	FullName    string    `db:"full_name" json:"full_name"`
	Role        string    `db:"role" json:"role"`
	Quote       string    `db:"quote" json:"quote"`
	Photo       string    `db:"photo" json:"photo,omitempty"`
	Rating      int       `db:"rating" json:"rating"`
	IsPublished bool      `db:"is_published" json:"is_published"`
	Order       int       `db:"order" json:"order"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type NewTestimonial struct {
	FullName string       `json:"full_name" form:"full_name" validate:"required,max=120"`
	Role     string       `json:"role" form:"role" validate:"max=120"`
	Quote    string       `json:"quote" form:"quote" validate:"notblank"`
	Rating   *int         `json:"rating" form:"rating" validate:"required,gte=1,lte=5"`
	Photo    *core.Upload `json:"-" form:"-"`
}

func (nt *NewTestimonial) Clean() {
	nt.FullName = core.CleanString(nt.FullName)
	nt.Role = core.CleanString(nt.Role)
	nt.Quote = core.CleanString(nt.Quote)
}

type Repository interface {
	CreateTestimonial(ctx context.Context, t Testimonial) (Testimonial, error)
	// QueryTestimonials returns testimonials ordered by (order, id); limit 0: all.
	QueryTestimonials(ctx context.Context, publishedOnly bool, limit int) ([]Testimonial, error)
	SetPublished(ctx context.Context, published bool, ids ...int64) error
	DeleteTestimonials(ctx context.Context, ids ...int64) error
}

type Service struct {
	repo   Repository
	media  core.MediaStorage
	images core.ImageProcessor
}

func NewService(repo Repository, media core.MediaStorage, images core.ImageProcessor) *Service {
	return &Service{repo: repo, media: media, images: images}
}

// Submit stores a testimonial for moderation: it is never published right away.
func (svc *Service) Submit(ctx context.Context, validate *validator.Validate, nt NewTestimonial) (Testimonial, error) {
	nt.Clean()
	if err := validate.Struct(nt); err != nil {
		return Testimonial{}, err
	}

	t := Testimonial{
		FullName:  nt.FullName,
		Role:      nt.Role,
		Quote:     nt.Quote,
		Rating:    *nt.Rating,
		Order:     1,
		CreatedAt: time.Now().UTC(),
	}
	if nt.Photo != nil {
		path, err := svc.savePhoto(ctx, *nt.Photo)
		if err != nil {
			return Testimonial{}, err
		}
		t.Photo = path
	}

	created, err := svc.repo.CreateTestimonial(ctx, t)
	if err != nil {
		if t.Photo != "" {
			_ = svc.media.Delete(ctx, t.Photo)
		}
		return Testimonial{}, errors.Wrap(err, "creating testimonial")
	}
	return created, nil
}

func (svc *Service) savePhoto(ctx context.Context, up core.Upload) (string, error) {
	if up.Size > maxPhotoSize {
		return "", core.NewFieldError("photo", fmt.Sprintf("the photo must be smaller than %d MB", maxPhotoSize>>20))
	}
	rc, err := up.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening photo")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer rc.Close()

	img, err := svc.images.Process(io.LimitReader(rc, maxPhotoSize+1), up.Filename)
	if err != nil {
		return "", core.NewFieldError("photo", "invalid image file")
	}
	if img.SourceWidth < minPhotoSide || img.SourceHeight < minPhotoSide {
		return "", core.NewFieldError("photo", fmt.Sprintf("the photo is too small (at least %dx%d)", minPhotoSide, minPhotoSide))
	}
	path, err := svc.media.Save(ctx, photosFolder, img.Filename, img.ContentType, bytes.NewReader(img.Data))
	return path, errors.Wrap(err, "saving photo")
}

// ListPublished returns up to limit published testimonials (0: all).
func (svc *Service) ListPublished(ctx context.Context, limit int) ([]Testimonial, error) {
	return svc.repo.QueryTestimonials(ctx, true, limit)
}

func (svc *Service) ListAll(ctx context.Context) ([]Testimonial, error) {
	return svc.repo.QueryTestimonials(ctx, false, 0)
}

func (svc *Service) Publish(ctx context.Context, ids ...int64) error {
	return svc.repo.SetPublished(ctx, true, ids...)
}

func (svc *Service) Unpublish(ctx context.Context, ids ...int64) error {
	return svc.repo.SetPublished(ctx, false, ids...)
}

func (svc *Service) Delete(ctx context.Context, ids ...int64) error {
	return svc.repo.DeleteTestimonials(ctx, ids...)
}
