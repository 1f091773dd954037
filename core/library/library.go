// Package library is the document archive described with Dublin Core / MARC 21 metadata.
package library

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
)

// Metadata standards
const (
	StandardDC     = "DC"
	StandardMARC21 = "MARC21"
)

const (
	filesFolder  = "library"
	thumbsFolder = "library/thumbs"
)

var ErrNotFound = errors.New("library item not found")

type Item struct {
	ID          int64     `db:"id" json:"id"`
	Standard    string    `db:"standard" json:"standard"`
	Title       string    `db:"title" json:"title"`
	File        string    `db:"file" json:"file,omitempty"`
	Link        string    `db:"link" json:"link,omitempty"`
	Thumb       string    `db:"thumb" json:"thumb,omitempty"`
	DCCreator   string    `db:"dc_creator" json:"dc_creator"`
	DCDate      string    `db:"dc_date" json:"dc_date"`
	DCFormat    string    `db:"dc_format" json:"dc_format"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	IsPublished bool      `db:"is_published" json:"is_published"`
}

// DisplayYear returns the year part of DCDate ("2019-05-01" -> "2019").
func (it Item) DisplayYear() string {
	return strings.SplitN(it.DCDate, "-", 2)[0]
}

// Href returns the file URL, else the link, else "#".
func (it Item) Href(media core.MediaStorage) string {
	if it.File != "" {
		return media.URL(it.File)
	}
	if it.Link != "" {
		return it.Link
	}
	return "#"
}

// ItemView is an Item with its display fields.
type ItemView struct {
	Item
	DisplayYear string `json:"display_year"`
	Href        string `json:"href"`
	ThumbURL    string `json:"thumb_url,omitempty"`
}

type NewItem struct {
	Standard    string       `json:"standard" form:"standard" validate:"omitempty,oneof=DC MARC21"`
	Title       string       `json:"title" form:"title" validate:"required,max=500"`
	Link        string       `json:"link" form:"link" validate:"omitempty,url"`
	DCCreator   string       `json:"dc_creator" form:"dc_creator" validate:"max=500"`
	DCDate      string       `json:"dc_date" form:"dc_date" validate:"max=50"`
	DCFormat    string       `json:"dc_format" form:"dc_format" validate:"max=200"`
	IsPublished *bool        `json:"is_published" form:"is_published"`
	File        *core.Upload `json:"-" form:"-"`
	Thumb       *core.Upload `json:"-" form:"-"`
}

type Repository interface {
	CreateItem(ctx context.Context, it Item) (Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	// QueryItems returns items newest first.
	QueryItems(ctx context.Context, publishedOnly bool) ([]Item, error)
	UpdateItem(ctx context.Context, it Item) (Item, error)
	DeleteItem(ctx context.Context, id int64) error
}

type Service struct {
	repo  Repository
	media core.MediaStorage
}

func NewService(repo Repository, media core.MediaStorage) *Service {
	return &Service{repo: repo, media: media}
}

func (svc *Service) View(it Item) ItemView {
	return ItemView{
		Item:        it,
		DisplayYear: it.DisplayYear(),
		Href:        it.Href(svc.media),
		ThumbURL:    svc.media.URL(it.Thumb),
	}
}

func (svc *Service) ListPublished(ctx context.Context) ([]ItemView, error) {
	return svc.list(ctx, true)
}

// ListAll includes the unpublished items, for the back office.
func (svc *Service) ListAll(ctx context.Context) ([]ItemView, error) {
	return svc.list(ctx, false)
}

func (svc *Service) list(ctx context.Context, publishedOnly bool) ([]ItemView, error) {
	items, err := svc.repo.QueryItems(ctx, publishedOnly)
	if err != nil {
		return nil, errors.Wrap(err, "querying library items")
	}
	views := make([]ItemView, len(items))
	for i, it := range items {
		views[i] = svc.View(it)
	}
	return views, nil
}

func (ni *NewItem) clean() {
	ni.Title = core.CleanString(ni.Title)
	ni.Link = core.CleanString(ni.Link)
	ni.DCCreator = core.CleanString(ni.DCCreator)
	ni.DCDate = core.CleanString(ni.DCDate)
	ni.DCFormat = core.CleanString(ni.DCFormat)
	if ni.Standard == "" {
		ni.Standard = StandardDC
	}
}

var errFileOrLink = core.NewValidationError(errors.New("a file or a link is required"),
	core.FieldError{Field: "file", Error: "provide at least a file or a link"},
	core.FieldError{Field: "link", Error: "provide at least a file or a link"},
)

// Create validates and stores a library item: a file or a link is required.
func (svc *Service) Create(ctx context.Context, validate *validator.Validate, ni NewItem) (Item, error) {
	ni.clean()
	if err := validate.Struct(ni); err != nil {
		return Item{}, err
	}
	if ni.File == nil && ni.Link == "" {
		return Item{}, errFileOrLink
	}

	it := Item{
		Standard:    ni.Standard,
		Title:       ni.Title,
		Link:        ni.Link,
		DCCreator:   ni.DCCreator,
		DCDate:      ni.DCDate,
		DCFormat:    ni.DCFormat,
		CreatedAt:   time.Now().UTC(),
		IsPublished: ni.IsPublished == nil || *ni.IsPublished,
	}
	if err := svc.saveUploads(ctx, &it, ni); err != nil {
		return Item{}, err
	}

	created, err := svc.repo.CreateItem(ctx, it)
	if err != nil {
		_ = svc.media.Delete(ctx, it.File, it.Thumb)
		return Item{}, errors.Wrap(err, "creating library item")
	}
	return created, nil
}

// Update replaces the metadata of an item. The file and the thumbnail are only replaced when
// uploaded again, and IsPublished only when set.
func (svc *Service) Update(ctx context.Context, validate *validator.Validate, id int64, ni NewItem) (Item, error) {
	old, err := svc.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	ni.clean()
	if err = validate.Struct(ni); err != nil {
		return Item{}, err
	}
	if ni.File == nil && old.File == "" && ni.Link == "" {
		return Item{}, errFileOrLink
	}

	it := old
	it.Standard = ni.Standard
	it.Title = ni.Title
	it.Link = ni.Link
	it.DCCreator = ni.DCCreator
	it.DCDate = ni.DCDate
	it.DCFormat = ni.DCFormat
	if ni.IsPublished != nil {
		it.IsPublished = *ni.IsPublished
	}
	it.File, it.Thumb = "", ""
	if err = svc.saveUploads(ctx, &it, ni); err != nil {
		return Item{}, err
	}
	newFile, newThumb := it.File, it.Thumb
	if newFile == "" {
		it.File = old.File
	}
	if newThumb == "" {
		it.Thumb = old.Thumb
	}

	updated, err := svc.repo.UpdateItem(ctx, it)
	if err != nil {
		_ = svc.media.Delete(ctx, newFile, newThumb)
		return Item{}, errors.Wrap(err, "updating library item")
	}
	var replaced []string
	if newFile != "" {
		replaced = append(replaced, old.File)
	}
	if newThumb != "" {
		replaced = append(replaced, old.Thumb)
	}
	_ = svc.media.Delete(ctx, replaced...)
	return updated, nil
}

// saveUploads stores the uploads of ni into it.File and it.Thumb.
func (svc *Service) saveUploads(ctx context.Context, it *Item, ni NewItem) error {
	var err error
	if ni.File != nil {
		if it.File, err = svc.save(ctx, filesFolder, *ni.File); err != nil {
			return err
		}
	}
	if ni.Thumb != nil {
		if it.Thumb, err = svc.save(ctx, thumbsFolder, *ni.Thumb); err != nil {
			_ = svc.media.Delete(ctx, it.File)
			return err
		}
	}
	return nil
}

func (svc *Service) save(ctx context.Context, folder string, up core.Upload) (string, error) {
	rc, err := up.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening upload")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer rc.Close()
	path, err := svc.media.Save(ctx, folder, up.Filename, up.ContentType, rc)
	return path, errors.Wrap(err, "saving upload")
}

func (svc *Service) Delete(ctx context.Context, id int64) error {
	it, err := svc.repo.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.repo.DeleteItem(ctx, id); err != nil {
		return errors.Wrap(err, "deleting library item")
	}
	_ = svc.media.Delete(ctx, it.File, it.Thumb)
	return nil
}
