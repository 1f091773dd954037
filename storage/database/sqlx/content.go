package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core/library"
	"github.com/trezcool/darslik/core/testimonial"
)

const (
	testimonialColumns = `id, full_name, role, quote, photo, rating, is_published, "order", created_at`
	libItemColumns     = "id, standard, title, file, link, thumb, dc_creator, dc_date, dc_format, created_at, is_published"
)

type testimonialRepository struct {
	db *sqlx.DB
}

var _ testimonial.Repository = (*testimonialRepository)(nil) // interface compliance check

func NewTestimonialRepository(db *sqlx.DB) *testimonialRepository {
	return &testimonialRepository{db: db}
}

func (repo testimonialRepository) CreateTestimonial(ctx context.Context, t testimonial.Testimonial) (testimonial.Testimonial, error) {
	var err error
	t.CreatedAt = t.CreatedAt.UTC()
	t.ID, err = insertReturningID(ctx, repo.db, `
		INSERT INTO testimonials (full_name, role, quote, photo, rating, is_published, "order", created_at)
		VALUES (:full_name, :role, :quote, :photo, :rating, :is_published, :order, :created_at)
		RETURNING id`,
		t)
	if err != nil {
		return testimonial.Testimonial{}, errors.Wrap(err, "inserting testimonial")
	}
	return t, nil
}

func (repo testimonialRepository) QueryTestimonials(ctx context.Context, publishedOnly bool, limit int) ([]testimonial.Testimonial, error) {
	q := "SELECT " + testimonialColumns + " FROM testimonials"
	if publishedOnly {
		q += " WHERE is_published"
	}
	q += ` ORDER BY "order", id`
	var args []interface{}
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}

	ts := make([]testimonial.Testimonial, 0)
	if err := repo.db.SelectContext(ctx, &ts, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying testimonials")
	}
	for i := range ts {
		ts[i].CreatedAt = ts[i].CreatedAt.UTC()
	}
	return ts, nil
}

func (repo testimonialRepository) SetPublished(ctx context.Context, published bool, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx,
		"UPDATE testimonials SET is_published = $1 WHERE id = ANY($2)", published, pq.Array(ids))
	return errors.Wrap(err, "publishing testimonials")
}

func (repo testimonialRepository) DeleteTestimonials(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, "DELETE FROM testimonials WHERE id = ANY($1)", pq.Array(ids))
	return errors.Wrap(err, "deleting testimonials")
}

type libraryRepository struct {
	db *sqlx.DB
}

var _ library.Repository = (*libraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *sqlx.DB) *libraryRepository {
	return &libraryRepository{db: db}
}

func (repo libraryRepository) CreateItem(ctx context.Context, it library.Item) (library.Item, error) {
	var err error
	it.CreatedAt = it.CreatedAt.UTC()
	it.ID, err = insertReturningID(ctx, repo.db, `
		INSERT INTO library_items (standard, title, file, link, thumb, dc_creator, dc_date, dc_format, created_at, is_published)
		VALUES (:standard, :title, :file, :link, :thumb, :dc_creator, :dc_date, :dc_format, :created_at, :is_published)
		RETURNING id`,
		it)
	if err != nil {
		return library.Item{}, errors.Wrap(err, "inserting library item")
	}
	return it, nil
}

func (repo libraryRepository) GetItem(ctx context.Context, id int64) (library.Item, error) {
	var it library.Item
	if err := repo.db.GetContext(ctx, &it, "SELECT "+libItemColumns+" FROM library_items WHERE id = $1", id); err != nil {
		return library.Item{}, trapNoRowsErr(err, library.ErrNotFound, "finding library item")
	}
	it.CreatedAt = it.CreatedAt.UTC()
	return it, nil
}

func (repo libraryRepository) QueryItems(ctx context.Context, publishedOnly bool) ([]library.Item, error) {
	q := "SELECT " + libItemColumns + " FROM library_items"
	if publishedOnly {
		q += " WHERE is_published"
	}
	items := make([]library.Item, 0)
	if err := repo.db.SelectContext(ctx, &items, q+" ORDER BY created_at DESC, id DESC"); err != nil {
		return nil, errors.Wrap(err, "querying library items")
	}
	for i := range items {
		items[i].CreatedAt = items[i].CreatedAt.UTC()
	}
	return items, nil
}

func (repo libraryRepository) UpdateItem(ctx context.Context, it library.Item) (library.Item, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE library_items SET
			standard = :standard, title = :title, file = :file, link = :link, thumb = :thumb,
			dc_creator = :dc_creator, dc_date = :dc_date, dc_format = :dc_format, is_published = :is_published
		WHERE id = :id`,
		it)
	if err = mustAffect(res, err, library.ErrNotFound, "updating library item"); err != nil {
		return library.Item{}, err
	}
	return it, nil
}

func (repo libraryRepository) DeleteItem(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM library_items WHERE id = $1", id)
	return mustAffect(res, err, library.ErrNotFound, "deleting library item")
}
