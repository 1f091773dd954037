package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/darslik/core/library"
	"github.com/trezcool/darslik/core/testimonial"
)

type testimonialRepository struct {
	db *DB
}

var _ testimonial.Repository = (*testimonialRepository)(nil) // interface compliance check

func NewTestimonialRepository(db *DB) *testimonialRepository {
	return &testimonialRepository{db: db}
}

func (repo *testimonialRepository) CreateTestimonial(_ context.Context, t testimonial.Testimonial) (testimonial.Testimonial, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	t.ID = repo.db.nextPK()
	repo.db.testimonials[t.ID] = &t
	return t, nil
}

func (repo *testimonialRepository) QueryTestimonials(_ context.Context, publishedOnly bool, limit int) ([]testimonial.Testimonial, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ts := make([]testimonial.Testimonial, 0)
	for _, t := range repo.db.testimonials {
		if !publishedOnly || t.IsPublished {
			ts = append(ts, *t)
		}
	}
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Order != ts[j].Order {
			return ts[i].Order < ts[j].Order
		}
		return ts[i].ID < ts[j].ID
	})
	if limit > 0 && len(ts) > limit {
		ts = ts[:limit]
	}
	return ts, nil
}

func (repo *testimonialRepository) SetPublished(_ context.Context, published bool, ids ...int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		if t, ok := repo.db.testimonials[id]; ok {
			t.IsPublished = published
		}
	}
	return nil
}

func (repo *testimonialRepository) DeleteTestimonials(_ context.Context, ids ...int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.testimonials, id)
	}
	return nil
}

type libraryRepository struct {
	db *DB
}

var _ library.Repository = (*libraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *DB) *libraryRepository {
	return &libraryRepository{db: db}
}

func (repo *libraryRepository) CreateItem(_ context.Context, it library.Item) (library.Item, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	it.ID = repo.db.nextPK()
	repo.db.libItems[it.ID] = &it
	return it, nil
}

func (repo *libraryRepository) GetItem(_ context.Context, id int64) (library.Item, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if it, ok := repo.db.libItems[id]; ok {
		return *it, nil
	}
	return library.Item{}, library.ErrNotFound
}

func (repo *libraryRepository) QueryItems(_ context.Context, publishedOnly bool) ([]library.Item, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	items := make([]library.Item, 0)
	for _, it := range repo.db.libItems {
		if !publishedOnly || it.IsPublished {
			items = append(items, *it)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

func (repo *libraryRepository) UpdateItem(_ context.Context, it library.Item) (library.Item, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.libItems[it.ID]; !ok {
		return library.Item{}, library.ErrNotFound
	}
	repo.db.libItems[it.ID] = &it
	return it, nil
}

func (repo *libraryRepository) DeleteItem(_ context.Context, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.libItems[id]; !ok {
		return library.ErrNotFound
	}
	delete(repo.db.libItems, id)
	return nil
}
