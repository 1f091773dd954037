package sqlxrepos

import (
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/catalog"
)

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

func TestTrapConstraintErr(t *testing.T) {
	other := errors.New("boom")
	tests := []struct {
		name    string
		err     error
		want    error
		wrapped bool
	}{
		{name: "nil", err: nil, want: nil},
		{name: "no rows", err: sql.ErrNoRows, want: catalog.ErrNotFound},
		{name: "wrapped no rows", err: errors.Wrap(sql.ErrNoRows, "scanning"), want: catalog.ErrNotFound},
		{name: "slug", err: &pq.Error{Code: uniqueViolation, Constraint: "courses_slug_key"}, want: catalog.ErrSlugExists},
		{name: "order", err: &pq.Error{Code: uniqueViolation, Constraint: "lessons_section_id_order_key"}, want: catalog.ErrOrderExists},
		{name: "missing parent", err: &pq.Error{Code: foreignKeyViolation, Constraint: "lessons_section_id_fkey"}, want: catalog.ErrNotFound},
		{name: "unknown unique", err: &pq.Error{Code: uniqueViolation, Constraint: "other_key"}, wrapped: true},
		{name: "other", err: other, want: other, wrapped: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trapConstraintErr(tt.err, catalog.ErrNotFound, catalogUniques, "doing")
			if tt.wrapped {
				assert.Equal(t, tt.err, errors.Cause(got))
				assert.Contains(t, got.Error(), "doing: ")
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMustAffect(t *testing.T) {
	assert.NoError(t, mustAffect(fakeResult(1), nil, catalog.ErrNotFound, "deleting"))
	assert.Equal(t, catalog.ErrNotFound, mustAffect(fakeResult(0), nil, catalog.ErrNotFound, "deleting"))
	assert.EqualError(t, mustAffect(nil, errors.New("boom"), catalog.ErrNotFound, "deleting"), "deleting: boom")
}

func TestConds(t *testing.T) {
	var c conds
	assert.Equal(t, "", c.where())

	c.add("a = ?", 1)
	c.add("(b ILIKE ? OR c ILIKE ?)", "x", "y")
	assert.Equal(t, " WHERE a = ? AND (b ILIKE ? OR c ILIKE ?)", c.where())
	assert.Equal(t, []interface{}{1, "x", "y"}, c.args)
}

func TestOrderBy(t *testing.T) {
	tests := []struct {
		name     string
		ordering []core.DBOrdering
		want     string
	}{
		{name: "none", want: " ORDER BY c.id"},
		{
			name:     "mapped",
			ordering: []core.DBOrdering{{Field: "price", Ascending: true}, {Field: "created_at"}},
			want:     " ORDER BY c.price ASC, c.created_at DESC, c.id",
		},
		{
			name:     "unknown fields are dropped",
			ordering: []core.DBOrdering{{Field: "id; DROP TABLE courses"}, {Field: "title", Ascending: true}},
			want:     " ORDER BY c.title ASC, c.id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orderBy(tt.ordering, courseOrderings, "c.id"))
		})
	}
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%design%", likePattern("design"))
	assert.Equal(t, `%100\%\_off%`, likePattern("100%_off"))
}
