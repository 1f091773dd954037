package database

import (
	"io/fs"
	"net/url"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darslik/core"
)

func TestMigrationsFS(t *testing.T) {
	files, err := fs.Glob(MigrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, name := range files {
		t.Run(name, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(name, "migrations/0000"), "unexpected migration name")

			data, err := fs.ReadFile(MigrationsFS, name)
			require.NoError(t, err)
			sql := string(data)
			up := strings.Index(sql, "-- +goose Up")
			down := strings.Index(sql, "-- +goose Down")
			assert.Equal(t, 0, up)
			assert.Greater(t, down, up)
		})
	}
}

func TestDSN(t *testing.T) {
	conf := core.DatabaseConfig{
		Engine:        "postgres",
		Host:          "db.local",
		Port:          5433,
		User:          "darslik",
		Password:      "p@ss word",
		AdminUser:     "root",
		AdminPassword: "toor",
	}

	tests := []struct {
		name       string
		disableTLS bool
		admin      bool
		noAdmin    bool
		wantUser   string
		wantSSL    string
	}{
		{name: "app user", wantUser: "darslik", wantSSL: "require"},
		{name: "admin", admin: true, wantUser: "root", wantSSL: "require"},
		{name: "admin not configured", admin: true, noAdmin: true, wantUser: "darslik", wantSSL: "require"},
		{name: "no TLS", disableTLS: true, wantUser: "darslik", wantSSL: "disable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := conf
			c.DisableTLS = tt.disableTLS
			if tt.noAdmin {
				c.AdminUser = ""
			}

			u, err := url.Parse(dsn(c, "darslik", tt.admin))
			require.NoError(t, err)
			assert.Equal(t, "postgres", u.Scheme)
			assert.Equal(t, "db.local:5433", u.Host)
			assert.Equal(t, "/darslik", u.Path)
			assert.Equal(t, tt.wantUser, u.User.Username())
			assert.Equal(t, tt.wantSSL, u.Query().Get("sslmode"))
			assert.Equal(t, "utc", u.Query().Get("timezone"))
			if !tt.admin || tt.noAdmin {
				pwd, _ := u.User.Password()
				assert.Equal(t, "p@ss word", pwd)
			}
		})
	}
}

func TestOpen_unsupportedEngine(t *testing.T) {
	_, err := Open(&core.Config{Database: core.DatabaseConfig{Engine: "mysql"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedEngine))
}
