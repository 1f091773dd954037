package database

import (
	"context"
	"database/sql"
	"embed"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/trezcool/darslik/core"
)

const driverName = "postgres"

// MigrationsFS holds the goose migrations, under "migrations".
//go:embed migrations/*.sql
var MigrationsFS embed.FS

// ErrUnsupportedEngine is returned for any engine but postgres (and the "dummy" one, handled by the callers).
var ErrUnsupportedEngine = errors.New("unsupported database engine")

// dsn returns the connection URL of dbName. admin selects the admin credentials when they are set.
func dsn(conf core.DatabaseConfig, dbName string, admin bool) string {
	user := url.UserPassword(conf.User, conf.Password)
	if admin && conf.AdminUser != "" {
		user = url.UserPassword(conf.AdminUser, conf.AdminPassword)
	}

	q := make(url.Values)
	q.Set("sslmode", "require")
	if conf.DisableTLS {
		q.Set("sslmode", "disable")
	}
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   driverName,
		User:     user,
		Host:     conf.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func connect(ctx context.Context, conf core.DatabaseConfig, dbName string, admin bool) (*sql.DB, error) {
	if conf.Engine != driverName {
		return nil, errors.Wrapf(ErrUnsupportedEngine, "%q", conf.Engine)
	}
	db, err := sql.Open(driverName, dsn(conf, dbName, admin))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Open connects to the app database and waits for it to answer.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := connect(context.Background(), conf.Database, conf.Database.Name, false)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(conf.Database.MaxOpenConns)
	db.SetMaxIdleConns(conf.Database.MaxIdleConns)
	db.SetConnMaxLifetime(conf.Database.ConnMaxLifetime)
	return sqlx.NewDb(db, driverName), nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sql.DB) error {
	const maxAttempts = 30

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping")
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

func exists(ctx context.Context, db *sql.DB, query string, args ...interface{}) (bool, error) {
	var found bool
	err := db.QueryRowContext(ctx, "SELECT EXISTS ("+query+")", args...).Scan(&found)
	return found, err
}

// CreateIfNotExist creates the app role (as admin) then the app database (as the app role).
func CreateIfNotExist(conf *core.Config) error {
	ctx := context.Background()
	dbConf := conf.Database

	if dbConf.User != "" {
		admin, err := connect(ctx, dbConf, "postgres", true)
		if err != nil {
			return errors.Wrap(err, "connecting as admin")
		}
		//goland:noinspection GoUnhandledErrorResult
		defer admin.Close()

		found, err := exists(ctx, admin, "SELECT 1 FROM pg_roles WHERE rolname = $1", dbConf.User)
		if err != nil {
			return errors.Wrap(err, "checking app user")
		}
		if !found {
			// CREATE USER does not take bind parameters
			q := "CREATE USER " + pq.QuoteIdentifier(dbConf.User) + " CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(dbConf.Password)
			if _, err = admin.ExecContext(ctx, q); err != nil {
				return errors.Wrap(err, "creating app user")
			}
		}
	}

	db, err := connect(ctx, dbConf, "postgres", false)
	if err != nil {
		return errors.Wrap(err, "connecting as app user")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer db.Close()

	found, err := exists(ctx, db, "SELECT 1 FROM pg_database WHERE datname = $1", dbConf.Name)
	if err != nil {
		return errors.Wrap(err, "checking database")
	}
	if !found {
		if _, err = db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbConf.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

func Migrate(db *sql.DB) error {
	if err := goose.RunFS("up", db, MigrationsFS, "migrations"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
