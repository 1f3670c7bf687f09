package sqlite

import (
	"context"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/iamwavecut/ngmod/internal/db/relational"
)

const dsnOptions = "?_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// NewSQLiteClient opens (creating if needed) dir/file and brings its schema up to date.
func NewSQLiteClient(ctx context.Context, dir, file string) (*relational.Client, error) {
	dbx, err := sqlx.ConnectContext(ctx, "sqlite", filepath.Join(dir, file)+dsnOptions)
	if err != nil {
		return nil, errors.Wrap(err, "cant open db")
	}
	// Transactions must not wait on a second connection of the same file.
	dbx.SetMaxOpenConns(1)

	if _, err := relational.Migrate(dbx, "sqlite3", "migrations/sqlite"); err != nil {
		_ = dbx.Close()
		return nil, err
	}
	return relational.New(dbx), nil
}
