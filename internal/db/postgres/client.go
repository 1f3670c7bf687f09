package postgres

import (
	"context"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/db/relational"
)

type Options struct {
	URL          string
	MaxOpenConns int
	// Migrate applies the embedded schema. The shared dashboard database is
	// normally migrated elsewhere, so this stays off in production.
	Migrate bool
}

func NewPostgresClient(ctx context.Context, opts Options) (*relational.Client, error) {
	dbx, err := sqlx.ConnectContext(ctx, "pgx", opts.URL)
	if err != nil {
		return nil, errors.Wrap(err, "cant connect to postgres")
	}
	if opts.MaxOpenConns > 0 {
		dbx.SetMaxOpenConns(opts.MaxOpenConns)
		dbx.SetMaxIdleConns(opts.MaxOpenConns / 2)
	}
	dbx.SetConnMaxIdleTime(5 * time.Minute)

	if opts.Migrate {
		if _, err := relational.Migrate(dbx, "postgres", "migrations/postgres"); err != nil {
			_ = dbx.Close()
			return nil, err
		}
	} else {
		log.WithField("context", "db").Debug("schema migrations skipped")
	}
	return relational.New(dbx), nil
}
