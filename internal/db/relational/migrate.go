package relational

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/resources"
)

// Migrate applies the embedded migrations found under root using the given sql-migrate dialect.
func Migrate(dbx *sqlx.DB, dialect, root string) (int, error) {
	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       root,
	}
	if _, _, err := migrate.PlanMigration(dbx.DB, dialect, source, migrate.Up, 0); err != nil {
		return 0, errors.Wrap(err, "migrate plan failed")
	}

	n, err := migrate.Exec(dbx.DB, dialect, source, migrate.Up)
	if err != nil {
		return 0, errors.Wrapf(err, "migrate up failed (%s)", root)
	}
	if n > 0 {
		log.WithField("context", "db").Infof("applied %d migrations!", n)
	}
	return n, nil
}
