package commands

import (
	"database/sql"

	"github.com/halcyonlabs/streamwatch/config"
	"github.com/halcyonlabs/streamwatch/db"
	"github.com/halcyonlabs/streamwatch/errors"
	"github.com/halcyonlabs/streamwatch/logger"
)

// openDatabase opens and migrates a database at the given path. If dbPath is
// empty the path comes from the config system (DB_PATH env overrides file).
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		path, err := config.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database path")
		}
		if path == "" {
			dbPath = "streamwatch.db"
		} else {
			dbPath = path
		}
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}
