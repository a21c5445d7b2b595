// Command dbmigrate runs the database migrations and exits. The server
// runs migrations on startup as well, this command exists for operators
// who want to migrate separately from deploying.
package main

import (
	"context"
	"os"

	"github.com/enrollhq/enroll/internal/db"
	"github.com/enrollhq/enroll/internal/migrate"
	"github.com/enrollhq/enroll/migrations"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	dbFile := os.Getenv("DB_FILE")
	if dbFile == "" {
		dbFile = "enroll.db"
	}

	sqlDB, err := db.OpenSQLite(dbFile)
	if err != nil {
		logger.Error().Err(err).Str("dbFile", dbFile).Msg("failed to open database")
		return 1
	}

	defer func() {
		if err := sqlDB.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close database")
		}
	}()

	ran, err := migrate.RunFS(ctx, sqlDB, migrations.FS)
	if err != nil {
		logger.Error().Err(err).Msg("failed to run migrations")
		return 1
	}

	for _, m := range ran {
		logger.Info().Int("sequence", m.Sequence).Str("filename", m.Filename).Msg("ran migration")
	}

	logger.Info().Int("count", len(ran)).Msg("migrations done")

	return 0
}
