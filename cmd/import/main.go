// Command import loads CSV exports (reports, chats, messages, inspectors)
// into the SQLite store. Each flag is optional; only the given files are
// loaded. Rows that fail to persist are logged and skipped.
//
// Usage:
//
//	import -db reports.db -reports Data/reports.csv -chats Data/report-chats.csv \
//	       -messages Data/report-messages.csv -inspectors Data/assignments.csv
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/visionary-ai/go-report-backend/internal/importer"
	"github.com/visionary-ai/go-report-backend/internal/repo"
)

func main() {
	_ = godotenv.Load()

	var (
		dbPath         = flag.String("db", envOr("DB_PATH", "reports.db"), "SQLite database path")
		reportsPath    = flag.String("reports", "", "reports CSV path")
		chatsPath      = flag.String("chats", "", "chat sessions CSV path")
		messagesPath   = flag.String("messages", "", "messages CSV path")
		inspectorsPath = flag.String("inspectors", "", "inspector assignments CSV path")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	db, err := repo.OpenSQLite(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	im := &importer.Importer{DB: db}
	ctx := log.Logger.WithContext(context.Background())

	type load struct {
		name string
		path string
		fn   func(context.Context, *os.File) (*importer.Result, error)
	}
	loads := []load{
		{"reports", *reportsPath, func(ctx context.Context, f *os.File) (*importer.Result, error) {
			return im.ImportReports(ctx, f)
		}},
		{"chats", *chatsPath, func(ctx context.Context, f *os.File) (*importer.Result, error) {
			return im.ImportChats(ctx, f)
		}},
		{"messages", *messagesPath, func(ctx context.Context, f *os.File) (*importer.Result, error) {
			return im.ImportMessages(ctx, f)
		}},
		{"inspectors", *inspectorsPath, func(ctx context.Context, f *os.File) (*importer.Result, error) {
			return im.ImportInspectors(ctx, f)
		}},
	}

	ranAny := false
	for _, l := range loads {
		if l.path == "" {
			continue
		}
		ranAny = true
		f, err := os.Open(l.path)
		if err != nil {
			log.Fatal().Err(err).Str("file", l.path).Msg("open csv failed")
		}
		res, err := l.fn(ctx, f)
		f.Close()
		if err != nil {
			log.Fatal().Err(err).Str("kind", l.name).Msg("import failed")
		}
		log.Info().
			Str("kind", l.name).
			Int("imported", res.Imported).
			Int("skipped", res.Skipped).
			Msg("import finished")
	}
	if !ranAny {
		flag.Usage()
		os.Exit(2)
	}
}

// envOr returns the environment value for key, or def when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
