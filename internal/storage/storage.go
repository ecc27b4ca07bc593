// Package storage records completed matches in a SQL database (SQLite or PostgreSQL).
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/archerstats/internal/logger"
	"github.com/rewired-gh/archerstats/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Storage wraps the match database. It implements notify.Sink.
type Storage struct {
	db     *sql.DB
	driver string
}

// New opens the database for driver and applies pending migrations.
func New(ctx context.Context, driver, dsn string) (*Storage, error) {
	var sqlDriver, dialect string
	switch driver {
	case DriverSQLite, "":
		driver, sqlDriver, dialect = DriverSQLite, "sqlite", "sqlite3"
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	case DriverPostgres:
		sqlDriver, dialect = "pgx", "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // single writer; also keeps one :memory: database
		for _, pragma := range []string{"journal_mode=WAL", "foreign_keys=ON", "busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, "PRAGMA "+pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to set PRAGMA %s: %w", pragma, err)
			}
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Match database ready (%s)", driver)
	return &Storage{db: db, driver: driver}, nil
}

func migrate(ctx context.Context, db *sql.DB, dialect string) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Name() string { return "database" }

// MatchCompleted stores rec and one row per participant. Storing the same match twice is
// a no-op.
func (s *Storage) MatchCompleted(ctx context.Context, rec models.MatchRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO matches (id, session_id, played_at, rounds, venue)
		VALUES (?,?,?,?,?)
		ON CONFLICT (id) DO NOTHING`),
		rec.ID, rec.SessionID, rec.Timestamp, rec.Rounds, rec.Venue,
	)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		logger.Debug("Match %s already stored", rec.ID)
		return nil
	}

	insert := s.rebind(`
		INSERT INTO player_match_stats (match_id, color, kills, deaths, won)
		VALUES (?,?,?,?,?)`)
	for _, a := range rec.Participants.Members() {
		if _, err := tx.ExecContext(ctx, insert,
			rec.ID, a.String(), rec.Kills[a], rec.Deaths[a], rec.Wins[a],
		); err != nil {
			return fmt.Errorf("failed to insert %s stats: %w", a, err)
		}
	}

	return tx.Commit()
}

// RecentMatches returns up to n matches, newest first.
func (s *Storage) RecentMatches(ctx context.Context, n int) ([]models.MatchRecord, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_id, played_at, rounds, venue
		FROM matches ORDER BY played_at DESC, id LIMIT ?`), n)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := []models.MatchRecord{}
	index := map[string]int{}
	for rows.Next() {
		var m models.MatchRecord
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Timestamp, &m.Rounds, &m.Venue); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		index[m.ID] = len(matches)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return matches, nil
	}

	ids := make([]any, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	prow, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT match_id, color, kills, deaths, won
		FROM player_match_stats WHERE match_id IN (`+placeholders+`)`), ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to query player stats: %w", err)
	}
	defer prow.Close()

	for prow.Next() {
		var matchID, color string
		var kills, deaths, won int
		if err := prow.Scan(&matchID, &color, &kills, &deaths, &won); err != nil {
			return nil, fmt.Errorf("failed to scan player stats: %w", err)
		}
		a, err := models.ParseArcher(color)
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", matchID, err)
		}
		m := &matches[index[matchID]]
		m.Participants = m.Participants.Add(a)
		m.Kills[a] = kills
		m.Deaths[a] = deaths
		m.Wins[a] = won
	}
	return matches, prow.Err()
}

// ArcherTotal is one archer's all-time record in the database.
type ArcherTotal struct {
	Archer  models.Archer `json:"archer"`
	Matches int           `json:"matches"`
	Wins    int           `json:"wins"`
	Kills   int           `json:"kills"`
	Deaths  int           `json:"deaths"`
}

// ArcherTotals sums every stored match per archer, in roster order. Archers with no
// stored matches are included with zeros.
func (s *Storage) ArcherTotals(ctx context.Context) ([]ArcherTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT color, COUNT(*), COALESCE(SUM(won), 0), COALESCE(SUM(kills), 0), COALESCE(SUM(deaths), 0)
		FROM player_match_stats GROUP BY color`)
	if err != nil {
		return nil, fmt.Errorf("failed to query archer totals: %w", err)
	}
	defer rows.Close()

	var byArcher models.PerArcher[ArcherTotal]
	for rows.Next() {
		var color string
		var t ArcherTotal
		if err := rows.Scan(&color, &t.Matches, &t.Wins, &t.Kills, &t.Deaths); err != nil {
			return nil, fmt.Errorf("failed to scan archer totals: %w", err)
		}
		a, err := models.ParseArcher(color)
		if err != nil {
			return nil, err
		}
		byArcher[a] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totals := make([]ArcherTotal, 0, models.NumArchers)
	for _, a := range models.Archers {
		t := byArcher[a]
		t.Archer = a
		totals = append(totals, t)
	}
	return totals, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Storage) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
