package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (or creates) the database file and makes sure the schema exists. The pool is
// capped at one connection so every transaction is serialized by SQLite itself.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		path = "placement.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			company TEXT NOT NULL,
			type TEXT NOT NULL,
			active INTEGER NOT NULL,
			created_at_unix INTEGER NOT NULL,
			data TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS students (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			branch TEXT NOT NULL DEFAULT '',
			year TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			quiz_id TEXT NOT NULL,
			company TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at_unix INTEGER NOT NULL,
			data TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_student ON attempts (student_id, started_at_unix);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_quiz ON attempts (quiz_id);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_company ON attempts (company);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_status ON attempts (status, started_at_unix);`,
		`CREATE TABLE IF NOT EXISTS performance_analytics (
			student_id TEXT NOT NULL,
			company TEXT NOT NULL,
			topic TEXT NOT NULL,
			average_score REAL NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (student_id, company, topic)
		);`,
		`CREATE TABLE IF NOT EXISTS analytics_folds (
			attempt_id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			company TEXT NOT NULL,
			folded_at_unix INTEGER NOT NULL
		);`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
