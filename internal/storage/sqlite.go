package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the local backend shared by every client session
type DB struct {
	conn   *sql.DB
	secret []byte
	now    func() time.Time
}

// Open opens the SQLite database with WAL mode and runs migrations.
// jwtSecret signs the access tokens handed out by sign-in.
func Open(dbPath string, jwtSecret string) (*DB, error) {
	path := dbPath
	if dbPath != ":memory:" {
		abs, err := filepath.Abs(dbPath)
		if err != nil {
			return nil, err
		}
		path = abs
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		conn.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	d := &DB{conn: conn, secret: []byte(jwtSecret), now: time.Now}
	if err := d.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return d, nil
}

// Conn returns the database connection
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Close closes the database connection
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// runMigrations creates the necessary tables
func (d *DB) runMigrations() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS auth_users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			full_name TEXT,
			avatar_url TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id TEXT PRIMARY KEY,
			name TEXT,
			avatar_url TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_points (
			user_id TEXT PRIMARY KEY,
			current_points INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS topics (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			category TEXT NOT NULL,
			end_time TEXT,
			pool_size INTEGER NOT NULL DEFAULT 0,
			participant_count INTEGER NOT NULL DEFAULT 0,
			image_url TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			odds REAL NOT NULL DEFAULT 1.5,
			created_by TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			topic_id TEXT NOT NULL,
			prediction_value TEXT NOT NULL,
			wager INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			is_correct INTEGER,
			FOREIGN KEY (topic_id) REFERENCES topics(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_topics_created_at ON topics(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_user_id ON predictions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_topic_id ON predictions(topic_id)`,
	}

	for _, stmt := range statements {
		if _, err := d.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Seed inserts the sample topics that are not present yet and returns how many were added
func (d *DB) Seed(ctx context.Context) (int, error) {
	now := d.now().UTC()
	added := 0
	for i, t := range SampleTopics {
		// keep the sample order stable under created_at desc
		createdAt := now.Add(-time.Duration(i) * time.Second)
		res, err := d.conn.ExecContext(ctx, `
			INSERT OR IGNORE INTO topics
				(id, title, description, category, end_time, pool_size, participant_count, image_url, status, odds, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, ?)
		`, t.ID, t.Title, t.Description, t.Category, formatTime(now.Add(t.EndsIn)),
			t.PoolSize, t.Participants, t.Image, t.Odds, t.CreatedBy, formatTime(createdAt))
		if err != nil {
			return added, fmt.Errorf("failed to seed topic %s: %w", t.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}

// SettlePrediction records the outcome of a prediction. Settlement is normally
// done by an external process; this is used by local tooling and tests.
func (d *DB) SettlePrediction(ctx context.Context, predictionID string, correct bool) error {
	res, err := d.conn.ExecContext(ctx, `UPDATE predictions SET is_correct = ? WHERE id = ?`, boolToInt(correct), predictionID)
	if err != nil {
		return fmt.Errorf("failed to settle prediction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("prediction %s not found", predictionID)
	}
	return nil
}

// SetTopicStatus moves a topic through its lifecycle
func (d *DB) SetTopicStatus(ctx context.Context, topicID, status string) error {
	_, err := d.conn.ExecContext(ctx, `UPDATE topics SET status = ? WHERE id = ?`, status, topicID)
	if err != nil {
		return fmt.Errorf("failed to update topic status: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
