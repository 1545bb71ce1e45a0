package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteGateway implements Gateway using SQLite as the object store.
// Recording data is stored as BLOBs directly in the database, making this
// suitable for embedded deployments, demos and imported test fixtures.
type SQLiteGateway struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteGateway creates a new SQLiteGateway backed by the given database
// file path. It opens the database, applies performance PRAGMAs, and creates
// the required table.
func NewSQLiteGateway(dbPath string, logger *slog.Logger) (*SQLiteGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite object database: %w", err)
	}

	g := &SQLiteGateway{db: db, logger: logger}
	if err := g.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite object database: %w", err)
	}
	return g, nil
}

// initDB applies PRAGMAs and creates the objects table.
func (g *SQLiteGateway) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := g.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS objects (
			bucket TEXT NOT NULL,
			key    TEXT NOT NULL,
			data   BLOB NOT NULL,
			PRIMARY KEY (bucket, key)
		);
	`
	if _, err := g.db.Exec(schema); err != nil {
		return fmt.Errorf("creating object schema: %w", err)
	}
	return nil
}

// Close closes the underlying SQLite database connection.
func (g *SQLiteGateway) Close() error {
	if g.db != nil {
		return g.db.Close()
	}
	return nil
}

// PutObject stores the reader's contents under bucket/key, replacing any
// existing row.
func (g *SQLiteGateway) PutObject(ctx context.Context, bucket, key string, reader io.Reader) (int64, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("reading object data: %w", err)
	}

	_, err = g.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO objects (bucket, key, data) VALUES (?, ?, ?)`,
		bucket, key, data,
	)
	if err != nil {
		return 0, fmt.Errorf("putting object %q/%q: %w", bucket, key, err)
	}
	return int64(len(data)), nil
}

// ListKeys returns the keys in bucket that start with prefix, in byte order.
func (g *SQLiteGateway) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT key FROM objects WHERE bucket = ? AND substr(key, 1, length(?)) = ? ORDER BY key`,
		bucket, prefix, prefix,
	)
	if err != nil {
		return nil, classify("listing objects", err, false)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, classify("scanning key", err, false)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("listing objects", err, false)
	}
	return keys, nil
}

// Download writes the stored BLOB to destPath.
func (g *SQLiteGateway) Download(ctx context.Context, bucket, key, destPath string) (int64, error) {
	var data []byte
	err := g.db.QueryRowContext(ctx,
		`SELECT data FROM objects WHERE bucket = ? AND key = ?`,
		bucket, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound(bucket, key)
	}
	if err != nil {
		return 0, classify("getting object", err, false)
	}
	return writeFileAtomic(destPath, bytes.NewReader(data))
}

// HealthCheck pings the database.
func (g *SQLiteGateway) HealthCheck(ctx context.Context) error {
	if err := g.db.PingContext(ctx); err != nil {
		return classify("ping", err, false)
	}
	return nil
}

// Ensure SQLiteGateway implements Gateway and Uploader at compile time.
var (
	_ Gateway  = (*SQLiteGateway)(nil)
	_ Uploader = (*SQLiteGateway)(nil)
)
