// Package database keeps the PostgreSQL log of generated reports and inbound
// SMS commands.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in order and returns the
// names of the files it ran. Migrations must be idempotent.
func (db *DB) RunMigrations(migrationsDir string) ([]string, error) {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}
	return sqlFiles, nil
}

// InsertReport stores a generated report
func (db *DB) InsertReport(ctx context.Context, r *ReportLog) error {
	query := `
		INSERT INTO report_log (
			id, report_type, report_date, stage, subject, text,
			status, error, debug_zstd, channels
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	return db.QueryRowContext(ctx,
		query,
		r.ID,
		r.ReportType,
		r.ReportDate.Format("2006-01-02"),
		r.Stage,
		r.Subject,
		r.Text,
		r.Status,
		r.Error,
		compressText(r.Debug),
		strings.Join(r.Channels, ","),
	).Scan(&r.CreatedAt)
}

// GetReport retrieves a report with its debug text
func (db *DB) GetReport(ctx context.Context, id string) (*ReportLog, error) {
	query := `
		SELECT id, report_type, report_date, stage, subject, text,
		       status, error, debug_zstd, channels, created_at
		FROM report_log
		WHERE id = $1
	`

	var r ReportLog
	var debug []byte
	var channels string
	err := db.QueryRowContext(ctx, query, id).Scan(
		&r.ID,
		&r.ReportType,
		&r.ReportDate,
		&r.Stage,
		&r.Subject,
		&r.Text,
		&r.Status,
		&r.Error,
		&debug,
		&channels,
		&r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if r.Debug, err = decompressText(debug); err != nil {
		return nil, err
	}
	if channels != "" {
		r.Channels = strings.Split(channels, ",")
	}
	return &r, nil
}

// InsertCommand stores an inbound SMS command
func (db *DB) InsertCommand(ctx context.Context, c *CommandLog) error {
	query := `
		INSERT INTO command_log (id, sender, body, command, status, result)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING received_at
	`

	return db.QueryRowContext(ctx,
		query,
		c.ID,
		c.Sender,
		c.Body,
		c.Command,
		c.Status,
		c.Result,
	).Scan(&c.ReceivedAt)
}

// DeleteBefore removes report and command rows older than cutoff
func (db *DB) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, query := range []string{
		`DELETE FROM report_log WHERE created_at < $1`,
		`DELETE FROM command_log WHERE received_at < $1`,
	} {
		result, err := db.ExecContext(ctx, query, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to delete old rows: %w", err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total, nil
}
