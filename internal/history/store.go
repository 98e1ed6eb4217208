package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"upscaler/internal/jobs"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// DefaultListLimit caps List when the caller passes a non-positive limit.
	DefaultListLimit = 50
)

// Entry is one finished job.
type Entry struct {
	JobID      string      `json:"job_id"`
	Status     jobs.Status `json:"status"`
	Model      string      `json:"model"`
	Scale      int         `json:"scale"`
	SourceName string      `json:"filename,omitempty"`
	SourceSize int64       `json:"file_size"`
	OutputSize int64       `json:"output_size"`
	Message    string      `json:"message,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Elapsed is the wall time from submission to the terminal status.
func (e Entry) Elapsed() time.Duration {
	if e.FinishedAt.Before(e.CreatedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.CreatedAt)
}

// FromRecord builds a ledger entry from a terminal job record.
func FromRecord(rec jobs.Record, outputSize int64) Entry {
	return Entry{
		JobID:      rec.ID,
		Status:     rec.Status,
		Model:      rec.Params.Model,
		Scale:      rec.Params.Scale,
		SourceName: rec.SourceName,
		SourceSize: rec.SourceSize,
		OutputSize: outputSize,
		Message:    rec.Message,
		CreatedAt:  rec.CreatedAt,
		FinishedAt: rec.UpdatedAt,
	}
}

// Store is the SQLite-backed ledger.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the ledger at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the ledger file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts entry, replacing any earlier row for the same job.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.JobID) == "" {
		return errors.New("history entry has no job id")
	}
	if !entry.Status.IsTerminal() {
		return fmt.Errorf("history entry %s has non-terminal status %q", entry.JobID, entry.Status)
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO job_history (
                job_id, status, model, scale, source_name, source_size,
                output_size, message, created_at, finished_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.JobID,
			string(entry.Status),
			entry.Model,
			entry.Scale,
			nullableString(entry.SourceName),
			entry.SourceSize,
			entry.OutputSize,
			nullableString(entry.Message),
			formatTime(entry.CreatedAt),
			formatTime(entry.FinishedAt),
		)
		if err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		return nil
	})
}

const entryColumns = "job_id, status, model, scale, source_name, source_size, output_size, message, created_at, finished_at"

// List returns the most recently finished jobs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM job_history ORDER BY finished_at DESC, job_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Get returns the entry for id, or jobs.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM job_history WHERE job_id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, jobs.ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get history: %w", err)
	}
	return entry, nil
}

// Summary counts ledger rows per terminal status.
func (s *Store) Summary(ctx context.Context) (map[jobs.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM job_history GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("summarize history: %w", err)
	}
	defer rows.Close()

	counts := make(map[jobs.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[jobs.Status(status)] = count
	}
	return counts, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry       Entry
		status      string
		sourceName  sql.NullString
		message     sql.NullString
		createdRaw  string
		finishedRaw string
	)
	if err := scanner.Scan(
		&entry.JobID,
		&status,
		&entry.Model,
		&entry.Scale,
		&sourceName,
		&entry.SourceSize,
		&entry.OutputSize,
		&message,
		&createdRaw,
		&finishedRaw,
	); err != nil {
		return Entry{}, err
	}
	entry.Status = jobs.Status(status)
	entry.SourceName = sourceName.String
	entry.Message = message.String
	entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdRaw)
	entry.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedRaw)
	return entry, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}
