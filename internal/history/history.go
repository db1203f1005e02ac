package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a delivery ID does not exist.
var ErrNotFound = errors.New("delivery not found")

// History manages delivery history in SQLite
type History struct {
	db *sql.DB
}

// NewHistory opens (and creates if needed) the database at dbPath.
func NewHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repo TEXT NOT NULL,
			event TEXT NOT NULL,
			delivery_id TEXT NOT NULL DEFAULT '',
			branch TEXT NOT NULL,
			commit_sha TEXT,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			duration_seconds REAL,
			exit_code INTEGER,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_repo_id
		ON deliveries(repo, id DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// RecordDelivery inserts a delivery and returns its ID. A zero StartedAt is
// replaced by the current time; terminal records without CompletedAt are
// completed at insertion.
func (h *History) RecordDelivery(ctx context.Context, record *DeliveryRecord) (int64, error) {
	startedAt := record.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	var completedAt *string
	if record.CompletedAt != nil {
		formatted := record.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &formatted
	} else if record.Status.Terminal() {
		formatted := time.Now().UTC().Format(time.RFC3339)
		completedAt = &formatted
	}

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO deliveries
		(repo, event, delivery_id, branch, commit_sha, status, started_at,
		 completed_at, duration_seconds, exit_code, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.Repo,
		record.Event,
		record.DeliveryID,
		record.Branch,
		record.CommitSHA,
		string(record.Status),
		startedAt.UTC().Format(time.RFC3339),
		completedAt,
		record.DurationSeconds,
		record.ExitCode,
		record.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert delivery record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// CompleteDelivery moves a running delivery to its final status.
// exitCode is nil when the command never started.
func (h *History) CompleteDelivery(ctx context.Context, id int64, status Status, exitCode *int, duration time.Duration, errMsg string) error {
	var errorMessage *string
	if errMsg != "" {
		errorMessage = &errMsg
	}
	seconds := duration.Seconds()

	result, err := h.db.ExecContext(ctx, `
		UPDATE deliveries
		SET status = ?, completed_at = ?, duration_seconds = ?, exit_code = ?, error_message = ?
		WHERE id = ?
	`,
		string(status),
		time.Now().UTC().Format(time.RFC3339),
		seconds,
		exitCode,
		errorMessage,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery %d: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	return nil
}

// GetLatestDelivery returns the most recent delivery for a repo, or nil if none.
func (h *History) GetLatestDelivery(ctx context.Context, repo string) (*DeliveryRecord, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE repo = ?
		ORDER BY id DESC
		LIMIT 1
	`, repo)

	record, err := scanDeliveryRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest delivery: %w", err)
	}

	return record, nil
}

// GetDeliveryHistory returns up to limit deliveries for a repo, newest first.
func (h *History) GetDeliveryHistory(ctx context.Context, repo string, limit int) ([]DeliveryRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE repo = ?
		ORDER BY id DESC
		LIMIT ?
	`, repo, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery history: %w", err)
	}
	defer rows.Close()

	records := []DeliveryRecord{}
	for rows.Next() {
		record, err := scanDeliveryRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// GetRepoStatus returns the latest delivery and recent history for a repo.
func (h *History) GetRepoStatus(ctx context.Context, repo string, limit int) (*RepoStatus, error) {
	recent, err := h.GetDeliveryHistory(ctx, repo, limit)
	if err != nil {
		return nil, err
	}

	status := &RepoStatus{Repo: repo, RecentHistory: recent}
	if len(recent) > 0 {
		latest := recent[0]
		status.LatestDelivery = &latest
	}

	return status, nil
}

// GetAllReposStatus returns the latest delivery for each repo
func (h *History) GetAllReposStatus(ctx context.Context) (map[string]*DeliveryRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE id IN (SELECT MAX(id) FROM deliveries GROUP BY repo)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all repos status: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*DeliveryRecord)
	for rows.Next() {
		record, err := scanDeliveryRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		result[record.Repo] = record
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

const deliveryColumns = `id, repo, event, delivery_id, branch, commit_sha, status, started_at,
		       completed_at, duration_seconds, exit_code, error_message`

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDeliveryRecord(s scanner) (*DeliveryRecord, error) {
	var record DeliveryRecord
	var status string
	var startedAtStr string
	var completedAtStr sql.NullString

	err := s.Scan(
		&record.ID,
		&record.Repo,
		&record.Event,
		&record.DeliveryID,
		&record.Branch,
		&record.CommitSHA,
		&status,
		&startedAtStr,
		&completedAtStr,
		&record.DurationSeconds,
		&record.ExitCode,
		&record.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	record.Status = Status(status)

	startedAt, err := time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	record.StartedAt = startedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		record.CompletedAt = &completedAt
	}

	return &record, nil
}
