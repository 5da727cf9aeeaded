package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db            *sql.DB
	chatSessionMu sync.Mutex // serializes chat session writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL,
		department TEXT NOT NULL,
		manager_email TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS provision_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		request_identifier TEXT NOT NULL UNIQUE,
		cloud_provider TEXT NOT NULL,
		environment TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		parameters_json TEXT NOT NULL,
		status TEXT NOT NULL,
		pr_number INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL, -- unix milliseconds
		deployed_at INTEGER          -- unix milliseconds
	);
	CREATE INDEX IF NOT EXISTS idx_requests_user_created ON provision_requests(user_id, created_at);

	CREATE TABLE IF NOT EXISTS history_watermarks (
		user_id TEXT PRIMARY KEY,
		cleared_at INTEGER NOT NULL -- unix milliseconds, same scale as created_at
	);

	CREATE TABLE IF NOT EXISTS pending_notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		severity TEXT NOT NULL,
		action_url TEXT,
		request_id TEXT,
		details_json TEXT,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_user ON pending_notifications(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_pending_expires ON pending_notifications(expires_at);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		user_id TEXT PRIMARY KEY,
		input_mode TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated ON chat_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, email, name, department, manager_email, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var managerEmail sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.UserID, &user.Email, &user.Name, &user.Department,
		&managerEmail, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.ManagerEmail = managerEmail.String
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, email, name, department, manager_email, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		email = excluded.email,
		name = excluded.name,
		department = excluded.department,
		manager_email = excluded.manager_email,
		updated_at = excluded.updated_at`

	var managerEmail interface{}
	if user.ManagerEmail != "" {
		managerEmail = user.ManagerEmail
	}

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Email, user.Name, user.Department,
		managerEmail, user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// CreateRequest inserts a new provisioning request row.
func (s *SQLiteStore) CreateRequest(ctx context.Context, req *domain.ProvisionRequest) error {
	params, err := json.Marshal(req.Parameters)
	if err != nil {
		return fmt.Errorf("marshal request parameters: %w", err)
	}

	query := `
	INSERT INTO provision_requests (
		id, user_id, request_identifier, cloud_provider, environment,
		resource_type, parameters_json, status, pr_number, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		req.ID, req.UserID, req.RequestIdentifier, req.CloudProvider,
		req.Environment, req.ResourceType, string(params), req.Status,
		req.PRNumber, req.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert provision request: %w", err)
	}
	return nil
}

// GetRequestByIdentifier looks up a request by its request identifier.
func (s *SQLiteStore) GetRequestByIdentifier(ctx context.Context, identifier string) (*domain.ProvisionRequest, error) {
	query := `
		SELECT id, user_id, request_identifier, cloud_provider, environment,
		       resource_type, parameters_json, status, pr_number, created_at, deployed_at
		FROM provision_requests WHERE request_identifier = ?`

	req, err := scanRequest(s.db.QueryRowContext(ctx, query, identifier))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan provision request: %w", err)
	}
	return req, nil
}

// UpdateRequestStatus updates the status (and optionally PR number and
// deployment time) of a request.
func (s *SQLiteStore) UpdateRequestStatus(ctx context.Context, identifier, status string, prNumber int, deployedAt *time.Time) error {
	query := `UPDATE provision_requests SET status = ?`
	args := []interface{}{status}

	if prNumber != 0 {
		query += `, pr_number = ?`
		args = append(args, prNumber)
	}
	if deployedAt != nil {
		query += `, deployed_at = ?`
		args = append(args, deployedAt.UnixMilli())
	}
	query += ` WHERE request_identifier = ?`
	args = append(args, identifier)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("request not found: %s", identifier)
	}
	return nil
}

// ListRequestsAfter returns the user's requests created strictly after the
// given time, newest first. The comparison runs at millisecond resolution,
// matching the watermark, so a request created moments after a history clear
// stays visible.
func (s *SQLiteStore) ListRequestsAfter(ctx context.Context, userID string, after time.Time) ([]*domain.ProvisionRequest, error) {
	query := `
		SELECT id, user_id, request_identifier, cloud_provider, environment,
		       resource_type, parameters_json, status, pr_number, created_at, deployed_at
		FROM provision_requests
		WHERE user_id = ? AND created_at > ?
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID, after.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close request rows", "error", closeErr)
		}
	}()

	var requests []*domain.ProvisionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request row: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return requests, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*domain.ProvisionRequest, error) {
	var req domain.ProvisionRequest
	var paramsJSON string
	var prNumber sql.NullInt64
	var createdAt int64
	var deployedAt sql.NullInt64

	err := row.Scan(
		&req.ID, &req.UserID, &req.RequestIdentifier, &req.CloudProvider,
		&req.Environment, &req.ResourceType, &paramsJSON, &req.Status,
		&prNumber, &createdAt, &deployedAt,
	)
	if err != nil {
		return nil, err
	}

	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &req.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal request parameters: %w", err)
		}
	}
	req.PRNumber = int(prNumber.Int64)
	req.CreatedAt = time.UnixMilli(createdAt)
	if deployedAt.Valid {
		ts := time.UnixMilli(deployedAt.Int64)
		req.DeployedAt = &ts
	}
	return &req, nil
}

// GetWatermark returns the user's history watermark, zero time when unset.
func (s *SQLiteStore) GetWatermark(ctx context.Context, userID string) (time.Time, error) {
	var clearedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT cleared_at FROM history_watermarks WHERE user_id = ?`, userID,
	).Scan(&clearedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("scan watermark: %w", err)
	}
	return time.UnixMilli(clearedAt), nil
}

// AdvanceWatermark durably sets the user's watermark. MAX keeps the stored
// value monotonically non-decreasing under concurrent clears.
func (s *SQLiteStore) AdvanceWatermark(ctx context.Context, userID string, ts time.Time) error {
	query := `
	INSERT INTO history_watermarks (user_id, cleared_at)
	VALUES (?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		cleared_at = MAX(history_watermarks.cleared_at, excluded.cleared_at)`

	_, err := s.db.ExecContext(ctx, query, userID, ts.UnixMilli())
	if err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}

// EnqueueNotification stores a notification for later delivery.
func (s *SQLiteStore) EnqueueNotification(ctx context.Context, ev *domain.NotificationEvent, expiresAt time.Time) error {
	var detailsJSON interface{}
	if ev.Details != nil {
		data, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("marshal notification details: %w", err)
		}
		detailsJSON = string(data)
	}

	query := `
	INSERT INTO pending_notifications (
		id, user_id, title, body, severity, action_url, request_id,
		details_json, created_at, expires_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		ev.ID, ev.UserID, ev.Title, ev.Body, string(ev.Severity),
		nullable(ev.ActionURL), nullable(ev.RequestID), detailsJSON,
		ev.CreatedAt.Unix(), expiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// PendingNotifications returns the user's queued, unexpired notifications,
// oldest first.
func (s *SQLiteStore) PendingNotifications(ctx context.Context, userID string, now time.Time) ([]*domain.NotificationEvent, error) {
	query := `
		SELECT id, user_id, title, body, severity, action_url, request_id, details_json, created_at
		FROM pending_notifications
		WHERE user_id = ? AND expires_at > ?
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("query pending notifications: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close pending notification rows", "error", closeErr)
		}
	}()

	return scanNotifications(rows)
}

// DeleteNotification removes a queued notification after delivery.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_notifications WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// PurgeExpiredNotifications deletes expired entries and returns them so the
// caller can log the delivery misses.
func (s *SQLiteStore) PurgeExpiredNotifications(ctx context.Context, now time.Time) ([]*domain.NotificationEvent, error) {
	query := `
		SELECT id, user_id, title, body, severity, action_url, request_id, details_json, created_at
		FROM pending_notifications WHERE expires_at <= ?`

	rows, err := s.db.QueryContext(ctx, query, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("query expired notifications: %w", err)
	}
	expired, err := scanNotifications(rows)
	if closeErr := rows.Close(); closeErr != nil {
		slog.Warn("failed to close expired notification rows", "error", closeErr)
	}
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_notifications WHERE expires_at <= ?`, now.Unix()); err != nil {
		return nil, fmt.Errorf("purge expired notifications: %w", err)
	}
	return expired, nil
}

func scanNotifications(rows *sql.Rows) ([]*domain.NotificationEvent, error) {
	var events []*domain.NotificationEvent
	for rows.Next() {
		var ev domain.NotificationEvent
		var severity string
		var actionURL, requestID, detailsJSON sql.NullString
		var createdAt int64

		if err := rows.Scan(
			&ev.ID, &ev.UserID, &ev.Title, &ev.Body, &severity,
			&actionURL, &requestID, &detailsJSON, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification row: %w", err)
		}

		ev.Severity = domain.Severity(severity)
		ev.ActionURL = actionURL.String
		ev.RequestID = requestID.String
		ev.CreatedAt = time.Unix(createdAt, 0)
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &ev.Details); err != nil {
				return nil, fmt.Errorf("unmarshal notification details: %w", err)
			}
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return events, nil
}

// GetChatSession retrieves persisted conversation state for a user.
func (s *SQLiteStore) GetChatSession(ctx context.Context, userID string) (*domain.ChatSessionRecord, error) {
	s.chatSessionMu.Lock()
	defer s.chatSessionMu.Unlock()

	query := `
		SELECT user_id, input_mode, messages_json, created_at, updated_at
		FROM chat_sessions WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var rec domain.ChatSessionRecord
	var inputMode string
	var createdAt, updatedAt int64

	err := row.Scan(&rec.UserID, &inputMode, &rec.MessagesJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat session: %w", err)
	}

	rec.InputMode = domain.InputMode(inputMode)
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

// UpsertChatSession creates or updates persisted conversation state.
// Retries on SQLITE_BUSY with exponential backoff; the busy window is short
// because writes are serialized by chatSessionMu.
func (s *SQLiteStore) UpsertChatSession(ctx context.Context, rec *domain.ChatSessionRecord) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.upsertChatSessionOnce(ctx, rec)
		if err == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("UpsertChatSession hit SQLITE_BUSY, retrying",
				"user_id", rec.UserID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("upsert chat session for %s: %w", rec.UserID, err)
	}

	return nil
}

func (s *SQLiteStore) upsertChatSessionOnce(ctx context.Context, rec *domain.ChatSessionRecord) error {
	s.chatSessionMu.Lock()
	defer s.chatSessionMu.Unlock()

	query := `
	INSERT INTO chat_sessions (user_id, input_mode, messages_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		input_mode = excluded.input_mode,
		messages_json = excluded.messages_json,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		rec.UserID, string(rec.InputMode), rec.MessagesJSON,
		rec.CreatedAt.Unix(), time.Now().Unix(),
	)
	return err
}

// CleanupStaleChatSessions removes persisted sessions idle longer than ttl.
func (s *SQLiteStore) CleanupStaleChatSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	s.chatSessionMu.Lock()
	defer s.chatSessionMu.Unlock()

	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale chat sessions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
