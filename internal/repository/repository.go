package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/iamgideonidoko/beacon/internal/models"
	"github.com/iamgideonidoko/beacon/pkg/logger"
)

const insertEvent = `
	INSERT INTO events
	(id, project_id, type, occurred_at, queued_at, sent_at, received_at, session_id, device_id,
	 payload, user_properties, client_metadata, ip_address, request_id)
	VALUES
	(:id, :project_id, :type, :occurred_at, :queued_at, :sent_at, :received_at, :session_id, :device_id,
	 :payload, :user_properties, :client_metadata, :ip_address, :request_id)
`

type Repository struct {
	db    *sqlx.DB
	retry RetryConfig
}

// NewRepository connects to Postgres.
func NewRepository(dsn string, maxConns, maxIdleConns int) (*Repository, error) {
	return Open("postgres", dsn, maxConns, maxIdleConns)
}

// Open connects with any registered database/sql driver. Queries are
// rebound to the driver's placeholder style.
func Open(driver, dsn string, maxConns, maxIdleConns int) (*Repository, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	return &Repository{db: db, retry: DefaultRetryConfig}, nil
}

// InsertEvents stores rows in one transaction, retrying transient
// failures. Either every row is stored or none is.
func (r *Repository) InsertEvents(ctx context.Context, rows []models.EventRow) error {
	if len(rows) == 0 {
		return nil
	}
	return WithRetry(ctx, r.retry, func() error {
		return r.insertEvents(ctx, rows)
	})
}

func (r *Repository) insertEvents(ctx context.Context, rows []models.EventRow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logger.Warn("Failed to roll back event insert", map[string]any{"error": err.Error()})
		}
	}()

	stmt, err := tx.PrepareNamedContext(ctx, insertEvent)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		if _, err := stmt.ExecContext(ctx, &rows[i]); err != nil {
			return fmt.Errorf("failed to insert event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// CountEvents returns the number of stored events for a project.
func (r *Repository) CountEvents(ctx context.Context, projectID string) (int64, error) {
	var count int64
	query := r.db.Rebind(`SELECT COUNT(*) FROM events WHERE project_id = ?`)
	if err := r.db.GetContext(ctx, &count, query, projectID); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}
