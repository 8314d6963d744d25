package messages

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type Repository interface {
	// UpsertPending creates the record in pending status, or refreshes
	// only updated_at when the key already exists. Atomic; safe under
	// concurrent callers sharing a key.
	UpsertPending(ctx context.Context, msg *Message) error
	// Get returns (nil, nil) when the record is absent.
	Get(ctx context.Context, idempotencyID string) (*Message, error)
	AppendHistory(ctx context.Context, entry *HistoryEntry) error
	// ListHistory returns entries in ascending created_at order; an
	// empty slice, not an error, when none exist.
	ListHistory(ctx context.Context, idempotencyID string) ([]HistoryEntry, error)
	// UpdateStatus transitions the record and appends the matching
	// history entry in one transaction.
	UpdateStatus(ctx context.Context, idempotencyID string, status Status, entry *HistoryEntry) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) UpsertPending(ctx context.Context, msg *Message) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	// On conflict only updated_at moves; status and payload belong to
	// the first writer.
	query := `
		INSERT INTO messages (idempotency_id, correlation_id, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (idempotency_id) DO UPDATE SET updated_at = NOW()
	`

	_, err = r.db.ExecContext(ctx, query,
		msg.IdempotencyID, msg.CorrelationID, string(StatusPending), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, idempotencyID string) (*Message, error) {
	query := `
		SELECT idempotency_id, correlation_id, status, payload, created_at, updated_at
		FROM messages
		WHERE idempotency_id = $1
	`

	row := r.db.QueryRowContext(ctx, query, idempotencyID)

	var msg Message
	var payload []byte
	err := row.Scan(
		&msg.IdempotencyID, &msg.CorrelationID, &msg.Status,
		&payload, &msg.CreatedAt, &msg.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	if err := json.Unmarshal(payload, &msg.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &msg, nil
}

func (r *PostgresRepository) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	query := `
		INSERT INTO message_history (idempotency_id, correlation_id, status, service_name, event_id, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		entry.IdempotencyID, entry.CorrelationID, string(entry.Status),
		entry.ServiceName, entry.EventID, nullable(entry.ErrorMessage),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return fmt.Errorf("no message for history entry %s: %w", entry.IdempotencyID, err)
		}
		return fmt.Errorf("failed to append history: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ListHistory(ctx context.Context, idempotencyID string) ([]HistoryEntry, error) {
	query := `
		SELECT id, idempotency_id, correlation_id, status, service_name, event_id, error_message, created_at
		FROM message_history
		WHERE idempotency_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, idempotencyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var entry HistoryEntry
		var errMsg sql.NullString
		if err := rows.Scan(
			&entry.ID, &entry.IdempotencyID, &entry.CorrelationID, &entry.Status,
			&entry.ServiceName, &entry.EventID, &errMsg, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.ErrorMessage = errMsg.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	return entries, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, idempotencyID string, status Status, entry *HistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE messages SET status = $1, updated_at = NOW() WHERE idempotency_id = $2`,
		string(status), idempotencyID,
	)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("message not found: %s", idempotencyID)
	}

	if entry != nil {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO message_history (idempotency_id, correlation_id, status, service_name, event_id, error_message, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())
			 RETURNING id, created_at`,
			entry.IdempotencyID, entry.CorrelationID, string(entry.Status),
			entry.ServiceName, entry.EventID, nullable(entry.ErrorMessage),
		).Scan(&entry.ID, &entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}

	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
