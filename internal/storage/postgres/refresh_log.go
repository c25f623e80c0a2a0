package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"content_refresher/internal/domain"
)

// RefreshLogStore keeps an append-only log per document, capped at
// domain.RefreshLogCap entries.
type RefreshLogStore struct {
	db  *sqlx.DB
	tx  *TransactionManager
	cap int
}

func NewRefreshLogStore(db *sqlx.DB) *RefreshLogStore {
	return &RefreshLogStore{db: db, tx: NewTransactionManager(db), cap: domain.RefreshLogCap}
}

func (s *RefreshLogStore) Append(ctx context.Context, entry *domain.RefreshLogEntry) error {
	changes := entry.Changes
	if changes == nil {
		changes = []string{}
	}

	return s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)

		err := exec.QueryRowxContext(txCtx, `
			INSERT INTO refresh_log (document_id, logged_at, kind, message, changes)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			entry.DocumentID,
			entry.Timestamp,
			string(entry.Kind),
			entry.Message,
			pq.Array(changes),
		).Scan(&entry.ID)
		if err != nil {
			return fmt.Errorf("insert log entry: %w", err)
		}

		_, err = exec.ExecContext(txCtx, `
			DELETE FROM refresh_log
			WHERE document_id = $1
				AND id NOT IN (
					SELECT id FROM refresh_log
					WHERE document_id = $1
					ORDER BY id DESC
					LIMIT $2
				)`,
			entry.DocumentID, s.cap,
		)
		if err != nil {
			return fmt.Errorf("trim log: %w", err)
		}
		return nil
	})
}

func (s *RefreshLogStore) Recent(ctx context.Context, documentID int64, limit int) ([]domain.RefreshLogEntry, error) {
	query := `
		SELECT id, document_id, logged_at, kind, message, changes
		FROM refresh_log
		WHERE document_id = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, query, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.RefreshLogEntry
	for rows.Next() {
		var e domain.RefreshLogEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Timestamp, &kind, &e.Message, pq.Array(&e.Changes)); err != nil {
			return nil, err
		}
		e.Kind = domain.LogKind(kind)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
