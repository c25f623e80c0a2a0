package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"content_refresher/internal/domain"
)

type DocumentStore struct {
	db *sqlx.DB
	tx *TransactionManager
}

func NewDocumentStore(db *sqlx.DB) *DocumentStore {
	return &DocumentStore{db: db, tx: NewTransactionManager(db)}
}

type documentRow struct {
	ID               int64      `db:"id"`
	Title            string     `db:"title"`
	TemplateKind     string     `db:"template_kind"`
	RefreshEnabled   bool       `db:"refresh_enabled"`
	RefreshFrequency string     `db:"refresh_frequency"`
	LastRefreshAt    *time.Time `db:"last_refresh_at"`
	NextRefreshAt    *time.Time `db:"next_refresh_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func (r documentRow) toDomain() domain.Document {
	return domain.Document{
		ID:               r.ID,
		Title:            r.Title,
		TemplateKind:     r.TemplateKind,
		RefreshEnabled:   r.RefreshEnabled,
		RefreshFrequency: domain.RefreshFrequency(r.RefreshFrequency),
		LastRefreshAt:    r.LastRefreshAt,
		NextRefreshAt:    r.NextRefreshAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type sectionRow struct {
	DocumentID int64 `db:"document_id"`
	domain.Section
}

const documentColumns = `id, title, template_kind, refresh_enabled, refresh_frequency,
	last_refresh_at, next_refresh_at, created_at, updated_at`

func (s *DocumentStore) Get(ctx context.Context, id int64) (*domain.Document, error) {
	exec := GetExecutor(ctx, s.db)

	var row documentRow
	err := sqlx.GetContext(ctx, exec, &row,
		"SELECT "+documentColumns+" FROM documents WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	doc := row.toDomain()
	sections, err := s.sectionsFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	doc.Sections = sections[id]

	return &doc, nil
}

func (s *DocumentStore) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE refresh_enabled
			AND next_refresh_at IS NOT NULL
			AND next_refresh_at <= $1
		ORDER BY next_refresh_at, id
		LIMIT $2`

	var rows []documentRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, now, limit); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	sections, err := s.sectionsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	docs := make([]domain.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.toDomain()
		docs[i].Sections = sections[r.ID]
	}
	return docs, nil
}

func (s *DocumentStore) sectionsFor(ctx context.Context, ids []int64) (map[int64][]domain.Section, error) {
	query := `
		SELECT document_id, name, label, content, required
		FROM document_sections
		WHERE document_id = ANY($1)
		ORDER BY document_id, name`

	var rows []sectionRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, pq.Array(ids)); err != nil {
		return nil, err
	}

	result := make(map[int64][]domain.Section, len(ids))
	for _, r := range rows {
		result[r.DocumentID] = append(result[r.DocumentID], r.Section)
	}
	return result, nil
}

// UpdateSections upserts the given sections. Sections not listed are kept.
func (s *DocumentStore) UpdateSections(ctx context.Context, id int64, sections []domain.Section) error {
	if len(sections) == 0 {
		return nil
	}

	return s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)

		var sb strings.Builder
		sb.WriteString("INSERT INTO document_sections (document_id, name, label, content, required) VALUES ")
		valueArgs := make([]interface{}, 0, len(sections)*4+1)
		valueArgs = append(valueArgs, id)

		for i, sec := range sections {
			if i > 0 {
				sb.WriteString(", ")
			}
			base := i*4 + 2
			sb.WriteString("($1, $")
			sb.WriteString(strconv.Itoa(base))
			sb.WriteString(", $")
			sb.WriteString(strconv.Itoa(base + 1))
			sb.WriteString(", $")
			sb.WriteString(strconv.Itoa(base + 2))
			sb.WriteString(", $")
			sb.WriteString(strconv.Itoa(base + 3))
			sb.WriteString(")")
			valueArgs = append(valueArgs, sec.Name, sec.Label, sec.Content, sec.Required)
		}
		sb.WriteString(` ON CONFLICT (document_id, name) DO UPDATE SET
			label = EXCLUDED.label,
			content = EXCLUDED.content,
			updated_at = NOW()`)

		if _, err := exec.ExecContext(txCtx, sb.String(), valueArgs...); err != nil {
			return fmt.Errorf("upsert sections: %w", err)
		}

		res, err := exec.ExecContext(txCtx, "UPDATE documents SET updated_at = NOW() WHERE id = $1", id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

func (s *DocumentStore) UpdateSchedule(ctx context.Context, id int64, schedule domain.RefreshSchedule) error {
	query := `
		UPDATE documents SET
			refresh_enabled = $2,
			refresh_frequency = $3,
			last_refresh_at = $4,
			next_refresh_at = $5,
			updated_at = NOW()
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		id,
		schedule.Enabled,
		string(schedule.Frequency),
		schedule.LastRefreshAt,
		schedule.NextRefreshAt,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Create inserts a document with its sections and returns the new id.
func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) (int64, error) {
	freq := doc.RefreshFrequency
	if !freq.Valid() {
		freq = domain.DefaultFrequency
	}

	var id int64
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		query := `
			INSERT INTO documents (
				title, template_kind, refresh_enabled, refresh_frequency,
				last_refresh_at, next_refresh_at
			) VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`

		err := GetExecutor(txCtx, s.db).QueryRowxContext(txCtx, query,
			doc.Title,
			doc.TemplateKind,
			doc.RefreshEnabled,
			string(freq),
			doc.LastRefreshAt,
			doc.NextRefreshAt,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}

		return s.UpdateSections(txCtx, id, doc.Sections)
	})
	if err != nil {
		return 0, err
	}

	doc.ID = id
	doc.RefreshFrequency = freq
	return id, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
