package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richinex/querygate/model"
)

// PostgresDocuments serves candidate documents from PostgreSQL.
type PostgresDocuments struct {
	pool *pgxpool.Pool
}

// NewPostgresDocuments wraps an open pool.
func NewPostgresDocuments(pool *pgxpool.Pool) *PostgresDocuments {
	return &PostgresDocuments{pool: pool}
}

// OpenPostgres connects, pings and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresDocuments, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	s := NewPostgresDocuments(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *PostgresDocuments) Close() {
	s.pool.Close()
}

// Migrate creates the documents table if it doesn't exist.
func (s *PostgresDocuments) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id          TEXT PRIMARY KEY,
			owner_scope TEXT        NOT NULL DEFAULT '',
			title       TEXT        NOT NULL,
			body        TEXT        NOT NULL,
			summary     TEXT        NOT NULL DEFAULT '',
			tags        TEXT[]      NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_documents_scope ON documents (owner_scope);
	`)
	return err
}

// PutDocument upserts doc by ID.
func (s *PostgresDocuments) PutDocument(ctx context.Context, doc model.Document) error {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, owner_scope, title, body, summary, tags, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   owner_scope = EXCLUDED.owner_scope,
		   title = EXCLUDED.title,
		   body = EXCLUDED.body,
		   summary = EXCLUDED.summary,
		   tags = EXCLUDED.tags,
		   created_at = EXCLUDED.created_at`,
		doc.ID, doc.OwnerScope, doc.Title, doc.Body, doc.Summary, tags, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

// GetDocument looks up a document by ID.
func (s *PostgresDocuments) GetDocument(ctx context.Context, id string) (model.Document, error) {
	var doc model.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_scope, title, body, summary, tags, created_at FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.OwnerScope, &doc.Title, &doc.Body, &doc.Summary, &doc.Tags, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Document{}, ErrNotFound
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// FetchCandidates returns scope's documents ordered by ID.
func (s *PostgresDocuments) FetchCandidates(ctx context.Context, scope string, ids []string) ([]model.Document, error) {
	query := `SELECT id, owner_scope, title, body, summary, tags, created_at
		FROM documents WHERE owner_scope = $1`
	args := []any{scope}
	if len(ids) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, ids)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Document, error) {
		var doc model.Document
		err := row.Scan(&doc.ID, &doc.OwnerScope, &doc.Title, &doc.Body, &doc.Summary, &doc.Tags, &doc.CreatedAt)
		return doc, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return docs, nil
}

var _ DocumentStore = (*PostgresDocuments)(nil)
