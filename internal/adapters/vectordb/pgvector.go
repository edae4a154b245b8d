package vectordb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pgvector/pgvector-go"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

var _ ports.VectorIndex = (*PGVectorStore)(nil)

// PGVectorStore keeps the collection in PostgreSQL with the pgvector extension and
// lets the database rank by cosine distance (the <=> operator).
type PGVectorStore struct {
	db         *sql.DB
	collection string
	dims       int
	logger     *slog.Logger
}

// NewPGVectorStore connects to dsn and creates the schema for vectors of size dims.
func NewPGVectorStore(ctx context.Context, dsn, collection string, dims int, logger *slog.Logger) (*PGVectorStore, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: pgvector needs a fixed embedding dimension", entities.ErrConfiguration)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w: %w", entities.ErrBackendUnavailable, err)
	}

	store := &PGVectorStore{
		db:         db,
		collection: collection,
		dims:       dims,
		logger:     logger.With("backend", "pgvector", "collection", collection),
	}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	store.logger.Info("Checked/created table rag_entries", "dimensions", dims)
	return store, nil
}

func (s *PGVectorStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`CREATE TABLE IF NOT EXISTS rag_collections (
			name TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rag_entries (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			text TEXT NOT NULL,
			chunk_id INTEGER NOT NULL,
			start_word INTEGER NOT NULL,
			end_word INTEGER NOT NULL,
			word_count INTEGER NOT NULL,
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (collection, id)
		);`, s.dims),
		`CREATE INDEX IF NOT EXISTS idx_rag_entries_embedding ON rag_entries USING hnsw (embedding vector_cosine_ops);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Reset deletes the collection, then recreates it and checks it is empty.
func (s *PGVectorStore) Reset(ctx context.Context) error {
	if err := s.dropCollection(ctx); err != nil {
		s.logger.Warn("deleting collection", "error", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rag_collections (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, s.collection)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		return fmt.Errorf("verifying empty collection: %w", err)
	}
	if count != 0 {
		return fmt.Errorf("collection %q still holds %d entries after reset", s.collection, count)
	}
	return nil
}

func (s *PGVectorStore) dropCollection(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rag_entries WHERE collection = $1`, s.collection); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rag_collections WHERE name = $1`, s.collection); err != nil {
		return err
	}
	return tx.Commit()
}

// Add inserts entries as chunk_<position>, replacing rows with the same ID.
func (s *PGVectorStore) Add(ctx context.Context, entries []entities.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := checkDimensions(entries, s.dims); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rag_entries
			(collection, id, position, text, chunk_id, start_word, end_word, word_count, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (collection, id) DO UPDATE SET
			position = EXCLUDED.position,
			text = EXCLUDED.text,
			chunk_id = EXCLUDED.chunk_id,
			start_word = EXCLUDED.start_word,
			end_word = EXCLUDED.end_word,
			word_count = EXCLUDED.word_count,
			embedding = EXCLUDED.embedding
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for pos, e := range entries {
		_, err := stmt.ExecContext(ctx,
			s.collection,
			entities.EntryID(pos),
			pos,
			e.Text,
			e.Metadata.ChunkID,
			e.Metadata.StartWord,
			e.Metadata.EndWord,
			e.Metadata.WordCount,
			pgvector.NewVector(e.Vector),
		)
		if err != nil {
			return fmt.Errorf("inserting entry %d: %w", pos, err)
		}
	}
	return tx.Commit()
}

// Search returns the k entries closest to query by cosine distance.
func (s *PGVectorStore) Search(ctx context.Context, query []float32, k int) ([]entities.RetrievalResult, error) {
	if k <= 0 {
		return []entities.RetrievalResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, chunk_id, start_word, end_word, word_count, embedding <=> $1 AS distance
		FROM rag_entries
		WHERE collection = $2
		ORDER BY distance, position
		LIMIT $3
	`, pgvector.NewVector(query), s.collection, k)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	results := []entities.RetrievalResult{}
	for rows.Next() {
		var r entities.RetrievalResult
		var dist sql.NullFloat64
		err := rows.Scan(
			&r.ID,
			&r.Text,
			&r.Metadata.ChunkID,
			&r.Metadata.StartWord,
			&r.Metadata.EndWord,
			&r.Metadata.WordCount,
			&dist,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if dist.Valid {
			d := dist.Float64
			r.Distance = &d
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return results, nil
}

// Count returns the number of entries in the collection.
func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rag_entries WHERE collection = $1`, s.collection).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *PGVectorStore) Close() error {
	return s.db.Close()
}
