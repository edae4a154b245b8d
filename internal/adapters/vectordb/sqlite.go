package vectordb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

var _ ports.VectorIndex = (*SQLiteStore)(nil)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "documents"

// SQLiteStore persists one named collection in a SQLite file and searches it by
// brute-force cosine distance.
type SQLiteStore struct {
	mu         sync.RWMutex
	db         *sql.DB
	dataPath   string
	collection string
	dims       int
	logger     *slog.Logger
}

// NewSQLiteStore opens (or creates) <dataPath>/vectors.db.
func NewSQLiteStore(dataPath, collection string, dims int, logger *slog.Logger) (*SQLiteStore, error) {
	if dataPath == "" {
		dataPath = "./data"
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "vectors.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:         db,
		dataPath:   dataPath,
		collection: collection,
		dims:       dims,
		logger:     logger.With("backend", "sqlite", "collection", collection),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return store, nil
}

// initSchema creates the necessary tables.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS entries (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		text TEXT NOT NULL,
		chunk_id INTEGER NOT NULL,
		start_word INTEGER NOT NULL,
		end_word INTEGER NOT NULL,
		word_count INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_entries_position ON entries(collection, position);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes the collection, then recreates it and checks it is empty.
// A failed delete is only logged; the post-condition check decides the result.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dropCollection(ctx); err != nil {
		s.logger.Warn("deleting collection", "error", err)
	}

	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name) VALUES (?)`, s.collection); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	count, err := s.count(ctx)
	if err != nil {
		return fmt.Errorf("verifying empty collection: %w", err)
	}
	if count != 0 {
		return fmt.Errorf("collection %q still holds %d entries after reset", s.collection, count)
	}
	return nil
}

func (s *SQLiteStore) dropCollection(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE collection = ?`, s.collection); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
		return err
	}
	return tx.Commit()
}

// Add saves entries with their embeddings as chunk_<position>.
func (s *SQLiteStore) Add(ctx context.Context, entries []entities.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := checkDimensions(entries, s.dims); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO entries
			(collection, id, position, text, chunk_id, start_word, end_word, word_count, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for pos, e := range entries {
		_, err = stmt.ExecContext(ctx,
			s.collection,
			entities.EntryID(pos),
			pos,
			e.Text,
			e.Metadata.ChunkID,
			e.Metadata.StartWord,
			e.Metadata.EndWord,
			e.Metadata.WordCount,
			encodeVector(e.Vector),
		)
		if err != nil {
			return fmt.Errorf("inserting entry %d: %w", pos, err)
		}
	}

	return tx.Commit()
}

// Search finds the k entries closest to query.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, k int) ([]entities.RetrievalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, text, chunk_id, start_word, end_word, word_count, embedding
		FROM entries
		WHERE collection = ?
		ORDER BY position
	`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var stored []storedEntry
	for rows.Next() {
		var se storedEntry
		var blob []byte
		err := rows.Scan(
			&se.id,
			&se.position,
			&se.entry.Text,
			&se.entry.Metadata.ChunkID,
			&se.entry.Metadata.StartWord,
			&se.entry.Metadata.EndWord,
			&se.entry.Metadata.WordCount,
			&blob,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if se.entry.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("entry %s: %w", se.id, err)
		}
		stored = append(stored, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}

	return rankByDistance(query, stored, k), nil
}

// Count returns the number of entries in the collection.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count(ctx)
}

func (s *SQLiteStore) count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE collection = ?`, s.collection).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupted embedding: %d bytes", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
