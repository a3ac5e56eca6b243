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

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	source_id     TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	content_hash  TEXT NOT NULL DEFAULT '',
	chunk_count   INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'unindexed',
	failed_chunks TEXT NOT NULL DEFAULT '[]',
	last_updated  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id           TEXT PRIMARY KEY,
	source_id    TEXT NOT NULL,
	chunk_index  INTEGER NOT NULL,
	text         TEXT NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_id);

CREATE TABLE IF NOT EXISTS embeddings (
	chunk_id   TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
	source_id  TEXT NOT NULL,
	vector     BLOB NOT NULL,
	dims       INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embeddings_source ON embeddings(source_id);
`

// SQLiteStore is the durable VectorStore. Every write goes through a SQLite
// transaction and is then mirrored into an in-memory arena; scans and reads
// are served from the arena, so queries never touch the database and observe
// per-source cut-overs atomically.
type SQLiteStore struct {
	mu     sync.Mutex // serializes writers; readers go through the cache
	db     *sql.DB
	path   string
	dims   int
	cache  *MemoryStore
	closed bool
}

// Verify interface implementation at compile time
var _ VectorStore = (*SQLiteStore)(nil)

// validateIntegrity checks a SQLite database before opening it for real.
// Returns nil if valid or missing, an error describing corruption if not.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// OpenSQLiteStore opens (or creates) the store at path for vectors of the
// given dimension and warms the in-memory arena from disk.
// An empty path opens an in-memory database for testing.
func OpenSQLiteStore(path string, dims int, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}

		if validErr := validateIntegrity(path); validErr != nil {
			logger.Warn("vector_store_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			logger.Info("vector_store_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite; DSN params
	// may be ignored by the driver.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{
		db:    db,
		path:  path,
		dims:  dims,
		cache: NewMemoryStore(dims),
	}

	if err := s.warmCache(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load store: %w", err)
	}

	return s, nil
}

// warmCache loads all rows into the in-memory arena.
func (s *SQLiteStore) warmCache() error {
	metas := make(map[string]*SourceMeta)
	rows, err := s.db.Query(`SELECT source_id, title, url, content_hash, chunk_count, status, failed_chunks, last_updated FROM sources`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var m SourceMeta
		var failedJSON string
		if err := rows.Scan(&m.SourceID, &m.Title, &m.URL, &m.ContentHash, &m.ChunkCount, &m.Status, &failedJSON, &m.LastUpdated); err != nil {
			_ = rows.Close()
			return err
		}
		if err := json.Unmarshal([]byte(failedJSON), &m.FailedChunks); err != nil {
			m.FailedChunks = nil
		}
		metas[m.SourceID] = &m
	}
	if err := rows.Close(); err != nil {
		return err
	}

	chunks := make(map[string][]*Chunk)
	rows, err = s.db.Query(`SELECT id, source_id, chunk_index, text, start_offset, end_offset FROM chunks ORDER BY source_id, chunk_index`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.SourceID, &c.Index, &c.Text, &c.StartOffset, &c.EndOffset); err != nil {
			_ = rows.Close()
			return err
		}
		chunks[c.SourceID] = append(chunks[c.SourceID], &c)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	recs := make(map[string][]*EmbeddingRecord)
	rows, err = s.db.Query(`SELECT chunk_id, source_id, vector, created_at FROM embeddings`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var r EmbeddingRecord
		var blob []byte
		if err := rows.Scan(&r.ChunkID, &r.SourceID, &blob, &r.CreatedAt); err != nil {
			_ = rows.Close()
			return err
		}
		r.Vector = decodeVector(blob)
		recs[r.SourceID] = append(recs[r.SourceID], &r)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for sid, meta := range metas {
		s.cache.replaceFromRows(sid, chunks[sid], recs[sid], meta)
	}
	return nil
}

func marshalFailed(failed []int) string {
	if len(failed) == 0 {
		return "[]"
	}
	data, err := json.Marshal(failed)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// Put stores one embedding record for an existing chunk.
func (s *SQLiteStore) Put(ctx context.Context, rec *EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if len(rec.Vector) != s.dims {
		return ErrDimensionMismatch{Expected: s.dims, Got: len(rec.Vector)}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, source_id, vector, dims, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET vector = excluded.vector, created_at = excluded.created_at`,
		rec.ChunkID, rec.SourceID, encodeVector(rec.Vector), s.dims, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("put embedding: %w", err)
	}

	return s.cache.Put(ctx, rec)
}

// GetAllBySource returns the source's embedding records in chunk index order.
func (s *SQLiteStore) GetAllBySource(ctx context.Context, sourceID string) ([]*EmbeddingRecord, error) {
	return s.cache.GetAllBySource(ctx, sourceID)
}

// GetAll returns every embedding record.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]*EmbeddingRecord, error) {
	return s.cache.GetAll(ctx)
}

// DeleteBySource removes the source's chunks, embeddings, and metadata in a
// single transaction, then drops the in-memory arena.
func (s *SQLiteStore) DeleteBySource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM embeddings WHERE source_id = ?`,
		`DELETE FROM chunks WHERE source_id = ?`,
		`DELETE FROM sources WHERE source_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, sourceID); err != nil {
			return fmt.Errorf("delete source %s: %w", sourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	return s.cache.DeleteBySource(ctx, sourceID)
}

// Count returns the number of stored embedding records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	return s.cache.Count(ctx)
}

// ReplaceSource swaps the source's chunk set, embeddings, and metadata within
// one transaction. The in-memory arena is cut over only after commit, so a
// concurrent query sees either the old set or the new set, never a mix.
func (s *SQLiteStore) ReplaceSource(ctx context.Context, sourceID string, chunks []*Chunk, recs []*EmbeddingRecord, meta *SourceMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	for _, r := range recs {
		if len(r.Vector) != s.dims {
			return ErrDimensionMismatch{Expected: s.dims, Got: len(r.Vector)}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source_id, chunk_index, text, start_offset, end_offset)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer func() { _ = chunkStmt.Close() }()

	for _, c := range chunks {
		if _, err := chunkStmt.ExecContext(ctx, c.ID, c.SourceID, c.Index, c.Text, c.StartOffset, c.EndOffset); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	recStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (chunk_id, source_id, vector, dims, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare embedding insert: %w", err)
	}
	defer func() { _ = recStmt.Close() }()

	for _, r := range recs {
		if _, err := recStmt.ExecContext(ctx, r.ChunkID, r.SourceID, encodeVector(r.Vector), s.dims, r.CreatedAt); err != nil {
			return fmt.Errorf("insert embedding %s: %w", r.ChunkID, err)
		}
	}

	if meta != nil {
		if err := upsertMeta(ctx, tx, meta); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}

	return s.cache.ReplaceSource(ctx, sourceID, chunks, recs, meta)
}

// ChunksBySource returns the source's chunks in index order.
func (s *SQLiteStore) ChunksBySource(ctx context.Context, sourceID string) ([]*Chunk, error) {
	return s.cache.ChunksBySource(ctx, sourceID)
}

// Scan scores every embedded chunk against the query vector.
func (s *SQLiteStore) Scan(ctx context.Context, query []float32, scope map[string]struct{}) ([]Match, error) {
	return s.cache.Scan(ctx, query, scope)
}

// Meta returns the source's metadata, or nil if unknown.
func (s *SQLiteStore) Meta(ctx context.Context, sourceID string) (*SourceMeta, error) {
	return s.cache.Meta(ctx, sourceID)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertMeta(ctx context.Context, ex execer, meta *SourceMeta) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO sources (source_id, title, url, content_hash, chunk_count, status, failed_chunks, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			status = excluded.status,
			failed_chunks = excluded.failed_chunks,
			last_updated = excluded.last_updated`,
		meta.SourceID, meta.Title, meta.URL, meta.ContentHash, meta.ChunkCount,
		string(meta.Status), marshalFailed(meta.FailedChunks), meta.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert source meta: %w", err)
	}
	return nil
}

// PutMeta upserts the source's metadata.
func (s *SQLiteStore) PutMeta(ctx context.Context, meta *SourceMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := upsertMeta(ctx, s.db, meta); err != nil {
		return err
	}
	return s.cache.PutMeta(ctx, meta)
}

// ListMeta returns metadata for all known sources.
func (s *SQLiteStore) ListMeta(ctx context.Context) ([]*SourceMeta, error) {
	return s.cache.ListMeta(ctx)
}

// Stats summarizes the corpus.
func (s *SQLiteStore) Stats(ctx context.Context) (*IndexStats, error) {
	return s.cache.Stats(ctx)
}

// Close closes the database. Further writes fail.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.cache.Close()
	return s.db.Close()
}
