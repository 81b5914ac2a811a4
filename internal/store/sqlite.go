package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/Dadudekc/swarmmem/internal/canon"
	storeerr "github.com/Dadudekc/swarmmem/internal/errors"
)

const (
	dbFileName   = "store.db"
	lockFileName = "store.lock"
)

// SQLiteStore is the durable DocumentStore backed by a single SQLite file
// under the data directory, plus the in-process semantic index rebuilt
// from the embeddings table at open.
type SQLiteStore struct {
	db       *sql.DB
	dataDir  string
	lock     *flock.Flock
	semantic *SemanticIndex
	logger   *slog.Logger
}

// Open creates or opens the store at dataDir. The data directory is
// guarded by a file lock so two processes never share the writer.
func Open(ctx context.Context, dataDir string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, storeerr.New(storeerr.ErrCodeStoreOpen,
			fmt.Sprintf("create data dir %s: %v", dataDir, err), err)
	}

	lock := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, storeerr.New(storeerr.ErrCodeStoreOpen,
			fmt.Sprintf("acquire data dir lock: %v", err), err)
	}
	if !locked {
		return nil, storeerr.New(storeerr.ErrCodeStoreLocked,
			fmt.Sprintf("data dir %s is locked by another process", dataDir), nil)
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, storeerr.New(storeerr.ErrCodeStoreOpen,
			fmt.Sprintf("open database %s: %v", dbPath, err), err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA statements: modernc.org/sqlite
	// ignores journal params in the DSN.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, storeerr.New(storeerr.ErrCodeStoreOpen,
				fmt.Sprintf("set pragma %q: %v", pragma, err), err)
		}
	}

	s := &SQLiteStore{
		db:       db,
		dataDir:  dataDir,
		lock:     lock,
		semantic: NewSemanticIndex(),
		logger:   logger,
	}

	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	if err := s.loadSemanticIndex(ctx); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			doc_id         TEXT PRIMARY KEY,
			kind           TEXT NOT NULL,
			project        TEXT NOT NULL DEFAULT '',
			agent_id       TEXT NOT NULL DEFAULT '',
			ts             INTEGER NOT NULL,
			title          TEXT NOT NULL DEFAULT '',
			summary        TEXT NOT NULL DEFAULT '',
			tags           TEXT NOT NULL DEFAULT '[]',
			meta           TEXT NOT NULL DEFAULT '{}',
			canonical      TEXT NOT NULL,
			embed_state    TEXT NOT NULL DEFAULT 'pending',
			embed_attempts INTEGER NOT NULL DEFAULT 0,
			created_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_agent ON documents(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_kind ON documents(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_ts ON documents(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_embed_state ON documents(embed_state)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			doc_id     TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
			backend_id TEXT NOT NULL,
			dims       INTEGER NOT NULL,
			norm       REAL NOT NULL,
			created_at INTEGER NOT NULL,
			vector     BLOB NOT NULL,
			PRIMARY KEY (doc_id, backend_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_backend ON embeddings(backend_id)`,
		`CREATE TABLE IF NOT EXISTS ingest_keys (
			ingest_key TEXT PRIMARY KEY,
			doc_id     TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_docs USING fts5(
			doc_id UNINDEXED, title, summary, canonical
		)`,
	}
	schemas = append(schemas, lensSchemas...)

	for _, stmt := range schemas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeerr.New(storeerr.ErrCodeStoreOpen,
				fmt.Sprintf("create schema: %v", err), err)
		}
	}

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, CurrentSchemaVersion)
		if err != nil {
			return storeerr.Storage("write schema version", err)
		}
	case err != nil:
		return storeerr.Storage("read schema version", err)
	case version > CurrentSchemaVersion:
		return storeerr.New(storeerr.ErrCodeStoreCorrupt,
			fmt.Sprintf("database schema version %d is newer than supported %d", version, CurrentSchemaVersion), nil)
	}

	return nil
}

// loadSemanticIndex rebuilds the HNSW graphs from the embeddings table.
// Rows with undecodable vectors are skipped with a warning rather than
// failing the open.
func (s *SQLiteStore) loadSemanticIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id, backend_id, vector FROM embeddings`)
	if err != nil {
		return storeerr.Storage("load semantic index", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var docID, backendID string
		var blob []byte
		if err := rows.Scan(&docID, &backendID, &blob); err != nil {
			return storeerr.Storage("scan embedding row", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			s.logger.Warn("skipping undecodable embedding",
				"doc_id", docID, "backend_id", backendID, "error", err)
			continue
		}
		if err := s.semantic.Add(backendID, docID, vec); err != nil {
			s.logger.Warn("skipping embedding with bad dimensions",
				"doc_id", docID, "backend_id", backendID, "error", err)
		} else {
			loaded++
		}
	}
	if err := rows.Err(); err != nil {
		return storeerr.Storage("iterate embeddings", err)
	}

	if loaded > 0 {
		s.logger.Debug("semantic index rebuilt", "vectors", loaded)
	}
	return rows.Err()
}

// Semantic returns the in-process vector index.
func (s *SQLiteStore) Semantic() *SemanticIndex { return s.semantic }

// InsertDocument commits the document, its lens row, its keyword index
// row, and the optional ingest key in one transaction. Either all land
// or none do. The ingest key conflict check happens inside the same
// transaction, so two concurrent inserts with one key cannot both win:
// the loser's document is rolled back and the holder's ID returned.
func (s *SQLiteStore) InsertDocument(ctx context.Context, doc *Document, ingestKey string, dedupWindow time.Duration) (string, error) {
	if doc.Lens == nil || doc.Lens.Kind != doc.Kind {
		return "", storeerr.Internal("document lens missing or kind mismatch", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", storeerr.Storage("begin insert tx", err)
	}
	defer tx.Rollback()

	if ingestKey != "" {
		now := time.Now()
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO ingest_keys (ingest_key, doc_id, created_at) VALUES (?, ?, ?)`,
			ingestKey, doc.ID, now.UnixMilli())
		if err != nil {
			return "", storeerr.Storage("insert ingest key", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var holder string
			var createdAt int64
			err := tx.QueryRowContext(ctx,
				`SELECT doc_id, created_at FROM ingest_keys WHERE ingest_key = ?`, ingestKey).
				Scan(&holder, &createdAt)
			if err != nil {
				return "", storeerr.Storage("read ingest key holder", err)
			}
			if now.Sub(time.UnixMilli(createdAt)) <= dedupWindow {
				return holder, nil
			}
			// Stale key outside the window: rebind it to the new document.
			_, err = tx.ExecContext(ctx,
				`UPDATE ingest_keys SET doc_id = ?, created_at = ? WHERE ingest_key = ?`,
				doc.ID, now.UnixMilli(), ingestKey)
			if err != nil {
				return "", storeerr.Storage("rebind ingest key", err)
			}
		}
	}

	if doc.EmbedState == "" {
		doc.EmbedState = EmbedStatePending
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents
			(doc_id, kind, project, agent_id, ts, title, summary, tags, meta,
			 canonical, embed_state, embed_attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, string(doc.Kind), doc.Project, doc.AgentID,
		doc.Timestamp.UnixMilli(), doc.Title, doc.Summary,
		encodeJSON(doc.Tags), encodeJSON(doc.Meta), doc.Canonical,
		string(doc.EmbedState), doc.EmbedAttempts, time.Now().UnixMilli())
	if err != nil {
		return "", storeerr.Storage("insert document", err)
	}

	if err := insertLens(ctx, tx, doc.ID, doc.Lens); err != nil {
		return "", storeerr.Storage("insert lens", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO fts_docs (doc_id, title, summary, canonical) VALUES (?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Summary, doc.Canonical)
	if err != nil {
		return "", storeerr.Storage("insert keyword row", err)
	}

	if err := tx.Commit(); err != nil {
		return "", storeerr.Storage("commit insert", err)
	}
	return "", nil
}

// AttachEmbedding upserts one embedding row and mirrors it into the
// semantic index. updateState moves the document's embedding sub-state to
// attached; re-embedding under a secondary backend passes false so the
// default backend's sub-state is untouched.
func (s *SQLiteStore) AttachEmbedding(ctx context.Context, emb *Embedding, updateState bool) error {
	if len(emb.Vector) == 0 {
		return storeerr.Internal("attach of empty vector", nil)
	}
	if emb.Dims == 0 {
		emb.Dims = len(emb.Vector)
	}
	if emb.Dims != len(emb.Vector) {
		return storeerr.New(storeerr.ErrCodeEmbedDimension,
			fmt.Sprintf("vector length %d does not match dims %d", len(emb.Vector), emb.Dims), nil)
	}
	if emb.Norm == 0 {
		emb.Norm = vectorNorm(emb.Vector)
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now()
	}

	// Reject index-incompatible vectors before the transaction commits,
	// so the attached state never outruns the semantic index.
	if err := s.semantic.CheckDims(emb.BackendID, len(emb.Vector)); err != nil {
		return storeerr.New(storeerr.ErrCodeEmbedDimension, err.Error(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeerr.Storage("begin attach tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (doc_id, backend_id, dims, norm, created_at, vector)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		emb.DocID, emb.BackendID, emb.Dims, emb.Norm,
		emb.CreatedAt.UnixMilli(), encodeVector(emb.Vector))
	if err != nil {
		return storeerr.Storage("insert embedding", err)
	}

	if updateState {
		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET embed_state = ? WHERE doc_id = ?`,
			string(EmbedStateAttached), emb.DocID)
		if err != nil {
			return storeerr.Storage("update embed state", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storeerr.New(storeerr.ErrCodeDocNotFound,
				fmt.Sprintf("document %s not found", emb.DocID), nil)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeerr.Storage("commit attach", err)
	}

	// The DB already says attached; a racing index mismatch only costs
	// this vector's presence in the in-process index until reopen.
	if err := s.semantic.Add(emb.BackendID, emb.DocID, emb.Vector); err != nil {
		s.logger.Warn("semantic index add failed after commit",
			"doc_id", emb.DocID, "backend_id", emb.BackendID, "error", err)
	}
	return nil
}

// RecordEmbedFailure bumps the attempt counter and, once maxAttempts is
// reached, moves the document to the failed sub-state. Returns whether
// the document is now failed.
func (s *SQLiteStore) RecordEmbedFailure(ctx context.Context, docID string, maxAttempts int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storeerr.Storage("begin failure tx", err)
	}
	defer tx.Rollback()

	var attempts int
	err = tx.QueryRowContext(ctx,
		`SELECT embed_attempts FROM documents WHERE doc_id = ?`, docID).Scan(&attempts)
	if err == sql.ErrNoRows {
		return false, storeerr.New(storeerr.ErrCodeDocNotFound,
			fmt.Sprintf("document %s not found", docID), nil)
	}
	if err != nil {
		return false, storeerr.Storage("read embed attempts", err)
	}

	attempts++
	state := EmbedStatePending
	if attempts >= maxAttempts {
		state = EmbedStateFailed
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET embed_attempts = ?, embed_state = ? WHERE doc_id = ?`,
		attempts, string(state), docID)
	if err != nil {
		return false, storeerr.Storage("record embed failure", err)
	}

	if err := tx.Commit(); err != nil {
		return false, storeerr.Storage("commit failure", err)
	}
	return state == EmbedStateFailed, nil
}

// PurgeIngestKeys drops idempotency keys older than olderThan.
func (s *SQLiteStore) PurgeIngestKeys(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	_, err := s.db.ExecContext(ctx, `DELETE FROM ingest_keys WHERE created_at < ?`, cutoff)
	if err != nil {
		return storeerr.Storage("purge ingest keys", err)
	}
	return nil
}

// DeleteDocuments removes documents and all dependent rows. Lens and
// embedding rows cascade; the keyword index and semantic index are
// cleaned explicitly.
func (s *SQLiteStore) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeerr.Storage("begin delete tx", err)
	}
	defer tx.Rollback()

	delDoc, err := tx.PrepareContext(ctx, `DELETE FROM documents WHERE doc_id = ?`)
	if err != nil {
		return storeerr.Storage("prepare delete", err)
	}
	defer delDoc.Close()

	delFTS, err := tx.PrepareContext(ctx, `DELETE FROM fts_docs WHERE doc_id = ?`)
	if err != nil {
		return storeerr.Storage("prepare keyword delete", err)
	}
	defer delFTS.Close()

	delKey, err := tx.PrepareContext(ctx, `DELETE FROM ingest_keys WHERE doc_id = ?`)
	if err != nil {
		return storeerr.Storage("prepare ingest key delete", err)
	}
	defer delKey.Close()

	for _, id := range ids {
		if _, err := delDoc.ExecContext(ctx, id); err != nil {
			return storeerr.Storage("delete document", err)
		}
		if _, err := delFTS.ExecContext(ctx, id); err != nil {
			return storeerr.Storage("delete keyword row", err)
		}
		if _, err := delKey.ExecContext(ctx, id); err != nil {
			return storeerr.Storage("delete ingest key", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeerr.Storage("commit delete", err)
	}

	for _, id := range ids {
		s.semantic.Delete(id)
	}
	return nil
}

// Cleanup enforces retention: documents older than maxAge go first, then
// the oldest beyond maxCount. Zero disables either bound. Returns the
// number of documents removed.
func (s *SQLiteStore) Cleanup(ctx context.Context, maxAge time.Duration, maxCount int, scope Scope) (int, error) {
	var victims []string

	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge).UnixMilli()
		q := `SELECT doc_id FROM documents WHERE ts < ?`
		args := []any{cutoff}
		if scope.Project != "" {
			q += ` AND project = ?`
			args = append(args, scope.Project)
		}
		ids, err := s.collectIDs(ctx, q, args...)
		if err != nil {
			return 0, err
		}
		victims = append(victims, ids...)
	}

	if err := s.DeleteDocuments(ctx, victims); err != nil {
		return 0, err
	}
	removed := len(victims)

	if maxCount > 0 {
		q := `SELECT doc_id FROM documents`
		args := []any{}
		if scope.Project != "" {
			q += ` WHERE project = ?`
			args = append(args, scope.Project)
		}
		q += ` ORDER BY ts DESC LIMIT -1 OFFSET ?`
		args = append(args, maxCount)

		overflow, err := s.collectIDs(ctx, q, args...)
		if err != nil {
			return removed, err
		}
		if err := s.DeleteDocuments(ctx, overflow); err != nil {
			return removed, err
		}
		removed += len(overflow)
	}

	return removed, nil
}

func (s *SQLiteStore) collectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeerr.Storage("collect doc ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeerr.Storage("scan doc id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close checkpoints the WAL, closes the database, and releases the data
// directory lock.
func (s *SQLiteStore) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	if err != nil {
		return storeerr.Storage("close database", err)
	}
	return nil
}

var _ DocumentStore = (*SQLiteStore)(nil)

// kindOf converts a stored kind column back to the typed kind without
// re-validating; stored rows were validated at ingest.
func kindOf(s string) canon.Kind { return canon.Kind(s) }
