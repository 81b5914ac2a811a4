package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	storeerr "github.com/Dadudekc/swarmmem/internal/errors"
)

// filterClause renders Filters as AND conditions against the aliased
// documents table.
func filterClause(f Filters, alias string) (string, []any) {
	var sb strings.Builder
	var args []any

	if f.Project != "" {
		fmt.Fprintf(&sb, " AND %s.project = ?", alias)
		args = append(args, f.Project)
	}
	if f.AgentID != "" {
		fmt.Fprintf(&sb, " AND %s.agent_id = ?", alias)
		args = append(args, f.AgentID)
	}
	if len(f.Kinds) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Kinds)), ",")
		fmt.Fprintf(&sb, " AND %s.kind IN (%s)", alias, placeholders)
		for _, k := range f.Kinds {
			args = append(args, string(k))
		}
	}
	return sb.String(), args
}

const documentColumns = `doc_id, kind, project, agent_id, ts, title, summary,
	tags, meta, canonical, embed_state, embed_attempts`

func (s *SQLiteStore) scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var doc Document
	var kind, state, tagsJSON, metaJSON string
	var ts int64

	err := row.Scan(&doc.ID, &kind, &doc.Project, &doc.AgentID, &ts,
		&doc.Title, &doc.Summary, &tagsJSON, &metaJSON, &doc.Canonical,
		&state, &doc.EmbedAttempts)
	if err != nil {
		return nil, err
	}

	doc.Kind = kindOf(kind)
	doc.Timestamp = time.UnixMilli(ts)
	doc.EmbedState = EmbedState(state)
	doc.Tags = decodeStringSlice(tagsJSON)
	doc.Meta = decodeStringMap(metaJSON)
	return &doc, nil
}

// GetDocument fetches one document with its lens.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE doc_id = ?`, id)

	doc, err := s.scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, storeerr.New(storeerr.ErrCodeDocNotFound,
			fmt.Sprintf("document %s not found", id), nil)
	}
	if err != nil {
		return nil, storeerr.Storage("get document", err)
	}

	lens, err := s.loadLens(ctx, doc.ID, doc.Kind)
	if err == sql.ErrNoRows {
		return nil, storeerr.New(storeerr.ErrCodeStoreCorrupt,
			fmt.Sprintf("document %s has no lens row", id), nil)
	}
	if err != nil {
		return nil, storeerr.Storage("get lens", err)
	}
	doc.Lens = lens
	return doc, nil
}

// GetEmbedding fetches one embedding row.
func (s *SQLiteStore) GetEmbedding(ctx context.Context, docID, backendID string) (*Embedding, error) {
	emb := &Embedding{DocID: docID, BackendID: backendID}
	var createdAt int64
	var blob []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT dims, norm, created_at, vector FROM embeddings
		 WHERE doc_id = ? AND backend_id = ?`, docID, backendID).
		Scan(&emb.Dims, &emb.Norm, &createdAt, &blob)
	if err == sql.ErrNoRows {
		return nil, storeerr.New(storeerr.ErrCodeDocNotFound,
			fmt.Sprintf("no %s embedding for document %s", backendID, docID), nil)
	}
	if err != nil {
		return nil, storeerr.Storage("get embedding", err)
	}

	emb.CreatedAt = time.UnixMilli(createdAt)
	if emb.Vector, err = decodeVector(blob); err != nil {
		return nil, storeerr.New(storeerr.ErrCodeStoreCorrupt,
			fmt.Sprintf("embedding %s/%s: %v", docID, backendID, err), err)
	}
	return emb, nil
}

// LatestBackendFor returns the backend of the most recently attached
// embedding for a document.
func (s *SQLiteStore) LatestBackendFor(ctx context.Context, docID string) (string, error) {
	var backendID string
	err := s.db.QueryRowContext(ctx,
		`SELECT backend_id FROM embeddings WHERE doc_id = ?
		 ORDER BY created_at DESC LIMIT 1`, docID).Scan(&backendID)
	if err == sql.ErrNoRows {
		return "", storeerr.New(storeerr.ErrCodeDocNotFound,
			fmt.Sprintf("document %s has no embeddings", docID), nil)
	}
	if err != nil {
		return "", storeerr.Storage("latest backend", err)
	}
	return backendID, nil
}

func (s *SQLiteStore) listDocuments(ctx context.Context, query string, args ...any) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeerr.Storage("list documents", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := s.scanDocument(rows)
		if err != nil {
			return nil, storeerr.Storage("scan document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeerr.Storage("iterate documents", err)
	}

	// Lens rows load outside the row iteration; SQLite holds one
	// connection, nested queries would deadlock.
	for _, doc := range docs {
		lens, err := s.loadLens(ctx, doc.ID, doc.Kind)
		if err != nil {
			return nil, storeerr.Storage("load lens", err)
		}
		doc.Lens = lens
	}
	return docs, nil
}

// ListDocuments returns documents matching the filters, newest first.
// limit <= 0 means unbounded.
func (s *SQLiteStore) ListDocuments(ctx context.Context, f Filters, limit int) ([]*Document, error) {
	if limit <= 0 {
		limit = -1
	}
	clause, args := filterClause(f, "d")
	return s.listDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents d
		 WHERE 1=1`+clause+` ORDER BY ts DESC LIMIT ?`,
		append(args, limit)...)
}

// ListPendingDocs returns documents awaiting their default backend
// embedding, oldest first so backfill drains in ingest order.
func (s *SQLiteStore) ListPendingDocs(ctx context.Context, limit int) ([]*Document, error) {
	return s.listDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE embed_state = ? ORDER BY ts ASC LIMIT ?`,
		string(EmbedStatePending), limit)
}

// ListMissingEmbeddings returns documents that have no embedding row for
// backendID, regardless of their default backend sub-state. Used by
// re-embedding migration.
func (s *SQLiteStore) ListMissingEmbeddings(ctx context.Context, backendID string, limit int) ([]*Document, error) {
	return s.listDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents d
		 WHERE NOT EXISTS (
			SELECT 1 FROM embeddings e WHERE e.doc_id = d.doc_id AND e.backend_id = ?
		 ) ORDER BY ts ASC LIMIT ?`,
		backendID, limit)
}

// ScanEmbeddings streams every embedding row for backendID whose document
// matches the filters, newest first. fn returning false stops the scan.
func (s *SQLiteStore) ScanEmbeddings(ctx context.Context, backendID string, f Filters, fn ScanFunc) error {
	clause, args := filterClause(f, "d")
	query := `SELECT e.doc_id, d.ts, e.vector FROM embeddings e
		JOIN documents d ON d.doc_id = e.doc_id
		WHERE e.backend_id = ?` + clause + ` ORDER BY d.ts DESC`

	rows, err := s.db.QueryContext(ctx, query, append([]any{backendID}, args...)...)
	if err != nil {
		return storeerr.Storage("scan embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var docID string
		var ts int64
		var blob []byte
		if err := rows.Scan(&docID, &ts, &blob); err != nil {
			return storeerr.Storage("scan embedding row", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			s.logger.Warn("skipping undecodable embedding", "doc_id", docID, "error", err)
			continue
		}
		if !fn(docID, time.UnixMilli(ts), vec) {
			return nil
		}
	}
	return rows.Err()
}

// CountEligible counts documents matching the filters that could carry an
// embedding. Permanently failed documents are excluded; they never rejoin
// semantic ranking, so counting them would report a backlog forever.
func (s *SQLiteStore) CountEligible(ctx context.Context, f Filters) (int, error) {
	clause, args := filterClause(f, "d")
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents d WHERE d.embed_state != ?`+clause,
		append([]any{string(EmbedStateFailed)}, args...)...).Scan(&n)
	if err != nil {
		return 0, storeerr.Storage("count eligible", err)
	}
	return n, nil
}

// CountEmbedded counts documents matching the filters that carry an
// embedding row for backendID.
func (s *SQLiteStore) CountEmbedded(ctx context.Context, backendID string, f Filters) (int, error) {
	clause, args := filterClause(f, "d")
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM embeddings e
		 JOIN documents d ON d.doc_id = e.doc_id
		 WHERE e.backend_id = ?`+clause,
		append([]any{backendID}, args...)...).Scan(&n)
	if err != nil {
		return 0, storeerr.Storage("count embedded", err)
	}
	return n, nil
}

// KeywordSearch runs an FTS5 match over title, summary, and canonical
// text. Scores are negated bm25 ranks so higher is better, matching the
// semantic score ordering convention.
func (s *SQLiteStore) KeywordSearch(ctx context.Context, query string, limit int, f Filters) ([]KeywordHit, error) {
	match := sanitizeMatchQuery(query)
	if match == "" {
		return []KeywordHit{}, nil
	}

	clause, args := filterClause(f, "d")
	sqlQuery := `SELECT fts_docs.doc_id, bm25(fts_docs) FROM fts_docs
		JOIN documents d ON d.doc_id = fts_docs.doc_id
		WHERE fts_docs MATCH ?` + clause + `
		ORDER BY bm25(fts_docs) LIMIT ?`

	rows, err := s.db.QueryContext(ctx, sqlQuery,
		append(append([]any{match}, args...), limit)...)
	if err != nil {
		return nil, storeerr.Storage("keyword search", err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var hit KeywordHit
		var rank float64
		if err := rows.Scan(&hit.DocID, &rank); err != nil {
			return nil, storeerr.Storage("scan keyword hit", err)
		}
		hit.Score = -rank
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// sanitizeMatchQuery quotes each token so user text never reaches the
// FTS5 query parser as syntax.
func sanitizeMatchQuery(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}

// GetStats aggregates document counts by kind, agent, and project, the
// embedding sub-state backlog, and per-backend coverage.
func (s *SQLiteStore) GetStats(ctx context.Context, scope Scope) (*Stats, error) {
	stats := &Stats{}

	where := ""
	var args []any
	if scope.Project != "" {
		where = ` WHERE project = ?`
		args = append(args, scope.Project)
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents`+where, args...).Scan(&stats.TotalDocuments)
	if err != nil {
		return nil, storeerr.Storage("count documents", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT
			COUNT(CASE WHEN embed_state = 'pending' THEN 1 END),
			COUNT(CASE WHEN embed_state = 'failed' THEN 1 END)
		 FROM documents`+where, args...).Scan(&stats.Pending, &stats.Failed)
	if err != nil {
		return nil, storeerr.Storage("count embed states", err)
	}

	groupCount := func(column string) ([]NameCount, error) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+column+`, COUNT(*) FROM documents`+where+
				` GROUP BY `+column+` ORDER BY COUNT(*) DESC`, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []NameCount
		for rows.Next() {
			var nc NameCount
			if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
				return nil, err
			}
			out = append(out, nc)
		}
		return out, rows.Err()
	}

	kindRows, err := groupCount("kind")
	if err != nil {
		return nil, storeerr.Storage("count by kind", err)
	}
	for _, kc := range kindRows {
		stats.ByKind = append(stats.ByKind, KindCount{Kind: kindOf(kc.Name), Count: kc.Count})
	}

	if stats.ByAgent, err = groupCount("agent_id"); err != nil {
		return nil, storeerr.Storage("count by agent", err)
	}
	if stats.ByProject, err = groupCount("project"); err != nil {
		return nil, storeerr.Storage("count by project", err)
	}

	eligible, err := s.CountEligible(ctx, Filters{Project: scope.Project})
	if err != nil {
		return nil, err
	}

	covQuery := `SELECT e.backend_id, COUNT(*) FROM embeddings e
		JOIN documents d ON d.doc_id = e.doc_id`
	covArgs := []any{}
	if scope.Project != "" {
		covQuery += ` WHERE d.project = ?`
		covArgs = append(covArgs, scope.Project)
	}
	covQuery += ` GROUP BY e.backend_id ORDER BY e.backend_id`

	rows, err := s.db.QueryContext(ctx, covQuery, covArgs...)
	if err != nil {
		return nil, storeerr.Storage("count coverage", err)
	}
	defer rows.Close()

	for rows.Next() {
		cov := BackendCoverage{Total: eligible}
		if err := rows.Scan(&cov.BackendID, &cov.Embedded); err != nil {
			return nil, storeerr.Storage("scan coverage", err)
		}
		stats.Coverage = append(stats.Coverage, cov)
	}
	return stats, rows.Err()
}
