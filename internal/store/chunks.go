// Package store implements persistence for the backlog pipeline: a SQLite
// chunk store with vector similarity search, and a generic JSON file store
// for the run registry, feedback history and learning profile.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// ChunkRow is one evidence chunk with its embedding.
type ChunkRow struct {
	ChunkID    string
	Content    string
	Embedding  []float32
	DocumentID string
	VersionID  string
	ChunkHash  string
	ChunkIndex int
}

// Hit is one similarity search result.
type Hit struct {
	ChunkID string  `json:"chunkId"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Scope restricts a search to specific document/version identifiers.
// Empty slices match everything.
type Scope struct {
	DocumentIDs []string
	VersionIDs  []string
}

// ChunkStore persists evidence chunks in SQLite. Embeddings are stored as
// JSON arrays and ranked with in-process cosine similarity; corpora stay in
// the hundreds of chunks, so a linear scan is fine.
type ChunkStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewChunkStore opens (or creates) the SQLite database at the given path.
func NewChunkStore(path string) (*ChunkStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &ChunkStore{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ChunkStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id    TEXT PRIMARY KEY,
		content     TEXT NOT NULL,
		embedding   TEXT NOT NULL,
		document_id TEXT NOT NULL,
		version_id  TEXT NOT NULL,
		chunk_hash  TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(document_id, version_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_hash ON chunks(document_id, version_id, chunk_hash);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *ChunkStore) Close() error {
	return s.db.Close()
}

// Upsert inserts the given chunks, skipping rows whose
// document+version+hash already exists. Returns (added, skipped).
func (s *ChunkStore) Upsert(ctx context.Context, rows []ChunkRow) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added, skipped := 0, 0
	for _, row := range rows {
		var exists int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM chunks WHERE document_id = ? AND version_id = ? AND chunk_hash = ?",
			row.DocumentID, row.VersionID, row.ChunkHash,
		).Scan(&exists)
		if err != nil {
			return added, skipped, fmt.Errorf("chunk lookup failed: %w", err)
		}
		if exists > 0 {
			skipped++
			continue
		}

		embJSON, err := json.Marshal(row.Embedding)
		if err != nil {
			return added, skipped, fmt.Errorf("failed to serialize embedding: %w", err)
		}

		_, err = s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO chunks
			 (chunk_id, content, embedding, document_id, version_id, chunk_hash, chunk_index)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			row.ChunkID, row.Content, string(embJSON),
			row.DocumentID, row.VersionID, row.ChunkHash, row.ChunkIndex,
		)
		if err != nil {
			return added, skipped, fmt.Errorf("chunk insert failed: %w", err)
		}
		added++
	}
	return added, skipped, nil
}

// Search ranks stored chunks against the query embedding by cosine
// similarity and returns the topK best within the scope.
func (s *ChunkStore) Search(ctx context.Context, query []float32, topK int, scope Scope) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sqlQuery := "SELECT chunk_id, content, embedding FROM chunks"
	var conds []string
	var args []any
	if len(scope.DocumentIDs) > 0 {
		conds = append(conds, "document_id IN ("+placeholders(len(scope.DocumentIDs))+")")
		for _, id := range scope.DocumentIDs {
			args = append(args, id)
		}
	}
	if len(scope.VersionIDs) > 0 {
		conds = append(conds, "version_id IN ("+placeholders(len(scope.VersionIDs))+")")
		for _, id := range scope.VersionIDs {
			args = append(args, id)
		}
	}
	if len(conds) > 0 {
		sqlQuery += " WHERE " + strings.Join(conds, " AND ")
	}

	dbRows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("chunk query failed: %w", err)
	}
	defer dbRows.Close()

	var hits []Hit
	for dbRows.Next() {
		var chunkID, content, embJSON string
		if err := dbRows.Scan(&chunkID, &content, &embJSON); err != nil {
			return nil, fmt.Errorf("chunk scan failed: %w", err)
		}

		var embedding []float32
		if err := json.Unmarshal([]byte(embJSON), &embedding); err != nil {
			continue
		}

		score := CosineSimilarity(query, embedding)
		if score < 0 {
			score = 0
		}
		hits = append(hits, Hit{ChunkID: chunkID, Content: content, Score: score})
	}
	if err := dbRows.Err(); err != nil {
		return nil, fmt.Errorf("chunk iteration failed: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
