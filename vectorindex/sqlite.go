package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"

	_ "modernc.org/sqlite"
)

const vectorsSchema = `
CREATE TABLE IF NOT EXISTS vectors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	record_id INTEGER NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	season TEXT NOT NULL DEFAULT '',
	embedding BLOB NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(kind, record_id)
);
CREATE INDEX IF NOT EXISTS idx_vectors_kind_category ON vectors(kind, category);
`

// SQLiteIndex is a brute-force cosine-similarity index on a local sqlite
// file. Embeddings are stored as little-endian float32 blobs and scored
// in-process; fine for wardrobe-sized collections.
type SQLiteIndex struct {
	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	if _, err := db.Exec(vectorsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init vector index schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

func (s *SQLiteIndex) Upsert(ctx context.Context, kind string, recordID uint, vector []float32, category string, season string) error {
	if len(vector) == 0 {
		return fmt.Errorf("cannot index empty vector for %s %d", kind, recordID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// created_at is kept on conflict so insertion order survives re-embeds
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vectors (kind, record_id, category, season, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, record_id) DO UPDATE SET
			category = excluded.category,
			season = excluded.season,
			embedding = excluded.embedding`,
		kind, recordID, category, season, encodeVector(vector),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vector for %s %d: %w", kind, recordID, err)
	}
	return nil
}

func (s *SQLiteIndex) Delete(ctx context.Context, kind string, recordID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM vectors WHERE kind = ? AND record_id = ?", kind, recordID)
	if err != nil {
		return fmt.Errorf("failed to delete vector for %s %d: %w", kind, recordID, err)
	}
	return nil
}

func (s *SQLiteIndex) Search(ctx context.Context, kind string, vector []float32, filter Filter, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, record_id, embedding FROM vectors WHERE kind = ?"
	args := []interface{}{kind}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.Season != "" {
		// items wearable in any season satisfy every season constraint
		query += " AND season IN (?, 'any')"
		args = append(args, filter.Season)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search query failed: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		rowID    int64
		recordID uint
		score    float64
	}
	var candidates []candidate
	for rows.Next() {
		var rowID int64
		var recordID uint
		var blob []byte
		if err := rows.Scan(&rowID, &recordID, &blob); err != nil {
			return nil, fmt.Errorf("vector search scan failed: %w", err)
		}
		score, err := cosineSimilarity(vector, decodeVector(blob))
		if err != nil {
			// stored with a different model dimension, not comparable
			continue
		}
		candidates = append(candidates, candidate{rowID: rowID, recordID: recordID, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search iteration failed: %w", err)
	}

	// score desc, ties broken by insertion order so results are reproducible
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rowID < candidates[j].rowID
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		matches[i] = Match{RecordID: c.recordID, Score: c.score}
	}
	return matches, nil
}
