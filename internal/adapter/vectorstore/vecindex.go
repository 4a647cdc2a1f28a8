package vectorstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"lectern/internal/domain"
)

// chunkIndex is an in-memory index of chunk embeddings that avoids SQLite
// I/O on every vector search. Chunks are loaded lazily on the first search
// and updated incrementally on writes.
type chunkIndex struct {
	mu     sync.RWMutex
	chunks map[string]indexedChunk // chunk ID → chunk with embedding
	loaded bool
}

type indexedChunk struct {
	chunk     domain.CourseChunk
	embedding []float32
}

func newChunkIndex() *chunkIndex {
	return &chunkIndex{
		chunks: make(map[string]indexedChunk),
	}
}

// search performs in-memory cosine similarity search against all cached
// embeddings, honoring the optional course and lesson filters.
// Returns nil if the index has not been loaded yet.
func (idx *chunkIndex) search(queryVec []float32, courseTitle string, lessonNumber *int, limit int) []domain.CourseChunk {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.loaded {
		return nil
	}

	candidates := make([]scoredChunk, 0, len(idx.chunks))
	for _, ic := range idx.chunks {
		if courseTitle != "" && ic.chunk.CourseTitle != courseTitle {
			continue
		}
		if lessonNumber != nil &&
			(ic.chunk.LessonNumber == nil || *ic.chunk.LessonNumber != *lessonNumber) {
			continue
		}

		sim := cosineSimilarity(queryVec, ic.embedding)
		if sim <= 0 {
			continue
		}
		candidates = append(candidates, scoredChunk{chunk: ic.chunk, score: float64(sim)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	n := min(limit, len(candidates))
	result := make([]domain.CourseChunk, n)
	for i := 0; i < n; i++ {
		result[i] = candidates[i].chunk
	}
	return result
}

// put adds or updates a chunk in the index.
func (idx *chunkIndex) put(chunk domain.CourseChunk, embedding []float32) {
	if embedding == nil {
		return
	}
	idx.mu.Lock()
	idx.chunks[chunk.ID] = indexedChunk{chunk: chunk, embedding: embedding}
	idx.mu.Unlock()
}

// removeCourse drops every indexed chunk belonging to the given course.
func (idx *chunkIndex) removeCourse(courseTitle string) {
	idx.mu.Lock()
	for id, ic := range idx.chunks {
		if ic.chunk.CourseTitle == courseTitle {
			delete(idx.chunks, id)
		}
	}
	idx.mu.Unlock()
}

// reset empties the index and marks it unloaded, forcing a reload from the
// database on the next search.
func (idx *chunkIndex) reset() {
	idx.mu.Lock()
	idx.chunks = make(map[string]indexedChunk)
	idx.loaded = false
	idx.mu.Unlock()
}

// isLoaded returns whether the index has been populated from the database.
func (idx *chunkIndex) isLoaded() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.loaded
}

// loadFromDB populates the index from the database. This is called once on
// the first vector search. Subsequent calls are no-ops.
func (idx *chunkIndex) loadFromDB(ctx context.Context, s *Store) error {
	idx.mu.Lock()
	if idx.loaded {
		idx.mu.Unlock()
		return nil
	}
	idx.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, course_title, lesson_number, content, embedding FROM chunks WHERE embedding IS NOT NULL",
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	chunks := make(map[string]indexedChunk)
	for rows.Next() {
		var (
			c       domain.CourseChunk
			lesson  sql.NullInt64
			embBlob []byte
		)
		if err := rows.Scan(&c.ID, &c.CourseTitle, &lesson, &c.Content, &embBlob); err != nil {
			continue
		}
		if lesson.Valid {
			n := int(lesson.Int64)
			c.LessonNumber = &n
		}

		emb := bytesToFloat32(embBlob)
		if emb == nil {
			continue
		}
		chunks[c.ID] = indexedChunk{chunk: c, embedding: emb}
	}

	idx.mu.Lock()
	idx.chunks = chunks
	idx.loaded = true
	idx.mu.Unlock()

	return rows.Err()
}
