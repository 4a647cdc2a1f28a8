package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"math"
	"sort"
	"strings"

	"lectern/internal/domain"
)

// scoredChunk pairs a content chunk with its relevance score.
type scoredChunk struct {
	chunk domain.CourseChunk
	score float64
}

// Search implements domain.CourseSearcher. A non-empty courseName is
// resolved against the catalog first; a name that matches no course yields
// an empty result set (not an error) so callers can report the active
// filters back to the user. Store failures are reported through
// SearchResults.Err.
func (s *Store) Search(ctx context.Context, query, courseName string, lessonNumber *int) domain.SearchResults {
	var courseTitle string
	if courseName != "" {
		resolved, err := s.ResolveCourseTitle(ctx, courseName)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return domain.SearchResults{}
		case err != nil:
			return domain.SearchResults{Err: err.Error()}
		}
		courseTitle = resolved
	}

	limit := s.opts.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}

	scored, err := s.hybridSearch(ctx, query, courseTitle, lessonNumber, limit)
	if err != nil {
		return domain.SearchResults{Err: err.Error()}
	}

	docs := make([]string, len(scored))
	metas := make([]domain.SearchHitMeta, len(scored))
	for i, sc := range scored {
		docs[i] = sc.chunk.Content
		metas[i] = domain.SearchHitMeta{
			CourseTitle:  sc.chunk.CourseTitle,
			LessonNumber: sc.chunk.LessonNumber,
			ChunkID:      sc.chunk.ID,
			Score:        sc.score,
		}
	}
	return domain.SearchResults{Documents: docs, Metadata: metas}
}

// hybridSearch combines keyword (FTS5) and vector (cosine) search using
// Reciprocal Rank Fusion, honoring the optional course and lesson filters.
func (s *Store) hybridSearch(ctx context.Context, query, courseTitle string, lessonNumber *int, limit int) ([]scoredChunk, error) {
	fetchLimit := limit * 2

	kwResults, kwErr := s.keywordSearch(ctx, query, courseTitle, lessonNumber, fetchLimit)
	vecResults, vecErr := s.vectorSearch(ctx, query, courseTitle, lessonNumber, fetchLimit)

	// Degrade to whichever side succeeded; report the keyword error when
	// vector search also failed or was never available.
	if kwErr != nil && (vecErr != nil || s.embedder == nil) {
		return nil, kwErr
	}

	var scored []scoredChunk
	switch {
	case kwErr != nil:
		scored = chunksToScored(vecResults)
	case vecErr != nil || len(vecResults) == 0:
		scored = chunksToScored(kwResults)
	default:
		scored = reciprocalRankFusion(kwResults, vecResults)
	}

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// keywordSearch performs FTS5 full-text search. If the query contains FTS5
// syntax errors, it falls back to a LIKE-based search. An empty query
// returns chunks in insertion order, filters still applied.
func (s *Store) keywordSearch(ctx context.Context, query, courseTitle string, lessonNumber *int, limit int) ([]domain.CourseChunk, error) {
	conds, args := chunkFilter(courseTitle, lessonNumber)

	if strings.TrimSpace(query) == "" {
		q := "SELECT c.id, c.course_title, c.lesson_number, c.content FROM chunks c"
		if len(conds) > 0 {
			q += " WHERE " + strings.Join(conds, " AND ")
		}
		q += " ORDER BY c.rowid LIMIT ?"

		rows, err := s.db.QueryContext(ctx, q, append(args, limit)...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanChunks(rows)
	}

	q := `SELECT c.id, c.course_title, c.lesson_number, c.content
		 FROM chunks_fts f
		 JOIN chunks c ON c.rowid = f.rowid
		 WHERE chunks_fts MATCH ?`
	if len(conds) > 0 {
		q += " AND " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY bm25(chunks_fts) LIMIT ?"

	full := make([]any, 0, len(args)+2)
	full = append(full, query)
	full = append(full, args...)
	full = append(full, limit)

	rows, err := s.db.QueryContext(ctx, q, full...)
	if err != nil {
		// FTS5 syntax error, fall back to LIKE search.
		return s.likeSearch(ctx, query, courseTitle, lessonNumber, limit)
	}
	defer rows.Close()

	chunks, err := scanChunks(rows)
	if err != nil {
		// The FTS5 parser may not report a bad query until rows are stepped.
		return s.likeSearch(ctx, query, courseTitle, lessonNumber, limit)
	}
	return chunks, nil
}

// likeSearch is a fallback when FTS5 MATCH fails due to special characters.
func (s *Store) likeSearch(ctx context.Context, query, courseTitle string, lessonNumber *int, limit int) ([]domain.CourseChunk, error) {
	conds, args := chunkFilter(courseTitle, lessonNumber)
	conds = append([]string{"c.content LIKE ?"}, conds...)
	args = append([]any{"%" + query + "%"}, args...)

	q := "SELECT c.id, c.course_title, c.lesson_number, c.content FROM chunks c WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY c.rowid LIMIT ?"

	rows, err := s.db.QueryContext(ctx, q, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// chunkFilter builds SQL conditions for the optional course and lesson
// filters, against the chunks table aliased as c.
func chunkFilter(courseTitle string, lessonNumber *int) (conds []string, args []any) {
	if courseTitle != "" {
		conds = append(conds, "c.course_title = ?")
		args = append(args, courseTitle)
	}
	if lessonNumber != nil {
		conds = append(conds, "c.lesson_number = ?")
		args = append(args, *lessonNumber)
	}
	return conds, args
}

// vectorSearch embeds the query and finds the most similar chunks by cosine
// similarity. It uses an in-memory index when available (avoiding SQLite
// I/O), and falls back to a database scan on first call to populate the
// index.
func (s *Store) vectorSearch(ctx context.Context, query, courseTitle string, lessonNumber *int, limit int) ([]domain.CourseChunk, error) {
	if s.embedder == nil {
		return nil, nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	queryVec := vecs[0]

	if !s.idx.isLoaded() {
		if err := s.idx.loadFromDB(ctx, s); err != nil {
			s.logger.Warn("vector store: failed to load chunk index, falling back to DB scan", "error", err)
			return s.vectorSearchDB(ctx, queryVec, courseTitle, lessonNumber, limit)
		}
	}

	results := s.idx.search(queryVec, courseTitle, lessonNumber, limit)
	if results != nil {
		return results, nil
	}

	return s.vectorSearchDB(ctx, queryVec, courseTitle, lessonNumber, limit)
}

// vectorSearchDB is the database-scan based vector search, used as a
// fallback when the in-memory index is unavailable.
func (s *Store) vectorSearchDB(ctx context.Context, queryVec []float32, courseTitle string, lessonNumber *int, limit int) ([]domain.CourseChunk, error) {
	maxCandidates := s.opts.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = defaultMaxCandidates
	}

	conds, args := chunkFilter(courseTitle, lessonNumber)
	conds = append(conds, "c.embedding IS NOT NULL")

	q := "SELECT c.id, c.course_title, c.lesson_number, c.content, c.embedding FROM chunks c WHERE " +
		strings.Join(conds, " AND ") + " LIMIT ?"

	rows, err := s.db.QueryContext(ctx, q, append(args, maxCandidates)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []scoredChunk
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

		sim := cosineSimilarity(queryVec, bytesToFloat32(embBlob))
		if sim <= 0 {
			continue
		}
		candidates = append(candidates, scoredChunk{chunk: c, score: float64(sim)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	result := make([]domain.CourseChunk, 0, min(limit, len(candidates)))
	for i := 0; i < len(candidates) && i < limit; i++ {
		result = append(result, candidates[i].chunk)
	}
	return result, rows.Err()
}

// cosineSimilarity computes dot(a,b) / (||a|| * ||b||).
// Returns 0 for zero-length vectors, length mismatch, or NaN/Inf results.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denom == 0 {
		return 0
	}
	result := dot / denom
	if math.IsNaN(float64(result)) || math.IsInf(float64(result), 0) {
		return 0
	}
	return result
}

// chunksToScored converts a plain chunk slice to scored chunks with
// descending rank-based scores, for use when only one search source is
// available.
func chunksToScored(chunks []domain.CourseChunk) []scoredChunk {
	scored := make([]scoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = scoredChunk{chunk: c, score: 1.0 / float64(i+1)}
	}
	return scored
}

// reciprocalRankFusion merges two ranked lists using RRF (k=60).
func reciprocalRankFusion(list1, list2 []domain.CourseChunk) []scoredChunk {
	const k = 60

	scores := make(map[string]float64)
	chunks := make(map[string]domain.CourseChunk)

	for rank, c := range list1 {
		scores[c.ID] += 1.0 / float64(k+rank+1)
		chunks[c.ID] = c
	}
	for rank, c := range list2 {
		scores[c.ID] += 1.0 / float64(k+rank+1)
		chunks[c.ID] = c
	}

	result := make([]scoredChunk, 0, len(scores))
	for id, sc := range scores {
		result = append(result, scoredChunk{chunk: chunks[id], score: sc})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].score > result[j].score
	})

	return result
}

// float32ToBytes converts a float32 slice to little-endian bytes.
func float32ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32 converts little-endian bytes back to a float32 slice.
func bytesToFloat32(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
