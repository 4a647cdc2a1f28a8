package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"lectern/internal/domain"
)

// Course name resolution accepts a semantic match only above this cosine
// similarity, so unrelated names fall through to "not found".
const minResolveSimilarity = 0.5

// titleCandidate is one catalog row considered during name resolution.
type titleCandidate struct {
	title     string
	embedding []float32
}

// GetCourseMetadata implements domain.CatalogReader. Lookup is by exact
// title. A record with malformed lesson data degrades to course-level
// metadata only rather than failing the call.
func (s *Store) GetCourseMetadata(ctx context.Context, courseTitle string) (domain.CourseMetadata, error) {
	var (
		meta        domain.CourseMetadata
		lessonsJSON string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT title, link, instructor, lessons FROM courses WHERE title = ?",
		courseTitle,
	).Scan(&meta.CourseTitle, &meta.CourseLink, &meta.Instructor, &lessonsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CourseMetadata{}, fmt.Errorf("%w: course %q", domain.ErrNotFound, courseTitle)
	}
	if err != nil {
		return domain.CourseMetadata{}, fmt.Errorf("%w: get course: %v", domain.ErrCatalog, err)
	}

	if err := json.Unmarshal([]byte(lessonsJSON), &meta.Lessons); err != nil {
		s.logger.Warn("catalog: corrupt lessons JSON", "course", meta.CourseTitle, "error", err)
		meta.Lessons = nil
	}
	return meta, nil
}

// ResolveCourseTitle implements domain.CatalogReader. Resolution tries an
// exact match (ignoring case) first, then a case-insensitive substring
// match, then semantic similarity between the name and the stored course
// title embeddings. Returns ErrNotFound when nothing matches.
func (s *Store) ResolveCourseTitle(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty course name", domain.ErrInvalidInput)
	}

	all, err := s.titleCandidates(ctx)
	if err != nil {
		return "", err
	}

	for _, c := range all {
		if strings.EqualFold(c.title, name) {
			return c.title, nil
		}
	}

	lower := strings.ToLower(name)
	var partial []titleCandidate
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.title), lower) {
			partial = append(partial, c)
		}
	}
	if len(partial) == 1 {
		return partial[0].title, nil
	}

	// Several substring matches (or none): let embeddings disambiguate.
	candidates := all
	if len(partial) > 1 {
		candidates = partial
	}
	if s.embedder != nil && len(candidates) > 0 {
		if title, ok := s.semanticResolve(ctx, name, candidates); ok {
			return title, nil
		}
	}
	if len(partial) > 1 {
		return partial[0].title, nil
	}

	return "", fmt.Errorf("%w: no course matching %q", domain.ErrNotFound, name)
}

// semanticResolve embeds the name and picks the closest course title above
// the similarity floor.
func (s *Store) semanticResolve(ctx context.Context, name string, candidates []titleCandidate) (string, bool) {
	vecs, err := s.embedder.Embed(ctx, []string{name})
	if err != nil {
		s.logger.Warn("catalog: name embedding failed, skipping semantic resolution", "error", err)
		return "", false
	}
	if len(vecs) == 0 {
		return "", false
	}
	queryVec := vecs[0]

	var (
		best    string
		bestSim float32
	)
	for _, c := range candidates {
		if c.embedding == nil {
			continue
		}
		if sim := cosineSimilarity(queryVec, c.embedding); sim > bestSim {
			best, bestSim = c.title, sim
		}
	}
	if best == "" || bestSim < minResolveSimilarity {
		return "", false
	}
	return best, true
}

// titleCandidates loads every catalog title with its embedding.
func (s *Store) titleCandidates(ctx context.Context) ([]titleCandidate, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT title, title_embedding FROM courses")
	if err != nil {
		return nil, fmt.Errorf("%w: list courses: %v", domain.ErrCatalog, err)
	}
	defer rows.Close()

	var all []titleCandidate
	for rows.Next() {
		var (
			title string
			blob  []byte
		)
		if err := rows.Scan(&title, &blob); err != nil {
			continue
		}
		all = append(all, titleCandidate{title: title, embedding: bytesToFloat32(blob)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list courses: %v", domain.ErrCatalog, err)
	}
	return all, nil
}

// ListCourseTitles implements domain.CatalogReader.
func (s *Store) ListCourseTitles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT title FROM courses ORDER BY title")
	if err != nil {
		return nil, fmt.Errorf("%w: list courses: %v", domain.ErrCatalog, err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			continue
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// Compile-time interface checks.
var _ domain.CourseSearcher = (*Store)(nil)
var _ domain.CatalogReader = (*Store)(nil)
