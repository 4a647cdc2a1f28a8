package domain

import "context"

// SearchHitMeta is the metadata carried alongside each returned document.
// Documents and their metadata travel as parallel slices inside
// SearchResults, in ranking order.
type SearchHitMeta struct {
	CourseTitle  string  `json:"course_title"`
	LessonNumber *int    `json:"lesson_number,omitempty"`
	ChunkID      string  `json:"chunk_id,omitempty"`
	Score        float64 `json:"score,omitempty"`
}

// SearchResults is the outcome of one content search. Err is mutually
// exclusive with results: when set, Documents and Metadata are ignored
// entirely by consumers.
type SearchResults struct {
	Documents []string
	Metadata  []SearchHitMeta
	Err       string
}

// IsEmpty reports whether the search matched nothing.
func (r SearchResults) IsEmpty() bool { return len(r.Documents) == 0 }

// CourseSearcher is the unified content search surface of the store.
// Failures are reported through SearchResults.Err, not a Go error, so
// callers relay them as text. courseName may be a partial title; fuzzy
// resolution against the catalog happens inside the store. A nil
// lessonNumber means no lesson filter.
type CourseSearcher interface {
	Search(ctx context.Context, query, courseName string, lessonNumber *int) SearchResults
}

// CatalogReader resolves course-level metadata. GetCourseMetadata looks up
// by exact title and returns ErrNotFound when the catalog has no such
// course. ResolveCourseTitle maps a partial or fuzzy name to the canonical
// catalog title.
type CatalogReader interface {
	GetCourseMetadata(ctx context.Context, courseTitle string) (CourseMetadata, error)
	ResolveCourseTitle(ctx context.Context, name string) (string, error)
	ListCourseTitles(ctx context.Context) ([]string, error)
}
