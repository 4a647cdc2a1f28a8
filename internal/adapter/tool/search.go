package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"lectern/internal/domain"
	"lectern/internal/infra/tracer"
)

// SearchStore is the slice of the vector store the search tool drives:
// unified content search plus catalog lookups for source enrichment.
type SearchStore interface {
	Search(ctx context.Context, query, courseName string, lessonNumber *int) domain.SearchResults
	GetCourseMetadata(ctx context.Context, courseTitle string) (domain.CourseMetadata, error)
}

// CourseSearchTool searches course content with fuzzy course-name matching
// and optional lesson filtering. Each execution replaces the cached citation
// sources with the deduplicated sources of its hits; the registry reads them
// back through domain.SourceProvider.
type CourseSearchTool struct {
	sourceCache

	store  SearchStore
	logger *slog.Logger
}

var (
	_ domain.Tool           = (*CourseSearchTool)(nil)
	_ domain.SourceProvider = (*CourseSearchTool)(nil)
)

// NewCourseSearchTool creates the course content search tool.
func NewCourseSearchTool(store SearchStore, logger *slog.Logger) *CourseSearchTool {
	return &CourseSearchTool{store: store, logger: logger}
}

func (t *CourseSearchTool) Name() string { return "search_course_content" }
func (t *CourseSearchTool) Description() string {
	return "Search course materials with smart course name matching and lesson filtering"
}

func (t *CourseSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "What to search for in the course content"},
				"course_name": {"type": "string", "description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')"},
				"lesson_number": {"type": "integer", "description": "Specific lesson number to search within (e.g. 1, 2, 3)"}
			},
			"required": ["query"]
		}`),
	}
}

type searchParams struct {
	Query        string `json:"query"`
	CourseName   string `json:"course_name,omitempty"`
	LessonNumber *int   `json:"lesson_number,omitempty"`
}

func (t *CourseSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.search_course_content", t.logger, params,
		func(ctx context.Context, span trace.Span, p searchParams) (any, error) {
			// Stale citations must not survive a failed call.
			t.ClearSources()

			if strings.TrimSpace(p.Query) == "" {
				return ErrResult("'query' is required")
			}

			span.SetAttributes(tracer.StringAttr("tool.query", p.Query))
			if p.CourseName != "" {
				span.SetAttributes(tracer.StringAttr("tool.course", p.CourseName))
			}
			if p.LessonNumber != nil {
				span.SetAttributes(tracer.IntAttr("tool.lesson", *p.LessonNumber))
			}

			results := t.store.Search(ctx, p.Query, p.CourseName, p.LessonNumber)
			if results.Err != "" {
				// The store's message, verbatim.
				return ErrResult("%s", results.Err)
			}
			if results.IsEmpty() {
				return emptyResultMessage(p.CourseName, p.LessonNumber), nil
			}

			text, sources := t.formatResults(ctx, results)
			t.setSources(sources)

			t.logger.Debug("course search completed",
				"query", p.Query, "hits", len(results.Documents), "sources", len(sources))
			return &domain.ToolResult{Content: text, Sources: sources}, nil
		},
	)
}

// emptyResultMessage states that nothing matched, naming the active filters.
func emptyResultMessage(courseName string, lessonNumber *int) string {
	var b strings.Builder
	b.WriteString("No relevant content found")
	if courseName != "" {
		fmt.Fprintf(&b, " in course '%s'", courseName)
	}
	if lessonNumber != nil {
		fmt.Fprintf(&b, " in lesson %d", *lessonNumber)
	}
	b.WriteString(".")
	return b.String()
}

// sourceKey identifies the citation a hit belongs to. Hits from the same
// course and lesson share one Source.
type sourceKey struct {
	courseTitle string
	lesson      int
	hasLesson   bool
}

// formatResults renders one block per hit and builds the deduplicated source
// list. Formatting is per hit; sources are per unique (course title, lesson
// number) key, first occurrence wins. Catalog metadata is fetched once per
// distinct course within this call.
func (t *CourseSearchTool) formatResults(ctx context.Context, results domain.SearchResults) (string, []domain.Source) {
	n := min(len(results.Documents), len(results.Metadata))

	blocks := make([]string, 0, n)
	sources := make([]domain.Source, 0, n)
	seen := make(map[sourceKey]bool, n)
	metaCache := make(map[string]domain.CourseMetadata)

	for i := 0; i < n; i++ {
		hit := results.Metadata[i]

		title := hit.CourseTitle
		if title == "" {
			title = "unknown"
		}

		header := "[" + title + "]"
		key := sourceKey{courseTitle: title}
		if hit.LessonNumber != nil {
			header = fmt.Sprintf("[%s - Lesson %d]", title, *hit.LessonNumber)
			key.lesson = *hit.LessonNumber
			key.hasLesson = true
		}

		if !seen[key] {
			seen[key] = true

			meta, ok := metaCache[title]
			if !ok {
				meta = t.courseMetadata(ctx, title)
				metaCache[title] = meta
			}

			src := domain.Source{
				CourseTitle:  title,
				CourseLink:   meta.CourseLink,
				Instructor:   meta.Instructor,
				LessonNumber: hit.LessonNumber,
			}
			if hit.LessonNumber != nil {
				if lesson, found := meta.LessonByNumber(*hit.LessonNumber); found {
					src.LessonTitle = lesson.Title
					src.LessonLink = lesson.Link
				}
			}
			sources = append(sources, src)
		}

		blocks = append(blocks, header+"\n"+results.Documents[i])
	}

	return strings.Join(blocks, "\n\n"), sources
}

// courseMetadata looks up the catalog record for a course. Lookup failures
// degrade to an empty record so formatting always succeeds.
func (t *CourseSearchTool) courseMetadata(ctx context.Context, title string) domain.CourseMetadata {
	meta, err := t.store.GetCourseMetadata(ctx, title)
	if err != nil {
		t.logger.Warn("course metadata lookup failed", "course", title, "error", err)
		return domain.CourseMetadata{}
	}
	return meta
}
