package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"lectern/internal/domain"
	"lectern/internal/infra/tracer"
)

// OutlineStore is the catalog slice the outline tool reads: fuzzy title
// resolution plus the full course record.
type OutlineStore interface {
	ResolveCourseTitle(ctx context.Context, name string) (string, error)
	GetCourseMetadata(ctx context.Context, courseTitle string) (domain.CourseMetadata, error)
}

// CourseOutlineTool returns a course's title, link, instructor and complete
// lesson list. The course itself is cached as the citation source.
type CourseOutlineTool struct {
	sourceCache

	store  OutlineStore
	logger *slog.Logger
}

var (
	_ domain.Tool           = (*CourseOutlineTool)(nil)
	_ domain.SourceProvider = (*CourseOutlineTool)(nil)
)

// NewCourseOutlineTool creates the course outline tool.
func NewCourseOutlineTool(store OutlineStore, logger *slog.Logger) *CourseOutlineTool {
	return &CourseOutlineTool{store: store, logger: logger}
}

func (t *CourseOutlineTool) Name() string { return "get_course_outline" }
func (t *CourseOutlineTool) Description() string {
	return "Get a course outline: title, link, instructor and the complete lesson list"
}

func (t *CourseOutlineTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"course_name": {"type": "string", "description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')"}
			},
			"required": ["course_name"]
		}`),
	}
}

type outlineParams struct {
	CourseName string `json:"course_name"`
}

func (t *CourseOutlineTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_course_outline", t.logger, params,
		func(ctx context.Context, span trace.Span, p outlineParams) (any, error) {
			t.ClearSources()

			if strings.TrimSpace(p.CourseName) == "" {
				return ErrResult("'course_name' is required")
			}
			span.SetAttributes(tracer.StringAttr("tool.course", p.CourseName))

			title, err := t.store.ResolveCourseTitle(ctx, p.CourseName)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Sprintf("No course found matching '%s'.", p.CourseName), nil
				}
				return ErrResult("%s", err)
			}

			meta, err := t.store.GetCourseMetadata(ctx, title)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Sprintf("No course found matching '%s'.", p.CourseName), nil
				}
				return ErrResult("%s", err)
			}

			sources := []domain.Source{{
				CourseTitle: meta.CourseTitle,
				CourseLink:  meta.CourseLink,
				Instructor:  meta.Instructor,
			}}
			t.setSources(sources)

			return &domain.ToolResult{Content: formatOutline(meta), Sources: sources}, nil
		},
	)
}

// formatOutline renders the catalog record as readable text.
func formatOutline(meta domain.CourseMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", meta.CourseTitle)
	if meta.CourseLink != "" {
		fmt.Fprintf(&b, "Link: %s\n", meta.CourseLink)
	}
	if meta.Instructor != "" {
		fmt.Fprintf(&b, "Instructor: %s\n", meta.Instructor)
	}
	fmt.Fprintf(&b, "Lessons (%d):", len(meta.Lessons))
	for _, lesson := range meta.Lessons {
		fmt.Fprintf(&b, "\n  Lesson %d: %s", lesson.Number, lesson.Title)
	}
	return b.String()
}
