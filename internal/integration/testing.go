//go:build integration

package integration

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"lectern/internal/adapter/tool"
	"lectern/internal/adapter/vectorstore"
	"lectern/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func intPtr(n int) *int { return &n }

// seedStore opens a scratch SQLite store and loads two courses with
// lesson-tagged content chunks. The embedder is nil so search runs
// keyword-only.
func seedStore(t *testing.T) *vectorstore.Store {
	t.Helper()

	store, err := vectorstore.New(filepath.Join(t.TempDir(), "courses.db"), nil, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	courses := []domain.CourseMetadata{
		{
			CourseTitle: "Building Course Assistants",
			CourseLink:  "https://learn.example.com/courses/assistants",
			Instructor:  "Priya Nair",
			Lessons: []domain.Lesson{
				{Number: 0, Title: "Welcome", Link: "https://learn.example.com/courses/assistants/lessons/0"},
				{Number: 1, Title: "Retrieval Basics", Link: "https://learn.example.com/courses/assistants/lessons/1"},
				{Number: 2, Title: "Prompt Caching", Link: "https://learn.example.com/courses/assistants/lessons/2"},
			},
		},
		{
			CourseTitle: "Vector Databases in Production",
			CourseLink:  "https://learn.example.com/courses/vectordb",
			Instructor:  "Tomás Rivera",
			Lessons: []domain.Lesson{
				{Number: 1, Title: "Index Types", Link: "https://learn.example.com/courses/vectordb/lessons/1"},
			},
		},
	}
	for _, c := range courses {
		if err := store.AddCourse(ctx, c); err != nil {
			t.Fatalf("add course %s: %v", c.CourseTitle, err)
		}
	}

	chunks := []domain.CourseChunk{
		{ID: "bca-0", CourseTitle: "Building Course Assistants", LessonNumber: intPtr(0),
			Content: "Course overview: this course shows how to build a question answering assistant over course transcripts."},
		{ID: "bca-1", CourseTitle: "Building Course Assistants", LessonNumber: intPtr(1),
			Content: "Retrieval basics: transcripts are split into chunks and indexed for keyword and semantic search."},
		{ID: "bca-2", CourseTitle: "Building Course Assistants", LessonNumber: intPtr(2),
			Content: "Prompt caching stores the static prefix of a prompt so repeated calls skip re-encoding."},
		{ID: "bca-3", CourseTitle: "Building Course Assistants", LessonNumber: intPtr(2),
			Content: "Prompt caching is invalidated when the system prompt or the tool definitions change."},
		{ID: "vdb-1", CourseTitle: "Vector Databases in Production", LessonNumber: intPtr(1),
			Content: "HNSW indexes trade memory for recall during approximate nearest neighbor search."},
	}
	if err := store.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("add chunks: %v", err)
	}

	return store
}

// seedRegistry builds a registry with both course tools over a seeded
// store.
func seedRegistry(t *testing.T) *tool.Registry {
	t.Helper()

	store := seedStore(t)
	registry := tool.NewRegistry(testLogger())
	if err := registry.Register(tool.NewCourseSearchTool(store, testLogger())); err != nil {
		t.Fatalf("register search tool: %v", err)
	}
	if err := registry.Register(tool.NewCourseOutlineTool(store, testLogger())); err != nil {
		t.Fatalf("register outline tool: %v", err)
	}
	return registry
}

// scriptedLLM replays canned responses and records every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*domain.ChatResponse
	requests  []domain.ChatRequest
}

func (s *scriptedLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedLLM) Name() string { return "scripted" }
