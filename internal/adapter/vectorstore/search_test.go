package vectorstore

import (
	"context"
	"math"
	"testing"

	"lectern/internal/domain"
)

// mockEmbedder returns deterministic embeddings derived from text length.
type mockEmbedder struct {
	dims int
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, m.dims)
		for j := range v {
			v[j] = float32(len(t)+i+j) / 100.0
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }
func (m *mockEmbedder) Name() string    { return "mock" }

func seedCourses(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.AddCourse(ctx, domain.CourseMetadata{
		CourseTitle: "Go Basics",
		Lessons: []domain.Lesson{
			{Number: 1, Title: "Goroutines"},
			{Number: 2, Title: "Channels"},
		},
	}); err != nil {
		t.Fatalf("AddCourse: %v", err)
	}
	if err := s.AddCourse(ctx, domain.CourseMetadata{CourseTitle: "Cooking Basics"}); err != nil {
		t.Fatalf("AddCourse: %v", err)
	}

	chunks := []domain.CourseChunk{
		{ID: "g1", CourseTitle: "Go Basics", LessonNumber: lessonPtr(1), Content: "goroutines are lightweight threads"},
		{ID: "g2", CourseTitle: "Go Basics", LessonNumber: lessonPtr(2), Content: "channels pass values between goroutines"},
		{ID: "g3", CourseTitle: "Go Basics", Content: "course overview before any lesson"},
		{ID: "c1", CourseTitle: "Cooking Basics", LessonNumber: lessonPtr(1), Content: "pasta needs salted boiling water"},
	}
	if err := s.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}
}

func TestSearchCourseFilter(t *testing.T) {
	s := newTestStore(t, nil)
	seedCourses(t, s)

	results := s.Search(context.Background(), "goroutines", "Go Basics", nil)
	if results.Err != "" {
		t.Fatalf("Search error: %s", results.Err)
	}
	if results.IsEmpty() {
		t.Fatal("expected results")
	}
	for _, m := range results.Metadata {
		if m.CourseTitle != "Go Basics" {
			t.Errorf("CourseTitle = %q, want Go Basics", m.CourseTitle)
		}
	}
}

func TestSearchLessonFilter(t *testing.T) {
	s := newTestStore(t, nil)
	seedCourses(t, s)

	results := s.Search(context.Background(), "goroutines", "", lessonPtr(2))
	if results.Err != "" {
		t.Fatalf("Search error: %s", results.Err)
	}
	if len(results.Documents) != 1 {
		t.Fatalf("Documents len = %d, want 1", len(results.Documents))
	}
	if results.Metadata[0].ChunkID != "g2" {
		t.Errorf("ChunkID = %q, want g2", results.Metadata[0].ChunkID)
	}
}

func TestSearchCourseAndLessonFilter(t *testing.T) {
	s := newTestStore(t, nil)
	seedCourses(t, s)

	results := s.Search(context.Background(), "water", "Cooking Basics", lessonPtr(1))
	if results.Err != "" {
		t.Fatalf("Search error: %s", results.Err)
	}
	if len(results.Documents) != 1 {
		t.Fatalf("Documents len = %d, want 1", len(results.Documents))
	}
	if results.Metadata[0].CourseTitle != "Cooking Basics" {
		t.Errorf("CourseTitle = %q", results.Metadata[0].CourseTitle)
	}
}

func TestSearchUnknownCourseIsEmpty(t *testing.T) {
	s := newTestStore(t, nil)
	seedCourses(t, s)

	results := s.Search(context.Background(), "anything", "Nonexistent Course", nil)
	if results.Err != "" {
		t.Fatalf("expected empty results, got error: %s", results.Err)
	}
	if !results.IsEmpty() {
		t.Errorf("Documents len = %d, want 0 for unknown course", len(results.Documents))
	}
}

func TestSearchNoMatchesIsEmpty(t *testing.T) {
	s := newTestStore(t, nil)
	seedCourses(t, s)

	results := s.Search(context.Background(), "zeppelin", "", nil)
	if results.Err != "" {
		t.Fatalf("Search error: %s", results.Err)
	}
	if !results.IsEmpty() {
		t.Errorf("Documents len = %d, want 0", len(results.Documents))
	}
}

func TestSearchParallelSlices(t *testing.T) {
	s := newTestStore(t, nil)
	seedCourses(t, s)

	results := s.Search(context.Background(), "goroutines", "", nil)
	if results.Err != "" {
		t.Fatalf("Search error: %s", results.Err)
	}
	if len(results.Documents) != len(results.Metadata) {
		t.Errorf("Documents len = %d, Metadata len = %d, want equal",
			len(results.Documents), len(results.Metadata))
	}
}

func TestSearchLimit(t *testing.T) {
	s := newTestStore(t, nil, Options{MaxResults: 2})
	ctx := context.Background()

	chunks := make([]domain.CourseChunk, 6)
	for i := range chunks {
		chunks[i] = domain.CourseChunk{
			CourseTitle: "Go Basics",
			Content:     "repeated keyword chunk",
		}
	}
	if err := s.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	results := s.Search(ctx, "keyword", "", nil)
	if results.Err != "" {
		t.Fatalf("Search error: %s", results.Err)
	}
	if len(results.Documents) != 2 {
		t.Errorf("Documents len = %d, want 2", len(results.Documents))
	}
}

func TestSearchHybrid(t *testing.T) {
	s := newTestStore(t, &mockEmbedder{dims: 3})
	seedCourses(t, s)

	results := s.Search(context.Background(), "goroutines", "", nil)
	if results.Err != "" {
		t.Fatalf("Search error: %s", results.Err)
	}
	if results.IsEmpty() {
		t.Fatal("expected hybrid results")
	}

	found := false
	for _, m := range results.Metadata {
		if m.ChunkID == "g1" {
			found = true
		}
	}
	if !found {
		t.Error("expected chunk g1 among hybrid results")
	}

	for i := 1; i < len(results.Metadata); i++ {
		if results.Metadata[i].Score > results.Metadata[i-1].Score {
			t.Errorf("scores not descending at %d: %f > %f",
				i, results.Metadata[i].Score, results.Metadata[i-1].Score)
		}
	}
}

func TestSearchIndexStaysFresh(t *testing.T) {
	s := newTestStore(t, &mockEmbedder{dims: 3})
	seedCourses(t, s)
	ctx := context.Background()

	// First search loads the in-memory index.
	s.Search(ctx, "goroutines", "", nil)
	if !s.idx.isLoaded() {
		t.Fatal("expected index loaded after first search")
	}

	err := s.AddChunks(ctx, []domain.CourseChunk{
		{ID: "late", CourseTitle: "Go Basics", Content: "freshly indexed zirconium chunk"},
	})
	if err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	results := s.Search(ctx, "zirconium", "", nil)
	if results.Err != "" {
		t.Fatalf("Search error: %s", results.Err)
	}
	found := false
	for _, m := range results.Metadata {
		if m.ChunkID == "late" {
			found = true
		}
	}
	if !found {
		t.Error("expected late chunk in results after index update")
	}
}

func TestSearchFTSSyntaxFallback(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	err := s.AddChunks(ctx, []domain.CourseChunk{
		{ID: "f1", CourseTitle: "Go Basics", Content: `an unbalanced (quote "appears here`},
	})
	if err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	// FTS5 chokes on the unbalanced quote; the LIKE fallback should match.
	results := s.Search(ctx, `unbalanced (quote "appears`, "", nil)
	if results.Err != "" {
		t.Fatalf("Search error: %s", results.Err)
	}
	if len(results.Documents) != 1 {
		t.Errorf("Documents len = %d, want 1 via LIKE fallback", len(results.Documents))
	}
}

func TestSearchErrorAfterClose(t *testing.T) {
	s := newTestStore(t, nil)
	seedCourses(t, s)
	s.Close()

	results := s.Search(context.Background(), "goroutines", "", nil)
	if results.Err == "" {
		t.Error("expected Err after close")
	}
	if !results.IsEmpty() {
		t.Error("expected no documents alongside Err")
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"similar", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 0.001 {
				t.Errorf("cosineSimilarity = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarityLengthMismatch(t *testing.T) {
	got := cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	if got != 0 {
		t.Errorf("expected 0 for length mismatch, got %f", got)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	got := cosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	if got != 0 {
		t.Errorf("expected 0 for zero vector, got %f", got)
	}
}

func TestFloat32BytesRoundTrip(t *testing.T) {
	original := []float32{1.5, -2.5, 3.14, 0.0, math.MaxFloat32}
	encoded := float32ToBytes(original)
	decoded := bytesToFloat32(encoded)

	if len(decoded) != len(original) {
		t.Fatalf("length mismatch: %d vs %d", len(decoded), len(original))
	}
	for i := range original {
		if original[i] != decoded[i] {
			t.Errorf("[%d] = %f, want %f", i, decoded[i], original[i])
		}
	}
}

func TestFloat32BytesBadLength(t *testing.T) {
	got := bytesToFloat32([]byte{1, 2, 3}) // not divisible by 4
	if got != nil {
		t.Errorf("expected nil for bad length, got %v", got)
	}
}

func TestRRF(t *testing.T) {
	list1 := []domain.CourseChunk{
		{ID: "a", Content: "A"},
		{ID: "b", Content: "B"},
		{ID: "c", Content: "C"},
	}
	list2 := []domain.CourseChunk{
		{ID: "b", Content: "B"},
		{ID: "a", Content: "A"},
		{ID: "d", Content: "D"},
	}

	result := reciprocalRankFusion(list1, list2)
	if len(result) != 4 {
		t.Fatalf("result len = %d, want 4", len(result))
	}
	// "a" and "b" appear in both lists so should rank higher.
	topIDs := map[string]bool{result[0].chunk.ID: true, result[1].chunk.ID: true}
	if !topIDs["a"] || !topIDs["b"] {
		t.Errorf("expected 'a' and 'b' in top 2, got %q, %q", result[0].chunk.ID, result[1].chunk.ID)
	}
	for _, sc := range result {
		if sc.score <= 0 {
			t.Errorf("chunk %q has non-positive score %f", sc.chunk.ID, sc.score)
		}
	}
}

func TestRRFDisjoint(t *testing.T) {
	list1 := []domain.CourseChunk{{ID: "x"}}
	list2 := []domain.CourseChunk{{ID: "y"}}

	result := reciprocalRankFusion(list1, list2)
	if len(result) != 2 {
		t.Fatalf("result len = %d, want 2", len(result))
	}
}

func TestRRFEmpty(t *testing.T) {
	result := reciprocalRankFusion(nil, nil)
	if len(result) != 0 {
		t.Errorf("result len = %d, want 0", len(result))
	}
}
