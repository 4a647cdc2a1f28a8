// Package vectorstore persists the course catalog and content chunks in a
// single SQLite database and serves hybrid keyword + semantic search over
// them. It implements domain.CourseSearcher and domain.CatalogReader.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"lectern/internal/domain"
)

// Options holds search tuning parameters. Zero values select defaults.
type Options struct {
	MaxResults    int // results returned per search; 0 = 5
	MaxCandidates int // max chunk embeddings scanned per vector search; 0 = 10000
}

const (
	defaultMaxResults    = 5
	defaultMaxCandidates = 10000
)

// Store is a SQLite + FTS5 backed course index with optional vector
// embeddings. When an EmbeddingProvider is supplied, Store generates
// embeddings on write and supports hybrid (BM25 + cosine) search; without
// one, search is keyword-only.
//
// An in-memory chunkIndex caches embeddings to avoid SQLite I/O on every
// vector search. The index is lazily loaded on the first search and
// incrementally updated on writes.
type Store struct {
	db       *sql.DB
	embedder domain.EmbeddingProvider
	logger   *slog.Logger
	dbPath   string
	opts     Options
	idx      *chunkIndex
}

// New opens (or creates) a SQLite database at dbPath, runs migrations, and
// returns a ready Store. Pass nil for embedder to use keyword-only search.
func New(dbPath string, embedder domain.EmbeddingProvider, logger *slog.Logger, opts ...Options) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrVectorStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	// Pragmas for performance.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrVectorStore, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrVectorStore, err)
	}

	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	return &Store{
		db:       db,
		embedder: embedder,
		logger:   logger,
		dbPath:   dbPath,
		opts:     o,
		idx:      newChunkIndex(),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddCourse upserts one course into the catalog. The title is the primary
// key; re-adding a course replaces its link, instructor, and lesson list.
// The title is also embedded (when an embedder is available) so that
// partial course names can be resolved semantically later.
func (s *Store) AddCourse(ctx context.Context, meta domain.CourseMetadata) error {
	if meta.CourseTitle == "" {
		return fmt.Errorf("%w: course title is required", domain.ErrInvalidInput)
	}
	if meta.Lessons == nil {
		meta.Lessons = []domain.Lesson{}
	}

	lessons, err := json.Marshal(meta.Lessons)
	if err != nil {
		return fmt.Errorf("%w: marshal lessons: %v", domain.ErrVectorStore, err)
	}

	var titleEmb []byte
	if s.embedder != nil {
		vecs, err := s.embedder.Embed(ctx, []string{meta.CourseTitle})
		if err != nil {
			s.logger.Warn("vector store: title embedding failed, storing course without vector",
				"course", meta.CourseTitle, "error", err)
		} else if len(vecs) > 0 {
			titleEmb = float32ToBytes(vecs[0])
		}
	}

	const upsert = `
		INSERT INTO courses (title, link, instructor, lessons, title_embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET
			link            = excluded.link,
			instructor      = excluded.instructor,
			lessons         = excluded.lessons,
			title_embedding = excluded.title_embedding
	`

	_, err = s.db.ExecContext(ctx, upsert,
		meta.CourseTitle,
		meta.CourseLink,
		meta.Instructor,
		string(lessons),
		titleEmb,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert course: %v", domain.ErrVectorStore, err)
	}
	return nil
}

// AddChunks stores content chunks in a single transaction with a single
// batched embedding call. Chunks without IDs get ULIDs assigned. An
// embedding failure degrades to keyword-only retrieval for the batch
// rather than failing the write.
func (s *Store) AddChunks(ctx context.Context, chunks []domain.CourseChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	now := time.Now().UTC()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = ulid.MustNew(ulid.Timestamp(now), entropy).String()
		}
		if chunks[i].CourseTitle == "" {
			return fmt.Errorf("%w: chunk %q has no course title", domain.ErrInvalidInput, chunks[i].ID)
		}
	}

	// Batch embed: collect all non-empty content strings, generate
	// embeddings in a single API call.
	var embeddings [][]byte
	if s.embedder != nil {
		texts := make([]string, 0, len(chunks))
		textIndices := make([]int, 0, len(chunks))
		for i, c := range chunks {
			if c.Content != "" {
				texts = append(texts, c.Content)
				textIndices = append(textIndices, i)
			}
		}

		embeddings = make([][]byte, len(chunks))
		if len(texts) > 0 {
			vecs, err := s.embedder.Embed(ctx, texts)
			if err != nil {
				s.logger.Warn("vector store: batch embedding failed, storing without vectors", "error", err)
			} else {
				for j, idx := range textIndices {
					if j < len(vecs) {
						embeddings[idx] = float32ToBytes(vecs[j])
					}
				}
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", domain.ErrVectorStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	const upsert = `
		INSERT INTO chunks (id, course_title, lesson_number, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			course_title  = excluded.course_title,
			lesson_number = excluded.lesson_number,
			content       = excluded.content,
			embedding     = excluded.embedding
	`

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", domain.ErrVectorStore, err)
	}
	defer stmt.Close()

	createdAt := now.Format(time.RFC3339)
	for i, c := range chunks {
		var emb []byte
		if embeddings != nil {
			emb = embeddings[i]
		}

		_, err = stmt.ExecContext(ctx,
			c.ID,
			c.CourseTitle,
			lessonValue(c.LessonNumber),
			c.Content,
			emb,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("%w: upsert chunk %q: %v", domain.ErrVectorStore, c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrVectorStore, err)
	}

	// Update in-memory index for chunks that got embeddings.
	if s.idx.isLoaded() && embeddings != nil {
		for i, c := range chunks {
			if embeddings[i] != nil {
				s.idx.put(c, bytesToFloat32(embeddings[i]))
			}
		}
	}

	return nil
}

// DeleteCourse removes a course and all of its chunks.
func (s *Store) DeleteCourse(ctx context.Context, courseTitle string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM courses WHERE title = ?", courseTitle)
	if err != nil {
		return fmt.Errorf("%w: delete course: %v", domain.ErrVectorStore, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: course %q", domain.ErrNotFound, courseTitle)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE course_title = ?", courseTitle); err != nil {
		return fmt.Errorf("%w: delete chunks: %v", domain.ErrVectorStore, err)
	}
	s.idx.removeCourse(courseTitle)
	return nil
}

// Clear removes every course and chunk. Used when re-indexing a corpus
// from scratch.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("%w: clear chunks: %v", domain.ErrVectorStore, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM courses"); err != nil {
		return fmt.Errorf("%w: clear courses: %v", domain.ErrVectorStore, err)
	}
	s.idx.reset()
	return nil
}

// CourseCount returns the number of courses in the catalog.
func (s *Store) CourseCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM courses").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count courses: %v", domain.ErrCatalog, err)
	}
	return n, nil
}

// ChunkCount returns the number of stored content chunks.
func (s *Store) ChunkCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count chunks: %v", domain.ErrVectorStore, err)
	}
	return n, nil
}

// lessonValue converts an optional lesson number to a SQL parameter,
// mapping nil to NULL.
func lessonValue(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

// scanChunks reads chunk rows. Scan errors on individual rows are skipped
// since they indicate data corruption, not a retrieval failure.
func scanChunks(rows *sql.Rows) ([]domain.CourseChunk, error) {
	var chunks []domain.CourseChunk
	for rows.Next() {
		var (
			c      domain.CourseChunk
			lesson sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.CourseTitle, &lesson, &c.Content); err != nil {
			continue
		}
		if lesson.Valid {
			n := int(lesson.Int64)
			c.LessonNumber = &n
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
