package vectorstore

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS courses (
			title           TEXT PRIMARY KEY,
			link            TEXT NOT NULL DEFAULT '',
			instructor      TEXT NOT NULL DEFAULT '',
			lessons         TEXT NOT NULL DEFAULT '[]',
			title_embedding BLOB,
			created_at      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chunks (
			id            TEXT PRIMARY KEY,
			course_title  TEXT NOT NULL,
			lesson_number INTEGER,
			content       TEXT NOT NULL,
			embedding     BLOB,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS chunks_course_lesson
			ON chunks(course_title, lesson_number);

		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			content, course_title, content=chunks, content_rowid=rowid
		);

		-- Triggers to keep FTS in sync with the chunks table.
		CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, content, course_title) VALUES (new.rowid, new.content, new.course_title);
		END;

		CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, content, course_title) VALUES ('delete', old.rowid, old.content, old.course_title);
		END;

		CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, content, course_title) VALUES ('delete', old.rowid, old.content, old.course_title);
			INSERT INTO chunks_fts(rowid, content, course_title) VALUES (new.rowid, new.content, new.course_title);
		END;
	`
	_, err := db.Exec(schema)
	return err
}
