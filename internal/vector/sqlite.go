// File path: internal/vector/sqlite.go
package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/repolens/repolens/internal/chunker"
)

// SQLiteStore is the durable Store backend. Vectors are serialized as JSON
// alongside the chunk metadata; one row per stored chunk.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite constructs a SQLiteStore at the given path, migrating the
// schema on first use.
func OpenSQLite(path string) (*SQLiteStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", abs)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS collections (
                name TEXT PRIMARY KEY,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS chunks (
                id TEXT NOT NULL,
                collection TEXT NOT NULL,
                content TEXT NOT NULL,
                file_path TEXT NOT NULL,
                start_line INTEGER NOT NULL,
                end_line INTEGER NOT NULL,
                language TEXT,
                repo_id TEXT NOT NULL,
                vector TEXT NOT NULL,
                created_at DATETIME NOT NULL,
                PRIMARY KEY (collection, id),
                FOREIGN KEY(collection) REFERENCES collections(name) ON DELETE CASCADE
        );`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);`,
}

type chunkRow struct {
	ID         string    `db:"id"`
	Collection string    `db:"collection"`
	Content    string    `db:"content"`
	FilePath   string    `db:"file_path"`
	StartLine  int       `db:"start_line"`
	EndLine    int       `db:"end_line"`
	Language   string    `db:"language"`
	RepoID     string    `db:"repo_id"`
	Vector     string    `db:"vector"`
	CreatedAt  time.Time `db:"created_at"`
}

func (s *SQLiteStore) EnsureCollection(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, collection)
	if err != nil {
		return fmt.Errorf("ensure collection %s: %w", collection, err)
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, collection string, chunks []StoredChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	const stmt = `INSERT OR REPLACE INTO chunks
                (id, collection, content, file_path, start_line, end_line, language, repo_id, vector, created_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, stored := range chunks {
		payload, err := json.Marshal(stored.Vector)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal vector for %s: %w", stored.Chunk.ID, err)
		}
		meta := stored.Chunk.Metadata
		if _, err := tx.ExecContext(ctx, stmt,
			stored.Chunk.ID, collection, stored.Chunk.Content,
			meta.FilePath, meta.StartLine, meta.EndLine, meta.Language, meta.RepoID,
			string(payload), stored.CreatedAt.UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert chunk %s: %w", stored.Chunk.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) All(ctx context.Context, collection string) ([]StoredChunk, error) {
	if err := s.requireCollection(ctx, collection); err != nil {
		return nil, err
	}
	var rows []chunkRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, collection, content, file_path, start_line, end_line, language, repo_id, vector, created_at
                 FROM chunks WHERE collection = ? ORDER BY id`, collection); err != nil {
		return nil, fmt.Errorf("load collection %s: %w", collection, err)
	}
	out := make([]StoredChunk, 0, len(rows))
	for _, row := range rows {
		var vec []float32
		if err := json.Unmarshal([]byte(row.Vector), &vec); err != nil {
			return nil, fmt.Errorf("decode vector for %s: %w", row.ID, err)
		}
		out = append(out, StoredChunk{
			Chunk: chunker.Chunk{
				ID:      row.ID,
				Content: row.Content,
				Metadata: chunker.Metadata{
					FilePath:  row.FilePath,
					StartLine: row.StartLine,
					EndLine:   row.EndLine,
					Language:  row.Language,
					RepoID:    row.RepoID,
				},
			},
			Vector:    vec,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	if err := s.requireCollection(ctx, collection); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM chunks WHERE collection = ?`, collection); err != nil {
		return 0, fmt.Errorf("count collection %s: %w", collection, err)
	}
	return count, nil
}

func (s *SQLiteStore) Drop(ctx context.Context, collection string) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin drop: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, collection); err != nil {
		tx.Rollback()
		return fmt.Errorf("drop chunks %s: %w", collection, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, collection); err != nil {
		tx.Rollback()
		return fmt.Errorf("drop collection %s: %w", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit drop: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) requireCollection(ctx context.Context, collection string) error {
	var name string
	err := s.db.GetContext(ctx, &name, `SELECT name FROM collections WHERE name = ?`, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("collection %s not found", collection)
	}
	if err != nil {
		return fmt.Errorf("lookup collection %s: %w", collection, err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
