package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pgvector/pgvector-go"
	"github.com/pressly/goose/v3"

	"github.com/your-org/facefind/internal/models"
)

// SQLiteStore implements Store on a single SQLite file. Vectors are kept in
// pgvector text form so both SQL backends share one codec.
type SQLiteStore struct {
	db  *sql.DB
	dim int
}

// NewSQLiteStore opens or creates the database at dbPath and migrates it.
// Parent directories are created if they do not exist.
func NewSQLiteStore(ctx context.Context, dbPath string, dim int) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := dbPath
	if strings.Contains(dsn, "?") {
		dsn += "&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	} else {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; avoids SQLITE_BUSY under concurrent uploads.
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db, goose.DialectSQLite3); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, dim: dim}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- Embeddings ---

func (s *SQLiteStore) Insert(ctx context.Context, owner models.Owner, scope string, vectors [][]float32) (int64, error) {
	if !owner.Valid() {
		return 0, fmt.Errorf("insert embedding: invalid owner %v", owner)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert embedding: %w", err)
	}
	defer tx.Rollback()

	dim := s.dim
	if dim == 0 {
		err := tx.QueryRowContext(ctx, `SELECT dim FROM embeddings ORDER BY id LIMIT 1`).Scan(&dim)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("load store dimension: %w", err)
		}
	}
	if dim, err = validateVectors(vectors, dim); err != nil {
		return 0, err
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+ownerTable(owner.Kind)+` WHERE id = ?)`, owner.ID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check owner %s: %w", owner, err)
	}
	if !exists {
		return 0, fmt.Errorf("insert embedding %s: %w", owner, models.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM embeddings WHERE owner_kind = ? AND owner_id = ?`, string(owner.Kind), owner.ID); err != nil {
		return 0, fmt.Errorf("replace embedding: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO embeddings (owner_kind, owner_id, scope, dim, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(owner.Kind), owner.ID, scope, dim, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert embedding: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert embedding: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO embedding_vectors (embedding_id, position, vector) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()
	for pos, v := range vectors {
		if _, err := stmt.ExecContext(ctx, id, pos, pgvector.NewVector(v).String()); err != nil {
			return 0, fmt.Errorf("insert embedding vector %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit embedding: %w", err)
	}
	return id, nil
}

// GetByOwner anchors on the owner's record: no rows means the owner is
// missing, a single NULL vector means it has no embedding.
func (s *SQLiteStore) GetByOwner(ctx context.Context, owner models.Owner) ([][]float32, bool, error) {
	if !owner.Valid() {
		return nil, false, fmt.Errorf("embedding of %v: %w", owner, models.ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.vector
		 FROM `+ownerTable(owner.Kind)+` o
		 LEFT JOIN embeddings e ON e.owner_kind = ? AND e.owner_id = o.id
		 LEFT JOIN embedding_vectors v ON v.embedding_id = e.id
		 WHERE o.id = ?
		 ORDER BY v.position`,
		string(owner.Kind), owner.ID)
	if err != nil {
		return nil, false, fmt.Errorf("get embedding %s: %w", owner, err)
	}
	defer rows.Close()

	var (
		seen    bool
		vectors [][]float32
	)
	for rows.Next() {
		seen = true
		var text sql.NullString
		if err := rows.Scan(&text); err != nil {
			return nil, false, fmt.Errorf("scan embedding %s: %w", owner, err)
		}
		if !text.Valid {
			continue
		}
		v, err := parseVector(text.String)
		if err != nil {
			return nil, false, err
		}
		vectors = append(vectors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("get embedding %s: %w", owner, err)
	}
	if !seen {
		return nil, false, fmt.Errorf("embedding of %s: %w", owner, models.ErrNotFound)
	}
	if len(vectors) == 0 {
		return nil, false, nil
	}
	return vectors, true, nil
}

func (s *SQLiteStore) GetByScope(ctx context.Context, scope string) ([]models.ScopedVector, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.owner_kind, e.owner_id, v.position, v.vector
		 FROM embeddings e JOIN embedding_vectors v ON v.embedding_id = e.id
		 WHERE e.scope = ?
		 ORDER BY e.owner_kind, e.owner_id, v.position`,
		scope)
	if err != nil {
		return nil, fmt.Errorf("get embeddings for scope: %w", err)
	}
	defer rows.Close()

	var out []models.ScopedVector
	for rows.Next() {
		sv := models.ScopedVector{Scope: scope}
		var kind, text string
		if err := rows.Scan(&kind, &sv.Owner.ID, &sv.Position, &text); err != nil {
			return nil, fmt.Errorf("scan scoped vector: %w", err)
		}
		sv.Owner.Kind = models.OwnerKind(kind)
		if sv.Vector, err = parseVector(text); err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, owner models.Owner) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE owner_kind = ? AND owner_id = ?`, string(owner.Kind), owner.ID)
	if err != nil {
		return fmt.Errorf("delete embedding %s: %w", owner, err)
	}
	return nil
}

func (s *SQLiteStore) DuplicateCandidates(ctx context.Context, filter models.FileFilter) ([]models.DuplicateCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.uploader_id, f.scope, f.content_key, f.content_hash, v.vector
		 FROM files f
		 LEFT JOIN embeddings e ON e.owner_kind = 'file' AND e.owner_id = f.id
		 LEFT JOIN embedding_vectors v ON v.embedding_id = e.id AND v.position = 0
		 WHERE (?1 = '' OR f.scope = ?1)
		   AND (?2 = '' OR f.uploader_id = ?2)
		   AND (?3 = '' OR f.status = ?3)
		 ORDER BY f.id`,
		filter.Scope, filter.UploaderID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("load duplicate candidates: %w", err)
	}
	defer rows.Close()

	var out []models.DuplicateCandidate
	for rows.Next() {
		var c models.DuplicateCandidate
		var text sql.NullString
		if err := rows.Scan(&c.FileID, &c.UploaderID, &c.Scope, &c.ContentKey, &c.ContentHash, &text); err != nil {
			return nil, fmt.Errorf("scan duplicate candidate: %w", err)
		}
		if text.Valid {
			if c.Vector, err = parseVector(text.String); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Faces ---

func (s *SQLiteStore) CreateFace(ctx context.Context, f *models.FaceRecord) error {
	f.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO faces (uploader_id, scope, filename, content_key, content_hash, embedding_id, face_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.UploaderID, f.Scope, f.Filename, f.ContentKey, f.ContentHash, f.EmbeddingID, f.FaceCount, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("create face: %w", err)
	}
	if f.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("create face: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetFace(ctx context.Context, id int64) (*models.FaceRecord, error) {
	f := &models.FaceRecord{}
	var embeddingID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, uploader_id, scope, filename, content_key, content_hash, embedding_id, face_count, created_at
		 FROM faces WHERE id = ?`, id,
	).Scan(&f.ID, &f.UploaderID, &f.Scope, &f.Filename, &f.ContentKey, &f.ContentHash,
		&embeddingID, &f.FaceCount, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("face %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get face: %w", err)
	}
	f.EmbeddingID = nullableID(embeddingID)
	return f, nil
}

func (s *SQLiteStore) SetFaceEmbedding(ctx context.Context, id int64, embeddingID *int64, faceCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE faces SET embedding_id = ?, face_count = ? WHERE id = ?`, embeddingID, faceCount, id)
	if err != nil {
		return fmt.Errorf("set face embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("face %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteFace(ctx context.Context, id int64) error {
	return s.deleteOwner(ctx, models.FaceOwner(id), `DELETE FROM faces WHERE id = ?`)
}

func (s *SQLiteStore) deleteOwner(ctx context.Context, owner models.Owner, query string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete %s: %w", owner, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, owner.ID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", owner, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", owner, models.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM embeddings WHERE owner_kind = ? AND owner_id = ?`, string(owner.Kind), owner.ID); err != nil {
		return fmt.Errorf("delete embeddings of %s: %w", owner, err)
	}
	return tx.Commit()
}

// --- Files ---

const sqliteFileColumns = `id, uploader_id, scope, filename, content_key, content_hash, content_type, size,
	version, status, embedding_id, face_count, created_at, updated_at`

func scanSQLiteFile(scanner interface{ Scan(...any) error }) (*models.FileRecord, error) {
	f := &models.FileRecord{}
	var status string
	var embeddingID sql.NullInt64
	err := scanner.Scan(&f.ID, &f.UploaderID, &f.Scope, &f.Filename, &f.ContentKey, &f.ContentHash,
		&f.ContentType, &f.Size, &f.Version, &status, &embeddingID, &f.FaceCount,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.Status = models.EmbeddingStatus(status)
	f.EmbeddingID = nullableID(embeddingID)
	return f, nil
}

func nullableID(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	id := n.Int64
	return &id
}

func (s *SQLiteStore) CreateFile(ctx context.Context, f *models.FileRecord) error {
	if f.Status == "" {
		f.Status = models.StatusUploaded
	}
	if f.Version == 0 {
		f.Version = 1
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO files (uploader_id, scope, filename, content_key, content_hash, content_type, size, version, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.UploaderID, f.Scope, f.Filename, f.ContentKey, f.ContentHash, f.ContentType, f.Size, f.Version,
		string(f.Status), f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if f.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetFile(ctx context.Context, id int64) (*models.FileRecord, error) {
	f, err := scanSQLiteFile(s.db.QueryRowContext(ctx, `SELECT `+sqliteFileColumns+` FROM files WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) ListFiles(ctx context.Context, filter models.FileFilter) ([]models.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteFileColumns+` FROM files
		 WHERE (?1 = '' OR scope = ?1)
		   AND (?2 = '' OR uploader_id = ?2)
		   AND (?3 = '' OR status = ?3)
		 ORDER BY id`,
		filter.Scope, filter.UploaderID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []models.FileRecord
	for rows.Next() {
		f, err := scanSQLiteFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) UpdateFileStatus(ctx context.Context, id int64, next models.EmbeddingStatus) error {
	return s.transition(ctx, id, next, `UPDATE files SET status = ?, updated_at = ? WHERE id = ?`,
		string(next), time.Now().UTC(), id)
}

func (s *SQLiteStore) AttachEmbedding(ctx context.Context, id int64, embeddingID *int64, faceCount int) error {
	next := embeddingStatus(embeddingID)
	return s.transition(ctx, id, next,
		`UPDATE files SET status = ?, embedding_id = ?, face_count = ?, updated_at = ? WHERE id = ?`,
		string(next), embeddingID, faceCount, time.Now().UTC(), id)
}

// transition checks the current status and applies update in one transaction.
func (s *SQLiteStore) transition(ctx context.Context, id int64, next models.EmbeddingStatus, update string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM files WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("file %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get file status: %w", err)
	}
	if !models.EmbeddingStatus(current).CanTransition(next) {
		return fmt.Errorf("file %d %s -> %s: %w", id, current, next, models.ErrInvalidTransition)
	}
	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, id int64) error {
	return s.deleteOwner(ctx, models.FileOwner(id), `DELETE FROM files WHERE id = ?`)
}

// --- Chunks ---

func (s *SQLiteStore) SaveChunks(ctx context.Context, fileID int64, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save chunks: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_chunks WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO file_chunks (file_id, chunk_index, object_key, sha256, size) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, fileID, c.Index, c.Key, c.SHA256, c.Size); err != nil {
			return fmt.Errorf("insert chunk %d of file %d: %w", c.Index, fileID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListChunks(ctx context.Context, fileID int64) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, chunk_index, object_key, sha256, size FROM file_chunks WHERE file_id = ? ORDER BY chunk_index`,
		fileID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.FileID, &c.Index, &c.Key, &c.SHA256, &c.Size); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) ContentKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_key FROM faces UNION SELECT content_key FROM files ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("list content keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan content key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
