package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
	"github.com/pressly/goose/v3"

	"github.com/your-org/facefind/internal/config"
	"github.com/your-org/facefind/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, dim int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, dim: dim}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate runs the embedded goose migrations over a database/sql view of the pool.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()
	return Migrate(ctx, db, goose.DialectPostgres)
}

// --- Embeddings ---

func (s *PostgresStore) Insert(ctx context.Context, owner models.Owner, scope string, vectors [][]float32) (int64, error) {
	if !owner.Valid() {
		return 0, fmt.Errorf("insert embedding: invalid owner %v", owner)
	}
	dim, err := s.storeDim(ctx)
	if err != nil {
		return 0, err
	}
	if dim, err = validateVectors(vectors, dim); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin insert embedding: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+ownerTable(owner.Kind)+` WHERE id = $1)`, owner.ID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check owner %s: %w", owner, err)
	}
	if !exists {
		return 0, fmt.Errorf("insert embedding %s: %w", owner, models.ErrNotFound)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM embeddings WHERE owner_kind = $1 AND owner_id = $2`,
		owner.Kind, owner.ID); err != nil {
		return 0, fmt.Errorf("replace embedding: %w", err)
	}

	var id int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO embeddings (owner_kind, owner_id, scope, dim) VALUES ($1, $2, $3, $4) RETURNING id`,
		owner.Kind, owner.ID, scope, dim,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert embedding: %w", err)
	}

	batch := &pgx.Batch{}
	for pos, v := range vectors {
		batch.Queue(`INSERT INTO embedding_vectors (embedding_id, position, vector) VALUES ($1, $2, $3)`,
			id, pos, pgvector.NewVector(v))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("insert embedding vectors: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit embedding: %w", err)
	}
	return id, nil
}

// storeDim is the configured dimension, or the dimension of any stored record.
func (s *PostgresStore) storeDim(ctx context.Context) (int, error) {
	if s.dim > 0 {
		return s.dim, nil
	}
	var dim int
	err := s.pool.QueryRow(ctx, `SELECT dim FROM embeddings ORDER BY id LIMIT 1`).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load store dimension: %w", err)
	}
	return dim, nil
}

// GetByOwner anchors on the owner's record: no rows means the owner is
// missing, a single NULL vector means it has no embedding.
func (s *PostgresStore) GetByOwner(ctx context.Context, owner models.Owner) ([][]float32, bool, error) {
	if !owner.Valid() {
		return nil, false, fmt.Errorf("embedding of %v: %w", owner, models.ErrNotFound)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT v.vector::text
		 FROM `+ownerTable(owner.Kind)+` o
		 LEFT JOIN embeddings e ON e.owner_kind = $1 AND e.owner_id = o.id
		 LEFT JOIN embedding_vectors v ON v.embedding_id = e.id
		 WHERE o.id = $2
		 ORDER BY v.position`,
		owner.Kind, owner.ID)
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
		var text *string
		if err := rows.Scan(&text); err != nil {
			return nil, false, fmt.Errorf("scan embedding %s: %w", owner, err)
		}
		if text == nil {
			continue
		}
		v, err := parseVector(*text)
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

func (s *PostgresStore) GetByScope(ctx context.Context, scope string) ([]models.ScopedVector, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT e.owner_kind, e.owner_id, v.position, v.vector::text
		 FROM embeddings e JOIN embedding_vectors v ON v.embedding_id = e.id
		 WHERE e.scope = $1
		 ORDER BY e.owner_kind, e.owner_id, v.position`,
		scope)
	if err != nil {
		return nil, fmt.Errorf("get embeddings for scope: %w", err)
	}
	defer rows.Close()

	var out []models.ScopedVector
	for rows.Next() {
		sv := models.ScopedVector{Scope: scope}
		var text string
		if err := rows.Scan(&sv.Owner.Kind, &sv.Owner.ID, &sv.Position, &text); err != nil {
			return nil, fmt.Errorf("scan scoped vector: %w", err)
		}
		if sv.Vector, err = parseVector(text); err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, owner models.Owner) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM embeddings WHERE owner_kind = $1 AND owner_id = $2`, owner.Kind, owner.ID)
	if err != nil {
		return fmt.Errorf("delete embedding %s: %w", owner, err)
	}
	return nil
}

func (s *PostgresStore) DuplicateCandidates(ctx context.Context, filter models.FileFilter) ([]models.DuplicateCandidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.uploader_id, f.scope, f.content_key, f.content_hash, v.vector::text
		 FROM files f
		 LEFT JOIN embeddings e ON e.owner_kind = 'file' AND e.owner_id = f.id
		 LEFT JOIN embedding_vectors v ON v.embedding_id = e.id AND v.position = 0
		 WHERE ($1::text = '' OR f.scope = $1)
		   AND ($2::text = '' OR f.uploader_id = $2)
		   AND ($3::text = '' OR f.status = $3)
		 ORDER BY f.id`,
		filter.Scope, filter.UploaderID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("load duplicate candidates: %w", err)
	}
	defer rows.Close()

	var out []models.DuplicateCandidate
	for rows.Next() {
		var c models.DuplicateCandidate
		var text *string
		if err := rows.Scan(&c.FileID, &c.UploaderID, &c.Scope, &c.ContentKey, &c.ContentHash, &text); err != nil {
			return nil, fmt.Errorf("scan duplicate candidate: %w", err)
		}
		if text != nil {
			if c.Vector, err = parseVector(*text); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Faces ---

func (s *PostgresStore) CreateFace(ctx context.Context, f *models.FaceRecord) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO faces (uploader_id, scope, filename, content_key, content_hash, embedding_id, face_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		f.UploaderID, f.Scope, f.Filename, f.ContentKey, f.ContentHash, f.EmbeddingID, f.FaceCount,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("create face: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFace(ctx context.Context, id int64) (*models.FaceRecord, error) {
	f := &models.FaceRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, uploader_id, scope, filename, content_key, content_hash, embedding_id, face_count, created_at
		 FROM faces WHERE id = $1`, id,
	).Scan(&f.ID, &f.UploaderID, &f.Scope, &f.Filename, &f.ContentKey, &f.ContentHash,
		&f.EmbeddingID, &f.FaceCount, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("face %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get face: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) SetFaceEmbedding(ctx context.Context, id int64, embeddingID *int64, faceCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE faces SET embedding_id = $2, face_count = $3 WHERE id = $1`, id, embeddingID, faceCount)
	if err != nil {
		return fmt.Errorf("set face embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("face %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteFace(ctx context.Context, id int64) error {
	return s.deleteOwner(ctx, models.FaceOwner(id), `DELETE FROM faces WHERE id = $1`)
}

// deleteOwner removes an owner row and its embeddings in one transaction.
func (s *PostgresStore) deleteOwner(ctx context.Context, owner models.Owner, query string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete %s: %w", owner, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, query, owner.ID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", owner, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", owner, models.ErrNotFound)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM embeddings WHERE owner_kind = $1 AND owner_id = $2`, owner.Kind, owner.ID); err != nil {
		return fmt.Errorf("delete embeddings of %s: %w", owner, err)
	}
	return tx.Commit(ctx)
}

// --- Files ---

const fileColumns = `id, uploader_id, scope, filename, content_key, content_hash, content_type, size,
	version, status, embedding_id, face_count, created_at, updated_at`

func scanFile(row pgx.Row) (*models.FileRecord, error) {
	f := &models.FileRecord{}
	err := row.Scan(&f.ID, &f.UploaderID, &f.Scope, &f.Filename, &f.ContentKey, &f.ContentHash,
		&f.ContentType, &f.Size, &f.Version, &f.Status, &f.EmbeddingID, &f.FaceCount,
		&f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (s *PostgresStore) CreateFile(ctx context.Context, f *models.FileRecord) error {
	if f.Status == "" {
		f.Status = models.StatusUploaded
	}
	if f.Version == 0 {
		f.Version = 1
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO files (uploader_id, scope, filename, content_key, content_hash, content_type, size, version, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at, updated_at`,
		f.UploaderID, f.Scope, f.Filename, f.ContentKey, f.ContentHash, f.ContentType, f.Size, f.Version, f.Status,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFile(ctx context.Context, id int64) (*models.FileRecord, error) {
	f, err := scanFile(s.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("file %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) ListFiles(ctx context.Context, filter models.FileFilter) ([]models.FileRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE ($1::text = '' OR scope = $1)
		   AND ($2::text = '' OR uploader_id = $2)
		   AND ($3::text = '' OR status = $3)
		 ORDER BY id`,
		filter.Scope, filter.UploaderID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []models.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

func (s *PostgresStore) UpdateFileStatus(ctx context.Context, id int64, next models.EmbeddingStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE files SET status = $2, updated_at = NOW() WHERE id = $1 AND status = ANY($3)`,
		id, next, statusStrings(models.SourcesFor(next)))
	if err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, next)
	}
	return nil
}

func (s *PostgresStore) AttachEmbedding(ctx context.Context, id int64, embeddingID *int64, faceCount int) error {
	next := embeddingStatus(embeddingID)
	tag, err := s.pool.Exec(ctx,
		`UPDATE files SET status = $2, embedding_id = $3, face_count = $4, updated_at = NOW()
		 WHERE id = $1 AND status = ANY($5)`,
		id, next, embeddingID, faceCount, statusStrings(models.SourcesFor(next)))
	if err != nil {
		return fmt.Errorf("attach embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, next)
	}
	return nil
}

// transitionError explains why a conditional status update touched no rows.
func (s *PostgresStore) transitionError(ctx context.Context, id int64, next models.EmbeddingStatus) error {
	var current models.EmbeddingStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM files WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("file %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get file status: %w", err)
	}
	return fmt.Errorf("file %d %s -> %s: %w", id, current, next, models.ErrInvalidTransition)
}

func (s *PostgresStore) DeleteFile(ctx context.Context, id int64) error {
	return s.deleteOwner(ctx, models.FileOwner(id), `DELETE FROM files WHERE id = $1`)
}

// --- Chunks ---

func (s *PostgresStore) SaveChunks(ctx context.Context, fileID int64, chunks []models.Chunk) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM file_chunks WHERE file_id = $1`, fileID)
	for _, c := range chunks {
		batch.Queue(`INSERT INTO file_chunks (file_id, chunk_index, object_key, sha256, size) VALUES ($1, $2, $3, $4, $5)`,
			fileID, c.Index, c.Key, c.SHA256, c.Size)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save chunks: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save chunks for file %d: %w", fileID, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListChunks(ctx context.Context, fileID int64) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT file_id, chunk_index, object_key, sha256, size FROM file_chunks WHERE file_id = $1 ORDER BY chunk_index`,
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

func (s *PostgresStore) ContentKeys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
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
