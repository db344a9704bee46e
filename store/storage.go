package store

import (
	"context"
	"fmt"

	"docqa/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type DBStorer interface {
	SaveDocument(ctx context.Context, doc *types.Document) error
	SetExtractedText(ctx context.Context, docID uuid.UUID, text string) error
	ListDocuments(ctx context.Context) ([]types.Document, error)
	InsertChunk(ctx context.Context, chunk *types.TextChunk) error
	Similar(ctx context.Context, queryVec []float32, limit int) ([]types.ChunkMatch, error)
	DeleteAllDocuments(ctx context.Context) (int64, error)
}

type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
}

func NewPostgresStore(ctx context.Context, connStr string, dimension int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:      pool,
		dimension: dimension,
	}, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		uploaded_at TIMESTAMP WITH TIME ZONE NOT NULL,
		extracted_text TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_index INT NOT NULL,
		text TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		UNIQUE (document_id, chunk_index)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);
	`, p.dimension)

	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) SaveDocument(ctx context.Context, doc *types.Document) error {
	query := `INSERT INTO documents (id, file_name, file_path, uploaded_at, extracted_text)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := p.pool.Exec(ctx, query, doc.ID, doc.FileName, doc.FilePath, doc.UploadedAt, doc.ExtractedText)
	return err
}

func (p *PostgresStore) SetExtractedText(ctx context.Context, docID uuid.UUID, text string) error {
	_, err := p.pool.Exec(ctx, `UPDATE documents SET extracted_text = $2 WHERE id = $1`, docID, text)
	return err
}

func (p *PostgresStore) ListDocuments(ctx context.Context) ([]types.Document, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, file_name, file_path, uploaded_at, extracted_text FROM documents ORDER BY uploaded_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var d types.Document
		if err := rows.Scan(&d.ID, &d.FileName, &d.FilePath, &d.UploadedAt, &d.ExtractedText); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (p *PostgresStore) InsertChunk(ctx context.Context, chunk *types.TextChunk) error {
	query := `INSERT INTO chunks (id, document_id, chunk_index, text, embedding)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := p.pool.Exec(ctx, query,
		chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Text, pgvector.NewVector(chunk.Embedding))
	return err
}

// Similar ranks every stored chunk by cosine similarity against queryVec and
// returns the top limit results, most similar first.
func (p *PostgresStore) Similar(ctx context.Context, queryVec []float32, limit int) ([]types.ChunkMatch, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	vector := pgvector.NewVector(queryVec)

	query := `
		SELECT c.id, c.document_id, c.chunk_index, c.text,
		       1 - (c.embedding <=> $1) AS similarity
		FROM chunks c
		ORDER BY c.embedding <=> $1
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, vector, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []types.ChunkMatch
	for rows.Next() {
		var m types.ChunkMatch
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.ChunkIndex, &m.Text, &m.Similarity); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteAllDocuments removes every document; chunks go with them via the
// cascade. Returns the number of deleted documents.
func (p *PostgresStore) DeleteAllDocuments(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM documents`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
