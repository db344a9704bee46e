package types

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus describes how far a document got through the
// upload -> extract -> chunk/embed pipeline.
type ProcessingStatus string

const (
	// StatusUploadOnly: the document row exists but text extraction failed.
	StatusUploadOnly ProcessingStatus = "upload_only"
	// StatusTextExtracted: text saved, chunking or embedding did not complete.
	StatusTextExtracted ProcessingStatus = "text_extracted"
	// StatusChunkedAndEmbedded: terminal success, chunks are searchable.
	StatusChunkedAndEmbedded ProcessingStatus = "chunked_and_embedded"
)

type Document struct {
	ID            uuid.UUID `json:"id"`
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"-"`
	UploadedAt    time.Time `json:"uploaded_at"`
	ExtractedText string    `json:"extracted_text"`
}

// TextChunk is immutable once stored. Its embedding always carries the
// configured dimension; rows are never written with a missing or wrong-sized
// vector.
type TextChunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Text       string
	Embedding  []float32
}

// ChunkMatch is one similarity-search result. Similarity is
// 1 - cosine_distance(stored, query), higher is closer.
type ChunkMatch struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	Text       string    `json:"text"`
	ChunkIndex int       `json:"chunk_index"`
	DocumentID uuid.UUID `json:"document_id"`
	Similarity float64   `json:"similarity"`
}

// UploadResult reports the outcome of an ingest, distinguishing "document
// saved, processing failed" from full success so callers can branch without
// parsing logs.
type UploadResult struct {
	Document *Document        `json:"document"`
	Status   ProcessingStatus `json:"status"`
	ChunkIDs []uuid.UUID      `json:"chunk_ids,omitempty"`
	Warning  string           `json:"warning,omitempty"`
}

// AnswerResult is always best-effort: Error is populated when the completion
// backend failed and Answer fell back to raw chunk text.
type AnswerResult struct {
	Answer       string       `json:"answer"`
	SourceChunks []ChunkMatch `json:"source_chunks"`
	Error        string       `json:"error,omitempty"`
}

type ClearAllResult struct {
	Message string `json:"message"`
	Deleted int64  `json:"deleted"`
}
