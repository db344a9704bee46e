package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docqa/model"
	"docqa/store"
	"docqa/textproc"
	"docqa/types"

	"github.com/google/uuid"
)

const (
	noInformationAnswer = "I couldn't find any relevant information to answer your query."
	fallbackAnswer      = "Based on the documents, I found this information: %s"
	queryFailedAnswer   = "An error occurred while processing your query."
	processingWarning   = "Document was saved but there was an error processing it for search."

	answerTopK = 3

	answerPromptTemplate = `Answer the following question based on the provided context. If you cannot answer
the question from the context, say "I don't have enough information to answer this question."

Context:
%s

Question: %s`
)

// DocumentService drives the upload -> extract -> chunk -> embed -> store
// pipeline and the search/answer/clear operations. All collaborators are
// injected once at startup; the service keeps no per-request state.
type DocumentService struct {
	store    store.DBStorer
	embedder model.Embedder
	llm      model.Completer
	splitter *textproc.Splitter
	logger   *slog.Logger

	// Extract is swappable so the pipeline can be driven without real PDFs.
	Extract func(path string) (string, error)
}

func New(storer store.DBStorer, embedder model.Embedder, llm model.Completer, logger *slog.Logger) *DocumentService {
	return &DocumentService{
		store:    storer,
		embedder: embedder,
		llm:      llm,
		splitter: textproc.NewSplitter(),
		logger:   logger,
		Extract:  textproc.ExtractText,
	}
}

// IngestPDF runs the linear pipeline for one uploaded file. The document row
// is committed before extraction, so a later failure leaves it in place:
// extraction errors surface to the caller with the row at upload_only, and
// chunk/embed failures downgrade to a warning without rolling back the saved
// text.
func (s *DocumentService) IngestPDF(ctx context.Context, path, fileName string) (*types.UploadResult, error) {
	doc := &types.Document{
		ID:         uuid.New(),
		FileName:   fileName,
		FilePath:   path,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	result := &types.UploadResult{Document: doc, Status: types.StatusUploadOnly}

	text, err := s.Extract(path)
	if err != nil {
		s.logger.Error("text extraction failed", "document_id", doc.ID, "file", fileName, "error", err)
		return result, err
	}

	doc.ExtractedText = text
	if err := s.store.SetExtractedText(ctx, doc.ID, text); err != nil {
		return nil, fmt.Errorf("save extracted text: %w", err)
	}
	result.Status = types.StatusTextExtracted

	chunks := s.splitter.SplitText(text)
	s.logger.Info("document chunked", "document_id", doc.ID, "chunks", len(chunks))

	if len(chunks) == 0 {
		result.Warning = processingWarning
		return result, nil
	}

	ids, err := s.StoreChunks(ctx, doc, chunks)
	if err != nil || len(ids) == 0 {
		if err != nil {
			s.logger.Error("chunk storage failed", "document_id", doc.ID, "error", err)
		}
		result.Warning = processingWarning
		return result, nil
	}

	result.Status = types.StatusChunkedAndEmbedded
	result.ChunkIDs = ids
	return result, nil
}

// StoreChunks embeds all chunk texts in one batch call and persists one row
// per (text, vector) pair, the position doubling as chunk_index. A batch
// cardinality mismatch aborts the whole operation with zero rows written; an
// individual missing or wrong-sized vector only skips its own row.
func (s *DocumentService) StoreChunks(ctx context.Context, doc *types.Document, chunks []string) ([]uuid.UUID, error) {
	if len(chunks) == 0 {
		s.logger.Warn("no chunks to store", "document_id", doc.ID)
		return nil, nil
	}

	s.logger.Info("generating embeddings", "document_id", doc.ID, "chunks", len(chunks))
	embeddings, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("generate batch embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		s.logger.Error("embedding count mismatch",
			"document_id", doc.ID, "embeddings", len(embeddings), "chunks", len(chunks))
		return nil, fmt.Errorf("%w: %d embeddings for %d chunks", model.ErrCountMismatch, len(embeddings), len(chunks))
	}

	// Reference dimension for the per-row size check, taken from the first
	// usable vector in the batch.
	dimension := 0
	for _, e := range embeddings {
		if len(e) > 0 {
			dimension = len(e)
			break
		}
	}

	var ids []uuid.UUID
	for i, text := range chunks {
		embedding := embeddings[i]
		if len(embedding) == 0 || len(embedding) != dimension {
			s.logger.Warn("invalid embedding, skipping chunk", "document_id", doc.ID, "chunk_index", i)
			continue
		}

		chunk := &types.TextChunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Text:       text,
			Embedding:  embedding,
		}
		if err := s.store.InsertChunk(ctx, chunk); err != nil {
			return ids, fmt.Errorf("insert chunk %d: %w", i, err)
		}
		ids = append(ids, chunk.ID)
	}
	return ids, nil
}

// Search embeds the query and returns the top limit chunks by cosine
// similarity, best first.
func (s *DocumentService) Search(ctx context.Context, query string, limit int) ([]types.ChunkMatch, error) {
	queryVec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.store.Similar(ctx, queryVec, limit)
}

// Answer retrieves the most relevant chunks and asks the completion backend
// to answer from them. It never returns a hard failure: with no matching
// chunks the caller gets a fixed notice, and a completion error falls back to
// the top chunk's raw text with the error reported alongside.
func (s *DocumentService) Answer(ctx context.Context, query string) *types.AnswerResult {
	matches, err := s.Search(ctx, query, answerTopK)
	if err != nil {
		s.logger.Error("answer retrieval failed", "error", err)
		return &types.AnswerResult{
			Answer: queryFailedAnswer,
			Error:  err.Error(),
		}
	}

	if len(matches) == 0 {
		return &types.AnswerResult{
			Answer:       noInformationAnswer,
			SourceChunks: []types.ChunkMatch{},
		}
	}

	prompt := fmt.Sprintf(answerPromptTemplate, buildContext(matches), query)

	answer, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		s.logger.Error("completion failed, falling back to top chunk", "error", err)
		return &types.AnswerResult{
			Answer:       fmt.Sprintf(fallbackAnswer, matches[0].Text),
			SourceChunks: matches,
			Error:        err.Error(),
		}
	}

	return &types.AnswerResult{
		Answer:       answer,
		SourceChunks: matches,
	}
}

// Documents lists every stored document in upload order.
func (s *DocumentService) Documents(ctx context.Context) ([]types.Document, error) {
	return s.store.ListDocuments(ctx)
}

// ClearAll removes every document and, via cascade, every chunk.
func (s *DocumentService) ClearAll(ctx context.Context) (*types.ClearAllResult, error) {
	deleted, err := s.store.DeleteAllDocuments(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("cleared all documents", "deleted", deleted)
	return &types.ClearAllResult{
		Message: fmt.Sprintf("Successfully deleted all %d documents", deleted),
		Deleted: deleted,
	}, nil
}

func buildContext(matches []types.ChunkMatch) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = fmt.Sprintf("Document %s, Chunk %d: %s", m.DocumentID, m.ChunkIndex, m.Text)
	}
	return strings.Join(parts, "\n\n")
}
