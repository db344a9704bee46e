package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"docqa/model"
	"docqa/textproc"
	"docqa/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	docs       map[uuid.UUID]*types.Document
	chunks     []types.TextChunk
	matches    []types.ChunkMatch
	similarErr error
	insertErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[uuid.UUID]*types.Document)}
}

func (f *fakeStore) SaveDocument(_ context.Context, doc *types.Document) error {
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeStore) SetExtractedText(_ context.Context, docID uuid.UUID, text string) error {
	doc, ok := f.docs[docID]
	if !ok {
		return errors.New("document not found")
	}
	doc.ExtractedText = text
	return nil
}

func (f *fakeStore) ListDocuments(context.Context) ([]types.Document, error) {
	out := make([]types.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeStore) InsertChunk(_ context.Context, chunk *types.TextChunk) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.chunks = append(f.chunks, *chunk)
	return nil
}

func (f *fakeStore) Similar(_ context.Context, _ []float32, limit int) ([]types.ChunkMatch, error) {
	if f.similarErr != nil {
		return nil, f.similarErr
	}
	if limit > len(f.matches) {
		limit = len(f.matches)
	}
	return f.matches[:limit], nil
}

func (f *fakeStore) DeleteAllDocuments(_ context.Context) (int64, error) {
	n := int64(len(f.docs))
	f.docs = make(map[uuid.UUID]*types.Document)
	f.chunks = nil
	return n, nil
}

type fakeEmbedder struct {
	batchFn func(texts []string) ([][]float32, error)
	oneVec  []float32
	oneErr  error
}

func (f *fakeEmbedder) EmbedOne(_ context.Context, _ string) ([]float32, error) {
	return f.oneVec, f.oneErr
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return f.batchFn(texts)
}

type fakeCompleter struct {
	answer string
	err    error
}

func (f *fakeCompleter) Complete(_ context.Context, _ string) (string, error) {
	return f.answer, f.err
}

func uniformBatch(dim int) func(texts []string) ([][]float32, error) {
	return func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			vec := make([]float32, dim)
			vec[0] = float32(i)
			out[i] = vec
		}
		return out, nil
	}
}

func newTestService(st *fakeStore, emb *fakeEmbedder, llm *fakeCompleter) *DocumentService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, emb, llm, logger)
}

func testDoc() *types.Document {
	return &types.Document{ID: uuid.New(), FileName: "doc.pdf"}
}

func longText() string {
	paras := make([]string, 6)
	for i := range paras {
		paras[i] = strings.TrimSpace(strings.Repeat(fmt.Sprintf("section %d text body ", i), 30))
	}
	return strings.Join(paras, "\n\n")
}

func TestStoreChunksCountMismatchAbortsAll(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{batchFn: func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 2}, {3, 4}}, nil // two vectors for three chunks
	}}
	svc := newTestService(st, emb, &fakeCompleter{})

	ids, err := svc.StoreChunks(context.Background(), testDoc(), []string{"one", "two", "three"})

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrCountMismatch)
	assert.Empty(t, ids)
	assert.Empty(t, st.chunks, "no rows may be written on a count mismatch")
}

func TestStoreChunksSkipsInvalidVector(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{batchFn: func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 2, 3}, {}, {4, 5, 6}}, nil
	}}
	svc := newTestService(st, emb, &fakeCompleter{})

	ids, err := svc.StoreChunks(context.Background(), testDoc(), []string{"one", "two", "three"})

	require.NoError(t, err)
	assert.Len(t, ids, 2)
	require.Len(t, st.chunks, 2)
	// Positional indexes survive the skip, leaving a gap.
	assert.Equal(t, 0, st.chunks[0].ChunkIndex)
	assert.Equal(t, 2, st.chunks[1].ChunkIndex)
}

func TestStoreChunksSkipsWrongDimension(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{batchFn: func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 2, 3}, {9}, {4, 5, 6}}, nil
	}}
	svc := newTestService(st, emb, &fakeCompleter{})

	ids, err := svc.StoreChunks(context.Background(), testDoc(), []string{"one", "two", "three"})

	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestStoreChunksEmptyInput(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, &fakeEmbedder{}, &fakeCompleter{})

	ids, err := svc.StoreChunks(context.Background(), testDoc(), nil)

	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIngestPDFHappyPath(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{batchFn: uniformBatch(8), oneVec: make([]float32, 8)}
	svc := newTestService(st, emb, &fakeCompleter{})
	svc.Extract = func(string) (string, error) { return longText(), nil }

	result, err := svc.IngestPDF(context.Background(), "/tmp/doc.pdf", "doc.pdf")

	require.NoError(t, err)
	assert.Equal(t, types.StatusChunkedAndEmbedded, result.Status)
	assert.NotEmpty(t, result.ChunkIDs)
	assert.Empty(t, result.Warning)
	assert.Len(t, st.chunks, len(result.ChunkIDs))

	saved, ok := st.docs[result.Document.ID]
	require.True(t, ok)
	assert.Equal(t, longText(), saved.ExtractedText)
}

func TestIngestPDFExtractionFailureKeepsDocument(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, &fakeEmbedder{}, &fakeCompleter{})
	svc.Extract = func(string) (string, error) {
		return "", fmt.Errorf("%w: broken xref", textproc.ErrExtraction)
	}

	result, err := svc.IngestPDF(context.Background(), "/tmp/doc.pdf", "doc.pdf")

	require.Error(t, err)
	assert.ErrorIs(t, err, textproc.ErrExtraction)
	assert.Equal(t, types.StatusUploadOnly, result.Status)
	assert.Len(t, st.docs, 1, "the document row must survive an extraction failure")
	assert.Empty(t, st.chunks)
}

func TestIngestPDFShortTextWarnsWithoutFailing(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, &fakeEmbedder{}, &fakeCompleter{})
	svc.Extract = func(string) (string, error) { return "Test document content.", nil }

	result, err := svc.IngestPDF(context.Background(), "/tmp/doc.pdf", "doc.pdf")

	require.NoError(t, err)
	assert.Equal(t, types.StatusTextExtracted, result.Status)
	assert.NotEmpty(t, result.Warning)
	assert.Empty(t, result.ChunkIDs)
	assert.Empty(t, st.chunks)
	assert.Len(t, st.docs, 1)
}

func TestIngestPDFEmbeddingMismatchWarnsWithoutFailing(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{batchFn: func(texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil // always the wrong cardinality
	}}
	svc := newTestService(st, emb, &fakeCompleter{})
	svc.Extract = func(string) (string, error) { return longText(), nil }

	result, err := svc.IngestPDF(context.Background(), "/tmp/doc.pdf", "doc.pdf")

	require.NoError(t, err)
	assert.Equal(t, types.StatusTextExtracted, result.Status)
	assert.NotEmpty(t, result.Warning)
	assert.Empty(t, st.chunks)

	saved := st.docs[result.Document.ID]
	assert.NotEmpty(t, saved.ExtractedText, "extracted text is not rolled back")
}

func TestSearchRespectsLimit(t *testing.T) {
	st := newFakeStore()
	for i := 0; i < 10; i++ {
		st.matches = append(st.matches, types.ChunkMatch{
			ChunkID:    uuid.New(),
			Text:       fmt.Sprintf("match %d", i),
			Similarity: 1 - float64(i)*0.05,
		})
	}
	emb := &fakeEmbedder{oneVec: []float32{1, 2, 3}}
	svc := newTestService(st, emb, &fakeCompleter{})

	matches, err := svc.Search(context.Background(), "query", 5)

	require.NoError(t, err)
	require.Len(t, matches, 5)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{oneVec: []float32{1}}
	svc := newTestService(st, emb, &fakeCompleter{})

	matches, err := svc.Search(context.Background(), "query", 5)

	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchEmbedFailure(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{oneErr: errors.New("backend down")}
	svc := newTestService(st, emb, &fakeCompleter{})

	_, err := svc.Search(context.Background(), "query", 5)

	require.Error(t, err)
}

func TestAnswerNoMatches(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEmbedder{oneVec: []float32{1}}, &fakeCompleter{})

	result := svc.Answer(context.Background(), "anything?")

	assert.Equal(t, "I couldn't find any relevant information to answer your query.", result.Answer)
	assert.NotNil(t, result.SourceChunks)
	assert.Empty(t, result.SourceChunks)
	assert.Empty(t, result.Error)
}

func TestAnswerSuccess(t *testing.T) {
	st := newFakeStore()
	st.matches = []types.ChunkMatch{
		{ChunkID: uuid.New(), Text: "relevant text", Similarity: 0.9},
	}
	svc := newTestService(st, &fakeEmbedder{oneVec: []float32{1}}, &fakeCompleter{answer: "42"})

	result := svc.Answer(context.Background(), "what is the answer?")

	assert.Equal(t, "42", result.Answer)
	assert.Len(t, result.SourceChunks, 1)
	assert.Empty(t, result.Error)
}

func TestAnswerCompletionFailureFallsBack(t *testing.T) {
	st := newFakeStore()
	st.matches = []types.ChunkMatch{
		{ChunkID: uuid.New(), Text: "the best chunk", Similarity: 0.95},
		{ChunkID: uuid.New(), Text: "another chunk", Similarity: 0.80},
	}
	llm := &fakeCompleter{err: errors.New("rate limited")}
	svc := newTestService(st, &fakeEmbedder{oneVec: []float32{1}}, llm)

	result := svc.Answer(context.Background(), "question?")

	assert.Equal(t, "Based on the documents, I found this information: the best chunk", result.Answer)
	assert.Len(t, result.SourceChunks, 2)
	assert.Contains(t, result.Error, "rate limited")
}

func TestAnswerRetrievalFailure(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{oneErr: errors.New("no embedder")}
	svc := newTestService(st, emb, &fakeCompleter{})

	result := svc.Answer(context.Background(), "question?")

	assert.Equal(t, "An error occurred while processing your query.", result.Answer)
	assert.NotEmpty(t, result.Error)
}

func TestClearAll(t *testing.T) {
	st := newFakeStore()
	for i := 0; i < 3; i++ {
		require.NoError(t, st.SaveDocument(context.Background(), testDoc()))
	}
	svc := newTestService(st, &fakeEmbedder{}, &fakeCompleter{})

	result, err := svc.ClearAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Deleted)
	assert.Empty(t, st.docs)
}
