package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Progress milestones inside one ingestion attempt.
const (
	progressChunked  = 60
	progressEmbedded = 80

	// DefaultUpsertBatchSize is how many chunks go to the index per call.
	DefaultUpsertBatchSize = 50
)

// IngestOrchestrator turns a raw uploaded file into indexed vector chunks:
// read -> extract -> chunk -> embed -> upsert, reporting fractional progress
// along the way. It holds no per-job state and is safe for concurrent use.
type IngestOrchestrator struct {
	files      driven.FileStore
	extractors driven.ExtractorRegistry
	chunker    *Chunker
	embedder   driven.EmbeddingService
	index      driven.VectorIndex
	batchSize  int
	logger     *slog.Logger
}

// IngestConfig holds dependencies for IngestOrchestrator.
type IngestConfig struct {
	Files           driven.FileStore
	Extractors      driven.ExtractorRegistry
	Chunker         *Chunker
	Embedder        driven.EmbeddingService
	Index           driven.VectorIndex
	UpsertBatchSize int
	Logger          *slog.Logger
}

// NewIngestOrchestrator creates the ingestion pipeline.
func NewIngestOrchestrator(cfg IngestConfig) *IngestOrchestrator {
	chunker := cfg.Chunker
	if chunker == nil {
		chunker = DefaultChunker()
	}
	batchSize := cfg.UpsertBatchSize
	if batchSize <= 0 {
		batchSize = DefaultUpsertBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &IngestOrchestrator{
		files:      cfg.Files,
		extractors: cfg.Extractors,
		chunker:    chunker,
		embedder:   cfg.Embedder,
		index:      cfg.Index,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// ProcessJob runs one ingestion attempt. report receives progress values in
// [0,100], monotonically non-decreasing within this attempt.
//
// Permanent content errors (unsupported MIME type, unparseable file) come
// back wrapped as domain.PermanentError so the caller can skip the retry
// budget; everything else is treated as transient.
func (o *IngestOrchestrator) ProcessJob(ctx context.Context, job *domain.IngestionJob, report func(int)) error {
	if report == nil {
		report = func(int) {}
	}

	logger := o.logger.With("job_id", job.ID, "filename", job.Filename)

	data, err := o.files.Read(ctx, job.FilePath)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}

	extractor := o.extractors.Get(job.MimeType)
	if extractor == nil {
		return domain.Permanentf("%w: %s", domain.ErrUnsupportedFileType, job.MimeType)
	}

	text, err := extractor.Extract(data)
	if err != nil {
		// Retrying cannot fix malformed content.
		return domain.Permanentf("extract text: %w", err)
	}

	chunks := o.chunker.Split(text)
	report(progressChunked)

	if len(chunks) == 0 {
		logger.Warn("document produced no indexable chunks")
		report(100)
		return nil
	}

	embeddings, err := o.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(embeddings))
	}
	report(progressEmbedded)

	// Upsert in fixed-size batches, advancing progress linearly 80 -> 100.
	for start := 0; start < len(chunks); start += o.batchSize {
		end := start + o.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		ids := make([]string, 0, end-start)
		metadatas := make([]domain.ChunkMetadata, 0, end-start)
		for range chunks[start:end] {
			ids = append(ids, domain.NewID())
			metadatas = append(metadatas, domain.ChunkMetadata{
				Source:     job.Filename,
				DocumentID: job.DocumentID,
			})
		}

		if err := o.index.Upsert(ctx, ids, embeddings[start:end], chunks[start:end], metadatas); err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}

		report(progressEmbedded + (100-progressEmbedded)*end/len(chunks))
	}

	logger.Info("document ingested", "chunks", len(chunks))
	return nil
}
