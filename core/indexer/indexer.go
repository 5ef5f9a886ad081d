package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/counsel/core/pipeline"
	"github.com/siherrmann/counsel/model"
	"golang.org/x/time/rate"
)

// Tunables of the background maintenance passes.
const (
	// documentKeywords is the number of keywords extracted per document.
	documentKeywords = 12
	// referenceMatchLimit bounds the documents one reference resolves to.
	referenceMatchLimit = 3
	// referenceStrength is the strength of proposed reference relations.
	referenceStrength = 0.5
	// feedbackBatch is the number of feedback rows per aggregator pass.
	feedbackBatch = 100
	// pendingLease keeps other claimers off claimed pending chunks. It
	// outlasts a full batch at the default embedding rate.
	pendingLease = 5 * time.Minute
)

// DocumentQueue is the staleness queue side of the document store,
// satisfied by database.DocumentsDBHandler.
type DocumentQueue interface {
	ClaimStaleDocuments(limit int) ([]*model.Document, error)
	ClaimDocument(rid uuid.UUID) (*model.Document, error)
	FinishDocumentIndex(rid uuid.UUID, state model.IndexState) (*model.Document, error)
	SelectDocumentsByReference(key string, limit int) ([]*model.Document, error)
}

// ChunkStore persists chunk sets and their embedding retry state,
// satisfied by database.ChunksDBHandler.
type ChunkStore interface {
	ReplaceDocumentChunks(doc *model.Document, chunks []*model.Chunk, state model.IndexState) error
	ClaimPendingChunks(limit int, lease time.Duration) ([]*model.Chunk, error)
	UpdateChunkEmbedding(chunk *model.Chunk) error
	FailChunkEmbedding(rid uuid.UUID, cause string, backoff time.Duration, maxAttempts int) (*model.Chunk, error)
	PromoteReadyDocuments() ([]uuid.UUID, error)
}

// MetadataStore maintains the per document search metadata, satisfied
// by database.SearchDBHandler.
type MetadataStore interface {
	UpsertSearchKeywords(documentRID uuid.UUID, keywords []string) (*model.SearchMetadata, error)
	RecordDocumentRelevance(documentRID uuid.UUID, delta float64) (*model.SearchMetadata, error)
	RefreshPopularityScores() (int, error)
}

// FeedbackQueue supplies unprocessed feedback to the aggregator,
// satisfied by database.ConversationsDBHandler.
type FeedbackQueue interface {
	ClaimUnprocessedFeedback(limit int) ([]*model.ClaimedFeedback, error)
}

// RelationSink receives proposed reference relations, satisfied by
// database.RelationsDBHandler.
type RelationSink interface {
	InsertRelation(relation *model.Relation) error
}

// Indexer runs the background maintenance of the corpus: it consumes
// the staleness queue, chunks and embeds documents in rate limited
// batches, retries failed embeddings with backoff and folds feedback
// into the search metadata. Retrieval never waits on any of this; the
// loops communicate with the query path only through the store.
type Indexer struct {
	pipeline  *pipeline.Pipeline
	documents DocumentQueue
	chunks    ChunkStore
	metadata  MetadataStore
	feedback  FeedbackQueue
	relations RelationSink
	config    model.IndexerConfig
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wake    chan struct{}
	wg      sync.WaitGroup
}

// NewIndexer creates a new background indexer. metadata, feedback and
// relations may be nil, which disables keyword extraction, feedback
// aggregation and reference detection respectively.
func NewIndexer(pipe *pipeline.Pipeline, documents DocumentQueue, chunks ChunkStore, metadata MetadataStore, feedback FeedbackQueue, relations RelationSink, config model.IndexerConfig, logger *slog.Logger) (*Indexer, error) {
	if pipe == nil {
		return nil, model.ErrPipelineNotSet
	}
	if documents == nil {
		return nil, fmt.Errorf("document queue is nil")
	}
	if chunks == nil {
		return nil, fmt.Errorf("chunk store is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Limit(config.RequestsPerSecond)
	if config.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}

	return &Indexer{
		pipeline:  pipe,
		documents: documents,
		chunks:    chunks,
		metadata:  metadata,
		feedback:  feedback,
		relations: relations,
		config:    config,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
		wake:      make(chan struct{}, 1),
	}, nil
}

// Start launches the background loops: the configured number of index
// workers, the chunk retry loop and, when a feedback queue is wired,
// the feedback aggregator. Start is idempotent.
func (i *Indexer) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return
	}
	i.running = true

	ctx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel

	workers := i.config.Workers
	if workers < 1 {
		workers = 1
	}
	for worker := 0; worker < workers; worker++ {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			i.indexLoop(ctx)
		}()
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.retryLoop(ctx)
	}()

	if i.feedback != nil && i.metadata != nil {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			i.aggregateLoop(ctx)
		}()
	}

	i.logger.Info("Started background indexer", slog.Int("workers", workers))
}

// Stop cancels the background loops and waits for them to finish. A
// document pass in flight is completed before the worker exits.
func (i *Indexer) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	i.running = false
	cancel := i.cancel
	i.mu.Unlock()

	cancel()
	i.wg.Wait()

	i.logger.Info("Stopped background indexer")
}

// Wake nudges the index workers to scan the staleness queue now instead
// of waiting for the next poll tick. Signals arriving while a scan is
// already pending are dropped.
func (i *Indexer) Wake() {
	select {
	case i.wake <- struct{}{}:
	default:
	}
}

// indexLoop drains the staleness queue, then sleeps until the next poll
// tick or a wake signal.
func (i *Indexer) indexLoop(ctx context.Context) {
	ticker := time.NewTicker(i.pollInterval())
	defer ticker.Stop()

	for {
		i.drainStaleDocuments(ctx)

		select {
		case <-ctx.Done():
			return
		case <-i.wake:
		case <-ticker.C:
		}
	}
}

// retryLoop periodically re-embeds due pending chunks.
func (i *Indexer) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(i.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.retryPendingChunks(ctx)
		}
	}
}

// aggregateLoop periodically folds feedback into the search metadata.
func (i *Indexer) aggregateLoop(ctx context.Context) {
	ticker := time.NewTicker(i.aggregateInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.aggregateFeedback()
		}
	}
}

// pollInterval guards the configured interval against zero values that
// would panic the tickers.
func (i *Indexer) pollInterval() time.Duration {
	interval := i.config.PollInterval.Std()
	if interval <= 0 {
		return time.Second
	}
	return interval
}

func (i *Indexer) aggregateInterval() time.Duration {
	interval := i.config.AggregateInterval.Std()
	if interval <= 0 {
		return 30 * time.Second
	}
	return interval
}
