package counsel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/counsel/core/assembler"
	"github.com/siherrmann/counsel/core/generation"
	"github.com/siherrmann/counsel/core/indexer"
	"github.com/siherrmann/counsel/core/pipeline"
	"github.com/siherrmann/counsel/core/retrieval"
	"github.com/siherrmann/counsel/database"
	"github.com/siherrmann/counsel/helper"
	"github.com/siherrmann/counsel/model"
	loadSql "github.com/siherrmann/counsel/sql"
)

// Counsel provides a unified interface to the legal document engine:
// the database handlers, the background indexer, hybrid retrieval,
// context assembly and grounded generation.
type Counsel struct {
	DB            *helper.Database
	Categories    *database.CategoriesDBHandler
	Documents     *database.DocumentsDBHandler
	Chunks        *database.ChunksDBHandler
	Search        *database.SearchDBHandler
	Conversations *database.ConversationsDBHandler
	Relations     *database.RelationsDBHandler
	Pipeline      *pipeline.Pipeline       // Optional chunking and embedding pipeline
	Engine        *retrieval.Engine        // Retrieval engine for hybrid search
	Assembler     *assembler.Assembler     // Context assembly with relation expansion
	Indexer       *indexer.Indexer         // Background indexer, created with the pipeline
	Orchestrator  *generation.Orchestrator // Optional generation orchestrator
	// Configuration and logging
	config model.EngineConfig
	log    *slog.Logger
}

// NewCounsel creates a new Counsel instance with all handlers
// initialized. A nil engine configuration uses the defaults, a partial
// one is filled up with them. The pipeline and the generation provider
// are wired separately, see SetPipeline and SetProvider.
func NewCounsel(dbConfig *helper.DatabaseConfiguration, engineConfig *model.EngineConfig) (*Counsel, error) {
	config := model.DefaultEngineConfig()
	if engineConfig != nil {
		config = *engineConfig
	}
	config.ApplyDefaults()
	err := config.Validate()
	if err != nil {
		return nil, helper.NewError("validate configuration", err)
	}

	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("counsel", dbConfig, logger)
	err = loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (categories first, they
	// carry the document tree, then documents, then the dependent tables)
	// force=false to not reload if functions already exist
	categories, err := database.NewCategoriesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create categories handler", err)
	}

	documents, err := database.NewDocumentsDBHandler(db, config.SearchLanguage, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := database.NewChunksDBHandler(db, config.EmbeddingDim, config.SearchLanguage, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	search, err := database.NewSearchDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create search handler", err)
	}

	conversations, err := database.NewConversationsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create conversations handler", err)
	}

	relations, err := database.NewRelationsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create relations handler", err)
	}

	// Create the retrieval engine and the context assembler on top of
	// the database handlers
	engine := retrieval.NewEngine(chunks, chunks)
	contextAssembler := assembler.NewAssembler(engine, relations)

	return &Counsel{
		DB:            db,
		Categories:    categories,
		Documents:     documents,
		Chunks:        chunks,
		Search:        search,
		Conversations: conversations,
		Relations:     relations,
		Engine:        engine,
		Assembler:     contextAssembler,
		config:        config,
		log:           logger,
	}, nil
}

// Config returns the effective engine configuration.
func (c *Counsel) Config() model.EngineConfig {
	return c.config
}

// Close stops the background indexer and closes the database connection
func (c *Counsel) Close() error {
	if c.Indexer != nil {
		c.Indexer.Stop()
	}
	if c.DB != nil && c.DB.Instance != nil {
		return c.DB.Instance.Close()
	}
	return nil
}

// SetPipeline sets the chunking and embedding pipeline and starts the
// background indexer on top of it. A previously running indexer is
// stopped first; a nil pipeline detaches indexing entirely.
func (c *Counsel) SetPipeline(pipe *pipeline.Pipeline) error {
	if c.Indexer != nil {
		c.Indexer.Stop()
		c.Indexer = nil
	}

	c.Pipeline = pipe
	if pipe == nil {
		return nil
	}

	backgroundIndexer, err := indexer.NewIndexer(pipe, c.Documents, c.Chunks, c.Search, c.Conversations, c.Relations, c.config.Indexer, c.log)
	if err != nil {
		return helper.NewError("create indexer", err)
	}

	c.Indexer = backgroundIndexer
	c.Indexer.Start()
	return nil
}

// UseDefaultPipeline sets up the default chunking and embedding pipeline:
// the deterministic size chunker with the configured target size and
// overlap, the local all-MiniLM-L6-v2 embedder (384 dimensions) and the
// keyword and legal reference extractors.
func (c *Counsel) UseDefaultPipeline() error {
	if c.config.EmbeddingDim != pipeline.DefaultEmbedderDim {
		return helper.NewError("create default pipeline", fmt.Errorf("configured embedding dimension %d does not match the default embedder dimension %d", c.config.EmbeddingDim, pipeline.DefaultEmbedderDim))
	}

	chunker := pipeline.SizeChunker(c.config.Chunking)
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	pipe := pipeline.NewPipeline(chunker, embedder, pipeline.DefaultEmbedderDim)
	pipe.SetKeywordExtractor(pipeline.KeywordExtractor())
	pipe.SetReferenceExtractor(pipeline.ReferenceExtractor())
	return c.SetPipeline(pipe)
}

// SetProvider wires the generation service used by Ask.
func (c *Counsel) SetProvider(provider generation.Provider) error {
	orchestrator, err := generation.NewOrchestrator(provider, c.config.Generation)
	if err != nil {
		return helper.NewError("create orchestrator", err)
	}
	c.Orchestrator = orchestrator
	return nil
}

// UseOpenAIProvider wires an OpenAI compatible chat service as the
// generation provider.
func (c *Counsel) UseOpenAIProvider(config generation.Config) error {
	client, err := generation.NewOpenAIClient(config)
	if err != nil {
		return helper.NewError("create generation client", err)
	}
	return c.SetProvider(client)
}

// UpsertDocument inserts doc when its RID is unset, otherwise updates it
// guarded by the version precondition carried in doc.Version. A stale
// precondition fails with model.ErrVersionConflict and no write; the
// losing caller re-reads and retries. Content changes leave the document
// stale and wake the background indexer. Returns the document RID and
// the stored version.
func (c *Counsel) UpsertDocument(doc *model.Document, categoryRID uuid.UUID) (uuid.UUID, int, error) {
	if doc == nil {
		return uuid.Nil, 0, helper.NewError("upsert document", fmt.Errorf("document is nil"))
	}
	if strings.TrimSpace(doc.Title) == "" || strings.TrimSpace(doc.Content) == "" {
		return uuid.Nil, 0, helper.NewError("upsert document", fmt.Errorf("document title and content are required"))
	}
	if !doc.Type.Valid() {
		return uuid.Nil, 0, helper.NewError("upsert document", fmt.Errorf("%w: %q", model.ErrInvalidDocumentType, doc.Type))
	}

	if doc.RID == uuid.Nil {
		if categoryRID == uuid.Nil {
			return uuid.Nil, 0, helper.NewError("upsert document", fmt.Errorf("category is required for a new document"))
		}
		err := c.Documents.InsertDocument(doc, categoryRID)
		if err != nil {
			return uuid.Nil, 0, helper.NewError("insert document", err)
		}
		c.log.Info("Inserted document", slog.String("document_id", doc.RID.String()), slog.String("title", doc.Title))
	} else {
		err := c.Documents.UpdateDocument(doc, doc.Version)
		if err != nil {
			return uuid.Nil, 0, helper.NewError("update document", err)
		}
		c.log.Info("Updated document", slog.String("document_id", doc.RID.String()), slog.Int("version", doc.Version))
	}

	if c.Indexer != nil {
		c.Indexer.Wake()
	}

	return doc.RID, doc.Version, nil
}

// IndexDocument runs one full synchronous indexing pass over a single
// document: chunking, embedding, the atomic chunk swap, keyword
// extraction and reference detection. The background indexer covers the
// same work asynchronously, this is for backfills, tests and callers
// that need the document ready on return.
func (c *Counsel) IndexDocument(ctx context.Context, rid uuid.UUID) error {
	if c.Indexer == nil {
		return helper.NewError("index document", model.ErrPipelineNotSet)
	}
	return c.Indexer.IndexDocument(ctx, rid)
}

// SubmitFeedback records feedback on an answer or a document. Accepted
// feedback changes relevance scores asynchronously when the aggregator
// folds it into the search metadata.
func (c *Counsel) SubmitFeedback(feedback *model.Feedback) error {
	if feedback == nil {
		return helper.NewError("submit feedback", fmt.Errorf("feedback is nil"))
	}
	err := feedback.Validate()
	if err != nil {
		return helper.NewError("validate feedback", err)
	}

	err = c.Conversations.InsertFeedback(feedback)
	if err != nil {
		return helper.NewError("insert feedback", err)
	}
	return nil
}

// RelatedDocuments walks the relation graph around a document in both
// directions and returns the reached documents with titles, hop
// distances and the connecting path, nearest first.
func (c *Counsel) RelatedDocuments(rid uuid.UUID, maxHops int) ([]*database.RelatedDocument, error) {
	return c.Relations.TraverseRelations(rid, maxHops, nil, true)
}

// ArchiveConversation closes a conversation for good. Archived
// conversations stay readable, appends are rejected.
func (c *Counsel) ArchiveConversation(rid uuid.UUID) (*model.Conversation, error) {
	return c.Conversations.ArchiveConversation(rid)
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
func (c *Counsel) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return c.Chunks.ChangeIndexType(ctx, indexType, params)
}
