package model

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for human-readable yaml ("2s", "500ms").
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Filters restrict retrieval to an eligible document subset. Filters are
// applied as a pre-filter inside the search queries, so result counts
// reflect the eligible set.
type Filters struct {
	Types        []DocumentType `json:"types,omitempty"`
	CategoryPath string         `json:"category_path,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	DocumentRIDs []uuid.UUID    `json:"document_rids,omitempty"`
}

// Empty reports whether no filter dimension is set.
func (f Filters) Empty() bool {
	return len(f.Types) == 0 && f.CategoryPath == "" && len(f.Tags) == 0 && len(f.DocumentRIDs) == 0
}

// RetrievalConfig represents configuration for a hybrid retrieval query.
type RetrievalConfig struct {
	// Result set parameters
	TopK      int     `json:"top_k" yaml:"top_k"`
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// Fusion weights for the linear score combination
	VectorWeight  float64 `json:"vector_weight" yaml:"vector_weight"`
	LexicalWeight float64 `json:"lexical_weight" yaml:"lexical_weight"`

	// Candidate pool size fetched from each access path before fusion
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// Chunks kept per document after dedup (1 = best chunk only)
	MaxChunksPerDocument int `json:"max_chunks_per_document" yaml:"max_chunks_per_document"`

	// Eligibility pre-filters, set per query
	Filters Filters `json:"filters,omitempty" yaml:"-"`
}

// DefaultRetrievalConfig returns a sensible default configuration
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                 5,
		Threshold:            0.7,
		VectorWeight:         0.6,
		LexicalWeight:        0.4,
		PoolSize:             50,
		MaxChunksPerDocument: 1,
	}
}

// ChunkingConfig controls the deterministic document splitter.
type ChunkingConfig struct {
	// TargetSize is the chunk length aimed for, in bytes
	TargetSize int `json:"target_size" yaml:"target_size"`
	// OverlapFraction of TargetSize shared with the preceding chunk
	OverlapFraction float64 `json:"overlap_fraction" yaml:"overlap_fraction"`
	// MinSize below which a trailing chunk is merged into its predecessor
	MinSize int `json:"min_size" yaml:"min_size"`
}

// DefaultChunkingConfig returns the default splitter configuration
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		TargetSize:      1200,
		OverlapFraction: 0.15,
		MinSize:         200,
	}
}

// IndexerConfig controls the background chunk and embedding indexer.
type IndexerConfig struct {
	Workers           int      `json:"workers" yaml:"workers"`
	PollInterval      Duration `json:"poll_interval" yaml:"poll_interval"`
	BatchSize         int      `json:"batch_size" yaml:"batch_size"`
	RequestsPerSecond float64  `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int      `json:"burst" yaml:"burst"`
	MaxAttempts       int      `json:"max_attempts" yaml:"max_attempts"`
	RetryBackoff      Duration `json:"retry_backoff" yaml:"retry_backoff"`
	AggregateInterval Duration `json:"aggregate_interval" yaml:"aggregate_interval"`
	DetectReferences  bool     `json:"detect_references" yaml:"detect_references"`
}

// DefaultIndexerConfig returns the default indexer configuration
func DefaultIndexerConfig() IndexerConfig {
	return IndexerConfig{
		Workers:           2,
		PollInterval:      Duration(2 * time.Second),
		BatchSize:         32,
		RequestsPerSecond: 2,
		Burst:             2,
		MaxAttempts:       5,
		RetryBackoff:      Duration(2 * time.Second),
		AggregateInterval: Duration(30 * time.Second),
		DetectReferences:  false,
	}
}

// GenerationConfig controls the grounded-answer orchestration.
type GenerationConfig struct {
	Model            string   `json:"model" yaml:"model"`
	Timeout          Duration `json:"timeout" yaml:"timeout"`
	MaxHistoryTurns  int      `json:"max_history_turns" yaml:"max_history_turns"`
	ContextBudget    int      `json:"context_budget" yaml:"context_budget"`
	ExpansionDepth   int      `json:"expansion_depth" yaml:"expansion_depth"`
	ExpansionBreadth int      `json:"expansion_breadth" yaml:"expansion_breadth"`
	MaxTokens        int      `json:"max_tokens" yaml:"max_tokens"`
	Temperature      float64  `json:"temperature" yaml:"temperature"`
}

// DefaultGenerationConfig returns the default generation configuration
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Model:            "gpt-4o-mini",
		Timeout:          Duration(30 * time.Second),
		MaxHistoryTurns:  6,
		ContextBudget:    6000,
		ExpansionDepth:   1,
		ExpansionBreadth: 2,
		MaxTokens:        1024,
		Temperature:      0.2,
	}
}

// EngineConfig bundles all engine parameters. Zero values are replaced
// with defaults by ApplyDefaults, so partial yaml files are fine.
type EngineConfig struct {
	// EmbeddingDim must match the embedding service output
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
	// SearchLanguage is the PostgreSQL text search configuration
	// ("english", "french", "simple", ...)
	SearchLanguage string           `json:"search_language" yaml:"search_language"`
	Retrieval      RetrievalConfig  `json:"retrieval" yaml:"retrieval"`
	Chunking       ChunkingConfig   `json:"chunking" yaml:"chunking"`
	Indexer        IndexerConfig    `json:"indexer" yaml:"indexer"`
	Generation     GenerationConfig `json:"generation" yaml:"generation"`
}

// DefaultEngineConfig returns the full default configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		EmbeddingDim:   384,
		SearchLanguage: "english",
		Retrieval:      DefaultRetrievalConfig(),
		Chunking:       DefaultChunkingConfig(),
		Indexer:        DefaultIndexerConfig(),
		Generation:     DefaultGenerationConfig(),
	}
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *EngineConfig) ApplyDefaults() {
	def := DefaultEngineConfig()
	if c.EmbeddingDim == 0 {
		c.EmbeddingDim = def.EmbeddingDim
	}
	if c.SearchLanguage == "" {
		c.SearchLanguage = def.SearchLanguage
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = def.Retrieval.TopK
	}
	if c.Retrieval.Threshold == 0 {
		c.Retrieval.Threshold = def.Retrieval.Threshold
	}
	if c.Retrieval.VectorWeight == 0 && c.Retrieval.LexicalWeight == 0 {
		c.Retrieval.VectorWeight = def.Retrieval.VectorWeight
		c.Retrieval.LexicalWeight = def.Retrieval.LexicalWeight
	}
	if c.Retrieval.PoolSize == 0 {
		c.Retrieval.PoolSize = def.Retrieval.PoolSize
	}
	if c.Retrieval.MaxChunksPerDocument == 0 {
		c.Retrieval.MaxChunksPerDocument = def.Retrieval.MaxChunksPerDocument
	}
	if c.Chunking.TargetSize == 0 {
		c.Chunking.TargetSize = def.Chunking.TargetSize
	}
	if c.Chunking.OverlapFraction == 0 {
		c.Chunking.OverlapFraction = def.Chunking.OverlapFraction
	}
	if c.Chunking.MinSize == 0 {
		c.Chunking.MinSize = def.Chunking.MinSize
	}
	if c.Indexer.Workers == 0 {
		c.Indexer.Workers = def.Indexer.Workers
	}
	if c.Indexer.PollInterval == 0 {
		c.Indexer.PollInterval = def.Indexer.PollInterval
	}
	if c.Indexer.BatchSize == 0 {
		c.Indexer.BatchSize = def.Indexer.BatchSize
	}
	if c.Indexer.RequestsPerSecond == 0 {
		c.Indexer.RequestsPerSecond = def.Indexer.RequestsPerSecond
	}
	if c.Indexer.Burst == 0 {
		c.Indexer.Burst = def.Indexer.Burst
	}
	if c.Indexer.MaxAttempts == 0 {
		c.Indexer.MaxAttempts = def.Indexer.MaxAttempts
	}
	if c.Indexer.RetryBackoff == 0 {
		c.Indexer.RetryBackoff = def.Indexer.RetryBackoff
	}
	if c.Indexer.AggregateInterval == 0 {
		c.Indexer.AggregateInterval = def.Indexer.AggregateInterval
	}
	if c.Generation.Model == "" {
		c.Generation.Model = def.Generation.Model
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = def.Generation.Timeout
	}
	if c.Generation.MaxHistoryTurns == 0 {
		c.Generation.MaxHistoryTurns = def.Generation.MaxHistoryTurns
	}
	if c.Generation.ContextBudget == 0 {
		c.Generation.ContextBudget = def.Generation.ContextBudget
	}
	if c.Generation.ExpansionBreadth == 0 {
		c.Generation.ExpansionBreadth = def.Generation.ExpansionBreadth
	}
	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = def.Generation.MaxTokens
	}
}

// Validate checks cross-field consistency after defaults are applied.
func (c *EngineConfig) Validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive")
	}
	if c.Retrieval.VectorWeight < 0 || c.Retrieval.LexicalWeight < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	if c.Retrieval.VectorWeight+c.Retrieval.LexicalWeight == 0 {
		return fmt.Errorf("at least one fusion weight must be positive")
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("threshold %f outside [0,1]", c.Retrieval.Threshold)
	}
	if c.Chunking.OverlapFraction < 0 || c.Chunking.OverlapFraction >= 1 {
		return fmt.Errorf("overlap_fraction %f outside [0,1)", c.Chunking.OverlapFraction)
	}
	return nil
}

// LoadEngineConfig reads a yaml config file, applying defaults for
// missing fields.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config := &EngineConfig{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration to a yaml file.
func (c *EngineConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
