package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/siherrmann/counsel"
	"github.com/siherrmann/counsel/core/generation"
	"github.com/siherrmann/counsel/helper"
	"github.com/siherrmann/counsel/model"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const gutenbergURL = "https://www.gutenberg.org/cache/epub"

// corpusDocument describes one public domain legal text to ingest.
type corpusDocument struct {
	EbookID int
	Title   string
	Type    model.DocumentType
	Tags    []string
}

// Historical legal documents from Project Gutenberg. Uncomment more to
// grow the corpus; already ingested documents are skipped on re-runs.
var corpus = []corpusDocument{
	{EbookID: 5, Title: "The United States Constitution", Type: model.DocumentTypeStatute, Tags: []string{"constitution", "usa"}},
	{EbookID: 1, Title: "The Declaration of Independence", Type: model.DocumentTypeStatute, Tags: []string{"declaration", "usa"}},
	{EbookID: 10000, Title: "The Magna Carta", Type: model.DocumentTypeStatute, Tags: []string{"magna_carta", "england"}},
	// {EbookID: 1404, Title: "The Federalist Papers", Type: model.DocumentTypeArticle, Tags: []string{"federalist", "usa"}},
}

// startPostgresContainer starts a PostgreSQL container with a bind
// mounted data directory so the corpus persists between runs.
func startPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	// Create data directory if it doesn't exist
	dataDir := "./data"
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create data directory: %w", err)
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get absolute path for data directory: %w", err)
	}

	// Check if database already exists (data directory has PG_VERSION file)
	pgVersionFile := filepath.Join(absDataDir, "PG_VERSION")
	_, err = os.Stat(pgVersionFile)
	dbExists := err == nil

	// When database already exists, PostgreSQL doesn't re-initialize,
	// so the ready message only appears once instead of twice
	waitOccurrences := 2
	if dbExists {
		waitOccurrences = 1
		fmt.Printf("Using existing persistent database in: %s\n", absDataDir)
	} else {
		fmt.Printf("Creating new persistent database in: %s\n", absDataDir)
	}

	options := []testcontainers.ContainerCustomizer{
		postgres.WithDatabase("database"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(waitOccurrences),
		),
		testcontainers.WithHostConfigModifier(func(hc *container.HostConfig) {
			hc.Mounts = append(hc.Mounts, mount.Mount{
				Type:   mount.TypeBind,
				Source: absDataDir,
				Target: "/var/lib/postgresql/data",
			})
		}),
	}

	pgContainer, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg16",
		options...,
	)
	if err != nil {
		return nil, "", fmt.Errorf("error starting postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("error getting connection string: %w", err)
	}

	u, err := url.Parse(connStr)
	if err != nil {
		return nil, "", fmt.Errorf("error parsing connection string: %v", err)
	}

	return pgContainer.Terminate, u.Port(), nil
}

func downloadEbook(ebookID int) (string, error) {
	downloadURL := fmt.Sprintf("%s/%d/pg%d.txt", gutenbergURL, ebookID, ebookID)
	resp, err := http.Get(downloadURL)
	if err != nil {
		return "", fmt.Errorf("failed to download ebook %d: %w", ebookID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download ebook %d: status %d", ebookID, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read ebook %d: %w", ebookID, err)
	}

	return stripGutenbergBoilerplate(string(content)), nil
}

// stripGutenbergBoilerplate cuts the license header and footer wrapping
// every Project Gutenberg text.
func stripGutenbergBoilerplate(content string) string {
	if _, rest, found := strings.Cut(content, "*** START"); found {
		if _, rest, found = strings.Cut(rest, "***"); found {
			content = rest
		}
	}
	if body, _, found := strings.Cut(content, "*** END"); found {
		content = body
	}
	return strings.TrimSpace(content)
}

func main() {
	// Start a PostgreSQL container with persistence
	teardown, dbPort, err := startPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	c, err := counsel.NewCounsel(dbConfig, nil)
	if err != nil {
		log.Fatalf("Failed to create counsel: %v", err)
	}
	defer c.Close()

	// Set up the default pipeline (deterministic chunking + local embeddings)
	fmt.Println("Setting up the chunking and embedding pipeline...")
	if err := c.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	category, err := c.Categories.SelectCategoryBySlug("historical_law")
	if err != nil {
		category = &model.Category{Name: "Historical Law", Slug: "historical_law"}
		if err := c.Categories.InsertCategory(category, nil); err != nil {
			log.Fatalf("Failed to create category: %v", err)
		}
	}

	// Check existing documents to avoid re-processing
	existing, err := existingSources(c)
	if err != nil {
		log.Printf("Warning: could not check existing documents: %v", err)
		existing = make(map[string]bool)
	}
	if len(existing) > 0 {
		fmt.Printf("Found %d existing documents in database\n", len(existing))
	}

	ctx := context.Background()

	// Download and ingest each text
	processed := 0
	skipped := 0
	for i, entry := range corpus {
		source := fmt.Sprintf("gutenberg/%d", entry.EbookID)

		if existing[source] {
			fmt.Printf("Skipping %s (%d/%d) - already processed\n", entry.Title, i+1, len(corpus))
			skipped++
			continue
		}

		fmt.Printf("Downloading %s (%d/%d)...\n", entry.Title, i+1, len(corpus))
		content, err := downloadEbook(entry.EbookID)
		if err != nil {
			log.Printf("Warning: %v, skipping...", err)
			continue
		}

		doc := &model.Document{
			Title:   entry.Title,
			Content: content,
			Type:    entry.Type,
			Tags:    entry.Tags,
			Attributes: model.Attributes{
				model.AttrSource:    source,
				model.AttrAuthority: "Project Gutenberg",
			},
		}

		fmt.Printf("Processing %s...\n", entry.Title)
		rid, _, err := c.UpsertDocument(doc, category.RID)
		if err != nil {
			log.Printf("Warning: failed to upsert %s: %v, skipping...", entry.Title, err)
			continue
		}
		if err := c.IndexDocument(ctx, rid); err != nil {
			log.Printf("Warning: failed to index %s: %v, skipping...", entry.Title, err)
			continue
		}

		chunks, err := c.Chunks.SelectChunksByDocument(rid)
		if err != nil {
			log.Printf("Warning: failed to count chunks for %s: %v", entry.Title, err)
		}
		fmt.Printf("  Indexed %d chunks from %s\n", len(chunks), entry.Title)
		processed++
	}

	fmt.Printf("\nCorpus status:\n")
	fmt.Printf("  - Processed: %d documents\n", processed)
	fmt.Printf("  - Skipped (already in DB): %d documents\n", skipped)
	fmt.Printf("  - Total: %d documents\n\n", len(corpus))

	query := "what powers does the congress have"
	fmt.Printf("Searching: %q\n", query)
	fmt.Println(strings.Repeat("=", 20))

	threshold := 0.3
	options := &counsel.AskOptions{TopK: 5, Threshold: &threshold}

	// Without an API key the example stays retrieval-only
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		sources, err := c.Sources(ctx, query, options)
		if err != nil {
			log.Fatalf("Failed to list sources: %v", err)
		}
		for i, source := range sources {
			fmt.Printf("\n[%d] %s (%.4f)\n", i+1, source.Title, source.Score)
			fmt.Printf("    %s\n", strings.ReplaceAll(source.Snippet, "\n", "\n    "))
		}
	} else {
		err := c.UseOpenAIProvider(generation.Config{
			BaseURL: "https://api.openai.com",
			APIKey:  apiKey,
			Model:   c.Config().Generation.Model,
		})
		if err != nil {
			log.Fatalf("Failed to wire generation provider: %v", err)
		}

		answer, err := c.Ask(ctx, query, options)
		if err != nil {
			log.Fatalf("Ask failed: %v", err)
		}
		fmt.Printf("\nAnswer (confidence %.2f):\n%s\n", answer.Confidence, answer.Content)
		fmt.Printf("\nCited documents:\n")
		for _, citation := range answer.Citations {
			doc, err := c.Documents.SelectDocument(citation)
			if err != nil {
				continue
			}
			fmt.Printf("  - %s\n", doc.Title)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 20))
	fmt.Println("Search complete!")
}

// existingSources lists the gutenberg source attributes already in the
// store so re-runs against the persistent volume skip them.
func existingSources(c *counsel.Counsel) (map[string]bool, error) {
	docs, err := c.Documents.SelectAllDocuments(nil, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	existing := make(map[string]bool)
	for _, doc := range docs {
		if source, ok := doc.Attributes[model.AttrSource].(string); ok && strings.HasPrefix(source, "gutenberg/") {
			existing[source] = true
		}
	}

	return existing, nil
}
