package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/counsel"
	"github.com/siherrmann/counsel/helper"
	"github.com/siherrmann/counsel/model"
)

const sampleContent = `Paid leave is calculated from the average weekly pay over the twelve weeks preceding the leave.

Every employee is entitled to a minimum of four weeks of paid annual leave.
The entitlement accrues proportionally during the first year of employment.

Overtime premiums are excluded from the calculation of leave pay unless
overtime is contractually guaranteed. Bonuses paid for the year as a whole
are included on a pro rata basis.

Untaken leave may be carried over into the first quarter of the following
year when operational reasons prevented the employee from taking it.`

func main() {
	// Start a test PostgreSQL container with the pgvector image
	teardown, dbPort, err := helper.MustStartPostgresContainer()
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
	if err := c.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	// Documents live in a category tree
	category := &model.Category{Name: "Paid Leave", Slug: "paid_leave"}
	if err := c.Categories.InsertCategory(category, nil); err != nil {
		log.Fatalf("Failed to create category: %v", err)
	}

	doc := &model.Document{
		Title:   "Paid Leave Calculation",
		Content: sampleContent,
		Type:    model.DocumentTypeGuide,
		Tags:    []string{"leave", "calculation"},
		Attributes: model.Attributes{
			model.AttrSource: "basic_example",
		},
	}

	fmt.Println("Ingesting document...")
	rid, version, err := c.UpsertDocument(doc, category.RID)
	if err != nil {
		log.Fatalf("Failed to upsert document: %v", err)
	}
	fmt.Printf("Document inserted with ID: %s (version %d)\n", rid, version)

	// Index synchronously so the document is retrievable right away;
	// normally the background indexer picks it up on its own
	if err := c.IndexDocument(context.Background(), rid); err != nil {
		log.Fatalf("Failed to index document: %v", err)
	}

	chunks, err := c.Chunks.SelectChunksByDocument(rid)
	if err != nil {
		log.Fatalf("Failed to list chunks: %v", err)
	}
	fmt.Printf("Indexed %d chunks\n", len(chunks))

	// Hybrid retrieval: vector similarity fused with full-text relevance
	queryText := "how is paid leave calculated"
	fmt.Printf("\nQuerying: %s\n", queryText)

	threshold := 0.3
	results, err := c.Retrieve(context.Background(), queryText, &counsel.AskOptions{
		TopK:      5,
		Threshold: &threshold,
	})
	if err != nil {
		log.Fatalf("Failed to retrieve: %v", err)
	}

	fmt.Printf("\nFound %d results:\n", len(results))
	for i, result := range results {
		fmt.Printf("\n--- Result %d ---\n", i+1)
		fmt.Printf("Score: %.4f (vector: %.4f, lexical: %.4f)\n", result.Score, result.Similarity, result.Lexical)
		fmt.Printf("Document: %s\n", result.DocumentTitle)
		fmt.Printf("Content: %s\n", result.Chunk.Content)
		fmt.Printf("Method: %s\n", result.Method)
	}

	// Sources condenses the ranked chunks into one entry per document
	sources, err := c.Sources(context.Background(), queryText, &counsel.AskOptions{Threshold: &threshold})
	if err != nil {
		log.Fatalf("Failed to list sources: %v", err)
	}
	fmt.Printf("\nSources:\n")
	for _, source := range sources {
		fmt.Printf("  %s (%.4f): %s\n", source.Title, source.Score, source.Snippet)
	}

	fmt.Println("\nBasic example completed successfully!")
}
