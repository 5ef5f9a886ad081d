package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/siherrmann/counsel"
	"github.com/siherrmann/counsel/core/generation"
	"github.com/siherrmann/counsel/helper"
	"github.com/siherrmann/counsel/model"
)

const statuteContent = `Section 622. Notice periods for the termination of employment.

The employment of a worker may be terminated with a notice period of four
weeks to the fifteenth or to the end of a calendar month.

For a termination by the employer the notice period extends with the
seniority of the employee: after two years of service it is one month to
the end of a calendar month, after five years two months, after eight
years three months, and after ten years four months.

A shorter notice period may be agreed for the duration of a probation
period, at most six months, in which case the employment may be
terminated with a notice period of two weeks.`

const commentaryContent = `The extended notice periods of Section 622 apply only to terminations
by the employer; the worker's own notice period stays at four weeks
unless the contract extends it.

Collective agreements may deviate from the statutory periods in both
directions. An individual contract may only extend them, and never in a
way that burdens the worker with a longer period than the employer.

Periods of service completed before the age of twenty five count towards
seniority; the former exclusion was held discriminatory by the courts.`

const caseLawContent = `The court held that the exclusion of service years completed before the
age of twenty five from the calculation of the notice period constitutes
discrimination on grounds of age and must not be applied.

National courts must disapply the provision without awaiting its formal
repeal. Employers relying on the literal wording of the statute cannot
invoke a legitimate expectation.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration
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

	ctx := context.Background()

	// 1. Build the category tree
	fmt.Println("=== 1. Category Tree ===")
	labor := &model.Category{Name: "Labor Law", Slug: "labor_law"}
	if err := c.Categories.InsertCategory(labor, nil); err != nil {
		log.Fatalf("Failed to create root category: %v", err)
	}
	termination := &model.Category{Name: "Termination", Slug: "termination"}
	if err := c.Categories.InsertCategory(termination, &labor.RID); err != nil {
		log.Fatalf("Failed to create child category: %v", err)
	}
	fmt.Printf("Category path: %s\n", termination.Path)

	// 2. Ingest and index documents
	fmt.Println("\n=== 2. Ingesting Documents ===")
	statute := &model.Document{
		Title:   "Civil Code Section 622",
		Content: statuteContent,
		Type:    model.DocumentTypeStatute,
		Tags:    []string{"notice", "termination"},
		Attributes: model.Attributes{
			model.AttrSource:    "advanced_example",
			model.AttrAuthority: "legislature",
		},
	}
	commentary := &model.Document{
		Title:   "Commentary on Section 622",
		Content: commentaryContent,
		Type:    model.DocumentTypeArticle,
		Tags:    []string{"notice", "commentary"},
	}
	caseLaw := &model.Document{
		Title:   "Age Discrimination in Notice Periods",
		Content: caseLawContent,
		Type:    model.DocumentTypeCaseLaw,
		Tags:    []string{"notice", "discrimination"},
	}

	for _, doc := range []*model.Document{statute, commentary, caseLaw} {
		rid, version, err := c.UpsertDocument(doc, termination.RID)
		if err != nil {
			log.Fatalf("Failed to upsert %q: %v", doc.Title, err)
		}
		if err := c.IndexDocument(ctx, rid); err != nil {
			log.Fatalf("Failed to index %q: %v", doc.Title, err)
		}
		fmt.Printf("Indexed %q (RID: %s, version %d)\n", doc.Title, rid, version)
	}

	// 3. Relate the documents
	fmt.Println("\n=== 3. Relations ===")
	relations := []*model.Relation{
		{SourceRID: commentary.RID, TargetRID: statute.RID, Type: model.RelationTypeClarifies, Strength: 0.9},
		{SourceRID: caseLaw.RID, TargetRID: statute.RID, Type: model.RelationTypeSupersedes, Strength: 0.7},
	}
	for _, relation := range relations {
		if err := c.Relations.InsertRelation(relation); err != nil {
			log.Fatalf("Failed to insert relation: %v", err)
		}
		fmt.Printf("%s -[%s %.1f]-> %s\n", relation.SourceRID, relation.Type, relation.Strength, relation.TargetRID)
	}

	related, err := c.RelatedDocuments(statute.RID, 2)
	if err != nil {
		log.Fatalf("Failed to traverse relations: %v", err)
	}
	fmt.Printf("Documents related to the statute:\n")
	for _, r := range related {
		fmt.Printf("  %s (distance %d)\n", r.Title, r.Distance)
	}

	// 4. Filtered hybrid retrieval
	fmt.Println("\n=== 4. Filtered Retrieval ===")
	query := "what notice period applies after long service"
	threshold := 0.25

	results, err := c.Retrieve(ctx, query, &counsel.AskOptions{Threshold: &threshold})
	if err != nil {
		log.Fatalf("Retrieval failed: %v", err)
	}
	printResults("Unfiltered", results)

	statuteOnly, err := c.Retrieve(ctx, query, &counsel.AskOptions{
		Threshold: &threshold,
		Filters: model.Filters{
			Types:        []model.DocumentType{model.DocumentTypeStatute},
			CategoryPath: labor.Path,
		},
	})
	if err != nil {
		log.Fatalf("Filtered retrieval failed: %v", err)
	}
	printResults("Statutes under labor_law only", statuteOnly)

	// 5. Ask a grounded question. Without an API key the example shows
	// the ranked sources instead of a generated answer.
	fmt.Println("\n=== 5. Grounded Answer ===")
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		fmt.Println("OPENAI_API_KEY not set, showing sources instead of a generated answer.")
		sources, err := c.Sources(ctx, query, &counsel.AskOptions{Threshold: &threshold})
		if err != nil {
			log.Fatalf("Failed to list sources: %v", err)
		}
		for i, source := range sources {
			fmt.Printf("[%d] %s (%.4f)\n", i+1, source.Title, source.Score)
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

		answer, err := c.Ask(ctx, query, &counsel.AskOptions{Threshold: &threshold, Owner: "advanced_example"})
		if err != nil {
			log.Fatalf("Ask failed: %v", err)
		}
		fmt.Printf("Answer (confidence %.2f, degraded %t):\n%s\n", answer.Confidence, answer.Degraded, answer.Content)
		fmt.Printf("Citations: %v\n", answer.Citations)

		// Feedback on the answer feeds the relevance scores asynchronously
		if answer.MessageRID != nil {
			feedback := &model.Feedback{
				MessageRID: answer.MessageRID,
				Type:       model.FeedbackTypeHelpful,
			}
			if err := c.SubmitFeedback(feedback); err != nil {
				log.Fatalf("Failed to submit feedback: %v", err)
			}
			fmt.Println("Feedback submitted.")
		}
	}

	// 6. Demonstrate index type switching
	fmt.Println("\n=== 6. Changing Index Type ===")
	fmt.Println("Switching to IVFFlat index...")
	err = c.ChangeIndexType(ctx, "ivfflat", map[string]interface{}{
		"lists": 100,
	})
	if err != nil {
		log.Printf("Warning: Index change failed (this is okay for small datasets): %v", err)
	} else {
		fmt.Println("Successfully switched to IVFFlat index")
	}

	fmt.Println("Switching back to HNSW index...")
	err = c.ChangeIndexType(ctx, "hnsw", map[string]interface{}{
		"m":               16,
		"ef_construction": 64,
	})
	if err != nil {
		log.Printf("Warning: Index change failed: %v", err)
	} else {
		fmt.Println("Successfully switched to HNSW index")
	}

	fmt.Println("\n=== Advanced Example Completed Successfully! ===")
	fmt.Println("\nKey features demonstrated:")
	fmt.Println("- Category tree with materialized paths")
	fmt.Println("- Versioned ingestion with synchronous indexing")
	fmt.Println("- Typed relations and graph traversal")
	fmt.Println("- Hybrid retrieval with type and category filters")
	fmt.Println("- Grounded answering with citations (or source fallback)")
	fmt.Println("- Index type switching (HNSW / IVFFlat)")
}

func printResults(title string, results []*model.RetrievalResult) {
	fmt.Printf("\n%s - Found %d results:\n", title, len(results))
	for i, result := range results {
		if i >= 3 {
			break // Show only first 3
		}
		fmt.Printf("\n  Result %d:\n", i+1)
		fmt.Printf("    Score: %.4f (vector: %.4f, lexical: %.4f)\n", result.Score, result.Similarity, result.Lexical)
		fmt.Printf("    Method: %s\n", result.Method)
		fmt.Printf("    Document: %s\n", result.DocumentTitle)
		content := result.Chunk.Content
		if len(content) > 80 {
			content = content[:80] + "..."
		}
		fmt.Printf("    Content: %s\n", content)
	}
}
