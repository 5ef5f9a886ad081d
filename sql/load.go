package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed categories.sql
var categoriesSQL string

//go:embed documents.sql
var documentsSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed relations.sql
var relationsSQL string

//go:embed search.sql
var searchSQL string

//go:embed conversations.sql
var conversationsSQL string

// Function lists for verification
var CategoriesFunctions = []string{
	"init_categories",
	"insert_category",
	"select_category",
	"select_category_by_slug",
	"select_categories_by_parent",
	"select_all_categories",
	"update_category",
	"move_category",
	"delete_category",
}

var DocumentsFunctions = []string{
	"init_documents",
	"insert_document",
	"select_document",
	"select_all_documents",
	"select_documents_by_category",
	"select_documents_by_type",
	"select_documents_by_tags",
	"search_documents",
	"select_documents_by_reference",
	"update_document",
	"claim_stale_documents",
	"claim_document",
	"finish_document_index",
	"mark_document_stale",
	"delete_document",
}

var ChunksFunctions = []string{
	"init_chunks",
	"insert_chunk",
	"select_chunk",
	"select_chunks_by_document",
	"select_chunks_by_similarity",
	"select_chunks_by_text",
	"claim_pending_chunks",
	"update_chunk_embedding",
	"fail_chunk_embedding",
	"delete_document_chunks",
	"delete_chunk",
	"promote_ready_documents",
}

var RelationsFunctions = []string{
	"init_relations",
	"insert_relation",
	"select_relation",
	"select_relations_from_document",
	"select_relations_to_document",
	"select_relations_connected_to_document",
	"update_relation_strength",
	"delete_relation",
	"traverse_relations",
}

var SearchFunctions = []string{
	"init_search_metadata",
	"select_search_metadata",
	"upsert_search_keywords",
	"record_document_access",
	"record_document_relevance",
	"refresh_popularity_scores",
}

var ConversationsFunctions = []string{
	"init_conversations",
	"insert_conversation",
	"select_conversation",
	"select_conversations_by_owner",
	"archive_conversation",
	"update_conversation_context",
	"append_message",
	"select_messages",
	"select_message",
	"insert_feedback",
	"select_feedback_for_message",
	"claim_unprocessed_feedback",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadCategoriesSql loads category-related SQL functions
func LoadCategoriesSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, CategoriesFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing categories functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(categoriesSQL)
	if err != nil {
		return fmt.Errorf("error executing categories SQL: %w", err)
	}

	exist, err := checkFunctions(db, CategoriesFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL categories functions loaded successfully")
	return nil
}

// LoadDocumentsSql loads document-related SQL functions
func LoadDocumentsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, DocumentsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing documents functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(documentsSQL)
	if err != nil {
		return fmt.Errorf("error executing documents SQL: %w", err)
	}

	exist, err := checkFunctions(db, DocumentsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL documents functions loaded successfully")
	return nil
}

// LoadChunksSql loads chunk-related SQL functions
func LoadChunksSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, ChunksFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing chunks functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(chunksSQL)
	if err != nil {
		return fmt.Errorf("error executing chunks SQL: %w", err)
	}

	exist, err := checkFunctions(db, ChunksFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL chunks functions loaded successfully")
	return nil
}

// LoadRelationsSql loads relation-related SQL functions
func LoadRelationsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, RelationsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing relations functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(relationsSQL)
	if err != nil {
		return fmt.Errorf("error executing relations SQL: %w", err)
	}

	exist, err := checkFunctions(db, RelationsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL relations functions loaded successfully")
	return nil
}

// LoadSearchSql loads search-metadata-related SQL functions
func LoadSearchSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, SearchFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing search functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(searchSQL)
	if err != nil {
		return fmt.Errorf("error executing search SQL: %w", err)
	}

	exist, err := checkFunctions(db, SearchFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL search functions loaded successfully")
	return nil
}

// LoadConversationsSql loads conversation-related SQL functions
func LoadConversationsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, ConversationsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing conversations functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(conversationsSQL)
	if err != nil {
		return fmt.Errorf("error executing conversations SQL: %w", err)
	}

	exist, err := checkFunctions(db, ConversationsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL conversations functions loaded successfully")
	return nil
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadCategoriesSql(db, force); err != nil {
		return err
	}

	if err := LoadDocumentsSql(db, force); err != nil {
		return err
	}

	if err := LoadChunksSql(db, force); err != nil {
		return err
	}

	if err := LoadRelationsSql(db, force); err != nil {
		return err
	}

	if err := LoadSearchSql(db, force); err != nil {
		return err
	}

	if err := LoadConversationsSql(db, force); err != nil {
		return err
	}

	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
