package tools

import (
	"context"
	"fmt"

	"github.com/m4xw311/nima/config"
	"github.com/m4xw311/nima/docsearch"
	"github.com/m4xw311/nima/errors"
)

// SearchKnowledgeBaseTool runs a keyword query over the loaded PDFs.
type SearchKnowledgeBaseTool struct {
	store *docsearch.Store
}

func (t *SearchKnowledgeBaseTool) Name() string { return "search_knowledge_base" }
func (t *SearchKnowledgeBaseTool) Description() string {
	return "Search the physics knowledge base of loaded PDF documents (papers, textbooks, reference material) for theoretical background, equations, definitions and findings."
}
func (t *SearchKnowledgeBaseTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "query", Type: "string", Description: "Search query or topic to look up", Required: true},
		{Name: "max_chars", Type: "integer", Description: "Maximum characters to return (default 8000)"},
	}
}

func (t *SearchKnowledgeBaseTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}
	maxChars, err := optionalIntArg(args, "max_chars", docsearch.DefaultMaxChars)
	if err != nil {
		return "", err
	}
	return t.store.Query(query, maxChars), nil
}

// LoadDocumentsTool loads the PDFs of a directory into the knowledge base.
type LoadDocumentsTool struct {
	store    *docsearch.Store
	fsAccess *config.FilesystemAccess
}

func (t *LoadDocumentsTool) Name() string { return "load_documents_from_directory" }
func (t *LoadDocumentsTool) Description() string {
	return "Load all PDF documents of a directory into the knowledge base and report how many were added."
}
func (t *LoadDocumentsTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "pdf_dir", Type: "string", Description: "Directory containing PDF files (default ./pdfs)"},
	}
}

func (t *LoadDocumentsTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	dir, err := optionalStringArg(args, "pdf_dir")
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "./pdfs"
	}
	if t.fsAccess != nil {
		hidden, err := isPathRestricted(dir, t.fsAccess.Hidden)
		if err != nil {
			return "", err
		}
		if hidden {
			return "", errors.New("access denied: path '%s' is hidden", dir)
		}
	}
	n, err := t.store.Init(dir)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Loaded %d new documents from %s. Knowledge base now holds %d documents.", n, dir, t.store.Count()), nil
}
