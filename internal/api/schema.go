package api

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphql
var schemaSDL string

var (
	schemaOnce sync.Once
	schema     *ast.Schema
	schemaErr  error
)

// Schema parses the embedded schema once.
func Schema() (*ast.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: schemaSDL})
	})
	return schema, schemaErr
}

// ValidateDocuments parses and validates every operation against the
// schema, so a fragment that drifts from the schema fails at startup
// rather than on first use.
func ValidateDocuments() error {
	s, err := Schema()
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}
	names := make([]string, 0, len(documents))
	for name := range documents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc, errs := gqlparser.LoadQuery(s, documents[name])
		if len(errs) > 0 {
			return fmt.Errorf("document %s: %w", name, errs)
		}
		if op := doc.Operations.ForName(name); op == nil {
			return fmt.Errorf("document %s: operation not defined", name)
		}
	}
	return nil
}
