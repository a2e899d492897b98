package ports

import (
	"context"
	"encoding/json"
)

// Schema is a named JSON schema the model output must satisfy
type Schema struct {
	Name string
	JSON []byte
}

// LanguageModel defines the embedding and completion calls the pipelines
// depend on
type LanguageModel interface {
	// Embed returns a fixed-length vector for text
	Embed(ctx context.Context, text string) ([]float32, error)

	// Complete asks the model for output matching schema. The returned
	// document has been validated against it; invalid output is a
	// *domain.SchemaValidationError.
	Complete(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error)
}
