package commands

import (
	"context"

	"chimera/internal/application/retrieval"
	"chimera/internal/domain"
)

// Querier runs the retrieval pipeline
type Querier interface {
	Run(ctx context.Context, req retrieval.Request) (*domain.StructuredResult, error)
}

// QueryCommand answers a natural-language query
type QueryCommand struct {
	pipeline        Querier
	Text            string
	ClientID        string
	Limit           int
	ConfidenceFloor *float64
}

// NewQueryCommand creates a new QueryCommand
func NewQueryCommand(pipeline Querier, text, clientID string, limit int) *QueryCommand {
	return &QueryCommand{
		pipeline: pipeline,
		Text:     text,
		ClientID: clientID,
		Limit:    limit,
	}
}

// WithConfidenceFloor overrides the pipeline's confidence floor
func (c *QueryCommand) WithConfidenceFloor(floor float64) *QueryCommand {
	c.ConfidenceFloor = &floor
	return c
}

// Execute runs the query. Validation failures and pipeline failures are
// returned as errors; an empty result is not an error.
func (c *QueryCommand) Execute(ctx context.Context) (*domain.StructuredResult, error) {
	return c.pipeline.Run(ctx, retrieval.Request{
		Text:            c.Text,
		ClientID:        c.ClientID,
		Limit:           c.Limit,
		ConfidenceFloor: c.ConfidenceFloor,
	})
}
