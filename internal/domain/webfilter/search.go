// Package webfilter holds the filters backed by the RCSB PDB search service:
// a generic advanced-query filter and a chemical structure (SMILES) filter.
// Each issues a single search call when it is constructed and afterwards only
// tests membership in the returned identifier set.
package webfilter

import "context"

// Result types returned by the search service.
const (
	ResultTypeEntry         = "entry"
	ResultTypePolymerEntity = "polymer_entity"
)

// SearchResult is the answer to one search query.  Identifiers are entry ids
// ("1ABC") for ResultTypeEntry and entity ids ("1ABC_1") for
// ResultTypePolymerEntity.  Scores, when present, align with Identifiers and
// lie in [0, 1].
type SearchResult struct {
	ResultType  string    `json:"result_type"`
	Identifiers []string  `json:"identifiers"`
	Scores      []float64 `json:"scores"`
}

// SearchService posts a JSON query payload to the structure search service.
type SearchService interface {
	PostQuery(ctx context.Context, payload string) (*SearchResult, error)
}

// SearchServiceFunc adapts a function to SearchService.
type SearchServiceFunc func(ctx context.Context, payload string) (*SearchResult, error)

// PostQuery calls f(ctx, payload).
func (f SearchServiceFunc) PostQuery(ctx context.Context, payload string) (*SearchResult, error) {
	return f(ctx, payload)
}
