package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

// SearchPath is the query endpoint of the Search API v2.
const SearchPath = "/rcsbsearch/v2/query"

// SearchResponse is the body returned for a search query.
type SearchResponse struct {
	QueryID    string       `json:"query_id"`
	ResultType string       `json:"result_type"`
	TotalCount int          `json:"total_count"`
	ResultSet  []ResultItem `json:"result_set"`
}

// ResultItem is one hit.  Score lies in [0, 1].
type ResultItem struct {
	Identifier string  `json:"identifier"`
	Score      float64 `json:"score"`
}

// Identifiers returns the hit identifiers in result order.
func (r *SearchResponse) Identifiers() []string {
	ids := make([]string, len(r.ResultSet))
	for i, item := range r.ResultSet {
		ids[i] = item.Identifier
	}
	return ids
}

// Scores returns the hit scores aligned with Identifiers.
func (r *SearchResponse) Scores() []float64 {
	scores := make([]float64, len(r.ResultSet))
	for i, item := range r.ResultSet {
		scores[i] = item.Score
	}
	return scores
}

// Search posts a JSON query to the search service.  The service answers a
// query without hits with 204 No Content; Search reports that as an empty
// response whose ResultType is the return_type requested in the payload.
func (c *Client) Search(ctx context.Context, payload string) (*SearchResponse, error) {
	var query struct {
		ReturnType string `json:"return_type"`
	}
	if err := json.Unmarshal([]byte(payload), &query); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "search payload is not valid JSON")
	}

	var resp SearchResponse
	status, err := c.do(ctx, http.MethodPost, SearchPath, []byte(payload), &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		c.logger.Debugf("search returned no hits for return_type %s", query.ReturnType)
		return &SearchResponse{ResultType: query.ReturnType}, nil
	}
	if resp.ResultType == "" {
		resp.ResultType = query.ReturnType
	}
	c.logger.Infof("search returned %d of %d %s hits", len(resp.ResultSet), resp.TotalCount, resp.ResultType)
	return &resp, nil
}
