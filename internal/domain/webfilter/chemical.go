package webfilter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
	"github.com/turtacn/PDB-Sieve/pkg/types/structure"
)

// QueryType selects how the query molecule is compared with the chemical
// components in the archive.
type QueryType int

const (
	// Exact matches identical molecular graphs.
	Exact QueryType = iota + 1
	// Similar ranks components by fingerprint similarity.
	Similar
	// Substructure matches components containing the query molecule.
	Substructure
	// Superstructure matches components contained in the query molecule.
	Superstructure
)

// MaxRows is the page size requested from the search service.
const MaxRows = 1000

var queryTypeNames = map[QueryType]string{
	Exact:          "Exact",
	Similar:        "Similar",
	Substructure:   "Substructure",
	Superstructure: "Superstructure",
}

// ParseQueryType accepts the names Exact, Similar, Substructure and
// Superstructure in any letter case.
func ParseQueryType(s string) (QueryType, error) {
	for qt, name := range queryTypeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return qt, nil
		}
	}
	return 0, errors.Newf(errors.CodeInvalidQueryType,
		"invalid query type %q: use Exact, Similar, Substructure or Superstructure", s)
}

// QueryTypes lists the supported query types.
func QueryTypes() []QueryType {
	return []QueryType{Exact, Similar, Substructure, Superstructure}
}

func (q QueryType) String() string {
	if name, ok := queryTypeNames[q]; ok {
		return name
	}
	return fmt.Sprintf("QueryType(%d)", int(q))
}

// Valid reports whether q is one of the supported query types.
func (q QueryType) Valid() bool {
	_, ok := queryTypeNames[q]
	return ok
}

// MatchType is the chemical search match_type for q.  The search service has
// no superstructure mode; Superstructure maps to the relaxed-stereo graph
// match.
func (q QueryType) MatchType() string {
	switch q {
	case Exact:
		return "graph-exact"
	case Similar:
		return "fingerprint-similarity"
	case Substructure:
		return "sub-struct-graph-relaxed-stereo"
	case Superstructure:
		return "graph-relaxed-stereo"
	default:
		return ""
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Query payload
// ─────────────────────────────────────────────────────────────────────────────

type searchRequest struct {
	Query          terminalNode   `json:"query"`
	ReturnType     string         `json:"return_type"`
	RequestOptions requestOptions `json:"request_options"`
}

type terminalNode struct {
	Type       string             `json:"type"`
	Service    string             `json:"service"`
	Parameters chemicalParameters `json:"parameters"`
}

type chemicalParameters struct {
	Value          string `json:"value"`
	Type           string `json:"type"`
	DescriptorType string `json:"descriptor_type"`
	MatchType      string `json:"match_type"`
}

type requestOptions struct {
	Paginate        paginate   `json:"paginate"`
	ScoringStrategy string     `json:"scoring_strategy"`
	Sort            []sortSpec `json:"sort"`
}

type paginate struct {
	Start int `json:"start"`
	Rows  int `json:"rows"`
}

type sortSpec struct {
	SortBy    string `json:"sort_by"`
	Direction string `json:"direction"`
}

// BuildChemicalQuery renders the search payload for a SMILES query: one
// chemical terminal node returning entries, the first MaxRows rows with
// combined scoring sorted by descending score.
func BuildChemicalQuery(smiles string, queryType QueryType) (string, error) {
	if strings.TrimSpace(smiles) == "" {
		return "", errors.New(errors.CodeInvalidFilterConfig, "smiles must not be empty")
	}
	if !queryType.Valid() {
		return "", errors.Newf(errors.CodeInvalidQueryType, "invalid query type %s", queryType)
	}

	req := searchRequest{
		Query: terminalNode{
			Type:    "terminal",
			Service: "chemical",
			Parameters: chemicalParameters{
				Value:          smiles,
				Type:           "descriptor",
				DescriptorType: "SMILES",
				MatchType:      queryType.MatchType(),
			},
		},
		ReturnType: ResultTypeEntry,
		RequestOptions: requestOptions{
			Paginate:        paginate{Start: 0, Rows: MaxRows},
			ScoringStrategy: "combined",
			Sort:            []sortSpec{{SortBy: "score", Direction: "desc"}},
		},
	}
	b, err := json.Marshal(req)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "encode chemical query")
	}
	return string(b), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ChemicalStructureQuery
// ─────────────────────────────────────────────────────────────────────────────

// ChemicalStructureQuery retains entries containing a chemical component that
// matches a SMILES query.  Only hits scoring at least percentSimilarity (on a
// 0 to 100 scale) are kept.
type ChemicalStructureQuery struct {
	smiles            string
	queryType         QueryType
	percentSimilarity float64
	payload           string
	matcher           *AdvancedQuery
}

// NewChemicalStructureQuery validates the arguments, issues the search once
// and keeps the identifiers at or above the similarity threshold.
func NewChemicalStructureQuery(ctx context.Context, svc SearchService, smiles string, queryType QueryType, percentSimilarity float64, opts ...Option) (*ChemicalStructureQuery, error) {
	if percentSimilarity < 0 || percentSimilarity > 100 {
		return nil, errors.Newf(errors.CodeInvalidFilterConfig,
			"percent similarity %g outside [0, 100]", percentSimilarity)
	}
	payload, err := BuildChemicalQuery(smiles, queryType)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	log := o.logger.Named("chemical_query").With(
		logging.String("smiles", smiles),
		logging.String("query_type", queryType.String()))
	log.Debug("posting chemical query", logging.String("payload", payload))

	start := time.Now()
	res, err := svc.PostQuery(ctx, payload)
	if err != nil {
		log.Error("chemical query failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.CodeRemoteQueryFailed, "chemical structure query failed")
	}
	if res == nil {
		return nil, errors.New(errors.CodeRemoteQueryFailed, "chemical structure query returned no result")
	}

	kept := make([]string, 0, len(res.Identifiers))
	for i, id := range res.Identifiers {
		if i >= len(res.Scores) {
			break
		}
		if res.Scores[i]*100 >= percentSimilarity {
			kept = append(kept, id)
		}
	}

	log.Info("chemical query loaded",
		logging.Int("returned", len(res.Identifiers)),
		logging.Int("kept", len(kept)),
		logging.Float64("percent_similarity", percentSimilarity),
		logging.Duration("took", time.Since(start)))

	return &ChemicalStructureQuery{
		smiles:            smiles,
		queryType:         queryType,
		percentSimilarity: percentSimilarity,
		payload:           payload,
		matcher:           newAdvancedQuery(res.ResultType, kept, o.exclusive),
	}, nil
}

// Identifiers returns the identifiers that passed the similarity threshold,
// best score first.
func (c *ChemicalStructureQuery) Identifiers() []string { return c.matcher.StructureIDs() }

// Payload returns the JSON query sent to the search service.
func (c *ChemicalStructureQuery) Payload() string { return c.payload }

// QueryType returns the configured query type.
func (c *ChemicalStructureQuery) QueryType() QueryType { return c.queryType }

func (c *ChemicalStructureQuery) Evaluate(id string, rec structure.Record) (bool, error) {
	return c.matcher.Evaluate(id, rec)
}

func (c *ChemicalStructureQuery) String() string {
	return fmt.Sprintf("ChemicalStructureQuery[%s %s >= %g%%]", c.queryType, c.smiles, c.percentSimilarity)
}
