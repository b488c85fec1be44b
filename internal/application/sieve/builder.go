package sieve

import (
	"context"
	"strings"

	"github.com/turtacn/PDB-Sieve/internal/domain/filter"
	"github.com/turtacn/PDB-Sieve/internal/domain/webfilter"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
	"github.com/turtacn/PDB-Sieve/pkg/types/structure"
)

// Options selects the predicates of a run.  Every predicate that is set is
// combined with AND; Negate wraps the conjunction in NOT.
type Options struct {
	Methods      []string
	DProtein     bool
	PolymerTypes []string
	Exclusive    bool

	// QueryPayload is a raw RCSB search request.
	QueryPayload string

	SMILES     string
	QueryType  string
	Similarity float64

	Negate bool
}

// HasRemote reports whether the options need the search service.
func (o Options) HasRemote() bool {
	return strings.TrimSpace(o.QueryPayload) != "" || o.SMILES != ""
}

// Builder turns Options into a filter tree.
type Builder struct {
	search  webfilter.SearchService
	logger  logging.Logger
	metrics *prom.SieveMetrics
}

// NewBuilder returns a Builder.  search may be nil when no remote predicate
// is requested.
func NewBuilder(search webfilter.SearchService, logger logging.Logger, metrics *prom.SieveMetrics) *Builder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Builder{search: search, logger: logger, metrics: metrics}
}

// Build constructs the filter.  Remote predicates issue their search here.
func (b *Builder) Build(ctx context.Context, o Options) (filter.Filter, error) {
	var parts []filter.Filter
	add := func(label string, f filter.Filter) {
		parts = append(parts, Instrument(f, label, b.metrics))
	}

	if len(o.Methods) > 0 {
		add("experimental_methods", filter.NewExperimentalMethods(filter.NormalizeMethods(o.Methods)...))
	}
	if o.DProtein {
		add("d_protein_chain", filter.NewDProteinChain(o.Exclusive))
	}
	if len(o.PolymerTypes) > 0 {
		types := make([]structure.LinkageType, 0, len(o.PolymerTypes))
		for _, s := range o.PolymerTypes {
			t, err := structure.ParseLinkageType(s)
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeInvalidFilterConfig, "invalid polymer type")
			}
			types = append(types, t)
		}
		p, err := filter.NewPolymerChainType(o.Exclusive, types...)
		if err != nil {
			return nil, err
		}
		add("polymer_chain_type", p)
	}

	if o.HasRemote() && b.search == nil {
		return nil, errors.New(errors.CodeInvalidFilterConfig, "remote predicates need a search service")
	}
	webOpts := []webfilter.Option{webfilter.WithLogger(b.logger), webfilter.WithExclusive(o.Exclusive)}

	if payload := strings.TrimSpace(o.QueryPayload); payload != "" {
		q, err := webfilter.NewAdvancedQuery(ctx, b.search, payload, webOpts...)
		if err != nil {
			return nil, err
		}
		add("advanced_query", q)
	}
	if o.SMILES != "" {
		qt := webfilter.Substructure
		if o.QueryType != "" {
			var err error
			if qt, err = webfilter.ParseQueryType(o.QueryType); err != nil {
				return nil, err
			}
		}
		q, err := webfilter.NewChemicalStructureQuery(ctx, b.search, o.SMILES, qt, o.Similarity, webOpts...)
		if err != nil {
			return nil, err
		}
		add("chemical_structure_query", q)
	}

	var f filter.Filter
	switch len(parts) {
	case 0:
		b.logger.Warn("no predicates selected; every record is retained")
		f = filter.And()
	case 1:
		f = parts[0]
	default:
		f = filter.And(parts...)
	}
	if o.Negate {
		f = filter.Not(f)
	}
	b.logger.Debug("filter built", logging.String("filter", filter.Describe(f)))
	return f, nil
}
