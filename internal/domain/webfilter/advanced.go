package webfilter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
	"github.com/turtacn/PDB-Sieve/pkg/types/structure"
)

// Option configures the search-backed filters.
type Option func(*options)

type options struct {
	logger    logging.Logger
	exclusive bool
}

// WithLogger sets the logger used while the query is issued.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithExclusive requires every chain of the first model to match instead of
// at least one.
func WithExclusive(exclusive bool) Option {
	return func(o *options) { o.exclusive = exclusive }
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// AdvancedQuery retains entries that appear in the result of an RCSB PDB
// advanced search.  When the search returns polymer entities, each chain of
// the first model is matched through the id of the entity that owns it.
//
// The identifier set is fetched once, in NewAdvancedQuery, and is shared
// read-only by every Evaluate call.
type AdvancedQuery struct {
	resultType  string
	entityLevel bool
	ids         map[string]struct{}
	list        []string
	exclusive   bool
}

// NewAdvancedQuery posts payload (RCSB search JSON) to svc and builds the
// filter from the answer.  Any search failure fails construction.
func NewAdvancedQuery(ctx context.Context, svc SearchService, payload string, opts ...Option) (*AdvancedQuery, error) {
	o := buildOptions(opts)
	log := o.logger.Named("advanced_query")

	start := time.Now()
	res, err := svc.PostQuery(ctx, payload)
	if err != nil {
		log.Error("advanced query failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.CodeRemoteQueryFailed, "advanced query failed")
	}
	if res == nil {
		return nil, errors.New(errors.CodeRemoteQueryFailed, "advanced query returned no result")
	}

	q := newAdvancedQuery(res.ResultType, res.Identifiers, o.exclusive)
	log.Info("advanced query loaded",
		logging.String("result_type", q.resultType),
		logging.Bool("entity_level", q.entityLevel),
		logging.Int("identifiers", len(q.list)),
		logging.Duration("took", time.Since(start)))
	return q, nil
}

func newAdvancedQuery(resultType string, identifiers []string, exclusive bool) *AdvancedQuery {
	q := &AdvancedQuery{
		resultType:  resultType,
		entityLevel: resultType == ResultTypePolymerEntity,
		ids:         make(map[string]struct{}, len(identifiers)),
		exclusive:   exclusive,
	}
	for _, id := range identifiers {
		if _, dup := q.ids[id]; dup {
			continue
		}
		q.ids[id] = struct{}{}
		q.list = append(q.list, id)
	}
	return q
}

// StructureIDs returns the deduplicated identifiers in the order the search
// service returned them.
func (q *AdvancedQuery) StructureIDs() []string {
	return append([]string(nil), q.list...)
}

// ResultType is the result type reported by the search service.
func (q *AdvancedQuery) ResultType() string { return q.resultType }

// EntityLevel reports whether chains are matched through entity ids.
func (q *AdvancedQuery) EntityLevel() bool { return q.entityLevel }

// Exclusive reports whether every chain must match.
func (q *AdvancedQuery) Exclusive() bool { return q.exclusive }

// AsExclusive returns a filter over the same identifier set with the given
// exclusive setting.  The receiver is left unchanged.
func (q *AdvancedQuery) AsExclusive(exclusive bool) *AdvancedQuery {
	c := *q
	c.exclusive = exclusive
	return &c
}

// Evaluate scans the chains of the first model.  In the default mode it
// returns true at the first chain whose id is in the result set; in exclusive
// mode it returns false at the first chain whose id is not.
func (q *AdvancedQuery) Evaluate(id string, rec structure.Record) (bool, error) {
	n := structure.FirstModelChainCount(rec)

	var owner []int
	if q.entityLevel && n > 0 {
		var err error
		if owner, err = chainToEntityIndex(rec); err != nil {
			return false, err
		}
		if n > len(owner) {
			return false, errors.Newf(errors.CodeRecordDecode,
				"%s: first model has %d chains, record has %d", rec.StructureID(), n, len(owner))
		}
	}

	globalMatch := false
	for i := 0; i < n; i++ {
		candidate := id
		if q.entityLevel {
			var err error
			if candidate, err = structureEntityID(rec, id, owner[i]); err != nil {
				return false, err
			}
		}

		_, match := q.ids[candidate]
		if match && !q.exclusive {
			return true, nil
		}
		if !match && q.exclusive {
			return false, nil
		}
		if match {
			globalMatch = true
		}
	}
	return globalMatch, nil
}

func (q *AdvancedQuery) String() string {
	s := fmt.Sprintf("AdvancedQuery[%s, %d ids]", q.resultType, len(q.list))
	if q.exclusive {
		s += "(exclusive)"
	}
	return s
}

// structureEntityID derives the entity id "BASE_N" for a chain owned by the
// 0-based entity origEntity.  The base is origID up to its first '.'.  When
// the record itself is a per-entity split ("1ABC.2"), its suffix is the
// entity number and its base must equal the key base.
func structureEntityID(rec structure.Record, origID string, origEntity int) (string, error) {
	key := origID
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[:i]
	}

	sid := rec.StructureID()
	pos := strings.LastIndexByte(sid, '.')
	if pos < 0 {
		return key + "_" + strconv.Itoa(origEntity+1), nil
	}

	value := sid[:strings.IndexByte(sid, '.')]
	if key != value {
		return "", errors.New(errors.CodeStructureMismatch, "structure mismatch").
			WithDetail(fmt.Sprintf("key vs value: %s vs. %s", key, value))
	}
	return value + "_" + sid[pos+1:], nil
}

// chainToEntityIndex inverts the entities' chain lists: position c holds the
// index of the entity owning chain c.
func chainToEntityIndex(rec structure.Record) ([]int, error) {
	owner := make([]int, rec.NumChains())
	for ent, entity := range rec.Entities() {
		for _, c := range entity.ChainIndexList {
			if c < 0 || c >= len(owner) {
				return nil, errors.Newf(errors.CodeRecordDecode,
					"%s: entity %d references chain %d outside [0, %d)", rec.StructureID(), ent, c, len(owner))
			}
			owner[c] = ent
		}
	}
	return owner, nil
}
