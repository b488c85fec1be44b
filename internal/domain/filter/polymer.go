package filter

import (
	"sort"
	"strings"

	"github.com/turtacn/PDB-Sieve/pkg/errors"
	"github.com/turtacn/PDB-Sieve/pkg/types/structure"
)

// PolymerChainType retains entries whose polymer chains have one of the
// accepted linkage types.  By default one matching chain is enough; in
// exclusive mode every polymer chain must match.  Only the first model is
// inspected and non-polymer chains are skipped.
//
// A first model without polymer chains is retained in exclusive mode and
// rejected otherwise.
// TODO: revisit the zero-chain asymmetry once downstream pipelines no longer
// depend on it.
type PolymerChainType struct {
	accepted  map[structure.LinkageType]struct{}
	exclusive bool
	name      string
}

// NewPolymerChainType builds a PolymerChainType accepting the given types.
func NewPolymerChainType(exclusive bool, types ...structure.LinkageType) (*PolymerChainType, error) {
	if len(types) == 0 {
		return nil, errors.New(errors.CodeInvalidFilterConfig, "polymer chain filter needs at least one linkage type")
	}
	accepted := make(map[structure.LinkageType]struct{}, len(types))
	for _, t := range types {
		accepted[t] = struct{}{}
	}
	return &PolymerChainType{accepted: accepted, exclusive: exclusive}, nil
}

// NewDProteinChain retains entries with at least one D-protein chain, or, in
// exclusive mode, entries whose polymer chains are all D-protein chains.  A
// D-protein/DNA complex passes the default filter but not the exclusive one.
func NewDProteinChain(exclusive bool) *PolymerChainType {
	p, _ := NewPolymerChainType(exclusive, structure.DPeptideLinking, structure.PeptideLinking)
	p.name = "DProteinChain"
	return p
}

// Exclusive reports whether every polymer chain must match.
func (p *PolymerChainType) Exclusive() bool { return p.exclusive }

func (p *PolymerChainType) Evaluate(_ string, rec structure.Record) (bool, error) {
	n := structure.FirstModelChainCount(rec)
	for i := 0; i < n; i++ {
		t, polymer := rec.ChainLinkageType(i)
		if !polymer {
			continue
		}
		_, match := p.accepted[t]
		if match && !p.exclusive {
			return true, nil
		}
		if !match && p.exclusive {
			return false, nil
		}
	}
	return p.exclusive, nil
}

func (p *PolymerChainType) String() string {
	name := p.name
	if name == "" {
		types := make([]string, 0, len(p.accepted))
		for t := range p.accepted {
			types = append(types, string(t))
		}
		sort.Strings(types)
		name = "PolymerChainType[" + strings.Join(types, ", ") + "]"
	}
	if p.exclusive {
		name += "(exclusive)"
	}
	return name
}
