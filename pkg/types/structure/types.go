// Package structure defines the read-only view of a macromolecular structure
// record that every filter works against, the chain linkage-type enumeration,
// and Entry, a plain in-memory record that implements the view.  No filtering
// logic lives here.
package structure

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// LinkageType
// ─────────────────────────────────────────────────────────────────────────────

// LinkageType is the chemical-component polymer class of a chain
// (mmCIF chem_comp.type), stored upper case.
type LinkageType string

const (
	PeptideLinking       LinkageType = "PEPTIDE LINKING"
	DPeptideLinking      LinkageType = "D-PEPTIDE LINKING"
	LPeptideLinking      LinkageType = "L-PEPTIDE LINKING"
	DPeptideNH3AminoTerm LinkageType = "D-PEPTIDE NH3 AMINO TERMINUS"
	DPeptideCOOHCarboxy  LinkageType = "D-PEPTIDE COOH CARBOXY TERMINUS"
	LPeptideNH3AminoTerm LinkageType = "L-PEPTIDE NH3 AMINO TERMINUS"
	LPeptideCOOHCarboxy  LinkageType = "L-PEPTIDE COOH CARBOXY TERMINUS"
	LBetaPeptide         LinkageType = "L-BETA-PEPTIDE, C-GAMMA LINKING"
	LGammaPeptide        LinkageType = "L-GAMMA-PEPTIDE, C-DELTA LINKING"
	DNALinking           LinkageType = "DNA LINKING"
	LDNALinking          LinkageType = "L-DNA LINKING"
	DNAOH3PrimeTerm      LinkageType = "DNA OH 3 PRIME TERMINUS"
	DNAOH5PrimeTerm      LinkageType = "DNA OH 5 PRIME TERMINUS"
	RNALinking           LinkageType = "RNA LINKING"
	LRNALinking          LinkageType = "L-RNA LINKING"
	RNAOH3PrimeTerm      LinkageType = "RNA OH 3 PRIME TERMINUS"
	RNAOH5PrimeTerm      LinkageType = "RNA OH 5 PRIME TERMINUS"
	Saccharide           LinkageType = "SACCHARIDE"
	DSaccharide          LinkageType = "D-SACCHARIDE"
	LSaccharide          LinkageType = "L-SACCHARIDE"
	DSaccharide14And14   LinkageType = "D-SACCHARIDE 1,4 AND 1,4 LINKING"
	DSaccharide14And16   LinkageType = "D-SACCHARIDE 1,4 AND 1,6 LINKING"
	LSaccharide14And14   LinkageType = "L-SACCHARIDE 1,4 AND 1,4 LINKING"
	LSaccharide14And16   LinkageType = "L-SACCHARIDE 1,4 AND 1,6 LINKING"
	NonPolymer           LinkageType = "NON-POLYMER"
	OtherLinkage         LinkageType = "OTHER"
)

var knownLinkageTypes = map[LinkageType]struct{}{
	PeptideLinking: {}, DPeptideLinking: {}, LPeptideLinking: {},
	DPeptideNH3AminoTerm: {}, DPeptideCOOHCarboxy: {},
	LPeptideNH3AminoTerm: {}, LPeptideCOOHCarboxy: {},
	LBetaPeptide: {}, LGammaPeptide: {},
	DNALinking: {}, LDNALinking: {}, DNAOH3PrimeTerm: {}, DNAOH5PrimeTerm: {},
	RNALinking: {}, LRNALinking: {}, RNAOH3PrimeTerm: {}, RNAOH5PrimeTerm: {},
	Saccharide: {}, DSaccharide: {}, LSaccharide: {},
	DSaccharide14And14: {}, DSaccharide14And16: {},
	LSaccharide14And14: {}, LSaccharide14And16: {},
	NonPolymer: {}, OtherLinkage: {},
}

// ParseLinkageType normalises s to upper case and checks it against the
// known linkage classes.  Underscores are accepted in place of spaces so
// that flag values like "d_peptide_linking" work.
func ParseLinkageType(s string) (LinkageType, error) {
	norm := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
	t := LinkageType(norm)
	if _, ok := knownLinkageTypes[t]; !ok {
		return "", errors.Newf(errors.CodeInvalidFilterConfig, "unknown linkage type %q", s)
	}
	return t, nil
}

// LinkageTypes returns every known linkage type, sorted.
func LinkageTypes() []LinkageType {
	out := make([]LinkageType, 0, len(knownLinkageTypes))
	for t := range knownLinkageTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Record
// ─────────────────────────────────────────────────────────────────────────────

// Entity is a distinct molecule in a structure.  ChainIndexList holds the
// indices of the chains that are copies of it; across all entities of a
// record these indices partition [0, NumChains).
type Entity struct {
	ChainIndexList []int  `json:"chain_index_list"`
	Type           string `json:"type,omitempty"`
	Description    string `json:"description,omitempty"`
}

// Record is the read-only view of a structure that filters evaluate.
// Chains are numbered across all models; the chains of model 0 are
// [0, ChainsPerModel()[0]).
type Record interface {
	// StructureID is the record's own id, either "1ABC" or "1ABC.2" when the
	// record has been split into one record per entity.
	StructureID() string
	NumChains() int
	ChainsPerModel() []int
	Entities() []Entity

	// ChainLinkageType reports the linkage class of chain i.  ok is false for
	// non-polymer chains and for indices out of range.
	ChainLinkageType(i int) (t LinkageType, ok bool)

	// ExperimentalMethods decodes the recorded experimental methods.  A
	// malformed encoding yields an error with CodeRecordDecode.
	ExperimentalMethods() ([]string, error)
}

// FirstModelChainCount returns the number of chains in model 0, or 0 when the
// record has no models.
func FirstModelChainCount(r Record) int {
	cpm := r.ChainsPerModel()
	if len(cpm) == 0 {
		return 0
	}
	return cpm[0]
}

// ─────────────────────────────────────────────────────────────────────────────
// Entry
// ─────────────────────────────────────────────────────────────────────────────

// Chain is one chain of an Entry.
type Chain struct {
	ID          string      `json:"id"`
	Polymer     bool        `json:"polymer"`
	LinkageType LinkageType `json:"linkage_type,omitempty"`
}

// Entry is a plain in-memory Record, decoded from JSON by the record source.
type Entry struct {
	ID                 string   `json:"structure_id"`
	ChainsPerModelList []int    `json:"chains_per_model"`
	Chains             []Chain  `json:"chains"`
	EntityList         []Entity `json:"entities"`
	Methods            []string `json:"experimental_methods"`
}

var _ Record = (*Entry)(nil)

func (e *Entry) StructureID() string   { return e.ID }
func (e *Entry) NumChains() int        { return len(e.Chains) }
func (e *Entry) ChainsPerModel() []int { return e.ChainsPerModelList }
func (e *Entry) Entities() []Entity    { return e.EntityList }

func (e *Entry) ChainLinkageType(i int) (LinkageType, bool) {
	if i < 0 || i >= len(e.Chains) {
		return "", false
	}
	c := e.Chains[i]
	if !c.Polymer {
		return "", false
	}
	return c.LinkageType, true
}

func (e *Entry) ExperimentalMethods() ([]string, error) {
	out := make([]string, len(e.Methods))
	for i, m := range e.Methods {
		if m == "" || !utf8.ValidString(m) || strings.ContainsRune(m, utf8.RuneError) {
			return nil, errors.New(errors.CodeRecordDecode, "malformed experimental method").
				WithDetail(fmt.Sprintf("structure %s, method %d: %q", e.ID, i, m))
		}
		out[i] = m
	}
	return out, nil
}

// Normalize fills defaults left out of compact encodings: a record without
// chains_per_model is treated as a single model holding every chain, and
// linkage types are upper-cased.
func (e *Entry) Normalize() {
	if len(e.ChainsPerModelList) == 0 && len(e.Chains) > 0 {
		e.ChainsPerModelList = []int{len(e.Chains)}
	}
	for i := range e.Chains {
		e.Chains[i].LinkageType = LinkageType(strings.ToUpper(string(e.Chains[i].LinkageType)))
	}
}

// Validate checks the structural constraints filters rely on: the models
// account for every chain, polymer chains carry a known linkage type, and the
// entity chain lists partition [0, NumChains) exactly once.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return errors.New(errors.CodeRecordDecode, "structure id is required")
	}
	total := 0
	for m, n := range e.ChainsPerModelList {
		if n < 0 {
			return errors.Newf(errors.CodeRecordDecode, "%s: model %d has negative chain count %d", e.ID, m, n)
		}
		total += n
	}
	if total != len(e.Chains) {
		return errors.Newf(errors.CodeRecordDecode,
			"%s: chains_per_model sums to %d, record has %d chains", e.ID, total, len(e.Chains))
	}
	for i, c := range e.Chains {
		if !c.Polymer {
			continue
		}
		if _, err := ParseLinkageType(string(c.LinkageType)); err != nil {
			return errors.Wrap(err, errors.CodeRecordDecode, fmt.Sprintf("%s: chain %d", e.ID, i))
		}
	}
	if len(e.EntityList) == 0 {
		return nil
	}
	owner := make([]int, len(e.Chains))
	for i := range owner {
		owner[i] = -1
	}
	for ent, entity := range e.EntityList {
		for _, c := range entity.ChainIndexList {
			if c < 0 || c >= len(e.Chains) {
				return errors.Newf(errors.CodeRecordDecode,
					"%s: entity %d references chain %d outside [0, %d)", e.ID, ent, c, len(e.Chains))
			}
			if owner[c] != -1 {
				return errors.Newf(errors.CodeRecordDecode,
					"%s: chain %d belongs to entities %d and %d", e.ID, c, owner[c], ent)
			}
			owner[c] = ent
		}
	}
	for c, ent := range owner {
		if ent == -1 {
			return errors.Newf(errors.CodeRecordDecode, "%s: chain %d belongs to no entity", e.ID, c)
		}
	}
	return nil
}
