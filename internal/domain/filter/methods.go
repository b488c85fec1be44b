package filter

import (
	"sort"
	"strings"

	"github.com/turtacn/PDB-Sieve/pkg/types/structure"
)

// Experimental method names as recorded in mmCIF _exptl.method.
const (
	ElectronCrystallography = "ELECTRON CRYSTALLOGRAPHY"
	ElectronMicroscopy      = "ELECTRON MICROSCOPY"
	EPR                     = "EPR"
	FiberDiffraction        = "FIBER DIFFRACTION"
	FluorescenceTransfer    = "FLUORESCENCE TRANSFER"
	InfraredSpectroscopy    = "INFRARED SPECTROSCOPY"
	NeutronDiffraction      = "NEUTRON DIFFRACTION"
	PowderDiffraction       = "POWDER DIFFRACTION"
	SolidStateNMR           = "SOLID-STATE NMR"
	SolutionNMR             = "SOLUTION NMR"
	SolutionScattering      = "SOLUTION SCATTERING"
	TheoreticalModel        = "THEORETICAL MODEL"
	XRayDiffraction         = "X-RAY DIFFRACTION"
)

// ExperimentalMethods retains entries whose recorded experimental methods are
// exactly the configured set: same length and same names.  Recorded names are
// upper-cased before the comparison; configured names are used as given, so
// they must be spelled like the method constants.  A hybrid X-ray/neutron
// entry does not pass a filter for X-ray alone.
type ExperimentalMethods struct {
	methods []string
}

// NewExperimentalMethods builds the filter.  The names are sorted once here.
func NewExperimentalMethods(methods ...string) *ExperimentalMethods {
	sorted := append([]string(nil), methods...)
	sort.Strings(sorted)
	return &ExperimentalMethods{methods: sorted}
}

// Methods returns the configured method list in sorted order.
func (m *ExperimentalMethods) Methods() []string {
	return append([]string(nil), m.methods...)
}

func (m *ExperimentalMethods) Evaluate(_ string, rec structure.Record) (bool, error) {
	recorded, err := rec.ExperimentalMethods()
	if err != nil {
		return false, err
	}
	if len(recorded) != len(m.methods) {
		return false, nil
	}
	got := NormalizeMethods(recorded)
	for i := range got {
		if got[i] != m.methods[i] {
			return false, nil
		}
	}
	return true, nil
}

func (m *ExperimentalMethods) String() string {
	return "ExperimentalMethods[" + strings.Join(m.methods, ", ") + "]"
}

// NormalizeMethods upper-cases, trims and sorts method names the way
// recorded methods are compared.
func NormalizeMethods(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	sort.Strings(out)
	return out
}
