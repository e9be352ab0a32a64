package analytics

import (
	"encoding/json"
	"fmt"
	"io"
)

// CoefficientTable maps categorical race attributes (sport, surface, and
// whatever future cohort features need) to multipliers on running
// effectiveness. The source dataset's categorical encodings are not fully
// documented, so the table is versioned and loadable instead of hard-coded;
// unknown keys fall back to a neutral factor.
type CoefficientTable struct {
	Version string             `json:"version"`
	Factors map[string]float64 `json:"factors"`

	// RiegelExponent is the decay exponent used for athletes whose profile
	// does not carry one. Always negative.
	RiegelExponent float64 `json:"riegel_exponent"`
}

// defaultRiegelExponent matches the commonly cited endurance decay rate.
const defaultRiegelExponent = -0.07

// DefaultCoefficients returns the neutral built-in table.
func DefaultCoefficients() CoefficientTable {
	return CoefficientTable{
		Version:        "builtin-v1",
		Factors:        map[string]float64{},
		RiegelExponent: defaultRiegelExponent,
	}
}

// LoadCoefficients reads a JSON table.
func LoadCoefficients(r io.Reader) (CoefficientTable, error) {
	var table CoefficientTable
	if err := json.NewDecoder(r).Decode(&table); err != nil {
		return CoefficientTable{}, fmt.Errorf("decode coefficient table: %w", err)
	}
	if table.Version == "" {
		return CoefficientTable{}, fmt.Errorf("coefficient table missing version")
	}
	if table.Factors == nil {
		table.Factors = map[string]float64{}
	}
	if table.RiegelExponent > 0 {
		return CoefficientTable{}, fmt.Errorf("coefficient table riegel exponent must be negative")
	}
	if table.RiegelExponent == 0 {
		table.RiegelExponent = defaultRiegelExponent
	}
	return table, nil
}

// Factor returns the multiplier for a key, 1.0 when absent or non-positive.
func (t CoefficientTable) Factor(key string) float64 {
	if f, ok := t.Factors[key]; ok && f > 0 {
		return f
	}
	return 1.0
}
