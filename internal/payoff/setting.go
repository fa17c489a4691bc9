// Package payoff encodes reward-generating settings for the event log and
// rebuilds the reward distributions from them.
package payoff

import (
	"math"

	"github.com/shopspring/decimal"

	sperrors "github.com/octomike/sp-experiment/internal/errors"
)

// Setting is a payoff setting in construction order:
// mag0_1, mag0_2, prob0_1, prob0_2, mag1_1, mag1_2, prob1_1, prob1_2.
type Setting [8]float64

// Columns is a payoff setting in log column order:
// mag0_1, prob0_1, mag0_2, prob0_2, mag1_1, prob1_1, mag1_2, prob1_2.
type Columns [8]float64

// ColumnNames are the log headers of Columns, in order.
var ColumnNames = [8]string{"mag0_1", "prob0_1", "mag0_2", "prob0_2", "mag1_1", "prob1_1", "mag1_2", "prob1_2"}

// columnOrder maps between Setting and Columns. It is its own inverse.
var columnOrder = [8]int{0, 2, 1, 3, 4, 6, 5, 7}

const (
	minMagnitude = 1
	maxMagnitude = 99
	probEpsilon  = 1e-9
)

// Columns returns s in log column order.
func (s Setting) Columns() Columns {
	var c Columns
	for i, j := range columnOrder {
		c[i] = s[j]
	}
	return c
}

// Validate checks the rounding contract and per-option invariants.
func (s Setting) Validate() error {
	return s.Columns().Validate()
}

// Matrix reshapes s into a single-row 2D setting.
func (s Setting) Matrix() [][]float64 {
	row := make([]float64, len(s))
	copy(row, s[:])
	return [][]float64{row}
}

// Magnitudes returns the two magnitudes of option.
func (s Setting) Magnitudes(option int) [2]float64 {
	return [2]float64{s[option*4], s[option*4+1]}
}

// Probabilities returns the two probabilities of option.
func (s Setting) Probabilities(option int) [2]float64 {
	return [2]float64{s[option*4+2], s[option*4+3]}
}

// ExpectedValue is the mean reward of option.
func (s Setting) ExpectedValue(option int) float64 {
	m := s.Magnitudes(option)
	p := s.Probabilities(option)
	return m[0]*p[0] + m[1]*p[1]
}

// Unflatten converts stored columns back to construction order.
func Unflatten(c Columns) (Setting, error) {
	if err := c.Validate(); err != nil {
		return Setting{}, err
	}
	var s Setting
	for i, j := range columnOrder {
		s[i] = c[j]
	}
	return s, nil
}

// Validate checks every value against the rounding contract, that the
// magnitudes of an option differ, and that its probabilities sum to 1.
func (c Columns) Validate() error {
	for i, v := range c {
		var err error
		if i%2 == 0 {
			err = checkMagnitude(v)
		} else {
			err = checkProbability(v)
		}
		if err != nil {
			return sperrors.Wrap(sperrors.EEncoding, ColumnNames[i], err)
		}
	}
	for option := 0; option < 2; option++ {
		base := option * 4
		if c[base] == c[base+2] {
			return sperrors.Newf(sperrors.EEncoding, "option %d: magnitudes must differ, both are %s", option, Format(c[base]))
		}
		if sum := c[base+1] + c[base+3]; math.Abs(sum-1) > probEpsilon {
			return sperrors.Newf(sperrors.EEncoding, "option %d: probabilities sum to %v", option, sum)
		}
	}
	return nil
}

// Format renders v as its shortest exact decimal string.
func Format(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// checkMagnitude accepts integers in [minMagnitude, maxMagnitude]. They
// render unpadded, so a single-digit magnitude is one character wide.
func checkMagnitude(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sperrors.Newf(sperrors.EEncoding, "magnitude %v is not finite", v)
	}
	d := decimal.NewFromFloat(v)
	if !d.IsInteger() || v < minMagnitude || v > maxMagnitude {
		return sperrors.Newf(sperrors.EEncoding, "magnitude %s must be an integer in [%d, %d]", d.String(), minMagnitude, maxMagnitude)
	}
	return nil
}

func checkProbability(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sperrors.Newf(sperrors.EEncoding, "probability %v is not finite", v)
	}
	str := decimal.NewFromFloat(v).String()
	if v <= 0 || v >= 1 || len(str) != 3 {
		return sperrors.Newf(sperrors.EEncoding, "probability %s does not render as 0.x", str)
	}
	return nil
}
