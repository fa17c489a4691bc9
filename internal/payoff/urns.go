package payoff

import (
	"math"
	"math/rand"

	sperrors "github.com/octomike/sp-experiment/internal/errors"
)

// urnSize is the number of equally likely draws per option; probabilities
// have one decimal digit.
const urnSize = 10

// Urns holds, per option, the equally likely magnitudes a draw picks from.
type Urns [2][]float64

// Flatten recovers the stored columns from the urns. Magnitudes keep their
// order of first appearance; a probability is count/len of its magnitude.
func Flatten(u Urns) (Columns, error) {
	var c Columns
	for option, draws := range u {
		if len(draws) == 0 {
			return Columns{}, sperrors.Newf(sperrors.EEncoding, "option %d has no draws", option)
		}
		var mags []float64
		counts := map[float64]int{}
		for _, v := range draws {
			if _, ok := counts[v]; !ok {
				mags = append(mags, v)
			}
			counts[v]++
		}
		if len(mags) != 2 {
			return Columns{}, sperrors.Newf(sperrors.EEncoding, "option %d has %d distinct magnitudes, want 2", option, len(mags))
		}
		for i, m := range mags {
			c[option*4+i*2] = m
			c[option*4+i*2+1] = float64(counts[m]) / float64(len(draws))
		}
	}
	if err := c.Validate(); err != nil {
		return Columns{}, err
	}
	return c, nil
}

// Urns lays out each option as prob*10 copies of its first magnitude
// followed by its second.
func (s Setting) Urns() (Urns, error) {
	if err := s.Validate(); err != nil {
		return Urns{}, err
	}
	var u Urns
	for option := 0; option < 2; option++ {
		mags := s.Magnitudes(option)
		probs := s.Probabilities(option)
		draws := make([]float64, 0, urnSize)
		for i := range mags {
			n := int(math.Round(probs[i] * urnSize))
			for k := 0; k < n; k++ {
				draws = append(draws, mags[i])
			}
		}
		u[option] = draws
	}
	return u, nil
}

// Distributions draws rewards for the two options of one setting.
type Distributions struct {
	setting Setting
	urns    Urns
	rnd     *rand.Rand
}

// Build regenerates the reward distributions of a stored setting.
func Build(s Setting, rnd *rand.Rand) (*Distributions, error) {
	u, err := s.Urns()
	if err != nil {
		return nil, err
	}
	return &Distributions{setting: s, urns: u, rnd: rnd}, nil
}

// Draw returns one reward from option 0 or 1.
func (d *Distributions) Draw(option int) (float64, error) {
	if option < 0 || option > 1 {
		return 0, sperrors.Newf(sperrors.EInvalidState, "no option %d", option)
	}
	draws := d.urns[option]
	return draws[d.rnd.Intn(len(draws))], nil
}

// Setting returns the setting the distributions were built from.
func (d *Distributions) Setting() Setting {
	return d.setting
}

// Urns returns a copy of the urns, as logged with the trial.
func (d *Distributions) Urns() Urns {
	var u Urns
	for i := range d.urns {
		u[i] = append([]float64(nil), d.urns[i]...)
	}
	return u
}
