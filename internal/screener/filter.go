package screener

import (
	"math/rand/v2"

	"github.com/seenimoa/chartscout/pkg/models"
)

// Passes reports whether an instrument clears the liquidity, price and
// percent-change band.
func (t Thresholds) Passes(inst models.Instrument) bool {
	if inst.Volume < t.MinVolume || inst.Close < t.MinPrice {
		return false
	}
	if inst.ChangePct < t.MinPctChange {
		return false
	}
	return t.MaxPctChange == 0 || inst.ChangePct <= t.MaxPctChange
}

// Filter returns the instruments that pass t, in input order. It does not
// modify its input.
func Filter(instruments []models.Instrument, t Thresholds) []models.Instrument {
	out := make([]models.Instrument, 0, len(instruments))
	for _, inst := range instruments {
		if t.Passes(inst) {
			out = append(out, inst)
		}
	}
	return out
}

// Sample draws n distinct instruments uniformly without replacement, in draw
// order. When n <= 0 or n >= len(in) the input is returned unchanged.
func Sample(in []models.Instrument, n int, rng *rand.Rand) []models.Instrument {
	if n <= 0 || n >= len(in) {
		return in
	}
	out := make([]models.Instrument, n)
	for i, idx := range rng.Perm(len(in))[:n] {
		out[i] = in[idx]
	}
	return out
}
