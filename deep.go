package ministark

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
	"github.com/piniom/ministark/air"
	"github.com/piniom/ministark/internal/lde"
	"github.com/piniom/ministark/internal/utils"
)

// computeDeep evaluates the deep composition codeword over the evaluation
// coset. Every committed column contributes two quotients pinning its value
// at the out of domain point and its shift, the composition columns one
// quotient each at z^width:
//
//	Σ γᶜ·(Tᶜ(X)-Tᶜ(z))/(X-z) + Σ γ'ᶜ·(Tᶜ(X)-Tᶜ(g·z))/(X-g·z) + Σ δᵐ·(Cᵐ(X)-Cᵐ(zᵂ))/(X-zᵂ)
//
// The result has degree below the trace length whenever the claimed out of
// domain values are the true ones.
func (s *prover) computeDeep() []fr.Element {
	tc := s.air.TotalColumns()
	width := s.air.CompositionWidth()
	nbPoints := int(s.extender.LDESize())
	xs := s.extender.CosetPoints()

	var gz, zd fr.Element
	gz.Mul(&s.z, &s.extender.TraceDomain().Generator)
	zd.Exp(s.z, big.NewInt(int64(width)))

	// all three denominator families inverted in a single batch
	den := make([]fr.Element, 3*nbPoints)
	utils.Parallelize(nbPoints, func(start, end int) {
		for j := start; j < end; j++ {
			den[j].Sub(&xs[j], &s.z)
			den[nbPoints+j].Sub(&xs[j], &gz)
			den[2*nbPoints+j].Sub(&xs[j], &zd)
		}
	}, s.cfg.NbTasks)
	den = fr.BatchInvert(den)

	gammas := s.deepCoeffs[:tc]
	gammasNext := s.deepCoeffs[tc : 2*tc]
	deltas := s.deepCoeffs[2*tc:]

	res := make([]fr.Element, nbPoints)
	utils.Parallelize(nbPoints, func(start, end int) {
		var t fr.Element
		for j := start; j < end; j++ {
			for c := 0; c < tc; c++ {
				t.Sub(&s.columnsLDE[c][j], &s.oodTrace[c])
				t.Mul(&t, &gammas[c])
				t.Mul(&t, &den[j])
				res[j].Add(&res[j], &t)

				t.Sub(&s.columnsLDE[c][j], &s.oodTrace[tc+c])
				t.Mul(&t, &gammasNext[c])
				t.Mul(&t, &den[nbPoints+j])
				res[j].Add(&res[j], &t)
			}
			for m := 0; m < width; m++ {
				t.Sub(&s.compLDE[m][j], &s.oodComp[m])
				t.Mul(&t, &deltas[m])
				t.Mul(&t, &den[2*nbPoints+j])
				res[j].Add(&res[j], &t)
			}
		}
	}, s.cfg.NbTasks)
	return res
}

// deepQueryValues recomputes the deep codeword at the queried positions from
// the opened trace and composition rows, the way the prover built it. Row
// shapes must have been validated against the schema beforehand.
func deepQueryValues(a *air.Air, proof *Proof, positions []uint64, domain *fft.Domain, traceGen, z fr.Element, deepCoeffs []fr.Element) []fr.Element {
	tc := a.TotalColumns()
	width := a.CompositionWidth()
	nbPos := len(positions)

	var gz, zd fr.Element
	gz.Mul(&z, &traceGen)
	zd.Exp(z, big.NewInt(int64(width)))

	den := make([]fr.Element, 3*nbPos)
	for i, p := range positions {
		x := lde.CosetPoint(domain, p)
		den[i].Sub(&x, &z)
		den[nbPos+i].Sub(&x, &gz)
		den[2*nbPos+i].Sub(&x, &zd)
	}
	den = fr.BatchInvert(den)

	gammas := deepCoeffs[:tc]
	gammasNext := deepCoeffs[tc : 2*tc]
	deltas := deepCoeffs[2*tc:]

	res := make([]fr.Element, nbPos)
	var t, cell fr.Element
	for i := range positions {
		for c := 0; c < tc; c++ {
			if c < a.NbColumns {
				cell = proof.Base.Rows[i][c]
			} else {
				cell = proof.Aux.Rows[i][c-a.NbColumns]
			}

			t.Sub(&cell, &proof.OodTrace[c])
			t.Mul(&t, &gammas[c])
			t.Mul(&t, &den[i])
			res[i].Add(&res[i], &t)

			t.Sub(&cell, &proof.OodTrace[tc+c])
			t.Mul(&t, &gammasNext[c])
			t.Mul(&t, &den[nbPos+i])
			res[i].Add(&res[i], &t)
		}
		for m := 0; m < width; m++ {
			t.Sub(&proof.Composition.Rows[i][m], &proof.OodComposition[m])
			t.Mul(&t, &deltas[m])
			t.Mul(&t, &den[2*nbPos+i])
			res[i].Add(&res[i], &t)
		}
	}
	return res
}

// evalPolynomial evaluates the polynomial with the given coefficients at x
// using Horner's rule.
func evalPolynomial(coeffs []fr.Element, x fr.Element) fr.Element {
	var res fr.Element
	for i := len(coeffs) - 1; i >= 0; i-- {
		res.Mul(&res, &x)
		res.Add(&res, &coeffs[i])
	}
	return res
}
