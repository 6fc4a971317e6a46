package ministark

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/piniom/ministark/air"
	"github.com/piniom/ministark/internal/utils"
)

// evaluateComposition evaluates the constraint composition polynomial over
// the evaluation coset. Each constraint contributes
//
//	(αᵏ·X^aᵏ + βᵏ) · Eᵏ(X) / Zᵏ(X)
//
// where Eᵏ is the constraint expression over the trace columns, Zᵏ the
// vanishing polynomial of its domain and aᵏ the adjustment lifting the
// quotient to the target degree. Divisor inverses are batched per domain
// kind; none of them can vanish since the coset is disjoint from the trace
// domain.
func (s *prover) evaluateComposition() []fr.Element {
	n := uint64(s.air.TraceLen)
	nbPoints := int(s.extender.LDESize())
	blowup := s.options.Blowup
	lastRoot := s.extender.TraceDomain().GeneratorInv

	var needFirst, needLast, needTransition bool
	for i := range s.air.Constraints {
		switch s.air.Constraints[i].Domain {
		case air.FirstRow:
			needFirst = true
		case air.LastRow:
			needLast = true
		case air.Transition:
			needTransition = true
		}
	}

	xs := s.extender.CosetPoints()

	// (Xⁿ-1)⁻¹ has period blowup over the coset
	invZn := fr.BatchInvert(s.extender.EvaluateXnMinusOneOnCoset())

	var one fr.Element
	one.SetOne()
	var xMinusLast, invFirst, invLast []fr.Element
	if needLast || needTransition {
		xMinusLast = make([]fr.Element, nbPoints)
		utils.Parallelize(nbPoints, func(start, end int) {
			for j := start; j < end; j++ {
				xMinusLast[j].Sub(&xs[j], &lastRoot)
			}
		}, s.cfg.NbTasks)
	}
	if needLast {
		invLast = fr.BatchInvert(xMinusLast)
	}
	if needFirst {
		xMinusFirst := make([]fr.Element, nbPoints)
		utils.Parallelize(nbPoints, func(start, end int) {
			for j := start; j < end; j++ {
				xMinusFirst[j].Sub(&xs[j], &one)
			}
		}, s.cfg.NbTasks)
		invFirst = fr.BatchInvert(xMinusFirst)
	}

	// X^aᵏ at coset index j is shift^aᵏ·(w^aᵏ)ʲ, walked as a running product
	nbCons := len(s.air.Constraints)
	shiftPow := make([]fr.Element, nbCons)
	wStep := make([]fr.Element, nbCons)
	for k := 0; k < nbCons; k++ {
		adj := big.NewInt(int64(s.air.DegreeAdjustment(k)))
		shiftPow[k].Exp(s.extender.LDEDomain().FrMultiplicativeGen, adj)
		wStep[k].Exp(s.extender.LDEDomain().Generator, adj)
	}

	res := make([]fr.Element, nbPoints)
	utils.Parallelize(nbPoints, func(start, end int) {
		ctx := air.EvalContext{
			Row:          make([]fr.Element, len(s.columns)),
			NextRow:      make([]fr.Element, len(s.columns)),
			Challenges:   s.challenges,
			PublicInputs: s.publicInputs,
		}
		xPow := make([]fr.Element, nbCons)
		for k := range xPow {
			xPow[k].Exp(wStep[k], big.NewInt(int64(start)))
			xPow[k].Mul(&xPow[k], &shiftPow[k])
		}
		var e, term, dinv fr.Element
		for j := start; j < end; j++ {
			ctx.X = xs[j]
			next := (j + blowup) % nbPoints
			for c := range s.columnsLDE {
				ctx.Row[c] = s.columnsLDE[c][j]
				ctx.NextRow[c] = s.columnsLDE[c][next]
			}
			for k := 0; k < nbCons; k++ {
				cons := &s.air.Constraints[k]
				e = air.Eval(cons.Expr, &ctx)

				switch cons.Domain {
				case air.FirstRow:
					dinv = invFirst[j]
				case air.LastRow:
					dinv = invLast[j]
				case air.Transition:
					dinv.Mul(&invZn[j%blowup], &xMinusLast[j])
				default:
					dinv = invZn[j%blowup]
				}

				term.Mul(&s.compCoeffs[2*k], &xPow[k])
				term.Add(&term, &s.compCoeffs[2*k+1])
				term.Mul(&term, &e)
				term.Mul(&term, &dinv)
				res[j].Add(&res[j], &term)

				xPow[k].Mul(&xPow[k], &wStep[k])
			}
		}
	}, s.cfg.NbTasks)

	return res
}
