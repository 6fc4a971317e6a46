// Package lde performs the low degree extension of trace and composition
// columns: interpolation on the trace domain followed by evaluation on a
// disjoint multiplicative coset blown up by a power-of-two factor. The
// hot transforms run either on the CPU through gnark-crypto's FFT or, when
// built with the icicle tag and requested, on a CUDA device.
package lde

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
	"golang.org/x/sync/errgroup"

	"github.com/piniom/ministark/internal/utils"
	"github.com/piniom/ministark/logger"
)

var ErrInvalidDomain = errors.New("domain sizes must be powers of two")

// AcceleratorIcicle is the accelerator name selecting the CUDA path.
const AcceleratorIcicle = "icicle"

// Extender owns the trace domain and its blown-up coset and moves columns
// between them.
type Extender struct {
	domainSmall *fft.Domain
	domainBig   *fft.Domain

	blowup  int
	nbTasks int

	useDevice bool
	device    *deviceCtx
}

// NewExtender builds the domain pair for a trace of length traceLen extended
// by blowup. Both must be powers of two.
func NewExtender(traceLen, blowup, nbTasks int, accelerator string) (*Extender, error) {
	if traceLen <= 0 || traceLen&(traceLen-1) != 0 || blowup <= 1 || blowup&(blowup-1) != 0 {
		return nil, ErrInvalidDomain
	}
	e := &Extender{
		domainSmall: fft.NewDomain(uint64(traceLen)),
		domainBig:   fft.NewDomain(uint64(traceLen * blowup)),
		blowup:      blowup,
		nbTasks:     nbTasks,
	}
	if accelerator == AcceleratorIcicle {
		if HasIcicle {
			e.useDevice = true
		} else {
			log := logger.Logger()
			log.Warn().Msg("icicle acceleration requested but the binary was built without the icicle tag, falling back to CPU")
		}
	}
	return e, nil
}

// TraceDomain returns the trace interpolation domain.
func (e *Extender) TraceDomain() *fft.Domain { return e.domainSmall }

// LDEDomain returns the blown-up coset evaluation domain.
func (e *Extender) LDEDomain() *fft.Domain { return e.domainBig }

// BlowupFactor returns the ratio between the two domain sizes. It is also
// the index step between consecutive trace rows inside the extended domain.
func (e *Extender) BlowupFactor() int { return e.blowup }

// LDESize returns the size of the extended domain.
func (e *Extender) LDESize() uint64 { return e.domainBig.Cardinality }

// ExtendColumns interpolates every column on the trace domain and evaluates
// it on the coset. The input columns are left untouched.
func (e *Extender) ExtendColumns(cols [][]fr.Element) ([][]fr.Element, error) {
	coeffs := make([][]fr.Element, len(cols))
	var g errgroup.Group
	for i := range cols {
		g.Go(func() error {
			c := make([]fr.Element, len(cols[i]))
			copy(c, cols[i])
			e.domainSmall.FFTInverse(c, fft.DIF)
			fft.BitReverse(c)
			coeffs[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return e.ExtendFromCoefficients(coeffs)
}

// ExtendFromCoefficients evaluates polynomials given in coefficient form on
// the coset. Each polynomial may have at most the trace domain's size of
// coefficients; the headroom up to the extended size is zero padded.
func (e *Extender) ExtendFromCoefficients(coeffs [][]fr.Element) ([][]fr.Element, error) {
	if e.useDevice {
		return e.extendFromCoefficientsDevice(coeffs)
	}
	n := e.domainBig.Cardinality
	res := make([][]fr.Element, len(coeffs))
	var g errgroup.Group
	for i := range coeffs {
		g.Go(func() error {
			if uint64(len(coeffs[i])) > n {
				return ErrInvalidDomain
			}
			buf := make([]fr.Element, n)
			copy(buf, coeffs[i])
			e.domainBig.FFT(buf, fft.DIF, fft.OnCoset())
			fft.BitReverse(buf)
			res[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// InterpolateCoset turns evaluations on the coset back into natural-order
// coefficients. The input is left untouched.
func (e *Extender) InterpolateCoset(evals []fr.Element) []fr.Element {
	c := make([]fr.Element, len(evals))
	copy(c, evals)
	e.domainBig.FFTInverse(c, fft.DIF, fft.OnCoset())
	fft.BitReverse(c)
	return c
}

// Interpolate returns the coefficients of the polynomial taking the given
// values on the trace domain.
func (e *Extender) Interpolate(col []fr.Element) []fr.Element {
	c := make([]fr.Element, len(col))
	copy(c, col)
	e.domainSmall.FFTInverse(c, fft.DIF)
	fft.BitReverse(c)
	return c
}

// CosetPoints returns every point of the extended domain in index order.
func (e *Extender) CosetPoints() []fr.Element {
	n := int(e.domainBig.Cardinality)
	res := make([]fr.Element, n)
	utils.Parallelize(n, func(start, end int) {
		p := CosetPoint(e.domainBig, uint64(start))
		for i := start; i < end; i++ {
			res[i] = p
			p.Mul(&p, &e.domainBig.Generator)
		}
	}, e.nbTasks)
	return res
}

// EvaluateXnMinusOneOnCoset evaluates Xⁿ-1, n the trace domain size, on the
// coset. The result is periodic with period blowup, so only the first
// blowup values are returned; index i of the full domain maps to i%blowup.
func (e *Extender) EvaluateXnMinusOneOnCoset() []fr.Element {
	ratio := e.domainBig.Cardinality / e.domainSmall.Cardinality

	res := make([]fr.Element, ratio)
	expo := new(big.Int).SetUint64(e.domainSmall.Cardinality)
	res[0].Exp(e.domainBig.FrMultiplicativeGen, expo)

	var t fr.Element
	t.Exp(e.domainBig.Generator, new(big.Int).SetUint64(e.domainSmall.Cardinality))

	for i := 1; i < int(ratio); i++ {
		res[i].Mul(&res[i-1], &t)
	}

	var one fr.Element
	one.SetOne()
	for i := 0; i < int(ratio); i++ {
		res[i].Sub(&res[i], &one)
	}

	return res
}

// CosetPoint returns the i-th point of domain's coset, shift·generatorⁱ.
func CosetPoint(domain *fft.Domain, i uint64) fr.Element {
	var p fr.Element
	p.Exp(domain.Generator, new(big.Int).SetUint64(i))
	p.Mul(&p, &domain.FrMultiplicativeGen)
	return p
}
