// Package fri implements the FRI low degree test over a multiplicative
// coset. The prover repeatedly folds a committed codeword in half with
// transcript-derived randomness until the claimed degree drops below a
// remainder threshold, then sends the remainder polynomial in the clear.
// The verifier checks a handful of spot positions through every fold and
// evaluates the remainder itself.
package fri

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/piniom/ministark/merkle"
)

var (
	ErrInvalidParameters = errors.New("invalid fri parameters")
	ErrInvalidProof      = errors.New("invalid fri proof")
	ErrFoldingMismatch   = errors.New("folded value does not match the next layer")
	ErrRemainderMismatch = errors.New("remainder polynomial does not match the folded values")
	ErrRemainderDegree   = errors.New("remainder polynomial exceeds the degree bound")
)

// Parameters fixes the shape of a FRI instance. The codeword always folds
// in half: each committed layer is twice as short as the previous one.
type Parameters struct {
	// Blowup is the inverse rate of the codeword: a layer of size m claims a
	// polynomial of degree below m/Blowup.
	Blowup int
	// MaxRemainderCoeffs stops the folding once the claimed degree bound
	// reaches this many coefficients.
	MaxRemainderCoeffs int
}

// Validate checks the parameters are usable.
func (p Parameters) Validate() error {
	if p.Blowup < 2 || p.Blowup&(p.Blowup-1) != 0 {
		return fmt.Errorf("%w: blowup must be a power of two at least 2", ErrInvalidParameters)
	}
	if p.MaxRemainderCoeffs < 1 || p.MaxRemainderCoeffs&(p.MaxRemainderCoeffs-1) != 0 {
		return fmt.Errorf("%w: max remainder size must be a power of two at least 1", ErrInvalidParameters)
	}
	return nil
}

// NbLayers returns how many folds, hence how many committed layers, a
// codeword of the given size goes through before the remainder is sent.
func (p Parameters) NbLayers(domainSize uint64) int {
	n := 0
	for d := domainSize / uint64(p.Blowup); d > uint64(p.MaxRemainderCoeffs); d /= 2 {
		n++
	}
	return n
}

// RemainderLength returns the exact number of coefficients of the remainder
// polynomial for the given codeword size.
func (p Parameters) RemainderLength(domainSize uint64) int {
	d := domainSize / uint64(p.Blowup)
	for d > uint64(p.MaxRemainderCoeffs) {
		d /= 2
	}
	return int(d)
}

// ChallengeNames returns the transcript challenge identifiers of the folding
// randomness, in derivation order. The caller registers them between its own
// upstream and downstream challenges.
func ChallengeNames(nbLayers int) []string {
	names := make([]string, nbLayers)
	for i := range names {
		names[i] = alphaName(i)
	}
	return names
}

func alphaName(i int) string {
	return fmt.Sprintf("fri.alpha.%d", i)
}

// LayerOpening opens a committed layer at the spot-check positions. Values
// are in the canonical order of the opened position set of that layer.
type LayerOpening struct {
	Values []fr.Element
	Proof  merkle.Proof
}

// Proof is the non-interactive FRI proof: one root and one batched opening
// per committed layer, plus the remainder polynomial.
type Proof struct {
	LayerRoots [][]byte
	Layers     []LayerOpening
	Remainder  []fr.Element
}

// layerPositions maps the layer-0 query positions onto the position set
// opened in layer i: for each query both fold siblings are opened.
func layerPositions(positions []uint64, layerSize uint64) []uint64 {
	half := layerSize / 2
	out := make([]uint64, 0, 2*len(positions))
	for _, p := range positions {
		q := p % layerSize
		out = append(out, q, q^half)
	}
	return merkle.CanonicalIndices(out)
}
