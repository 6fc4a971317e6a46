package fri

import (
	"errors"
	"fmt"
	"hash"
	"math/big"
	"slices"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
	"github.com/piniom/ministark/fiatshamir"
	"github.com/piniom/ministark/merkle"
)

// Verifier checks a Proof against the layer roots bound to the transcript.
type Verifier struct {
	params     Parameters
	hashFn     func() hash.Hash
	domainSize uint64
	shift      fr.Element
	generator  fr.Element

	alphas   []fr.Element
	roots    [][]byte
	replayed bool
}

// NewVerifier prepares a verifier for codewords evaluated over the coset of
// domain.
func NewVerifier(params Parameters, hashFn func() hash.Hash, domain *fft.Domain) (*Verifier, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	v := &Verifier{
		params:     params,
		hashFn:     hashFn,
		domainSize: domain.Cardinality,
	}
	v.shift.Set(&domain.FrMultiplicativeGen)
	v.generator.Set(&domain.Generator)
	return v, nil
}

// ReplayChallenges binds the layer roots to the transcript in commit order
// and re-derives the folding randomness. It must run before Verify, at the
// same transcript position the prover committed at.
func (v *Verifier) ReplayChallenges(fs *fiatshamir.Transcript, layerRoots [][]byte) error {
	nbLayers := v.params.NbLayers(v.domainSize)
	if len(layerRoots) != nbLayers {
		return fmt.Errorf("%w: got %d layer roots, expected %d", ErrInvalidProof, len(layerRoots), nbLayers)
	}
	v.alphas = make([]fr.Element, nbLayers)
	v.roots = layerRoots
	for i, root := range layerRoots {
		if err := fs.Bind(alphaName(i), root); err != nil {
			return err
		}
		alpha, err := fs.ChallengeFieldElement(alphaName(i))
		if err != nil {
			return err
		}
		v.alphas[i] = alpha
	}
	v.replayed = true
	return nil
}

// Verify checks the openings against the committed roots, walks every query
// through the folding chain and evaluates the remainder polynomial at the
// final positions. expected[j] is the layer 0 value the caller established
// for positions[j] by other means.
func (v *Verifier) Verify(proof *Proof, positions []uint64, expected []fr.Element) error {
	if !v.replayed {
		return errors.New("challenges have not been replayed")
	}
	if len(positions) == 0 || len(positions) != len(expected) {
		return fmt.Errorf("%w: positions and expected values mismatch", ErrInvalidProof)
	}
	nbLayers := v.params.NbLayers(v.domainSize)
	if len(proof.Layers) != nbLayers || len(proof.LayerRoots) != nbLayers {
		return fmt.Errorf("%w: wrong number of layers", ErrInvalidProof)
	}
	remLen := v.params.RemainderLength(v.domainSize)
	if len(proof.Remainder) != remLen {
		return fmt.Errorf("%w: remainder has %d coefficients, expected %d", ErrRemainderDegree, len(proof.Remainder), remLen)
	}
	for _, q := range positions {
		if q >= v.domainSize {
			return fmt.Errorf("%w: query position %d out of range", ErrInvalidProof, q)
		}
	}

	var twoInv, shiftInv, genInv fr.Element
	twoInv.SetUint64(2)
	twoInv.Inverse(&twoInv)
	shiftInv.Inverse(&v.shift)
	genInv.Inverse(&v.generator)
	shift := v.shift
	gen := v.generator

	current := slices.Clone(expected)
	size := v.domainSize
	for i := 0; i < nbLayers; i++ {
		opening := &proof.Layers[i]
		ps := layerPositions(positions, size)
		if len(opening.Values) != len(ps) {
			return fmt.Errorf("%w: layer %d opens %d values, expected %d", ErrInvalidProof, i, len(opening.Values), len(ps))
		}
		leaves := make([][]byte, len(ps))
		for j := range ps {
			leaves[j] = merkle.LeafBytes(opening.Values[j : j+1])
		}
		if err := merkle.VerifyProof(v.roots[i], ps, leaves, &opening.Proof, v.hashFn, size); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}

		half := size / 2
		var alphaHalf fr.Element
		alphaHalf.Mul(&v.alphas[i], &twoInv)
		for j := range positions {
			q := positions[j] % size
			low := q
			if low >= half {
				low -= half
			}
			v0, err := openedValue(ps, opening.Values, low)
			if err != nil {
				return err
			}
			v1, err := openedValue(ps, opening.Values, low+half)
			if err != nil {
				return err
			}
			at := v0
			if q >= half {
				at = v1
			}
			if !at.Equal(&current[j]) {
				if i == 0 {
					return fmt.Errorf("%w: layer 0 does not match the expected codeword at position %d", ErrInvalidProof, q)
				}
				return fmt.Errorf("%w: layer %d, position %d", ErrFoldingMismatch, i, q)
			}
			var xInv, sum, diff fr.Element
			xInv.Exp(genInv, new(big.Int).SetUint64(low))
			xInv.Mul(&xInv, &shiftInv)
			sum.Add(&v0, &v1)
			sum.Mul(&sum, &twoInv)
			diff.Sub(&v0, &v1)
			diff.Mul(&diff, &xInv).Mul(&diff, &alphaHalf)
			current[j].Add(&sum, &diff)
		}
		size = half
		shiftInv.Square(&shiftInv)
		genInv.Square(&genInv)
		shift.Square(&shift)
		gen.Square(&gen)
	}

	// current[j] now claims the evaluation of the remainder polynomial at the
	// fully folded position of query j.
	for j := range positions {
		l := positions[j] % size
		var x fr.Element
		x.Exp(gen, new(big.Int).SetUint64(l))
		x.Mul(&x, &shift)
		val := evalPolynomial(proof.Remainder, x)
		if !val.Equal(&current[j]) {
			return fmt.Errorf("%w: query position %d", ErrRemainderMismatch, positions[j])
		}
	}
	return nil
}

func openedValue(ps []uint64, values []fr.Element, q uint64) (fr.Element, error) {
	k, found := slices.BinarySearch(ps, q)
	if !found {
		return fr.Element{}, fmt.Errorf("%w: position %d not opened", ErrInvalidProof, q)
	}
	return values[k], nil
}

func evalPolynomial(coeffs []fr.Element, x fr.Element) fr.Element {
	var res fr.Element
	for i := len(coeffs) - 1; i >= 0; i-- {
		res.Mul(&res, &x).Add(&res, &coeffs[i])
	}
	return res
}
