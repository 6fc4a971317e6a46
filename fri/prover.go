package fri

import (
	"errors"
	"fmt"
	"hash"
	"math/big"
	"runtime"
	"slices"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
	"github.com/piniom/ministark/debug"
	"github.com/piniom/ministark/fiatshamir"
	"github.com/piniom/ministark/internal/utils"
	"github.com/piniom/ministark/merkle"
)

// Prover runs the commit phase of the low degree test and answers the
// spot-check queries afterwards.
type Prover struct {
	params  Parameters
	hashFn  func() hash.Hash
	nbTasks int

	domainSize uint64
	layers     []proverLayer
	remainder  []fr.Element
}

// proverLayer retains a committed codeword so that openings can be produced
// once the query positions are known.
type proverLayer struct {
	codeword []fr.Element
	tree     *merkle.Tree
}

func NewProver(params Parameters, hashFn func() hash.Hash, nbTasks int) (*Prover, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if nbTasks <= 0 {
		nbTasks = runtime.NumCPU()
	}
	return &Prover{params: params, hashFn: hashFn, nbTasks: nbTasks}, nil
}

// Commit folds the codeword down to the remainder polynomial, committing
// every intermediate layer and drawing the folding randomness from fs.
// codeword and coeffs describe the same polynomial, evaluated over the coset
// of domain and in coefficient form. Neither slice is modified.
func (p *Prover) Commit(fs *fiatshamir.Transcript, codeword, coeffs []fr.Element, domain *fft.Domain) error {
	n := domain.Cardinality
	if uint64(len(codeword)) != n || uint64(len(coeffs)) != n {
		return fmt.Errorf("%w: codeword and coefficients must both have the domain size", ErrInvalidParameters)
	}
	if debug.Debug {
		for i := n / uint64(p.params.Blowup); i < n; i++ {
			debug.Assert(coeffs[i].IsZero(), "codeword exceeds its degree bound")
		}
	}
	p.domainSize = n
	nbLayers := p.params.NbLayers(n)
	p.layers = make([]proverLayer, 0, nbLayers)

	cw := slices.Clone(codeword)
	cf := slices.Clone(coeffs)

	var twoInv, shiftInv, genInv fr.Element
	twoInv.SetUint64(2)
	twoInv.Inverse(&twoInv)
	shiftInv.Inverse(&domain.FrMultiplicativeGen)
	genInv.Set(&domain.GeneratorInv)

	for i := 0; i < nbLayers; i++ {
		tree, err := p.commitLayer(cw)
		if err != nil {
			return err
		}
		if err := fs.Bind(alphaName(i), tree.Root()); err != nil {
			return err
		}
		alpha, err := fs.ChallengeFieldElement(alphaName(i))
		if err != nil {
			return err
		}
		p.layers = append(p.layers, proverLayer{codeword: cw, tree: tree})
		cw = foldCodeword(cw, alpha, shiftInv, genInv, twoInv, p.nbTasks)
		cf = foldCoefficients(cf, alpha)
		shiftInv.Square(&shiftInv)
		genInv.Square(&genInv)
	}

	remLen := p.params.RemainderLength(n)
	if debug.Debug {
		for i := remLen; i < len(cf); i++ {
			debug.Assert(cf[i].IsZero(), "remainder exceeds its degree bound")
		}
	}
	p.remainder = slices.Clone(cf[:remLen])
	return nil
}

// Remainder returns the coefficients of the final folded polynomial. It is
// only valid after Commit.
func (p *Prover) Remainder() []fr.Element {
	return p.remainder
}

func (p *Prover) commitLayer(codeword []fr.Element) (*merkle.Tree, error) {
	leaves := make([][]byte, len(codeword))
	utils.Parallelize(len(codeword), func(start, end int) {
		for j := start; j < end; j++ {
			leaves[j] = merkle.LeafBytes(codeword[j : j+1])
		}
	}, p.nbTasks)
	return merkle.NewTree(p.hashFn, leaves, p.nbTasks)
}

// Open answers the spot-check queries. Positions index the layer 0 codeword;
// every committed layer opens both fold siblings of every query.
func (p *Prover) Open(positions []uint64) (*Proof, error) {
	if p.remainder == nil {
		return nil, errors.New("commit phase has not run")
	}
	if len(positions) == 0 {
		return nil, errors.New("no query positions")
	}
	for _, q := range positions {
		if q >= p.domainSize {
			return nil, fmt.Errorf("query position %d out of range", q)
		}
	}

	proof := &Proof{
		LayerRoots: make([][]byte, len(p.layers)),
		Layers:     make([]LayerOpening, len(p.layers)),
		Remainder:  slices.Clone(p.remainder),
	}
	for i := range p.layers {
		layer := &p.layers[i]
		proof.LayerRoots[i] = layer.tree.Root()
		ps := layerPositions(positions, uint64(len(layer.codeword)))
		values := make([]fr.Element, len(ps))
		for j, q := range ps {
			values[j] = layer.codeword[q]
		}
		mp, err := layer.tree.Open(ps)
		if err != nil {
			return nil, err
		}
		proof.Layers[i] = LayerOpening{Values: values, Proof: *mp}
	}
	return proof, nil
}

// foldCodeword halves the codeword. Entry j of the result is the evaluation
// of the folded polynomial at the square of the j-th domain point, so the
// result lives on the squared coset.
func foldCodeword(cw []fr.Element, alpha, shiftInv, genInv, twoInv fr.Element, nbTasks int) []fr.Element {
	half := len(cw) / 2
	res := make([]fr.Element, half)
	var alphaHalf fr.Element
	alphaHalf.Mul(&alpha, &twoInv)
	utils.Parallelize(half, func(start, end int) {
		var xInv, sum, diff fr.Element
		xInv.Exp(genInv, big.NewInt(int64(start)))
		xInv.Mul(&xInv, &shiftInv)
		for j := start; j < end; j++ {
			sum.Add(&cw[j], &cw[j+half])
			sum.Mul(&sum, &twoInv)
			diff.Sub(&cw[j], &cw[j+half])
			diff.Mul(&diff, &xInv).Mul(&diff, &alphaHalf)
			res[j].Add(&sum, &diff)
			xInv.Mul(&xInv, &genInv)
		}
	}, nbTasks)
	return res
}

// foldCoefficients mixes even and odd coefficients. Writing the polynomial as
// f(X) = fe(X^2) + X*fo(X^2), the folded coefficients are those of
// fe(X) + alpha*fo(X), matching foldCodeword on the squared coset.
func foldCoefficients(cf []fr.Element, alpha fr.Element) []fr.Element {
	half := len(cf) / 2
	res := make([]fr.Element, half)
	var t fr.Element
	for j := 0; j < half; j++ {
		t.Mul(&cf[2*j+1], &alpha)
		res[j].Add(&cf[2*j], &t)
	}
	return res
}
