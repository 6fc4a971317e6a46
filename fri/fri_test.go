package fri

import (
	"bytes"
	"crypto/sha256"
	"math/big"
	"math/rand"
	"slices"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/piniom/ministark/fiatshamir"
	"github.com/piniom/ministark/merkle"
	"github.com/stretchr/testify/require"
)

func randomPolynomial(rng *rand.Rand, length, degreeBound int) []fr.Element {
	coeffs := make([]fr.Element, length)
	for i := 0; i < degreeBound; i++ {
		coeffs[i].SetUint64(rng.Uint64())
	}
	return coeffs
}

func cosetEvaluations(coeffs []fr.Element, domain *fft.Domain) []fr.Element {
	cw := slices.Clone(coeffs)
	domain.FFT(cw, fft.DIF, fft.OnCoset())
	fft.BitReverse(cw)
	return cw
}

func remainderBytes(remainder []fr.Element) []byte {
	var buf bytes.Buffer
	for i := range remainder {
		b := remainder[i].Bytes()
		buf.Write(b[:])
	}
	return buf.Bytes()
}

// friRound holds the artifacts of one honest commit and query exchange.
type friRound struct {
	params    Parameters
	domain    *fft.Domain
	codeword  []fr.Element
	proof     *Proof
	positions []uint64
}

func (r *friRound) challengeNames() []string {
	return append(ChallengeNames(r.params.NbLayers(r.domain.Cardinality)), "queries")
}

func honestRound(t *testing.T, n, blowup, maxRem, nbQueries int, seed int64) *friRound {
	assert := require.New(t)
	rng := rand.New(rand.NewSource(seed))

	r := &friRound{
		params: Parameters{Blowup: blowup, MaxRemainderCoeffs: maxRem},
		domain: fft.NewDomain(uint64(n)),
	}
	coeffs := randomPolynomial(rng, n, n/blowup)
	r.codeword = cosetEvaluations(coeffs, r.domain)

	fs := fiatshamir.NewTranscript(sha256.New(), r.challengeNames()...)
	prover, err := NewProver(r.params, sha256.New, 0)
	assert.NoError(err)
	assert.NoError(prover.Commit(fs, r.codeword, coeffs, r.domain))
	assert.NoError(fs.Bind("queries", remainderBytes(prover.remainder)))
	r.positions, err = fs.ChallengeIndices("queries", nbQueries, uint64(n))
	assert.NoError(err)

	r.proof, err = prover.Open(r.positions)
	assert.NoError(err)
	return r
}

// verify replays the transcript from the proof alone, the way an actual
// verifier would, and checks the openings against the codeword.
func (r *friRound) verify() error {
	fs := fiatshamir.NewTranscript(sha256.New(), r.challengeNames()...)
	v, err := NewVerifier(r.params, sha256.New, r.domain)
	if err != nil {
		return err
	}
	if err := v.ReplayChallenges(fs, r.proof.LayerRoots); err != nil {
		return err
	}
	if err := fs.Bind("queries", remainderBytes(r.proof.Remainder)); err != nil {
		return err
	}
	positions, err := fs.ChallengeIndices("queries", len(r.positions), r.domain.Cardinality)
	if err != nil {
		return err
	}
	expected := make([]fr.Element, len(positions))
	for j, q := range positions {
		expected[j] = r.codeword[q]
	}
	return v.Verify(r.proof, positions, expected)
}

func cloneProof(p *Proof) *Proof {
	c := &Proof{
		LayerRoots: make([][]byte, len(p.LayerRoots)),
		Layers:     make([]LayerOpening, len(p.Layers)),
		Remainder:  slices.Clone(p.Remainder),
	}
	for i := range p.LayerRoots {
		c.LayerRoots[i] = slices.Clone(p.LayerRoots[i])
	}
	for i := range p.Layers {
		c.Layers[i] = LayerOpening{
			Values: slices.Clone(p.Layers[i].Values),
			Proof:  merkle.Proof{Siblings: slices.Clone(p.Layers[i].Proof.Siblings)},
		}
	}
	return c
}

func TestProveAndVerify(t *testing.T) {
	cases := []struct {
		name                           string
		n, blowup, maxRem, nbQueries   int
		expectedLayers, expectedCoeffs int
	}{
		{"two layers", 64, 4, 4, 10, 2, 4},
		{"deep fold", 256, 8, 4, 20, 3, 4},
		{"rate one half", 1024, 2, 64, 30, 3, 64},
		{"no folding", 32, 4, 8, 5, 0, 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			r := honestRound(t, tc.n, tc.blowup, tc.maxRem, tc.nbQueries, 42)
			assert.Equal(tc.expectedLayers, len(r.proof.LayerRoots))
			assert.Equal(tc.expectedLayers, len(r.proof.Layers))
			assert.Equal(tc.expectedCoeffs, len(r.proof.Remainder))
			assert.NoError(r.verify())
		})
	}
}

func TestFoldConsistency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	const n = 64
	domain := fft.NewDomain(n)
	var twoInv, shiftInv, genInv fr.Element
	twoInv.SetUint64(2)
	twoInv.Inverse(&twoInv)
	shiftInv.Inverse(&domain.FrMultiplicativeGen)
	genInv.Set(&domain.GeneratorInv)

	properties.Property("folding evaluations and folding coefficients agree", prop.ForAll(
		func(seed int64, alphaRaw uint64) bool {
			rng := rand.New(rand.NewSource(seed))
			coeffs := randomPolynomial(rng, n, n)
			codeword := cosetEvaluations(coeffs, domain)

			var alpha fr.Element
			alpha.SetUint64(alphaRaw)

			folded := foldCodeword(codeword, alpha, shiftInv, genInv, twoInv, 1)
			foldedCoeffs := foldCoefficients(coeffs, alpha)

			// the folded codeword must evaluate the folded polynomial on the
			// squared coset
			for _, j := range []uint64{0, 1, 17, n/2 - 1} {
				var x fr.Element
				x.Exp(domain.Generator, new(big.Int).SetUint64(j))
				x.Mul(&x, &domain.FrMultiplicativeGen)
				x.Square(&x)
				want := evalPolynomial(foldedCoeffs, x)
				if !want.Equal(&folded[j]) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.UInt64(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestVerifyRejectsTampering(t *testing.T) {
	assert := require.New(t)

	r := honestRound(t, 128, 4, 8, 12, 7)
	assert.Equal(2, len(r.proof.LayerRoots))

	fs := fiatshamir.NewTranscript(sha256.New(), r.challengeNames()...)
	v, err := NewVerifier(r.params, sha256.New, r.domain)
	assert.NoError(err)
	assert.NoError(v.ReplayChallenges(fs, r.proof.LayerRoots))

	expected := make([]fr.Element, len(r.positions))
	for j, q := range r.positions {
		expected[j] = r.codeword[q]
	}
	assert.NoError(v.Verify(r.proof, r.positions, expected))

	t.Run("tampered remainder coefficient", func(t *testing.T) {
		p := cloneProof(r.proof)
		var one fr.Element
		one.SetOne()
		p.Remainder[0].Add(&p.Remainder[0], &one)
		err := v.Verify(p, r.positions, expected)
		require.ErrorIs(t, err, ErrRemainderMismatch)
	})

	t.Run("truncated remainder", func(t *testing.T) {
		p := cloneProof(r.proof)
		p.Remainder = p.Remainder[:len(p.Remainder)-1]
		err := v.Verify(p, r.positions, expected)
		require.ErrorIs(t, err, ErrRemainderDegree)
	})

	t.Run("tampered opened value", func(t *testing.T) {
		p := cloneProof(r.proof)
		var one fr.Element
		one.SetOne()
		p.Layers[0].Values[0].Add(&p.Layers[0].Values[0], &one)
		err := v.Verify(p, r.positions, expected)
		require.ErrorIs(t, err, merkle.ErrInvalidProof)
	})

	t.Run("expected codeword value differs", func(t *testing.T) {
		bad := slices.Clone(expected)
		var one fr.Element
		one.SetOne()
		bad[0].Add(&bad[0], &one)
		err := v.Verify(r.proof, r.positions, bad)
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("query position out of range", func(t *testing.T) {
		bad := slices.Clone(r.positions)
		bad[0] = r.domain.Cardinality
		err := v.Verify(r.proof, bad, expected)
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("missing layer", func(t *testing.T) {
		p := cloneProof(r.proof)
		p.Layers = p.Layers[:1]
		err := v.Verify(p, r.positions, expected)
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("wrong number of roots at replay", func(t *testing.T) {
		fresh := fiatshamir.NewTranscript(sha256.New(), r.challengeNames()...)
		w, err := NewVerifier(r.params, sha256.New, r.domain)
		require.NoError(t, err)
		err = w.ReplayChallenges(fresh, r.proof.LayerRoots[:1])
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("tampered layer root", func(t *testing.T) {
		p := cloneProof(r.proof)
		p.LayerRoots[1][0] ^= 0xff
		fresh := fiatshamir.NewTranscript(sha256.New(), r.challengeNames()...)
		w, err := NewVerifier(r.params, sha256.New, r.domain)
		require.NoError(t, err)
		require.NoError(t, w.ReplayChallenges(fresh, p.LayerRoots))
		err = w.Verify(p, r.positions, expected)
		require.Error(t, err)
	})
}

func TestParameters(t *testing.T) {
	assert := require.New(t)

	assert.NoError(Parameters{Blowup: 4, MaxRemainderCoeffs: 16}.Validate())
	assert.ErrorIs(Parameters{Blowup: 3, MaxRemainderCoeffs: 16}.Validate(), ErrInvalidParameters)
	assert.ErrorIs(Parameters{Blowup: 0, MaxRemainderCoeffs: 16}.Validate(), ErrInvalidParameters)
	assert.ErrorIs(Parameters{Blowup: 4, MaxRemainderCoeffs: 0}.Validate(), ErrInvalidParameters)
	assert.ErrorIs(Parameters{Blowup: 4, MaxRemainderCoeffs: 12}.Validate(), ErrInvalidParameters)

	p := Parameters{Blowup: 4, MaxRemainderCoeffs: 4}
	assert.Equal(2, p.NbLayers(64))
	assert.Equal(4, p.RemainderLength(64))
	assert.Equal(0, p.NbLayers(16))
	assert.Equal(4, p.RemainderLength(16))

	assert.Equal([]string{"fri.alpha.0", "fri.alpha.1", "fri.alpha.2"}, ChallengeNames(3))
	assert.Empty(ChallengeNames(0))
}

func TestCommitRejectsSizeMismatch(t *testing.T) {
	assert := require.New(t)

	domain := fft.NewDomain(64)
	params := Parameters{Blowup: 4, MaxRemainderCoeffs: 4}
	fs := fiatshamir.NewTranscript(sha256.New(), ChallengeNames(params.NbLayers(64))...)
	prover, err := NewProver(params, sha256.New, 0)
	assert.NoError(err)

	short := make([]fr.Element, 32)
	err = prover.Commit(fs, short, short, domain)
	assert.ErrorIs(err, ErrInvalidParameters)
}
