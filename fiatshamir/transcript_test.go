package fiatshamir

import (
	"crypto/sha256"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	cryptofiatshamir "github.com/consensys/gnark-crypto/fiat-shamir"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestTranscriptDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("same bindings yield the same challenges", prop.ForAll(
		func(b1, b2 []byte) bool {
			run := func() ([]byte, []byte) {
				fs := NewTranscript(sha256.New(), "alpha", "beta")
				_ = fs.Bind("alpha", b1)
				_ = fs.Bind("beta", b2)
				a, _ := fs.ComputeChallenge("alpha")
				b, _ := fs.ComputeChallenge("beta")
				return a, b
			}
			a1, bb1 := run()
			a2, bb2 := run()
			return string(a1) == string(a2) && string(bb1) == string(bb2)
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("the challenge name separates domains", prop.ForAll(
		func(b []byte) bool {
			fs1 := NewTranscript(sha256.New(), "alpha")
			fs2 := NewTranscript(sha256.New(), "beta")
			_ = fs1.Bind("alpha", b)
			_ = fs2.Bind("beta", b)
			a, _ := fs1.ComputeChallenge("alpha")
			c, _ := fs2.ComputeChallenge("beta")
			return string(a) != string(c)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestTranscriptOrder(t *testing.T) {
	assert := require.New(t)

	fs := NewTranscript(sha256.New(), "alpha", "beta", "gamma")

	// beta before alpha is out of order
	_, err := fs.ComputeChallenge("beta")
	assert.Error(err)

	// delta is not registered
	_, err = fs.ComputeChallenge("delta")
	assert.Error(err)

	assert.NoError(fs.Bind("alpha", []byte{0xde, 0xad}))
	a1, err := fs.ComputeChallenge("alpha")
	assert.NoError(err)

	// a computed challenge can no longer be bound
	err = fs.Bind("alpha", []byte{0xbe, 0xef})
	assert.Error(err)

	// recomputing returns the cached value
	a2, err := fs.ComputeChallenge("alpha")
	assert.NoError(err)
	assert.Equal(a1, a2)

	_, err = fs.ComputeChallenge("beta")
	assert.NoError(err)
	_, err = fs.ComputeChallenge("gamma")
	assert.NoError(err)
}

func TestTranscriptBindingOrderMatters(t *testing.T) {
	assert := require.New(t)

	fs1 := NewTranscript(sha256.New(), "alpha")
	assert.NoError(fs1.Bind("alpha", []byte{1}))
	assert.NoError(fs1.Bind("alpha", []byte{2}))
	a, err := fs1.ComputeChallenge("alpha")
	assert.NoError(err)

	fs2 := NewTranscript(sha256.New(), "alpha")
	assert.NoError(fs2.Bind("alpha", []byte{2}))
	assert.NoError(fs2.Bind("alpha", []byte{1}))
	b, err := fs2.ComputeChallenge("alpha")
	assert.NoError(err)

	assert.NotEqual(a, b)
}

func TestChallengesMatchGnarkCrypto(t *testing.T) {
	assert := require.New(t)

	fs := NewTranscript(sha256.New(), "alpha", "beta")
	assert.NoError(fs.Bind("alpha", []byte("payload")))
	got, err := fs.ComputeChallenge("alpha")
	assert.NoError(err)

	ref := cryptofiatshamir.NewTranscript(sha256.New(), "alpha", "beta")
	assert.NoError(ref.Bind("alpha", []byte("payload")))
	want, err := ref.ComputeChallenge("alpha")
	assert.NoError(err)
	assert.Equal(want, got)

	// the single element derivation reduces that digest unchanged
	var expected fr.Element
	expected.SetBytes(want)
	elem, err := fs.ChallengeFieldElement("alpha")
	assert.NoError(err)
	assert.True(expected.Equal(&elem))

	// the chain carries over to the next challenge
	gotBeta, err := fs.ComputeChallenge("beta")
	assert.NoError(err)
	wantBeta, err := ref.ComputeChallenge("beta")
	assert.NoError(err)
	assert.Equal(wantBeta, gotBeta)
}

func TestChallengeFieldElements(t *testing.T) {
	assert := require.New(t)

	fs := NewTranscript(sha256.New(), "coeffs")
	assert.NoError(fs.Bind("coeffs", []byte("seed")))
	elems, err := fs.ChallengeFieldElements("coeffs", 16)
	assert.NoError(err)
	assert.Len(elems, 16)

	for i := range elems {
		for j := i + 1; j < len(elems); j++ {
			assert.False(elems[i].Equal(&elems[j]), "expansions must differ")
		}
	}

	// same transcript state gives the same expansion
	fs2 := NewTranscript(sha256.New(), "coeffs")
	assert.NoError(fs2.Bind("coeffs", []byte("seed")))
	elems2, err := fs2.ChallengeFieldElements("coeffs", 16)
	assert.NoError(err)
	for i := range elems {
		assert.True(elems[i].Equal(&elems2[i]))
	}
}

func TestChallengeIndices(t *testing.T) {
	assert := require.New(t)

	const domainSize = 1 << 10

	fs := NewTranscript(sha256.New(), "queries")
	assert.NoError(fs.Bind("queries", []byte{42}))
	indices, err := fs.ChallengeIndices("queries", 30, domainSize)
	assert.NoError(err)
	assert.Len(indices, 30)

	seen := make(map[uint64]struct{})
	for _, p := range indices {
		assert.Less(p, uint64(domainSize))
		_, dup := seen[p]
		assert.False(dup, "indices must be distinct")
		seen[p] = struct{}{}
	}

	fs2 := NewTranscript(sha256.New(), "queries")
	assert.NoError(fs2.Bind("queries", []byte{42}))
	_, err = fs2.ChallengeIndices("queries", 5, 4)
	assert.ErrorIs(err, ErrTooManyIndices)
}

func TestGrind(t *testing.T) {
	assert := require.New(t)

	const difficulty = 10

	fs := NewTranscript(sha256.New(), "pow")
	assert.NoError(fs.Bind("pow", []byte("state")))
	nonce, err := fs.Grind("pow", difficulty)
	assert.NoError(err)

	assert.NoError(fs.VerifyGrind("pow", difficulty, nonce))

	// Grind returns the smallest valid nonce, so its predecessor fails
	if nonce > 0 {
		assert.ErrorIs(fs.VerifyGrind("pow", difficulty, nonce-1), ErrInvalidNonce)
	}

	// zero difficulty always passes without work
	nonce0, err := fs.Grind("pow", 0)
	assert.NoError(err)
	assert.Zero(nonce0)
	assert.NoError(fs.VerifyGrind("pow", 0, 123456))
}
