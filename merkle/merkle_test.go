package merkle

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func testLeaves(seed int64, n int) [][]byte {
	leaves := make([][]byte, n)
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(seed))
	for i := range leaves {
		binary.BigEndian.PutUint64(buf[8:], uint64(i))
		s := sha256.Sum256(buf[:])
		leaves[i] = s[:]
	}
	return leaves
}

func testIndices(rng *rand.Rand, count int, n uint64) []uint64 {
	indices := make([]uint64, count)
	for i := range indices {
		indices[i] = rng.Uint64() % n
	}
	return indices
}

func TestBatchOpenRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("an honest batched opening verifies", prop.ForAll(
		func(logSize uint8, seed int64, count uint8) bool {
			n := uint64(1) << (logSize%9 + 1)
			leaves := testLeaves(seed, int(n))
			tree, err := NewTree(sha256.New, leaves)
			if err != nil {
				return false
			}
			rng := rand.New(rand.NewSource(seed))
			indices := testIndices(rng, int(count%16)+1, n)

			proof, err := tree.Open(indices)
			if err != nil {
				return false
			}

			canonical := CanonicalIndices(indices)
			opened := make([][]byte, len(canonical))
			for i, p := range canonical {
				opened[i] = leaves[p]
			}
			return VerifyProof(tree.Root(), indices, opened, proof, sha256.New, n) == nil
		},
		gen.UInt8(),
		gen.Int64(),
		gen.UInt8(),
	))

	properties.Property("a single flipped byte breaks the opening", prop.ForAll(
		func(logSize uint8, seed int64, count uint8) bool {
			n := uint64(1) << (logSize%9 + 1)
			leaves := testLeaves(seed, int(n))
			tree, err := NewTree(sha256.New, leaves)
			if err != nil {
				return false
			}
			rng := rand.New(rand.NewSource(seed))
			indices := testIndices(rng, int(count%16)+1, n)

			proof, err := tree.Open(indices)
			if err != nil {
				return false
			}

			canonical := CanonicalIndices(indices)
			opened := make([][]byte, len(canonical))
			for i, p := range canonical {
				opened[i] = append([]byte(nil), leaves[p]...)
			}
			victim := rng.Intn(len(opened))
			opened[victim][rng.Intn(len(opened[victim]))] ^= 1

			return VerifyProof(tree.Root(), indices, opened, proof, sha256.New, n) != nil
		},
		gen.UInt8(),
		gen.Int64(),
		gen.UInt8(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestOpenStructural(t *testing.T) {
	assert := require.New(t)

	leaves := testLeaves(7, 8)
	tree, err := NewTree(sha256.New, leaves)
	assert.NoError(err)

	_, err = NewTree(sha256.New, leaves[:5])
	assert.ErrorIs(err, ErrNotPowerOfTwo)

	_, err = tree.Open([]uint64{8})
	assert.ErrorIs(err, ErrIndexOutOfRange)

	proof, err := tree.Open([]uint64{1, 6})
	assert.NoError(err)
	opened := [][]byte{leaves[1], leaves[6]}

	assert.NoError(VerifyProof(tree.Root(), []uint64{1, 6}, opened, proof, sha256.New, 8))

	// wrong root
	other, err := NewTree(sha256.New, testLeaves(8, 8))
	assert.NoError(err)
	assert.ErrorIs(VerifyProof(other.Root(), []uint64{1, 6}, opened, proof, sha256.New, 8), ErrInvalidProof)

	// truncated and padded sibling lists
	short := &Proof{Siblings: proof.Siblings[:len(proof.Siblings)-1]}
	assert.ErrorIs(VerifyProof(tree.Root(), []uint64{1, 6}, opened, short, sha256.New, 8), ErrInvalidProof)

	long := &Proof{Siblings: append(append([][]byte{}, proof.Siblings...), proof.Siblings[0])}
	assert.ErrorIs(VerifyProof(tree.Root(), []uint64{1, 6}, opened, long, sha256.New, 8), ErrInvalidProof)

	// leaf count mismatch
	assert.ErrorIs(VerifyProof(tree.Root(), []uint64{1, 6}, opened[:1], proof, sha256.New, 8), ErrMismatchedLeaves)

	// indices swapped with values kept in place still fails
	assert.ErrorIs(VerifyProof(tree.Root(), []uint64{2, 6}, opened, proof, sha256.New, 8), ErrInvalidProof)
}

func TestOpenDeduplicatesIndices(t *testing.T) {
	assert := require.New(t)

	leaves := testLeaves(11, 16)
	tree, err := NewTree(sha256.New, leaves)
	assert.NoError(err)

	proof, err := tree.Open([]uint64{3, 3, 9, 3})
	assert.NoError(err)

	canonical := CanonicalIndices([]uint64{3, 3, 9, 3})
	assert.Equal([]uint64{3, 9}, canonical)

	opened := [][]byte{leaves[3], leaves[9]}
	assert.NoError(VerifyProof(tree.Root(), []uint64{3, 3, 9, 3}, opened, proof, sha256.New, 16))
}

func TestAdjacentLeavesShareSiblings(t *testing.T) {
	assert := require.New(t)

	leaves := testLeaves(13, 8)
	tree, err := NewTree(sha256.New, leaves)
	assert.NoError(err)

	// leaves 0 and 1 share their whole path: the proof needs one sibling per
	// remaining level only
	proof, err := tree.Open([]uint64{0, 1})
	assert.NoError(err)
	assert.Len(proof.Siblings, 2)

	opened := [][]byte{leaves[0], leaves[1]}
	assert.NoError(VerifyProof(tree.Root(), []uint64{0, 1}, opened, proof, sha256.New, 8))
}

func TestLeafBytes(t *testing.T) {
	assert := require.New(t)

	row := make([]fr.Element, 3)
	row[0].SetUint64(1)
	row[1].SetUint64(2)
	row[2].SetUint64(3)

	b := LeafBytes(row)
	assert.Len(b, 3*fr.Bytes)

	// serialization is the canonical big endian form
	var x fr.Element
	assert.NoError(x.SetBytesCanonical(b[:fr.Bytes]))
	assert.True(x.Equal(&row[0]))
}
