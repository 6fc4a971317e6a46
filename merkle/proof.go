package merkle

import (
	"bytes"
	"fmt"
	"hash"
)

// Proof is a batched Merkle opening. Siblings holds the missing sibling
// hashes in the order the verifier consumes them, walking the opened
// positions level by level from the leaves to the root.
type Proof struct {
	Siblings [][]byte
}

// VerifyProof checks that leaves sit at the given positions of a tree with
// nbLeaves leaves and the given root. The leaves must be supplied in the
// canonical order of the indices, see CanonicalIndices. A nil return means
// the proof is valid.
func VerifyProof(root []byte, indices []uint64, leaves [][]byte, proof *Proof, hashFn func() hash.Hash, nbLeaves uint64) error {
	if nbLeaves == 0 || nbLeaves&(nbLeaves-1) != 0 {
		return ErrNotPowerOfTwo
	}
	pos := CanonicalIndices(indices)
	if len(pos) != len(leaves) {
		return ErrMismatchedLeaves
	}
	if len(pos) == 0 {
		return fmt.Errorf("%w: no opened positions", ErrInvalidProof)
	}
	for _, p := range pos {
		if p >= nbLeaves {
			return ErrIndexOutOfRange
		}
	}

	h := hashFn()

	cur := make([]uint64, len(pos))
	hashes := make([][]byte, len(pos))
	for i, p := range pos {
		cur[i] = nbLeaves + p
		h.Reset()
		h.Write(leaves[i])
		hashes[i] = h.Sum(nil)
	}

	k := 0
	for cur[0] > 1 {
		nextPos := cur[:0:len(cur)]
		nextHashes := hashes[:0:len(hashes)]
		for i := 0; i < len(cur); {
			p := cur[i]
			h.Reset()
			if i+1 < len(cur) && cur[i+1] == p^1 {
				h.Write(hashes[i])
				h.Write(hashes[i+1])
				i += 2
			} else {
				if k >= len(proof.Siblings) {
					return fmt.Errorf("%w: not enough siblings", ErrInvalidProof)
				}
				if p&1 == 0 {
					h.Write(hashes[i])
					h.Write(proof.Siblings[k])
				} else {
					h.Write(proof.Siblings[k])
					h.Write(hashes[i])
				}
				k++
				i++
			}
			nextPos = append(nextPos, p>>1)
			nextHashes = append(nextHashes, h.Sum(nil))
		}
		cur = nextPos
		hashes = nextHashes
	}

	if k != len(proof.Siblings) {
		return fmt.Errorf("%w: %d unused siblings", ErrInvalidProof, len(proof.Siblings)-k)
	}
	if !bytes.Equal(hashes[0], root) {
		return fmt.Errorf("%w: root mismatch", ErrInvalidProof)
	}
	return nil
}
