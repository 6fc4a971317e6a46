// Package merkle implements a binary Merkle tree used to commit to the rows
// of evaluation matrices. Openings are batched: a single proof covers a set
// of leaf positions and carries only the sibling hashes that the verifier
// cannot reconstruct from the opened leaves themselves.
package merkle

import (
	"errors"
	"hash"
	"slices"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/piniom/ministark/internal/utils"
)

var (
	ErrNotPowerOfTwo    = errors.New("number of leaves must be a power of two")
	ErrIndexOutOfRange  = errors.New("leaf index out of range")
	ErrInvalidProof     = errors.New("invalid merkle proof")
	ErrMismatchedLeaves = errors.New("number of leaves does not match the number of indices")
)

// Tree is a binary Merkle tree with its nodes stored as a flat heap; the
// root sits at position 1 and the hash of leaf i at position nbLeaves+i.
type Tree struct {
	hashFn   func() hash.Hash
	nodes    [][]byte
	nbLeaves uint64
}

// NewTree hashes the given leaves and builds the tree above them. The number
// of leaves must be a power of two.
func NewTree(hashFn func() hash.Hash, leaves [][]byte, nbTasks ...int) (*Tree, error) {
	n := uint64(len(leaves))
	if n == 0 || n&(n-1) != 0 {
		return nil, ErrNotPowerOfTwo
	}

	nodes := make([][]byte, 2*n)
	utils.Parallelize(int(n), func(start, end int) {
		h := hashFn()
		for i := start; i < end; i++ {
			h.Reset()
			h.Write(leaves[i])
			nodes[n+uint64(i)] = h.Sum(nil)
		}
	}, nbTasks...)

	for width := n / 2; width >= 1; width /= 2 {
		hashLevel := func(start, end int) {
			h := hashFn()
			for i := start; i < end; i++ {
				j := width + uint64(i)
				h.Reset()
				h.Write(nodes[2*j])
				h.Write(nodes[2*j+1])
				nodes[j] = h.Sum(nil)
			}
		}
		if width >= 512 {
			utils.Parallelize(int(width), hashLevel, nbTasks...)
		} else {
			hashLevel(0, int(width))
		}
	}

	return &Tree{hashFn: hashFn, nodes: nodes, nbLeaves: n}, nil
}

// Root returns the root hash of the tree.
func (t *Tree) Root() []byte {
	root := make([]byte, len(t.nodes[1]))
	copy(root, t.nodes[1])
	return root
}

// NbLeaves returns the number of leaves the tree was built over.
func (t *Tree) NbLeaves() uint64 {
	return t.nbLeaves
}

// Open builds a batched opening proof for the given leaf positions.
// Duplicate positions are collapsed; the proof is bound to the canonical
// (sorted, deduplicated) ordering, see CanonicalIndices.
func (t *Tree) Open(indices []uint64) (*Proof, error) {
	pos := CanonicalIndices(indices)
	for _, p := range pos {
		if p >= t.nbLeaves {
			return nil, ErrIndexOutOfRange
		}
	}

	proof := &Proof{}
	if len(pos) == 0 {
		return proof, nil
	}

	cur := make([]uint64, len(pos))
	for i, p := range pos {
		cur[i] = t.nbLeaves + p
	}

	// walk up level by level; a sibling goes into the proof only when it is
	// not itself on the path of another opened leaf
	for cur[0] > 1 {
		next := cur[:0:len(cur)]
		for i := 0; i < len(cur); {
			p := cur[i]
			if i+1 < len(cur) && cur[i+1] == p^1 {
				i += 2
			} else {
				sib := make([]byte, len(t.nodes[p^1]))
				copy(sib, t.nodes[p^1])
				proof.Siblings = append(proof.Siblings, sib)
				i++
			}
			next = append(next, p>>1)
		}
		cur = next
	}

	return proof, nil
}

// CanonicalIndices returns the sorted, deduplicated copy of indices. Opened
// leaf values must be supplied in this order on both sides.
func CanonicalIndices(indices []uint64) []uint64 {
	c := slices.Clone(indices)
	slices.Sort(c)
	return slices.Compact(c)
}

// LeafBytes serializes a row of field elements to the byte string that gets
// hashed into the corresponding leaf.
func LeafBytes(row []fr.Element) []byte {
	out := make([]byte, 0, len(row)*fr.Bytes)
	for i := range row {
		b := row[i].Bytes()
		out = append(out, b[:]...)
	}
	return out
}
