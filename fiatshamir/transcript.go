// Package fiatshamir derives the protocol challenges. The challenge chaining
// itself (named, ordered challenges, each hashing its name, the previous
// challenge and the bound values) is done by the gnark-crypto fiat-shamir
// transcript; this package layers the derivations the protocol needs on top
// of it: field elements, distinct query indices and proof of work grinding.
package fiatshamir

import (
	"encoding/binary"
	"errors"
	"hash"
	"math/bits"

	"github.com/bits-and-blooms/bitset"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	cryptofiatshamir "github.com/consensys/gnark-crypto/fiat-shamir"
)

var (
	ErrInvalidNonce   = errors.New("nonce does not satisfy the proof of work")
	ErrTooManyIndices = errors.New("more indices requested than the domain holds")
)

// Transcript wraps the gnark-crypto transcript with the challenge expansions
// used by the protocol. The hash must produce digests of at least 8 bytes.
type Transcript struct {
	inner *cryptofiatshamir.Transcript
	h     hash.Hash
}

// NewTranscript returns a new transcript.
// h is the hash function that is used to compute the challenges.
// challenges are the name of the challenges, in the order they are derived.
func NewTranscript(h hash.Hash, challengesID ...string) *Transcript {
	return &Transcript{
		inner: cryptofiatshamir.NewTranscript(h, challengesID...),
		h:     h,
	}
}

// Bind adds value to the data the named challenge will hash over. Binding
// order matters, and a computed challenge can no longer be bound.
func (t *Transcript) Bind(challengeID string, bValue []byte) error {
	return t.inner.Bind(challengeID, bValue)
}

// ComputeChallenge derives the named challenge from its name, the previous
// challenge and everything bound to it. Challenges must be computed in
// registration order; recomputing one returns the recorded value.
func (t *Transcript) ComputeChallenge(challengeID string) ([]byte, error) {
	return t.inner.ComputeChallenge(challengeID)
}

// expand derives the counter-th expansion of a computed challenge value,
// H(value ∥ counter). It does not modify the transcript state.
func (t *Transcript) expand(value []byte, counter uint32) []byte {
	t.h.Reset()
	defer t.h.Reset()
	t.h.Write(value)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], counter)
	t.h.Write(buf[:])
	return t.h.Sum(nil)
}

// ChallengeFieldElements computes the named challenge and expands it into n
// field elements. Successive expansions hash the challenge value with an
// increasing counter, so the elements are pairwise independent.
func (t *Transcript) ChallengeFieldElements(challengeID string, n int) ([]fr.Element, error) {
	base, err := t.ComputeChallenge(challengeID)
	if err != nil {
		return nil, err
	}
	res := make([]fr.Element, n)
	for i := 0; i < n; i++ {
		res[i].SetBytes(t.expand(base, uint32(i)))
	}
	return res, nil
}

// ChallengeFieldElement computes the named challenge and reduces it to a
// single field element.
func (t *Transcript) ChallengeFieldElement(challengeID string) (fr.Element, error) {
	var res fr.Element
	b, err := t.ComputeChallenge(challengeID)
	if err != nil {
		return res, err
	}
	res.SetBytes(b)
	return res, nil
}

// ChallengeIndices computes the named challenge and expands it into count
// distinct indices in [0, domainSize). domainSize must be a power of two.
func (t *Transcript) ChallengeIndices(challengeID string, count int, domainSize uint64) ([]uint64, error) {
	if uint64(count) > domainSize {
		return nil, ErrTooManyIndices
	}
	base, err := t.ComputeChallenge(challengeID)
	if err != nil {
		return nil, err
	}
	seen := bitset.New(uint(domainSize))
	res := make([]uint64, 0, count)
	for counter := uint32(0); len(res) < count; counter++ {
		digest := t.expand(base, counter)
		pos := binary.BigEndian.Uint64(digest[:8]) & (domainSize - 1)
		if seen.Test(uint(pos)) {
			continue
		}
		seen.Set(uint(pos))
		res = append(res, pos)
	}
	return res, nil
}

// Grind searches for the smallest nonce such that
// H(challenge_value ∥ nonce) has at least difficulty leading zero bits. The
// caller binds the returned nonce to a later challenge so that everything
// derived afterwards depends on it.
func (t *Transcript) Grind(challengeID string, difficulty uint8) (uint64, error) {
	base, err := t.ComputeChallenge(challengeID)
	if err != nil {
		return 0, err
	}
	if difficulty == 0 {
		return 0, nil
	}
	for nonce := uint64(0); ; nonce++ {
		if powDifficulty(t, base, nonce) >= int(difficulty) {
			return nonce, nil
		}
	}
}

// VerifyGrind checks that nonce satisfies the proof of work for the named
// challenge, which must have been computed already.
func (t *Transcript) VerifyGrind(challengeID string, difficulty uint8, nonce uint64) error {
	base, err := t.ComputeChallenge(challengeID)
	if err != nil {
		return err
	}
	if difficulty == 0 {
		return nil
	}
	if powDifficulty(t, base, nonce) < int(difficulty) {
		return ErrInvalidNonce
	}
	return nil
}

func powDifficulty(t *Transcript, base []byte, nonce uint64) int {
	t.h.Reset()
	defer t.h.Reset()
	t.h.Write(base)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	t.h.Write(buf[:])
	digest := t.h.Sum(nil)
	return bits.LeadingZeros64(binary.BigEndian.Uint64(digest[:8]))
}
