package ministark

import (
	"encoding/binary"
	"hash"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/piniom/ministark/air"
	"github.com/piniom/ministark/fiatshamir"
	"github.com/piniom/ministark/fri"
)

// Transcript round identifiers, in derivation order. The folding challenges
// of the low degree test sit between the deep and the proof of work rounds.
const (
	roundAux         = "aux"
	roundComposition = "composition"
	roundOodPoint    = "ood.point"
	roundDeep        = "deep"
	roundPow         = "pow"
	roundQueries     = "queries"
)

func newTranscript(h hash.Hash, nbFriLayers int) *fiatshamir.Transcript {
	names := []string{roundAux, roundComposition, roundOodPoint, roundDeep}
	names = append(names, fri.ChallengeNames(nbFriLayers)...)
	names = append(names, roundPow, roundQueries)
	return fiatshamir.NewTranscript(h, names...)
}

// headerBytes serializes everything the first challenge must depend on: the
// protocol version, the proof options, the schema shape, the trace length
// and the public inputs.
func headerBytes(a *air.Air, options ProofOptions, publicInputs []fr.Element) []byte {
	buf := make([]byte, 0, 1+9*4+8+len(publicInputs)*fr.Bytes)
	buf = append(buf, ProtocolVersion)
	buf = binary.BigEndian.AppendUint32(buf, uint32(options.NumQueries))
	buf = binary.BigEndian.AppendUint32(buf, uint32(options.Blowup))
	buf = binary.BigEndian.AppendUint32(buf, uint32(options.GrindingBits))
	buf = binary.BigEndian.AppendUint32(buf, uint32(options.MaxRemainderLength))
	buf = binary.BigEndian.AppendUint32(buf, uint32(a.NbColumns))
	buf = binary.BigEndian.AppendUint32(buf, uint32(a.NbAuxColumns))
	buf = binary.BigEndian.AppendUint32(buf, uint32(a.NbChallenges))
	buf = binary.BigEndian.AppendUint32(buf, uint32(a.NbPublicInputs))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(a.Constraints)))
	buf = binary.BigEndian.AppendUint64(buf, uint64(a.TraceLen))
	return append(buf, elementsBytes(publicInputs)...)
}

func elementsBytes(elems []fr.Element) []byte {
	out := make([]byte, 0, len(elems)*fr.Bytes)
	for i := range elems {
		b := elems[i].Bytes()
		out = append(out, b[:]...)
	}
	return out
}

func nonceBytes(nonce uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, nonce)
}

// sampleOodPoint draws the out of domain evaluation point, resampling until
// it avoids both the trace domain and the evaluation coset so that no
// quotient denominator can vanish.
func sampleOodPoint(fs *fiatshamir.Transcript, traceSize, ldeSize uint64, shift fr.Element) (fr.Element, error) {
	var shiftPow fr.Element
	shiftPow.Exp(shift, new(big.Int).SetUint64(ldeSize))
	for i := 1; ; i++ {
		elems, err := fs.ChallengeFieldElements(roundOodPoint, i)
		if err != nil {
			return fr.Element{}, err
		}
		z := elems[i-1]
		var p fr.Element
		p.Exp(z, new(big.Int).SetUint64(traceSize))
		if p.IsOne() {
			continue
		}
		p.Exp(z, new(big.Int).SetUint64(ldeSize))
		if p.Equal(&shiftPow) {
			continue
		}
		return z, nil
	}
}
