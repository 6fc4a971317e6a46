package ministark

import (
	"bytes"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/fxamacker/cbor/v2"
	"github.com/piniom/ministark/fri"
	"github.com/piniom/ministark/merkle"
)

// ProtocolVersion tags the serialized proof format and the transcript seed.
// Proofs from a different version do not deserialize and do not verify.
const ProtocolVersion byte = 1

// RowOpening opens a row commitment at the query positions: one full row per
// canonical position, attested by a single batched commitment proof.
type RowOpening struct {
	Rows  [][]fr.Element
	Proof merkle.Proof
}

// Proof is a transparent proof that a trace satisfying the constraint schema
// exists. It carries the three commitments, the out of domain evaluations,
// the low degree test and the openings at the query positions.
type Proof struct {
	BaseRoot        []byte
	AuxRoot         []byte // empty when the schema has no auxiliary columns
	CompositionRoot []byte

	// OodTrace is the trace frame at the out of domain point: the row at z
	// followed by the row at g·z, g the trace domain generator.
	OodTrace []fr.Element
	// OodComposition holds the composition columns evaluated at z to the
	// composition width.
	OodComposition []fr.Element

	Base        RowOpening
	Aux         *RowOpening // nil when the schema has no auxiliary columns
	Composition RowOpening

	Fri      fri.Proof
	PowNonce uint64
}

// rawProof is the serialized form: field elements are flattened to their
// canonical big endian bytes so the encoding is unambiguous.
type rawProof struct {
	Version         byte
	BaseRoot        []byte
	AuxRoot         []byte
	CompositionRoot []byte
	OodTrace        []byte
	OodComposition  []byte
	Base            rawOpening
	Aux             *rawOpening
	Composition     rawOpening
	FriRoots        [][]byte
	FriLayers       []rawFriLayer
	FriRemainder    []byte
	PowNonce        uint64
}

type rawOpening struct {
	Rows     [][]byte
	Siblings [][]byte
}

type rawFriLayer struct {
	Values   []byte
	Siblings [][]byte
}

// WriteTo serializes the proof with a deterministic CBOR encoding.
func (proof *Proof) WriteTo(w io.Writer) (int64, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	if err := enc.NewEncoder(&buf).Encode(proof.toRaw()); err != nil {
		return 0, err
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadFrom deserializes a proof written by WriteTo. The field elements are
// checked to be canonical so a proof cannot encode the same value two ways.
func (proof *Proof) ReadFrom(r io.Reader) (int64, error) {
	dm, err := cbor.DecOptions{
		MaxArrayElements: 2147483647,
		MaxMapPairs:      2147483647,
	}.DecMode()
	if err != nil {
		return 0, err
	}
	decoder := dm.NewDecoder(r)
	var raw rawProof
	if err := decoder.Decode(&raw); err != nil {
		return int64(decoder.NumBytesRead()), err
	}
	if err := proof.fromRaw(&raw); err != nil {
		return int64(decoder.NumBytesRead()), err
	}
	return int64(decoder.NumBytesRead()), nil
}

func (proof *Proof) toRaw() *rawProof {
	raw := &rawProof{
		Version:         ProtocolVersion,
		BaseRoot:        proof.BaseRoot,
		AuxRoot:         proof.AuxRoot,
		CompositionRoot: proof.CompositionRoot,
		OodTrace:        elementsBytes(proof.OodTrace),
		OodComposition:  elementsBytes(proof.OodComposition),
		Base:            openingToRaw(&proof.Base),
		Composition:     openingToRaw(&proof.Composition),
		FriRoots:        proof.Fri.LayerRoots,
		FriRemainder:    elementsBytes(proof.Fri.Remainder),
		PowNonce:        proof.PowNonce,
	}
	if proof.Aux != nil {
		aux := openingToRaw(proof.Aux)
		raw.Aux = &aux
	}
	raw.FriLayers = make([]rawFriLayer, len(proof.Fri.Layers))
	for i := range proof.Fri.Layers {
		raw.FriLayers[i] = rawFriLayer{
			Values:   elementsBytes(proof.Fri.Layers[i].Values),
			Siblings: proof.Fri.Layers[i].Proof.Siblings,
		}
	}
	return raw
}

func (proof *Proof) fromRaw(raw *rawProof) error {
	if raw.Version != ProtocolVersion {
		return fmt.Errorf("%w: unsupported proof version %d", ErrInvalidProof, raw.Version)
	}
	var err error
	proof.BaseRoot = raw.BaseRoot
	proof.AuxRoot = raw.AuxRoot
	proof.CompositionRoot = raw.CompositionRoot
	if proof.OodTrace, err = splitElements(raw.OodTrace); err != nil {
		return err
	}
	if proof.OodComposition, err = splitElements(raw.OodComposition); err != nil {
		return err
	}
	if proof.Base, err = openingFromRaw(&raw.Base); err != nil {
		return err
	}
	proof.Aux = nil
	if raw.Aux != nil {
		aux, err := openingFromRaw(raw.Aux)
		if err != nil {
			return err
		}
		proof.Aux = &aux
	}
	if proof.Composition, err = openingFromRaw(&raw.Composition); err != nil {
		return err
	}
	proof.Fri.LayerRoots = raw.FriRoots
	proof.Fri.Layers = make([]fri.LayerOpening, len(raw.FriLayers))
	for i := range raw.FriLayers {
		values, err := splitElements(raw.FriLayers[i].Values)
		if err != nil {
			return err
		}
		proof.Fri.Layers[i] = fri.LayerOpening{
			Values: values,
			Proof:  merkle.Proof{Siblings: raw.FriLayers[i].Siblings},
		}
	}
	if proof.Fri.Remainder, err = splitElements(raw.FriRemainder); err != nil {
		return err
	}
	proof.PowNonce = raw.PowNonce
	return nil
}

func openingToRaw(o *RowOpening) rawOpening {
	raw := rawOpening{
		Rows:     make([][]byte, len(o.Rows)),
		Siblings: o.Proof.Siblings,
	}
	for i, row := range o.Rows {
		raw.Rows[i] = elementsBytes(row)
	}
	return raw
}

func openingFromRaw(raw *rawOpening) (RowOpening, error) {
	o := RowOpening{
		Rows:  make([][]fr.Element, len(raw.Rows)),
		Proof: merkle.Proof{Siblings: raw.Siblings},
	}
	var err error
	for i := range raw.Rows {
		if o.Rows[i], err = splitElements(raw.Rows[i]); err != nil {
			return RowOpening{}, err
		}
	}
	return o, nil
}

func splitElements(b []byte) ([]fr.Element, error) {
	if len(b)%fr.Bytes != 0 {
		return nil, fmt.Errorf("%w: truncated field element encoding", ErrInvalidProof)
	}
	elems := make([]fr.Element, len(b)/fr.Bytes)
	for i := range elems {
		if err := elems[i].SetBytesCanonical(b[i*fr.Bytes : (i+1)*fr.Bytes]); err != nil {
			return nil, fmt.Errorf("%w: non canonical field element: %v", ErrInvalidProof, err)
		}
	}
	return elems, nil
}
