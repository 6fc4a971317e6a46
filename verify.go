package ministark

import (
	"errors"
	"fmt"
	"hash"
	"math/big"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
	"github.com/piniom/ministark/air"
	"github.com/piniom/ministark/fri"
	"github.com/piniom/ministark/logger"
	"github.com/piniom/ministark/merkle"
)

var (
	errAlgebraicRelation = errors.New("algebraic relation does not hold")
	errInvalidWitness    = errors.New("invalid witness size")
)

// Verify checks proof against the constraint schema of a and the public
// inputs. The proof options must be the ones the proof was produced with;
// they are bound to the transcript, so a mismatch makes every challenge
// diverge and the proof rejects.
func Verify(a *air.Air, proof *Proof, publicInputs []fr.Element, options ProofOptions, opts ...VerifierOption) error {
	log := logger.Logger().With().
		Str("backend", "stark").
		Int("traceLength", a.TraceLen).
		Logger()
	start := time.Now()

	cfg, err := NewVerifierConfig(opts...)
	if err != nil {
		return fmt.Errorf("create verifier config: %w", err)
	}
	if err := options.Validate(); err != nil {
		return err
	}
	if a.CompositionWidth() > options.Blowup {
		return fmt.Errorf("%w: blowup factor %d cannot accommodate composition width %d", ErrInvalidOptions, options.Blowup, a.CompositionWidth())
	}
	if len(publicInputs) != a.NbPublicInputs {
		return fmt.Errorf("%w: got %d public inputs, schema declares %d", errInvalidWitness, len(publicInputs), a.NbPublicInputs)
	}
	if err := validateShape(proof, a); err != nil {
		return err
	}

	ldeSize := uint64(a.TraceLen * options.Blowup)
	if uint64(options.NumQueries) > ldeSize {
		return fmt.Errorf("%w: %d queries exceed the evaluation domain size %d", ErrInvalidOptions, options.NumQueries, ldeSize)
	}
	domainSmall := fft.NewDomain(uint64(a.TraceLen), fft.WithoutPrecompute())
	domainBig := fft.NewDomain(ldeSize, fft.WithoutPrecompute())
	friParams := options.friParameters()

	// replay the transcript round by round
	fs := newTranscript(cfg.ChallengeHash, friParams.NbLayers(ldeSize))
	if err := fs.Bind(roundAux, headerBytes(a, options, publicInputs)); err != nil {
		return err
	}
	if err := fs.Bind(roundAux, proof.BaseRoot); err != nil {
		return err
	}
	challenges, err := fs.ChallengeFieldElements(roundAux, a.NbChallenges)
	if err != nil {
		return err
	}
	if a.NbAuxColumns > 0 {
		if err := fs.Bind(roundComposition, proof.AuxRoot); err != nil {
			return err
		}
	}
	compCoeffs, err := fs.ChallengeFieldElements(roundComposition, 2*len(a.Constraints))
	if err != nil {
		return err
	}
	if err := fs.Bind(roundOodPoint, proof.CompositionRoot); err != nil {
		return err
	}
	z, err := sampleOodPoint(fs, uint64(a.TraceLen), ldeSize, domainBig.FrMultiplicativeGen)
	if err != nil {
		return err
	}
	if err := fs.Bind(roundDeep, elementsBytes(proof.OodTrace)); err != nil {
		return err
	}
	if err := fs.Bind(roundDeep, elementsBytes(proof.OodComposition)); err != nil {
		return err
	}

	// the out of domain frame must tie the trace to the composition columns
	if err := checkOodRelation(a, z, proof, compCoeffs, challenges, publicInputs, domainSmall.GeneratorInv); err != nil {
		return err
	}

	deepCoeffs, err := fs.ChallengeFieldElements(roundDeep, 2*a.TotalColumns()+a.CompositionWidth())
	if err != nil {
		return err
	}
	friVerifier, err := fri.NewVerifier(friParams, cfg.CommitmentHash, domainBig)
	if err != nil {
		return err
	}
	if err := friVerifier.ReplayChallenges(fs, proof.Fri.LayerRoots); err != nil {
		return err
	}
	if err := fs.Bind(roundPow, elementsBytes(proof.Fri.Remainder)); err != nil {
		return err
	}
	if err := fs.VerifyGrind(roundPow, uint8(options.GrindingBits), proof.PowNonce); err != nil {
		return err
	}
	if err := fs.Bind(roundQueries, nonceBytes(proof.PowNonce)); err != nil {
		return err
	}
	raw, err := fs.ChallengeIndices(roundQueries, options.NumQueries, ldeSize)
	if err != nil {
		return err
	}
	positions := merkle.CanonicalIndices(raw)

	// openings against the three commitments
	if err := verifyRows("base trace", proof.BaseRoot, positions, &proof.Base, a.NbColumns, ldeSize, cfg.CommitmentHash); err != nil {
		return err
	}
	if a.NbAuxColumns > 0 {
		if err := verifyRows("auxiliary trace", proof.AuxRoot, positions, proof.Aux, a.NbAuxColumns, ldeSize, cfg.CommitmentHash); err != nil {
			return err
		}
	}
	if err := verifyRows("composition", proof.CompositionRoot, positions, &proof.Composition, a.CompositionWidth(), ldeSize, cfg.CommitmentHash); err != nil {
		return err
	}

	// the deep codeword recomputed at the queried positions must pass the
	// low degree test
	expected := deepQueryValues(a, proof, positions, domainBig, domainSmall.Generator, z, deepCoeffs)
	if err := friVerifier.Verify(&proof.Fri, positions, expected); err != nil {
		return err
	}

	log.Info().Dur("took", time.Since(start)).Msg("verifier done")
	return nil
}

// validateShape rejects proofs whose structure does not match the schema
// before any value is read.
func validateShape(proof *Proof, a *air.Air) error {
	if len(proof.BaseRoot) == 0 || len(proof.CompositionRoot) == 0 {
		return fmt.Errorf("%w: missing commitment root", ErrInvalidProof)
	}
	if a.NbAuxColumns > 0 {
		if len(proof.AuxRoot) == 0 || proof.Aux == nil {
			return fmt.Errorf("%w: schema declares auxiliary columns but the proof commits to none", ErrInvalidProof)
		}
	} else if len(proof.AuxRoot) != 0 || proof.Aux != nil {
		return fmt.Errorf("%w: proof commits to auxiliary columns the schema does not declare", ErrInvalidProof)
	}
	if len(proof.OodTrace) != 2*a.TotalColumns() {
		return fmt.Errorf("%w: out of domain frame has %d values, expected %d", ErrInvalidProof, len(proof.OodTrace), 2*a.TotalColumns())
	}
	if len(proof.OodComposition) != a.CompositionWidth() {
		return fmt.Errorf("%w: out of domain composition has %d values, expected %d", ErrInvalidProof, len(proof.OodComposition), a.CompositionWidth())
	}
	return nil
}

// checkOodRelation checks the out of domain identity: the randomized sum of
// adjusted constraint quotients at z must equal the composition polynomial
// reassembled from its column values at z^width.
func checkOodRelation(a *air.Air, z fr.Element, proof *Proof, compCoeffs, challenges, publicInputs []fr.Element, lastRoot fr.Element) error {
	tc := a.TotalColumns()
	ctx := air.EvalContext{
		Row:          proof.OodTrace[:tc],
		NextRow:      proof.OodTrace[tc:],
		Challenges:   challenges,
		PublicInputs: publicInputs,
		X:            z,
	}

	var left, term, div, zPow fr.Element
	for k := range a.Constraints {
		c := &a.Constraints[k]
		e := air.Eval(c.Expr, &ctx)
		div = c.Domain.EvalAt(z, uint64(a.TraceLen), lastRoot)
		div.Inverse(&div)
		zPow.Exp(z, big.NewInt(int64(a.DegreeAdjustment(k))))
		term.Mul(&compCoeffs[2*k], &zPow)
		term.Add(&term, &compCoeffs[2*k+1])
		term.Mul(&term, &e)
		term.Mul(&term, &div)
		left.Add(&left, &term)
	}

	right := evalPolynomial(proof.OodComposition, z)
	if !left.Equal(&right) {
		return errAlgebraicRelation
	}
	return nil
}

// verifyRows checks that the opened rows have the expected shape and hash
// back to the committed root.
func verifyRows(name string, root []byte, positions []uint64, opening *RowOpening, width int, nbLeaves uint64, hashFn func() hash.Hash) error {
	if len(opening.Rows) != len(positions) {
		return fmt.Errorf("%w: %s opening has %d rows for %d queries", ErrInvalidProof, name, len(opening.Rows), len(positions))
	}
	leaves := make([][]byte, len(opening.Rows))
	for i, row := range opening.Rows {
		if len(row) != width {
			return fmt.Errorf("%w: %s opening row has %d columns, expected %d", ErrInvalidProof, name, len(row), width)
		}
		leaves[i] = merkle.LeafBytes(row)
	}
	if err := merkle.VerifyProof(root, positions, leaves, &opening.Proof, hashFn, nbLeaves); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
