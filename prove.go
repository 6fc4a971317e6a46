package ministark

import (
	"fmt"
	"math/big"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/piniom/ministark/air"
	"github.com/piniom/ministark/debug"
	"github.com/piniom/ministark/fiatshamir"
	"github.com/piniom/ministark/fri"
	"github.com/piniom/ministark/internal/lde"
	"github.com/piniom/ministark/internal/utils"
	"github.com/piniom/ministark/logger"
	"github.com/piniom/ministark/merkle"
)

// Prove builds a proof that trace satisfies the constraint schema of a under
// the given public inputs. The trace must hold the base columns only; if the
// schema declares auxiliary columns the prover derives them through the
// configured builder once the challenges are drawn.
func Prove(a *air.Air, trace *air.Trace, publicInputs []fr.Element, options ProofOptions, opts ...ProverOption) (*Proof, error) {
	log := logger.Logger().With().
		Str("backend", "stark").
		Int("traceLength", a.TraceLen).
		Int("nbConstraints", len(a.Constraints)).
		Logger()
	start := time.Now()

	cfg, err := NewProverConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("create prover config: %w", err)
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if a.CompositionWidth() > options.Blowup {
		return nil, fmt.Errorf("%w: blowup factor %d cannot accommodate composition width %d", ErrInvalidOptions, options.Blowup, a.CompositionWidth())
	}
	if trace.NbColumns() != a.NbColumns || trace.Len() != a.TraceLen {
		return nil, fmt.Errorf("%w: got %d columns of length %d, schema wants %d of length %d", ErrInvalidTrace, trace.NbColumns(), trace.Len(), a.NbColumns, a.TraceLen)
	}
	if len(publicInputs) != a.NbPublicInputs {
		return nil, fmt.Errorf("%w: got %d public inputs, schema declares %d", ErrInvalidTrace, len(publicInputs), a.NbPublicInputs)
	}
	if a.NbAuxColumns > 0 && cfg.AuxBuilder == nil {
		return nil, ErrMissingAuxBuilder
	}

	s, err := newProver(a, trace, publicInputs, options, cfg)
	if err != nil {
		return nil, err
	}
	if uint64(options.NumQueries) > s.extender.LDESize() {
		return nil, fmt.Errorf("%w: %d queries exceed the evaluation domain size %d", ErrInvalidOptions, options.NumQueries, s.extender.LDESize())
	}

	// round 1: extend and commit the base trace
	if err := s.commitBase(); err != nil {
		return nil, err
	}
	log.Debug().Dur("took", time.Since(start)).Msg("base trace committed")

	// round 2: draw the challenges, build and commit the auxiliary trace
	if err := s.buildAux(trace); err != nil {
		return nil, err
	}

	// cheap sanity over the trace domain before the heavy rounds
	if err := s.checkTrace(); err != nil {
		return nil, err
	}

	// round 3: constraint composition
	if err := s.commitComposition(); err != nil {
		return nil, err
	}
	log.Debug().Dur("took", time.Since(start)).Msg("composition committed")

	// round 4: out of domain evaluations
	if err := s.sampleOutOfDomain(); err != nil {
		return nil, err
	}

	// round 5: deep codeword and low degree test
	if err := s.commitDeep(); err != nil {
		return nil, err
	}
	log.Debug().Dur("took", time.Since(start)).Msg("low degree test committed")

	// round 6: proof of work
	if err := s.grind(); err != nil {
		return nil, err
	}

	// round 7: queries and openings
	if err := s.open(); err != nil {
		return nil, err
	}

	log.Info().Dur("took", time.Since(start)).Msg("prover done")
	return s.proof, nil
}

// prover carries the state threaded through the proving rounds.
type prover struct {
	air          *air.Air
	options      ProofOptions
	cfg          ProverConfig
	publicInputs []fr.Element

	extender *lde.Extender
	fs       *fiatshamir.Transcript

	// trace columns over the trace domain then over the evaluation domain,
	// base columns first, auxiliary columns appended after round 2
	columns    [][]fr.Element
	columnsLDE [][]fr.Element
	challenges []fr.Element

	baseTree *merkle.Tree
	auxTree  *merkle.Tree

	compCoeffs []fr.Element
	compSplit  [][]fr.Element // composition columns in coefficient form
	compLDE    [][]fr.Element
	compTree   *merkle.Tree

	z        fr.Element
	oodTrace []fr.Element
	oodComp  []fr.Element

	deepCoeffs []fr.Element
	friProver  *fri.Prover

	proof *Proof
}

func newProver(a *air.Air, trace *air.Trace, publicInputs []fr.Element, options ProofOptions, cfg ProverConfig) (*prover, error) {
	extender, err := lde.NewExtender(a.TraceLen, options.Blowup, cfg.NbTasks, cfg.Accelerator)
	if err != nil {
		return nil, err
	}
	s := &prover{
		air:          a,
		options:      options,
		cfg:          cfg,
		publicInputs: publicInputs,
		extender:     extender,
		fs:           newTranscript(cfg.ChallengeHash, options.friParameters().NbLayers(extender.LDESize())),
		columns:      make([][]fr.Element, 0, a.TotalColumns()),
		proof:        &Proof{},
	}
	for c := 0; c < trace.NbColumns(); c++ {
		s.columns = append(s.columns, trace.Column(c))
	}
	return s, nil
}

func (s *prover) commitBase() error {
	baseLDE, err := s.extender.ExtendColumns(s.columns)
	if err != nil {
		return err
	}
	s.columnsLDE = baseLDE
	tree, err := s.commitColumns(baseLDE)
	if err != nil {
		return err
	}
	s.baseTree = tree
	s.proof.BaseRoot = tree.Root()
	if err := s.fs.Bind(roundAux, headerBytes(s.air, s.options, s.publicInputs)); err != nil {
		return err
	}
	return s.fs.Bind(roundAux, s.proof.BaseRoot)
}

func (s *prover) buildAux(trace *air.Trace) error {
	var err error
	s.challenges, err = s.fs.ChallengeFieldElements(roundAux, s.air.NbChallenges)
	if err != nil {
		return err
	}
	if s.air.NbAuxColumns == 0 {
		return nil
	}
	aux, err := s.cfg.AuxBuilder(trace, s.challenges)
	if err != nil {
		return fmt.Errorf("build auxiliary trace: %w", err)
	}
	if len(aux) != s.air.NbAuxColumns {
		return fmt.Errorf("%w: auxiliary builder returned %d columns, schema declares %d", ErrInvalidTrace, len(aux), s.air.NbAuxColumns)
	}
	for _, col := range aux {
		if len(col) != s.air.TraceLen {
			return fmt.Errorf("%w: auxiliary column has length %d, expected %d", ErrInvalidTrace, len(col), s.air.TraceLen)
		}
	}
	s.columns = append(s.columns, aux...)
	auxLDE, err := s.extender.ExtendColumns(aux)
	if err != nil {
		return err
	}
	s.columnsLDE = append(s.columnsLDE, auxLDE...)
	tree, err := s.commitColumns(auxLDE)
	if err != nil {
		return err
	}
	s.auxTree = tree
	s.proof.AuxRoot = tree.Root()
	return s.fs.Bind(roundComposition, s.proof.AuxRoot)
}

// checkTrace evaluates every constraint over the trace domain and fails on
// the first violated row, before any heavy work happens.
func (s *prover) checkTrace() error {
	n := s.air.TraceLen
	g := s.extender.TraceDomain().Generator
	ctx := air.EvalContext{
		Row:          make([]fr.Element, len(s.columns)),
		NextRow:      make([]fr.Element, len(s.columns)),
		Challenges:   s.challenges,
		PublicInputs: s.publicInputs,
	}
	ctx.X.SetOne()
	for i := 0; i < n; i++ {
		for c := range s.columns {
			ctx.Row[c] = s.columns[c][i]
			ctx.NextRow[c] = s.columns[c][(i+1)%n]
		}
		for k := range s.air.Constraints {
			c := &s.air.Constraints[k]
			if !constraintActiveAt(c.Domain, i, n) {
				continue
			}
			if v := air.Eval(c.Expr, &ctx); !v.IsZero() {
				return fmt.Errorf("%w: constraint %d declared at %s, row %d", ErrUnsatisfiedConstraint, k, c.DeclaredAt(), i)
			}
		}
		ctx.X.Mul(&ctx.X, &g)
	}
	return nil
}

// constraintActiveAt reports whether a constraint on the given vanishing
// domain must hold at row of a trace of length n.
func constraintActiveAt(d air.VanishingDomain, row, n int) bool {
	switch d {
	case air.FirstRow:
		return row == 0
	case air.LastRow:
		return row == n-1
	case air.Transition:
		return row < n-1
	default:
		return true
	}
}

func (s *prover) commitComposition() error {
	var err error
	s.compCoeffs, err = s.fs.ChallengeFieldElements(roundComposition, 2*len(s.air.Constraints))
	if err != nil {
		return err
	}
	codeword := s.evaluateComposition()
	coeffs := s.extender.InterpolateCoset(codeword)
	if debug.Debug {
		for i := s.air.CompositionWidth() * s.air.TraceLen; i < len(coeffs); i++ {
			debug.Assert(coeffs[i].IsZero(), "composition polynomial exceeds its degree bound")
		}
	}

	// split the composition into width interleaved columns, each of degree
	// below the trace length
	width := s.air.CompositionWidth()
	n := s.air.TraceLen
	s.compSplit = make([][]fr.Element, width)
	for j := range s.compSplit {
		col := make([]fr.Element, n)
		for t := 0; t < n; t++ {
			col[t] = coeffs[j+t*width]
		}
		s.compSplit[j] = col
	}
	if s.compLDE, err = s.extender.ExtendFromCoefficients(s.compSplit); err != nil {
		return err
	}
	tree, err := s.commitColumns(s.compLDE)
	if err != nil {
		return err
	}
	s.compTree = tree
	s.proof.CompositionRoot = tree.Root()
	return s.fs.Bind(roundOodPoint, s.proof.CompositionRoot)
}

func (s *prover) sampleOutOfDomain() error {
	var err error
	s.z, err = sampleOodPoint(s.fs, uint64(s.air.TraceLen), s.extender.LDESize(), s.extender.LDEDomain().FrMultiplicativeGen)
	if err != nil {
		return err
	}

	tc := s.air.TotalColumns()
	width := s.air.CompositionWidth()
	s.oodTrace = make([]fr.Element, 2*tc)
	s.oodComp = make([]fr.Element, width)

	var gz, zw fr.Element
	gz.Mul(&s.z, &s.extender.TraceDomain().Generator)
	zw.Exp(s.z, big.NewInt(int64(width)))

	utils.Parallelize(tc, func(start, end int) {
		for c := start; c < end; c++ {
			coeffs := s.extender.Interpolate(s.columns[c])
			s.oodTrace[c] = evalPolynomial(coeffs, s.z)
			s.oodTrace[tc+c] = evalPolynomial(coeffs, gz)
		}
	}, s.cfg.NbTasks)
	utils.Parallelize(width, func(start, end int) {
		for m := start; m < end; m++ {
			s.oodComp[m] = evalPolynomial(s.compSplit[m], zw)
		}
	}, s.cfg.NbTasks)

	if err := s.fs.Bind(roundDeep, elementsBytes(s.oodTrace)); err != nil {
		return err
	}
	return s.fs.Bind(roundDeep, elementsBytes(s.oodComp))
}

func (s *prover) commitDeep() error {
	var err error
	s.deepCoeffs, err = s.fs.ChallengeFieldElements(roundDeep, 2*s.air.TotalColumns()+s.air.CompositionWidth())
	if err != nil {
		return err
	}
	codeword := s.computeDeep()
	coeffs := s.extender.InterpolateCoset(codeword)
	if debug.Debug {
		for i := s.air.TraceLen - 1; i < len(coeffs); i++ {
			debug.Assert(coeffs[i].IsZero(), "deep polynomial exceeds its degree bound")
		}
	}
	if s.friProver, err = fri.NewProver(s.options.friParameters(), s.cfg.CommitmentHash, s.cfg.NbTasks); err != nil {
		return err
	}
	return s.friProver.Commit(s.fs, codeword, coeffs, s.extender.LDEDomain())
}

func (s *prover) grind() error {
	if err := s.fs.Bind(roundPow, elementsBytes(s.friProver.Remainder())); err != nil {
		return err
	}
	nonce, err := s.fs.Grind(roundPow, uint8(s.options.GrindingBits))
	if err != nil {
		return err
	}
	s.proof.PowNonce = nonce
	return nil
}

func (s *prover) open() error {
	if err := s.fs.Bind(roundQueries, nonceBytes(s.proof.PowNonce)); err != nil {
		return err
	}
	raw, err := s.fs.ChallengeIndices(roundQueries, s.options.NumQueries, s.extender.LDESize())
	if err != nil {
		return err
	}
	positions := merkle.CanonicalIndices(raw)

	if s.proof.Base, err = openRows(s.baseTree, s.columnsLDE[:s.air.NbColumns], positions); err != nil {
		return err
	}
	if s.auxTree != nil {
		aux, err := openRows(s.auxTree, s.columnsLDE[s.air.NbColumns:], positions)
		if err != nil {
			return err
		}
		s.proof.Aux = &aux
	}
	if s.proof.Composition, err = openRows(s.compTree, s.compLDE, positions); err != nil {
		return err
	}
	friProof, err := s.friProver.Open(positions)
	if err != nil {
		return err
	}
	s.proof.Fri = *friProof
	s.proof.OodTrace = s.oodTrace
	s.proof.OodComposition = s.oodComp
	return nil
}

func (s *prover) commitColumns(cols [][]fr.Element) (*merkle.Tree, error) {
	n := int(s.extender.LDESize())
	leaves := make([][]byte, n)
	utils.Parallelize(n, func(start, end int) {
		row := make([]fr.Element, len(cols))
		for j := start; j < end; j++ {
			for c := range cols {
				row[c] = cols[c][j]
			}
			leaves[j] = merkle.LeafBytes(row)
		}
	}, s.cfg.NbTasks)
	return merkle.NewTree(s.cfg.CommitmentHash, leaves, s.cfg.NbTasks)
}

func openRows(tree *merkle.Tree, cols [][]fr.Element, positions []uint64) (RowOpening, error) {
	rows := make([][]fr.Element, len(positions))
	for i, p := range positions {
		row := make([]fr.Element, len(cols))
		for c := range cols {
			row[c] = cols[c][p]
		}
		rows[i] = row
	}
	mp, err := tree.Open(positions)
	if err != nil {
		return RowOpening{}, err
	}
	return RowOpening{Rows: rows, Proof: *mp}, nil
}
