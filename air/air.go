// Package air describes algebraic intermediate representations: the shape of
// an execution trace together with the polynomial constraints its columns
// must satisfy. The prover and verifier both work from the same description.
package air

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
)

var ErrInvalidSchema = errors.New("invalid schema")

// MinTraceLength is the smallest trace the engine accepts.
const MinTraceLength = 4

// Schema describes a trace shape and its constraint set, independently of
// any concrete trace length.
type Schema struct {
	// NbColumns is the number of base trace columns.
	NbColumns int
	// NbAuxColumns is the number of auxiliary trace columns, committed after
	// the transcript challenges are drawn.
	NbAuxColumns int
	// NbChallenges is the number of transcript challenges the auxiliary
	// columns and the constraints may reference.
	NbChallenges int
	// NbPublicInputs is the number of public inputs the constraints may
	// reference.
	NbPublicInputs int

	Constraints []Constraint
}

// TotalColumns returns the width of the full trace frame, base plus
// auxiliary columns.
func (s *Schema) TotalColumns() int { return s.NbColumns + s.NbAuxColumns }

// Validate checks that every constraint only references columns, challenges
// and public inputs the schema declares.
func (s *Schema) Validate() error {
	if s.NbColumns <= 0 {
		return fmt.Errorf("%w: schema needs at least one base column", ErrInvalidSchema)
	}
	if s.NbAuxColumns < 0 || s.NbChallenges < 0 || s.NbPublicInputs < 0 {
		return fmt.Errorf("%w: negative counts", ErrInvalidSchema)
	}
	if len(s.Constraints) == 0 {
		return fmt.Errorf("%w: schema needs at least one constraint", ErrInvalidSchema)
	}
	for i := range s.Constraints {
		var r refCounts
		r.maxCol, r.maxChallenge, r.maxPublic = -1, -1, -1
		s.Constraints[i].Expr.refs(&r)
		if r.maxCol >= s.TotalColumns() {
			return fmt.Errorf("%w: constraint %d references column %d, the trace has %d", ErrInvalidSchema, i, r.maxCol, s.TotalColumns())
		}
		if r.maxChallenge >= s.NbChallenges {
			return fmt.Errorf("%w: constraint %d references challenge %d, the schema declares %d", ErrInvalidSchema, i, r.maxChallenge, s.NbChallenges)
		}
		if r.maxPublic >= s.NbPublicInputs {
			return fmt.Errorf("%w: constraint %d references public input %d, the schema declares %d", ErrInvalidSchema, i, r.maxPublic, s.NbPublicInputs)
		}
	}
	return nil
}

// Air is a schema bound to a concrete trace length, with the degree
// bookkeeping the composition step needs.
type Air struct {
	Schema

	// TraceLen is the trace domain size.
	TraceLen int

	compositionWidth int
	quotientDegrees  []int
	adjustments      []int
}

// New binds schema to a trace of length traceLen and computes, for each
// constraint, the degree of its quotient and the degree adjustment that
// lifts it to the composition target degree.
func New(schema Schema, traceLen int) (*Air, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if traceLen < MinTraceLength || traceLen&(traceLen-1) != 0 {
		return nil, ErrInvalidTraceLength
	}

	a := &Air{
		Schema:          schema,
		TraceLen:        traceLen,
		quotientDegrees: make([]int, len(schema.Constraints)),
		adjustments:     make([]int, len(schema.Constraints)),
	}

	traceDeg := traceLen - 1
	maxQuotient := 0
	for i := range schema.Constraints {
		c := &schema.Constraints[i]
		q := c.Expr.degree(traceDeg) - c.Domain.degree(traceLen)
		if q < 0 {
			q = 0
		}
		a.quotientDegrees[i] = q
		if q > maxQuotient {
			maxQuotient = q
		}
	}

	// composition target degree is compositionWidth*traceLen - 1, the
	// smallest power-of-two multiple of the trace length that covers every
	// quotient
	a.compositionWidth = int(ecc.NextPowerOfTwo(uint64((maxQuotient + traceLen) / traceLen)))
	target := a.compositionWidth*traceLen - 1
	for i := range a.adjustments {
		a.adjustments[i] = target - a.quotientDegrees[i]
	}

	return a, nil
}

// CompositionWidth returns the number of columns the composition polynomial
// is split into.
func (a *Air) CompositionWidth() int { return a.compositionWidth }

// QuotientDegree returns the degree of the i-th constraint's quotient.
func (a *Air) QuotientDegree(i int) int { return a.quotientDegrees[i] }

// DegreeAdjustment returns the power of X that lifts the i-th constraint's
// quotient to the composition target degree.
func (a *Air) DegreeAdjustment(i int) int { return a.adjustments[i] }
