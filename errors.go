package ministark

import "errors"

var (
	// ErrInvalidOptions is returned when the proof options are out of range
	// or inconsistent with the constraint schema.
	ErrInvalidOptions = errors.New("invalid proof options")

	// ErrInvalidTrace is returned when the trace, the auxiliary columns or
	// the public inputs do not match the shape the schema declares.
	ErrInvalidTrace = errors.New("trace does not match the schema")

	// ErrUnsatisfiedConstraint is returned by the prover when a constraint
	// does not hold on the trace. The message names the constraint, where it
	// was declared and the first violated row.
	ErrUnsatisfiedConstraint = errors.New("constraint is not satisfied")

	// ErrMissingAuxBuilder is returned when the schema declares auxiliary
	// columns but the prover has no builder configured for them.
	ErrMissingAuxBuilder = errors.New("schema declares auxiliary columns but no builder is configured")

	// ErrInvalidProof is returned by Verify when the proof is structurally
	// inconsistent with the statement. Cryptographic rejections keep their
	// own errors from the merkle, fri and fiatshamir packages.
	ErrInvalidProof = errors.New("invalid proof")
)
