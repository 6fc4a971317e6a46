// Package ministark proves and verifies the correct execution of computations
// described as algebraic intermediate representations (AIR).
//
// A computation is laid out as an execution trace, a table of field elements
// whose columns are bound by polynomial constraints. The prover commits to a
// low degree extension of the trace, composes the constraints into a single
// polynomial under transcript randomness and shows it has low degree with a
// FRI protocol; the verifier replays the transcript and spot checks the
// commitments. No trusted setup is involved and the verifier runs in time
// polylogarithmic in the trace length.
//
// The arithmetization lives in the air package; fri, merkle and fiatshamir
// hold the underlying protocols.
package ministark

import (
	"github.com/blang/semver/v4"
)

var Version = semver.MustParse("0.1.0")
