package ministark

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"math/bits"
	"runtime"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/piniom/ministark/air"
	"github.com/piniom/ministark/fri"
)

// ProofOptions are the protocol level parameters of a proof. They are part of
// the statement: prover and verifier must agree on them, and a proof produced
// under different options does not verify.
type ProofOptions struct {
	// NumQueries is the number of spot-check positions drawn once the proof
	// of work is done.
	NumQueries int
	// Blowup is the ratio between the evaluation domain and the trace domain.
	// It must be a power of two and at least the composition width of the
	// constraint schema.
	Blowup int
	// GrindingBits is the number of leading zero bits the proof of work nonce
	// must reach before the queries are drawn.
	GrindingBits int
	// MaxRemainderLength caps the number of coefficients sent in the clear at
	// the end of the low degree test.
	MaxRemainderLength int
}

// DefaultProofOptions returns options balancing proof size and proving time
// at roughly 100 bits of conjectured security.
func DefaultProofOptions() ProofOptions {
	return ProofOptions{
		NumQueries:         30,
		Blowup:             8,
		GrindingBits:       16,
		MaxRemainderLength: 64,
	}
}

// Validate checks the options are within the supported ranges.
func (o ProofOptions) Validate() error {
	if o.NumQueries < 1 || o.NumQueries > 128 {
		return fmt.Errorf("%w: number of queries must be between 1 and 128", ErrInvalidOptions)
	}
	if o.Blowup < 2 || o.Blowup > 64 || bits.OnesCount(uint(o.Blowup)) != 1 {
		return fmt.Errorf("%w: blowup factor must be a power of two between 2 and 64", ErrInvalidOptions)
	}
	if o.GrindingBits < 0 || o.GrindingBits > 32 {
		return fmt.Errorf("%w: grinding bits must be between 0 and 32", ErrInvalidOptions)
	}
	if o.MaxRemainderLength < 1 || bits.OnesCount(uint(o.MaxRemainderLength)) != 1 {
		return fmt.Errorf("%w: max remainder length must be a power of two", ErrInvalidOptions)
	}
	return nil
}

// SecurityLevel returns the conjectured security of the parameters in bits,
// counting each query for the logarithm of the blowup factor and the proof of
// work on top, capped by the field soundness.
func (o ProofOptions) SecurityLevel() int {
	level := o.NumQueries*bits.TrailingZeros(uint(o.Blowup)) + o.GrindingBits
	if level > fr.Bits/2 {
		level = fr.Bits / 2
	}
	return level
}

func (o ProofOptions) friParameters() fri.Parameters {
	return fri.Parameters{Blowup: o.Blowup, MaxRemainderCoeffs: o.MaxRemainderLength}
}

// AuxTraceBuilder derives the auxiliary trace columns once the transcript
// challenges are known. It receives the committed base trace and the random
// challenges, and returns the auxiliary columns, each of the trace length.
type AuxTraceBuilder func(base *air.Trace, challenges []fr.Element) ([][]fr.Element, error)

// ProverOption defines option for altering the behavior of the prover in
// Prove. See the descriptions of functions returning instances of this type
// for implemented options.
type ProverOption func(*ProverConfig) error

// ProverConfig is the configuration for the prover with the options applied.
type ProverConfig struct {
	ChallengeHash  hash.Hash
	CommitmentHash func() hash.Hash
	NbTasks        int
	Accelerator    string
	AuxBuilder     AuxTraceBuilder
}

// NewProverConfig returns a default ProverConfig with given prover options
// opts applied.
func NewProverConfig(opts ...ProverOption) (ProverConfig, error) {
	opt := ProverConfig{
		ChallengeHash:  sha256.New(),
		CommitmentHash: sha256.New,
		NbTasks:        runtime.NumCPU(),
	}
	for _, option := range opts {
		if err := option(&opt); err != nil {
			return ProverConfig{}, err
		}
	}
	return opt, nil
}

// WithProverChallengeHashFunction sets the hash function used for computing
// non-interactive challenges in Fiat-Shamir heuristic. The digest must be at
// least 8 bytes, since query indices and the proof of work consume a 64-bit
// prefix of it. If not set then by default SHA2-256 is used.
func WithProverChallengeHashFunction(hFunc hash.Hash) ProverOption {
	return func(pc *ProverConfig) error {
		if hFunc == nil || hFunc.Size() < 8 {
			return errors.New("challenge hash must produce digests of at least 8 bytes")
		}
		pc.ChallengeHash = hFunc
		return nil
	}
}

// WithProverCommitmentHashFunction sets the hash constructor used for the
// vector commitments. If not set then by default SHA2-256 is used.
func WithProverCommitmentHashFunction(hFunc func() hash.Hash) ProverOption {
	return func(pc *ProverConfig) error {
		pc.CommitmentHash = hFunc
		return nil
	}
}

// WithNbTasks sets the number of goroutines the prover splits its work
// across. If not set the prover uses all available CPUs.
func WithNbTasks(nbTasks int) ProverOption {
	return func(pc *ProverConfig) error {
		if nbTasks < 1 || nbTasks > 512 {
			return fmt.Errorf("number of tasks must be between 1 and 512, got %d", nbTasks)
		}
		pc.NbTasks = nbTasks
		return nil
	}
}

// WithAuxTraceBuilder registers the callback deriving the auxiliary trace
// columns. It is required when the schema declares auxiliary columns.
func WithAuxTraceBuilder(builder AuxTraceBuilder) ProverOption {
	return func(pc *ProverConfig) error {
		pc.AuxBuilder = builder
		return nil
	}
}

// WithIcicleAcceleration requests to use [ICICLE] GPU routines for the domain
// extensions. This option requires that the program is compiled with `icicle`
// build tag and the ICICLE dependencies are properly installed. See [ICICLE]
// for installation description. Without the build tag the prover logs a
// warning and falls back to the CPU path.
//
// [ICICLE]: https://github.com/ingonyama-zk/icicle
func WithIcicleAcceleration() ProverOption {
	return func(pc *ProverConfig) error {
		pc.Accelerator = "icicle"
		return nil
	}
}

// VerifierOption defines option for altering the behavior of the verifier.
// See the descriptions of functions returning instances of this type for
// implemented options.
type VerifierOption func(*VerifierConfig) error

// VerifierConfig is the configuration for the verifier with the options
// applied.
type VerifierConfig struct {
	ChallengeHash  hash.Hash
	CommitmentHash func() hash.Hash
}

// NewVerifierConfig returns a default [VerifierConfig] with given verifier
// options applied.
func NewVerifierConfig(opts ...VerifierOption) (VerifierConfig, error) {
	opt := VerifierConfig{
		ChallengeHash:  sha256.New(),
		CommitmentHash: sha256.New,
	}
	for _, option := range opts {
		if err := option(&opt); err != nil {
			return VerifierConfig{}, err
		}
	}
	return opt, nil
}

// WithVerifierChallengeHashFunction sets the hash function used for computing
// non-interactive challenges in Fiat-Shamir heuristic. It must match the
// prover side. If not set then by default SHA2-256 is used.
func WithVerifierChallengeHashFunction(hFunc hash.Hash) VerifierOption {
	return func(vc *VerifierConfig) error {
		if hFunc == nil || hFunc.Size() < 8 {
			return errors.New("challenge hash must produce digests of at least 8 bytes")
		}
		vc.ChallengeHash = hFunc
		return nil
	}
}

// WithVerifierCommitmentHashFunction sets the hash constructor used to check
// the vector commitments. It must match the prover side. If not set then by
// default SHA2-256 is used.
func WithVerifierCommitmentHashFunction(hFunc func() hash.Hash) VerifierOption {
	return func(vc *VerifierConfig) error {
		vc.CommitmentHash = hFunc
		return nil
	}
}
