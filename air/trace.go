package air

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var (
	ErrEmptyTrace         = errors.New("trace has no columns or no rows")
	ErrRaggedTrace        = errors.New("trace columns have different lengths")
	ErrInvalidTraceLength = errors.New("trace length must be a power of two")
)

// Trace is an execution trace in column major order. It is treated as
// immutable once handed to the prover.
type Trace struct {
	columns [][]fr.Element
	length  int
}

// NewTrace wraps columns into a trace. All columns must have the same
// power-of-two length. The columns are not copied; the caller must not
// mutate them afterwards.
func NewTrace(columns [][]fr.Element) (*Trace, error) {
	if len(columns) == 0 || len(columns[0]) == 0 {
		return nil, ErrEmptyTrace
	}
	n := len(columns[0])
	for _, c := range columns[1:] {
		if len(c) != n {
			return nil, ErrRaggedTrace
		}
	}
	if n&(n-1) != 0 {
		return nil, ErrInvalidTraceLength
	}
	return &Trace{columns: columns, length: n}, nil
}

// NbColumns returns the number of columns.
func (t *Trace) NbColumns() int { return len(t.columns) }

// Len returns the number of rows.
func (t *Trace) Len() int { return t.length }

// Column returns the i-th column.
func (t *Trace) Column(i int) []fr.Element { return t.columns[i] }

// Row copies the i-th row into a fresh slice.
func (t *Trace) Row(i int) []fr.Element {
	row := make([]fr.Element, len(t.columns))
	for j := range t.columns {
		row[j] = t.columns[j][i]
	}
	return row
}

// PadToPowerOfTwo pads every column to the next power of two by repeating
// its last value. The prover itself never pads: callers opt in with this
// helper and stay responsible for making their transition constraints hold
// on the repeated rows (for example with a selector column) and for binding
// terminal constraints to the padded end.
func PadToPowerOfTwo(columns [][]fr.Element) [][]fr.Element {
	if len(columns) == 0 || len(columns[0]) == 0 {
		return columns
	}
	n := len(columns[0])
	target := 1
	for target < n {
		target <<= 1
	}
	if target == n {
		return columns
	}
	padded := make([][]fr.Element, len(columns))
	for i, c := range columns {
		p := make([]fr.Element, target)
		copy(p, c)
		last := c[len(c)-1]
		for j := n; j < target; j++ {
			p[j] = last
		}
		padded[i] = p
	}
	return padded
}
