package air

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/piniom/ministark/debug"
)

// VanishingDomain designates the rows of the trace domain on which a
// constraint expression must evaluate to zero.
type VanishingDomain uint8

const (
	// FirstRow constrains the first row only.
	FirstRow VanishingDomain = iota
	// LastRow constrains the last row only.
	LastRow
	// Transition constrains every row except the last one. The next-row
	// references of the expression never wrap around the domain.
	Transition
	// AllRows constrains every row.
	AllRows
)

func (d VanishingDomain) String() string {
	switch d {
	case FirstRow:
		return "first row"
	case LastRow:
		return "last row"
	case Transition:
		return "transition"
	case AllRows:
		return "all rows"
	default:
		return fmt.Sprintf("unknown domain (%d)", uint8(d))
	}
}

// degree returns the degree of the vanishing polynomial of the domain over a
// trace domain of size n.
func (d VanishingDomain) degree(n int) int {
	switch d {
	case Transition:
		return n - 1
	case AllRows:
		return n
	default:
		return 1
	}
}

// EvalAt evaluates the vanishing polynomial of the domain at x, for a trace
// domain of size n whose last element is lastRoot.
func (d VanishingDomain) EvalAt(x fr.Element, n uint64, lastRoot fr.Element) fr.Element {
	var one fr.Element
	one.SetOne()
	switch d {
	case FirstRow:
		x.Sub(&x, &one)
		return x
	case LastRow:
		x.Sub(&x, &lastRoot)
		return x
	case Transition:
		// (xⁿ - 1) / (x - lastRoot)
		num := powUint64(x, n)
		num.Sub(&num, &one)
		x.Sub(&x, &lastRoot)
		x.Inverse(&x)
		num.Mul(&num, &x)
		return num
	case AllRows:
		res := powUint64(x, n)
		res.Sub(&res, &one)
		return res
	default:
		panic("unknown vanishing domain")
	}
}

// Constraint pairs an expression with the domain on which it must vanish.
type Constraint struct {
	Expr   Expression
	Domain VanishingDomain

	declaredAt string
}

// NewConstraint builds a constraint and records the caller's position, so
// that an unsatisfied constraint can be reported with the line that declared
// it.
func NewConstraint(expr Expression, domain VanishingDomain) Constraint {
	return Constraint{
		Expr:       expr,
		Domain:     domain,
		declaredAt: debug.Caller(0),
	}
}

// DeclaredAt returns the file:line the constraint was declared at, or the
// empty string when it was built as a struct literal.
func (c *Constraint) DeclaredAt() string {
	return c.declaredAt
}
