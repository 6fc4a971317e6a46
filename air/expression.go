package air

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Expression is a node of a constraint's algebraic expression. Expressions
// are built from the package constructors (Col, ColNext, Challenge, Public,
// Const, X) and composed with Add, Sub, Mul, Neg and Pow.
type Expression interface {
	// degree returns the degree of the expression where a trace cell counts
	// for traceDeg and the X variable for one.
	degree(traceDeg int) int

	// eval evaluates the expression against a row frame.
	eval(ctx *EvalContext) fr.Element

	// refs accumulates the column, challenge and public input indices the
	// expression touches.
	refs(r *refCounts)
}

// EvalContext carries the values an expression can reference: the current
// and next row of the (base plus auxiliary) trace frame, the transcript
// challenges, the public inputs and the evaluation point.
type EvalContext struct {
	Row     []fr.Element
	NextRow []fr.Element

	Challenges   []fr.Element
	PublicInputs []fr.Element

	X fr.Element
}

// Eval evaluates e against ctx.
func Eval(e Expression, ctx *EvalContext) fr.Element {
	return e.eval(ctx)
}

type refCounts struct {
	maxCol       int
	maxChallenge int
	maxPublic    int
	usesNext     bool
}

type traceVar struct {
	col    int
	offset int // 0 for the current row, 1 for the next row
}

type challengeVar struct{ idx int }

type publicVar struct{ idx int }

type constExpr struct{ v fr.Element }

type xVar struct{}

type addExpr struct{ a, b Expression }

type subExpr struct{ a, b Expression }

type mulExpr struct{ a, b Expression }

type negExpr struct{ a Expression }

type powExpr struct {
	a Expression
	k uint64
}

// Col references the cell of column col on the current row.
func Col(col int) Expression { return traceVar{col: col} }

// ColNext references the cell of column col on the next row.
func ColNext(col int) Expression { return traceVar{col: col, offset: 1} }

// Challenge references the idx-th transcript challenge.
func Challenge(idx int) Expression { return challengeVar{idx: idx} }

// Public references the idx-th public input.
func Public(idx int) Expression { return publicVar{idx: idx} }

// Const returns the constant expression v.
func Const(v uint64) Expression {
	var e fr.Element
	e.SetUint64(v)
	return constExpr{v: e}
}

// ConstElement returns the constant expression v.
func ConstElement(v fr.Element) Expression { return constExpr{v: v} }

// X references the evaluation point itself.
func X() Expression { return xVar{} }

// Add returns a + b (+ more).
func Add(a, b Expression, more ...Expression) Expression {
	res := Expression(addExpr{a: a, b: b})
	for _, m := range more {
		res = addExpr{a: res, b: m}
	}
	return res
}

// Sub returns a - b.
func Sub(a, b Expression) Expression { return subExpr{a: a, b: b} }

// Mul returns a * b (* more).
func Mul(a, b Expression, more ...Expression) Expression {
	res := Expression(mulExpr{a: a, b: b})
	for _, m := range more {
		res = mulExpr{a: res, b: m}
	}
	return res
}

// Neg returns -a.
func Neg(a Expression) Expression { return negExpr{a: a} }

// Pow returns a^k.
func Pow(a Expression, k uint64) Expression { return powExpr{a: a, k: k} }

func (e traceVar) degree(traceDeg int) int { return traceDeg }
func (e traceVar) eval(ctx *EvalContext) fr.Element {
	if e.offset == 0 {
		return ctx.Row[e.col]
	}
	return ctx.NextRow[e.col]
}
func (e traceVar) refs(r *refCounts) {
	if e.col > r.maxCol {
		r.maxCol = e.col
	}
	if e.offset != 0 {
		r.usesNext = true
	}
}

func (e challengeVar) degree(int) int { return 0 }
func (e challengeVar) eval(ctx *EvalContext) fr.Element {
	return ctx.Challenges[e.idx]
}
func (e challengeVar) refs(r *refCounts) {
	if e.idx > r.maxChallenge {
		r.maxChallenge = e.idx
	}
}

func (e publicVar) degree(int) int { return 0 }
func (e publicVar) eval(ctx *EvalContext) fr.Element {
	return ctx.PublicInputs[e.idx]
}
func (e publicVar) refs(r *refCounts) {
	if e.idx > r.maxPublic {
		r.maxPublic = e.idx
	}
}

func (e constExpr) degree(int) int { return 0 }

func (e constExpr) eval(*EvalContext) fr.Element { return e.v }

func (e constExpr) refs(*refCounts) {}

func (e xVar) degree(int) int { return 1 }
func (e xVar) eval(ctx *EvalContext) fr.Element {
	return ctx.X
}
func (e xVar) refs(*refCounts) {}

func (e addExpr) degree(traceDeg int) int {
	return max(e.a.degree(traceDeg), e.b.degree(traceDeg))
}
func (e addExpr) eval(ctx *EvalContext) fr.Element {
	a := e.a.eval(ctx)
	b := e.b.eval(ctx)
	a.Add(&a, &b)
	return a
}
func (e addExpr) refs(r *refCounts) {
	e.a.refs(r)
	e.b.refs(r)
}

func (e subExpr) degree(traceDeg int) int {
	return max(e.a.degree(traceDeg), e.b.degree(traceDeg))
}
func (e subExpr) eval(ctx *EvalContext) fr.Element {
	a := e.a.eval(ctx)
	b := e.b.eval(ctx)
	a.Sub(&a, &b)
	return a
}
func (e subExpr) refs(r *refCounts) {
	e.a.refs(r)
	e.b.refs(r)
}

func (e mulExpr) degree(traceDeg int) int {
	return e.a.degree(traceDeg) + e.b.degree(traceDeg)
}
func (e mulExpr) eval(ctx *EvalContext) fr.Element {
	a := e.a.eval(ctx)
	b := e.b.eval(ctx)
	a.Mul(&a, &b)
	return a
}
func (e mulExpr) refs(r *refCounts) {
	e.a.refs(r)
	e.b.refs(r)
}

func (e negExpr) degree(traceDeg int) int { return e.a.degree(traceDeg) }
func (e negExpr) eval(ctx *EvalContext) fr.Element {
	a := e.a.eval(ctx)
	a.Neg(&a)
	return a
}
func (e negExpr) refs(r *refCounts) { e.a.refs(r) }

func (e powExpr) degree(traceDeg int) int { return e.a.degree(traceDeg) * int(e.k) }
func (e powExpr) eval(ctx *EvalContext) fr.Element {
	base := e.a.eval(ctx)
	return powUint64(base, e.k)
}
func (e powExpr) refs(r *refCounts) { e.a.refs(r) }

// powUint64 computes base^k by squaring, avoiding the big.Int round trip of
// Element.Exp for the small exponents expressions carry.
func powUint64(base fr.Element, k uint64) fr.Element {
	var res fr.Element
	res.SetOne()
	for k > 0 {
		if k&1 == 1 {
			res.Mul(&res, &base)
		}
		base.Square(&base)
		k >>= 1
	}
	return res
}
