package lde

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

func randomColumn(rng *rand.Rand, n int) []fr.Element {
	col := make([]fr.Element, n)
	for i := range col {
		col[i].SetUint64(rng.Uint64())
	}
	return col
}

// evalPoly evaluates the polynomial with the given coefficients at x.
func evalPoly(coeffs []fr.Element, x fr.Element) fr.Element {
	var res fr.Element
	for i := len(coeffs) - 1; i >= 0; i-- {
		res.Mul(&res, &x).Add(&res, &coeffs[i])
	}
	return res
}

func TestExtendAndInterpolateRoundTrip(t *testing.T) {
	assert := require.New(t)

	const n, blowup = 16, 4
	rng := rand.New(rand.NewSource(1))

	e, err := NewExtender(n, blowup, 0, "")
	assert.NoError(err)
	assert.Equal(uint64(n*blowup), e.LDESize())

	col := randomColumn(rng, n)
	ext, err := e.ExtendColumns([][]fr.Element{col})
	assert.NoError(err)
	assert.Len(ext, 1)
	assert.Len(ext[0], n*blowup)

	coeffs := e.InterpolateCoset(ext[0])
	for i := n; i < n*blowup; i++ {
		assert.True(coeffs[i].IsZero(), "coefficient %d beyond the trace degree must vanish", i)
	}

	// the restriction to the trace domain reproduces the column
	g := e.TraceDomain().Generator
	var x fr.Element
	x.SetOne()
	for i := 0; i < n; i++ {
		v := evalPoly(coeffs[:n], x)
		assert.True(v.Equal(&col[i]), "row %d", i)
		x.Mul(&x, &g)
	}
}

func TestExtendMatchesCosetEvaluation(t *testing.T) {
	assert := require.New(t)

	const n, blowup = 8, 4
	rng := rand.New(rand.NewSource(2))

	e, err := NewExtender(n, blowup, 0, "")
	assert.NoError(err)

	col := randomColumn(rng, n)
	ext, err := e.ExtendColumns([][]fr.Element{col})
	assert.NoError(err)

	coeffs := e.InterpolateCoset(ext[0])
	points := e.CosetPoints()
	assert.Len(points, n*blowup)

	for _, i := range []uint64{0, 1, 7, 13, 31} {
		p := CosetPoint(e.LDEDomain(), i)
		assert.True(p.Equal(&points[i]))
		v := evalPoly(coeffs, p)
		assert.True(v.Equal(&ext[0][i]), "point %d", i)
	}
}

func TestNextRowIsBlowupStepsAway(t *testing.T) {
	assert := require.New(t)

	const n, blowup = 16, 8
	rng := rand.New(rand.NewSource(3))

	e, err := NewExtender(n, blowup, 0, "")
	assert.NoError(err)

	col := randomColumn(rng, n)
	rotated := make([]fr.Element, n)
	for i := range rotated {
		rotated[i] = col[(i+1)%n]
	}

	ext, err := e.ExtendColumns([][]fr.Element{col, rotated})
	assert.NoError(err)

	// the rotated column's extension is the original one advanced by the
	// blowup factor: stepping blowup indices moves one trace row forward
	N := n * blowup
	for i := 0; i < N; i++ {
		assert.True(ext[1][i].Equal(&ext[0][(i+blowup)%N]), "index %d", i)
	}
}

func TestEvaluateXnMinusOneOnCoset(t *testing.T) {
	assert := require.New(t)

	const n, blowup = 32, 4

	e, err := NewExtender(n, blowup, 0, "")
	assert.NoError(err)

	table := e.EvaluateXnMinusOneOnCoset()
	assert.Len(table, blowup)

	var one fr.Element
	one.SetOne()
	for _, i := range []uint64{0, 1, 5, 63, 127} {
		x := CosetPoint(e.LDEDomain(), i)
		var expected fr.Element
		expected.Exp(x, big.NewInt(n))
		expected.Sub(&expected, &one)
		got := table[i%blowup]
		assert.True(got.Equal(&expected), "index %d", i)
	}
}

func TestNewExtenderRejectsBadSizes(t *testing.T) {
	assert := require.New(t)

	_, err := NewExtender(12, 4, 0, "")
	assert.ErrorIs(err, ErrInvalidDomain)
	_, err = NewExtender(16, 3, 0, "")
	assert.ErrorIs(err, ErrInvalidDomain)
	_, err = NewExtender(16, 1, 0, "")
	assert.ErrorIs(err, ErrInvalidDomain)
}
