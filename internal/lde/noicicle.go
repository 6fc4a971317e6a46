//go:build !icicle

package lde

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

const HasIcicle = false

type deviceCtx struct{}

func (e *Extender) extendFromCoefficientsDevice([][]fr.Element) ([][]fr.Element, error) {
	// NewExtender never enables the device path in a build without the
	// icicle tag
	return nil, errors.New("icicle backend not built")
}
