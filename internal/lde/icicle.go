//go:build icicle

package lde

import (
	"sync"
	"unsafe"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ingonyama-zk/icicle/goicicle"
	iciclegnark "github.com/ingonyama-zk/iciclegnark/curves/bn254"
)

const HasIcicle = true

type deviceCtx struct {
	initOnce sync.Once
	initErr  error

	twiddles   unsafe.Pointer // forward twiddles of the extended domain
	cosetTable unsafe.Pointer // coset powers of the extended domain
}

func (e *Extender) setupDevicePointers() error {
	if e.device == nil {
		e.device = &deviceCtx{}
	}
	e.device.initOnce.Do(func() {
		n := int(e.domainBig.Cardinality)
		sizeBytes := n * fr.Bytes

		twiddles, err := iciclegnark.GenerateTwiddleFactors(n, false)
		if err != nil {
			e.device.initErr = err
			return
		}
		e.device.twiddles = twiddles

		copyCosetDone := make(chan unsafe.Pointer, 1)
		go iciclegnark.CopyToDevice(e.domainBig.CosetTable, sizeBytes, copyCosetDone)
		e.device.cosetTable = <-copyCosetDone
	})
	return e.device.initErr
}

// extendFromCoefficientsDevice runs the coset NTTs on the CUDA device. Values
// cross the PCI bus in Montgomery form and are converted on the device, the
// same flow the CPU-side CopyToDevice wrapper uses in the other direction.
func (e *Extender) extendFromCoefficientsDevice(coeffs [][]fr.Element) ([][]fr.Element, error) {
	if err := e.setupDevicePointers(); err != nil {
		return nil, err
	}

	n := int(e.domainBig.Cardinality)
	sizeBytes := n * fr.Bytes

	res := make([][]fr.Element, len(coeffs))
	for i := range coeffs {
		if len(coeffs[i]) > n {
			return nil, ErrInvalidDomain
		}
		buf := make([]fr.Element, n)
		copy(buf, coeffs[i])

		copyDone := make(chan unsafe.Pointer, 1)
		go iciclegnark.CopyToDevice(buf, sizeBytes, copyDone)
		in := <-copyDone

		out, err := goicicle.CudaMalloc(sizeBytes)
		if err != nil {
			iciclegnark.FreeDevicePointer(in)
			return nil, err
		}

		iciclegnark.NttOnDevice(out, in, e.device.twiddles, e.device.cosetTable, n, n, sizeBytes, true)
		iciclegnark.MontConvOnDevice(out, n, true)

		goicicle.CudaMemCpyDtoH[fr.Element](buf, out, sizeBytes)

		go func() {
			iciclegnark.FreeDevicePointer(in)
			iciclegnark.FreeDevicePointer(out)
		}()

		res[i] = buf
	}
	return res, nil
}
