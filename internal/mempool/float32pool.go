// Package mempool recycles the float32 tensor buffers fed to the detector.
// The preview loop runs detection on a steady stream of equally sized
// frames, so buffers are bucketed by size class and reused.
package mempool

import "sync"

const classStep = 1024

var pools sync.Map // size class -> *sync.Pool

func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

func poolFor(cls int) *sync.Pool {
	if p, ok := pools.Load(cls); ok {
		return p.(*sync.Pool)
	}
	p, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]float32, cls)
		return &buf
	}})
	return p.(*sync.Pool)
}

// GetFloat32 returns a buffer of length n. Contents are not zeroed; callers
// overwrite every element. Return it with PutFloat32.
func GetFloat32(n int) []float32 {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	bp := poolFor(cls).Get().(*[]float32)
	buf := *bp
	if cap(buf) < cls {
		buf = make([]float32, cls)
	}
	return buf[:n]
}

// PutFloat32 hands buf back. Nil and foreign undersized slices are ignored.
func PutFloat32(buf []float32) {
	c := cap(buf)
	if c < classStep || c%classStep != 0 {
		return
	}
	full := buf[:c]
	poolFor(c).Put(&full)
}
