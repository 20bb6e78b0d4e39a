package blockpool

import "unsafe"

//go:nosplit
//go:inline
func uintptrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}
