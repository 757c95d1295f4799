//go:build linux

package symbol

/*
#include <link.h>

extern int rstackPhdrCallback(struct dl_phdr_info *info, size_t size, void *data);
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"
)

// loadSelfImages enumerates the calling process's own loaded images via
// dl_iterate_phdr (spec §6 "Loader iteration", §9 "process-wide SymbolIndex
// as a lazy singleton"). It is grounded on
// original_source/rstack-self/src/dylibs.rs's load_state/callback: a cgo
// callback populates a Go-side accumulator, catching any panic raised from
// within the callback and resuming it once control is back on the Go
// stack, so a panic never crosses the C call frame (spec §9's "callback
// boundary" design note).
func loadSelfImages() []rawImage {
	acc := &phdrAccumulator{}
	h := cgo.NewHandle(acc)
	defer h.Delete()

	cHandle := C.uintptr_t(h)
	C.dl_iterate_phdr((*[0]byte)(C.rstackPhdrCallback), unsafe.Pointer(&cHandle))

	if acc.panicValue != nil {
		panic(acc.panicValue)
	}

	return acc.images
}

type phdrAccumulator struct {
	images     []rawImage
	panicValue any
}

//export rstackPhdrCallback
func rstackPhdrCallback(info *C.struct_dl_phdr_info, size C.size_t, data unsafe.Pointer) C.int {
	h := cgo.Handle(*(*C.uintptr_t)(data))
	acc := h.Value().(*phdrAccumulator)

	func() {
		defer func() {
			if r := recover(); r != nil {
				acc.panicValue = r
			}
		}()

		name := C.GoString(info.dlpi_name)
		acc.images = append(acc.images, rawImage{
			path:     name,
			loadBias: uint64(info.dlpi_addr),
		})
	}()

	if acc.panicValue != nil {
		return 1
	}
	return 0
}
