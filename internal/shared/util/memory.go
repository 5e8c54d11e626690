package util

import "runtime"

// HeapAllocMB returns the live heap in MiB, reported in run summaries.
func HeapAllocMB() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc >> 20
}
