package common

import (
	"fmt"
	"runtime"
	"time"
)

// MemoryStats is the subset of runtime.MemStats the benchmark reports.
type MemoryStats struct {
	Alloc         uint64
	TotalAlloc    uint64
	Sys           uint64
	Mallocs       uint64
	HeapObjects   uint64
	NumGC         uint32
	GCCPUFraction float64
}

// GetMemoryStats samples the runtime.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		Alloc:         m.Alloc,
		TotalAlloc:    m.TotalAlloc,
		Sys:           m.Sys,
		Mallocs:       m.Mallocs,
		HeapObjects:   m.HeapObjects,
		NumGC:         m.NumGC,
		GCCPUFraction: m.GCCPUFraction,
	}
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d (%.2f%% CPU)",
		m.Alloc/1024, m.TotalAlloc/1024, m.Sys/1024, m.NumGC, m.GCCPUFraction*100)
}

// BenchmarkResult is one benchmark run over Iterations calls.
type BenchmarkResult struct {
	Name         string
	Duration     time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
	Iterations   int
	Error        error
}

// Average is the mean duration per iteration.
func (br BenchmarkResult) Average() time.Duration {
	if br.Iterations <= 0 {
		return 0
	}
	return br.Duration / time.Duration(br.Iterations)
}

// AllocatedKB is the total allocation during the run. Unlike the live heap
// size it never goes negative when a GC lands mid-run.
func (br BenchmarkResult) AllocatedKB() uint64 {
	return (br.MemoryAfter.TotalAlloc - br.MemoryBefore.TotalAlloc) / 1024
}

func (br BenchmarkResult) String() string {
	if br.Error != nil {
		return fmt.Sprintf("%s: ERROR - %v", br.Name, br.Error)
	}
	return fmt.Sprintf("%s: %d iterations, avg: %v, total: %v, alloc: %d KB",
		br.Name, br.Iterations, br.Average(), br.Duration, br.AllocatedKB())
}
