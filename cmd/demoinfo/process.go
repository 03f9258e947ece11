package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/process"
)

// processStats потребление ресурсов текущим процессом
type processStats struct {
	RSS        uint64
	CPUPercent float64
	HeapAlloc  uint64
}

func readProcessStats() (processStats, error) {
	var st processStats

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	st.HeapAlloc = m.HeapAlloc

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return st, err
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		st.RSS = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	return st, nil
}

func printProcess(w io.Writer, elapsed time.Duration) {
	st, err := readProcessStats()
	if err != nil {
		fmt.Fprintf(w, "время: %s\n", elapsed.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(w, "время: %s, память: %s (куча %s), CPU: %.1f%%\n",
		elapsed.Round(time.Millisecond), humanize.Bytes(st.RSS), humanize.Bytes(st.HeapAlloc), st.CPUPercent)
}
