package health

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Status is the /api/health payload: process and host vitals alongside the
// engine's own gauges.
type Status struct {
	Status         string  `json:"status"`
	UptimeSeconds  float64 `json:"uptimeSeconds"`
	Goroutines     int     `json:"goroutines"`
	RSSBytes       uint64  `json:"rssBytes,omitempty"`
	CPUPercent     float64 `json:"cpuPercent,omitempty"`
	HostMemUsedPct float64 `json:"hostMemUsedPercent,omitempty"`
	Sessions       int     `json:"sessions"`
	StreamTasks    int64   `json:"streamTasks"`
}

type Probe struct {
	started time.Time
	proc    *process.Process
}

func NewProbe() *Probe {
	// A failed process handle just means the optional fields stay zero.
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Probe{
		started: time.Now(),
		proc:    proc,
	}
}

func (p *Probe) Collect(sessions int, streamTasks int64) Status {
	st := Status{
		Status:        "ok",
		UptimeSeconds: time.Since(p.started).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		Sessions:      sessions,
		StreamTasks:   streamTasks,
	}
	if p.proc != nil {
		if mi, err := p.proc.MemoryInfo(); err == nil {
			st.RSSBytes = mi.RSS
		}
		if pct, err := p.proc.CPUPercent(); err == nil {
			st.CPUPercent = pct
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		st.HostMemUsedPct = vm.UsedPercent
	}
	return st
}
