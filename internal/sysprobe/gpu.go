// ABOUTME: GPU and busiest-process lookups for the ping command
// ABOUTME: GPU falls back from nvidia-smi to glxinfo to the Adreno sysfs node

package sysprobe

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	commandTimeout = 2 * time.Second
	adrenoGmem   = "/sys/class/kgsl/kgsl-3d0/gmem_total"
	// TopN is how many processes the ping reply lists.
	TopN = 5
)

// commandRunner runs an external program and returns its stdout.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ProcStat is one entry of the busiest-process list.
type ProcStat struct {
	PID  int32
	Name string
	CPU  float64
	RSS  uint64
}

// detectGPU returns the first useful GPU description, or "".
func detectGPU(ctx context.Context, run commandRunner, readFile func(string) ([]byte, error)) string {
	try := func(name string, args ...string) []byte {
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		out, err := run(ctx, name, args...)
		if err != nil {
			return nil
		}
		return out
	}

	nvidia := try("nvidia-smi", "--query-gpu=name,utilization.gpu,memory.total,memory.used", "--format=csv,noheader")
	if s := strings.TrimSpace(string(nvidia)); s != "" {
		return s
	}

	sc := bufio.NewScanner(bytes.NewReader(try("glxinfo", "-B")))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); strings.HasPrefix(line, "OpenGL renderer") {
			return line
		}
	}

	if data, err := readFile(adrenoGmem); err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			return "Adreno gmem_total: " + s
		}
	}
	return ""
}

// topProcesses samples every visible process. Processes that vanish or
// deny access mid-scan are skipped.
func topProcesses(ctx context.Context, n int) []ProcStat {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil
	}
	stats := make([]ProcStat, 0, len(procs))
	for _, p := range procs {
		cpu, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			continue
		}
		st := ProcStat{PID: p.Pid, CPU: cpu}
		if name, err := p.NameWithContext(ctx); err == nil {
			st.Name = name
		}
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			st.RSS = mi.RSS
		}
		stats = append(stats, st)
	}
	return rankProcesses(stats, n)
}

// rankProcesses orders by CPU, then RSS, then PID, and keeps the first n.
func rankProcesses(stats []ProcStat, n int) []ProcStat {
	sort.SliceStable(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.CPU != b.CPU {
			return a.CPU > b.CPU
		}
		if a.RSS != b.RSS {
			return a.RSS > b.RSS
		}
		return a.PID < b.PID
	})
	if len(stats) > n {
		stats = stats[:n]
	}
	return stats
}
