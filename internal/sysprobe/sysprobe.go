// ABOUTME: Host and process statistics for the ping command
// ABOUTME: Collects CPU, load, memory, disk, GPU and process data via gopsutil and formats a chat reply

package sysprobe

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Stats is one snapshot. Zero fields mean the probe was unavailable.
type Stats struct {
	GoVersion string
	Platform  string
	CPUModel  string
	CPUCores  int
	Load      *load.AvgStat

	MemTotal uint64
	MemUsed  uint64
	MemFree  uint64

	DiskPath  string
	DiskTotal uint64
	DiskUsed  uint64

	GPU          string
	TopProcesses []ProcStat

	HostUptime    time.Duration
	ProcessUptime time.Duration
}

// Probe collects Stats. Started anchors the process uptime.
type Probe struct {
	Started  time.Time
	DiskPath string

	run      commandRunner
	readFile func(string) ([]byte, error)
}

// New creates a probe anchored at started, measuring disk usage of diskPath.
func New(started time.Time, diskPath string) *Probe {
	if diskPath == "" {
		diskPath = "."
	}
	return &Probe{Started: started, DiskPath: diskPath, run: runCommand, readFile: os.ReadFile}
}

// Collect gathers a snapshot. Individual probe failures leave fields zero.
func (p *Probe) Collect(ctx context.Context, now time.Time) Stats {
	s := Stats{
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		DiskPath:      p.DiskPath,
		ProcessUptime: now.Sub(p.Started),
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		s.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		s.CPUCores = n
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.Load = avg
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemTotal = vm.Total
		s.MemUsed = vm.Used
		s.MemFree = vm.Available
	}
	if du, err := disk.UsageWithContext(ctx, p.DiskPath); err == nil {
		s.DiskTotal = du.Total
		s.DiskUsed = du.Used
	}
	if secs, err := host.UptimeWithContext(ctx); err == nil {
		s.HostUptime = time.Duration(secs) * time.Second
	}
	s.GPU = detectGPU(ctx, p.run, p.readFile)
	s.TopProcesses = topProcesses(ctx, TopN)
	return s
}

const unavailable = "n/a"

// Format renders the ping reply. elapsed is the time spent handling the command.
func (s Stats) Format(elapsed time.Duration) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		b.WriteString(fmt.Sprintf(format, args...))
		b.WriteByte('\n')
	}

	line("*BOT PING*")
	line("• Response: %d ms", elapsed.Milliseconds())
	line("• Go: %s %s", s.GoVersion, s.Platform)
	line("• CPU: %s", orNA(s.CPUModel))
	if s.CPUCores > 0 {
		line("• CPU cores: %d", s.CPUCores)
	} else {
		line("• CPU cores: %s", unavailable)
	}
	if s.Load != nil {
		line("• Load (1,5,15): %.2f, %.2f, %.2f", s.Load.Load1, s.Load.Load5, s.Load.Load15)
	} else {
		line("• Load (1,5,15): %s", unavailable)
	}
	if s.MemTotal > 0 {
		line("• Memory: %s used of %s (%s free)",
			humanize.IBytes(s.MemUsed), humanize.IBytes(s.MemTotal), humanize.IBytes(s.MemFree))
	} else {
		line("• Memory: %s", unavailable)
	}
	if s.DiskTotal > 0 {
		pct := float64(s.DiskUsed) / float64(s.DiskTotal) * 100
		line("• Disk (%s): %s used of %s (%.0f%%)",
			s.DiskPath, humanize.IBytes(s.DiskUsed), humanize.IBytes(s.DiskTotal), pct)
	} else {
		line("• Disk (%s): %s", s.DiskPath, unavailable)
	}
	line("• GPU: %s", orNA(s.GPU))
	if len(s.TopProcesses) > 0 {
		line("• Top processes:")
		for _, p := range s.TopProcesses {
			line("  %d %s %.1f%% %s", p.PID, orNA(p.Name), p.CPU, humanize.IBytes(p.RSS))
		}
	}
	line("• OS uptime: %s", formatUptime(s.HostUptime))
	b.WriteString(fmt.Sprintf("• Process uptime: %s", formatUptime(s.ProcessUptime)))
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return unavailable
	}
	return s
}

func formatUptime(d time.Duration) string {
	if d <= 0 {
		return unavailable
	}
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		return fmt.Sprintf("%sd %s", humanize.Comma(int64(days)), d)
	}
	return d.String()
}
