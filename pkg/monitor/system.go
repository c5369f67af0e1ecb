package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/dbops/toolkit/pkg/backup"
)

// SystemReport is a point-in-time snapshot of host resources.
type SystemReport struct {
	Hostname      string       `json:"hostname"`
	OS            string       `json:"os"`
	Platform      string       `json:"platform"`
	KernelVersion string       `json:"kernel_version"`
	BootTime      string       `json:"boot_time"`
	Uptime        string       `json:"uptime"`
	UptimeSeconds uint64       `json:"uptime_seconds"`
	CPU           CPUReport    `json:"cpu"`
	Memory        MemoryReport `json:"memory"`
	Disks         []DiskReport `json:"disks"`
}

type CPUReport struct {
	LogicalCores  int       `json:"logical_cores"`
	PhysicalCores int       `json:"physical_cores"`
	UsagePercent  float64   `json:"usage_percent"`
	LoadAverage   []float64 `json:"load_average,omitempty"`
}

type MemoryReport struct {
	Total        string  `json:"total"`
	Used         string  `json:"used"`
	Available    string  `json:"available"`
	UsedPercent  float64 `json:"used_percent"`
	SwapTotal    string  `json:"swap_total"`
	SwapUsed     string  `json:"swap_used"`
	SwapPercent  float64 `json:"swap_percent"`
	TotalBytes   uint64  `json:"total_bytes"`
	UsedBytes    uint64  `json:"used_bytes"`
	SwapBytes    uint64  `json:"swap_total_bytes"`
	SwapUsedByte uint64  `json:"swap_used_bytes"`
}

type DiskReport struct {
	Mountpoint  string  `json:"mountpoint"`
	Filesystem  string  `json:"filesystem"`
	Total       string  `json:"total"`
	Used        string  `json:"used"`
	Free        string  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// SystemMonitor collects host metrics. Partial failures degrade the report
// instead of failing it: a host without load averages still reports CPU.
type SystemMonitor struct {
	log *zap.Logger
}

func NewSystemMonitor(log *zap.Logger) *SystemMonitor {
	return &SystemMonitor{log: log.Named("system")}
}

// Report gathers the full host snapshot.
func (s *SystemMonitor) Report(ctx context.Context) (*SystemReport, error) {
	report := &SystemReport{}

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	report.Hostname = info.Hostname
	report.OS = info.OS
	report.Platform = info.Platform
	report.KernelVersion = info.KernelVersion
	report.BootTime = time.Unix(int64(info.BootTime), 0).Format("2006-01-02 15:04:05")
	report.UptimeSeconds = info.Uptime
	report.Uptime = FormatUptime(int64(info.Uptime))

	report.CPU = s.cpuReport(ctx)
	report.Memory = s.memoryReport(ctx)
	report.Disks = s.diskReport(ctx)
	return report, nil
}

func (s *SystemMonitor) cpuReport(ctx context.Context) CPUReport {
	var r CPUReport
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		r.LogicalCores = n
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		r.PhysicalCores = n
	}
	if percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(percents) > 0 {
		r.UsagePercent = percents[0]
	} else if err != nil {
		s.log.Debug("cpu usage unavailable", zap.Error(err))
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		r.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	}
	return r
}

func (s *SystemMonitor) memoryReport(ctx context.Context) MemoryReport {
	var r MemoryReport
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		r.Total = backup.FormatSize(int64(vm.Total))
		r.Used = backup.FormatSize(int64(vm.Used))
		r.Available = backup.FormatSize(int64(vm.Available))
		r.UsedPercent = vm.UsedPercent
		r.TotalBytes = vm.Total
		r.UsedBytes = vm.Used
	} else {
		s.log.Debug("memory stats unavailable", zap.Error(err))
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		r.SwapTotal = backup.FormatSize(int64(swap.Total))
		r.SwapUsed = backup.FormatSize(int64(swap.Used))
		r.SwapPercent = swap.UsedPercent
		r.SwapBytes = swap.Total
		r.SwapUsedByte = swap.Used
	}
	return r
}

func (s *SystemMonitor) diskReport(ctx context.Context) []DiskReport {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		s.log.Debug("disk partitions unavailable", zap.Error(err))
		return nil
	}
	var reports []DiskReport
	for _, p := range partitions {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		reports = append(reports, DiskReport{
			Mountpoint:  p.Mountpoint,
			Filesystem:  p.Fstype,
			Total:       backup.FormatSize(int64(usage.Total)),
			Used:        backup.FormatSize(int64(usage.Used)),
			Free:        backup.FormatSize(int64(usage.Free)),
			UsedPercent: usage.UsedPercent,
		})
	}
	return reports
}
