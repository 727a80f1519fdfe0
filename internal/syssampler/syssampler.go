// Package syssampler reads host vitals (CPU, memory, disk, network,
// uptime) via github.com/shirou/gopsutil/v3, the cross-platform metrics
// library used throughout this tree.
package syssampler

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/events"
)

// Sampler reads live system vitals on demand. It holds no cache itself;
// the loop manager and the HTTP handlers each decide their own caching
// policy (the GPU cache is the one stateful exception).
type Sampler struct {
	logger *slog.Logger
}

// New builds a Sampler.
func New(logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{logger: logger.With("component", "syssampler")}
}

// CPU samples instantaneous utilization, clock speed and, where
// available, package temperature.
func (s *Sampler) CPU(ctx context.Context) (events.CpuUsage, error) {
	percents, err := cpu.PercentWithContext(ctx, 150*time.Millisecond, false)
	if err != nil {
		return events.CpuUsage{}, apperr.Wrap(apperr.Internal, err, "sample cpu percent")
	}
	var load float64
	if len(percents) > 0 {
		load = percents[0]
	}

	var speed float64
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		speed = infos[0].Mhz
	}

	temp := s.cpuTemperature(ctx)

	return events.CpuUsage{CurrentLoad: load, CurrentTemp: temp, CurrentSpeed: speed}, nil
}

func (s *Sampler) cpuTemperature(ctx context.Context) float64 {
	sensors, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil || len(sensors) == 0 {
		return 0
	}
	for _, sensor := range sensors {
		key := sensor.SensorKey
		if contains(key, "package") || contains(key, "cpu") || contains(key, "tctl") {
			return sensor.Temperature
		}
	}
	return sensors[0].Temperature
}

func contains(haystack, needle string) bool {
	if len(needle) == 0 {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := 0; j < len(needle); j++ {
			a, b := haystack[i+j], needle[j]
			if a >= 'A' && a <= 'Z' {
				a += 'a' - 'A'
			}
			if b >= 'A' && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Memory samples current RAM usage.
func (s *Sampler) Memory(ctx context.Context) (events.MemoryUsage, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return events.MemoryUsage{}, apperr.Wrap(apperr.Internal, err, "sample memory")
	}
	return events.MemoryUsage{Used: v.Used, Free: v.Available, UsedPercent: v.UsedPercent}, nil
}

// Disks samples every mounted, non-virtual filesystem's usage.
func (s *Sampler) Disks(ctx context.Context) ([]events.DiskUsage, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list disk partitions")
	}
	out := make([]events.DiskUsage, 0, len(parts))
	for _, p := range parts {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			s.logger.Debug("skip unreadable mount", "mountpoint", p.Mountpoint, "error", err)
			continue
		}
		out = append(out, events.DiskUsage{
			FS:          p.Mountpoint,
			Used:        usage.Used,
			Available:   usage.Free,
			UsedPercent: usage.UsedPercent,
		})
	}
	return out, nil
}

// Network sums counters across every interface into one cumulative
// sample.
func (s *Sampler) Network(ctx context.Context) (events.NetworkUsage, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return events.NetworkUsage{}, apperr.Wrap(apperr.Internal, err, "sample network counters")
	}
	var sent, recv uint64
	for _, c := range counters {
		sent += c.BytesSent
		recv += c.BytesRecv
	}
	return events.NetworkUsage{BytesSent: sent, BytesRecv: recv}, nil
}

// Uptime reports host uptime in seconds.
func (s *Sampler) Uptime(ctx context.Context) (uint64, error) {
	up, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "sample uptime")
	}
	return up, nil
}

// SystemInfo is the static, rarely-changing machine identity returned by
// GET /api/system.
type SystemInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Platform     string `json:"platform"`
	Arch         string `json:"arch"`
	CPUModel     string `json:"cpu_model"`
	CPUCores     int    `json:"cpu_cores"`
	TotalMemory  uint64 `json:"total_memory"`
	KernelVer    string `json:"kernel_version"`
}

// Info assembles the static system identity.
func (s *Sampler) Info(ctx context.Context) (SystemInfo, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return SystemInfo{}, apperr.Wrap(apperr.Internal, err, "read host info")
	}
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SystemInfo{}, apperr.Wrap(apperr.Internal, err, "read total memory")
	}

	model := ""
	cores := 0
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		model = infos[0].ModelName
		for _, c := range infos {
			cores += int(c.Cores)
		}
	}

	return SystemInfo{
		Hostname:    info.Hostname,
		OS:          info.OS,
		Platform:    info.Platform,
		Arch:        info.KernelArch,
		CPUModel:    model,
		CPUCores:    cores,
		TotalMemory: v.Total,
		KernelVer:   info.KernelVersion,
	}, nil
}

// SystemUsage is the one-shot vitals snapshot returned by GET
// /api/usage, independent of any subscription demand.
type SystemUsage struct {
	CPU     events.CpuUsage     `json:"cpu"`
	Memory  events.MemoryUsage  `json:"memory"`
	Disks   []events.DiskUsage  `json:"disks"`
	Network events.NetworkUsage `json:"network"`
	Uptime  uint64              `json:"uptime"`
}

// Usage assembles a full one-shot snapshot.
func (s *Sampler) Usage(ctx context.Context) (SystemUsage, error) {
	c, err := s.CPU(ctx)
	if err != nil {
		return SystemUsage{}, err
	}
	m, err := s.Memory(ctx)
	if err != nil {
		return SystemUsage{}, err
	}
	d, err := s.Disks(ctx)
	if err != nil {
		return SystemUsage{}, err
	}
	n, err := s.Network(ctx)
	if err != nil {
		return SystemUsage{}, err
	}
	up, err := s.Uptime(ctx)
	if err != nil {
		return SystemUsage{}, err
	}
	return SystemUsage{CPU: c, Memory: m, Disks: d, Network: n, Uptime: up}, nil
}
