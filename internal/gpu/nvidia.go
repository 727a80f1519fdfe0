package gpu

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/events"
)

// nvidiaProbe shells out to nvidia-smi and parses a single CSV row of
// utilization/temperature/name/memory totals. Tried before any
// OS-specific backend on every platform, since nvidia-smi is the most
// reliable source whenever an NVIDIA card is present.
type nvidiaProbe struct{}

func newNvidiaProbe() *nvidiaProbe { return &nvidiaProbe{} }

func (p *nvidiaProbe) Name() string { return "nvidia-smi" }

func (p *nvidiaProbe) Sample(ctx context.Context) (events.GpuUsage, string, error) {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return events.GpuUsage{}, "", apperr.New(apperr.Unsupported, "nvidia-smi not found")
	}

	cmd := exec.CommandContext(ctx, path,
		"--query-gpu=utilization.gpu,utilization.memory,temperature.gpu,name,memory.total,memory.used",
		"--format=csv,noheader,nounits",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return events.GpuUsage{}, "", apperr.Wrap(apperr.Unsupported, err, "run nvidia-smi")
	}

	line := firstLine(out.String())
	parts := strings.Split(line, ", ")
	if len(parts) < 6 {
		return events.GpuUsage{}, "", apperr.New(apperr.ParseError, "unexpected nvidia-smi output")
	}

	load := parseFloatOr(parts[0], -1)
	temp := parseFloatOr(parts[2], -1)
	name := strings.TrimSpace(parts[3])
	usedMB := parseFloatOr(parts[5], -1)

	return events.GpuUsage{
		CurrentLoad:   load,
		CurrentTemp:   temp,
		CurrentMemory: int64(usedMB) * 1024 * 1024,
	}, name, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func parseFloatOr(raw string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fallback
	}
	return v
}
