//go:build linux

package gpu

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/events"
)

// sysfsProbe reads AMD/Intel GPU telemetry straight from sysfs/hwmon,
// reporting the first DRM card Discover finds. It backs the Linux arm
// of the probe chain once nvidia-smi has been ruled out.
type sysfsProbe struct {
	sysfsRoot   string
	debugfsRoot string
	logger      *slog.Logger
}

func newSysfsProbe(sysfsRoot, debugfsRoot string, logger *slog.Logger) *sysfsProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &sysfsProbe{sysfsRoot: sysfsRoot, debugfsRoot: debugfsRoot, logger: logger}
}

func (p *sysfsProbe) Name() string { return "sysfs" }

func (p *sysfsProbe) Sample(ctx context.Context) (events.GpuUsage, string, error) {
	cards, err := Discover(p.sysfsRoot, p.logger)
	if err != nil {
		return events.GpuUsage{}, "", apperr.Wrap(apperr.Internal, err, "discover gpu cards")
	}
	if len(cards) == 0 {
		return events.GpuUsage{}, "", apperr.New(apperr.Unsupported, "no drm cards found")
	}

	card := cards[0]
	reader, err := newCardReader(card.ID, p.sysfsRoot, p.debugfsRoot, p.logger)
	if err != nil {
		return events.GpuUsage{}, "", apperr.Wrap(apperr.Internal, err, "open card reader")
	}
	defer reader.close()

	m := reader.sample()

	usage := events.GpuUsage{}
	if m.gpuBusyPct != nil {
		usage.CurrentLoad = *m.gpuBusyPct
	} else {
		usage.CurrentLoad = -1
	}
	if m.tempC != nil {
		usage.CurrentTemp = *m.tempC
	} else {
		usage.CurrentTemp = -1
	}
	if m.vramUsedBytes != nil {
		usage.CurrentMemory = int64(*m.vramUsedBytes)
	} else {
		usage.CurrentMemory = -1
	}

	return usage, card.Name, nil
}

const (
	gpuBusyFilename   = "gpu_busy_percent"
	hwmonTempFile     = "temp1_input"
)

type cardMetrics struct {
	gpuBusyPct    *float64
	tempC         *float64
	vramUsedBytes *uint64
}

type cardReader struct {
	deviceRoot *os.Root
	hwmonRoot  *os.Root
}

func newCardReader(cardID, sysfsRoot, _ string, logger *slog.Logger) (*cardReader, error) {
	sysRoot, err := os.OpenRoot(sysfsRoot)
	if err != nil {
		return nil, fmt.Errorf("open sysfs root: %w", err)
	}
	defer sysRoot.Close()

	deviceRoot, err := sysRoot.OpenRoot(filepath.Join(drmClassPath, cardID, "device"))
	if err != nil {
		return nil, fmt.Errorf("open device root: %w", err)
	}

	return &cardReader{deviceRoot: deviceRoot, hwmonRoot: detectHwmon(deviceRoot)}, nil
}

func (r *cardReader) close() {
	if r.deviceRoot != nil {
		_ = r.deviceRoot.Close()
	}
	if r.hwmonRoot != nil {
		_ = r.hwmonRoot.Close()
	}
}

func (r *cardReader) sample() cardMetrics {
	m := cardMetrics{}
	m.gpuBusyPct = r.readPercent(gpuBusyFilename)
	m.vramUsedBytes = r.readUint("mem_info_vram_used")
	if r.hwmonRoot != nil {
		m.tempC = r.readScaledFloat(r.hwmonRoot, hwmonTempFile, 1000)
	}
	return m
}

func (r *cardReader) readPercent(name string) *float64 {
	v, err := r.readFloatValue(r.deviceRoot, name)
	if err != nil {
		return nil
	}
	if v < 0 {
		return nil
	}
	if v > 100 {
		v = v / 100
	}
	return &v
}

func (r *cardReader) readUint(name string) *uint64 {
	data, err := r.deviceRoot.ReadFile(name)
	if err != nil {
		return nil
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func (r *cardReader) readScaledFloat(root *os.Root, name string, divisor float64) *float64 {
	v, err := r.readFloatValue(root, name)
	if err != nil {
		return nil
	}
	v = v / divisor
	return &v
}

func (r *cardReader) readFloatValue(root *os.Root, name string) (float64, error) {
	if root == nil {
		return 0, fs.ErrNotExist
	}
	data, err := root.ReadFile(name)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s, 64)
}

func detectHwmon(deviceRoot *os.Root) *os.Root {
	if deviceRoot == nil {
		return nil
	}
	hwmonRoot, err := deviceRoot.OpenRoot("hwmon")
	if err != nil {
		return nil
	}
	entries, err := fs.ReadDir(hwmonRoot.FS(), ".")
	if err != nil {
		_ = hwmonRoot.Close()
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() || entry.Type()&fs.ModeSymlink != 0 {
			sub, err := hwmonRoot.OpenRoot(entry.Name())
			_ = hwmonRoot.Close()
			if err == nil {
				return sub
			}
			return nil
		}
	}
	_ = hwmonRoot.Close()
	return nil
}
