// Package procbackend lists, groups, kills, focuses, and launches host
// processes. Listing and killing are built on
// github.com/shirou/gopsutil/v3/process as one cross-platform
// implementation covering every target OS. Grouped names strip a
// vendor helper-process suffix ("Chrome Helper (Renderer)" -> "Chrome")
// so per-tab/per-helper processes of the same app collapse into one
// entry.
package procbackend

import (
	"context"
	"os/exec"
	"sort"
	"strings"
	"sync"

	gopsproc "github.com/shirou/gopsutil/v3/process"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/events"
)

// suffixes is checked in list order and the first match wins, so
// " Helper (Renderer)" is tried before the bare " Helper" suffix.
var suffixes = []string{
	" Helper (Renderer)",
	" Helper (GPU)",
	" Helper (Plugin)",
	" Helper (Networking)",
	" Helper",
	" Renderer",
	" GPU Process",
	" GPU",
	" Networking",
	" Plugin Host",
	" Plugin",
	" Agent",
	" Extension",
	" Web Content",
	" Utility",
	"Helper",
}

// normalizeName strips a vendor helper-process suffix and any
// parenthetical qualifier, so per-tab/per-helper processes of the same
// app group under one name.
func normalizeName(raw string) string {
	name := raw
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndex(name, " ("); idx >= 0 {
		name = strings.TrimSpace(name[:idx])
	}
	for _, suffix := range suffixes {
		if strings.HasSuffix(name, suffix) {
			stripped := strings.TrimSpace(strings.TrimSuffix(name, suffix))
			if stripped != "" {
				name = stripped
			}
			break
		}
	}
	return name
}

// Backend lists and controls host processes.
type Backend struct {
	mu        sync.Mutex
	titleFunc func() map[uint32]string
}

// New builds a Backend. titleFunc, when non-nil, supplies per-PID
// window titles; it is consulted by Details for has_window. With a nil
// titleFunc, Details reports no titles and has_window is false.
func New(titleFunc func() map[uint32]string) *Backend {
	return &Backend{titleFunc: titleFunc}
}

// List returns every running process grouped by normalized name, sorted
// by aggregate memory descending.
func (b *Backend) List(ctx context.Context) (events.ProcessListPayload, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return events.ProcessListPayload{}, apperr.Wrap(apperr.Internal, err, "enumerate processes")
	}

	agg := make(map[string]*events.ProcessInfo)
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		name = normalizeName(name)

		mem, err := p.MemoryInfoWithContext(ctx)
		var memBytes uint64
		if err == nil && mem != nil {
			memBytes = mem.RSS
		}

		cpuPct, _ := p.CPUPercentWithContext(ctx)

		entry, ok := agg[name]
		if !ok {
			entry = &events.ProcessInfo{Name: name}
			agg[name] = entry
		}
		entry.Count++
		entry.Memory += memBytes
		entry.CPUTime += cpuPct
	}

	out := make([]events.ProcessInfo, 0, len(agg))
	for _, entry := range agg {
		entry.MemoryMB = float64(entry.Memory) / (1024.0 * 1024.0)
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Memory > out[j].Memory })

	return events.ProcessListPayload{Processes: out, TotalCount: len(out)}, nil
}

// Details returns every live process whose normalized name matches name
// (case-insensitive), for GET /api/processes/:name.
func (b *Backend) Details(ctx context.Context, name string) ([]events.ProcessDetail, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "enumerate processes")
	}

	titles := b.windowTitles()
	target := strings.ToLower(name)

	var out []events.ProcessDetail
	for _, p := range procs {
		raw, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.ToLower(normalizeName(raw)) != target {
			continue
		}

		mem, _ := p.MemoryInfoWithContext(ctx)
		var memBytes uint64
		if mem != nil {
			memBytes = mem.RSS
		}
		cpuPct, _ := p.CPUPercentWithContext(ctx)

		detail := events.ProcessDetail{
			PID:    uint32(p.Pid),
			Name:   raw,
			Memory: memBytes,
			CPU:    cpuPct,
		}
		if title, ok := titles[uint32(p.Pid)]; ok {
			t := title
			detail.Title = &t
			detail.HasWindow = true
		}
		out = append(out, detail)
	}
	return out, nil
}

func (b *Backend) windowTitles() map[uint32]string {
	b.mu.Lock()
	fn := b.titleFunc
	b.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn()
}

// KillByPID terminates a single process by pid.
func (b *Backend) KillByPID(ctx context.Context, pid uint32) error {
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return apperr.Wrap(apperr.NotFound, err, "find process")
	}
	if err := p.KillWithContext(ctx); err != nil {
		return apperr.Wrap(apperr.Internal, err, "kill process")
	}
	return nil
}

// KillByName terminates every process whose normalized name matches
// name, returning the count killed.
func (b *Backend) KillByName(ctx context.Context, name string) (int, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "enumerate processes")
	}
	target := strings.ToLower(name)
	killed := 0
	for _, p := range procs {
		raw, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.ToLower(normalizeName(raw)) != target {
			continue
		}
		if err := p.KillWithContext(ctx); err == nil {
			killed++
		}
	}
	if killed == 0 {
		return 0, apperr.New(apperr.NotFound, "no matching process")
	}
	return killed, nil
}

// Launch starts a new detached process by executable path and
// arguments. The child is not tied to ctx, so it keeps running after
// the calling request or connection ends.
func (b *Backend) Launch(_ context.Context, path string, args []string) (int, error) {
	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "launch process")
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
