// Package topics implements the subscription topic grammar: canonical
// names, legacy aliases, umbrella expansion, and the family each topic
// belongs to for loop-manager purposes.
package topics

import "strings"

// Family is the coarsest grouping that shares a single worker loop.
type Family string

const (
	FamilyStats     Family = "stats"
	FamilyMedia     Family = "media"
	FamilyProcesses Family = "processes"
	FamilyUnknown   Family = ""
)

// Canonical topic names recognized by the stats loop's demand mask.
const (
	Stats        = "stats"
	StatsCPU     = "stats.cpu"
	StatsMemory  = "stats.memory"
	StatsGPU     = "stats.gpu"
	StatsDisks   = "stats.disks"
	StatsNetwork = "stats.network"
	StatsMedia   = "stats.media"
	Media        = "media"
	Processes    = "processes"
	Process      = "process"
	System       = "system"

	aliasCPU     = "cpu"
	aliasMemory  = "memory"
	aliasGPU     = "gpu"
	aliasDisks   = "disks"
	aliasNetwork = "network"
	aliasNet     = "net"
)

// statsFamilyMembers lists every topic name that counts as "stats" demand
// for loop-liveness purposes.
var statsFamilyMembers = []string{
	Stats, StatsCPU, StatsMemory, StatsGPU, StatsDisks, StatsNetwork,
	aliasCPU, aliasMemory, aliasGPU, aliasDisks, aliasNetwork, System,
}

var mediaFamilyMembers = []string{Media, StatsMedia}

var processesFamilyMembers = []string{Processes, Process}

// Expand maps a single client-supplied topic token (already lowercased) to
// the full set of canonical names it represents. Unknown topics pass
// through verbatim.
func Expand(topic string) []string {
	switch topic {
	case Stats:
		return []string{
			Stats, StatsCPU, StatsMemory, StatsGPU, StatsDisks, StatsNetwork,
			aliasCPU, aliasMemory, aliasGPU, aliasDisks, aliasNetwork,
		}
	case aliasCPU:
		return []string{aliasCPU, StatsCPU}
	case aliasMemory:
		return []string{aliasMemory, StatsMemory}
	case aliasGPU:
		return []string{aliasGPU, StatsGPU}
	case aliasDisks:
		return []string{aliasDisks, StatsDisks}
	case aliasNetwork, aliasNet:
		return []string{aliasNetwork, StatsNetwork}
	case "process":
		return []string{Processes, Process}
	default:
		return []string{topic}
	}
}

// ExpandAll lowercases and expands a whole requested topic list into a
// deduplicated canonical set.
func ExpandAll(requested []string) map[string]struct{} {
	out := make(map[string]struct{}, len(requested)*2)
	for _, t := range requested {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" {
			continue
		}
		for _, canonical := range Expand(lower) {
			out[canonical] = struct{}{}
		}
	}
	return out
}

// FamilyOf reports which loop family owns a canonical (or alias) topic
// name. Unrecognized topics have no family and never start a loop.
func FamilyOf(topic string) Family {
	for _, t := range statsFamilyMembers {
		if t == topic {
			return FamilyStats
		}
	}
	for _, t := range mediaFamilyMembers {
		if t == topic {
			return FamilyMedia
		}
	}
	for _, t := range processesFamilyMembers {
		if t == topic {
			return FamilyProcesses
		}
	}
	return FamilyUnknown
}

// MembersOf returns every topic name belonging to a family, used to test
// "does this family still have any demand" without re-deriving the list.
func MembersOf(f Family) []string {
	switch f {
	case FamilyStats:
		return statsFamilyMembers
	case FamilyMedia:
		return mediaFamilyMembers
	case FamilyProcesses:
		return processesFamilyMembers
	default:
		return nil
	}
}

// AllFamilies lists every family the loop manager owns a slot for.
func AllFamilies() []Family {
	return []Family{FamilyStats, FamilyMedia, FamilyProcesses}
}
