package backend

import (
	"strings"
	"sync"

	logx "alarmd/pkg/logx"
)

// Mode is the configured backend preference.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeNative Mode = "native"
	ModeLegacy Mode = "legacy"
)

// ParseMode maps config text to a Mode; unknown values mean auto.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeNative:
		return ModeNative
	case ModeLegacy:
		return ModeLegacy
	default:
		return ModeAuto
	}
}

// Probe reports whether the native mechanism exists on this host.
type Probe func() bool

// ProbeFor builds the capability probe for a configured mode.
func ProbeFor(mode Mode, nativeAvailable bool) Probe {
	return func() bool {
		switch mode {
		case ModeNative:
			return true
		case ModeLegacy:
			return false
		default:
			return nativeAvailable
		}
	}
}

// Selector runs the capability probe once and memoizes the chosen backend.
type Selector struct {
	once   sync.Once
	probe  Probe
	native Scheduler
	legacy Scheduler
	log    logx.Logger

	chosen Scheduler
	probes int
}

func NewSelector(probe Probe, native, legacy Scheduler, log logx.Logger) *Selector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Selector{probe: probe, native: native, legacy: legacy, log: log}
}

// Select never fails: a missing or failed native backend yields legacy.
func (s *Selector) Select() Scheduler {
	s.once.Do(func() {
		s.probes++
		useNative := s.native != nil && s.probe != nil && s.probe()
		if useNative {
			s.chosen = s.native
		} else {
			s.chosen = s.legacy
		}
		s.log.Info("scheduler backend selected", logx.String("backend", s.chosen.Name()))
	})
	return s.chosen
}
