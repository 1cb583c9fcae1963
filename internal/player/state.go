package player

import (
	"sync/atomic"

	"github.com/nkossifidis/audioscheduler/internal/metrics"
)

// State is one of the player's six lifecycle states. Transitions are
// driven either by the control plane (Pause/Resume/Stop) or by the
// sink callback completing a 2-second state fade (fsp_player.c's
// fsp_on_process).
type State int32

const (
	StateStopped State = iota
	StateResuming
	StatePlaying
	StatePausing
	StatePaused
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateResuming:
		return "resuming"
	case StatePlaying:
		return "playing"
	case StatePausing:
		return "pausing"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// stateFader drives the 2-second/96000-sample linear gain ramp played
// out across the Pausing->Paused and Resuming->Playing transitions,
// mirroring fsp_player.c's fsp_state_fader_state exactly (same total
// sample count, same slope, same "fade in" gain direction).
type stateFader struct {
	samplesTotal int64
	slope        float64
	samplesOut   int64
	active       bool
	gain         float64
}

func newStateFader(sampleRate int) *stateFader {
	total := int64(sampleRate) * 2
	return &stateFader{
		samplesTotal: total,
		slope:        1.0 / float64(total),
		gain:         1.0,
	}
}

func (f *stateFader) start(fadeIn bool) {
	f.samplesOut = 0
	f.active = true
	if fadeIn {
		f.gain = 0.0
	} else {
		f.gain = 1.0
	}
}

// step advances the fade by frames frames and returns the gain to
// apply to them. fadeIn selects which direction the ramp points.
func (f *stateFader) step(frames int, fadeIn bool) float64 {
	if !f.active {
		return f.gain
	}

	if f.samplesOut >= f.samplesTotal {
		f.active = false
		if fadeIn {
			f.gain = 1.0
		} else {
			f.gain = 0.0
		}
		return f.gain
	}

	remaining := f.samplesTotal - f.samplesOut
	if fadeIn {
		f.gain = float64(f.samplesOut) * f.slope
	} else {
		f.gain = float64(remaining) * f.slope
	}

	f.samplesOut += int64(frames)
	return f.gain
}

// atomicState is a thin wrapper around atomic.Int32 giving State-typed
// load/store/compare-and-swap without a per-call mutex, per spec.md §9.
type atomicState struct {
	v atomic.Int32
}

func (a *atomicState) Load() State {
	return State(a.v.Load())
}

func (a *atomicState) Store(s State) {
	a.v.Store(int32(s))
	metrics.SetPlayerState(int32(s))
}

func (a *atomicState) CompareAndSwap(old, new State) bool {
	ok := a.v.CompareAndSwap(int32(old), int32(new))
	if ok {
		metrics.SetPlayerState(int32(new))
	}
	return ok
}
