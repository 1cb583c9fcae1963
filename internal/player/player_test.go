package player

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkossifidis/audioscheduler/internal/decoder"
)

func TestStateFaderFadeInRampsZeroToOne(t *testing.T) {
	f := newStateFader(100) // 200 total samples for a short test
	f.start(true)
	require.Equal(t, 0.0, f.gain)

	g := f.step(1, true)
	require.InDelta(t, 0.0, g, 1e-9)

	// Completion is checked on entry to step, so the fade is only seen
	// as finished on the call after samplesOut reaches 200.
	for i := 0; i < 199; i++ {
		f.step(1, true)
	}
	require.True(t, f.active)

	g = f.step(1, true)
	require.Equal(t, 1.0, g)
	require.False(t, f.active)
}

func TestStateFaderFadeOutRampsOneToZero(t *testing.T) {
	f := newStateFader(100)
	f.start(false)
	require.Equal(t, 1.0, f.gain)

	for i := 0; i < 200; i++ {
		f.step(1, false)
	}
	g := f.step(1, false)
	require.Equal(t, 0.0, g)
	require.False(t, f.active)
}

func TestStateFaderInactiveReturnsLastGain(t *testing.T) {
	f := newStateFader(100)
	require.False(t, f.active)
	require.Equal(t, 1.0, f.step(10, true))
}

func newTestPlayer() *Player {
	p := New(nil)
	return p
}

func silentFrames(n int) []float32 {
	return make([]float32, n*decoder.Channels)
}

func TestProcessStoppedOutputsSilence(t *testing.T) {
	p := newTestPlayer()
	p.state.Store(StateStopped)
	dest := []float32{1, 1, 1, 1}
	p.Process(dest)
	for _, s := range dest {
		require.Equal(t, float32(0), s)
	}
}

func TestProcessUnderrunOutputsSilence(t *testing.T) {
	p := newTestPlayer()
	p.state.Store(StatePlaying)
	dest := silentFrames(4)
	for i := range dest {
		dest[i] = 1
	}
	p.Process(dest)
	for _, s := range dest {
		require.Equal(t, float32(0), s)
	}
}

func TestProcessPlayingPassesThroughRingData(t *testing.T) {
	p := newTestPlayer()
	p.state.Store(StatePlaying)

	frames := 4
	samples := make([]float32, frames*decoder.Channels)
	for i := range samples {
		samples[i] = float32(i+1) * 0.1
	}
	buf := make([]byte, len(samples)*decoder.BytesPerSample)
	floatSamplesToBytes(samples, buf)
	p.ring.Write(buf)

	dest := silentFrames(frames)
	p.Process(dest)
	for i := range dest {
		require.InDelta(t, samples[i], dest[i], 1e-6)
	}
}

func fillRing(t *testing.T, p *Player, frames int) {
	t.Helper()
	samples := make([]float32, frames*decoder.Channels)
	for i := range samples {
		samples[i] = 1.0
	}
	buf := make([]byte, len(samples)*decoder.BytesPerSample)
	floatSamplesToBytes(samples, buf)
	n := p.ring.Write(buf)
	require.Equal(t, len(buf), n)
}

func TestProcessPausingFadesToZeroThenPaused(t *testing.T) {
	p := newTestPlayer()
	p.fader = newStateFader(2) // 4 total samples; 2-frame periods fade over 2 calls
	p.state.Store(StatePausing)

	fillRing(t, p, 8)
	periodFrames := 2

	var lastGain float32 = 1
	for i := 0; i < 4; i++ {
		dest := silentFrames(periodFrames)
		p.Process(dest)
		lastGain = dest[0]
		if p.state.Load() == StatePaused {
			break
		}
	}

	require.Equal(t, StatePaused, p.state.Load())
	require.InDelta(t, 0.0, lastGain, 1e-6)
}

func TestProcessResumingFadesInThenPlaying(t *testing.T) {
	p := newTestPlayer()
	p.fader = newStateFader(2)
	p.state.Store(StateResuming)

	fillRing(t, p, 8)
	periodFrames := 2

	for i := 0; i < 4; i++ {
		dest := silentFrames(periodFrames)
		p.Process(dest)
		if p.state.Load() == StatePlaying {
			break
		}
	}

	require.Equal(t, StatePlaying, p.state.Load())
}

func TestPauseResumeOnlyApplyFromExpectedState(t *testing.T) {
	p := newTestPlayer()
	p.state.Store(StateStopped)
	p.Pause()
	require.Equal(t, StateStopped, p.state.Load())

	p.state.Store(StatePlaying)
	p.Pause()
	require.Equal(t, StatePausing, p.state.Load())

	p.state.Store(StatePaused)
	p.Resume()
	require.Equal(t, StateResuming, p.state.Load())
}

func TestSnapshotsAreNilSafe(t *testing.T) {
	p := newTestPlayer()
	require.Nil(t, p.CurrentSnapshot())
	require.Nil(t, p.NextSnapshot())
}
