// Package decoder turns one scheduled track into a stream of
// interleaved float32 stereo frames at the player's fixed output rate,
// with per-track fade and ReplayGain already applied sample-by-sample
// (fsp_player.c's decode loop). Resampling/format conversion itself is
// delegated to ffmpeg via os/exec, following the teacher's
// internal/decoder/ffmpeg.go pattern — codec/resampler internals are
// out of scope for this module.
package decoder

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"

	"github.com/nkossifidis/audioscheduler/internal/logging"
	"github.com/nkossifidis/audioscheduler/internal/media"
)

var log = logging.For(logging.Plr)

const (
	SampleRate     = 48000
	Channels       = 2
	BytesPerSample = 4 // float32
	FrameBytes     = BytesPerSample * Channels
)

// PipelineError is the typed error surface for decode-pipeline setup
// and I/O failures.
type PipelineError struct {
	Path string
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("decode pipeline failed for %s: %v", e.Path, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// gainEnvelope tracks the per-track fade-in/out slopes and ReplayGain
// factor, combining them into one multiplier per output frame exactly
// as fsp_player.c's decode loop does: fade gain times replay gain,
// with the fade chosen by whichever edge (start or end) of the track
// the current sample position falls within.
type gainEnvelope struct {
	fadeInSlope    float64 // 1 / (sampleRate * fadeInSecs), 0 if no fade-in
	fadeOutSlope   float64
	fadeInSamples  int64
	fadeOutSamples int64
	replayGain     float64
	totalSamples   int64
	samplesPlayed  int64
}

func newGainEnvelope(info *media.AudioFileInfo) *gainEnvelope {
	ge := &gainEnvelope{
		replayGain:   1.0,
		totalSamples: int64(info.DurationSecs) * SampleRate,
	}

	gain := math.Pow(10, info.TrackGainDB/20)
	if gain == 0 {
		gain = 1.0
	}
	if info.TrackPeak > 0 {
		if limit := 1.0 / info.TrackPeak; gain > limit {
			log.Debugf("limiting replay gain to peak: %f", limit)
			gain = limit
		}
	}
	ge.replayGain = gain

	if info.Fader == nil {
		return ge
	}
	if info.Fader.FadeInSecs > 0 && info.Fader.FadeInSecs < float64(info.DurationSecs) {
		ge.fadeInSamples = int64(info.Fader.FadeInSecs * SampleRate)
		ge.fadeInSlope = 1.0 / float64(ge.fadeInSamples)
	}
	if info.Fader.FadeOutSecs > 0 && info.Fader.FadeOutSecs < float64(info.DurationSecs) {
		ge.fadeOutSamples = int64(info.Fader.FadeOutSecs * SampleRate)
		ge.fadeOutSlope = 1.0 / float64(ge.fadeOutSamples)
	}
	return ge
}

// gainForFrame returns the combined gain factor for the next frame and
// advances the played-sample counter by one frame.
func (ge *gainEnvelope) gainForFrame() float64 {
	faderGain := 1.0
	remaining := ge.totalSamples - ge.samplesPlayed

	switch {
	case ge.fadeInSlope > 0 && ge.samplesPlayed < ge.fadeInSamples:
		faderGain = ge.fadeInSlope * float64(ge.samplesPlayed)
	case ge.fadeOutSlope > 0 && remaining < ge.fadeOutSamples:
		faderGain = ge.fadeOutSlope * float64(remaining)
	}

	ge.samplesPlayed++
	return faderGain * ge.replayGain
}

// Decoder streams one track's audio as interleaved float32 stereo
// frames at SampleRate, applying the track's combined fade/ReplayGain
// envelope to every sample as it is read.
type Decoder struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	info   *media.AudioFileInfo
	gain   *gainEnvelope
}

// Open starts an ffmpeg subprocess decoding info.FilePath to raw
// interleaved float32 stereo PCM at SampleRate.
func Open(info *media.AudioFileInfo) (*Decoder, error) {
	cmd := exec.Command("ffmpeg",
		"-v", "error",
		"-i", info.FilePath,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-ac", fmt.Sprintf("%d", Channels),
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &PipelineError{Path: info.FilePath, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &PipelineError{Path: info.FilePath, Err: err}
	}

	return &Decoder{
		cmd:    cmd,
		stdout: stdout,
		info:   info,
		gain:   newGainEnvelope(info),
	}, nil
}

// ReadFrames reads up to len(out) interleaved stereo float32 frames
// (out must have a length that's a multiple of Channels), applying the
// track's gain envelope in place, and returns the number of frames
// filled. Returns io.EOF once ffmpeg's stdout is exhausted.
func (d *Decoder) ReadFrames(out []float32) (int, error) {
	if len(out)%Channels != 0 {
		return 0, fmt.Errorf("decoder: output slice length %d not a multiple of %d channels", len(out), Channels)
	}

	buf := make([]byte, len(out)*BytesPerSample)
	n, err := io.ReadFull(d.stdout, buf)
	if n == 0 {
		return 0, err
	}
	// io.ReadFull returns ErrUnexpectedEOF on a short final read; treat
	// it like a normal partial read followed by EOF on the next call.
	if err == io.ErrUnexpectedEOF {
		err = nil
	}

	framesRead := n / FrameBytes
	for f := 0; f < framesRead; f++ {
		gain := d.gain.gainForFrame()
		for ch := 0; ch < Channels; ch++ {
			off := f*FrameBytes + ch*BytesPerSample
			bits := binary.LittleEndian.Uint32(buf[off : off+4])
			sample := math.Float32frombits(bits)
			out[f*Channels+ch] = float32(float64(sample) * gain)
		}
	}

	return framesRead, err
}

// Close terminates the ffmpeg subprocess, waiting for it to exit.
func (d *Decoder) Close() error {
	if d.cmd == nil || d.cmd.Process == nil {
		return nil
	}
	_ = d.stdout.Close()
	_ = d.cmd.Process.Kill()
	return d.cmd.Wait()
}
