// Package sink provides the audio output backend the player pulls
// frames through. fsp_player.c drives a Pipewire stream's process
// callback; this module's real backend drives a portaudio callback
// stream instead (grounded on doismellburning-samoyed's dependency on
// gordonklaus/portaudio), behind a small interface so the player and
// its tests never depend on a real sound card.
package sink

import (
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/nkossifidis/audioscheduler/internal/logging"
)

var log = logging.For(logging.Plr)

// Sink is anything that can pull interleaved stereo float32 frames
// from a Process callback at a fixed cadence. Start must call process
// repeatedly (on whatever internal cadence the backend uses) until
// Stop is called.
type Sink interface {
	Start(process func(dest []float32)) error
	Stop() error
}

// PortAudioSink drives process via a gordonklaus/portaudio callback
// stream opened on the system's default output device.
type PortAudioSink struct {
	sampleRate   float64
	channels     int
	framesPerBuf int
	stream       *portaudio.Stream
}

// NewPortAudioSink prepares (but does not yet open) a sink at the
// given sample rate/channel count/period size.
func NewPortAudioSink(sampleRate float64, channels, framesPerBuffer int) *PortAudioSink {
	return &PortAudioSink{sampleRate: sampleRate, channels: channels, framesPerBuf: framesPerBuffer}
}

// Start initializes portaudio and opens a default output stream whose
// callback forwards directly into process.
func (s *PortAudioSink) Start(process func(dest []float32)) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio initialize: %w", err)
	}

	cb := func(out []float32) {
		process(out)
	}

	stream, err := portaudio.OpenDefaultStream(0, s.channels, s.sampleRate, s.framesPerBuf, cb)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("portaudio open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("portaudio start stream: %w", err)
	}

	s.stream = stream
	log.Infof("portaudio sink started: %gHz x%d, period %d frames", s.sampleRate, s.channels, s.framesPerBuf)
	return nil
}

// Stop closes the stream and releases portaudio's process-wide state.
func (s *PortAudioSink) Stop() error {
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		log.Warnf("portaudio stop stream: %v", err)
	}
	if err := s.stream.Close(); err != nil {
		log.Warnf("portaudio close stream: %v", err)
	}
	s.stream = nil
	return portaudio.Terminate()
}

// NullSink drives process on its own ticking goroutine without
// touching any real audio device — used in tests and in deployments
// that only need the schedule/metadata side effects.
type NullSink struct {
	framesPerBuf int
	stop         chan struct{}
	done         chan struct{}
}

// NewNullSink prepares a sink that calls process every period with a
// scratch buffer of framesPerBuffer*channels samples.
func NewNullSink(framesPerBuffer, channels int) *NullSink {
	return &NullSink{framesPerBuf: framesPerBuffer * channels}
}

func (s *NullSink) Start(process func(dest []float32)) error {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		buf := make([]float32, s.framesPerBuf)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				process(buf)
			}
		}
	}()
	return nil
}

func (s *NullSink) Stop() error {
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	<-s.done
	return nil
}
