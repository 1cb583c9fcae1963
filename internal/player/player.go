// Package player runs the playback pipeline: a scheduler goroutine
// keeps the next track pre-loaded, a decoder goroutine feeds decoded,
// gain-adjusted frames into a ring buffer, and the sink's own callback
// (invoked on Process) drains it — applying the Pausing/Resuming state
// fade and silence-on-underrun behavior exactly as fsp_player.c's
// fsp_on_process does. There is deliberately no central "run loop"
// goroutine: the sink backend owns the real-time callback thread.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nkossifidis/audioscheduler/internal/decoder"
	"github.com/nkossifidis/audioscheduler/internal/logging"
	"github.com/nkossifidis/audioscheduler/internal/media"
	"github.com/nkossifidis/audioscheduler/internal/metrics"
	"github.com/nkossifidis/audioscheduler/internal/ringbuffer"
	"github.com/nkossifidis/audioscheduler/internal/schedule"
)

var log = logging.For(logging.Plr)

// PeriodFrames is the number of frames the decoder goroutine pulls
// from ffmpeg and pushes to the ring buffer per iteration, matching
// fsp_player.c's FSP_PERIOD_SIZE.
const PeriodFrames = 2048

// PipelineError is the typed error surface for player lifecycle
// failures (start/stop, decoder setup).
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("player: %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Player owns the current/next track slots, the ring buffer and the
// state machine. Process is safe to call from a real-time audio
// callback: it takes no mutex, and allocates only when its reused
// scratch buffer has to grow (on the first call, or for a larger period).
type Player struct {
	sched *schedule.Scheduler

	mu        sync.Mutex
	current   *media.AudioFileInfo
	next      *media.AudioFileInfo
	startedAt time.Time

	ring  *ringbuffer.Buffer
	state atomicState
	fader *stateFader

	spaceAvailable chan struct{}
	nextWanted     chan struct{}

	scratch []byte // reused byte staging buffer for Process, grown on demand

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Player around an already-initialized Scheduler.
func New(sched *schedule.Scheduler) *Player {
	return &Player{
		sched:          sched,
		ring:           ringbuffer.New(ringbuffer.DefaultSize),
		fader:          newStateFader(decoder.SampleRate),
		spaceAvailable: make(chan struct{}, 1),
		nextWanted:     make(chan struct{}, 1),
	}
}

// Start launches the scheduler and decoder goroutines and transitions
// to Resuming, so the first frames out of the sink fade in rather than
// starting at full volume. A no-op on a second call (spec.md §5: Start
// is idempotent).
func (p *Player) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.state.Store(StateResuming)
	p.fader.start(true)

	p.wg.Add(2)
	go p.schedulerLoop(ctx)
	go p.decoderLoop(ctx)

	signalNonBlocking(p.nextWanted)
	log.Infof("player started")
	return nil
}

// Stop transitions to Stopping, waits for both goroutines to exit and
// releases the ring buffer's locked memory.
func (p *Player) Stop() error {
	p.state.Store(StateStopping)
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.state.Store(StateStopped)
	return p.ring.Close()
}

// Pause requests a fade-out to Paused. A no-op outside Playing.
func (p *Player) Pause() {
	if p.state.CompareAndSwap(StatePlaying, StatePausing) {
		log.Infof("pausing")
	}
}

// Resume requests a fade-in back to Playing. A no-op outside Paused.
func (p *Player) Resume() {
	if p.state.CompareAndSwap(StatePaused, StateResuming) {
		log.Infof("resuming")
	}
}

// State returns the current lifecycle state.
func (p *Player) State() State {
	return p.state.Load()
}

// CurrentSnapshot returns a deep copy of the currently playing item,
// safe to hand to the metadata HTTP handler.
func (p *Player) CurrentSnapshot() *media.AudioFileInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Snapshot()
}

// NextSnapshot returns a deep copy of the pre-loaded next item, or nil
// if the scheduler hasn't produced one yet.
func (p *Player) NextSnapshot() *media.AudioFileInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next.Snapshot()
}

// Elapsed returns how long the current track has been playing, in
// whole seconds. Zero if nothing is playing yet.
func (p *Player) Elapsed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.startedAt.IsZero() {
		return 0
	}
	return int(time.Since(p.startedAt).Seconds())
}

// schedulerLoop keeps p.next populated: whenever it is empty (at
// startup, or because the decoder loop just consumed it into
// current), it asks the scheduler for the next item and retries with
// a short backoff on failure, since a schedule miss is never fatal on
// its own (spec.md §4.4).
func (p *Player) schedulerLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.nextWanted:
		}

		for {
			info, err := p.sched.Next(time.Now())
			if err != nil {
				log.Warnf("scheduler could not produce next item: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			p.mu.Lock()
			p.next = info
			p.mu.Unlock()
			break
		}
	}
}

// decoderLoop advances current<-next, decodes it a period at a time
// and writes the gain-adjusted frames into the ring buffer, blocking
// (via spaceAvailable) when the buffer is full. It asks for a new
// "next" as soon as the current one is claimed.
func (p *Player) decoderLoop(ctx context.Context) {
	defer p.wg.Done()
	periodBytes := PeriodFrames * decoder.FrameBytes
	frameBuf := make([]float32, PeriodFrames*decoder.Channels)
	byteBuf := make([]byte, periodBytes)

	for {
		if ctx.Err() != nil {
			return
		}

		p.mu.Lock()
		info := p.next
		p.next = nil
		p.mu.Unlock()

		if info == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		p.mu.Lock()
		p.current = info
		p.startedAt = time.Now()
		p.mu.Unlock()
		signalNonBlocking(p.nextWanted)
		metrics.IncTrackChange(info.ZoneName)

		start := time.Now()
		if err := p.decodeTrack(ctx, info, frameBuf, byteBuf); err != nil {
			log.Warnf("decoding %s failed: %v", info.FilePath, err)
		}
		metrics.ObserveDecodeDuration(time.Since(start))
	}
}

func (p *Player) decodeTrack(ctx context.Context, info *media.AudioFileInfo, frameBuf []float32, byteBuf []byte) error {
	dec, err := decoder.Open(info)
	if err != nil {
		return &PipelineError{Stage: "open", Err: err}
	}
	defer dec.Close()

	for {
		if p.state.Load() == StateStopping || ctx.Err() != nil {
			return nil
		}

		n, readErr := dec.ReadFrames(frameBuf)
		if n > 0 {
			floatSamplesToBytes(frameBuf[:n*decoder.Channels], byteBuf)
			if err := p.writeRing(ctx, byteBuf[:n*decoder.FrameBytes]); err != nil {
				return nil
			}
		}
		if readErr != nil {
			return nil
		}
	}
}

// writeRing blocks until there is room for data, waking up either on a
// spaceAvailable signal from Process or a short poll interval, mapping
// the C original's space_available_cv onto a non-blocking-send signal
// channel.
func (p *Player) writeRing(ctx context.Context, data []byte) error {
	for len(data) > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.ring.WriteSpace() < len(data) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.spaceAvailable:
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}
		n := p.ring.Write(data)
		data = data[n:]
	}
	return nil
}

// Process is called by the sink backend once per audio period with a
// destination slice of interleaved stereo float32 samples to fill. It
// never blocks: if the ring buffer doesn't have enough data yet it
// fills dest with silence (logging an underrun only while nominally
// Playing, per spec.md §7).
func (p *Player) Process(dest []float32) {
	state := p.state.Load()

	if state == StateStopped || state == StatePaused {
		zero(dest)
		return
	}

	if state == StatePausing && !p.fader.active {
		log.Debugf("starting fade out for pause")
		p.fader.start(false)
	} else if state == StateResuming && !p.fader.active {
		log.Debugf("starting fade in for resume")
		p.fader.start(true)
	}

	needed := len(dest) * decoder.BytesPerSample
	if p.ring.ReadSpace() < needed {
		zero(dest)
		if state == StatePlaying {
			log.Warnf("decoder ring buffer underrun: needed %d bytes, available %d", needed, p.ring.ReadSpace())
			metrics.IncRingUnderrun()
		}
		return
	}

	if cap(p.scratch) < needed {
		p.scratch = make([]byte, needed)
	}
	byteBuf := p.scratch[:needed]
	p.ring.Read(byteBuf)
	signalNonBlocking(p.spaceAvailable)
	bytesToFloatSamples(byteBuf, dest)

	if p.fader.active {
		frames := len(dest) / decoder.Channels
		fadeIn := state == StateResuming
		gain := p.fader.step(frames, fadeIn)
		for i := range dest {
			dest[i] *= float32(gain)
		}

		if !p.fader.active {
			if state == StatePausing {
				p.state.Store(StatePaused)
				log.Debugf("fade out complete, now paused")
			} else if state == StateResuming {
				p.state.Store(StatePlaying)
				log.Debugf("fade in complete, now playing")
			}
		}
	}
}

func zero(dest []float32) {
	for i := range dest {
		dest[i] = 0
	}
}

func signalNonBlocking(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
