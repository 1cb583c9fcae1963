// Command audioscheduler runs the unattended broadcast scheduler: it
// loads a weekly XML schedule, starts the playback pipeline against
// the system's default audio output, serves the now-playing JSON
// endpoint, and wires SIGINT/SIGTERM/SIGUSR1/SIGUSR2 to
// stop/pause/resume through the signal dispatcher, mirroring
// cmd/direttampd's startup sequencing.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/nkossifidis/audioscheduler/internal/cli"
	"github.com/nkossifidis/audioscheduler/internal/config"
	"github.com/nkossifidis/audioscheduler/internal/decoder"
	"github.com/nkossifidis/audioscheduler/internal/logging"
	"github.com/nkossifidis/audioscheduler/internal/metaserver"
	"github.com/nkossifidis/audioscheduler/internal/player"
	"github.com/nkossifidis/audioscheduler/internal/schedule"
	"github.com/nkossifidis/audioscheduler/internal/sigdispatch"
	"github.com/nkossifidis/audioscheduler/internal/sink"
)

var log = logging.For(logging.Utils)

// FatalInit is the typed error surface for startup failures that
// leave the process unable to run at all.
type FatalInit struct {
	Stage string
	Err   error
}

func (e *FatalInit) Error() string {
	return fmt.Sprintf("startup failed at %s: %v", e.Stage, e.Err)
}

func (e *FatalInit) Unwrap() error { return e.Err }

func main() {
	opts, err := cli.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, cli.ErrNoConfigPath) {
			cli.PrintUsage(os.Stdout, os.Args[0])
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logging.Configure(opts.Level, opts.Mask)

	if err := run(opts); err != nil {
		log.Errf("%v", err)
		os.Exit(1)
	}
}

func run(opts *cli.Options) error {
	cfg := config.New(opts.ConfigPath)
	if _, err := cfg.Load(); err != nil {
		return &FatalInit{Stage: "config", Err: err}
	}

	sched := schedule.New(cfg)
	p := player.New(sched)
	audio := sink.NewPortAudioSink(float64(decoder.SampleRate), decoder.Channels, player.PeriodFrames)
	meta := metaserver.New(p)

	dispatcher := sigdispatch.New(func() {
		log.Infof("terminating")
		_ = p.Stop()
		_ = audio.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = meta.Shutdown(ctx)
	})
	dispatcher.Register(sigdispatch.UnitPlayer, func(signum int) {
		switch signum {
		case int(syscall.SIGUSR1):
			p.Pause()
		case int(syscall.SIGUSR2):
			p.Resume()
		}
	})
	dispatcher.Register(sigdispatch.UnitMeta, func(int) {})

	if err := dispatcher.Start(); err != nil {
		return &FatalInit{Stage: "signal dispatcher", Err: err}
	}
	defer dispatcher.Stop()

	if err := p.Start(); err != nil {
		return &FatalInit{Stage: "player", Err: err}
	}

	if err := audio.Start(p.Process); err != nil {
		return &FatalInit{Stage: "audio sink", Err: err}
	}

	addr := fmt.Sprintf(":%d", opts.Port)
	if err := meta.ListenAndServe(addr); err != nil {
		return &FatalInit{Stage: "metadata endpoint", Err: err}
	}
	return nil
}
