//go:build !linux

package sigdispatch

import (
	"os"
	"os/signal"
	"syscall"
)

// Start falls back to os/signal.Notify on non-Linux platforms, giving
// up the crash-signal passthrough signalfd provides on Linux but
// preserving the single-dispatch-goroutine property.
func (d *Dispatcher) Start() error {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		for {
			select {
			case <-d.stop:
				signal.Stop(ch)
				return
			case sig := <-ch:
				s, _ := sig.(syscall.Signal)
				d.dispatch(int(s), sig.String())
				if s == syscall.SIGINT || s == syscall.SIGTERM {
					signal.Stop(ch)
					if d.onTerm != nil {
						d.onTerm()
					}
					return
				}
			}
		}
	}()

	log.Debugf("started (portable fallback)")
	return nil
}

// Stop terminates the dispatch goroutine.
func (d *Dispatcher) Stop() {
	if d.stop == nil {
		return
	}
	close(d.stop)
	<-d.done
}
