// Package sigdispatch fans a process's signals out to registered
// units (the player and the metadata endpoint), grounded on
// sig_dispatcher.c: a single dispatcher goroutine owns signal
// delivery, and components register a callback instead of installing
// their own handlers. The Linux implementation uses signalfd+epoll so
// delivery happens on an ordinary goroutine rather than a restricted
// signal-handler context; non-Linux platforms fall back to
// os/signal.Notify, which gives the same single-goroutine-dispatch
// property without needing signalfd.
package sigdispatch

import (
	"github.com/nkossifidis/audioscheduler/internal/logging"
)

var log = logging.For(logging.SigDisp)

// Unit identifies a registered signal callback, mirroring
// sig_dispatcher.c's enum sig_unit / unit_names.
type Unit int

const (
	UnitPlayer Unit = iota
	UnitMeta
	unitMax
)

func (u Unit) String() string {
	switch u {
	case UnitPlayer:
		return "PLAYER"
	case UnitMeta:
		return "META"
	default:
		return "UNKNOWN"
	}
}

// Callback receives the delivered signal number (as an int, so
// platform-specific signal constants don't leak into this package's
// exported surface beyond what os/signal.Notify already accepts).
type Callback func(signum int)

// Dispatcher owns the registered callbacks and the platform-specific
// delivery goroutine.
type Dispatcher struct {
	handlers [unitMax]Callback
	stop     chan struct{}
	done     chan struct{}
	onTerm   func()
}

// New creates a Dispatcher. onTerm is invoked when SIGINT/SIGTERM is
// received, after every registered unit has already been notified —
// typically the player's Stop.
func New(onTerm func()) *Dispatcher {
	return &Dispatcher{onTerm: onTerm}
}

// Register installs (or replaces) the callback for a unit.
func (d *Dispatcher) Register(unit Unit, cb Callback) {
	if unit < 0 || unit >= unitMax || cb == nil {
		return
	}
	d.handlers[unit] = cb
}

func (d *Dispatcher) dispatch(signum int, name string) {
	log.Debugf("delivering %s to registered units", name)
	for u, cb := range d.handlers {
		if cb != nil {
			log.Debugf("sending %s to %s", name, Unit(u))
			cb(signum)
		}
	}
}
