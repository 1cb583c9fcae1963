//go:build linux

package sigdispatch

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Start blocks every signal except the ones that indicate a crash
// (SIGFPE/SIGILL/SIGSEGV/SIGBUS/SIGABRT, left to the default Go crash
// handler) and runs the signalfd+epoll dispatch loop on a dedicated
// goroutine, exactly mirroring sig_dispatcher.c's sig_dispatcher_init
// and sig_thread.
func (d *Dispatcher) Start() error {
	var mask unix.Sigset_t
	fillSigset(&mask)
	delSignal(&mask, unix.SIGFPE)
	delSignal(&mask, unix.SIGILL)
	delSignal(&mask, unix.SIGSEGV)
	delSignal(&mask, unix.SIGBUS)
	delSignal(&mask, unix.SIGABRT)

	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &mask, nil); err != nil {
		return fmt.Errorf("sigdispatch: blocking signals: %w", err)
	}

	sigFD, err := unix.Signalfd(-1, &mask, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		return fmt.Errorf("sigdispatch: signalfd: %w", err)
	}

	epollFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(sigFD)
		return fmt.Errorf("sigdispatch: epoll_create1: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(sigFD)}
	if err := unix.EpollCtl(epollFD, unix.EPOLL_CTL_ADD, sigFD, &ev); err != nil {
		unix.Close(sigFD)
		unix.Close(epollFD)
		return fmt.Errorf("sigdispatch: epoll_ctl: %w", err)
	}

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.loop(sigFD, epollFD)

	log.Debugf("started")
	return nil
}

// Stop terminates the dispatch goroutine and releases its file
// descriptors.
func (d *Dispatcher) Stop() {
	if d.stop == nil {
		return
	}
	close(d.stop)
	<-d.done
}

func (d *Dispatcher) loop(sigFD, epollFD int) {
	defer close(d.done)
	defer unix.Close(sigFD)
	defer unix.Close(epollFD)

	events := make([]unix.EpollEvent, 1)
	for {
		select {
		case <-d.stop:
			return
		default:
		}

		n, err := unix.EpollWait(epollFD, events, 1000)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Warnf("epoll_wait: %v", err)
			return
		}
		if n == 0 {
			continue
		}

		var info unix.SignalfdSiginfo
		if err := readSiginfo(sigFD, &info); err != nil {
			continue
		}

		signum := int(info.Signo)
		d.dispatch(signum, unix.Signal(signum).String())

		if signum == int(unix.SIGINT) || signum == int(unix.SIGTERM) {
			log.Debugf("stopped")
			if d.onTerm != nil {
				d.onTerm()
			}
			return
		}
	}
}

func fillSigset(set *unix.Sigset_t) {
	for i := range set.Val {
		set.Val[i] = ^uint64(0)
	}
}

func delSignal(set *unix.Sigset_t, sig unix.Signal) {
	// Sigset_t is a bitmask of (signal-1) bits, little-endian across
	// the Val words; this mirrors glibc's sigdelset for the signal
	// numbers we care about (all < 64).
	bit := uint(sig) - 1
	word := bit / 64
	if int(word) >= len(set.Val) {
		return
	}
	set.Val[word] &^= 1 << (bit % 64)
}

func readSiginfo(fd int, info *unix.SignalfdSiginfo) error {
	size := int(unsafe.Sizeof(unix.SignalfdSiginfo{}))
	buf := make([]byte, size)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return err
	}
	if n != size {
		return fmt.Errorf("short signalfd read: %d bytes", n)
	}
	*info = *(*unix.SignalfdSiginfo)(unsafe.Pointer(&buf[0]))
	return nil
}
