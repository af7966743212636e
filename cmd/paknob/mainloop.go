package main

import (
	"os"
	"os/signal"
)

// Mainloop is a cooperative, single-threaded event loop. Every callback in
// the process (connection state changes, request replies) runs on the
// goroutine that called Run, so none of the code it drives needs locking.
//
// Other goroutines (the socket reader) hand work to the loop with Post.
type Mainloop struct {
	work chan func()
	sigc chan os.Signal

	quitting bool
	code     int
}

func newMainloop() *Mainloop {
	return &Mainloop{
		work: make(chan func(), 64),
		sigc: make(chan os.Signal, 1),
	}
}

// Post queues fn to run on the loop goroutine, in order.
func (m *Mainloop) Post(fn func()) {
	m.work <- fn
}

// CatchSignals requests that any of the given signals terminate the loop
// immediately with exit code 0, bypassing whatever work is still queued.
func (m *Mainloop) CatchSignals(signals ...os.Signal) {
	signal.Notify(m.sigc, signals...)
}

// Quit asks the loop to stop after the current callback returns. The first
// exit code wins; later calls must not overwrite a failure with a success.
func (m *Mainloop) Quit(code int) {
	if m.quitting {
		return
	}
	m.quitting = true
	m.code = code
}

// Run executes queued callbacks until Quit is called or a caught signal
// arrives, and returns the exit code for the process.
func (m *Mainloop) Run() int {
	for !m.quitting {
		select {
		case fn := <-m.work:
			fn()
		case <-m.sigc:
			// Interrupt trumps cleanliness: no drain, no error, just out.
			m.Quit(0)
			return 0
		}
	}
	return m.code
}
