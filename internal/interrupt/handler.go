// Package interrupt turns OS signals into context cancellation.
//
// A run is a sequence of checkpointed stages; there is no in-process state
// worth negotiating a graceful continuation window for, so unlike a live
// recording there is nothing to salvage by asking the user to choose between
// "stop now" and "finish this one". The orchestrator observes ctx.Err()
// between chunks and between stages and marks the job CANCELLED itself.
package interrupt

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ExitInterrupt is the exit code for interrupt (130 = 128 + SIGINT).
const ExitInterrupt = 130

// Handler cancels a context on the first SIGINT/SIGTERM it observes.
type Handler struct {
	mu          sync.Mutex
	interrupted bool
	stopped     bool
	cancelFunc  context.CancelFunc
	done        chan struct{}
}

// Options holds injectable dependencies for testing.
type Options struct {
	SigCh <-chan os.Signal
}

// NewHandler creates a handler that listens for SIGINT/SIGTERM.
// Returns the handler and a context canceled on the first interrupt.
func NewHandler(parent context.Context) (*Handler, context.Context) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return newHandler(parent, Options{SigCh: sigCh})
}

// NewHandlerWithOptions creates a handler with an injectable signal channel.
// Used by tests to simulate signals without touching the OS signal table.
func NewHandlerWithOptions(parent context.Context, opts Options) (*Handler, context.Context) {
	return newHandler(parent, opts)
}

func newHandler(parent context.Context, opts Options) (*Handler, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	h := &Handler{
		cancelFunc: cancel,
		done:       make(chan struct{}),
	}

	if opts.SigCh != nil {
		go h.listen(opts.SigCh)
	}

	return h, ctx
}

func (h *Handler) listen(sigCh <-chan os.Signal) {
	for {
		select {
		case <-h.done:
			return
		case _, ok := <-sigCh:
			if !ok {
				return
			}
			h.mu.Lock()
			if h.stopped {
				h.mu.Unlock()
				return
			}
			h.interrupted = true
			h.cancelFunc()
			h.mu.Unlock()
		}
	}
}

// WasInterrupted returns true if at least one interrupt was received.
func (h *Handler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

// Stop cleans up the handler. Should be called when done.
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	signal.Reset(syscall.SIGINT, syscall.SIGTERM)
	close(h.done)
}
