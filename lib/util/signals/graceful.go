package signals

import (
	"sync"
	"time"
)

// defaultGracefulTimeout bounds how long pre-shutdown handlers may take
// before the interrupt handlers run anyway.
const defaultGracefulTimeout = 5 * time.Second

var (
	preShutdown     = &handlerSet{kind: "pre-shutdown"}
	timeoutMu       sync.RWMutex
	gracefulTimeout = defaultGracefulTimeout
)

// RegisterPreShutdownHandler registers a handler that runs before the
// interrupt handlers. The CLI ends its sessions here so the peer sees End
// before the transport goes away.
// Nil handlers are ignored.
func RegisterPreShutdownHandler(f Handler) HandlerID { return preShutdown.add(f) }

// SetGracefulTimeout sets the pre-shutdown deadline. Zero or negative
// restores the default.
func SetGracefulTimeout(timeout time.Duration) {
	timeoutMu.Lock()
	defer timeoutMu.Unlock()
	if timeout <= 0 {
		timeout = defaultGracefulTimeout
	}
	gracefulTimeout = timeout
}

// handlePreShutdown runs the pre-shutdown handlers and reports whether they
// all finished before the deadline.
func handlePreShutdown() bool {
	if len(preShutdown.snapshot()) == 0 {
		return true
	}
	timeoutMu.RLock()
	timeout := gracefulTimeout
	timeoutMu.RUnlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		preShutdown.run()
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		log.WithField("timeout", timeout).Warn("pre-shutdown handlers timed out")
		return false
	}
}
