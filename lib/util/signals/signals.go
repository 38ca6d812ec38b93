// Package signals runs registered handlers when the process is asked to
// reload (SIGHUP) or stop (SIGINT, SIGTERM).
package signals

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// sigChan is buffered to avoid missing signals delivered while no receiver is ready.
var sigChan = make(chan os.Signal, 1)

// Handler is a function called when a signal is received.
type Handler func()

// HandlerID identifies a registration so it can be removed again.
type HandlerID int

type registeredHandler struct {
	id HandlerID
	fn Handler
}

// handlerSet is an ordered list of handlers run in registration order.
type handlerSet struct {
	kind     string
	handlers []registeredHandler
}

var (
	mu           sync.RWMutex
	nextID       HandlerID
	reloaders    = &handlerSet{kind: "reload"}
	interrupters = &handlerSet{kind: "interrupt"}
	stopOnce     sync.Once
)

func (s *handlerSet) add(f Handler) HandlerID {
	if f == nil {
		return -1
	}
	mu.Lock()
	defer mu.Unlock()
	id := nextID
	nextID++
	s.handlers = append(s.handlers, registeredHandler{id: id, fn: f})
	return id
}

func (s *handlerSet) remove(id HandlerID) {
	mu.Lock()
	defer mu.Unlock()
	for i, h := range s.handlers {
		if h.id == id {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return
		}
	}
}

func (s *handlerSet) snapshot() []registeredHandler {
	mu.RLock()
	defer mu.RUnlock()
	return append([]registeredHandler(nil), s.handlers...)
}

// run calls every handler; a panicking handler is logged and skipped.
func (s *handlerSet) run() {
	for _, h := range s.snapshot() {
		runProtected(s.kind, h.fn)
	}
}

func runProtected(kind string, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{"at": "signals", "kind": kind, "panic": r}).Error("handler panicked")
		}
	}()
	fn()
}

// RegisterReloadHandler registers a handler called on SIGHUP.
// Nil handlers are ignored and return -1.
func RegisterReloadHandler(f Handler) HandlerID { return reloaders.add(f) }

// DeregisterReloadHandler removes a reload handler.
func DeregisterReloadHandler(id HandlerID) { reloaders.remove(id) }

// RegisterInterruptHandler registers a handler called on SIGINT or SIGTERM,
// after the pre-shutdown handlers have finished.
// Nil handlers are ignored and return -1.
func RegisterInterruptHandler(f Handler) HandlerID { return interrupters.add(f) }

// DeregisterInterruptHandler removes an interrupt handler.
func DeregisterInterruptHandler(id HandlerID) { interrupters.remove(id) }

func handleReload() {
	log.Debug("reload requested")
	reloaders.run()
}

func handleInterrupted() {
	log.Debug("shutdown requested")
	handlePreShutdown()
	interrupters.run()
}

// Handle dispatches signals to the registered handlers until ctx is done or
// StopHandle is called.
func Handle(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigChan:
			if !ok {
				return
			}
			switch classify(sig) {
			case sigReload:
				handleReload()
			case sigInterrupt:
				handleInterrupted()
			default:
				log.WithField("signal", sig).Debug("ignoring signal")
			}
		}
	}
}

type sigKind int

const (
	sigOther sigKind = iota
	sigReload
	sigInterrupt
)

// StopHandle stops signal delivery and makes Handle return.
// Safe to call multiple times.
func StopHandle() {
	stopOnce.Do(func() {
		signal.Stop(sigChan)
		close(sigChan)
	})
}
