//go:build !windows

package signals

import (
	"os"
	"os/signal"
	"syscall"
)

func init() {
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
}

func classify(sig os.Signal) sigKind {
	switch sig {
	case syscall.SIGHUP:
		return sigReload
	case syscall.SIGINT, syscall.SIGTERM:
		return sigInterrupt
	}
	return sigOther
}
