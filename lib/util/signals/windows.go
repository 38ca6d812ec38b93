//go:build windows

package signals

import (
	"os"
	"os/signal"
)

func init() {
	signal.Notify(sigChan, os.Interrupt)
}

func classify(sig os.Signal) sigKind {
	if sig == os.Interrupt {
		return sigInterrupt
	}
	return sigOther
}
