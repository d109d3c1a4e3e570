package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownSignals are the signals that stop a running broker.
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// SignalContext returns a context that is cancelled on the first shutdown
// signal. stop releases the signal handler; a second signal after stop
// terminates the process with the default behavior.
func SignalContext(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, ShutdownSignals...)
}

// ReloadSignals are the signals that ask a running broker to re-read its
// configuration file.
var ReloadSignals = []os.Signal{syscall.SIGHUP}

// ReloadNotify returns a channel that receives each reload signal. stop
// releases the handler.
func ReloadNotify() (ch <-chan os.Signal, stop func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, ReloadSignals...)
	return c, func() { signal.Stop(c) }
}
