// Package signals turns process termination signals into context cancellation.
package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/endorses/mtmon/internal/pkg/constants"
	"github.com/endorses/mtmon/internal/pkg/logger"
)

// Shutdown lists the signals that stop the server.
var Shutdown = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// Context returns a copy of parent that is cancelled on the first shutdown
// signal. The returned stop func releases the signal subscription and must
// be called once the context is no longer needed.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, constants.SignalChannelBuffer)
	signal.Notify(sigCh, Shutdown...)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-sigCh:
			logger.Info("Received signal, initiating shutdown", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
		<-done
	}
}
