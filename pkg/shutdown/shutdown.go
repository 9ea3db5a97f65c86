package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Grace is how long servers get to drain in-flight work once a signal arrives.
const Grace = 10 * time.Second

// WithSignals returns a context cancelled on SIGINT/SIGTERM.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(ch)
		select {
		case <-ctx.Done():
			return
		case <-ch:
			cancel()
		}
	}()

	return ctx, cancel
}
