package system

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownContext is cancelled once the process receives SIGINT or SIGTERM.
func ShutdownContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
