// Command storefront is a traced command line client for the storefront
// backend. Every command runs in its own trace exported to Zipkin.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	command, a := newRootCommand()
	err := command.ExecuteContext(ctx)
	a.shutdown()
	stop()

	if err != nil {
		os.Exit(1)
	}
}
