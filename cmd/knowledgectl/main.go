// Command knowledgectl runs storage audits, resyncs and liability reports
// against the knowledge base without going through the HTTP gate.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(openApp).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
