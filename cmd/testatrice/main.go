// Command testatrice starts disposable servatrice instances and the services
// they depend on for integration testing.
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

	cmd := NewCmdRoot(NewFactory())
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(ExitCode(err))
	}
}
