// File: cmd/mend/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/mend-cli/cmd"
)

// main is the entry point for the mend CLI.
func main() {
	// Shut down gracefully on SIGINT/SIGTERM; an in-flight healing session
	// finishes its rollback before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
