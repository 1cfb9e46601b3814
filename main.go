// The main package for the beercrawl executable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/beer-ratings-crawler/cmd"
)

// main defers all execution to the Cobra CLI. SIGINT and SIGTERM cancel the
// running phase; snapshots already saved stay valid for the next run.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "beercrawl: %v\n", err)
		os.Exit(1)
	}
}
