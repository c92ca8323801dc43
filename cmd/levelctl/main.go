// Command levelctl is the operator tool of the leveling engine: schema
// migrations, curve lookups, rank queries, recalculation and the audited
// administrative writes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(defaultOpener).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "levelctl: %v\n", err)
		os.Exit(1)
	}
}
