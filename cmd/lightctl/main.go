package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lightingmap.app/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "lightctl:", err)
		os.Exit(1)
	}
}
