package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apresai/eduanim/internal/cli"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli.Version = version
	if err := cli.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
