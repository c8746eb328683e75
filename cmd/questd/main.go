package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggonzalez94/questd/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runner := app.NewRunner()
	code := runner.RunContext(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
