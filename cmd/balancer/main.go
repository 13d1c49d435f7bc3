package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	setMaxProcs()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setMaxProcs sizes GOMAXPROCS to the container CPU quota.
func setMaxProcs() {
	_, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		slog.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		slog.Warn("failed to set GOMAXPROCS", slog.String("error", err.Error()))
		return
	}
	slog.Debug("GOMAXPROCS set", slog.Int("procs", runtime.GOMAXPROCS(0)))
}
