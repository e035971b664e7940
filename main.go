package main

import (
	"log/slog"
	"os"

	"github.com/ilievs/pinboard/config"
	"github.com/ilievs/pinboard/system"
)

func main() {
	// Run until interrupted
	ctx, stop := system.ShutdownContext()
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := RunApplication(ctx, cfg); err != nil {
		slog.Error("pinboard stopped", "error", err)
		os.Exit(1)
	}
}
