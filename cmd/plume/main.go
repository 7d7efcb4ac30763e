package main

import (
	"log/slog"
	"os"

	"github.com/roach88/plume/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		slog.Error("plume exited with error", "error", err)
		os.Exit(1)
	}
}
