package main

import (
	"log/slog"
	"os"

	"formless/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		slog.Error("formless exited with error", "error", err)
		os.Exit(1)
	}
}
