package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/df07/go-turntable-renderer/pkg/app"
	"github.com/df07/go-turntable-renderer/pkg/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run captures the turntable views of the asset named by args[0] and returns
// the process exit code
func run(args []string, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Turntable Renderer")
		fmt.Fprintln(stderr, "Usage: turntable <asset.gltf|asset.glb|asset.ply>")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Writes render00.png ... render08.png to the output directory.")
		fmt.Fprintf(stderr, "Settings are read from $%s or ./%s when present.\n", config.EnvFile, config.DefaultFile)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	logger, err := newLogger(stderr, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	written, err := app.Run(ctx, cfg, args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	slog.Info("turntable: done", "files", len(written))
	return 0
}

// newLogger returns a text logger on w filtered at the named level
func newLogger(w io.Writer, levelName string) (*slog.Logger, error) {
	level, err := config.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}
