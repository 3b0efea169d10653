package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Keksclan/tickercache/config"
	"github.com/spf13/cobra"
)

// app is the CLI application.
type app struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer
}

func newApp() *app {
	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	a.root = &cobra.Command{
		Use:   "tickercache",
		Short: "Cached stock market data over gRPC",
		Long: `tickercache fronts the Yahoo Finance API with a TTL cache.
Fresh entries are served from the cache; when the upstream fails, the last
known value is served instead of an error.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	a.root.AddCommand(
		a.newServeCmd(),
		a.newTTLCmd(),
		a.newStatsCmd(),
		a.newClearCmd(),
	)
	return a
}

func (a *app) withOutput(stdout, stderr io.Writer) *app {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI until it finishes or the process is interrupted.
func (a *app) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.root.ExecuteContext(ctx)
}

func (a *app) executeWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
