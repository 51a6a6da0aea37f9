// Command smoothtaskd runs the SmoothTask metrics-collection-and-
// classification daemon: smoothtaskd --config <path> [--dry-run].
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/smoothtask/smoothtaskd/config"
	"github.com/smoothtask/smoothtaskd/daemon"
)

// Exit codes: 0 clean shutdown, 1 unexpected error, 2 config invalid.
const (
	exitOK          = 0
	exitError       = 1
	exitConfigError = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("smoothtaskd", flag.ContinueOnError)
	configPath := fs.String("config", config.Path(), "path to the daemon's YAML config file")
	dryRun := fs.Bool("dry-run", false, "override dry_run_default: collect and classify but apply no policy actions")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "smoothtaskd: no config path given and no default config directory could be determined")
		return exitConfigError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smoothtaskd: %v\n", err)
		return exitConfigError
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "dry-run" {
			cfg.DryRunDefault = *dryRun
		}
	})

	d, err := daemon.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smoothtaskd: %v\n", err)
		return exitConfigError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		log.Printf("smoothtaskd: %v", err)
		return exitError
	}
	return exitOK
}
