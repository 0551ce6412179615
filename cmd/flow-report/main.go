// Command flow-report turns manual feature clicks on timelapse frames into
// terrain positions and flow speeds, and serves the stored results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/flow.report/internal/version"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, stdout io.Writer) error
}

var commands = []command{
	{"project", "project tracking CSVs onto the DEM", runProject},
	{"speeds", "compute flow speeds from projected tracks", runSpeeds},
	{"pose", "recover the camera rotation between two frames", runPose},
	{"plot", "render PNG and HTML reports", runPlot},
	{"export", "write .asc point clouds of projected tracks", runExport},
	{"serve", "serve stored results over HTTP", runServe},
	{"migrate", "manage database schema migrations", runMigrate},
	{"version", "print build information", runVersion},
}

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		log.Fatalf("flow-report: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(stdout)
		return errUsage
	}
	name := args[0]
	switch name {
	case "help", "-h", "-help", "--help":
		printUsage(stdout)
		return nil
	}
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, args[1:], stdout)
		}
	}
	printUsage(stdout)
	return fmt.Errorf("unknown command %q", name)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: flow-report <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'flow-report <command> -h' for the flags of a command.")
}

func runVersion(_ context.Context, _ []string, stdout io.Writer) error {
	fmt.Fprintln(stdout, version.String())
	return nil
}
