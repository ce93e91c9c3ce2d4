// Command dispatchd runs the notification dispatch pipeline as a
// standalone daemon: it opens the store, wires the channel senders, and
// runs the scheduled sweeps until interrupted.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grassrootza/grassroot-dispatch/pkg/config"
	"github.com/grassrootza/grassroot-dispatch/pkg/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dispatchd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default ./dispatch.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Gateway adapters are deployment-specific; the defaults log sends
	// so the pipeline is observable before any gateway is wired in.
	p, err := pipeline.New(cfg, pipeline.Options{})
	if err != nil {
		return err
	}
	p.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	return p.Close()
}
