package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mw-labs/mwnode/internal/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	backend, err := initLogging(cfg, os.Stdout)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer backend.Close()

	n, err := newNode(cfg)
	if err != nil {
		log.Criticalf("initializing node: %+v", err)
		os.Exit(1)
	}

	if err := n.start(); err != nil {
		log.Criticalf("starting node: %+v", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := n.stop(); err != nil {
		log.Criticalf("stopping node: %+v", err)
		os.Exit(1)
	}
}
