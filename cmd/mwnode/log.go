package main

import (
	"io"

	"github.com/mw-labs/mwnode/app/peer"
	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/config"
	"github.com/mw-labs/mwnode/internal/logs"
	"github.com/mw-labs/mwnode/p2p/connmgr"
	"github.com/mw-labs/mwnode/p2p/pipeline"
	"github.com/mw-labs/mwnode/p2p/protocol"
	"github.com/mw-labs/mwnode/p2p/seed"
	"github.com/mw-labs/mwnode/p2p/sync"
)

var log = logs.NopLogger("NODE")

// initLogging starts a logs.Backend writing to w at cfg's configured
// level and hands every subsystem package its own tagged Logger,
// mirroring the teacher's root log.go/logger.SubsystemTags convention
// of one tag per package rather than one shared, untagged logger.
func initLogging(cfg *config.Config, w io.Writer) (*logs.Backend, error) {
	backend := logs.NewBackend()
	if err := backend.AddConsoleWriter(w, cfg.LogLevelValue()); err != nil {
		return nil, err
	}
	if err := backend.Run(); err != nil {
		return nil, err
	}

	log = backend.Logger("NODE")
	peer.SetLogger(backend.Logger("PEER"))
	chain.SetLogger(backend.Logger("CHST"))
	connmgr.SetLogger(backend.Logger("CMGR"))
	pipeline.SetLogger(backend.Logger("PIPE"))
	protocol.SetLogger(backend.Logger("PROT"))
	seed.SetLogger(backend.Logger("SEED"))
	sync.SetLogger(backend.Logger("SYNC"))

	return backend, nil
}
