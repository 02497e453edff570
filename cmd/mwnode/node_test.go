package main

import (
	"os"
	"testing"
	"time"

	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/config"
)

// newTestConfig returns a Config rooted at a fresh temp directory,
// listening on an OS-assigned port, with any extra flags appended.
func newTestConfig(t *testing.T, extra ...string) *config.Config {
	t.Helper()
	dir, err := os.MkdirTemp("", "mwnode-test-")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	args := append([]string{"--datadir", dir, "--listen", "127.0.0.1:0"}, extra...)
	cfg, err := config.Load(args)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func TestNewNodeOpensStoresAndWiresSubsystems(t *testing.T) {
	cfg := newTestConfig(t)
	n, err := newNode(cfg)
	if err != nil {
		t.Fatalf("newNode: %v", err)
	}
	defer n.db.Close()

	if n.chainState.GetHeight(chain.Confirmed) != 0 {
		t.Fatalf("a freshly bootstrapped chain should sit at genesis height 0")
	}
}

func TestStartIsIdempotentAndStopDrainsSubsystems(t *testing.T) {
	cfg := newTestConfig(t)
	n, err := newNode(cfg)
	if err != nil {
		t.Fatalf("newNode: %v", err)
	}

	if err := n.start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := n.start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if n.listener == nil {
		t.Fatalf("start should have opened a listener")
	}

	if err := n.stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := n.stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestAcceptLoopHandshakesInboundPeers(t *testing.T) {
	serverCfg := newTestConfig(t)
	server, err := newNode(serverCfg)
	if err != nil {
		t.Fatalf("newNode(server): %v", err)
	}
	if err := server.start(); err != nil {
		t.Fatalf("server.start: %v", err)
	}
	defer server.stop()

	clientCfg := newTestConfig(t, "--addpeer", server.listener.Addr().String(), "--outpeers", "1")
	client, err := newNode(clientCfg)
	if err != nil {
		t.Fatalf("newNode(client): %v", err)
	}
	if err := client.start(); err != nil {
		t.Fatalf("client.start: %v", err)
	}
	defer client.stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if server.connMgr.Count() > 0 && client.connMgr.Count() > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("client never established an inbound/outbound connection to server: server=%d client=%d",
		server.connMgr.Count(), client.connMgr.Count())
}
