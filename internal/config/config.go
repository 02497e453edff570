// Package config loads the node's startup configuration from command
// line flags, following the shape of the teacher's config package: a
// Flags struct tagged for github.com/jessevdk/go-flags, a thin Config
// wrapper around it, and post-parse validation and defaulting, scaled
// down to the handful of knobs this node's components actually read
// (no RPC, proxy, Tor, or mining options — those belong to surfaces
// this node doesn't implement).
package config

import (
	"net"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/mw-labs/mwnode/internal/logs"
	"github.com/pkg/errors"
)

const (
	defaultDataDirname          = "data"
	defaultLogLevel             = "info"
	defaultTargetOutboundPeers  = 8
	defaultMaxInboundPeers      = 32
	defaultPingInterval         = 10 * time.Second
	defaultBroadcastFanout      = 8
	defaultPipelineWorkers      = 4
)

// DefaultHomeDir is the default directory under which per-network data
// subdirectories are created.
var DefaultHomeDir = defaultHomeDir()

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".mwnode")
}

// Flags defines the node's command line options.
type Flags struct {
	DataDir             string        `short:"b" long:"datadir" description:"Directory to store data"`
	ListenAddress       string        `long:"listen" description:"Interface/port to listen for incoming connections"`
	PeerSeeds           []string      `short:"a" long:"addpeer" description:"Add a peer address to dial at startup"`
	TargetOutboundPeers int           `long:"outpeers" description:"Target number of outgoing connections"`
	MaxInboundPeers     int           `long:"maxinpeers" description:"Max number of incoming connections"`
	PingInterval        time.Duration `long:"pinginterval" description:"Interval between connection pings and prune passes"`
	BroadcastFanout     int           `long:"broadcastfanout" description:"Max peers (excluding source) reached by one broadcast"`
	PipelineWorkers     int           `long:"pipelineworkers" description:"Number of concurrently-draining connections in the inbound message pipeline"`
	LogLevel            string        `short:"d" long:"loglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	NetworkFlags
}

// Config wraps the parsed Flags with derived, network-dependent values.
type Config struct {
	*Flags
	Net *Params
}

// Load parses args (typically os.Args[1:]) into a validated Config,
// applying defaults and namespacing DataDir by the active network the
// same way the teacher's loadConfig does.
func Load(args []string) (*Config, error) {
	f := &Flags{
		DataDir:             filepath.Join(DefaultHomeDir, defaultDataDirname),
		TargetOutboundPeers: defaultTargetOutboundPeers,
		MaxInboundPeers:     defaultMaxInboundPeers,
		PingInterval:        defaultPingInterval,
		BroadcastFanout:     defaultBroadcastFanout,
		PipelineWorkers:     defaultPipelineWorkers,
		LogLevel:            defaultLogLevel,
	}

	parser := flags.NewParser(f, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil, err
		}
		return nil, errors.Wrap(err, "parsing flags")
	}

	net := f.resolveNetwork()

	cfg := &Config{Flags: f, Net: net}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.TargetOutboundPeers < 0 {
		return errors.New("outpeers may not be negative")
	}
	if cfg.MaxInboundPeers < 0 {
		return errors.New("maxinpeers may not be negative")
	}
	if cfg.PingInterval <= 0 {
		return errors.New("pinginterval must be positive")
	}
	if cfg.BroadcastFanout <= 0 {
		return errors.New("broadcastfanout must be positive")
	}
	if cfg.PipelineWorkers <= 0 {
		return errors.New("pipelineworkers must be positive")
	}
	if _, ok := logs.LevelFromString(cfg.LogLevel); !ok {
		return errors.Errorf("unrecognized loglevel %q", cfg.LogLevel)
	}

	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir), cfg.Net.Name)

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = net.JoinHostPort("", cfg.Net.DefaultPort)
	}

	return nil
}

// LogLevelValue returns the parsed log level, defaulting to
// logs.LevelInfo (LogLevel has already been validated by normalize,
// so the ok return is only ever false here in a test constructing a
// Config by hand).
func (cfg *Config) LogLevelValue() logs.Level {
	level, _ := logs.LevelFromString(cfg.LogLevel)
	return level
}

func cleanAndExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}
