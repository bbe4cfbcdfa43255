package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/franksops/gridq/config"
	"github.com/franksops/gridq/engine"
	"github.com/franksops/gridq/logging"
	"github.com/franksops/gridq/manager"
	"github.com/franksops/gridq/provider"
	"github.com/franksops/gridq/store"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions override the configuration file.
type globalOptions struct {
	configPath string
	stateDir   string
	logLevel   string
	backend    string

	host     string
	port     int
	zone     string
	user     string
	resource string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "gridq",
		Short: "Persistent transfer queue for grid storage",
		Long: `gridq queues put, get, replicate and copy transfers against remote grid
storage and executes them one at a time, resuming interrupted transfers after
the last file that completed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Configuration file (default ~/.config/gridq/config.yaml)")
	pf.StringVar(&opts.stateDir, "state-dir", "", "Directory holding the queue database")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&opts.backend, "backend", "", "Storage backend: local or s3")
	pf.StringVar(&opts.host, "host", "", "Grid host")
	pf.IntVar(&opts.port, "port", 0, "Grid port")
	pf.StringVar(&opts.zone, "zone", "", "Grid zone")
	pf.StringVar(&opts.user, "user", "", "Grid user (password from GRIDQ_PASSWORD)")
	pf.StringVar(&opts.resource, "default-resource", "", "Default storage resource")

	cmd.AddCommand(
		newPutCmd(opts),
		newGetCmd(opts),
		newReplicateCmd(opts),
		newCopyCmd(opts),
		newQueueCmd(opts),
		newHistoryCmd(opts),
		newShowCmd(opts),
		newRequeueCmd(opts),
		newPurgeCmd(opts),
		newRunCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFromFile(opts.configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if opts.stateDir != "" {
		cfg.StateDir = opts.stateDir
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.backend != "" {
		cfg.Backend.Type = opts.backend
	}
	if opts.host != "" {
		cfg.Account.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Account.Port = opts.port
	}
	if opts.zone != "" {
		cfg.Account.Zone = opts.zone
	}
	if opts.user != "" {
		cfg.Account.User = opts.user
	}
	if opts.resource != "" {
		cfg.Account.DefaultResource = opts.resource
	}
	if pw := os.Getenv("GRIDQ_PASSWORD"); pw != "" {
		cfg.Account.Password = pw
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app is the wired process: store, engine and manager.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	logCloser io.Closer
	store     *store.BoltStore
	mgr       *manager.Manager
}

func openApp(opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	log, logCloser, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	st, err := store.NewBoltStore(cfg.QueuePath())
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	mover := engine.NewProviderMover(
		provider.NewLocalProvider(""),
		newSessions(cfg),
		engine.WithBufferSize(cfg.Transfer.BufferSize),
		engine.WithChecksum(cfg.Transfer.Checksum),
		engine.WithMoverLogger(log),
	)
	exec := engine.NewExecutor(st, mover,
		engine.WithMaxItemErrors(cfg.MaxItemErrors()),
		engine.WithExecutorLogger(log),
	)
	mgr, err := manager.New(st, exec,
		manager.WithLogger(log),
		manager.WithEventBuffer(cfg.Events.Buffer),
	)
	if err != nil {
		st.Close()
		logCloser.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, logCloser: logCloser, store: st, mgr: mgr}, nil
}

func newSessions(cfg *config.Config) provider.Sessions {
	if cfg.Backend.Type == "s3" {
		return provider.NewS3Sessions(provider.S3Config{
			Region:       cfg.Backend.Region,
			Endpoint:     cfg.Backend.Endpoint,
			UsePathStyle: cfg.Backend.UsePathStyle,
		})
	}
	return provider.NewLocalSessions(cfg.LocalRoot())
}

func (a *app) Close() error {
	a.mgr.Close()
	err := a.store.Close()
	a.logCloser.Close()
	return err
}
