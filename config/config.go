package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/franksops/gridq/account"
)

// Config is the gridq configuration file.
type Config struct {
	StateDir string         `yaml:"state_dir"`
	Backend  BackendConfig  `yaml:"backend"`
	Account  AccountConfig  `yaml:"account"`
	Transfer TransferConfig `yaml:"transfer"`
	Events   EventsConfig   `yaml:"events"`
	Logging  LoggingConfig  `yaml:"logging"`
	UI       UIConfig       `yaml:"ui"`
}

// BackendConfig selects where remote resources live.
type BackendConfig struct {
	// Type is "local" (a directory per resource under Root) or "s3" (a bucket per resource).
	// Root defaults to <state_dir>/grid.
	Type         string `yaml:"type"`
	Root         string `yaml:"root,omitempty"`
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`
}

// AccountConfig is the remote identity used for new transfers.
type AccountConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Zone            string `yaml:"zone"`
	User            string `yaml:"user"`
	Password        string `yaml:"password,omitempty"`
	DefaultResource string `yaml:"default_resource"`
}

// TransferConfig tunes execution of one record.
type TransferConfig struct {
	// ItemErrorPolicy is "continue" (attempt every item) or "abort" (stop at the first failed item).
	ItemErrorPolicy string `yaml:"item_error_policy"`
	// MaxItemErrors stops a record after this many failed items under "continue". 0 is unlimited.
	MaxItemErrors int  `yaml:"max_item_errors"`
	BufferSize    int  `yaml:"buffer_size"`
	Checksum      bool `yaml:"checksum"`
}

// EventsConfig sizes the listener event channel.
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// LoggingConfig holds logging-related settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
	File   string `yaml:"file"`   // empty = stderr
}

// UIConfig holds terminal UI settings.
type UIConfig struct {
	TUI bool `yaml:"tui"`
}

const (
	PolicyContinue = "continue"
	PolicyAbort    = "abort"
)

// Default returns the default configuration.
func Default() *Config {
	stateDir := ".gridq"
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, ".local", "state", "gridq")
	}
	return &Config{
		StateDir: stateDir,
		Backend: BackendConfig{
			Type: "local",
		},
		Account: AccountConfig{
			Port: 1247,
		},
		Transfer: TransferConfig{
			ItemErrorPolicy: PolicyContinue,
			MaxItemErrors:   0,
			BufferSize:      1024 * 1024,
			Checksum:        false,
		},
		Events: EventsConfig{
			Buffer: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		UI: UIConfig{
			TUI: false,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir must be set")
	}
	switch c.Backend.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("backend.type must be local or s3, got %q", c.Backend.Type)
	}
	if c.Account.Port < 0 || c.Account.Port > 65535 {
		return fmt.Errorf("account.port out of range: %d", c.Account.Port)
	}
	switch c.Transfer.ItemErrorPolicy {
	case PolicyContinue, PolicyAbort:
	default:
		return fmt.Errorf("transfer.item_error_policy must be continue or abort, got %q", c.Transfer.ItemErrorPolicy)
	}
	if c.Transfer.MaxItemErrors < 0 {
		return fmt.Errorf("transfer.max_item_errors must not be negative")
	}
	if c.Transfer.BufferSize < 4096 {
		return fmt.Errorf("transfer.buffer_size must be at least 4096 bytes")
	}
	if c.Events.Buffer < 1 {
		return fmt.Errorf("events.buffer must be at least 1")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// MaxItemErrors is the error budget of one record under the configured policy.
func (c *Config) MaxItemErrors() int {
	if c.Transfer.ItemErrorPolicy == PolicyAbort {
		return 1
	}
	return c.Transfer.MaxItemErrors
}

// QueuePath is the location of the queue database.
func (c *Config) QueuePath() string {
	return filepath.Join(c.StateDir, "queue.db")
}

// LocalRoot is the directory holding the resources of the local backend,
// backend.root or a grid directory under the state directory.
func (c *Config) LocalRoot() string {
	if c.Backend.Root != "" {
		return c.Backend.Root
	}
	return filepath.Join(c.StateDir, "grid")
}

// AccountDescriptor builds the account for new transfers. The password is
// obfuscated here and never kept in clear text past this point.
func (c *Config) AccountDescriptor() account.Account {
	a := c.Account
	return account.New(a.Host, a.Port, a.Zone, a.User, a.Password, a.DefaultResource)
}
