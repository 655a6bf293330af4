package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const EnvPrefix = "FRAMELOCK"

// Config is the cluster description and the per-session settings of a node.
type Config struct {
	Cluster ClusterConfig `mapstructure:"cluster"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Capture CaptureConfig `mapstructure:"capture"`
	Local   LocalConfig   `mapstructure:"local"`
}

type NodeConfig struct {
	ID       string `mapstructure:"id"`
	Address  string `mapstructure:"address"`
	Port     int    `mapstructure:"port"`
	SwapLock bool   `mapstructure:"swap_lock"`
}

type ClusterConfig struct {
	MasterAddress string       `mapstructure:"master_address"`
	Nodes         []NodeConfig `mapstructure:"nodes"`
	FirmSync      bool         `mapstructure:"firm_sync"`
	IgnoreSync    bool         `mapstructure:"ignore_sync"`
}

type SyncConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"`
	PrintWaitMessage bool          `mapstructure:"print_wait_message"`
	WaitPolicy       string        `mapstructure:"wait_policy"`
}

type CaptureConfig struct {
	Threads     int    `mapstructure:"threads"`
	Path        string `mapstructure:"path"`
	Prefix      string `mapstructure:"prefix"`
	Format      string `mapstructure:"format"`
	AddNodeName bool   `mapstructure:"add_node_name"`
	Quality     int    `mapstructure:"quality"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	Begin       uint64 `mapstructure:"begin"`
	End         uint64 `mapstructure:"end"`
}

// LocalConfig runs every node of the cluster on this computer. Node is the
// index of the node this process renders, -1 disables local mode.
type LocalConfig struct {
	Node   int  `mapstructure:"node"`
	Client bool `mapstructure:"client"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("cluster.master_address", "127.0.0.1")
	v.SetDefault("cluster.firm_sync", false)
	v.SetDefault("cluster.ignore_sync", false)

	v.SetDefault("sync.timeout", 60*time.Second)
	v.SetDefault("sync.watchdog_interval", 100*time.Millisecond)
	v.SetDefault("sync.print_wait_message", true)
	v.SetDefault("sync.wait_policy", "condition")

	v.SetDefault("capture.threads", 8)
	v.SetDefault("capture.path", ".")
	v.SetDefault("capture.prefix", "")
	v.SetDefault("capture.format", "png")
	v.SetDefault("capture.add_node_name", true)
	v.SetDefault("capture.quality", 90)
	v.SetDefault("capture.width", 1280)
	v.SetDefault("capture.height", 720)

	v.SetDefault("local.node", -1)
	v.SetDefault("local.client", false)
}

// Load reads the optional configuration file at path, environment variables
// prefixed with FRAMELOCK_, and whatever flags were bound on v.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "failed to read config file")
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal config")
	}
	if len(c.Cluster.Nodes) == 0 {
		c.Cluster.Nodes = []NodeConfig{{Address: "127.0.0.1", Port: 20401}}
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var err error
	if c.Cluster.MasterAddress == "" {
		err = multierr.Append(err, errors.New("cluster.master_address must not be empty"))
	}
	for idx, n := range c.Cluster.Nodes {
		if n.Address == "" {
			err = multierr.Append(err, errors.Errorf("node %d has no address", idx))
		}
		if n.Port <= 0 || n.Port > 65535 {
			err = multierr.Append(err, errors.Errorf("node %d has an invalid sync port %d", idx, n.Port))
		}
	}
	if c.Sync.Timeout <= 0 {
		err = multierr.Append(err, errors.New("sync.timeout must be positive"))
	}
	if c.Sync.WatchdogInterval <= 0 {
		err = multierr.Append(err, errors.New("sync.watchdog_interval must be positive"))
	}
	switch c.Sync.WaitPolicy {
	case "condition", "sleep":
	default:
		err = multierr.Append(err, errors.Errorf("unknown wait policy %q", c.Sync.WaitPolicy))
	}
	if c.Capture.Threads < 1 {
		err = multierr.Append(err, errors.New("capture.threads must be at least 1"))
	}
	if c.Local.Node >= len(c.Cluster.Nodes) {
		err = multierr.Append(err, errors.Errorf("local node %d is not part of a %d node cluster",
			c.Local.Node, len(c.Cluster.Nodes)))
	}
	return err
}
