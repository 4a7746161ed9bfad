package config

import (
	"fmt"
	"net/netip"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config is the top-level configuration struct for the watchdog.
// Tags are used by Viper to map YAML keys to struct fields.
type Config struct {
	LogLevel   string           `mapstructure:"log_level"`
	LogFormat  string           `mapstructure:"log_format"`
	Paths      PathsConfig      `mapstructure:"paths"`
	Snapshots  SnapshotsConfig  `mapstructure:"snapshots"`
	Network    NetworkConfig    `mapstructure:"network"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Timeouts   TimeoutsConfig   `mapstructure:"timeouts"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Watch      WatchConfig      `mapstructure:"watch"`
}

// PathsConfig locates the scanner data and the watchdog's own files.
type PathsConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	ReportDir string `mapstructure:"report_dir"`
	StateFile string `mapstructure:"state_file"`
	LockFile  string `mapstructure:"lock_file"`
}

// SnapshotsConfig holds the glob patterns of each snapshot family,
// relative to the data directory.
type SnapshotsConfig struct {
	Network string `mapstructure:"network"`
	Vuln    string `mapstructure:"vuln"`
	Enum    string `mapstructure:"enum"`
}

// NetworkConfig describes the monitored network.
type NetworkConfig struct {
	Gateway             string   `mapstructure:"gateway"`
	Subnets             []string `mapstructure:"subnets"`
	KnownDHCPServers    []string `mapstructure:"known_dhcp_servers"`
	CriticalDeviceTypes []string `mapstructure:"critical_device_types"`
	DNSTargets          []string `mapstructure:"dns_targets"`
	InternetAnchors     []string `mapstructure:"internet_anchors"`
	ResolvConf          string   `mapstructure:"resolv_conf"`
	DHCPInterface       string   `mapstructure:"dhcp_interface"`
}

type ThresholdsConfig struct {
	CertWarnDays int `mapstructure:"cert_warn_days"`
	CertCritDays int `mapstructure:"cert_crit_days"`
	DupMACIPs    int `mapstructure:"dup_mac_ips"`
}

type AlertsConfig struct {
	Cooldown      time.Duration `mapstructure:"cooldown"`
	HistoryLimit  int           `mapstructure:"history_limit"`
	RetentionDays int           `mapstructure:"retention_days"`
	MaxMessageLen int           `mapstructure:"max_message_len"`
	MaxPerTier    int           `mapstructure:"max_per_tier"`
}

type TimeoutsConfig struct {
	Check     time.Duration `mapstructure:"check"`
	Ping      time.Duration `mapstructure:"ping"`
	DNS       time.Duration `mapstructure:"dns"`
	TLS       time.Duration `mapstructure:"tls"`
	DHCP      time.Duration `mapstructure:"dhcp"`
	Notify    time.Duration `mapstructure:"notify"`
	Dashboard time.Duration `mapstructure:"dashboard"`
}

// NotifierConfig configures the signal-cli JSON-RPC daemon.
type NotifierConfig struct {
	RPCURL    string `mapstructure:"rpc_url"`
	Account   string `mapstructure:"account"`
	Recipient string `mapstructure:"recipient"`
	Retries   int    `mapstructure:"retries"`
}

type DashboardConfig struct {
	URL     string   `mapstructure:"url"`
	Command []string `mapstructure:"command"`
}

// WatchConfig drives the long-running watch loop.
type WatchConfig struct {
	LiveInterval time.Duration `mapstructure:"live_interval"`
	Settle       time.Duration `mapstructure:"settle"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("paths.data_dir", "/opt/netscan/data")
	v.SetDefault("paths.report_dir", "")
	v.SetDefault("paths.state_file", "")
	v.SetDefault("paths.lock_file", "")

	v.SetDefault("snapshots.network", "scan-*.json")
	v.SetDefault("snapshots.vuln", "vuln/vuln-*.json")
	v.SetDefault("snapshots.enum", "enum/enum-*.json")

	v.SetDefault("network.gateway", "192.168.1.254")
	v.SetDefault("network.subnets", []string{"192.168.0.0/22"})
	v.SetDefault("network.known_dhcp_servers", []string{"192.168.1.254"})
	v.SetDefault("network.critical_device_types", []string{"server", "network"})
	v.SetDefault("network.dns_targets", []string{"google.com", "cloudflare.com", "one.one.one.one"})
	v.SetDefault("network.internet_anchors", []string{"1.1.1.1", "8.8.8.8"})
	v.SetDefault("network.resolv_conf", "/etc/resolv.conf")
	v.SetDefault("network.dhcp_interface", "")

	v.SetDefault("thresholds.cert_warn_days", 30)
	v.SetDefault("thresholds.cert_crit_days", 7)
	v.SetDefault("thresholds.dup_mac_ips", 3)

	v.SetDefault("alerts.cooldown", "24h")
	v.SetDefault("alerts.history_limit", 200)
	v.SetDefault("alerts.retention_days", 30)
	v.SetDefault("alerts.max_message_len", 1500)
	v.SetDefault("alerts.max_per_tier", 6)

	v.SetDefault("timeouts.check", "60s")
	v.SetDefault("timeouts.ping", "2s")
	v.SetDefault("timeouts.dns", "5s")
	v.SetDefault("timeouts.tls", "5s")
	v.SetDefault("timeouts.dhcp", "10s")
	v.SetDefault("timeouts.notify", "15s")
	v.SetDefault("timeouts.dashboard", "60s")

	v.SetDefault("notifier.rpc_url", "http://127.0.0.1:8080/api/v1/rpc")
	v.SetDefault("notifier.account", "")
	v.SetDefault("notifier.recipient", "")
	v.SetDefault("notifier.retries", 3)

	v.SetDefault("dashboard.url", "")
	v.SetDefault("dashboard.command", []string{"python3", "/opt/netscan/generate-html.py"})

	v.SetDefault("watch.live_interval", "30m")
	v.SetDefault("watch.settle", "30s")
}

// LoadConfig reads the configuration from a YAML file and environment
// variables. An explicit path must exist; otherwise watchdog.yaml is looked
// up in the working directory and /etc/watchdog/, and a missing file means
// defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("watchdog") // watchdog.yaml
		v.SetConfigType("yaml")
		v.AddConfigPath(".")              // Search in current directory
		v.AddConfigPath("/etc/watchdog/") // Search in /etc/watchdog/
	}

	setDefaults(v)

	// Read environment variables
	v.SetEnvPrefix("WATCHDOG")                         // Look for WATCHDOG_ prefix
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace dots with underscores for nested keys
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Debug().Msg("Config file not found, using defaults and environment variables.")
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDerived() {
	if c.Paths.ReportDir == "" {
		c.Paths.ReportDir = filepath.Join(c.Paths.DataDir, "watchdog")
	}
	if c.Paths.StateFile == "" {
		c.Paths.StateFile = filepath.Join(c.Paths.DataDir, "watchdog-state.json")
	}
	if c.Paths.LockFile == "" {
		c.Paths.LockFile = c.Paths.StateFile + ".lock"
	}
}

// minMessageLen leaves room for the truncation marker in a digest.
const minMessageLen = 100

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if _, err := netip.ParseAddr(c.Network.Gateway); err != nil {
		result = multierror.Append(result, fmt.Errorf("network.gateway: %w", err))
	}
	if _, err := c.SubnetPrefixes(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, s := range c.Network.KnownDHCPServers {
		if _, err := netip.ParseAddr(s); err != nil {
			result = multierror.Append(result, fmt.Errorf("network.known_dhcp_servers: %w", err))
		}
	}
	for _, s := range c.Network.InternetAnchors {
		if _, err := netip.ParseAddr(s); err != nil {
			result = multierror.Append(result, fmt.Errorf("network.internet_anchors: %w", err))
		}
	}
	if c.Alerts.Cooldown <= 0 {
		result = multierror.Append(result, fmt.Errorf("alerts.cooldown must be positive, got %s", c.Alerts.Cooldown))
	}
	if c.Thresholds.CertCritDays > c.Thresholds.CertWarnDays {
		result = multierror.Append(result, fmt.Errorf("thresholds.cert_crit_days (%d) exceeds cert_warn_days (%d)",
			c.Thresholds.CertCritDays, c.Thresholds.CertWarnDays))
	}
	if c.Alerts.MaxMessageLen < minMessageLen {
		result = multierror.Append(result, fmt.Errorf("alerts.max_message_len must be at least %d, got %d",
			minMessageLen, c.Alerts.MaxMessageLen))
	}
	if c.Paths.DataDir == "" {
		result = multierror.Append(result, fmt.Errorf("paths.data_dir must be set"))
	}

	return result.ErrorOrNil()
}

// SubnetPrefixes parses the monitored subnets.
func (c *Config) SubnetPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.Network.Subnets))
	for _, s := range c.Network.Subnets {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("network.subnets: %w", err)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes, nil
}

// Retention returns the report retention as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Alerts.RetentionDays) * 24 * time.Hour
}
