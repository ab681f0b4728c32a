package config

import (
	"fmt"
	stdlog "log"
	"net"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/ocihub/compute-telemetry/utils"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/log"
)

const (
	// AuthUserPrincipal reads API signing credentials from the local OCI
	// config file (~/.oci/config or [oci] config-path).
	AuthUserPrincipal = "user"
	// AuthInstancePrincipal obtains credentials from the instance metadata
	// service. Only works when running on an OCI compute instance.
	AuthInstancePrincipal = "instance"
)

type Config struct {
	Address          string  `toml:"address" json:"address"`
	AdvertiseAddress string  `toml:"advertise-address" json:"advertise_address"`
	Log              Log     `toml:"log" json:"log"`
	OCI              OCI     `toml:"oci" json:"oci"`
	Metrics          Metrics `toml:"metrics" json:"metrics"`
	Storage          Storage `toml:"storage" json:"storage"`
	Cache            Cache   `toml:"cache" json:"cache"`
}

var defaultConfig = Config{
	Address: "0.0.0.0:12040",
	Log: Log{
		Path:  "", // default output is stdout
		Level: "INFO",
	},
	OCI: OCI{
		AuthMode: AuthUserPrincipal,
	},
	Metrics: Metrics{
		Namespace:      "oci_computeagent",
		Resolution:     "1m",
		Concurrency:    5,
		TimeoutSeconds: 10,
		RetryTimes:     1,
	},
	Storage: Storage{
		Path: "data",
	},
	Cache: Cache{
		CompartmentTTLSeconds: 30,
	},
}

func GetDefaultConfig() Config {
	return defaultConfig
}

var (
	globalConfigMutex sync.Mutex
	globalConfig      = defaultConfig
)

func GetGlobalConfig() (res Config) {
	globalConfigMutex.Lock()
	res = globalConfig
	globalConfigMutex.Unlock()
	return
}

// StoreGlobalConfig stores a new config to the globalConf. It mostly uses in the test to avoid some data races.
func StoreGlobalConfig(config Config) {
	globalConfigMutex.Lock()
	globalConfig = config
	globalConfigMutex.Unlock()
}

func InitConfig(configPath string, override func(config *Config)) (*Config, error) {
	config := defaultConfig

	if len(configPath) > 0 {
		if err := config.Load(configPath); err != nil {
			return nil, err
		}
	}

	override(&config)

	config.trimFieldSpace()
	config.setDefaultAdvertiseAddress()

	if err := config.valid(); err != nil {
		return nil, err
	}
	StoreGlobalConfig(config)
	return &config, nil
}

func (c *Config) trimFieldSpace() {
	c.Address = strings.TrimSpace(c.Address)
	c.AdvertiseAddress = strings.TrimSpace(c.AdvertiseAddress)
	c.OCI.AuthMode = strings.TrimSpace(c.OCI.AuthMode)
	c.OCI.ConfigPath = strings.TrimSpace(c.OCI.ConfigPath)
	c.OCI.Profile = strings.TrimSpace(c.OCI.Profile)
	c.OCI.Tenancy = strings.TrimSpace(c.OCI.Tenancy)
}

func (c *Config) Load(fileName string) error {
	_, err := toml.DecodeFile(fileName, c)
	return err
}

func (c *Config) setDefaultAdvertiseAddress() {
	if len(c.AdvertiseAddress) == 0 && strings.HasPrefix(c.Address, "0.0.0.0") {
		ip := utils.GetLocalIP()
		c.AdvertiseAddress = strings.Replace(c.Address, "0.0.0.0", ip, 1)
	}
	if len(c.AdvertiseAddress) == 0 {
		c.AdvertiseAddress = c.Address
	}
}

func (c *Config) valid() error {
	var err error

	if err = validateAddress(c.Address, "address"); err != nil {
		return err
	}

	if err = validateAddress(c.AdvertiseAddress, "advertise-address"); err != nil {
		return err
	}

	if err = c.Log.valid(); err != nil {
		return err
	}

	if err = c.OCI.valid(); err != nil {
		return err
	}

	if err = c.Metrics.valid(); err != nil {
		return err
	}

	if err = c.Storage.valid(); err != nil {
		return err
	}

	return nil
}

func validateAddress(address, name string) error {
	if len(address) == 0 {
		return fmt.Errorf("unexpected empty %v", name)
	}
	_, port, err := net.SplitHostPort(address)
	if err == nil {
		var p int
		p, err = strconv.Atoi(port)
		if err == nil && p == 0 {
			err = fmt.Errorf("port cannot be set to 0")
		}
	}
	if err != nil {
		return fmt.Errorf("%v %v is invalid, err: %v", name, address, err)
	}
	return nil
}

// OCI controls how the backend SDK clients authenticate and which tenancy
// they discover resources in.
type OCI struct {
	AuthMode   string `toml:"auth-mode" json:"auth_mode"`
	ConfigPath string `toml:"config-path" json:"config_path"`
	Profile    string `toml:"profile" json:"profile"`
	// Tenancy overrides the tenancy OCID resolved from the configuration
	// provider. Rarely needed outside tests.
	Tenancy string `toml:"tenancy" json:"tenancy"`
}

func (o *OCI) valid() error {
	switch o.AuthMode {
	case AuthUserPrincipal, AuthInstancePrincipal:
	default:
		return fmt.Errorf("oci auth-mode should be %q or %q", AuthUserPrincipal, AuthInstancePrincipal)
	}
	if o.AuthMode == AuthInstancePrincipal && len(o.ConfigPath) > 0 {
		return fmt.Errorf("oci config-path is only used with auth-mode %q", AuthUserPrincipal)
	}
	return nil
}

type Metrics struct {
	Namespace      string `toml:"namespace" json:"namespace"`
	Resolution     string `toml:"resolution" json:"resolution"`
	Concurrency    int    `toml:"concurrency" json:"concurrency"`
	TimeoutSeconds int    `toml:"timeout-seconds" json:"timeout_seconds"`
	RetryTimes     uint   `toml:"retry-times" json:"retry_times"`
}

func (m *Metrics) valid() error {
	if len(m.Namespace) == 0 {
		return fmt.Errorf("unexpected empty metrics namespace")
	}
	if len(m.Resolution) == 0 {
		return fmt.Errorf("unexpected empty metrics resolution")
	}
	if m.Concurrency <= 0 {
		return fmt.Errorf("metrics concurrency should be positive, got %d", m.Concurrency)
	}
	if m.TimeoutSeconds <= 0 {
		return fmt.Errorf("metrics timeout-seconds should be positive, got %d", m.TimeoutSeconds)
	}
	return nil
}

type Storage struct {
	Path string `toml:"path" json:"path"`
}

func (s *Storage) valid() error {
	if len(s.Path) == 0 {
		return fmt.Errorf("unexpected empty storage path")
	}

	return nil
}

type Cache struct {
	CompartmentTTLSeconds int `toml:"compartment-ttl-seconds" json:"compartment_ttl_seconds"`
}

type Log struct {
	Path  string `toml:"path" json:"path"`
	Level string `toml:"level" json:"level"`
}

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

func (l *Log) valid() error {
	if len(l.Level) == 0 {
		return fmt.Errorf("unexpected empty log level")
	}

	switch l.Level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("log level should be %s, %s, %s or %s", LevelDebug, LevelInfo, LevelWarn, LevelError)
	}

	return nil
}

func (l *Log) InitDefaultLogger() {
	cfg := &log.Config{Level: strings.ToLower(l.Level)}
	if l.Path != "" {
		cfg.File = log.FileLogConfig{Filename: path.Join(l.Path, "telemetry.log")}
	}

	logger, p, err := log.InitLogger(cfg)
	if err != nil {
		stdlog.Fatalf("Failed to init logger, err: %v", err)
	}
	log.ReplaceGlobals(logger, p)
}
