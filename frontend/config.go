package frontend

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tcassar-diss/xdpfilter/bpf"
	"github.com/tcassar-diss/xdpfilter/classifier"
)

const (
	DefaultImage    = "/usr/lib/xdpfilter/xdpfilter.o"
	DefaultPriority = 1
	DefaultCapacity = 1024
	DefaultTimeout  = 2 * time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration written as a string ("1s", "250ms") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	d.Duration = v

	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Image       string `toml:"image"`
	PinDir      string `toml:"pin_dir"`
	MetricsAddr string `toml:"metrics_addr"`
	Blocklist   string `toml:"blocklist"`
	RecordCSV   string `toml:"record_csv"`

	Ingress  IngressConfig  `toml:"ingress"`
	Egress   EgressConfig   `toml:"egress"`
	Policy   PolicyConfig   `toml:"policy"`
	Capacity CapacityConfig `toml:"capacity"`
	Resolver ResolverConfig `toml:"resolver"`
}

type IngressConfig struct {
	Interface string `toml:"interface"`
	Mode      string `toml:"mode"`
}

// EgressConfig configures the tc hook. An empty Interface means the ingress one.
type EgressConfig struct {
	Interface string `toml:"interface"`
	Priority  uint16 `toml:"priority"`
}

type PolicyConfig struct {
	Window           Duration `toml:"window"`
	Threshold        uint32   `toml:"threshold"`
	UnknownTransport string   `toml:"unknown_transport"`
}

type CapacityConfig struct {
	Deny    uint32 `toml:"deny"`
	Tracker uint32 `toml:"tracker"`
}

// ResolverConfig lists nameservers as host or host:port. An empty list means the
// ones in /etc/resolv.conf.
type ResolverConfig struct {
	Servers []string `toml:"servers"`
	Timeout Duration `toml:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Image:  DefaultImage,
		PinDir: bpf.DefaultPinDir,
		Ingress: IngressConfig{
			Mode: bpf.XDPDefault.String(),
		},
		Egress: EgressConfig{
			Priority: DefaultPriority,
		},
		Policy: PolicyConfig{
			Window:           Duration{classifier.DefaultWindow},
			Threshold:        classifier.DefaultThreshold,
			UnknownTransport: classifier.TransportAbort.String(),
		},
		Capacity: CapacityConfig{
			Deny:    DefaultCapacity,
			Tracker: DefaultCapacity,
		},
		Resolver: ResolverConfig{
			Timeout: Duration{DefaultTimeout},
		},
	}
}

// LoadConfig decodes the TOML file at path over the defaults. Unknown keys are an
// error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	md, err := toml.NewDecoder(file).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}

		return nil, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.XDPMode(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if _, err := c.ClassifierPolicy(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Capacity.Deny == 0 || c.Capacity.Tracker == 0 {
		return fmt.Errorf("%w: table capacities must be positive", ErrInvalidConfig)
	}

	if c.Egress.Priority == 0 {
		return fmt.Errorf("%w: egress priority must be positive", ErrInvalidConfig)
	}

	if c.Resolver.Timeout.Duration <= 0 {
		return fmt.Errorf("%w: resolver timeout must be positive", ErrInvalidConfig)
	}

	return nil
}

func (c *Config) XDPMode() (bpf.XDPMode, error) {
	return bpf.ParseXDPMode(c.Ingress.Mode)
}

func (c *Config) ClassifierPolicy() (classifier.Policy, error) {
	transport, err := classifier.ParseTransportPolicy(c.Policy.UnknownTransport)
	if err != nil {
		return classifier.Policy{}, err
	}

	p := classifier.Policy{
		Window:           c.Policy.Window.Duration,
		Threshold:        c.Policy.Threshold,
		UnknownTransport: transport,
	}

	return p, p.Validate()
}

func (c *Config) LoadCfg() (*bpf.LoadCfg, error) {
	policy, err := c.ClassifierPolicy()
	if err != nil {
		return nil, err
	}

	return &bpf.LoadCfg{
		Policy:          policy,
		DenyCapacity:    c.Capacity.Deny,
		TrackerCapacity: c.Capacity.Tracker,
	}, nil
}

func (c *Config) EgressInterface() string {
	if c.Egress.Interface != "" {
		return c.Egress.Interface
	}

	return c.Ingress.Interface
}
