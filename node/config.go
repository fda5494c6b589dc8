package node

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Network            string `json:"network" yaml:"network"`
	DataDir            string `json:"data_dir" yaml:"data_dir"`
	BindAddr           string `json:"bind_addr" yaml:"bind_addr"`
	LogLevel           string `json:"log_level" yaml:"log_level"`
	LogFormat          string `json:"log_format" yaml:"log_format"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	RateLimitBurst     int    `json:"rate_limit_burst" yaml:"rate_limit_burst"`
	// TrustedProxies lists the peers (IPs or CIDRs) whose X-Forwarded-For
	// header names the client. Other peers are keyed by their own address.
	TrustedProxies []string `json:"trusted_proxies,omitempty" yaml:"trusted_proxies"`
	// CancelRequiresMinimumEnergy applies the confirm-side energy minimum to
	// cancel settlements as well.
	CancelRequiresMinimumEnergy bool `json:"cancel_requires_minimum_energy" yaml:"cancel_requires_minimum_energy"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

var allowedLogFormats = map[string]struct{}{
	"text": {},
	"json": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".escrow"
	}
	return filepath.Join(home, ".escrow")
}

func DefaultConfig() Config {
	return Config{
		Network:                     "devnet",
		DataDir:                     DefaultDataDir(),
		BindAddr:                    "127.0.0.1:19311",
		LogLevel:                    "info",
		LogFormat:                   "text",
		RateLimitPerMinute:          600,
		RateLimitBurst:              60,
		CancelRequiresMinimumEnergy: true,
	}
}

// LoadConfigFile overlays the YAML document at path onto base. Keys absent
// from the file keep their value from base.
func LoadConfigFile(path string, base Config) (Config, error) {
	raw, err := readOperatorFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if strings.ContainsAny(cfg.Network, `/\`) || cfg.Network == "." || cfg.Network == ".." {
		return fmt.Errorf("invalid network %q", cfg.Network)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr: %w", err)
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	logFormat := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if _, ok := allowedLogFormats[logFormat]; !ok {
		return fmt.Errorf("invalid log_format %q", cfg.LogFormat)
	}
	if cfg.RateLimitPerMinute <= 0 {
		return errors.New("rate_limit_per_minute must be > 0")
	}
	if cfg.RateLimitBurst <= 0 {
		return errors.New("rate_limit_burst must be > 0")
	}
	if _, err := parseTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted_proxies: %w", err)
	}
	return nil
}

func parseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if strings.Contains(e, "/") {
			pfx, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, err
			}
			out = append(out, pfx.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}
