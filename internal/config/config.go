// Package config loads appliance settings from file, environment, and
// built-in defaults.
//
// Values come from, in order of precedence: SUMPWATCH_* environment
// variables, a YAML config file, and the package defaults. The file is
// optional unless an explicit path is given; a bare appliance boots fine
// on defaults alone.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sumpwatch/internal/event"
	"sumpwatch/internal/gpio"
	"sumpwatch/internal/logger"
	"sumpwatch/internal/monitor"
	"sumpwatch/internal/netwatch"
	"sumpwatch/internal/service"
	"sumpwatch/internal/web"
)

// envPrefix namespaces environment overrides, e.g. SUMPWATCH_MQTT_BROKER.
const envPrefix = "sumpwatch"

// Config holds the resolved appliance settings.
type Config struct {
	ServiceAddr string
	IdleTimeout time.Duration
	Keepalive   time.Duration

	GPIOChip     string
	PinPrimary   int
	PinSecondary int
	Settle       time.Duration

	BusDepth int

	HTTPAddr string

	// Broker is the MQTT broker URL; empty disables the MQTT mirror.
	Broker string

	// Iface is the uplink interface to watch; empty disables link watching.
	Iface string
	Poll  time.Duration

	LogLevel string
}

// Load reads configuration. With a non-empty path the file must exist and
// parse; otherwise the search paths (/etc/sumpwatch, ./configs) are tried
// and a missing file is fine.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("/etc/sumpwatch")
		v.AddConfigPath("configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		ServiceAddr:  v.GetString("service.addr"),
		IdleTimeout:  v.GetDuration("service.idle_timeout"),
		Keepalive:    v.GetDuration("service.keepalive"),
		GPIOChip:     v.GetString("gpio.chip"),
		PinPrimary:   v.GetInt("gpio.pin_primary"),
		PinSecondary: v.GetInt("gpio.pin_secondary"),
		Settle:       v.GetDuration("monitor.settle"),
		BusDepth:     v.GetInt("bus.depth"),
		HTTPAddr:     v.GetString("http.addr"),
		Broker:       v.GetString("mqtt.broker"),
		Iface:        v.GetString("net.iface"),
		Poll:         v.GetDuration("net.poll"),
		LogLevel:     v.GetString("log.level"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.addr", service.DefaultAddr)
	v.SetDefault("service.idle_timeout", service.DefaultIdleTimeout)
	v.SetDefault("service.keepalive", service.DefaultKeepalive)
	v.SetDefault("gpio.chip", gpio.DefaultChip)
	v.SetDefault("gpio.pin_primary", gpio.DefaultPinPrimary)
	v.SetDefault("gpio.pin_secondary", gpio.DefaultPinSecondary)
	v.SetDefault("monitor.settle", monitor.DefaultSettle)
	v.SetDefault("bus.depth", event.DefaultDepth)
	v.SetDefault("http.addr", web.DefaultAddr)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("net.iface", netwatch.DefaultIface)
	v.SetDefault("net.poll", netwatch.DefaultPoll)
	v.SetDefault("log.level", logger.InfoLevel)
}

// Validate rejects settings the appliance cannot run with.
func (c Config) Validate() error {
	if c.ServiceAddr == "" {
		return errors.New("service.addr must not be empty")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("service.idle_timeout must be positive, got %v", c.IdleTimeout)
	}
	if c.Keepalive <= 0 {
		return fmt.Errorf("service.keepalive must be positive, got %v", c.Keepalive)
	}
	if c.GPIOChip == "" {
		return errors.New("gpio.chip must not be empty")
	}
	if c.PinPrimary < 0 || c.PinSecondary < 0 {
		return fmt.Errorf("gpio pins must not be negative, got %d and %d", c.PinPrimary, c.PinSecondary)
	}
	if c.PinPrimary == c.PinSecondary {
		return fmt.Errorf("gpio pins must differ, both are %d", c.PinPrimary)
	}
	if c.Settle <= 0 {
		return fmt.Errorf("monitor.settle must be positive, got %v", c.Settle)
	}
	if c.BusDepth <= 0 {
		return fmt.Errorf("bus.depth must be positive, got %d", c.BusDepth)
	}
	if c.HTTPAddr == "" {
		return errors.New("http.addr must not be empty")
	}
	if c.Iface != "" && c.Poll <= 0 {
		return fmt.Errorf("net.poll must be positive, got %v", c.Poll)
	}
	return nil
}
