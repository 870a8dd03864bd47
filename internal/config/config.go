package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/dshills/herald/internal/logging"
	"github.com/dshills/herald/internal/notify"
	"github.com/dshills/herald/internal/notify/pool"
)

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// PoolSettings sizes one affinity pool. Zero fields fall back to the
// pool package defaults.
type PoolSettings struct {
	Workers   int `toml:"workers" yaml:"workers"`
	QueueSize int `toml:"queue_size" yaml:"queue_size"`
}

// Pools holds the sizing of the three affinity pools.
type Pools struct {
	Lite     PoolSettings `toml:"lite" yaml:"lite"`
	Blocking PoolSettings `toml:"blocking" yaml:"blocking"`
	Compute  PoolSettings `toml:"compute" yaml:"compute"`
}

// Notifications controls routing.
type Notifications struct {
	// Dynamic disables the per-owner enablement cache of helpers.
	Dynamic bool `toml:"dynamic" yaml:"dynamic"`

	// DisabledInterfaces lists listener interface names to disable.
	DisabledInterfaces []string `toml:"disabled_interfaces" yaml:"disabled_interfaces"`

	// DisabledTypes lists notification type names to disable.
	DisabledTypes []string `toml:"disabled_types" yaml:"disabled_types"`

	// Bindings maps interface names to additional type names.
	Bindings map[string][]string `toml:"bindings" yaml:"bindings"`
}

// Script is a Lua listener loaded at startup.
type Script struct {
	Path         string `toml:"path" yaml:"path"`
	Subscription string `toml:"subscription" yaml:"subscription"`
}

// Bus is the complete herald configuration.
type Bus struct {
	Logging         logging.Settings `toml:"logging" yaml:"logging"`
	ShutdownTimeout Duration         `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	Pools           Pools            `toml:"pools" yaml:"pools"`
	Notifications   Notifications    `toml:"notifications" yaml:"notifications"`
	Scripts         []Script         `toml:"scripts" yaml:"scripts"`
}

// Default returns the built-in configuration.
func Default() *Bus {
	return &Bus{
		Logging:         logging.DefaultSettings(),
		ShutdownTimeout: Duration(5 * time.Second),
	}
}

// Format identifies a configuration file encoding.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads a configuration file on top of the defaults, applies HERALD_*
// environment overrides and validates the result. An empty path loads the
// defaults and environment only.
func Load(path string) (*Bus, error) {
	b := Default()
	if path != "" {
		format, err := FormatOf(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := b.decode(path, format, data); err != nil {
			return nil, err
		}
	}
	if err := b.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Parse decodes data on top of the defaults without consulting the
// environment.
func Parse(data []byte, format Format) (*Bus, error) {
	b := Default()
	if err := b.decode("<"+string(format)+">", format, data); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bus) decode(source string, format Format, data []byte) error {
	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, b)
	case FormatYAML:
		err = yaml.Unmarshal(data, b)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err == nil {
		return nil
	}

	pe := &ParseError{Path: source, Err: err}
	var de *toml.DecodeError
	if errors.As(err, &de) {
		pe.Line, pe.Column = de.Position()
	}
	return pe
}

// Validate checks every setting and reports all problems at once.
func (b *Bus) Validate() error {
	var errs error
	if err := b.Logging.Validate(); err != nil {
		errs = multierr.Append(errs, &ValidationError{Path: "logging", Message: err.Error(), Value: b.Logging})
	}
	if b.ShutdownTimeout <= 0 {
		errs = multierr.Append(errs, &ValidationError{Path: "shutdown_timeout", Message: "must be positive", Value: b.ShutdownTimeout})
	}
	for _, a := range pool.Affinities {
		s := b.poolSettings(a)
		prefix := "pools." + a.String()
		if s.Workers < 0 {
			errs = multierr.Append(errs, &ValidationError{Path: prefix + ".workers", Message: "must not be negative", Value: s.Workers})
		}
		if s.QueueSize < 0 {
			errs = multierr.Append(errs, &ValidationError{Path: prefix + ".queue_size", Message: "must not be negative", Value: s.QueueSize})
		}
	}
	for i, s := range b.Scripts {
		if strings.TrimSpace(s.Path) == "" {
			errs = multierr.Append(errs, &ValidationError{Path: fmt.Sprintf("scripts[%d].path", i), Message: "must not be empty", Value: s.Path})
		}
	}
	return errs
}

func (b *Bus) poolSettings(a pool.Affinity) PoolSettings {
	switch a {
	case pool.Blocking:
		return b.Pools.Blocking
	case pool.Compute:
		return b.Pools.Compute
	default:
		return b.Pools.Lite
	}
}

func (b *Bus) setPoolSettings(a pool.Affinity, s PoolSettings) {
	switch a {
	case pool.Blocking:
		b.Pools.Blocking = s
	case pool.Compute:
		b.Pools.Compute = s
	default:
		b.Pools.Lite = s
	}
}

// PoolSettings returns the effective sizing of an affinity pool.
func (b *Bus) PoolSettings(a pool.Affinity) pool.Settings {
	s := pool.DefaultSettings(a)
	c := b.poolSettings(a)
	if c.Workers > 0 {
		s.Workers = c.Workers
	}
	if c.QueueSize > 0 {
		s.QueueSize = c.QueueSize
	}
	return s
}

// ServiceOptions returns scheduler service options for the configured
// pool sizes.
func (b *Bus) ServiceOptions() []pool.ServiceOption {
	opts := make([]pool.ServiceOption, 0, len(pool.Affinities))
	for _, a := range pool.Affinities {
		opts = append(opts, pool.WithSettings(a, b.PoolSettings(a)))
	}
	return opts
}

// ManagerOptions returns manager options derived from the configuration.
func (b *Bus) ManagerOptions() []notify.ManagerOption {
	return []notify.ManagerOption{
		notify.WithShutdownTimeout(time.Duration(b.ShutdownTimeout)),
	}
}

// Reapply resets c's bindings to the registry defaults and then applies b.
// It is meant for a fresh configuration passed to notify.Manager.Reconfigure,
// so that bindings removed from the file stop applying.
func (b *Bus) Reapply(c *notify.Configuration) error {
	if err := c.ResetBindings(c.Registry().Bindings()); err != nil {
		return err
	}
	return b.Apply(c)
}

// Apply adds the configured bindings and disables the configured
// interfaces and types, all by name.
func (b *Bus) Apply(c *notify.Configuration) error {
	n := b.Notifications
	if len(n.Bindings) > 0 {
		if err := c.AddBindingsByName(n.Bindings); err != nil {
			return fmt.Errorf("notifications.bindings: %w", err)
		}
	}
	if len(n.DisabledInterfaces) > 0 {
		if err := c.DisableInterfacesByName(n.DisabledInterfaces); err != nil {
			return fmt.Errorf("notifications.disabled_interfaces: %w", err)
		}
	}
	if len(n.DisabledTypes) > 0 {
		if err := c.DisableTypesByName(n.DisabledTypes); err != nil {
			return fmt.Errorf("notifications.disabled_types: %w", err)
		}
	}
	return nil
}
