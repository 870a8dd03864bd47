package config

import (
	"strconv"
	"strings"

	"github.com/dshills/herald/internal/notify/pool"
)

// EnvPrefix is the prefix of every recognised environment variable.
const EnvPrefix = "HERALD_"

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings from the environment:
//
//	HERALD_LOG_LEVEL                  logging.level
//	HERALD_LOG_FORMAT                 logging.format
//	HERALD_SHUTDOWN_TIMEOUT           shutdown_timeout (e.g. "10s")
//	HERALD_POOL_<AFFINITY>_WORKERS    pools.<affinity>.workers
//	HERALD_POOL_<AFFINITY>_QUEUE      pools.<affinity>.queue_size
//	HERALD_DYNAMIC                    notifications.dynamic
//	HERALD_DISABLED_INTERFACES        notifications.disabled_interfaces (comma list)
//	HERALD_DISABLED_TYPES             notifications.disabled_types (comma list)
//
// Empty values are treated as set.
func (b *Bus) ApplyEnv(lookup LookupFunc) error {
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok {
		b.Logging.Level = v
	}
	if v, ok := lookup(EnvPrefix + "LOG_FORMAT"); ok {
		b.Logging.Format = v
	}
	if v, ok := lookup(EnvPrefix + "SHUTDOWN_TIMEOUT"); ok {
		var d Duration
		if err := d.UnmarshalText([]byte(v)); err != nil {
			return &EnvError{Name: EnvPrefix + "SHUTDOWN_TIMEOUT", Value: v, Err: err}
		}
		b.ShutdownTimeout = d
	}

	for _, a := range pool.Affinities {
		s := b.poolSettings(a)
		name := strings.ToUpper(a.String())
		if err := envInt(lookup, EnvPrefix+"POOL_"+name+"_WORKERS", &s.Workers); err != nil {
			return err
		}
		if err := envInt(lookup, EnvPrefix+"POOL_"+name+"_QUEUE", &s.QueueSize); err != nil {
			return err
		}
		b.setPoolSettings(a, s)
	}

	if v, ok := lookup(EnvPrefix + "DYNAMIC"); ok {
		dyn, err := parseBool(v)
		if err != nil {
			return &EnvError{Name: EnvPrefix + "DYNAMIC", Value: v, Err: err}
		}
		b.Notifications.Dynamic = dyn
	}
	if v, ok := lookup(EnvPrefix + "DISABLED_INTERFACES"); ok {
		b.Notifications.DisabledInterfaces = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "DISABLED_TYPES"); ok {
		b.Notifications.DisabledTypes = splitList(v)
	}
	return nil
}

func envInt(lookup LookupFunc, name string, dst *int) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return &EnvError{Name: name, Value: v, Err: err}
	}
	*dst = n
	return nil
}

// parseBool accepts true/false, yes/no, on/off and 1/0.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0", "":
		return false, nil
	default:
		return false, strconv.ErrSyntax
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
