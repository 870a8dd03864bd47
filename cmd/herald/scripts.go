package main

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/herald/internal/config"
	"github.com/dshills/herald/internal/notification"
	"github.com/dshills/herald/internal/notify"
	"github.com/dshills/herald/internal/script"
)

// loadedScript is a script listener and the configuration entry that
// named it, if any.
type loadedScript struct {
	*script.Listener
	entry *config.Script
}

type scriptSet []loadedScript

// loadScripts loads the configured scripts followed by the --script ones.
// On error the scripts loaded so far are returned so the caller can close
// them.
func (o *runOptions) loadScripts(bus *config.Bus, reg *notification.Registry, logger *zap.Logger) (scriptSet, error) {
	var set scriptSet
	for i := range bus.Scripts {
		entry := &bus.Scripts[i]
		l, err := script.Load(o.resolve(entry.Path), reg, script.WithLogger(logger))
		if err != nil {
			return set, err
		}
		set = append(set, loadedScript{Listener: l, entry: entry})
	}
	for _, path := range o.scripts {
		l, err := script.Load(path, reg, script.WithLogger(logger))
		if err != nil {
			return set, err
		}
		set = append(set, loadedScript{Listener: l})
	}
	return set, nil
}

// resolve makes a configured script path relative to the configuration
// file's directory.
func (o *runOptions) resolve(path string) string {
	if filepath.IsAbs(path) || o.configPath == "" {
		return path
	}
	return filepath.Join(filepath.Dir(o.configPath), path)
}

// pairs returns one pair per script. A subscription in the configuration
// entry takes precedence over the one the script declares.
func (s scriptSet) pairs() []notify.Pair {
	out := make([]notify.Pair, 0, len(s))
	for _, l := range s {
		if l.entry != nil && l.entry.Subscription != "" {
			out = append(out, notify.NewPair(l.Listener, l.entry.Subscription))
			continue
		}
		out = append(out, l.Pair())
	}
	return out
}
