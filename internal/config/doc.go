// Package config loads herald's settings.
//
// Settings come from, in increasing priority:
//
//	1. Built-in defaults (Default)
//	2. A TOML or YAML file, chosen by extension
//	3. HERALD_* environment variables (see Bus.ApplyEnv)
//
// # Example
//
//	# herald.toml
//	shutdown_timeout = "10s"
//
//	[logging]
//	level = "debug"
//	format = "console"
//
//	[pools.blocking]
//	workers = 32
//
//	[notifications]
//	disabled_interfaces = ["connection"]
//	disabled_types = ["security"]
//
//	[notifications.bindings]
//	exception = ["message-processor"]
//
//	[[scripts]]
//	path = "audit.lua"
//	subscription = "order.*"
//
// A Watcher reloads the file when it changes. Disables are not additive
// across reloads: the caller applies each reloaded configuration to a fresh
// notify.Configuration through notify.Manager.Reconfigure, which is the only
// way to re-enable an interface or type.
package config
