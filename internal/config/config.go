// Package config holds the driver's named option lookup: the small set
// of tunables an embedder sets once at startup (paths, poll interval,
// whether to persist configuration, whether to log every transaction).
package config

import "time"

// Options are the driver's named configuration values, mirroring the
// options table an OpenZWave-style driver exposes (ConfigPath,
// UserPath, SaveConfiguration, NotifyTransactions, DriverMaxAttempts,
// PollInterval, ...), parsed from YAML at startup by cmd/zwserver.
type Options struct {
	// UserPath is where zwcfg_*.xml, zwbutton.xml, and the stats bbolt
	// database are read from and written to.
	UserPath string

	// SaveConfiguration controls whether the driver persists the node
	// table to zwcfg_*.xml after changes, or runs purely in memory.
	SaveConfiguration bool

	// NotifyTransactions makes the driver push a notify.MsgComplete event
	// each time a transaction completes successfully — useful for
	// debugging, noisy in production.
	NotifyTransactions bool

	// DriverMaxAttempts is available by name through Get; the driver does
	// not read it, and the transaction engine always uses txn.MaxTries.
	DriverMaxAttempts int

	// PollInterval is the time a full pass through the poll list should
	// take; see internal/poll.Loop.
	PollInterval time.Duration

	// AssumeAwake treats every node as reachable immediately rather than
	// waiting for a wake-up notification before sending it queued work;
	// useful only against a serial API emulator in tests.
	AssumeAwake bool
}

// Default returns the option set a fresh driver should start from before
// any config file is applied.
func Default() Options {
	return Options{
		SaveConfiguration: true,
		PollInterval:      30 * time.Second,
	}
}

// Get looks a named option up the way the original driver's
// GetOptionAsBool/GetOptionAsInt did, for callers that only know the
// option's name at runtime (e.g. a scripted command-class handler).
func (o Options) Get(name string) (interface{}, bool) {
	switch name {
	case "SaveConfiguration":
		return o.SaveConfiguration, true
	case "NotifyTransactions":
		return o.NotifyTransactions, true
	case "DriverMaxAttempts":
		return o.DriverMaxAttempts, true
	case "PollInterval":
		return o.PollInterval, true
	case "UserPath":
		return o.UserPath, true
	case "AssumeAwake":
		return o.AssumeAwake, true
	default:
		return nil, false
	}
}
