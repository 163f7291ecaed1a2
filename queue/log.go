package queue

import "github.com/btcsuite/btclog"

// log is the package-wide logger for the queue package. It is
// disabled by default and wired up by the embedding application through
// UseLogger.
var log btclog.Logger

func init() {
	UseLogger(btclog.Disabled)
}

// UseLogger sets the package-wide logger used by the queue package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
