package lsps2

import "github.com/btcsuite/btclog"

// log is the package-wide logger for the LSPS2 service engine. It is
// disabled by default; the embedding application wires up a real logger
// through UseLogger the way lnd's subsystems are wired up in lnd.go.
var log btclog.Logger

func init() {
	UseLogger(btclog.Disabled)
}

// UseLogger sets the package-wide logger used by the lsps2 package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
