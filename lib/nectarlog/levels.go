package nectarlog

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

// SetupLogLevels sets the default levels unless GOLOG_LOG_LEVEL is set.
func SetupLogLevels() {
	if _, set := os.LookupEnv("GOLOG_LOG_LEVEL"); !set {
		_ = logging.SetLogLevel("*", "INFO")
		_ = logging.SetLogLevel("rpc", "WARN")
		_ = logging.SetLogLevel("ledger", "INFO")
		_ = logging.SetLogLevel("ledgersim", "WARN")
	}
}

// ApplyLevels overrides the level of each named subsystem.
func ApplyLevels(levels map[string]string) error {
	for sys, level := range levels {
		if err := logging.SetLogLevel(sys, level); err != nil {
			return xerrors.Errorf("setting log level of %s to %s: %w", sys, level, err)
		}
	}
	return nil
}
