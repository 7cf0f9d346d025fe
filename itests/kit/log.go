package kit

import (
	logging "github.com/ipfs/go-log/v2"

	"github.com/nectarprotocol/nectar-go/lib/nectarlog"
)

func QuietLedgerLogs() {
	nectarlog.SetupLogLevels()

	_ = logging.SetLogLevel("ledger", "ERROR")
	_ = logging.SetLogLevel("ledgersim", "ERROR")
	_ = logging.SetLogLevel("rpc", "ERROR")
}

func QuietAllLogsExcept(names ...string) {
	nectarlog.SetupLogLevels()
	logging.SetAllLoggers(logging.LevelError)
	for _, name := range names {
		_ = logging.SetLogLevel(name, "INFO")
	}
}
