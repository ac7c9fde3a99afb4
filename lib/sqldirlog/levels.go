package sqldirlog

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
)

// SetupLogLevels sets the default levels for the sqldir subsystems unless
// GOLOG_LOG_LEVEL already configures them.
func SetupLogLevels() {
	if _, set := os.LookupEnv("GOLOG_LOG_LEVEL"); !set {
		_ = logging.SetLogLevel("*", "INFO")
		_ = logging.SetLogLevel("sqldir", "INFO")
		_ = logging.SetLogLevel("sqlpool", "WARN")
		_ = logging.SetLogLevel("metrics", "WARN")
	}
	_ = logging.SetLogLevel("retry", "INFO")
}

// Subsystems matches the loggers this module creates.
const Subsystems = `^(sqldir(/.*)?|sqlpool|retry|metrics)$`

// SetLevel applies lvl to every sqldir subsystem, leaving library loggers
// alone.
func SetLevel(lvl string) error {
	return logging.SetLogLevelRegex(Subsystems, lvl)
}
