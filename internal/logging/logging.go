package logging

/*------------------------------------------------------------------
 *
 * Purpose:	Structured, leveled, colorized logging (SPEC_FULL.md §1
 *		ambient stack) and the optional timestamped scan-result
 *		log file name pattern.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// Init configures the global charmbracelet/log logger: colorized,
// timestamped, at the given level name ("debug", "info", "warn",
// "error"; unrecognized names fall back to "info").
func Init(levelName string) {
	level, err := log.ParseLevel(levelName)
	if err != nil {
		level = log.InfoLevel
	}

	log.SetLevel(level)
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.RFC3339)
}

// ResultLogPath expands pattern — an strftime pattern such as
// "knxscan-%Y%m%d-%H%M%S.log" — against the current time, for a scan
// invocation's optional result log file.
func ResultLogPath(pattern string) (string, error) {
	f, err := strftime.New(pattern)
	if err != nil {
		return "", fmt.Errorf("logging: bad result log pattern %q: %w", pattern, err)
	}

	return f.FormatString(time.Now()), nil
}

// OpenResultLog opens (creating if needed) the file named by expanding
// pattern, for append-only scan-result logging alongside the console.
func OpenResultLog(pattern string) (*os.File, error) {
	path, err := ResultLogPath(pattern)
	if err != nil {
		return nil, err
	}

	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
