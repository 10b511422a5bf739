// Package common provides the shared logging and error facilities used
// across the infrakt control plane.
//
// The logging system is built on logrus with an output splitter that
// routes error-level lines to stderr and everything else to stdout, so
// containerised and scripted environments can treat the two streams
// differently.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines to stderr or stdout based
// on their level marker.
type OutputSplitter struct{}

// Write implements io.Writer. Lines containing "level=error" go to
// stderr, everything else to stdout.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the process-wide logger instance. All packages log through
// it so formatting and routing stay uniform.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
	Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// ConfigureLogger applies the configured level and format to the global
// logger. Unknown values fall back to info/text.
func ConfigureLogger(level, format string) {
	switch level {
	case "debug":
		Logger.SetLevel(logrus.DebugLevel)
	case "warn":
		Logger.SetLevel(logrus.WarnLevel)
	case "error":
		Logger.SetLevel(logrus.ErrorLevel)
	default:
		Logger.SetLevel(logrus.InfoLevel)
	}
	if format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	}
}
