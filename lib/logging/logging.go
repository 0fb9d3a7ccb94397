// Package logging provides the process-wide logger used by the rentguard services.
package logging

import (
	"fmt"
	"io"
	stdlog "log"
	"os"

	clog "github.com/charmbracelet/log"
)

// L is the package-level logger. Callers should use the helper functions below.
var L = clog.NewWithOptions(os.Stderr, clog.Options{ReportTimestamp: true}) //nolint:gochecknoglobals // process logger

// SetLevel sets the minimum level logged by L. Unknown levels are reported and leave the level unchanged.
func SetLevel(level string) error {
	lvl, err := clog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	L.SetLevel(lvl)

	return nil
}

// SetOutput redirects L to w.
func SetOutput(w io.Writer) {
	L.SetOutput(w)
}

// Std returns a standard library logger writing to L at info level, for http.Server.ErrorLog and access logs.
func Std() *stdlog.Logger {
	return L.StandardLog(clog.StandardLogOptions{ForceLevel: clog.InfoLevel})
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...interface{}) {
	L.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...interface{}) {
	L.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...interface{}) {
	L.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...interface{}) {
	L.Error(fmt.Sprintf(format, v...))
}
