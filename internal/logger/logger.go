package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	log.SetLevel(logrus.DebugLevel)
}

// SetLevel sets the minimum level by name (debug, info, warn, error)
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output, mostly for tests. nil restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	log.SetOutput(w)
}

// Base returns the underlying logger for libraries that want one
func Base() *logrus.Logger {
	return log
}

func entry(userID, action string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"user_id": userID,
		"action":  action,
	})
}

// Debug logs a debug message with consistent format
// Format: level=debug user_id=... action=... msg=details
func Debug(userID, action, details string) {
	entry(userID, action).Debug(details)
}

// Info logs a lifecycle event
func Info(userID, action, details string) {
	entry(userID, action).Info(details)
}

// Warn logs a degraded but recoverable condition
func Warn(userID, action, details string) {
	entry(userID, action).Warn(details)
}

// Error logs a failure that was swallowed
func Error(userID, action string, err error) {
	entry(userID, action).WithError(err).Error("failed")
}
