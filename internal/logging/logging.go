package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// InitializeLogger initializes the global logger with standard configurations.
func InitializeLogger(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetFormatter(&logrus.JSONFormatter{}) // Use JSON format for structured logs
	log.SetOutput(os.Stdout)                  // Log to standard output
	log.SetLevel(lvl)
	return nil
}

// Info logs informational messages.
func Info(message string, fields map[string]interface{}) {
	log.WithFields(fields).Info(message)
}

// Warn logs warning messages.
func Warn(message string, fields map[string]interface{}) {
	log.WithFields(fields).Warn(message)
}

// Error logs error messages.
func Error(message string, fields map[string]interface{}) {
	log.WithFields(fields).Error(message)
}

// Debug logs debug messages.
func Debug(message string, fields map[string]interface{}) {
	log.WithFields(fields).Debug(message)
}
