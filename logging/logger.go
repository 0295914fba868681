// Package logging defines the Logger contract shared by the mage Core
// facade, Node, and Endpoint, and a logrus-backed default
// implementation. The interface shape follows the teacher's
// definition.DefaultLogger (pkg/mcast/definition/default_logger.go),
// reimplemented over github.com/sirupsen/logrus for structured,
// leveled, field-carrying output instead of a bare *log.Logger.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract every component in this module takes
// by interface, so callers can supply their own implementation the
// same way the teacher lets users swap in their own types.Logger.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	Panic(v ...interface{})
	Panicf(format string, v ...interface{})

	// ToggleDebug enables or disables Debug/Debugf output, returning
	// the new value.
	ToggleDebug(enabled bool) bool

	// WithField returns a Logger that annotates every subsequent call
	// with key=value, without mutating the receiver.
	WithField(key string, value interface{}) Logger
}

// DefaultLogger is the logrus-backed Logger used when a caller does
// not supply their own.
type DefaultLogger struct {
	entry *logrus.Entry
	level *logrus.Logger
}

// NewDefaultLogger creates a DefaultLogger writing to stderr at Info
// level (Debug is off until ToggleDebug(true)).
func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return &DefaultLogger{entry: logrus.NewEntry(l), level: l}
}

func (d *DefaultLogger) Info(v ...interface{})                  { d.entry.Info(v...) }
func (d *DefaultLogger) Infof(format string, v ...interface{})  { d.entry.Infof(format, v...) }
func (d *DefaultLogger) Warn(v ...interface{})                  { d.entry.Warn(v...) }
func (d *DefaultLogger) Warnf(format string, v ...interface{})  { d.entry.Warnf(format, v...) }
func (d *DefaultLogger) Error(v ...interface{})                 { d.entry.Error(v...) }
func (d *DefaultLogger) Errorf(format string, v ...interface{}) { d.entry.Errorf(format, v...) }
func (d *DefaultLogger) Debug(v ...interface{})                 { d.entry.Debug(v...) }
func (d *DefaultLogger) Debugf(format string, v ...interface{}) { d.entry.Debugf(format, v...) }
func (d *DefaultLogger) Fatal(v ...interface{})                 { d.entry.Fatal(v...) }
func (d *DefaultLogger) Fatalf(format string, v ...interface{}) { d.entry.Fatalf(format, v...) }
func (d *DefaultLogger) Panic(v ...interface{})                 { d.entry.Panic(v...) }
func (d *DefaultLogger) Panicf(format string, v ...interface{}) { d.entry.Panicf(format, v...) }

func (d *DefaultLogger) ToggleDebug(enabled bool) bool {
	if enabled {
		d.level.SetLevel(logrus.DebugLevel)
	} else {
		d.level.SetLevel(logrus.InfoLevel)
	}
	return enabled
}

func (d *DefaultLogger) WithField(key string, value interface{}) Logger {
	return &DefaultLogger{entry: d.entry.WithField(key, value), level: d.level}
}
