// Package logging provides the leveled log helpers shared by every package.
package logging

import (
	"fmt"
	"log"
	"strings"
)

// LogLevel represents logging severity.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var currentLevel LogLevel = LevelInfo

// SetLogLevel updates the current logging level.
func SetLogLevel(l LogLevel) { currentLevel = l }

// ParseLevel maps a level name such as "debug" or "warn" to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Debugf logs formatted debug messages when the level allows.
func Debugf(format string, args ...interface{}) {
	if currentLevel <= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// Infof logs formatted info messages when the level allows.
func Infof(format string, args ...interface{}) {
	if currentLevel <= LevelInfo {
		log.Printf("[INFO] "+format, args...)
	}
}

// Warnf logs formatted warning messages when the level allows.
func Warnf(format string, args ...interface{}) {
	if currentLevel <= LevelWarn {
		log.Printf("[WARN] "+format, args...)
	}
}

// Errorf logs formatted error messages when the level allows.
func Errorf(format string, args ...interface{}) {
	if currentLevel <= LevelError {
		log.Printf("[ERROR] "+format, args...)
	}
}
