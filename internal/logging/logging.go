package logging

import (
	"io"
	"log"
	"os"
)

var (
	disabled = false
	debug    = false
	logger   = log.New(os.Stdout, "", log.LstdFlags)
)

// Disable turns off all logging
func Disable() {
	disabled = true
}

// Enable turns logging back on
func Enable() {
	disabled = false
}

// SetDebug toggles debug-level output
func SetDebug(on bool) {
	debug = on
}

// SetOutput redirects log output (used by tests)
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Info logs an info message
func Info(v ...any) {
	if !disabled {
		logger.Println(v...)
	}
}

// Infof logs a formatted info message
func Infof(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Warn logs a warning message
func Warn(v ...any) {
	if !disabled {
		logger.Println(v...)
	}
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Error logs an error message
func Error(v ...any) {
	if !disabled {
		logger.Println(v...)
	}
}

// Errorf logs a formatted error message
func Errorf(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Debug logs a debug message when debug output is enabled
func Debug(v ...any) {
	if !disabled && debug {
		logger.Println(v...)
	}
}

// Debugf logs a formatted debug message when debug output is enabled
func Debugf(format string, v ...any) {
	if !disabled && debug {
		logger.Printf(format, v...)
	}
}
