// Package monitoring holds the diagnostic logging hook shared by the engine,
// store and blend layers.
package monitoring

import (
	"io"
	"log"
)

// Logger is the signature of Logf.
type Logger func(format string, v ...interface{})

// Logf receives every diagnostic line. It defaults to log.Printf.
var Logf Logger = log.Printf

func discard(string, ...interface{}) {}

// SetLogger replaces Logf and returns the logger it replaced. nil installs
// a no-op logger.
func SetLogger(f Logger) (previous Logger) {
	previous = Logf
	if f == nil {
		f = discard
	}
	Logf = f
	return previous
}

// Mute silences Logf until the returned function is called.
func Mute() (restore func()) {
	prev := SetLogger(nil)
	return func() { Logf = prev }
}

// WriterLogger returns a Logger writing timestamped lines to w.
func WriterLogger(w io.Writer, prefix string) Logger {
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds).Printf
}
