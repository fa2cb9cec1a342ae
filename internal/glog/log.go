// Package glog provides structured logging for the editing core.
//
// Only background components (loader, background scan, debug server)
// log. The interactive query path never logs — a logger can block on
// its writer, and spec.md forbids blocking the main thread.
package glog

import (
	log "github.com/sirupsen/logrus"
)

// ForBuffer returns a logger scoped to one open buffer.
func ForBuffer(bufferID string) *log.Entry {
	return log.WithField("buffer_id", bufferID)
}

// WithEpoch annotates an entry with the epoch it was emitted at.
func WithEpoch(e *log.Entry, epoch uint64) *log.Entry {
	return e.WithField("epoch", epoch)
}

// SetLevel configures the package-wide log level, driven by
// gazeconfig or a CLI flag.
func SetLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
