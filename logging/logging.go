// Package logging provides the structured logger every other MPAT
// package logs through, in place of bare log.Println/log.Printf calls.
// It is a thin wrapper around logrus so call sites read like the
// package-level logging every other package in this tree uses, while
// giving operators field-tagged, leveled output.
package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Log is the package-level logger shared by every MPAT component.
var Log = log.New()

func init() {
	Log.SetOutput(os.Stderr)
	Log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

// WithField is a convenience alias for Log.WithField, matching the
// call shape used throughout the codebase.
func WithField(key string, value interface{}) *log.Entry {
	return Log.WithField(key, value)
}

// WithFields is a convenience alias for Log.WithFields.
func WithFields(fields log.Fields) *log.Entry {
	return Log.WithFields(fields)
}
