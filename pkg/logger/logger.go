// Package logger builds the zerolog logger the application components share.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const permission = 0664

// Build configures where log output goes before the logger is made.
type Build struct {
	writer io.Writer
	path   string
}

func New() *Build {
	return &Build{}
}

// ToPath appends JSON log lines to the given file.
func (b *Build) ToPath(path string) *Build {
	b.path = path
	return b
}

// ToWriter sends log lines to the given writer. Mostly used by tests.
func (b *Build) ToWriter(w io.Writer) *Build {
	b.writer = w
	return b
}

// Make returns the logger and, when logging to a file, the file handle the
// caller owns.
func (b *Build) Make() (zerolog.Logger, *os.File, error) {
	writer := b.writer
	var file *os.File
	if b.path != "" {
		var err error
		file, err = os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		writer = zerolog.SyncWriter(file)
	}
	if writer == nil {
		writer = os.Stdout
	}
	return zerolog.New(writer).With().Timestamp().Logger(), file, nil
}
