// Package logging builds the writer behind every component logger: a
// rotating file in the data directory, teed to stderr in verbose mode.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure New.
type Options struct {
	File       string // empty disables the file
	MaxSizeMB  int
	MaxBackups int
	Verbose    bool
	Stderr     io.Writer // defaults to os.Stderr
}

// Sink hands out prefixed loggers sharing one output.
type Sink struct {
	out    io.Writer
	closer io.Closer
}

// New opens the sink. With no file and no verbose flag, logs are discarded.
func New(opts Options) *Sink {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var writers []io.Writer
	s := &Sink{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, lj)
		s.closer = lj
	}
	if opts.Verbose {
		writers = append(writers, stderr)
	}

	switch len(writers) {
	case 0:
		s.out = io.Discard
	case 1:
		s.out = writers[0]
	default:
		s.out = io.MultiWriter(writers...)
	}
	return s
}

// Logger returns a logger for one component, e.g. "sync".
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the shared output.
func (s *Sink) Writer() io.Writer {
	return s.out
}

// Close closes the log file, if any.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
