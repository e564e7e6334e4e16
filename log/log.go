// Package log writes received text to line-oriented output files.
package log

import (
	"fmt"
	"io"
	"os"
)

// Lines is a truncating, unbuffered text sink. Every WriteLine is a
// single write to the file, so a line is either fully written or not
// at all from the point of view of this process.
type Lines struct {
	path  string
	f     *os.File
	lines int64
	bytes int64
}

// Create truncates or creates path and returns a sink for it.
func Create(path string) (*Lines, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("log: create %s: %w", path, err)
	}
	return &Lines{path: path, f: f}, nil
}

// WriteLine writes s followed by a newline.
func (l *Lines) WriteLine(s string) error {
	if l.f == nil {
		return fmt.Errorf("log: %s: %w", l.path, os.ErrClosed)
	}
	n, err := io.WriteString(l.f, s+"\n")
	l.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("log: write %s: %w", l.path, err)
	}
	l.lines++
	return nil
}

func (l *Lines) Path() string { return l.path }

// Lines reports the number of complete lines written.
func (l *Lines) Lines() int64 { return l.lines }

// Bytes reports the number of bytes written, newlines included.
func (l *Lines) Bytes() int64 { return l.bytes }

// Close flushes the file to stable storage and closes it. Calling
// Close more than once is a no-op.
func (l *Lines) Close() error {
	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	serr := f.Sync()
	cerr := f.Close()
	if cerr != nil {
		return fmt.Errorf("log: close %s: %w", l.path, cerr)
	}
	if serr != nil {
		return fmt.Errorf("log: sync %s: %w", l.path, serr)
	}
	return nil
}
