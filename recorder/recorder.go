// Package recorder connects once to a TCP data socket and appends every
// received chunk, as a line of UTF-8 text, to an output file.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	rnlog "lidarrec.com/lidarrec/log"
	rnnet "lidarrec.com/lidarrec/net"
)

const (
	DefaultOutputPath   = "mesures.txt"
	DefaultBufSize      = 100000
	DefaultPollInterval = 250 * time.Millisecond
)

var (
	ErrConnectionRefused = rnnet.ErrConnectionRefused
	ErrInvalidUTF8       = encoding.ErrInvalidUTF8
	ErrAlreadyConnected  = errors.New("recorder: connection already attempted")
	ErrNotConnected      = errors.New("recorder: not connected")
)

// Outcome says why Record returned.
type Outcome int

const (
	OutcomeError Outcome = iota
	OutcomeInterrupted
	OutcomeEOF
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeEOF:
		return "eof"
	}
	return "error"
}

type Config struct {
	Host       string
	Port       int
	OutputPath string

	// Receive buffer capacity; one Read fills at most this much.
	BufSize int
	// Each Read waits at most this long before cancellation is checked.
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Host:         rnnet.DefaultHost,
		Port:         rnnet.DefaultPort,
		OutputPath:   DefaultOutputPath,
		BufSize:      DefaultBufSize,
		PollInterval: DefaultPollInterval,
	}
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Stats counts what has been written so far.
type Stats struct {
	Chunks int64
	Bytes  int64
}

// Recorder owns at most one connection for its whole life. It is not
// safe for concurrent use.
type Recorder struct {
	cfg     Config
	console io.Writer
	log     logrus.FieldLogger

	dialed bool
	conn   net.Conn
	stats  Stats
}

// New returns a Recorder that prints its console messages to console.
// Zero BufSize and PollInterval take the defaults.
func New(cfg Config, console io.Writer, logger logrus.FieldLogger) *Recorder {
	if cfg.BufSize <= 0 {
		cfg.BufSize = DefaultBufSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if console == nil {
		console = io.Discard
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Recorder{
		cfg:     cfg,
		console: console,
		log:     logger.WithField("addr", cfg.Addr()),
	}
}

func (r *Recorder) Stats() Stats { return r.stats }

// Connect makes the one connection attempt this Recorder will ever
// make. Refusal is reported as ErrConnectionRefused.
func (r *Recorder) Connect(ctx context.Context) error {
	if r.dialed {
		return ErrAlreadyConnected
	}
	r.dialed = true

	r.log.Debug("connecting")
	conn, err := rnnet.DialTCP(ctx, r.cfg.Addr())
	if err != nil {
		if errors.Is(err, ErrConnectionRefused) {
			return err
		}
		return fmt.Errorf("recorder: connect %s: %w", r.cfg.Addr(), err)
	}
	r.conn = conn
	fmt.Fprintf(r.console, "Connection on %d\n", r.cfg.Port)
	r.log.WithField("local", conn.LocalAddr().String()).Info("connected")
	return nil
}

// Record truncates the output file and writes one line per received
// chunk until ctx is cancelled or the peer closes the connection, in
// both cases returning a nil error after printing "Close". A chunk that
// is not valid UTF-8 stops recording with ErrInvalidUTF8 before any of
// it is written.
func (r *Recorder) Record(ctx context.Context) (Outcome, error) {
	if r.conn == nil {
		return OutcomeError, ErrNotConnected
	}
	sink, err := rnlog.Create(r.cfg.OutputPath)
	if err != nil {
		return OutcomeError, err
	}
	r.log.WithField("output", sink.Path()).Debug("recording")

	outcome, err := r.loop(ctx, sink)
	if cerr := sink.Close(); cerr != nil && err == nil {
		outcome, err = OutcomeError, cerr
	}
	if err != nil {
		return OutcomeError, err
	}
	r.log.WithFields(logrus.Fields{
		"outcome": outcome.String(),
		"chunks":  r.stats.Chunks,
		"bytes":   r.stats.Bytes,
	}).Info("recording stopped")
	fmt.Fprintln(r.console, "Close")
	return outcome, nil
}

func (r *Recorder) loop(ctx context.Context, sink *rnlog.Lines) (Outcome, error) {
	buf := make([]byte, r.cfg.BufSize)
	for {
		if ctx.Err() != nil {
			return OutcomeInterrupted, nil
		}
		if err := r.conn.SetReadDeadline(time.Now().Add(r.cfg.PollInterval)); err != nil {
			return OutcomeError, fmt.Errorf("recorder: set read deadline: %w", err)
		}
		n, err := r.conn.Read(buf)
		if n > 0 {
			text, derr := decode(buf[:n])
			if derr != nil {
				return OutcomeError, derr
			}
			if werr := sink.WriteLine(text); werr != nil {
				return OutcomeError, werr
			}
			r.stats.Chunks++
			r.stats.Bytes += int64(n)
			r.log.WithFields(logrus.Fields{"chunk": r.stats.Chunks, "bytes": n}).Debug("chunk")
		}
		if err == nil {
			continue
		}
		switch {
		case rnnet.IsTimeout(err):
			continue
		case errors.Is(err, io.EOF):
			r.log.Info("peer closed connection")
			return OutcomeEOF, nil
		case ctx.Err() != nil:
			return OutcomeInterrupted, nil
		}
		return OutcomeError, fmt.Errorf("recorder: read %s: %w", r.cfg.Addr(), err)
	}
}

// decode checks that chunk is complete, valid UTF-8 and returns it as text.
func decode(chunk []byte) (string, error) {
	out, n, err := transform.Bytes(encoding.UTF8Validator, chunk)
	if err != nil {
		return "", fmt.Errorf("recorder: chunk of %d bytes, offset %d: %w", len(chunk), n, err)
	}
	return string(out), nil
}

// Close releases the connection. It is safe to call more than once.
func (r *Recorder) Close() error {
	if r.conn == nil {
		return nil
	}
	conn := r.conn
	r.conn = nil
	return conn.Close()
}

// Run connects, records and closes the connection.
func (r *Recorder) Run(ctx context.Context) (Outcome, error) {
	if err := r.Connect(ctx); err != nil {
		return OutcomeError, err
	}
	outcome, err := r.Record(ctx)
	if cerr := r.Close(); cerr != nil && err == nil {
		return OutcomeError, fmt.Errorf("recorder: close: %w", cerr)
	}
	return outcome, err
}
