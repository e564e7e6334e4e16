// Package net has the TCP plumbing shared by the recorder and the
// measurement source.
package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// The lidar data socket listens here.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 17685
)

var ErrConnectionRefused = errors.New("connection refused")

// IsRefused reports whether err came from a peer actively refusing the
// connection, i.e. nothing is listening.
func IsRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// IsDisconnect reports whether a write error means the peer went away.
func IsDisconnect(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// DialTCP makes a single IPv4 stream connection to addr. A refused
// connection is reported as ErrConnectionRefused wrapping the socket
// error.
func DialTCP(ctx context.Context, addr string) (*net.TCPConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp4", addr)
	if err != nil {
		if IsRefused(err) {
			return nil, fmt.Errorf("%w: %w", ErrConnectionRefused, err)
		}
		return nil, err
	}
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%s: unexpected connection type %T", addr, conn)
	}
	return tc, nil
}
