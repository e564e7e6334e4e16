package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MaxClients is the number of simultaneous readers a Broadcaster serves.
const MaxClients = 4

const writeTimeout = time.Second

// Broadcaster is a TCP server that sends the same data to every
// connected client. Clients beyond MaxClients are refused; clients
// that disconnect are dropped on the next Send.
type Broadcaster struct {
	ln  net.Listener
	log logrus.FieldLogger

	mu      sync.Mutex
	clients [MaxClients]net.Conn
	closed  bool
}

// Listen opens a Broadcaster on addr, e.g. "127.0.0.1:17685".
func Listen(addr string, logger logrus.FieldLogger) (*Broadcaster, error) {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("broadcaster: listen %s: %w", addr, err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Broadcaster{ln: ln, log: logger.WithField("addr", ln.Addr().String())}, nil
}

func (b *Broadcaster) Addr() net.Addr { return b.ln.Addr() }

// Serve accepts clients until ctx is done or the Broadcaster is closed.
func (b *Broadcaster) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { b.Close() })
	defer stop()
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("broadcaster: accept: %w", err)
		}
		b.add(conn)
	}
}

func (b *Broadcaster) add(conn net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		conn.Close()
		return
	}
	for i := range b.clients {
		if b.clients[i] == nil {
			b.clients[i] = conn
			b.log.WithField("client", i).Infof("client #%d connected from %v", i, conn.RemoteAddr())
			return
		}
	}
	conn.Close()
	b.log.Warnf("reached max number of clients (%d), refused %v", MaxClients, conn.RemoteAddr())
}

// Clients reports the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.clients {
		if c != nil {
			n++
		}
	}
	return n
}

// Send writes data to every client. Disconnected clients are dropped
// silently; any other write failure drops the client and is reported.
func (b *Broadcaster) Send(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for i, c := range b.clients {
		if c == nil {
			continue
		}
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := c.Write(data); err != nil {
			if IsDisconnect(err) {
				b.log.WithField("client", i).Infof("client #%d disconnected", i)
			} else {
				b.log.WithField("client", i).Errorf("failed to send data to client #%d: %v", i, err)
				errs = append(errs, fmt.Errorf("client #%d: %w", i, err))
			}
			c.Close()
			b.clients[i] = nil
		}
	}
	return errors.Join(errs...)
}

// Close stops accepting and disconnects every client.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for i, c := range b.clients {
		if c != nil {
			c.Close()
			b.clients[i] = nil
		}
	}
	return b.ln.Close()
}
