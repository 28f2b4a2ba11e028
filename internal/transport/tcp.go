// internal/transport/tcp.go
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// TCPDialer opens the socket of a Prologix GPIB-Ethernet controller, which
// listens on port 1234 by default.
func TCPDialer(host string, port int, readTimeout time.Duration) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s:%d: %w", host, port, err)
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			// Controller commands are short; do not batch them.
			tcp.SetNoDelay(true)
		}
		return &tcpStream{conn: conn, readTimeout: readTimeout}, nil
	}
}

// tcpStream applies the read timeout per read call, so an unanswered
// instrument query fails with a deadline error instead of blocking forever.
type tcpStream struct {
	conn        net.Conn
	readTimeout time.Duration
}

func (s *tcpStream) Read(p []byte) (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return 0, err
	}
	n, err := s.conn.Read(p)
	if err != nil {
		return n, translateTimeout(err)
	}
	return n, nil
}

func (s *tcpStream) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

func (s *tcpStream) Close() error {
	return s.conn.Close()
}
