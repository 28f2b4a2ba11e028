// internal/transport/prologix.go
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dialer opens the raw byte stream the Prologix controller sits behind,
// either a serial VCP or a TCP socket.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// Prologix drives a Prologix GPIB controller (USB or Ethernet) in
// controller-in-charge mode. The controller itself is configured with the
// "++" command dialect; everything else is passed through to the addressed
// instrument.
type Prologix struct {
	dial        Dialer
	addr        int
	readTimeout time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	stream  io.ReadWriteCloser
	reader  *bufio.Reader
	reads   chan readResult
	pending bool
	isOpen  bool
}

type readResult struct {
	line []byte
	err  error
}

// NewPrologix creates a controller for the instrument at the given primary
// GPIB address. The stream is not opened until Open is called.
func NewPrologix(dial Dialer, addr int, readTimeout time.Duration, logger *zap.Logger) (*Prologix, error) {
	if addr < 0 || addr > 30 {
		return nil, fmt.Errorf("invalid GPIB primary address %d (must be 0-30)", addr)
	}
	if readTimeout <= 0 {
		readTimeout = 3 * time.Second
	}
	return &Prologix{
		dial:        dial,
		addr:        addr,
		readTimeout: readTimeout,
		logger: logger.With(
			zap.String("transport", "prologix"),
			zap.Int("gpib_address", addr),
		),
	}, nil
}

// Open dials the stream and configures the controller: controller-in-charge
// mode, no read-after-write, EOI on the last byte, and the configured read
// timeout.
func (p *Prologix) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isOpen {
		return nil
	}

	stream, err := p.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	p.stream = stream
	p.reader = bufio.NewReader(stream)
	p.reads = make(chan readResult, 1)
	p.pending = false

	setup := []string{
		"++savecfg 0",
		fmt.Sprintf("++addr %d", p.addr),
		"++mode 1",
		"++auto 0",
		"++eoi 1",
		"++eot_enable 0",
		fmt.Sprintf("++read_tmo_ms %d", p.readTimeout.Milliseconds()),
	}
	for _, cmd := range setup {
		if err := p.sendLine(cmd); err != nil {
			stream.Close()
			p.stream = nil
			p.reader = nil
			return fmt.Errorf("controller setup command %q failed: %w", cmd, err)
		}
	}

	p.isOpen = true
	p.logger.Info("GPIB controller configured")
	return nil
}

// Close closes the underlying stream. Calling Close on an already closed
// transport is a no-op.
func (p *Prologix) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isOpen || p.stream == nil {
		return nil
	}

	err := p.stream.Close()
	p.stream = nil
	p.reader = nil
	p.isOpen = false
	if err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	p.logger.Info("GPIB connection closed")
	return nil
}

// IsOpen reports whether the connection is usable.
func (p *Prologix) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isOpen
}

// Write sends one command to the addressed instrument.
func (p *Prologix) Write(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isOpen {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.logger.Debug("bus write", zap.ByteString("data", data))
	return p.sendRaw(append(escape(data), '\n'))
}

// Read addresses the instrument to talk and receives one terminator-delimited
// message.
func (p *Prologix) Read(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isOpen {
		return nil, ErrClosed
	}
	if err := p.sendLine("++read eoi"); err != nil {
		return nil, err
	}
	line, err := p.readLine(ctx)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("bus read", zap.ByteString("data", line))
	return line, nil
}

// SerialPoll reads the serial-poll status byte of the addressed instrument.
func (p *Prologix) SerialPoll(ctx context.Context) (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isOpen {
		return 0, ErrClosed
	}
	if err := p.sendLine("++spoll"); err != nil {
		return 0, err
	}
	line, err := p.readLine(ctx)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(line)))
	if err != nil {
		return 0, fmt.Errorf("unexpected serial poll reply %q: %w", line, err)
	}
	return byte(value), nil
}

// Clear sends a Selected Device Clear to the instrument.
func (p *Prologix) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isOpen {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.sendLine("++clr")
}

// Local returns the instrument front panel to local control.
func (p *Prologix) Local(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isOpen {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.sendLine("++loc")
}

func (p *Prologix) sendLine(cmd string) error {
	return p.sendRaw([]byte(cmd + "\n"))
}

func (p *Prologix) sendRaw(data []byte) error {
	n, err := p.stream.Write(data)
	if err != nil {
		return fmt.Errorf("stream write failed: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}
	return nil
}

// readLine reads until the controller's line terminator. The blocking read
// runs in a goroutine so a cancelled context does not leave the caller stuck
// on a silent bus. At most one such goroutine touches the reader: when a
// caller abandons its read, the next transaction first collects the stale
// result and drops it, so every reply stays paired with the request that
// produced it.
func (p *Prologix) readLine(ctx context.Context) ([]byte, error) {
	if p.pending {
		select {
		case res := <-p.reads:
			p.pending = false
			if res.err == nil {
				p.logger.Warn("dropping reply of an abandoned read",
					zap.ByteString("data", res.line))
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	reader, reads := p.reader, p.reads
	go func() {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if len(line) == 0 {
				reads <- readResult{err: fmt.Errorf("stream read failed: %w", translateTimeout(err))}
				return
			}
			// Partial line with EOF: the adapter delivered data
			// without the terminator, keep it.
		}
		reads <- readResult{line: line}
	}()
	p.pending = true

	select {
	case res := <-p.reads:
		p.pending = false
		return res.line, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// escape prefixes the Prologix command characters so instrument data is never
// interpreted by the controller itself.
func escape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		switch b {
		case '\r', '\n', 0x1B, '+':
			out = append(out, 0x1B)
		}
		out = append(out, b)
	}
	return out
}
