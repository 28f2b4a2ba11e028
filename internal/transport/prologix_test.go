// internal/transport/prologix_test.go
package transport

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeStream is an in-memory stand-in for the serial or TCP byte stream the
// controller sits behind.
type fakeStream struct {
	in     *bytes.Buffer // data the controller "sends" to us
	out    *bytes.Buffer // data we send to the controller
	closed bool
}

func newFakeStream(input string) *fakeStream {
	return &fakeStream{
		in:  bytes.NewBufferString(input),
		out: &bytes.Buffer{},
	}
}

func (f *fakeStream) Read(p []byte) (int, error) {
	if f.in.Len() == 0 {
		return 0, ErrTimeout
	}
	return f.in.Read(p)
}

func (f *fakeStream) Write(p []byte) (int, error) {
	return f.out.Write(p)
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func dialerFor(stream io.ReadWriteCloser) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		return stream, nil
	}
}

func openPrologix(t *testing.T, stream *fakeStream) *Prologix {
	t.Helper()
	p, err := NewPrologix(dialerFor(stream), 7, 3*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, p.Open(context.Background()))
	stream.out.Reset() // drop the setup commands, tests inspect what follows
	return p
}

func TestNewPrologixValidatesAddress(t *testing.T) {
	logger := zaptest.NewLogger(t)
	_, err := NewPrologix(dialerFor(newFakeStream("")), 31, time.Second, logger)
	assert.Error(t, err)
	_, err = NewPrologix(dialerFor(newFakeStream("")), -1, time.Second, logger)
	assert.Error(t, err)
	_, err = NewPrologix(dialerFor(newFakeStream("")), 0, time.Second, logger)
	assert.NoError(t, err)
}

func TestOpenConfiguresController(t *testing.T) {
	stream := newFakeStream("")
	p, err := NewPrologix(dialerFor(stream), 7, 3*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, p.Open(context.Background()))

	want := []string{
		"++savecfg 0",
		"++addr 7",
		"++mode 1",
		"++auto 0",
		"++eoi 1",
		"++eot_enable 0",
		"++read_tmo_ms 3000",
	}
	got := strings.Split(strings.TrimRight(stream.out.String(), "\n"), "\n")
	assert.Equal(t, want, got)
	assert.True(t, p.IsOpen())

	// Open again is a no-op.
	before := stream.out.Len()
	require.NoError(t, p.Open(context.Background()))
	assert.Equal(t, before, stream.out.Len())
}

func TestWriteEscapesControllerCharacters(t *testing.T) {
	stream := newFakeStream("")
	p := openPrologix(t, stream)

	require.NoError(t, p.Write(context.Background(), []byte("GOUT\r+")))
	assert.Equal(t, "GOUT\x1b\r\x1b+\n", stream.out.String())
}

func TestReadAddressesInstrument(t *testing.T) {
	stream := newFakeStream("+1.00000E+01\n")
	p := openPrologix(t, stream)

	data, err := p.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "+1.00000E+01\n", string(data))
	assert.Equal(t, "++read eoi\n", stream.out.String())
}

func TestSerialPoll(t *testing.T) {
	stream := newFakeStream("96\r\n")
	p := openPrologix(t, stream)

	status, err := p.SerialPoll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(96), status)
	assert.Equal(t, "++spoll\n", stream.out.String())
}

func TestSerialPollRejectsGarbage(t *testing.T) {
	stream := newFakeStream("ok\n")
	p := openPrologix(t, stream)

	_, err := p.SerialPoll(context.Background())
	assert.Error(t, err)
}

func TestReadTimesOutOnSilentBus(t *testing.T) {
	stream := newFakeStream("")
	p := openPrologix(t, stream)

	_, err := p.Read(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClearAndLocal(t *testing.T) {
	stream := newFakeStream("")
	p := openPrologix(t, stream)

	require.NoError(t, p.Clear(context.Background()))
	require.NoError(t, p.Local(context.Background()))
	assert.Equal(t, "++clr\n++loc\n", stream.out.String())
}

func TestOperationsOnClosedTransport(t *testing.T) {
	stream := newFakeStream("")
	p, err := NewPrologix(dialerFor(stream), 7, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.ErrorIs(t, p.Write(context.Background(), []byte("GOUT")), ErrClosed)
	_, err = p.Read(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = p.SerialPoll(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Clear(context.Background()), ErrClosed)
	assert.NoError(t, p.Close(), "closing a closed transport is a no-op")
}

func TestCloseReleasesStream(t *testing.T) {
	stream := newFakeStream("")
	p := openPrologix(t, stream)

	require.NoError(t, p.Close())
	assert.True(t, stream.closed)
	assert.False(t, p.IsOpen())
}

// blockingStream blocks readers until data is delivered, like a real bus
// with a long controller read timeout.
type blockingStream struct {
	mu   sync.Mutex
	out  bytes.Buffer
	data chan []byte
	rest []byte
}

func newBlockingStream() *blockingStream {
	return &blockingStream{data: make(chan []byte, 4)}
}

func (s *blockingStream) Read(p []byte) (int, error) {
	if len(s.rest) == 0 {
		chunk, ok := <-s.data
		if !ok {
			return 0, io.EOF
		}
		s.rest = chunk
	}
	n := copy(p, s.rest)
	s.rest = s.rest[n:]
	return n, nil
}

func (s *blockingStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Write(p)
}

func (s *blockingStream) Close() error {
	close(s.data)
	return nil
}

func (s *blockingStream) deliver(data string) {
	s.data <- []byte(data)
}

func TestReadAfterAbandonedReadSkipsStaleReply(t *testing.T) {
	stream := newBlockingStream()
	p, err := NewPrologix(dialerFor(stream), 7, 3*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, p.Open(context.Background()))

	// The first read is abandoned mid-flight, as when an HTTP client drops
	// its connection while a query is waiting on the bus.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Read(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The instrument answers late: the abandoned read's reply followed by
	// the reply to the next request. The stale line must be dropped whole,
	// not handed to (or torn apart by) the follow-up read.
	stream.deliver("STALE\nFRESH\n")

	line, err := p.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "FRESH\n", string(line))

	require.NoError(t, p.Close())
}
