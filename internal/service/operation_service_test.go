// internal/service/operation_service_test.go
package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"calibrator-service/internal/fluke5440b"
	"calibrator-service/internal/transport"
)

// fakeBus answers the driver's handshake and state queries like an instrument
// sitting idle, or endlessly busy when busy is set.
type fakeBus struct {
	mu      sync.Mutex
	open    bool
	busy    bool
	pending []string
}

func (b *fakeBus) Open(ctx context.Context) error { b.mu.Lock(); b.open = true; b.mu.Unlock(); return nil }
func (b *fakeBus) Close() error                   { b.mu.Lock(); b.open = false; b.mu.Unlock(); return nil }
func (b *fakeBus) IsOpen() bool                   { b.mu.Lock(); defer b.mu.Unlock(); return b.open }

func (b *fakeBus) Write(ctx context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cmd := string(data)
	switch {
	case strings.HasPrefix(cmd, "GDNG"):
		if b.busy {
			b.pending = append(b.pending, "112")
		} else {
			b.pending = append(b.pending, "0")
		}
	case strings.HasPrefix(cmd, "GERR"):
		b.pending = append(b.pending, "0")
	}
	return nil
}

func (b *fakeBus) Read(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil, transport.ErrTimeout
	}
	reply := b.pending[0]
	b.pending = b.pending[1:]
	return []byte(reply + "\n"), nil
}

func (b *fakeBus) SerialPoll(ctx context.Context) (byte, error) { return 0, nil }
func (b *fakeBus) Clear(ctx context.Context) error              { return nil }
func (b *fakeBus) Local(ctx context.Context) error              { return nil }

func (b *fakeBus) setBusy(busy bool) {
	b.mu.Lock()
	b.busy = busy
	b.mu.Unlock()
}

func newTestService(t *testing.T) (*OperationService, *EventBus, *fakeBus) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bus := &fakeBus{}
	device := fluke5440b.New(bus, fluke5440b.Config{
		VerifyDelay:            time.Millisecond,
		PollInterval:           time.Millisecond,
		StateChangeDelay:       time.Millisecond,
		SelftestDigitalTimeout: 5 * time.Second,
	}, logger)
	require.NoError(t, device.Connect(context.Background()))

	events := NewEventBus(logger)
	return NewOperationService(device, events, logger), events, bus
}

func TestOperationLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)

	op, err := svc.Start(OperationSelftestDigital)
	require.NoError(t, err)
	assert.Equal(t, OperationSelftestDigital, op.Type)
	assert.Equal(t, OperationStatusRunning, op.Status)
	assert.NotEqual(t, uuid.Nil, op.ID)

	require.Eventually(t, func() bool {
		got, err := svc.Get(op.ID)
		return err == nil && got.Status == OperationStatusSuccess
	}, 5*time.Second, 10*time.Millisecond)

	got, err := svc.Get(op.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.ErrorMessage)

	ops := svc.List()
	require.Len(t, ops, 1)
	assert.Equal(t, op.ID, ops[0].ID)
}

func TestStartRejectsUnknownType(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Start(OperationType("DEGAUSS"))
	assert.Error(t, err)
}

func TestStartRejectsConcurrentOperation(t *testing.T) {
	svc, _, bus := newTestService(t)
	bus.setBusy(true)

	op, err := svc.Start(OperationSelftestDigital)
	require.NoError(t, err)

	_, err = svc.Start(OperationACal)
	assert.Error(t, err, "only one operation may run at a time")

	require.NoError(t, svc.Cancel(op.ID))
	require.Eventually(t, func() bool {
		got, err := svc.Get(op.ID)
		return err == nil && got.Status == OperationStatusCancelled
	}, 5*time.Second, 10*time.Millisecond)

	// With the slot free again, a new operation may start.
	bus.setBusy(false)
	_, err = svc.Start(OperationSelftestDigital)
	assert.NoError(t, err)
}

func TestCancelUnknownOperation(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.Error(t, svc.Cancel(uuid.New()))
}

func TestGetUnknownOperation(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Get(uuid.New())
	assert.Error(t, err)
}

func TestOperationEventsReachSubscribers(t *testing.T) {
	svc, events, _ := newTestService(t)

	ch, cancel := events.Subscribe()
	defer cancel()

	op, err := svc.Start(OperationSelftestDigital)
	require.NoError(t, err)

	select {
	case event := <-ch:
		assert.Equal(t, op.ID, event.OperationID)
	case <-time.After(5 * time.Second):
		t.Fatal("no state event received")
	}
}

func TestEventBusDropsSlowSubscribers(t *testing.T) {
	events := NewEventBus(zaptest.NewLogger(t))
	ch, cancel := events.Subscribe()
	defer cancel()

	// Fill the buffer and keep publishing; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			events.Publish(StateEvent{OperationID: uuid.New(), Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	assert.NotEmpty(t, ch)
}

func TestSubscribeCancelCloses(t *testing.T) {
	events := NewEventBus(zaptest.NewLogger(t))
	ch, cancel := events.Subscribe()
	cancel()
	cancel() // calling twice is safe

	_, ok := <-ch
	assert.False(t, ok)
}
