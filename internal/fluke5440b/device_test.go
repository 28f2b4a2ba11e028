// internal/fluke5440b/device_test.go
package fluke5440b

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"calibrator-service/internal/transport"
)

// simTransport simulates the instrument side of the bus. Replies are scripted
// per query mnemonic; the last entry of a script repeats so polling loops see
// a stable state. Serial poll bytes come from a FIFO, defaulting to zero, or
// from an override function.
type simTransport struct {
	mu      sync.Mutex
	open    bool
	writes  []string
	replies []string
	queues  map[string][]string
	spolls  []byte
	spollFn func(writes []string) (byte, error)
	clears  int
	locals  int
}

func newSim() *simTransport {
	return &simTransport{
		queues: map[string][]string{
			"GDNG": {"0"},
			"GERR": {"0"},
		},
	}
}

func (s *simTransport) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

func (s *simTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *simTransport) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *simTransport) Write(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := string(data)
	s.writes = append(s.writes, cmd)

	key := cmd
	if len(key) > 4 {
		key = key[:4]
	}
	if queue, ok := s.queues[key]; ok && len(queue) > 0 {
		s.replies = append(s.replies, queue[0])
		if len(queue) > 1 {
			s.queues[key] = queue[1:]
		}
	}
	return nil
}

func (s *simTransport) Read(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.replies) == 0 {
		return nil, transport.ErrTimeout
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return []byte(reply + "\n"), nil
}

func (s *simTransport) SerialPoll(ctx context.Context) (byte, error) {
	s.mu.Lock()
	fn := s.spollFn
	writes := append([]string(nil), s.writes...)
	if fn == nil {
		var b byte
		if len(s.spolls) > 0 {
			b = s.spolls[0]
			s.spolls = s.spolls[1:]
		}
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()
	return fn(writes)
}

func (s *simTransport) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	return nil
}

func (s *simTransport) Local(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locals++
	return nil
}

func (s *simTransport) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

func (s *simTransport) wroteCommand(cmd string) bool {
	for _, w := range s.commands() {
		if w == cmd {
			return true
		}
	}
	return false
}

func (s *simTransport) setScript(key string, replies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[key] = replies
}

func (s *simTransport) setSpolls(b ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spolls = b
}

func fastConfig() Config {
	return Config{
		VerifyDelay:      time.Millisecond,
		PollInterval:     time.Millisecond,
		StateChangeDelay: time.Millisecond,
	}
}

func newTestDevice(t *testing.T, sim *simTransport) *Device {
	t.Helper()
	d := New(sim, fastConfig(), zaptest.NewLogger(t))
	require.NoError(t, d.Connect(context.Background()))
	return d
}

func TestConnectNegotiatesLineSettings(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)

	assert.True(t, d.IsConnected())
	assert.True(t, sim.wroteCommand("GDNG"))
	assert.True(t, sim.wroteCommand("STRM 2"))
	assert.True(t, sim.wroteCommand("SSEP 0"))
	assert.True(t, sim.wroteCommand("SSRQ 0"))

	// A second Connect is a no-op, no renegotiation.
	before := len(sim.commands())
	require.NoError(t, d.Connect(context.Background()))
	assert.Len(t, sim.commands(), before)
}

func TestConnectDrainsBootMessages(t *testing.T) {
	sim := newSim()
	sim.replies = []string{"SELF TEST PASSED"}
	sim.setSpolls(byte(SerialPollMsgReady | SerialPollSRQ), 0)

	d := New(sim, fastConfig(), zaptest.NewLogger(t))
	require.NoError(t, d.Connect(context.Background()))

	sim.mu.Lock()
	defer sim.mu.Unlock()
	assert.Empty(t, sim.replies, "boot message must be consumed before the handshake")
}

func TestConnectClearsStaleError(t *testing.T) {
	sim := newSim()
	sim.setSpolls(byte(SerialPollErrorCondition), 0)
	sim.setScript("GERR", "152", "0")

	d := New(sim, fastConfig(), zaptest.NewLogger(t))
	require.NoError(t, d.Connect(context.Background()))
	assert.True(t, sim.wroteCommand("GERR"))
}

func TestConnectWaitsForBusyInstrument(t *testing.T) {
	sim := newSim()
	sim.setScript("GDNG", "240", "240", "0")

	d := New(sim, fastConfig(), zaptest.NewLogger(t))
	require.NoError(t, d.Connect(context.Background()))
	assert.True(t, d.IsConnected())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)

	require.NoError(t, d.Disconnect(context.Background()))
	assert.False(t, d.IsConnected())
	assert.Equal(t, 1, sim.locals, "disconnect must return the front panel to local")

	// Again, and on a never-connected device: both harmless.
	require.NoError(t, d.Disconnect(context.Background()))
	fresh := New(newSim(), fastConfig(), zaptest.NewLogger(t))
	require.NoError(t, fresh.Disconnect(context.Background()))

	err := d.Write(context.Background(), "GOUT", false)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWriteVerifyReportsDeviceError(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)

	sim.setSpolls(byte(SerialPollErrorCondition))
	sim.setScript("GERR", "156")

	err := d.Write(context.Background(), "SOUT 10.000000", true)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, ErrorInvalidParameter, devErr.Code)
	assert.Equal(t, "SOUT 10.000000", devErr.Command)
}

func TestWriteVerifyReadsPendingMessageFirst(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)

	sim.replies = append(sim.replies, "?>")
	sim.setSpolls(byte(SerialPollErrorCondition | SerialPollMsgReady))
	sim.setScript("GERR", "155")

	err := d.Write(context.Background(), "BOGUS", true)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, ErrorUnknownCommand, devErr.Code)
	assert.Equal(t, "?>", devErr.Message, "framing is stripped before the message is kept")
}

func TestWriteWithoutVerifySkipsStatusCheck(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)

	// An error condition that verify would have caught.
	sim.setSpolls(byte(SerialPollErrorCondition))

	require.NoError(t, d.Write(context.Background(), "SOUT 10.000000", false))
}

func TestWriteRejectsOversizedCommand(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)
	before := len(sim.commands())

	err := d.Write(context.Background(), strings.Repeat("X", maxCommandLen+1), true)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Len(t, sim.commands(), before, "oversized command must not reach the bus")
}

func TestGetID(t *testing.T) {
	sim := newSim()
	sim.setScript("GVRS", "6.0")
	d := newTestDevice(t, sim)

	manufacturer, model, serial, version, err := d.GetID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Fluke", manufacturer)
	assert.Equal(t, "5440B", model)
	assert.Equal(t, "0", serial)
	assert.Equal(t, "6.0", version)
}

func TestSetOutputRejectsBeyondHardLimit(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)
	before := len(sim.commands())

	for _, v := range []string{"1500.01", "-1500.01", "9999"} {
		err := d.SetOutput(context.Background(), decimal.RequireFromString(v), false)
		assert.ErrorIs(t, err, ErrInvalidParameter, v)
	}
	assert.Len(t, sim.commands(), before, "rejected outputs must not reach the bus")

	require.NoError(t, d.SetOutput(context.Background(), decimal.NewFromInt(1500), false))
}

func TestSetOutputOutsideProgrammedLimits(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)

	sim.setSpolls(byte(SerialPollErrorCondition))
	sim.setScript("GERR", "169")

	err := d.SetOutput(context.Background(), decimal.NewFromInt(100), true)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestGetOutput(t *testing.T) {
	sim := newSim()
	sim.setScript("GOUT", "+1.00000E+01")
	d := newTestDevice(t, sim)

	value, err := d.GetOutput(context.Background())
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.NewFromInt(10)))
}

func TestGetOutputRejectsMultiTokenReply(t *testing.T) {
	sim := newSim()
	sim.setScript("GOUT", "1,2")
	d := newTestDevice(t, sim)

	_, err := d.GetOutput(context.Background())
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestSetVoltageLimitValidation(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)
	before := len(sim.commands())

	tests := []struct {
		name   string
		limits []decimal.Decimal
	}{
		{"no values", nil},
		{"three values", []decimal.Decimal{
			decimal.NewFromInt(1), decimal.NewFromInt(-1), decimal.NewFromInt(2)}},
		{"beyond bound", []decimal.Decimal{decimal.NewFromInt(1501)}},
		{"same polarity", []decimal.Decimal{
			decimal.NewFromInt(100), decimal.NewFromInt(200)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.SetVoltageLimit(context.Background(), tt.limits...)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
	assert.Len(t, sim.commands(), before)

	// Zero counts for either polarity.
	require.NoError(t, d.SetVoltageLimit(context.Background(),
		decimal.NewFromInt(0), decimal.NewFromInt(-1100)))
}

func TestSetVoltageLimitWireOrder(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)
	before := len(sim.commands())

	require.NoError(t, d.SetVoltageLimit(context.Background(),
		decimal.NewFromInt(1100), decimal.NewFromInt(-1100)))

	cmds := sim.commands()[before:]
	require.Len(t, cmds, 2)
	assert.Equal(t, "SVLM -1100.000", cmds[0], "second value goes on the wire first")
	assert.Equal(t, "SVLM 1100.0000", cmds[1])
}

func TestGetVoltageLimitSwapsWireOrder(t *testing.T) {
	sim := newSim()
	sim.setScript("GVLM", "-1100.0,1100.0")
	d := newTestDevice(t, sim)

	pos, neg, err := d.GetVoltageLimit(context.Background())
	require.NoError(t, err)
	assert.True(t, pos.Equal(decimal.NewFromInt(1100)))
	assert.True(t, neg.Equal(decimal.NewFromInt(-1100)))
}

func TestGetCurrentLimit(t *testing.T) {
	sim := newSim()
	sim.setScript("GCLM", "0.065")
	d := newTestDevice(t, sim)

	limits, err := d.GetCurrentLimit(context.Background())
	require.NoError(t, err)
	require.Len(t, limits, 1)
	assert.True(t, limits[0].Equal(decimal.RequireFromString("0.065")))

	sim.setScript("GCLM", "-0.065,0.065")
	limits, err = d.GetCurrentLimit(context.Background())
	require.NoError(t, err)
	require.Len(t, limits, 2)
	assert.True(t, limits[0].Equal(decimal.RequireFromString("0.065")))
	assert.True(t, limits[1].Equal(decimal.RequireFromString("-0.065")))
}

func TestLimitRejectedByInstrument(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)

	sim.setSpolls(byte(SerialPollErrorCondition))
	sim.setScript("GERR", "170")

	err := d.SetCurrentLimit(context.Background(), decimal.RequireFromString("0.01"))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestGetStatus(t *testing.T) {
	sim := newSim()
	sim.setScript("GSTS", "49")
	d := newTestDevice(t, sim)

	status, err := d.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Has(StatusVoltageMode))
	assert.True(t, status.Has(StatusInternalSense))
	assert.True(t, status.Has(StatusOutputEnabled))
	assert.False(t, status.Has(StatusDividerEnabled))
}

func TestResetRenegotiatesLineSettings(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)
	before := len(sim.commands())

	require.NoError(t, d.Reset(context.Background()))
	assert.Equal(t, 1, sim.clears)

	cmds := sim.commands()[before:]
	joined := strings.Join(cmds, ";")
	assert.Contains(t, joined, "STRM 2")
	assert.Contains(t, joined, "SSEP 0")
	assert.Contains(t, joined, "SSRQ 0")
}

func TestSetModeValidation(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)

	err := d.SetMode(context.Background(), ModeType("WAT"))
	assert.ErrorIs(t, err, ErrInvalidParameter)

	require.NoError(t, d.SetMode(context.Background(), ModeVoltageBoost))
	assert.True(t, sim.wroteCommand("BSTV"))
}

func TestSetRS232BaudRate(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)

	err := d.SetRS232BaudRate(context.Background(), decimal.NewFromInt(115200))
	assert.ErrorIs(t, err, ErrInvalidParameter)

	require.NoError(t, d.SetRS232BaudRate(context.Background(),
		decimal.RequireFromString("134.5")))
	assert.True(t, sim.wroteCommand("SBDR 3"))

	cmds := sim.commands()
	assert.Equal(t, "SSRQ 0", cmds[len(cmds)-1], "SRQ mask must be restored after the NVRAM wait")
}

func TestGetRS232BaudRate(t *testing.T) {
	sim := newSim()
	sim.setScript("GBDR", "12")
	d := newTestDevice(t, sim)

	rate, err := d.GetRS232BaudRate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(9600)))

	sim.setScript("GBDR", "13")
	_, err = d.GetRS232BaudRate(context.Background())
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestTimeoutMapping(t *testing.T) {
	sim := newSim()
	d := newTestDevice(t, sim)

	// No scripted reply: the simulator answers reads with a bus timeout.
	sim.setScript("GOUT")
	_, err := d.GetOutput(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, transport.ErrTimeout,
		"transport sentinel must not leak through the driver")
}

func TestGetCalibrationConstants(t *testing.T) {
	sim := newSim()
	first := make([]string, 10)
	second := make([]string, 10)
	for i := 0; i < 10; i++ {
		first[i] = fmt.Sprintf("%d", i+1)
		second[i] = fmt.Sprintf("%d", i+11)
	}
	sim.setScript("GCAL", strings.Join(first, ","), strings.Join(second, ","))
	d := newTestDevice(t, sim)

	constants, err := d.GetCalibrationConstants(context.Background())
	require.NoError(t, err)

	assert.True(t, constants.Gain10V.Equal(decimal.NewFromInt(1)))
	assert.True(t, constants.Gain1000V.Equal(decimal.NewFromInt(4)))
	assert.True(t, constants.Gain2V.Equal(decimal.NewFromInt(5)))
	assert.True(t, constants.Gain02V.Equal(decimal.NewFromInt(6)))
	assert.True(t, constants.Offset10VPos.Equal(decimal.NewFromInt(7)))
	assert.True(t, constants.Offset1000VNeg.Equal(decimal.NewFromInt(14)))
	assert.True(t, constants.GainShift10V.Equal(decimal.NewFromInt(15)))
	assert.True(t, constants.ResolutionRatio.Equal(decimal.NewFromInt(19)))
	assert.True(t, constants.ADCGain.Equal(decimal.NewFromInt(20)))
}

func TestGetCalibrationConstantsRejectsShortReply(t *testing.T) {
	sim := newSim()
	sim.setScript("GCAL", "1,2,3", "4,5,6")
	d := newTestDevice(t, sim)

	_, err := d.GetCalibrationConstants(context.Background())
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}
