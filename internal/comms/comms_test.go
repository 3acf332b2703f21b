package comms

import (
	"bufio"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-racing/racecontrol/internal/config"
	"github.com/tabletop-racing/racecontrol/internal/vehicle"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

var (
	_ Link                 = (*Log)(nil)
	_ Link                 = (*Serial)(nil)
	_ vehicle.Communicator = (*Serial)(nil)
)

// pipePort is a fake bridge: the test reads what the link writes from
// fromHost and answers on toHost.
type pipePort struct {
	*io.PipeReader // replies from the bridge
	*io.PipeWriter // commands to the bridge
}

func (p pipePort) Close() error {
	p.PipeReader.Close()
	return p.PipeWriter.Close()
}

type bridge struct {
	lines  *bufio.Scanner
	toHost *io.PipeWriter
}

func newSerialPair(t *testing.T) (*Serial, *bridge) {
	t.Helper()
	fromHostR, fromHostW := io.Pipe()
	toHostR, toHostW := io.Pipe()

	s := NewSerial(pipePort{PipeReader: toHostR, PipeWriter: fromHostW}, nil)
	t.Cleanup(func() {
		fromHostR.Close()
		toHostW.Close()
		s.Close()
	})
	return s, &bridge{lines: bufio.NewScanner(fromHostR), toHost: toHostW}
}

func (b *bridge) next(t *testing.T) string {
	t.Helper()
	require.True(t, b.lines.Scan())
	return b.lines.Text()
}

func TestSerial_Commands(t *testing.T) {
	s, b := newSerialPair(t)

	go func() {
		s.SetSpeed("Car1", -12)
		s.SetAngle("Car1", 21)
		s.SetAccessory("Car2", core.AccessoryLeftSignal, true)
		s.SetAccessory("Car2", core.AccessoryHorn, false)
	}()

	assert.Equal(t, "SPEED Car1 -12", b.next(t))
	assert.Equal(t, "STEER Car1 21", b.next(t))
	assert.Equal(t, "ACC Car2 left_signal 1", b.next(t))
	assert.Equal(t, "ACC Car2 horn 0", b.next(t))
}

func TestSerial_ConnectWaitsForEveryAck(t *testing.T) {
	s, b := newSerialPair(t)

	done := make(chan error, 1)
	go func() {
		done <- s.Connect(context.Background(), []string{"Car1", "Car2"})
	}()

	assert.Equal(t, "CONNECT Car1", b.next(t))
	assert.Equal(t, "CONNECT Car2", b.next(t))

	_, err := io.WriteString(b.toHost, "OK Car2\nnoise from the bridge\n")
	require.NoError(t, err)

	select {
	case <-done:
		t.Fatal("connect returned before every car answered")
	case <-time.After(20 * time.Millisecond):
	}

	_, err = io.WriteString(b.toHost, "OK Car1\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("connect did not return")
	}
}

func TestSerial_ConnectTimeout(t *testing.T) {
	s, b := newSerialPair(t)

	go func() {
		for b.lines.Scan() {
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Connect(ctx, []string{"Car1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSerial_WriteAfterClose(t *testing.T) {
	s, _ := newSerialPair(t)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.SetSpeed("Car1", 1), ErrWriteFailed)
}

func TestLog_Records(t *testing.T) {
	l := NewLog(nil)

	require.NoError(t, l.Connect(context.Background(), []string{"Car1"}))
	require.NoError(t, l.SetSpeed("Car1", 10))
	require.NoError(t, l.SetAngle("Car1", -5))
	require.NoError(t, l.SetAccessory("Car1", core.AccessorySiren, true))

	assert.Equal(t, []string{"Car1"}, l.Connected())
	assert.Equal(t, []Command{
		{ID: "Car1", Kind: "speed", Value: 10},
		{ID: "Car1", Kind: "steer", Value: -5},
		{ID: "Car1", Kind: "accessory", Value: 1, Accessory: core.AccessorySiren},
	}, l.Commands())
}

func TestLog_ConnectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NewLog(nil).Connect(ctx, []string{"Car1"}))
}

func TestNew(t *testing.T) {
	link, err := New(config.CommsConfig{Type: "log"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Log{}, link)

	_, err = New(config.CommsConfig{Type: "carrier-pigeon"}, nil)
	assert.True(t, err != nil && strings.Contains(err.Error(), "unknown comms type"))
}
