package comms

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// ErrWriteFailed wraps errors writing to the bridge.
var ErrWriteFailed = errors.New("failed to write to serial port")

// Port is the part of a serial port the link uses.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Serial talks to a radio bridge over a serial or RFCOMM port with a line
// protocol: CONNECT <id>, SPEED <id> <v>, STEER <id> <v> and
// ACC <id> <name> <0|1>. The bridge answers CONNECT with OK <id>.
type Serial struct {
	port   Port
	logger *slog.Logger

	writeMu sync.Mutex
	acks    chan string
	done    chan struct{}

	closeOnce sync.Once
}

// OpenSerial opens the port at path with 8N1 framing.
func OpenSerial(path string, baud int, logger *slog.Logger) (*Serial, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return NewSerial(port, logger), nil
}

// NewSerial runs the line protocol over port and starts reading replies.
func NewSerial(port Port, logger *slog.Logger) *Serial {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Serial{
		port:   port,
		logger: logger,
		acks:   make(chan string, 64),
		done:   make(chan struct{}),
	}
	go s.monitor()
	return s
}

// Connect sends CONNECT for every car and waits for all acknowledgements.
// ctx bounds the wait.
func (s *Serial) Connect(ctx context.Context, ids []string) error {
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
		if err := s.send("CONNECT %s", id); err != nil {
			return err
		}
	}

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d car(s): %w", len(pending), ctx.Err())
		case <-s.done:
			return errors.New("serial link closed")
		case id := <-s.acks:
			delete(pending, id)
		}
	}
	return nil
}

func (s *Serial) SetSpeed(id string, speed int) error {
	return s.send("SPEED %s %d", id, speed)
}

func (s *Serial) SetAngle(id string, angle int) error {
	return s.send("STEER %s %d", id, angle)
}

func (s *Serial) SetAccessory(id string, accessory core.Accessory, on bool) error {
	return s.send("ACC %s %s %d", id, accessory, boolToInt(on))
}

// Close closes the port and waits for the reader to exit.
func (s *Serial) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.port.Close()
		<-s.done
	})
	return err
}

func (s *Serial) send(format string, args ...any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := fmt.Fprintf(s.port, format+"\n", args...); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

func (s *Serial) monitor() {
	defer close(s.done)

	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "OK" {
			select {
			case s.acks <- fields[1]:
			default:
				s.logger.Warn("Dropped acknowledgement", "car", fields[1])
			}
			continue
		}
		s.logger.Debug("Bridge", "line", line)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.logger.Debug("Serial reader stopped", "error", err)
	}
}
