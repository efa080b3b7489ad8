package serial

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.bug.st/serial"

	"sigfox-decoder/internal/packet"
)

const retryInterval = 2 * time.Second

type eventEmitter interface {
	Emit(p packet.Packet) int
}

// Service reads a modem log over a serial line. Uplinks show up as lines
// like "I (4041275) sigfox: 0000e840cdccc7424a3e8044".
type Service struct {
	portName string
	mode     *serial.Mode
	tag      string
}

func New(portName string, baudRate int, tag string) *Service {
	return &Service{
		portName: portName,
		mode:     &serial.Mode{BaudRate: baudRate},
		tag:      tag,
	}
}

// parseLine returns the payload following "<tag>:".
func parseLine(line, tag string) (string, bool) {
	idx := strings.Index(line, tag+":")
	if idx == -1 {
		return "", false
	}

	payload := strings.TrimSpace(line[idx+len(tag)+1:])
	if payload == "" {
		return "", false
	}

	return payload, true
}

func (s *Service) read(ctx context.Context, r io.Reader, emitter eventEmitter) error {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanLines)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := scanner.Text()

		payload, ok := parseLine(line, s.tag)
		if !ok {
			continue
		}

		reading, err := packet.Decode(payload)
		if err != nil {
			slog.WarnContext(ctx, "bad serial payload", "line", line, "error", err)

			continue
		}

		slog.DebugContext(ctx, line, "reading", reading)
		emitter.Emit(packet.Packet{Reading: reading, Device: s.portName, Timestamp: time.Now()})
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("scan: %w", err)
	}

	return nil
}

// Run keeps the port open, reopening it after errors, until ctx is done.
func (s *Service) Run(ctx context.Context, emitter eventEmitter) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		slog.InfoContext(ctx, "open serial", "portName", s.portName, "baudRate", s.mode.BaudRate)

		port, err := serial.Open(s.portName, s.mode)
		if err != nil {
			slog.ErrorContext(ctx, "open failed", "port", s.portName, "error", err)
		} else {
			// a blocked Read only returns once the port is closed
			stop := context.AfterFunc(ctx, func() { _ = port.Close() })
			err = s.read(ctx, port, emitter)

			if stop() {
				_ = port.Close()
			}

			if ctx.Err() != nil {
				return nil
			}

			slog.WarnContext(ctx, "serial disconnected, retrying", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryInterval):
		}
	}
}
