package udp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"sigfox-decoder/internal/packet"
)

const (
	readFromTimeout = 2 * time.Second
	maxUDPSafeSize  = 1472
)

type Service struct {
	pc net.PacketConn
}

func Listen(port string) (*Service, error) {
	slog.Info("listening UDP", "port", port)

	pc, err := net.ListenPacket("udp4", port)
	if err != nil {
		return nil, fmt.Errorf("listenPacket: %w", err)
	}

	return &Service{
		pc: pc,
	}, nil
}

func (s *Service) Addr() net.Addr {
	return s.pc.LocalAddr()
}

func (s *Service) Close() error {
	return s.pc.Close() //nolint:wrapcheck
}

type eventEmitter interface {
	Emit(p packet.Packet) int
}

// decodeDatagram accepts a raw 12 byte frame or its hex rendering.
func decodeDatagram(data []byte) (packet.Reading, error) {
	if len(data) == packet.FrameSize {
		return packet.DecodeBytes(data)
	}

	return packet.Decode(string(data))
}

// Serve decodes every datagram and emits the readings until ctx is done.
// Undecodable datagrams are logged and dropped.
func (s *Service) Serve(ctx context.Context, emitter eventEmitter) error {
	buf := make([]byte, maxUDPSafeSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := s.pc.SetReadDeadline(time.Now().Add(readFromTimeout))
		if err != nil {
			return fmt.Errorf("setReadDeadline: %w", err)
		}

		n, addr, err := s.pc.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			slog.WarnContext(ctx, "failed to read from UDP", "error", err)

			continue
		}

		r, err := decodeDatagram(buf[:n])
		if err != nil {
			slog.WarnContext(ctx, "dropping UDP datagram", "from", addr.String(), "size", n, "error", err)

			continue
		}

		p := packet.Packet{Reading: r, Device: addr.String(), Timestamp: time.Now()}
		slog.DebugContext(ctx, "udp packet", "packet", p.String())
		emitter.Emit(p)
	}
}
