package mqtt

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sigfox-decoder/internal/config"
	"sigfox-decoder/internal/packet"
	"sigfox-decoder/internal/sigfox"
)

const disconnectQuiesce = 250

type Service struct {
	topic   string
	client  mqtt.Client
	emitter eventEmitter
}

type eventEmitter interface {
	Emit(p packet.Packet) int
}

func New(cfg config.MQTT, emitter eventEmitter) *Service {
	srv := &Service{
		topic:   cfg.Topic,
		emitter: emitter,
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(cfg.KeepAliveDuration)
	opts.SetDefaultPublishHandler(srv.messageHandler())
	opts.SetPingTimeout(cfg.PingTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		slog.Debug("mqtt connected", "broker", cfg.Broker)
	})

	srv.client = mqtt.NewClient(opts)

	return srv
}

func (s *Service) Run(ctx context.Context) error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect: %w", token.Error())
	}

	if token := s.client.Subscribe(s.topic, 0, nil); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe: %w", token.Error())
	}

	slog.InfoContext(ctx, "mqtt subscribed", "topic", s.topic)

	<-ctx.Done()

	return nil
}

func (s *Service) Close() error {
	if !s.client.IsConnectionOpen() {
		return nil
	}

	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		return fmt.Errorf("unsubscribe: %w", token.Error())
	}

	s.client.Disconnect(disconnectQuiesce)

	return nil
}

// isRawFrame reports whether payload is a binary frame rather than a JSON
// document that happens to be 12 bytes long.
func isRawFrame(payload []byte) bool {
	if len(payload) != packet.FrameSize {
		return false
	}

	if payload[0] == '[' || payload[0] == '{' {
		return !json.Valid(payload)
	}

	return true
}

// parseMessage turns one MQTT payload into packets. The payload is either
// a raw 12 byte frame, or a Sigfox callback record (or array of records)
// in JSON. Records that fail to decode are skipped and counted.
func parseMessage(topic string, payload []byte, now time.Time) ([]packet.Packet, int, error) {
	if isRawFrame(payload) {
		r, err := packet.DecodeBytes(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("decode frame: %w", err)
		}

		return []packet.Packet{{Reading: r, Device: topic, Timestamp: now}}, 0, nil
	}

	body := bytes.TrimSpace(payload)
	if len(body) > 0 && body[0] == '{' {
		body = append(append([]byte{'['}, body...), ']')
	}

	records, err := sigfox.ParseRecords(body)
	if err != nil {
		return nil, 0, fmt.Errorf("parse records: %w", err)
	}

	var (
		packets []packet.Packet
		skipped int
	)

	for _, rec := range records {
		if !rec.HasHex() {
			continue
		}

		r, err := packet.Decode(rec.HexData)
		if err != nil {
			skipped++

			continue
		}

		at, ok := rec.Time()
		if !ok {
			at = now
		}

		device := rec.Device
		if device == "" {
			device = topic
		}

		packets = append(packets, packet.Packet{Reading: r, Device: device, Timestamp: at})
	}

	return packets, skipped, nil
}

func (s *Service) messageHandler() mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		raw := msg.Payload()

		packets, skipped, err := parseMessage(msg.Topic(), raw, time.Now())
		if err != nil {
			slog.Warn("failed to parse mqtt payload", "topic", msg.Topic(), "error", err,
				"size", len(raw), "raw_hex", hex.EncodeToString(raw))

			return
		}

		if skipped > 0 {
			slog.Warn("mqtt records with undecodable payload", "topic", msg.Topic(), "skipped", skipped)
		}

		for _, p := range packets {
			slog.Debug("mqtt payload parsed", "topic", msg.Topic(), "packet", p.String())
			s.emitter.Emit(p)
		}
	}
}
