// Package simulator serves a stand-in for the Sigfox callback endpoint: every
// request returns fresh uplinks with hex payloads together with directly
// reported ground-truth readings of the same devices.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"sigfox-decoder/internal/packet"
)

const (
	readHeaderTimeout = 2 * time.Second
	shutdownTimeout   = 2 * time.Second
	uplinkSpacing     = 10 * time.Minute
)

//nolint:gochecknoglobals
var devices = []string{"1A2B3C", "4D5E6F", "7A8B9C"}

type uplink struct {
	Device    string `json:"device"`
	Timestamp string `json:"timestamp"`
	HexData   string `json:"hexData"`
	SeqNumber int    `json:"seqNumber"`
}

type report struct {
	Device      string `json:"device"`
	Timestamp   string `json:"timestamp"`
	Temperature any    `json:"temperature"`
	Humidity    any    `json:"humidity"`
	Pressure    any    `json:"pressure"`
}

// Generator produces simulated records. One uplink in ten carries a
// corrupted payload and one report in five drifts beyond the tolerance.
type Generator struct {
	mu   sync.Mutex
	rng  *rand.Rand
	size int
	seq  int
	now  func() time.Time
}

func NewGenerator(seed uint64, size int) *Generator {
	return &Generator{
		rng:  rand.New(rand.NewPCG(seed, seed^0x5167)), //nolint:gosec
		size: size,
		now:  time.Now,
	}
}

func (g *Generator) between(lo, hi float64) float64 {
	return packet.Round(lo+g.rng.Float64()*(hi-lo), 2)
}

// Records returns size uplinks, each followed by its ground-truth report.
func (g *Generator) Records() []any {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	out := make([]any, 0, g.size*2)

	for i := range g.size {
		g.seq++

		device := devices[i%len(devices)]
		at := now.Add(-time.Duration(i) * uplinkSpacing)

		r := packet.Reading{
			Temperature: g.between(-10, 35),
			Humidity:    g.between(20, 95),
			Pressure:    g.between(950, 1050),
		}

		hexData := packet.Encode(r)
		if g.rng.IntN(10) == 0 {
			hexData = hexData[:packet.HexLength-2]
		}

		out = append(out, uplink{
			Device:    device,
			Timestamp: at.Format(time.RFC3339Nano),
			HexData:   hexData,
			SeqNumber: g.seq,
		})

		drift := 0.004
		if g.rng.IntN(5) == 0 {
			drift = 0.5
		}

		truthAt := at.Add(time.Duration(500+g.rng.IntN(3000)) * time.Millisecond)
		out = append(out, report{
			Device:      device,
			Timestamp:   truthAt.Format(time.RFC3339Nano),
			Temperature: packet.Round(r.Temperature+g.noise(drift), 4),
			Humidity:    strconv.FormatFloat(packet.Round(r.Humidity+g.noise(drift), 4), 'f', -1, 64),
			Pressure:    packet.Round(r.Pressure+g.noise(drift), 4),
		})
	}

	return out
}

func (g *Generator) noise(limit float64) float64 {
	return (g.rng.Float64()*2 - 1) * limit
}

func Handler(g *Generator) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(g.Records()); err != nil {
			slog.Warn("simulator encode", "error", err)
		}
	})

	return mux
}

// Run serves the simulator until ctx is canceled.
func Run(ctx context.Context, addr string, g *Generator) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.InfoContext(ctx, "simulator listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("simulator: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("simulator shutdown: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("simulator: %w", err)
	}

	return nil
}
