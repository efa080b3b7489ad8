package simulator_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigfox-decoder/internal/accuracy"
	"sigfox-decoder/internal/packet"
	"sigfox-decoder/internal/sigfox"
	"sigfox-decoder/internal/simulator"
)

func TestSimulatorFeedsDecoder(t *testing.T) {
	srv := httptest.NewServer(simulator.Handler(simulator.NewGenerator(42, 60)))
	defer srv.Close()

	client := sigfox.NewClient(sigfox.Options{URL: srv.URL + "/callback", Timeout: time.Second})

	records, err := client.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 120)

	decoded, failed := 0, 0

	for _, rec := range records {
		if !rec.HasHex() {
			assert.True(t, rec.HasGroundTruth())

			continue
		}

		_, err := packet.Decode(rec.HexData)
		if err != nil {
			assert.ErrorIs(t, err, packet.ErrInvalidLength)

			failed++

			continue
		}

		decoded++
	}

	assert.Equal(t, 60, decoded+failed)
	assert.Positive(t, decoded)

	results, summary := accuracy.New().Validate(records)
	assert.Len(t, results, 60)
	assert.Equal(t, failed, summary.DecodeErrors)
	assert.Positive(t, summary.AccurateCount)
	assert.Less(t, summary.AccurateCount, 60)
}

func TestSimulatorRejectsOtherMethods(t *testing.T) {
	srv := httptest.NewServer(simulator.Handler(simulator.NewGenerator(1, 1)))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/callback", "application/json", nil) //nolint:noctx
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- simulator.Run(ctx, "127.0.0.1:0", simulator.NewGenerator(1, 1))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("simulator did not stop")
	}
}
