package observability_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigfox-decoder/internal/observability"
	"sigfox-decoder/internal/packet"
)

func TestObserveAndExpose(t *testing.T) {
	observability.ObserveDecode(packet.Reading{Temperature: 20, Humidity: 50, Pressure: 1000}, nil)
	observability.ObserveDecode(packet.Reading{}, packet.ErrOutOfRange)
	observability.ObserveFetch(time.Now(), nil)
	observability.ObserveCache(true)
	observability.ObserveCache(false)
	observability.ObserveValidation(true)
	observability.ObserveHTTP("/health", http.StatusOK, time.Now())

	var buf bytes.Buffer
	observability.WritePrometheus(&buf)

	out := buf.String()
	assert.Contains(t, out, `sigfox_decode_total{result="success"}`)
	assert.Contains(t, out, `sigfox_decode_total{result="failure",kind="OutOfRange"}`)
	assert.Contains(t, out, `sigfox_cache_requests_total{result="hit"}`)
	assert.Contains(t, out, "sigfox_validation_total")

	rec := httptest.NewRecorder()
	observability.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sigfox_fetch_duration_seconds")
}
