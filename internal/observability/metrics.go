package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"sigfox-decoder/internal/packet"
)

//nolint:gochecknoglobals
var (
	decodeSuccess = metrics.NewCounter(`sigfox_decode_total{result="success"}`)

	fetchDuration = metrics.NewHistogram("sigfox_fetch_duration_seconds")
	fetchErrors   = metrics.NewCounter("sigfox_fetch_errors_total")
	cacheHits     = metrics.NewCounter(`sigfox_cache_requests_total{result="hit"}`)
	cacheMisses   = metrics.NewCounter(`sigfox_cache_requests_total{result="miss"}`)

	temperature = metrics.NewHistogram("sigfox_temperature_celsius")
	humidity    = metrics.NewHistogram("sigfox_humidity_percent")
	pressure    = metrics.NewHistogram("sigfox_pressure_hpa")

	validations   = metrics.NewCounter("sigfox_validation_total")
	accurateTotal = metrics.NewCounter("sigfox_validation_accurate_total")
)

// ObserveDecode counts one decode attempt and records the values on success.
func ObserveDecode(r packet.Reading, err error) {
	if err != nil {
		kind := packet.KindOf(err)
		metrics.GetOrCreateCounter(fmt.Sprintf(`sigfox_decode_total{result="failure",kind=%q}`, kind.String())).Inc()

		return
	}

	decodeSuccess.Inc()
	temperature.Update(r.Temperature)
	humidity.Update(r.Humidity)
	pressure.Update(r.Pressure)
}

func ObserveFetch(start time.Time, err error) {
	fetchDuration.UpdateDuration(start)

	if err != nil {
		fetchErrors.Inc()
	}
}

func ObserveCache(hit bool) {
	if hit {
		cacheHits.Inc()

		return
	}

	cacheMisses.Inc()
}

func ObserveValidation(accurate bool) {
	validations.Inc()

	if accurate {
		accurateTotal.Inc()
	}
}

func ObserveHTTP(route string, status int, start time.Time) {
	metrics.GetOrCreateHistogram(fmt.Sprintf(`sigfox_http_request_duration_seconds{route=%q,code="%s"}`,
		route, strconv.Itoa(status))).UpdateDuration(start)
}

func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}

func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		WritePrometheus(w)
	})
}

// InitPush periodically pushes all metrics to a Prometheus-compatible
// import endpoint such as VictoriaMetrics /api/v1/import/prometheus.
func InitPush(ctx context.Context, pushURL string, interval time.Duration, service string) error {
	opts := &metrics.PushOptions{
		ExtraLabels: `service_name="` + service + `"`,
	}

	err := metrics.InitPushExtWithOptions(ctx, pushURL, interval, WritePrometheus, opts)
	if err != nil {
		return fmt.Errorf("init metrics push: %w", err)
	}

	return nil
}
