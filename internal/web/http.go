package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sigfox-decoder/internal/accuracy"
	"sigfox-decoder/internal/dataset"
	"sigfox-decoder/internal/observability"
	"sigfox-decoder/internal/packet"
	"sigfox-decoder/internal/service"
	"sigfox-decoder/internal/sigfox"
)

const (
	readHeaderTimeout = 2 * time.Second
	maxBodyBytes      = 4 << 10
)

type decoder interface {
	Records(ctx context.Context) ([]sigfox.Record, bool, error)
	DecodeAll(ctx context.Context) (service.Batch, error)
	Decode(hexData string) (packet.Reading, error)
	Validate(ctx context.Context) ([]accuracy.Result, accuracy.Summary, error)
}

type stats interface {
	EventResponse() *dataset.EventResponse
}

type eventEmitter interface {
	Subscribe() chan packet.Packet
	Unsubscribe(ch chan packet.Packet)
}

type Options struct {
	Addr           string
	AllowedOrigins []string
	AccessLog      io.Writer
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

type decodeResponse struct {
	Success  bool            `json:"success"`
	HexData  string          `json:"hexData"`
	Decoded  *packet.Reading `json:"decoded"`
	HexBytes int             `json:"hexBytes"`
}

type decodeRequest struct {
	HexData string `json:"hexData"`
}

var (
	errStreamUnsupported = errors.New("streaming unsupported")
	errMissingHex        = errors.New("hexData is required")
)

func newServer(ctx context.Context, addr string) *http.Server {
	return &http.Server{
		ReadHeaderTimeout: readHeaderTimeout,
		Addr:              addr,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("error encoding JSON", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	if kind := packet.KindOf(err); kind != 0 {
		resp.Kind = kind.String()
	}

	writeJSON(w, status, resp)
}

func healthHandler(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"uptime":    time.Since(started).Seconds(),
			"timestamp": time.Now().UTC(),
		})
	}
}

func rawHandler(d decoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, cached, err := d.Records(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err)

			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"count":   len(records),
			"cached":  cached,
			"data":    records,
		})
	}
}

func decodedHandler(d decoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch, err := d.DecodeAll(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err)

			return
		}

		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			service.Batch
		}{
			Success: true,
			Batch:   batch,
		})
	}
}

func decode(w http.ResponseWriter, d decoder, hexData string) {
	reading, err := d.Decode(hexData)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	writeJSON(w, http.StatusOK, decodeResponse{
		Success:  true,
		HexData:  hexData,
		Decoded:  &reading,
		HexBytes: packet.FrameSize,
	})
}

func decodePathHandler(d decoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decode(w, d, mux.Vars(r)["hex"])
	}
}

func decodeBodyHandler(d decoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req decodeRequest

		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))

			return
		}

		if req.HexData == "" {
			writeError(w, http.StatusBadRequest, errMissingHex)

			return
		}

		decode(w, d, req.HexData)
	}
}

func validateHandler(d decoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, summary, err := d.Validate(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err)

			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"summary": summary,
			"results": results,
		})
	}
}

func statsHandler(s stats) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.EventResponse())
	}
}

func sendEvent(w http.ResponseWriter, response *dataset.EventResponse) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errStreamUnsupported
	}

	if _, err := fmt.Fprintf(w, "data: "); err != nil {
		return fmt.Errorf("error writing to client: %w", err)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}

	if _, err := fmt.Fprint(w, "\n"); err != nil {
		return fmt.Errorf("error writing to client: %w", err)
	}

	flusher.Flush()

	return nil
}

func subscribeHandler(emitter eventEmitter, s stats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			writeError(w, http.StatusInternalServerError, errStreamUnsupported)

			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ch := emitter.Subscribe()
		defer emitter.Unsubscribe(ch)

		ctx := r.Context()

		if err := sendEvent(w, s.EventResponse()); err != nil {
			slog.WarnContext(ctx, "sse initial event", "error", err)

			return
		}

		for {
			select {
			case data, ok := <-ch:
				if !ok {
					return
				}

				resp := s.EventResponse()
				resp.Current = &data

				if err := sendEvent(w, resp); err != nil {
					slog.WarnContext(ctx, "sse event", "error", err)

					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

// NewRouter wires every endpoint of the API.
func NewRouter(d decoder, emitter eventEmitter, s stats) *mux.Router {
	started := time.Now()

	r := mux.NewRouter()
	r.Use(requestIDMiddleware, metricsMiddleware)

	r.HandleFunc("/health", healthHandler(started)).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/sigfox").Subrouter()
	api.HandleFunc("/raw", rawHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/decoded", decodedHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/decode", decodeBodyHandler(d)).Methods(http.MethodPost)
	api.HandleFunc("/decode/{hex}", decodePathHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/validate", validateHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/stats", statsHandler(s)).Methods(http.MethodGet)
	api.HandleFunc("/subscribe", subscribeHandler(emitter, s)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Errorf("route %s %s not found", r.Method, r.URL.Path))
	})

	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed on %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowedHandler = notAllowed
	api.MethodNotAllowedHandler = notAllowed

	return r
}

func New(ctx context.Context, opts Options, d decoder, emitter eventEmitter, s stats) *http.Server {
	srv := newServer(ctx, opts.Addr)
	srv.Handler = wrap(NewRouter(d, emitter, s), opts)

	return srv
}
