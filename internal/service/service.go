package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"sigfox-decoder/internal/accuracy"
	"sigfox-decoder/internal/cache"
	"sigfox-decoder/internal/observability"
	"sigfox-decoder/internal/packet"
	"sigfox-decoder/internal/sigfox"
)

const fetchKey = "records"

type fetcher interface {
	Fetch(ctx context.Context) ([]sigfox.Record, error)
}

type eventEmitter interface {
	Emit(p packet.Packet) int
}

// DecodeResult is the outcome of decoding one record's payload.
type DecodeResult struct {
	Device          string          `json:"device"`
	Timestamp       string          `json:"timestamp"`
	OriginalHex     string          `json:"originalHex"`
	Decoded         *packet.Reading `json:"decoded"`
	HexBytes        int             `json:"hexBytes,omitempty"`
	DecodingSuccess bool            `json:"decodingSuccess"`
	Error           string          `json:"error,omitempty"`
}

type Batch struct {
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Cached     bool           `json:"cached"`
	Results    []DecodeResult `json:"data"`
}

type Service struct {
	source    fetcher
	records   *cache.TTL[[]sigfox.Record]
	validator accuracy.Validator
	group     singleflight.Group
}

func New(source fetcher, ttl time.Duration, validator accuracy.Validator) *Service {
	return &Service{
		source:    source,
		records:   cache.NewTTL[[]sigfox.Record](ttl),
		validator: validator,
	}
}

// Records returns the current record set, from the cache while it is fresh.
// Concurrent misses share one upstream fetch. The shared fetch outlives the
// caller that started it; each caller stops waiting when its own ctx is done.
func (s *Service) Records(ctx context.Context) ([]sigfox.Record, bool, error) {
	if records, ok := s.records.Get(); ok {
		observability.ObserveCache(true)

		return records, true, nil
	}

	observability.ObserveCache(false)

	fetchCtx := context.WithoutCancel(ctx)

	ch := s.group.DoChan(fetchKey, func() (any, error) {
		start := time.Now()
		records, err := s.source.Fetch(fetchCtx)
		observability.ObserveFetch(start, err)

		if err != nil {
			return nil, err
		}

		s.records.Set(records)
		slog.DebugContext(fetchCtx, "sigfox records fetched", "count", len(records), "took", time.Since(start))

		return records, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("fetch records: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, false, fmt.Errorf("fetch records: %w", res.Err)
		}

		return res.Val.([]sigfox.Record), false, nil //nolint:forcetypeassert
	}
}

// Refresh drops the cached record set.
func (s *Service) Refresh() {
	s.records.Invalidate()
}

func (s *Service) Decode(hexData string) (packet.Reading, error) {
	r, err := packet.Decode(hexData)
	observability.ObserveDecode(r, err)

	return r, err
}

// DecodeRecords decodes every record carrying a payload. A failing record
// is reported in its own result and does not stop the batch.
func (s *Service) DecodeRecords(records []sigfox.Record) Batch {
	batch := Batch{Results: []DecodeResult{}}

	for _, rec := range records {
		if !rec.HasHex() {
			continue
		}

		res := DecodeResult{
			Device:      rec.Device,
			Timestamp:   rec.Timestamp,
			OriginalHex: rec.HexData,
		}

		r, err := s.Decode(rec.HexData)
		if err != nil {
			res.Error = err.Error()
			batch.Failed++
		} else {
			res.Decoded = &r
			res.HexBytes = packet.FrameSize
			res.DecodingSuccess = true
			batch.Successful++
		}

		batch.Results = append(batch.Results, res)
	}

	batch.Total = len(batch.Results)

	return batch
}

func (s *Service) DecodeAll(ctx context.Context) (Batch, error) {
	records, cached, err := s.Records(ctx)
	if err != nil {
		return Batch{}, err
	}

	batch := s.DecodeRecords(records)
	batch.Cached = cached

	return batch, nil
}

func (s *Service) Validate(ctx context.Context) ([]accuracy.Result, accuracy.Summary, error) {
	records, _, err := s.Records(ctx)
	if err != nil {
		return nil, accuracy.Summary{}, err
	}

	results, summary := s.validator.Validate(records)
	for _, r := range results {
		observability.ObserveValidation(r.IsAccurate)
	}

	return results, summary, nil
}

// Poll fetches the record set on every tick and emits readings decoded from
// records not seen in the previous poll.
func (s *Service) Poll(ctx context.Context, interval time.Duration, emitter eventEmitter) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := map[string]struct{}{}

	for {
		seen = s.poll(ctx, seen, emitter)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) poll(ctx context.Context, seen map[string]struct{}, emitter eventEmitter) map[string]struct{} {
	records, _, err := s.Records(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.WarnContext(ctx, "poll failed", "error", err)
		}

		return seen
	}

	current := make(map[string]struct{}, len(records))
	emitted := 0

	for _, rec := range records {
		if !rec.HasHex() {
			continue
		}

		key := rec.Key()
		current[key] = struct{}{}

		if _, ok := seen[key]; ok {
			continue
		}

		r, err := s.Decode(rec.HexData)
		if err != nil {
			slog.DebugContext(ctx, "skipping undecodable record", "device", rec.Device, "hex", rec.HexData, "error", err)

			continue
		}

		at, ok := rec.Time()
		if !ok {
			at = time.Now()
		}

		emitter.Emit(packet.Packet{Reading: r, Device: rec.Device, Timestamp: at})
		emitted++
	}

	if emitted > 0 {
		slog.DebugContext(ctx, "poll emitted readings", "count", emitted)
	}

	return current
}
