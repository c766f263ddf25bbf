// Package rates converts amounts between currencies using a cached snapshot of
// exchange rates fetched from an external provider.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultURL = "https://open.er-api.com/v6/latest/USD"

var (
	// ErrUpstreamUnavailable is returned when the rate provider fails, times
	// out or answers with something that is not a rate table.
	ErrUpstreamUnavailable = errors.New("exchange rate source unavailable")
	// ErrUnknownCurrency is returned when a code is absent from the snapshot.
	ErrUnknownCurrency = errors.New("unknown currency")
)

// Snapshot is one rate table. Every rate is the value of one unit of Base in
// that currency.
type Snapshot struct {
	Base      string
	Rates     map[string]decimal.Decimal
	UpdatedAt time.Time // as reported by the provider
	FetchedAt time.Time // when this process received it
}

// Source fetches a complete rate table.
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Snapshot, error)

func (f SourceFunc) Fetch(ctx context.Context) (Snapshot, error) { return f(ctx) }

// HTTPSource reads the open.er-api.com "latest" endpoint.
type HTTPSource struct {
	url        string
	httpClient *http.Client
	log        *slog.Logger
}

type apiResponse struct {
	Result             string                     `json:"result"`
	BaseCode           string                     `json:"base_code"`
	TimeLastUpdateUnix int64                      `json:"time_last_update_unix"`
	Rates              map[string]decimal.Decimal `json:"rates"`
	ErrorType          string                     `json:"error-type"`
}

// NewHTTPSource creates a source for url, or DefaultURL when url is empty.
// The cache bounds every fetch with its own timeout; client is used as is.
func NewHTTPSource(url string, client *http.Client, logger *slog.Logger) *HTTPSource {
	if url == "" {
		url = DefaultURL
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		url:        url,
		httpClient: client,
		log:        logger.With("adapter", "rates"),
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: create request: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	s.log.DebugContext(ctx, "rates request", slog.String("url", s.url))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("%w: unexpected status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode json: %v", ErrUpstreamUnavailable, err)
	}
	if payload.Result != "success" {
		return Snapshot{}, fmt.Errorf("%w: result %q %s", ErrUpstreamUnavailable, payload.Result, payload.ErrorType)
	}
	if len(payload.Rates) == 0 {
		return Snapshot{}, fmt.Errorf("%w: empty rate table", ErrUpstreamUnavailable)
	}

	snap := Snapshot{
		Base:  strings.ToUpper(payload.BaseCode),
		Rates: make(map[string]decimal.Decimal, len(payload.Rates)),
	}
	for code, rate := range payload.Rates {
		// A zero rate cannot be divided by; treat the code as absent.
		if !rate.IsPositive() {
			continue
		}
		snap.Rates[strings.ToUpper(code)] = rate
	}
	if payload.TimeLastUpdateUnix > 0 {
		snap.UpdatedAt = time.Unix(payload.TimeLastUpdateUnix, 0).UTC()
	}

	s.log.DebugContext(ctx, "rates response",
		slog.String("base", snap.Base),
		slog.Int("currencies", len(snap.Rates)),
		slog.Time("updated_at", snap.UpdatedAt),
	)
	return snap, nil
}
