package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSource_Fetch_Success(t *testing.T) {
	t.Parallel()

	body := `{
		"result": "success",
		"base_code": "USD",
		"time_last_update_unix": 1760832151,
		"rates": {"USD": 1, "EUR": 0.8571, "jpy": 150.9, "BAD": 0}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL, srv.Client(), newTestLogger())
	snap, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.Base != "USD" {
		t.Errorf("Base = %q, want USD", snap.Base)
	}
	if got := snap.Rates["EUR"].String(); got != "0.8571" {
		t.Errorf("EUR = %s, want 0.8571", got)
	}
	if _, ok := snap.Rates["JPY"]; !ok {
		t.Error("codes should be upper-cased")
	}
	if _, ok := snap.Rates["BAD"]; ok {
		t.Error("zero rates should be dropped")
	}
	if want := time.Unix(1760832151, 0).UTC(); !snap.UpdatedAt.Equal(want) {
		t.Errorf("UpdatedAt = %v, want %v", snap.UpdatedAt, want)
	}
}

func TestHTTPSource_Fetch_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `oops`},
		{"rate limited", http.StatusTooManyRequests, `{}`},
		{"error result", http.StatusOK, `{"result":"error","error-type":"unsupported-code"}`},
		{"malformed json", http.StatusOK, `{"result":`},
		{"empty table", http.StatusOK, `{"result":"success","rates":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPSource(srv.URL, srv.Client(), newTestLogger()).Fetch(context.Background())
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, ErrUpstreamUnavailable) {
				t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
			}
		})
	}
}

func TestHTTPSource_Fetch_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPSource(url, nil, newTestLogger()).Fetch(context.Background())
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
}
