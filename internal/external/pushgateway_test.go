package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"dealwire/internal/config"
	"dealwire/internal/types"
)

// testLogger discards all output.
type testLogger struct{}

func (testLogger) Info(string, ...any)        {}
func (testLogger) Error(string, ...any)       {}
func (testLogger) Warn(string, ...any)        {}
func (l testLogger) With(...any) types.Logger { return l }

func gatewayConfig(url string) config.GatewayConfig {
	return config.GatewayConfig{
		URL:          url,
		Timeout:      5 * time.Second,
		SubBatchSize: 100,
	}
}

func sampleEntries() []types.DispatchEntry {
	return []types.DispatchEntry{
		{Token: "tok-1", Title: "Price drop", Body: "down 30%", Route: "/deal?id=1"},
		{Token: "tok-2", Title: "Price drop", Body: "down 30%", Route: "/deal?id=1"},
	}
}

func TestSendBatch_Success(t *testing.T) {
	var gotBody []types.DispatchEntry
	var gotContentType, gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Write([]byte(`{"data":[{"status":"ok","id":"r1"},{"status":"ok","id":"r2"}]}`))
	}))
	defer server.Close()

	cfg := gatewayConfig(server.URL)
	cfg.APIKey = config.SecretString("secret-key")
	client := NewPushGatewayClient(cfg, testLogger{}, WithSleepFunc(noopSleep))

	resp, err := client.SendBatch(context.Background(), sampleEntries())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(gotBody) != 2 || gotBody[0].Token != "tok-1" {
		t.Errorf("server received entries %+v", gotBody)
	}
	if len(resp.Tickets) != 2 {
		t.Errorf("got %d tickets, want 2", len(resp.Tickets))
	}
	if errs := resp.Errors(); len(errs) != 0 {
		t.Errorf("unexpected error tickets: %v", errs)
	}
}

func TestSendBatch_GzipCompression(t *testing.T) {
	var gotEncoding string
	var decoded []types.DispatchEntry

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Content-Encoding")
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			t.Errorf("body is not valid gzip: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		raw, _ := io.ReadAll(zr)
		_ = json.Unmarshal(raw, &decoded)
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	cfg := gatewayConfig(server.URL)
	cfg.Compress = true
	client := NewPushGatewayClient(cfg, testLogger{}, WithSleepFunc(noopSleep))

	if _, err := client.SendBatch(context.Background(), sampleEntries()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotEncoding != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", gotEncoding)
	}
	if len(decoded) != 2 {
		t.Errorf("decompressed to %d entries, want 2", len(decoded))
	}
}

func TestSendBatch_EmptyBatchSkipsCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewPushGatewayClient(gatewayConfig(server.URL), testLogger{}, WithSleepFunc(noopSleep))

	resp, err := client.SendBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil {
		t.Fatal("empty batch must return an empty response, not nil")
	}
	if calls.Load() != 0 {
		t.Error("empty batch reached the server")
	}
}

func TestSendBatch_BadRequestFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"malformed token"}]}`))
	}))
	defer server.Close()

	client := NewPushGatewayClient(gatewayConfig(server.URL), testLogger{}, WithSleepFunc(noopSleep))

	_, err := client.SendBatch(context.Background(), sampleEntries())
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamGateway {
		t.Errorf("got error %v, want code %s", err, types.ErrCodeUpstreamGateway)
	}
	// Client errors are not retryable.
	if calls.Load() != 1 {
		t.Errorf("got %d calls, want 1", calls.Load())
	}
}

func TestSendBatch_ServerErrorRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewPushGatewayClient(gatewayConfig(server.URL), testLogger{}, WithSleepFunc(noopSleep))

	_, err := client.SendBatch(context.Background(), sampleEntries())
	if err == nil {
		t.Fatal("expected error for persistent 503")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamGateway {
		t.Errorf("got error %v, want code %s", err, types.ErrCodeUpstreamGateway)
	}
	// Initial attempt plus the default retries.
	want := int32(1 + DefaultRetryPolicy().MaxRetries)
	if calls.Load() != want {
		t.Errorf("got %d calls, want %d", calls.Load(), want)
	}
}

func TestSendBatch_RateLimitMapsToRateLimitError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewPushGatewayClient(gatewayConfig(server.URL), testLogger{}, WithSleepFunc(noopSleep))

	_, err := client.SendBatch(context.Background(), sampleEntries())
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamRateLimit {
		t.Errorf("got error %v, want code %s", err, types.ErrCodeUpstreamRateLimit)
	}
}

func TestSendBatch_PerMessageErrorTickets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"status":"ok","id":"r1"},{"status":"error","message":"DeviceNotRegistered"}]}`))
	}))
	defer server.Close()

	client := NewPushGatewayClient(gatewayConfig(server.URL), testLogger{}, WithSleepFunc(noopSleep))

	resp, err := client.SendBatch(context.Background(), sampleEntries())
	if err != nil {
		t.Fatalf("per-message errors must not fail the submission: %v", err)
	}
	errs := resp.Errors()
	if len(errs) != 1 || errs[0].Message != "DeviceNotRegistered" {
		t.Errorf("Errors() = %v", errs)
	}
}

func TestSendBatch_MalformedResponseStillSucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer server.Close()

	client := NewPushGatewayClient(gatewayConfig(server.URL), testLogger{}, WithSleepFunc(noopSleep))

	resp, err := client.SendBatch(context.Background(), sampleEntries())
	if err != nil {
		t.Fatalf("advisory receipt parsing must not fail the call: %v", err)
	}
	if len(resp.Tickets) != 0 {
		t.Errorf("got tickets %v from malformed body", resp.Tickets)
	}
}
