package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/klauspost/compress/gzip"

	"dealwire/internal/config"
	"dealwire/internal/types"
)

// userAgent identifies dealwire to the push gateway.
const userAgent = "dealwire-notify/1.0"

// maxResponseBodyRead limits how much of a response body is read for error
// messages and receipt parsing.
const maxResponseBodyRead = 64 * 1024

// TicketStatus values reported by the gateway per message.
const (
	TicketOK    = "ok"
	TicketError = "error"
)

// Ticket is one per-message receipt from the gateway's bulk-send response.
// Receipts are best-effort: the pipeline logs them but never bases the
// sent/queued decision on individual ticket statuses.
type Ticket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// GatewayResponse is the parsed bulk-send response.
type GatewayResponse struct {
	Tickets []Ticket `json:"data"`
}

// Errors returns the tickets that reported an error status.
func (r *GatewayResponse) Errors() []Ticket {
	var out []Ticket
	for _, t := range r.Tickets {
		if t.Status == TicketError {
			out = append(out, t)
		}
	}
	return out
}

// PushGateway is the outbound interface the dispatcher depends on.
type PushGateway interface {
	// SendBatch performs one HTTP call submitting all entries to the
	// gateway's bulk-send endpoint. A nil error means the submission call
	// succeeded; it is not a guarantee of end-device delivery.
	SendBatch(ctx context.Context, entries []types.DispatchEntry) (*GatewayResponse, error)
}

// Compile-time assertion that PushGatewayClient implements PushGateway.
var _ PushGateway = (*PushGatewayClient)(nil)

// PushGatewayClient submits dispatch entries to an Expo-style bulk push
// endpoint. Requests are JSON arrays of entries, optionally gzip-compressed,
// authenticated with a bearer token when configured.
type PushGatewayClient struct {
	base     *BaseClient
	url      string
	apiKey   config.SecretString
	compress bool
	logger   types.Logger
}

// NewPushGatewayClient creates a PushGatewayClient from gateway config.
// The HTTP client timeout bounds each sub-batch call; a timeout surfaces as
// a sub-batch failure, never as a hung cycle.
func NewPushGatewayClient(cfg config.GatewayConfig, logger types.Logger, opts ...BaseClientOption) *PushGatewayClient {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &PushGatewayClient{
		base:     NewBaseClient(httpClient, "push-gateway", DefaultRetryPolicy(), userAgent, opts...),
		url:      cfg.URL,
		apiKey:   cfg.APIKey,
		compress: cfg.Compress,
		logger:   logger,
	}
}

// SendBatch submits the entries in a single gateway call and parses the
// per-message tickets best-effort. Transport failures and non-2xx statuses
// return an error; the caller leaves the underlying queue items queued.
func (c *PushGatewayClient) SendBatch(ctx context.Context, entries []types.DispatchEntry) (*GatewayResponse, error) {
	if len(entries) == 0 {
		return &GatewayResponse{}, nil
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal dispatch entries", err)
	}

	body, encoding, err := c.encodeBody(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build gateway request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	if key := c.apiKey.Unmask(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("push gateway rejected batch: status=%d body=%s", resp.StatusCode, truncate(string(snippet), 200)),
			nil,
		)
	}

	var parsed GatewayResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
	if err == nil {
		// Receipts are advisory only; a malformed body is not a failure.
		if jsonErr := json.Unmarshal(raw, &parsed); jsonErr != nil {
			c.logger.Warn("push gateway response not parseable, treating submission as accepted",
				"error", jsonErr.Error(),
				"batch_size", len(entries),
			)
		}
	}

	if errTickets := parsed.Errors(); len(errTickets) > 0 {
		c.logger.Warn("push gateway reported per-message errors",
			"batch_size", len(entries),
			"error_count", len(errTickets),
			"first_error", errTickets[0].Message,
		)
	}

	return &parsed, nil
}

// encodeBody gzip-compresses the payload when compression is enabled,
// returning the body and the Content-Encoding value to advertise.
func (c *PushGatewayClient) encodeBody(payload []byte) ([]byte, string, error) {
	if !c.compress {
		return payload, "", nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to compress gateway payload", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to finalize compressed payload", err)
	}
	return buf.Bytes(), "gzip", nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
