// Package payment is the boundary to the external payment processor
// (Paystack-compatible REST API). The core never trusts a client-reported
// payment status: the adapter re-checks a charge server-side by its
// reference, and webhook payloads are authenticated with the gateway's
// HMAC signature before any state transition.
//
// All calls carry a bounded timeout; transport failures and gateway 5xx
// responses surface as ErrUnavailable (retryable), distinct from a charge
// that the gateway does not know (ErrChargeNotFound) or that did not
// succeed (ErrChargeNotSuccessful).
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the production API endpoint of the gateway.
const DefaultBaseURL = "https://api.paystack.co"

// defaultTimeout bounds every outbound gateway call.
const defaultTimeout = 10 * time.Second

var (
	// ErrUnavailable indicates a transient gateway failure (timeout,
	// transport error, or 5xx). Safe to retry with backoff.
	ErrUnavailable = errors.New("payment gateway unavailable")

	// ErrChargeNotFound indicates the gateway has no charge for the
	// given reference.
	ErrChargeNotFound = errors.New("charge not found")

	// ErrChargeNotSuccessful indicates the gateway knows the charge but
	// does not report it as successful.
	ErrChargeNotSuccessful = errors.New("charge not successful")
)

// Client talks to the gateway's verification API. The zero value is not
// usable; construct with NewClient.
type Client struct {
	baseURL  string
	secret   string
	currency string
	http     *http.Client
}

// NewClient returns a gateway client authenticated with the given secret
// key. baseURL may be empty, in which case the production endpoint is used.
func NewClient(baseURL, secret string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// RequireCurrency makes VerifyCharge reject charges settled in any currency
// other than code (ISO 4217). An empty code disables the check. Returns the
// client for chaining.
func (c *Client) RequireCurrency(code string) *Client {
	c.currency = code
	return c
}

// verifyResponse mirrors the subset of the gateway's verify payload the
// core cares about.
type verifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

// VerifyCharge asks the gateway whether the charge identified by reference
// completed successfully. It returns nil only for a successful charge.
//
// Error mapping:
//   - transport error / timeout / 5xx -> ErrUnavailable
//   - 404 or unknown reference        -> ErrChargeNotFound
//   - any non-"success" charge state  -> ErrChargeNotSuccessful
func (c *Client) VerifyCharge(ctx context.Context, reference string) error {
	u := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrChargeNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: gateway returned %d", ErrChargeNotSuccessful, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var vr verifyResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return fmt.Errorf("%w: malformed verify payload: %v", ErrUnavailable, err)
	}
	if !vr.Status {
		return ErrChargeNotFound
	}
	if vr.Data.Status != "success" {
		return ErrChargeNotSuccessful
	}
	if c.currency != "" && vr.Data.Currency != c.currency {
		return fmt.Errorf("%w: settled in %s, want %s", ErrChargeNotSuccessful, vr.Data.Currency, c.currency)
	}
	return nil
}

// WebhookEvent is the envelope of a gateway callback. Only the event name
// and the charge reference are consumed; everything else in the payload is
// advisory (the ledger's own verify operation is the authoritative state
// transition).
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// VerifySignature reports whether sig is a valid HMAC-SHA512 hex digest of
// body under the gateway secret. The gateway sends it in the
// X-Paystack-Signature header.
func (c *Client) VerifySignature(body []byte, sig string) bool {
	mac := hmac.New(sha512.New, []byte(c.secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return sig != "" && hmac.Equal([]byte(want), []byte(sig))
}

// ParseWebhook decodes a callback body into a WebhookEvent.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	return &ev, nil
}
