package events

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	SignatureHeader = "X-Widget-Signature"
	EventHeader     = "X-Widget-Event"
	DeliveryHeader  = "X-Widget-Delivery"
)

// Sign returns the header value for body: "sha256=" followed by the hex
// HMAC-SHA256 of body keyed with secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a header produced by Sign in constant time.
func VerifySignature(secret string, body []byte, header string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}

// WebhookClient POSTs events to project webhook URLs.
type WebhookClient struct {
	client  *fasthttp.Client
	timeout time.Duration
}

func NewWebhookClient(timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookClient{
		client: &fasthttp.Client{
			Name:                "widgethub-webhook",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		timeout: timeout,
	}
}

// Deliver sends one event. Any non-2xx status is an error; there are no
// retries.
func (w *WebhookClient) Deliver(url, secret string, evt IntakeEvent) error {
	body, err := json.Marshal(evt.Envelope())
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set(EventHeader, string(evt.Type))
	req.Header.Set(DeliveryHeader, evt.ID)
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}
	req.SetBody(body)

	if err := w.client.DoTimeout(req, resp, w.timeout); err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("webhook returned status %d", code)
	}
	return nil
}
