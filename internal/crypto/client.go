package crypto

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"freecord/internal/metrics"
	"freecord/internal/models"
	chaterrors "freecord/pkg/errors"

	"github.com/valyala/fasthttp"
)

type encryptRequest struct {
	ScopeID int64  `json:"scope_id"`
	Message string `json:"message"`
}

type encryptResponse struct {
	Encrypted string `json:"encrypted"`
}

type decryptRequest struct {
	ScopeID   int64  `json:"scope_id"`
	Encrypted string `json:"encrypted"`
}

type decryptResponse struct {
	Message string `json:"message"`
}

// Client talks to the key service. Every call is a single attempt bounded by
// the configured timeout or the context deadline, whichever comes first.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *fasthttp.Client
	metrics *metrics.Metrics
}

func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                "freecord",
			MaxIdleConnDuration: 30 * time.Second,
		},
		metrics: m,
	}
}

// Encrypt fails with ErrEncryptionUnavailable on any transport error,
// timeout or non-200 response.
func (c *Client) Encrypt(ctx context.Context, scope models.Scope, plaintext string) (string, error) {
	var out encryptResponse
	err := c.call(ctx, "encrypt", encryptRequest{ScopeID: scope.KeyID(), Message: plaintext}, &out)
	if err != nil {
		return "", err
	}
	return out.Encrypted, nil
}

func (c *Client) Decrypt(ctx context.Context, scope models.Scope, ciphertext string) (string, error) {
	var out decryptResponse
	err := c.call(ctx, "decrypt", decryptRequest{ScopeID: scope.KeyID(), Encrypted: ciphertext}, &out)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// DecryptOrPlaceholder is for read paths, where one bad ciphertext must not
// fail a whole page.
func (c *Client) DecryptOrPlaceholder(ctx context.Context, scope models.Scope, ciphertext string) string {
	plaintext, err := c.Decrypt(ctx, scope, ciphertext)
	if err != nil {
		return models.DecryptionErrorText
	}
	return plaintext
}

func (c *Client) call(ctx context.Context, op string, in, out any) (err error) {
	started := time.Now()
	defer func() { c.metrics.CryptoRequest(op, started, err) }()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", chaterrors.ErrEncryptionUnavailable, err)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", chaterrors.ErrEncryptionUnavailable, err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/" + op)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%w: %s: %v", chaterrors.ErrEncryptionUnavailable, op, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("%w: %s: status %d", chaterrors.ErrEncryptionUnavailable, op, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: %s: %v", chaterrors.ErrEncryptionUnavailable, op, err)
	}
	return nil
}
