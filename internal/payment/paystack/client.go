// Package paystack initializes and verifies one-off card transactions.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imagerelay/internal/domain"
	"imagerelay/internal/infra"
)

const maxResponseBytes = 1 << 20

// StatusSuccess is the transaction status of a completed payment.
const StatusSuccess = "success"

// ErrMissingSecretKey indicates that the client was configured without credentials.
var ErrMissingSecretKey = errors.New("paystack: secret key is required")

type Options struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// InitializeRequest describes a checkout. Amount is in the currency's minor
// unit (kobo for NGN).
type InitializeRequest struct {
	Email       string
	Amount      int64
	Currency    string
	CallbackURL string
	Reference   string
	Metadata    map[string]string
}

// Checkout is the result of a successful initialization.
type Checkout struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Transaction is the verified state of a payment.
type Transaction struct {
	Reference string
	Status    string
	Amount    int64
	Currency  string
	PaidAt    string
}

// Succeeded reports whether the transaction settled for at least amount in currency.
func (t *Transaction) Succeeded(amount int64, currency string) bool {
	if t == nil {
		return false
	}
	return t.Status == StatusSuccess && t.Amount >= amount && strings.EqualFold(t.Currency, currency)
}

type initializePayload struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Reference   string            `json:"reference,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaidAt    string `json:"paid_at"`
}

func NewClient(opts Options) (*Client, error) {
	secret := strings.TrimSpace(opts.SecretKey)
	if secret == "" {
		return nil, ErrMissingSecretKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Client{secretKey: secret, baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

// Initialize creates a checkout session. Failures wrap domain.ErrPaymentInitFailed.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*Checkout, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("paystack: %w: valid email is required", domain.ErrPaymentInitFailed)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("paystack: %w: amount must be positive", domain.ErrPaymentInitFailed)
	}
	body, err := json.Marshal(initializePayload{
		Email:       email,
		Amount:      req.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		CallbackURL: strings.TrimSpace(req.CallbackURL),
		Reference:   strings.TrimSpace(req.Reference),
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("paystack: encode request: %w", err)
	}
	var data initializeData
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, fmt.Errorf("paystack: initialize: %w: %w", domain.ErrPaymentInitFailed, err)
	}
	if data.AuthorizationURL == "" || data.Reference == "" {
		return nil, fmt.Errorf("paystack: initialize: %w: incomplete checkout data", domain.ErrPaymentInitFailed)
	}
	c.logger.Debug().Str("reference", data.Reference).Msg("paystack: checkout initialized")
	return &Checkout{AuthorizationURL: data.AuthorizationURL, AccessCode: data.AccessCode, Reference: data.Reference}, nil
}

// Verify fetches the transaction for reference. Failures wrap
// domain.ErrPaymentVerificationFailed; a non-success status is not an error.
func (c *Client) Verify(ctx context.Context, reference string) (*Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("paystack: %w: reference is required", domain.ErrPaymentVerificationFailed)
	}
	var data verifyData
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return nil, fmt.Errorf("paystack: verify: %w: %w", domain.ErrPaymentVerificationFailed, err)
	}
	if data.Reference != "" && data.Reference != reference {
		return nil, fmt.Errorf("paystack: verify: %w: reference mismatch", domain.ErrPaymentVerificationFailed)
	}
	c.logger.Debug().Str("reference", reference).Str("status", data.Status).Msg("paystack: transaction verified")
	return &Transaction{
		Reference: reference,
		Status:    data.Status,
		Amount:    data.Amount,
		Currency:  data.Currency,
		PaidAt:    data.PaidAt,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && env.Message != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, env.Message)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if !env.Status {
		return fmt.Errorf("provider rejected request: %s", env.Message)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
