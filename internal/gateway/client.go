package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for gateway failures.
var (
	ErrGatewayUnreachable = errors.New("payment gateway unreachable")
	ErrGatewayResponse    = errors.New("payment gateway error")
	ErrGatewayTimeout     = errors.New("payment gateway timeout")
)

// Client is the subset of the payment gateway API the service relies on.
type Client interface {
	CreatePaymentIntent(ctx context.Context, p CreatePaymentIntentParams) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	CreateCheckoutSession(ctx context.Context, p CreateCheckoutSessionParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
}

// CreatePaymentIntentParams describes a destination charge: AmountCents is collected from the
// payer and TransferAmountCents is routed to Destination.
type CreatePaymentIntentParams struct {
	AmountCents         int64
	Currency            string
	Destination         string
	TransferAmountCents int64
	Description         string
	Metadata            map[string]string
	IdempotencyKey      string
}

// LineItem is one priced row on a hosted checkout page.
type LineItem struct {
	Name        string
	Description string
	AmountCents int64
}

type CreateCheckoutSessionParams struct {
	SuccessURL          string
	CancelURL           string
	Currency            string
	LineItems           []LineItem
	Destination         string
	TransferAmountCents int64
	// IntentMetadata is copied onto the underlying payment intent; Metadata stays on the session.
	IntentMetadata map[string]string
	Metadata       map[string]string
	IdempotencyKey string
}

// HTTPClient implements Client against the gateway's form-encoded REST API.
type HTTPClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewHTTPClient creates a new gateway HTTP client.
func NewHTTPClient(baseURL, secretKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreatePaymentIntent(ctx context.Context, p CreatePaymentIntentParams) (*PaymentIntent, error) {
	form := url.Values{
		"amount":                     {strconv.FormatInt(p.AmountCents, 10)},
		"currency":                   {p.Currency},
		"payment_method_types[]":     {"card"},
		"capture_method":             {"automatic"},
		"transfer_data[destination]": {p.Destination},
		"transfer_data[amount]":      {strconv.FormatInt(p.TransferAmountCents, 10)},
	}
	if p.Description != "" {
		form.Set("description", p.Description)
	}
	setMetadata(form, "metadata", p.Metadata)

	var pi PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, p.IdempotencyKey, &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

func (c *HTTPClient) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	var pi PaymentIntent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil, "", &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

func (c *HTTPClient) CreateCheckoutSession(ctx context.Context, p CreateCheckoutSessionParams) (*CheckoutSession, error) {
	form := url.Values{
		"mode":                    {"payment"},
		"success_url":             {p.SuccessURL},
		"cancel_url":              {p.CancelURL},
		"payment_method_types[]":  {"card"},
		"payment_intent_data[transfer_data][destination]": {p.Destination},
		"payment_intent_data[transfer_data][amount]":      {strconv.FormatInt(p.TransferAmountCents, 10)},
	}
	for i, item := range p.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", p.Currency)
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
		if item.Description != "" {
			form.Set(prefix+"[price_data][product_data][description]", item.Description)
		}
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.AmountCents, 10))
		form.Set(prefix+"[quantity]", "1")
	}
	setMetadata(form, "payment_intent_data[metadata]", p.IntentMetadata)
	setMetadata(form, "metadata", p.Metadata)

	var s CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, p.IdempotencyKey, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	path := "/v1/checkout/sessions/" + url.PathEscape(id) + "?expand[]=payment_intent"
	var s CheckoutSession
	if err := c.do(ctx, http.MethodGet, path, nil, "", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if method == http.MethodPost {
		if idempotencyKey == "" {
			idempotencyKey = uuid.NewString()
		}
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding gateway response: %w", err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
}

func setMetadata(form url.Values, prefix string, md map[string]string) {
	for k, v := range md {
		form.Set(prefix+"["+k+"]", v)
	}
}

// responseError reads the gateway's error envelope into an ErrGatewayResponse.
func responseError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("%w: status %d: %s", ErrGatewayResponse, resp.StatusCode, envelope.Error.Message)
	}
	return fmt.Errorf("%w: status %d", ErrGatewayResponse, resp.StatusCode)
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
