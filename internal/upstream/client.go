// Package upstream implements the REST client for the marketplace API. The
// API is authoritative for every monetary and ordering decision; this client
// only transports requests and normalizes responses into domain types.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/viemarket/storefront/internal/domain"
)

const defaultTimeout = 30 * time.Second

var tracer = otel.Tracer("github.com/viemarket/storefront/internal/upstream")

// TokenSource supplies the bearer token for the current caller. An empty
// string means the caller is unauthenticated.
type TokenSource func(ctx context.Context) string

// Client issues calls against the marketplace API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	token   TokenSource
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient substitutes the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient constructs an API client rooted at baseURL.
func NewClient(baseURL string, token TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout: defaultTimeout,
		token:   token,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cart fetches the caller's cart items.
func (c *Client) Cart(ctx context.Context) ([]domain.CartItem, error) {
	var payload struct {
		Data []domain.WireCartItem `json:"data"`
	}
	if err := c.getJSON(ctx, "/cart", nil, &payload); err != nil {
		return nil, err
	}
	items := make([]domain.CartItem, 0, len(payload.Data))
	for _, w := range payload.Data {
		items = append(items, domain.CartItemFromWire(w))
	}
	return items, nil
}

// Vouchers fetches the caller's available vouchers, normalized and
// deduplicated by (code, shop scope).
func (c *Client) Vouchers(ctx context.Context) ([]domain.Voucher, error) {
	var payload struct {
		Data []domain.WireVoucher `json:"data"`
	}
	if err := c.getJSON(ctx, "/vouchers", nil, &payload); err != nil {
		return nil, err
	}
	vouchers := make([]domain.Voucher, 0, len(payload.Data))
	for _, w := range payload.Data {
		vouchers = append(vouchers, domain.VoucherFromWire(w))
	}
	return domain.DedupVouchers(vouchers), nil
}

// VoucherItem describes one eligible line sent with an apply request.
type VoucherItem struct {
	ShopID    string `json:"shop_id"`
	ProductID string `json:"product_id"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// ApplyVoucherRequest is the validation request for one voucher.
type ApplyVoucherRequest struct {
	Code   string        `json:"code"`
	ShopID *string       `json:"shop_id"`
	Items  []VoucherItem `json:"items"`
}

// ApplyVoucherResult is the authoritative server verdict on a voucher.
type ApplyVoucherResult struct {
	Discount     int64 `json:"discount"`
	FreeShipping bool  `json:"free_shipping"`
}

// ApplyVoucher submits a voucher for server-side validation. The response is
// authoritative: either a definitive discount, or an APIError whose code
// explains the rejection.
func (c *Client) ApplyVoucher(ctx context.Context, req ApplyVoucherRequest) (ApplyVoucherResult, error) {
	ctx, span := tracer.Start(ctx, "upstream.ApplyVoucher", trace.WithAttributes(
		attribute.String("voucher.code", req.Code),
		attribute.Bool("voucher.platform", req.ShopID == nil),
	))
	defer span.End()

	var payload struct {
		Valid        bool  `json:"valid"`
		Discount     int64 `json:"discount"`
		FreeShipping bool  `json:"free_shipping"`
	}
	if err := c.postJSON(ctx, "/vouchers/apply", req, &payload); err != nil {
		span.RecordError(err)
		return ApplyVoucherResult{}, err
	}
	if !payload.Valid {
		return ApplyVoucherResult{}, &APIError{
			Code:    CodeVoucherNotEligible,
			Message: "voucher is not applicable to this order",
			Status:  http.StatusUnprocessableEntity,
		}
	}
	if payload.Discount < 0 {
		payload.Discount = 0
	}
	return ApplyVoucherResult{Discount: payload.Discount, FreeShipping: payload.FreeShipping}, nil
}

// MessagePage is one page of a conversation, oldest first.
type MessagePage struct {
	Messages    []domain.Message
	CurrentPage int
	LastPage    int
}

// HasMore reports whether older pages remain beyond this one.
func (p MessagePage) HasMore() bool { return p.CurrentPage < p.LastPage }

// MessagePage fetches one page of the conversation with the counterpart.
func (c *Client) MessagePage(ctx context.Context, counterpartID string, page, pageSize int) (MessagePage, error) {
	ctx, span := tracer.Start(ctx, "upstream.MessagePage", trace.WithAttributes(
		attribute.Int("chat.page", page),
	))
	defer span.End()

	query := url.Values{}
	query.Set("counterpart_id", counterpartID)
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))

	var payload struct {
		Data        []domain.WireMessage `json:"data"`
		CurrentPage int                  `json:"current_page"`
		LastPage    int                  `json:"last_page"`
	}
	if err := c.getJSON(ctx, "/messages", query, &payload); err != nil {
		span.RecordError(err)
		return MessagePage{}, err
	}

	messages := make([]domain.Message, 0, len(payload.Data))
	for _, w := range payload.Data {
		messages = append(messages, domain.MessageFromWire(w))
	}
	return MessagePage{
		Messages:    messages,
		CurrentPage: payload.CurrentPage,
		LastPage:    payload.LastPage,
	}, nil
}

// Attachment is an image sent alongside a message.
type Attachment struct {
	Filename string
	MIME     string
	Data     []byte
}

// SendMessageRequest carries one outbound message.
type SendMessageRequest struct {
	ReceiverID     string
	Body           string
	Image          *Attachment
	IdempotencyKey string
}

// SendMessage delivers a message as a multipart POST and returns the
// server-confirmed entry.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (domain.Message, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("receiver_id", req.ReceiverID); err != nil {
		return domain.Message{}, fmt.Errorf("upstream: build send payload: %w", err)
	}
	if err := writer.WriteField("message", req.Body); err != nil {
		return domain.Message{}, fmt.Errorf("upstream: build send payload: %w", err)
	}
	if req.Image != nil {
		part, err := writer.CreateFormFile("image", req.Image.Filename)
		if err != nil {
			return domain.Message{}, fmt.Errorf("upstream: build send payload: %w", err)
		}
		if _, err := part.Write(req.Image.Data); err != nil {
			return domain.Message{}, fmt.Errorf("upstream: build send payload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return domain.Message{}, fmt.Errorf("upstream: build send payload: %w", err)
	}

	httpReq, cancel, err := c.newRequest(ctx, http.MethodPost, "/messages", nil, &body)
	if err != nil {
		return domain.Message{}, err
	}
	defer cancel()
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	var payload struct {
		Data domain.WireMessage `json:"data"`
	}
	if err := c.do(httpReq, &payload); err != nil {
		return domain.Message{}, err
	}
	return domain.MessageFromWire(payload.Data), nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dst any) error {
	req, cancel, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer cancel()
	return c.do(req, dst)
}

func (c *Client) postJSON(ctx context.Context, path string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("upstream: marshal request: %w", err)
	}
	req, cancel, err := c.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer cancel()
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dst)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, context.CancelFunc, error) {
	if c.baseURL == "" {
		return nil, nil, errors.New("upstream: base URL not configured")
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.tokenFor(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, cancel, nil
}

func (c *Client) tokenFor(ctx context.Context) string {
	if c.token == nil {
		return ""
	}
	return strings.TrimSpace(c.token(ctx))
}

func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, req.Method, req.URL.Path)
		}
		return fmt.Errorf("upstream: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("upstream: decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &envelope)

	code := strings.TrimSpace(envelope.Error)
	if code == "" {
		if resp.StatusCode == http.StatusUnauthorized {
			code = CodeUnauthorized
		} else {
			code = CodeInternal
		}
	}
	message := strings.TrimSpace(envelope.Message)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &APIError{Code: code, Message: message, Status: resp.StatusCode}
}
