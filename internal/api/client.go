package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/godilite/aiticket/internal/api/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 8 << 20
	requestIDHeader    = "X-Request-ID"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	BaseURL string
	// HTTPClient is used for all requests. If nil, a client with a 30s timeout is used.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the ticket backend. It holds no session state: every
// authenticated call takes the bearer token explicitly.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient validates the config and returns a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("api: BaseURL %q must be http or https", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger.Named("api"),
	}, nil
}

// BaseURL returns the normalized backend root. It doubles as the origin
// that scopes durable client state.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping is the liveness probe. Any 2xx means online.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/", "", nil)
	return err
}

// Token exchanges credentials for an access token using the form-encoded
// password grant.
func (c *Client) Token(ctx context.Context, email, password string) (models.TokenResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	body, err := c.do(ctx, http.MethodPost, "/token", "", formBody(form))
	if err != nil {
		return models.TokenResponse{}, err
	}

	var out models.TokenResponse
	if err := decode(body, &out); err != nil {
		return models.TokenResponse{}, fmt.Errorf("api: decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return models.TokenResponse{}, fmt.Errorf("api: token response missing access_token")
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) error {
	_, err := c.do(ctx, http.MethodPost, "/register", "", jsonBody(req))
	return err
}

func (c *Client) Me(ctx context.Context, token string) (models.User, error) {
	var out models.User
	err := c.getJSON(ctx, "/users/me", token, &out)
	return out, err
}

func (c *Client) Predict(ctx context.Context, token, text string) (models.Prediction, error) {
	body, err := c.do(ctx, http.MethodPost, "/predict", token, jsonBody(models.PredictRequest{Text: text}))
	if err != nil {
		return models.Prediction{}, err
	}
	var out models.Prediction
	if err := decode(body, &out); err != nil {
		return models.Prediction{}, fmt.Errorf("api: decode prediction: %w", err)
	}
	return out, nil
}

func (c *Client) ListTickets(ctx context.Context, token string) ([]models.Ticket, error) {
	var out []models.Ticket
	if err := c.getJSON(ctx, "/tickets", token, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Ticket{}
	}
	return out, nil
}

func (c *Client) CreateTicket(ctx context.Context, token string, req models.CreateTicketRequest) (models.Ticket, error) {
	body, err := c.do(ctx, http.MethodPost, "/tickets", token, jsonBody(req))
	if err != nil {
		return models.Ticket{}, err
	}
	var out models.Ticket
	if err := decode(body, &out); err != nil {
		return models.Ticket{}, fmt.Errorf("api: decode created ticket: %w", err)
	}
	return out, nil
}

func (c *Client) ReviewTicket(ctx context.Context, token string, ticketID int64, rating int) error {
	path := "/tickets/" + strconv.FormatInt(ticketID, 10) + "/review"
	_, err := c.do(ctx, http.MethodPost, path, token, jsonBody(models.ReviewRequest{Rating: rating}))
	return err
}

func (c *Client) ListUsers(ctx context.Context, token string) ([]models.User, error) {
	var out []models.User
	if err := c.getJSON(ctx, "/admin/users", token, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path, token string, dest any) error {
	body, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	if err := decode(body, dest); err != nil {
		return fmt.Errorf("api: decode %s: %w", path, err)
	}
	return nil
}

type requestBody struct {
	contentType string
	build       func() (io.Reader, error)
}

func jsonBody(v any) *requestBody {
	return &requestBody{
		contentType: "application/json",
		build: func() (io.Reader, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			return bytes.NewReader(encoded), nil
		},
	}
}

func formBody(values url.Values) *requestBody {
	return &requestBody{
		contentType: "application/x-www-form-urlencoded",
		build: func() (io.Reader, error) {
			return strings.NewReader(values.Encode()), nil
		},
	}
}

// do performs one request. A non-2xx response is returned as *Error; a
// transport failure is wrapped in ErrUnavailable.
func (c *Client) do(ctx context.Context, method, path, token string, body *requestBody) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		r, err := body.build()
		if err != nil {
			return nil, fmt.Errorf("api: encode request body: %w", err)
		}
		reader = r
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("api: create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", body.contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s response: %v", ErrUnavailable, method, path, err)
	}

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	return nil, &Error{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Detail:     parseDetail(respBody),
	}
}

func decode(body []byte, dest any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(body, dest)
}
