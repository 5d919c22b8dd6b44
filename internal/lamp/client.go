package lamp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

// maxErrorBody caps how much of a failed response is kept on APIError.
const maxErrorBody = 4096

// APIError represents a non-2xx response from the lamp API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("lamp api %s %s: %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Client talks to the lamp's REST API. Failures are returned as errors;
// nothing is synthesized in their place.
type Client struct {
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.Named("lamp-api")
	}
}

// NewClient creates a client for the API rooted at baseURL, e.g.
// http://192.168.4.1/api.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = 10 * time.Second

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		validate:   validator.New(),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchStatus returns the current lamp status.
func (c *Client) FetchStatus(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, "/lamp/status", nil, &status); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(status); err != nil {
		return nil, fmt.Errorf("invalid status response: %w", err)
	}
	return &status, nil
}

// FetchSensorData returns the light and energy series.
func (c *Client) FetchSensorData(ctx context.Context) (*SensorData, error) {
	var data SensorData
	if err := c.do(ctx, http.MethodGet, "/lamp/sensor-data", nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Toggle switches the lamp on or off.
func (c *Client) Toggle(ctx context.Context, on bool) error {
	return c.do(ctx, http.MethodPost, "/lamp/toggle", toggleRequest{IsOn: on}, nil)
}

// SetBrightness sets brightness on the 0..255 scale.
func (c *Client) SetBrightness(ctx context.Context, brightness int) error {
	req := brightnessRequest{Brightness: brightness}
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid brightness %d: %w", brightness, err)
	}
	return c.do(ctx, http.MethodPost, "/lamp/brightness", req, nil)
}

// SetColor sets the lamp color as #RRGGBB.
func (c *Client) SetColor(ctx context.Context, color string) error {
	req := colorRequest{Color: color}
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid color %q: %w", color, err)
	}
	return c.do(ctx, http.MethodPost, "/lamp/color", req, nil)
}

func (c *Client) ListSchedules(ctx context.Context) ([]Schedule, error) {
	var schedules []Schedule
	if err := c.do(ctx, http.MethodGet, "/schedules", nil, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

// CreateSchedule stores a new schedule and returns it with its assigned ID.
func (c *Client) CreateSchedule(ctx context.Context, schedule Schedule) (*Schedule, error) {
	schedule.ID = ""
	if err := c.validate.Struct(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	var created Schedule
	if err := c.do(ctx, http.MethodPost, "/schedules", schedule, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateSchedule(ctx context.Context, schedule Schedule) (*Schedule, error) {
	if schedule.ID == "" {
		return nil, fmt.Errorf("schedule id is required")
	}
	if err := c.validate.Struct(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	var updated Schedule
	if err := c.do(ctx, http.MethodPut, "/schedules/"+url.PathEscape(schedule.ID), schedule, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("schedule id is required")
	}
	return c.do(ctx, http.MethodDelete, "/schedules/"+url.PathEscape(id), nil, nil)
}

// do sends body as JSON (when non-nil) and decodes a JSON response into
// result (when non-nil). Empty 2xx bodies are accepted.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Lamp API request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Lamp API request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: data}
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
