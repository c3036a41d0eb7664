// Package client provides a Go client for the chatrelay HTTP API, including
// the bounded polling loop used to wait for a worker response.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Polling defaults: wait 2 seconds after submitting, then poll every
// 2 seconds for up to 30 attempts (~60 second window).
const (
	DefaultInitialDelay = 2 * time.Second
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 30
)

// Upload is an optional binary attachment for a submission.
type Upload struct {
	Filename string
	MimeType string
	Data     []byte
}

// SubmitResult echoes what the server accepted.
type SubmitResult struct {
	MessageID   string    `json:"messageId"`
	HasImage    bool      `json:"hasImage"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Response is a worker reply as returned by the resolution endpoint.
type Response struct {
	Text      string    `json:"text"`
	Image     string    `json:"image,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Resolution is the resolution endpoint's response state.
type Resolution struct {
	MessageID         string     `json:"messageId"`
	HasResponse       bool       `json:"hasResponse"`
	Response          *Response  `json:"response"`
	ResponseTimestamp *time.Time `json:"responseTimestamp,omitempty"`
}

type submitEnvelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    SubmitResult `json:"data"`
}

type resolutionEnvelope struct {
	Success bool       `json:"success"`
	Data    Resolution `json:"data"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to a chatrelay server.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	initialDelay time.Duration
	pollInterval time.Duration
	maxAttempts  int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPolling overrides the polling schedule.
func WithPolling(initialDelay, interval time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		c.initialDelay = initialDelay
		c.pollInterval = interval
		c.maxAttempts = maxAttempts
	}
}

// New creates a client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		initialDelay: DefaultInitialDelay,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends a message with optional text and image.
func (c *Client) Submit(ctx context.Context, description string, image *Upload) (*SubmitResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if description != "" {
		if err := writer.WriteField("description", description); err != nil {
			return nil, fmt.Errorf("failed to write description field: %w", err)
		}
	}

	if image != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="image"; filename="%s"`, image.Filename))
		header.Set("Content-Type", image.MimeType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("failed to create image part: %w", err)
		}
		if _, err := part.Write(image.Data); err != nil {
			return nil, fmt.Errorf("failed to write image data: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	var envelope submitEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode submit response: %w", err)
	}
	return &envelope.Data, nil
}

// GetResponse fetches the current resolution state for a message ID.
func (c *Client) GetResponse(ctx context.Context, messageID string) (*Resolution, error) {
	url := fmt.Sprintf("%s/api/response/%s", c.baseURL, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	var envelope resolutionEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode resolution response: %w", err)
	}
	return &envelope.Data, nil
}

// AwaitResponse polls the resolution endpoint until a response arrives or
// the attempt budget is exhausted. Exhausting the budget is not an error:
// it returns (nil, nil), mirroring the best-effort timeout of the UI.
// Context cancellation aborts early with the context error.
func (c *Client) AwaitResponse(ctx context.Context, messageID string) (*Response, error) {
	if err := sleepCtx(ctx, c.initialDelay); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		resolution, err := c.GetResponse(ctx, messageID)
		if err != nil {
			return nil, err
		}
		if resolution.HasResponse {
			return resolution.Response, nil
		}

		if err := sleepCtx(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}

	return nil, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Message)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
