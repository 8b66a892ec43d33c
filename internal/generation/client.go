package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied by NewClient.
const (
	DefaultBaseURL    = "https://api.openai.com"
	DefaultModel      = "gpt-4o-mini"
	DefaultTimeout    = 120 * time.Second
	DefaultMaxRetries = 2

	responsesPath  = "/v1/responses"
	maxErrorBody   = 2 << 10
	maxRetrySleep  = 10 * time.Second
	initialBackoff = time.Second
)

// Config configures an HTTP Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration // per attempt
	MaxRetries  int
	Temperature float64
	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client is a Gateway backed by an OpenAI-compatible Responses endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxRetries  int
	httpClient  *http.Client

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient validates cfg and applies defaults.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("generation: missing API key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		httpClient:  hc,
		sleep:       sleepCtx,
	}, nil
}

type inputItem struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type responsesRequest struct {
	Model       string      `json:"model"`
	Input       []inputItem `json:"input"`
	Temperature float64     `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

// Generate sends req and returns the assistant's text.
func (c *Client) Generate(ctx context.Context, req Request) (text string, err error) {
	start := time.Now()
	defer func() { observe(Classify(err), time.Since(start)) }()

	body := responsesRequest{Model: c.model, Temperature: c.temperature}
	if s := strings.TrimSpace(req.System); s != "" {
		body.Input = append(body.Input, inputItem{Role: "system", Content: s})
	}
	body.Input = append(body.Input, inputItem{Role: "user", Content: userContent(req)})

	var resp responsesResponse
	if err := c.do(ctx, body, &resp); err != nil {
		return "", err
	}
	if resp.Refusal != "" {
		return "", &UpstreamError{StatusCode: http.StatusOK, Message: "model refused: " + resp.Refusal}
	}
	text = extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyOutput
	}
	return text, nil
}

// userContent is a plain string, or input_text + input_image parts when
// media is attached.
func userContent(req Request) any {
	parts := make([]map[string]any, 0, 1+len(req.Media))
	parts = append(parts, map[string]any{"type": "input_text", "text": req.Prompt})
	for _, u := range req.Media {
		if u = strings.TrimSpace(u); u != "" {
			parts = append(parts, map[string]any{"type": "input_image", "image_url": u})
		}
	}
	if len(parts) == 1 {
		return req.Prompt
	}
	return parts
}

func (c *Client) doOnce(ctx context.Context, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+responsesPath, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return resp, raw, &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
	}
	return resp, raw, nil
}

func (c *Client) do(ctx context.Context, body, out any) error {
	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, raw, err := c.doOnce(ctx, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("generation decode error: %w", uErr)
			}
			return nil
		}
		if attempt >= c.maxRetries || !retryable(ctx, err) {
			return err
		}

		wait := jitter(retryAfter(resp, backoff, maxRetrySleep))
		retries.Inc()
		zerolog.Ctx(ctx).Warn().
			Int("attempt", attempt+1).
			Int("max_retries", c.maxRetries).
			Dur("sleep", wait).
			Err(err).
			Msg("generation request retrying")

		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
		backoff *= 2
	}
}

// retryable reports whether err is transient. Cancellation or expiry of the
// caller's own context is never retried.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var up *UpstreamError
	if errors.As(err, &up) {
		code := up.StatusCode
		return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func retryAfter(resp *http.Response, fallback, max time.Duration) time.Duration {
	d := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				d = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

// jitter spreads d by +/-20%.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	delta := float64(d) * 0.2
	return time.Duration(float64(d) - delta + rand.Float64()*2*delta)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
