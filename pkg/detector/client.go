package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config 是 HTTP 检测客户端的配置。
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	// Backoff 是第一次重试前的等待时间，之后每次翻倍。
	Backoff time.Duration
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:5005",
		Timeout:    30 * time.Second,
		RetryCount: 3,
		Backoff:    time.Second,
	}
}

const maxBackoff = 30 * time.Second

// Client 通过 POST {BaseURL}/detect 调用检测服务。
type Client struct {
	httpClient *http.Client
	config     Config
}

var _ Detector = (*Client)(nil)

func NewClient(config Config) *Client {
	if config.Backoff <= 0 {
		config.Backoff = time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
	}
}

type detectRequest struct {
	Image string `json:"image"`
}

type detectResponse struct {
	Faces []Face `json:"faces"`
}

// statusError 携带检测服务返回的 HTTP 状态码。
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("检测服务返回状态 %d: %s", e.code, e.body)
}

func (c *Client) Detect(ctx context.Context, image []byte) ([]Face, error) {
	req := detectRequest{Image: base64.StdEncoding.EncodeToString(image)}

	var resp detectResponse
	if err := c.doRequestWithRetry(ctx, "/detect", req, &resp); err != nil {
		return nil, err
	}
	if resp.Faces == nil {
		resp.Faces = []Face{}
	}
	return resp.Faces, nil
}

// backoff 返回第 attempt 次重试前的等待时间：base, 2*base, 4*base ...，上限 maxBackoff。
func (c *Client) backoff(attempt int) time.Duration {
	d := c.config.Backoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (c *Client) doRequestWithRetry(ctx context.Context, path string, body, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			slog.Warn("检测服务请求失败，准备重试", "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		lastErr = c.doRequest(ctx, path, body, result)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// 4xx 不重试，只有服务端错误和网络错误才重试
		var se *statusError
		if errors.As(lastErr, &se) && se.code < 500 {
			return lastErr
		}
		if errors.Is(lastErr, ErrInvalidResponse) {
			return lastErr
		}
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) doRequest(ctx context.Context, path string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode, body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
