package estimator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"sentra/internal/logger"
)

// 中文说明：
// 概率估计服务客户端：把特征向量 POST 给外部推理服务（/predict），
// 取回 [0,1] 区间的上涨概率。服务不可用时由上层回退到中性值。

const (
	defaultTimeout    = 5 * time.Second
	defaultMaxRetries = 2
)

type Client struct {
	baseURL    string
	httpc      *http.Client
	maxRetries int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpc.Timeout = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:      &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PredictProbability 请求一次概率预测，429/5xx 有限重试。
func (c *Client) PredictProbability(ctx context.Context, features []float64) (float64, error) {
	if c.baseURL == "" {
		return 0, fmt.Errorf("estimator base url 未配置")
	}
	if len(features) == 0 {
		return 0, fmt.Errorf("特征向量为空")
	}

	body, _ := json.Marshal(map[string]any{"features": features})
	url := c.baseURL + "/predict"

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
			break
		}
		raw, rerr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode/100 == 2 {
			if rerr != nil {
				return 0, rerr
			}
			return parseProbability(raw)
		}

		msg := strings.TrimSpace(gjson.GetBytes(raw, "error").String())
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("estimator status=%d: %s", resp.StatusCode, msg)

		if retryable(resp.StatusCode) && attempt < c.maxRetries {
			wait := retryAfter(resp.Header.Get("Retry-After"), attempt)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		break
	}
	logger.Debugf("概率估计请求失败: %v", lastErr)
	return 0, lastErr
}

// parseProbability 兼容 {"probability": x} 与 {"result": {"probability": x}} 两种响应。
func parseProbability(raw []byte) (float64, error) {
	p := gjson.GetBytes(raw, "probability")
	if !p.Exists() {
		p = gjson.GetBytes(raw, "result.probability")
	}
	if !p.Exists() {
		return 0, fmt.Errorf("响应缺少 probability 字段: %s", truncate(string(raw), 200))
	}
	v := p.Float()
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("probability 越界: %v", v)
	}
	return v, nil
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryAfter(header string, attempt int) time.Duration {
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	wait := 800 * time.Millisecond << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
