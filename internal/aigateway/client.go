// Package aigateway is a client for the hosted chat-completions gateway.
package aigateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"bizgrow/pkg/circuitbreaker"
	"bizgrow/pkg/config"
	"bizgrow/pkg/logger"
	"bizgrow/pkg/metrics"
	"bizgrow/pkg/otel"
	"bizgrow/pkg/trace"
)

const (
	DefaultURL   = "https://ai.gateway.lovable.dev/v1/chat/completions"
	DefaultModel = "google/gemini-2.5-flash"
)

var (
	ErrRateLimited   = errors.New("ai gateway: rate limited")
	ErrQuotaExceeded = errors.New("ai gateway: credits depleted")
	ErrMissingAPIKey = errors.New("AI gateway API key not configured")
	ErrEmptyResponse = errors.New("ai gateway: response has no choices")
)

// GatewayError 网关返回的其它非 2xx 响应
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("AI Gateway returned %d", e.StatusCode)
}

func (e *GatewayError) Retryable() bool {
	return e.StatusCode >= 500
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type Client struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(cfg config.AIGatewayConfig, logger *zap.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cb: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold:    5,
			SuccessThreshold:    2,
			Timeout:             30 * time.Second,
			HalfOpenMaxRequests: 2,
		}),
		logger: logger,
	}
}

// Complete 发送一次对话补全，返回第一个 choice 的内容。function 仅用于指标和日志。
func (c *Client) Complete(ctx context.Context, function string, messages []Message, temperature float64) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	ctx, span := otel.StartSpan(ctx, "aigateway."+function)
	defer span.End()
	log := logger.WithTrace(ctx, c.logger).With(zap.String("function", function))

	var content string
	err := c.cb.Execute(func() error {
		var callErr error
		content, callErr = c.do(ctx, function, messages, temperature)
		return callErr
	}, isCallerError)
	if err != nil {
		span.RecordError(err)
		log.Error("AI gateway call failed", zap.Error(err))
		return "", err
	}

	log.Debug("AI gateway response", zap.Int("content_length", len(content)))
	return content, nil
}

func (c *Client) do(ctx context.Context, function string, messages []Message, temperature float64) (string, error) {
	start := time.Now()
	b, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set(trace.HeaderName, traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAIGatewayLatency(function, "error", time.Since(start))
		return "", err
	}
	defer resp.Body.Close()
	metrics.RecordAIGatewayLatency(function, strconv.Itoa(resp.StatusCode), time.Since(start))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode == http.StatusPaymentRequired:
		return "", ErrQuotaExceeded
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &GatewayError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

// isCallerError 限流和额度不足不代表网关故障，不计入熔断
func isCallerError(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrQuotaExceeded)
}
