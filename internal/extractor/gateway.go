package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"interview-processor-go/internal/apperr"
)

type GatewayConfig struct {
	URL          string
	APIKey       string
	Model        string
	HTTPTimeout  time.Duration
	MaxRetryTime time.Duration
}

// Gateway talks to an OpenAI-compatible chat completion endpoint.
type Gateway struct {
	cfg    GatewayConfig
	client *http.Client
	log    *logrus.Entry
}

func NewGateway(cfg GatewayConfig, log *logrus.Entry) *Gateway {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	if cfg.MaxRetryTime <= 0 {
		cfg.MaxRetryTime = 45 * time.Second
	}
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		log:    log.WithField("component", "llm-gateway"),
	}
}

func (g *Gateway) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if g.cfg.URL == "" || g.cfg.APIKey == "" {
		return "", apperr.Service("llm-gateway", "Complete", fmt.Errorf("llm gateway not configured"))
	}
	reqBody := map[string]any{
		"model": g.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"top_p":       req.TopP,
	}
	data, _ := json.Marshal(reqBody)
	g.log.WithField("payload_len", len(data)).Debug("llm request")

	var content string
	var lastErr error

	// LLM call with retry/backoff
	op := func() error {
		httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(data))
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(httpReq)
		if err != nil {
			lastErr = err
			g.log.WithField("error", err.Error()).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		g.log.WithField("http_status", resp.StatusCode).Debug("llm raw response received")

		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("llm gateway returned %d: %s", resp.StatusCode, truncate(string(body), 300))
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				// Permanent: don't retry on client errors
				return backoff.Permanent(lastErr)
			}
			return lastErr
		}

		content = extractContentFromChoices(body)
		if content == "" {
			lastErr = fmt.Errorf("no content in llm response")
			return lastErr
		}
		lastErr = nil
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = g.cfg.MaxRetryTime

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return "", apperr.Service("llm-gateway", "Complete", lastErr)
	}
	return content, nil
}
