// internal/classifier/gateway.go
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"orderbot-workers/internal/common/config"
	"orderbot-workers/internal/common/logger"
	"orderbot-workers/internal/common/metrics"
	"orderbot-workers/internal/models"
)

var (
	ErrClassifierTimeout     = errors.New("CLASSIFIER_TIMEOUT")
	ErrClassifierUnavailable = errors.New("CLASSIFIER_UNAVAILABLE")
)

// Classifier turns a customer message plus catalog context into a raw
// model completion. The pipeline never trusts the completion: parsing
// and validation happen downstream.
type Classifier interface {
	Classify(ctx context.Context, req *Request) (string, error)
}

// Request carries everything the model needs for one classification.
type Request struct {
	TenantID    string
	MessageText string
	Products    []models.Product
	History     []models.IncomingMessage
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string                 `json:"model"`
	Messages       []chatMessage          `json:"messages"`
	MaxTokens      int                    `json:"max_tokens"`
	Temperature    float64                `json:"temperature"`
	ResponseFormat map[string]interface{} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// HTTPGateway calls an OpenAI-compatible chat completions endpoint.
type HTTPGateway struct {
	config *config.ClassifierConfig
	client *http.Client
	logger logger.Logger
}

func NewHTTPGateway(cfg *config.ClassifierConfig, log logger.Logger) *HTTPGateway {
	return &HTTPGateway{
		config: cfg,
		client: &http.Client{
			// Rely only on request context for timeouts
		},
		logger: log.WithFields(map[string]interface{}{
			"component": "classifier",
		}),
	}
}

func (g *HTTPGateway) Classify(ctx context.Context, req *Request) (string, error) {
	started := time.Now()
	completion, err := g.classify(ctx, req)
	metrics.ClassifierDuration.Observe(time.Since(started).Seconds())
	return completion, err
}

func (g *HTTPGateway) classify(ctx context.Context, req *Request) (string, error) {
	systemPrompt := BuildSystemPrompt(req.Products)

	messages := []chatMessage{{Role: "system", Content: systemPrompt}}
	for _, m := range req.History {
		role := "user"
		if m.Direction == models.DirectionOutbound {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: m.Body})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.MessageText})

	payload := chatRequest{
		Model:       g.config.Model,
		Messages:    messages,
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ErrClassifierTimeout
			}
		}

		// A fresh request per attempt: the body reader is consumed on send.
		httpReq, reqErr := http.NewRequestWithContext(ctx, "POST", g.config.BaseURL+"/v1/chat/completions", bytes.NewBuffer(body))
		if reqErr != nil {
			return "", fmt.Errorf("%w: %v", ErrClassifierUnavailable, reqErr)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if g.config.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+g.config.APIKey)
		}

		resp, lastErr = g.client.Do(httpReq)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}

		if ctx.Err() != nil {
			return "", ErrClassifierTimeout
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", ErrClassifierTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrClassifierUnavailable, lastErr)
	}

	if resp == nil {
		return "", fmt.Errorf("%w: no successful response after retries", ErrClassifierUnavailable)
	}
	defer resp.Body.Close()

	var apiResponse chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", fmt.Errorf("%w: decode error: %v", ErrClassifierUnavailable, err)
	}
	if len(apiResponse.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrClassifierUnavailable)
	}

	g.logger.Info("classification completed", map[string]interface{}{
		"tenantId": req.TenantID,
	})

	return apiResponse.Choices[0].Message.Content, nil
}
