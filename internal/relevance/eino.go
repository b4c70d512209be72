// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/pdiddy/paper-pipeline/internal/logger"
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

const classifierSystemPrompt = "You are a rigorous assistant that screens academic papers for relevance."

// RetryBaseDelay is the first backoff after a rate-limited call. Tests
// override it.
var RetryBaseDelay = 2 * time.Second

// EinoClassifier calls an OpenAI-compatible chat model. One limiter is
// shared by every call made through the classifier.
type EinoClassifier struct {
	Model        model.BaseChatModel
	SystemPrompt string
	Limiter      *rate.Limiter
	MaxRetries   int
}

// NewChatModel builds the OpenAI-compatible chat model described by cfg.
func NewChatModel(ctx context.Context, cfg types.LLMConfig) (model.BaseChatModel, error) {
	temp := cfg.Temperature
	maxTokens := cfg.MaxTokens
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing chat model: %w", err)
	}
	return cm, nil
}

// NewLimiter returns a limiter for requestsPerMinute, or nil when the rate is
// unbounded.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
}

// NewEinoClassifier wires a chat model and limiter from cfg.
func NewEinoClassifier(ctx context.Context, cfg types.LLMConfig) (*EinoClassifier, error) {
	cm, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &EinoClassifier{
		Model:      cm,
		Limiter:    NewLimiter(cfg.RequestsPerMinute),
		MaxRetries: cfg.MaxRetries,
	}, nil
}

// Classify sends prompt as the user message. Rate-limit errors are retried
// with exponential backoff; any other error is returned at once.
func (c *EinoClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	system := c.SystemPrompt
	if system == "" {
		system = classifierSystemPrompt
	}
	return Generate(ctx, c.Model, c.Limiter, c.MaxRetries, system, prompt)
}

// Generate runs one chat completion with rate limiting and retry on
// rate-limit errors. It is shared with the keyword generator.
func Generate(ctx context.Context, cm model.BaseChatModel, limiter *rate.Limiter, maxRetries int, system, user string) (string, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		resp, err := cm.Generate(ctx, messages)
		if err == nil {
			return resp.Content, nil
		}
		if !isRateLimited(err) || attempt == maxRetries {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		lastErr = err

		delay := RetryBaseDelay * time.Duration(1<<attempt)
		logger.Log.WithField("attempt", attempt+1).Warnf("rate limited by LLM endpoint, retrying in %s", delay)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", fmt.Errorf("chat completion: %w", lastErr)
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit")
}
