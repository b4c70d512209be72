// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"golang.org/x/time/rate"

	"github.com/pdiddy/paper-pipeline/internal/relevance"
)

// EinoCompleter adapts an eino chat model to Completer.
type EinoCompleter struct {
	Model      model.BaseChatModel
	Limiter    *rate.Limiter
	MaxRetries int
}

// Complete runs one chat completion.
func (c *EinoCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	return relevance.Generate(ctx, c.Model, c.Limiter, c.MaxRetries, system, user)
}
