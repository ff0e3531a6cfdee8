package processor

import (
	"context"

	"github.com/MikeSquared-Agency/fleek/internal/anthropic"
	"github.com/MikeSquared-Agency/fleek/internal/session"
	"github.com/MikeSquared-Agency/fleek/internal/textstream"
)

// Anthropic adapts the Messages API client to a Generator.
func Anthropic(c *anthropic.Client) Generator {
	return anthropicGenerator{c}
}

type anthropicGenerator struct {
	client *anthropic.Client
}

func (g anthropicGenerator) Stream(ctx context.Context, system string, history []session.Message, onDelta func(string) error) error {
	msgs := make([]anthropic.Message, len(history))
	for i, m := range history {
		msgs[i] = anthropic.Message{Role: string(m.Role), Content: m.Content}
	}
	return g.client.Stream(ctx, system, msgs, onDelta)
}

// TextStream adapts a plain text backend to a Generator. The backend owns its
// own prompt, so the system prompt is not sent.
func TextStream(c *textstream.Client) Generator {
	return textGenerator{c}
}

type textGenerator struct {
	client *textstream.Client
}

func (g textGenerator) Stream(ctx context.Context, _ string, history []session.Message, onDelta func(string) error) error {
	msgs := make([]textstream.Message, len(history))
	for i, m := range history {
		msgs[i] = textstream.Message{Role: string(m.Role), Content: m.Content}
	}
	return g.client.Stream(ctx, msgs, onDelta)
}
