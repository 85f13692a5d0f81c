package provider

import (
	"context"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/theapemachine/recall/pkg/memory"
)

/*
AnthropicGenerator produces grounded answers through the messages API.
Anthropic has no embedding endpoint, so this backend only generates.
*/
type AnthropicGenerator struct {
	api anthropic.Client
}

type AnthropicGeneratorOption func(*AnthropicGenerator)

func NewAnthropicGenerator(options ...AnthropicGeneratorOption) *AnthropicGenerator {
	generator := &AnthropicGenerator{
		api: anthropic.NewClient(option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY"))),
	}

	for _, option := range options {
		option(generator)
	}

	return generator
}

func (g *AnthropicGenerator) Complete(
	ctx context.Context, systemPrompt, userPrompt string, params memory.GenerationParams,
) (*memory.Completion, error) {
	resp, err := g.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(params.Model),
		MaxTokens:   params.MaxTokens,
		Temperature: anthropic.Float(params.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, err
	}

	var text string
	for _, block := range resp.Content {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += textBlock.Text
		}
	}

	return &memory.Completion{
		Text:       text,
		TokensUsed: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}, nil
}

func WithAnthropicGeneratorClient(client *anthropic.Client) AnthropicGeneratorOption {
	return func(g *AnthropicGenerator) {
		g.api = *client
	}
}
