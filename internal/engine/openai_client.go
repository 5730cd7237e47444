package engine

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"moontale/internal/config"
	"moontale/internal/interfaces"
)

// Op values routed to different sampling parameters.
const (
	OpChapterBundle  = "chapter_bundle"
	OpRewriteSummary = "rewrite_summary"
)

const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 200
)

// OpenAIClient is the concrete Generator over any chat-completions API. The
// bundle op pins the response format to a JSON object; the summary op asks
// for plain prose.
type OpenAIClient struct {
	client *openai.Client
	cfg    config.OpenAIConfig

	bundleSystem  string
	summarySystem string
}

func NewOpenAIClient(cfg config.OpenAIConfig, bundleSystem, summarySystem string) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client:        openai.NewClientWithConfig(clientCfg),
		cfg:           cfg,
		bundleSystem:  bundleSystem,
		summarySystem: summarySystem,
	}
}

func (c *OpenAIClient) Invoke(ctx context.Context, prompt string, meta interfaces.CallMeta) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: float32(c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.bundleSystem},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	if meta.Op == OpRewriteSummary {
		req.Temperature = summaryTemperature
		req.MaxTokens = summaryMaxTokens
		req.Messages[0].Content = c.summarySystem
		req.ResponseFormat = nil
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &interfaces.GenerationError{Op: meta.Op, Err: err}
	}
	if meta.OnUsage != nil {
		meta.OnUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	if len(resp.Choices) == 0 {
		return "", &interfaces.GenerationError{Op: meta.Op, Err: errNoChoices}
	}
	return resp.Choices[0].Message.Content, nil
}

var errNoChoices = errors.New("empty choices in completion response")
