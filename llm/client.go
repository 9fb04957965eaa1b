package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"

	"github.com/aluiziolira/go-ring-crawler/fetcher"
	"github.com/aluiziolira/go-ring-crawler/models"
)

// Client extracts candidates through a chat-completion endpoint.
type Client struct {
	cfg       Config
	openai    openai.Client
	anthropic anthropic.Client
}

// NewClient validates cfg and returns a client. A nil httpClient gets a
// two-minute timeout. Failed calls are not retried.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL(cfg.Provider)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	c := &Client{cfg: cfg}
	switch cfg.Provider {
	case ProviderAnthropic:
		c.anthropic = anthropic.NewClient(
			anthropicoption.WithAPIKey(cfg.APIKey),
			anthropicoption.WithBaseURL(cfg.BaseURL),
			anthropicoption.WithHTTPClient(httpClient),
			anthropicoption.WithMaxRetries(0),
		)
	default:
		c.openai = openai.NewClient(
			openaioption.WithAPIKey(cfg.APIKey),
			openaioption.WithBaseURL(cfg.BaseURL),
			openaioption.WithHTTPClient(httpClient),
			openaioption.WithMaxRetries(0),
		)
	}
	return c, nil
}

// Config returns the client's configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Extract sends text to the model in chunks and merges the candidates in
// chunk order. A chunk whose call or reply fails is skipped; the error is
// returned only when every chunk failed.
func (c *Client) Extract(ctx context.Context, text, instruction string) (models.Extraction, error) {
	var out models.Extraction
	chunks := chunkText(text, c.cfg.ChunkTokens, c.cfg.Overlap)
	if len(chunks) == 0 {
		return out, nil
	}
	if instruction == "" {
		instruction = ListingInstruction
	}

	var errs []error
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		reply, usage, err := c.complete(ctx, systemPrompt(instruction), chunk)
		if err != nil {
			slog.Warn("llm chunk failed",
				slog.Int("chunk", i+1),
				slog.Int("chunks", len(chunks)),
				slog.Any("error", err),
			)
			errs = append(errs, err)
			continue
		}
		out.Usage.Add(usage)
		out.Candidates = append(out.Candidates, decodeCandidates(reply)...)
	}
	if len(errs) == len(chunks) {
		return out, fmt.Errorf("llm extract: %w", errors.Join(errs...))
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, models.TokenUsage, error) {
	if c.cfg.Provider == ProviderAnthropic {
		return c.completeAnthropic(ctx, system, user)
	}
	return c.completeOpenAI(ctx, system, user)
}

func (c *Client) completeOpenAI(ctx context.Context, system, user string) (string, models.TokenUsage, error) {
	resp, err := c.openai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.cfg.Temperature),
		MaxTokens:   openai.Int(int64(c.cfg.MaxTokens)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", models.TokenUsage{}, fetcher.Classify(err, apiErr.StatusCode)
		}
		return "", models.TokenUsage{}, fetcher.Classify(err, 0)
	}
	if len(resp.Choices) == 0 {
		return "", models.TokenUsage{}, fmt.Errorf("openai: empty choices")
	}
	usage := models.TokenUsage{
		Calls:            1,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func (c *Client) completeAnthropic(ctx context.Context, system, user string) (string, models.TokenUsage, error) {
	msg, err := c.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   int64(c.cfg.MaxTokens),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
		Temperature: anthropic.Float(c.cfg.Temperature),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", models.TokenUsage{}, fetcher.Classify(err, apiErr.StatusCode)
		}
		return "", models.TokenUsage{}, fetcher.Classify(err, 0)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	usage := models.TokenUsage{
		Calls:            1,
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}
	return text.String(), usage, nil
}
