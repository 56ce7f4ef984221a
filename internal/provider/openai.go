package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

const systemPrompt = "You are the AqlHR assistant for HR professionals in Saudi Arabia. " +
	"Answer precisely and concisely. If labor law or GOSI rules apply, say which."

// OpenAICompatible - клиент любого OpenAI-совместимого Chat Completions API
// (OpenAI, DeepSeek, шлюзы совместимости Anthropic и др.)
type OpenAICompatible struct {
	id       domain.ProviderID
	client   *openai.Client
	model    string
	logProbs bool
}

type OpenAIOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	LogProbs   bool // уверенность по logprobs, если провайдер их поддерживает
	HTTPClient *http.Client
}

func NewOpenAICompatible(id domain.ProviderID, opts OpenAIOptions) *OpenAICompatible {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &OpenAICompatible{
		id:       id,
		client:   openai.NewClientWithConfig(cfg),
		model:    opts.Model,
		logProbs: opts.LogProbs,
	}
}

func (p *OpenAICompatible) ID() domain.ProviderID { return p.id }

func (p *OpenAICompatible) Complete(ctx context.Context, req Request) (Completion, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: buildMessages(req),
		LogProbs: p.logProbs,
	})
	if err != nil {
		return Completion{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, ErrEmptyCompletion
	}

	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return Completion{}, ErrEmptyCompletion
	}

	if resp.Model != "" {
		model = resp.Model
	}
	return Completion{
		Text:       text,
		Model:      model,
		Confidence: confidence(choice),
	}, nil
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	if c := req.Context; c.ModuleContext != "" || c.PageType != "" || c.Intent != "" {
		fmt.Fprintf(&sb, "\nContext: module=%q page=%q intent=%q.", c.ModuleContext, c.PageType, c.Intent)
	}
	if strings.HasPrefix(strings.ToLower(req.Context.Language), "ar") {
		sb.WriteString("\nRespond in Arabic.")
	}

	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: sb.String()},
		{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
	}
}

// confidence: exp(среднего logprob токенов) - геометрическое среднее вероятностей.
// Без logprobs оцениваем по причине остановки генерации.
func confidence(choice openai.ChatCompletionChoice) float64 {
	if lp := choice.LogProbs; lp != nil && len(lp.Content) > 0 {
		var sum float64
		for _, t := range lp.Content {
			sum += t.LogProb
		}
		return clamp01(math.Exp(sum / float64(len(lp.Content))))
	}

	switch choice.FinishReason {
	case openai.FinishReasonStop:
		return 0.8
	case openai.FinishReasonLength:
		return 0.5
	case openai.FinishReasonContentFilter:
		return 0.1
	default:
		return 0.6
	}
}

// classify переводит ошибки go-openai в ошибки, понятные ReliabilityWrapper
func classify(err error) error {
	var status int
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return err
	}

	if status == http.StatusTooManyRequests {
		return &ThrottleError{RetryAfter: time.Second, Cause: err}
	}
	return &StatusError{StatusCode: status, Cause: err}
}
