package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
)

const splitSystemPrompt = "You deduplicate news event mentions. You compare event names and decide whether they describe the same real-world event. You answer with JSON only."

const pairSystemPrompt = "You track news stories over time. You decide whether a new day's coverage belongs to an event already being tracked. You answer with JSON only."

// OpenAIClassifier implements the Classifier interface using the OpenAI chat
// completions API.
type OpenAIClassifier struct {
	client    *openai.Client
	model     string
	timeout   time.Duration
	maxTokens int
}

// NewClassifier creates a classifier based on configuration. An empty
// provider returns (nil, nil): classification disabled, callers apply their
// fail-safe defaults everywhere.
func NewClassifier(cfg model.ClassifierConfig) (Classifier, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIClassifier(cfg)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown classifier provider: %s (supported: openai)", cfg.Provider)
	}
}

// NewOpenAIClassifier creates a new OpenAI classifier.
func NewOpenAIClassifier(cfg model.ClassifierConfig) (*OpenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	chatModel := cfg.Model
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 500
	}

	return &OpenAIClassifier{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     chatModel,
		timeout:   timeout,
		maxTokens: maxTokens,
	}, nil
}

// Name returns the provider name.
func (c *OpenAIClassifier) Name() string {
	return "openai"
}

// SplitCluster submits a same/different-event question for a set of names.
// Every failure mode, including timeout, is tagged SplitFailed.
func (c *OpenAIClassifier) SplitCluster(ctx context.Context, names []string) SplitResult {
	if len(names) < 2 {
		return SplitResult{Outcome: SplitUnchanged}
	}

	raw, err := c.complete(ctx, splitSystemPrompt, buildSplitPrompt(names))
	if err != nil {
		return SplitResult{Outcome: SplitFailed, Err: err}
	}

	result, err := parseSplitResponse(raw, len(names))
	if err != nil {
		return SplitResult{Outcome: SplitFailed, Err: err}
	}
	return result
}

// JudgePair submits a pairwise same-event question.
func (c *OpenAIClassifier) JudgePair(ctx context.Context, q PairQuestion) (PairJudgment, error) {
	raw, err := c.complete(ctx, pairSystemPrompt, buildPairPrompt(q))
	if err != nil {
		return PairJudgment{}, err
	}
	return parsePairResponse(raw)
}

func (c *OpenAIClassifier) complete(ctx context.Context, system, user string) (string, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctxWithTimeout, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
