package sentiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.ChatModelGPT4oMini

// ErrNoScoreReturned is returned when the model reply contains no usable number.
var ErrNoScoreReturned = errors.New("model returned no sentiment score")

const scoringPrompt = "You rate the sentiment of the user's message. " +
	"Reply with a single number between 0 and 1, where 0 is very negative and 1 is very positive. " +
	"Reply with the number only."

// chatService is the subset of the OpenAI chat completion service used here.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIScorer asks a chat model for a sentiment score.
type OpenAIScorer struct {
	chat  chatService
	model openai.ChatModel
}

// NewOpenAIScorer creates a scorer using the given API key and model.
func NewOpenAIScorer(apiKey, model string) (*OpenAIScorer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	s := &OpenAIScorer{chat: &cli.Chat.Completions, model: DefaultOpenAIModel}
	if model != "" {
		s.model = openai.ChatModel(model)
	}
	slog.Debug("OpenAIScorer configured", "model", s.model)
	return s, nil
}

// Score asks the model for a number in [0,1] and clamps the reply into that range.
func (s *OpenAIScorer) Score(ctx context.Context, text string) (float64, error) {
	resp, err := s.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(scoringPrompt),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		slog.Error("OpenAIScorer.Score: completion failed", "error", err)
		return 0, fmt.Errorf("sentiment completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return 0, ErrNoScoreReturned
	}
	return parseScore(resp.Choices[0].Message.Content)
}

// parseScore extracts the first number in a model reply.
func parseScore(content string) (float64, error) {
	for _, field := range strings.Fields(content) {
		field = strings.Trim(field, " \t\n.,;:\"'`")
		v, err := strconv.ParseFloat(field, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		return math.Min(1, math.Max(0, v)), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrNoScoreReturned, content)
}
