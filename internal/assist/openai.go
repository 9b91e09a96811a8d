package assist

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "You are a helpful writing assistant that provides feedback and suggestions."

// OpenAI computes suggestions with a chat completion.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = "gpt-4"
	}
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (o *OpenAI) Suggest(ctx context.Context, req Request) (string, error) {
	input := fmt.Sprintf("Please help with this text: %s", req.Text)
	if req.Instruction != "" {
		input += fmt.Sprintf("\nDesired changes: %s", req.Instruction)
	}
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(input),
		},
	})
	if err != nil {
		return "", fmt.Errorf("assist: chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("assist: completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
