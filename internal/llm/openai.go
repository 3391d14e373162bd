package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/agui/internal/tokens"
)

// decisionPreamble instructs the model to answer with a single decision
// object the execution phase can parse.
const decisionPreamble = `You are an agent execution planner. Reply with a single JSON object and nothing else, using one of these shapes:
{"actionType":"LLM_CALL","nextPrompt":"...","reasoning":"..."}
{"actionType":"TOOL_CALL","toolName":"...","toolArguments":{...},"reasoning":"..."}
{"actionType":"FINAL_ANSWER","finalAnswer":"...","reasoning":"..."}`

// OpenAI adapts the go-openai chat API to the Client seam.
type OpenAI struct {
	api   *openai.Client
	model string
}

// NewOpenAI builds an adapter for the given API key and default model.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{api: openai.NewClient(apiKey), model: model}
}

// Complete issues a chat completion and maps provider errors into APIError
// so the classifier can inspect status and code.
func (c *OpenAI) Complete(ctx context.Context, prompt string, cfg *CallConfig) (*Completion, error) {
	model := c.model
	maxTokens := 0
	temperature := float32(0)
	if cfg != nil {
		if cfg.Model != "" {
			model = cfg.Model
		}
		maxTokens = cfg.MaxTokens
		temperature = float32(cfg.Temperature)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: decisionPreamble},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &APIError{Status: 500, Message: "empty completion response"}
	}
	choice := resp.Choices[0]
	return &Completion{
		Content:      choice.Message.Content,
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
	}, nil
}

// CountTokens approximates with the engine-wide estimator; exact provider
// tokenization is not needed for budget checks.
func (c *OpenAI) CountTokens(text string) int {
	return tokens.Estimate(text)
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprintf("%v", apiErr.Code)
		}
		return &APIError{
			Status:  apiErr.HTTPStatusCode,
			Code:    code,
			Message: apiErr.Message,
		}
	}
	return err
}
