package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	name   string
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. apiBase may be empty for the
// official endpoint; defaultModel is used when the request leaves Model
// unset.
func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if apiBase != "" {
		cfg.BaseURL = apiBase
	}
	return &OpenAIProvider{
		name:   name,
		client: openai.NewClientWithConfig(cfg),
		model:  defaultModel,
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

// Chat performs a whole (non-streamed) completion.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.toRequest(req))
	if err != nil {
		return nil, p.wrapErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ClientError{Provider: p.name, Err: errors.New("response has no choices")}
	}

	choice := resp.Choices[0]
	out := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// ChatStream performs a streamed completion, merging tool-call deltas by
// index so that argument fragments reassemble in order.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	oreq := p.toRequest(req)
	oreq.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, oreq)
	if err != nil {
		return nil, p.wrapErr(err)
	}
	defer stream.Close()

	var content string
	var finish string
	calls := make(map[int]*ToolCall)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, p.wrapErr(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finish = string(choice.FinishReason)
		}
		if choice.Delta.Content != "" {
			content += choice.Delta.Content
			if onChunk != nil {
				onChunk(StreamChunk{Content: choice.Delta.Content})
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			cur, ok := calls[idx]
			if !ok {
				cur = &ToolCall{}
				calls[idx] = cur
			}
			if tc.ID != "" {
				cur.ID = tc.ID
			}
			if tc.Function.Name != "" {
				cur.Name = tc.Function.Name
			}
			cur.Arguments += tc.Function.Arguments
		}
	}
	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}

	out := &ChatResponse{Content: content, FinishReason: finish}
	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		out.ToolCalls = append(out.ToolCalls, *calls[i])
	}
	return out, nil
}

func (p *OpenAIProvider) toRequest(req ChatRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}

	out := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, toOpenAIMessages(m)...)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if len(out.Tools) > 0 {
		out.ToolChoice = "auto"
	}
	return out
}

// toOpenAIMessages converts one neutral message. Tool results that carry a
// screenshot expand into two wire messages: the tool message (text only,
// per the chat completions API) followed by a user message holding the
// image part, so the model still sees pixels in transcript order.
func toOpenAIMessages(m Message) []openai.ChatCompletionMessage {
	switch m.Role {
	case RoleAssistant:
		out := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: m.Content,
		}
		for _, tc := range m.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return []openai.ChatCompletionMessage{out}

	case RoleTool:
		content := m.Content
		if content == "" {
			content = "(no output)"
		}
		msgs := []openai.ChatCompletionMessage{{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
			Content:    content,
		}}
		if len(m.ImagePNG) > 0 {
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Screenshot from tool call " + m.ToolCallID + ":",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(m.ImagePNG),
						},
					},
				},
			})
		}
		return msgs

	default:
		return []openai.ChatCompletionMessage{{
			Role:    string(m.Role),
			Content: m.Content,
		}}
	}
}

func (p *OpenAIProvider) wrapErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		slog.Debug("model API error", "provider", p.name, "status", apiErr.HTTPStatusCode, "type", apiErr.Type)
		return &ClientError{Provider: p.name, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ClientError{Provider: p.name, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return &ClientError{Provider: p.name, Err: err}
}
