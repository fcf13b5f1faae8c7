package genx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/haivivi/autoppa/pkg/chat"
)

var _ Endpoint = (*OpenAIEndpoint)(nil)

const (
	oaiFinishReasonStop          string = "stop"
	oaiFinishReasonToolCalls     string = "tool_calls"
	oaiFinishReasonLength        string = "length"
	oaiFinishReasonFunctionCall  string = "function_call"
	oaiFinishReasonContentFilter string = "content_filter"

	oaiMaxTextContentLength = 1048576
)

// OpenAIEndpoint streams chat completions from the OpenAI API.
type OpenAIEndpoint struct {
	Client *openai.Client `json:"-"`

	Model string `json:"model"`

	// MaxOutputTokens caps max_completion_tokens when positive.
	MaxOutputTokens int64 `json:"max_output_tokens,omitzero"`

	// ServiceTier selects the processing tier, for example "flex".
	ServiceTier string `json:"service_tier,omitzero"`

	// ReasoningEffort is forwarded to reasoning models: "minimal", "low",
	// "medium" or "high".
	ReasoningEffort string `json:"reasoning_effort,omitzero"`

	// UseSystemRole sends the system prompt with the system role instead of
	// the developer role, for providers that predate developer messages.
	UseSystemRole bool `json:"use_system_role,omitzero"`

	ExtraFields map[string]any `json:"extra_fields,omitzero"`
}

func (e *OpenAIEndpoint) Stream(ctx context.Context, msgs []chat.Message) (EventStream, error) {
	params, err := e.params(msgs)
	if err != nil {
		return nil, err
	}
	return &oaiStream{stream: e.Client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

func (e *OpenAIEndpoint) params(msgs []chat.Message) (openai.ChatCompletionNewParams, error) {
	out, err := e.convMessages(msgs)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Messages: out,
		Model:    e.Model,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: param.NewOpt(true),
		},
	}
	if e.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(e.MaxOutputTokens)
	}
	if e.ServiceTier != "" {
		params.ServiceTier = openai.ChatCompletionNewParamsServiceTier(e.ServiceTier)
	}
	if e.ReasoningEffort != "" {
		params.ReasoningEffort = openai.ReasoningEffort(e.ReasoningEffort)
	}
	if len(e.ExtraFields) > 0 {
		params.SetExtraFields(e.ExtraFields)
	}
	return params, nil
}

func (e *OpenAIEndpoint) convMessages(msgs []chat.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, e.convSystem(m.Content)...)
		case chat.RoleUser, chat.RoleTool:
			// Tool feedback has no tool call to answer, so it travels as a
			// user turn.
			out = append(out, openai.UserMessage(m.Content))
		case chat.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("genx: openai: unexpected role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("genx: openai: no messages")
	}
	return out, nil
}

// convSystem splits long system prompts into several messages; an empty
// prompt produces none.
func (e *OpenAIEndpoint) convSystem(text string) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(text)/oaiMaxTextContentLength+1)
	for len(text) > 0 {
		v := text
		if len(v) > oaiMaxTextContentLength {
			v, text = text[:oaiMaxTextContentLength], text[oaiMaxTextContentLength:]
		} else {
			text = ""
		}
		if e.UseSystemRole {
			out = append(out, openai.SystemMessage(v))
		} else {
			out = append(out, openai.DeveloperMessage(v))
		}
	}
	return out
}

// oaiStream adapts a chat completion chunk stream to events. The finish
// reason arrives before the usage chunk, so the terminal event is held until
// the underlying stream ends.
type oaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]

	pending []Event
	done    bool

	index   int64
	indexed bool
	finish  string
	refusal strings.Builder
	usage   Usage
}

func (s *oaiStream) Next() (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return Event{}, io.EOF
		}
		if !s.stream.Next() {
			s.done = true
			if err := s.stream.Err(); err != nil {
				return Event{}, err
			}
			if ev, ok := s.terminal(); ok {
				return ev, nil
			}
			return Event{}, io.EOF
		}
		s.handle(s.stream.Current())
	}
}

func (s *oaiStream) handle(chunk openai.ChatCompletionChunk) {
	if chunk.Usage.TotalTokens > 0 || chunk.Usage.CompletionTokens > 0 {
		s.usage = oaiConvUsage(&chunk.Usage)
	}
	if len(chunk.Choices) == 0 {
		return
	}
	var sel *openai.ChatCompletionChunkChoice
	if !s.indexed {
		s.index, s.indexed = chunk.Choices[0].Index, true
		sel = &chunk.Choices[0]
	} else {
		for i := range chunk.Choices {
			if chunk.Choices[i].Index == s.index {
				sel = &chunk.Choices[i]
				break
			}
		}
		if sel == nil {
			return
		}
	}
	if t := sel.Delta.Content; t != "" {
		s.pending = append(s.pending, TextDelta(t))
	}
	if r := sel.Delta.Refusal; r != "" {
		s.refusal.WriteString(r)
	}
	if sel.FinishReason != "" {
		s.finish = sel.FinishReason
	}
}

func (s *oaiStream) terminal() (Event, bool) {
	if s.refusal.Len() > 0 {
		return Failed("refusal: " + s.refusal.String()), true
	}
	switch s.finish {
	case oaiFinishReasonStop, oaiFinishReasonToolCalls, oaiFinishReasonFunctionCall:
		return Completed(s.usage), true
	case oaiFinishReasonLength:
		return Incomplete(s.usage, "finish_reason: length"), true
	case oaiFinishReasonContentFilter:
		return Failed("finish_reason: content_filter"), true
	case "":
		return Event{}, false
	default:
		return Failed("finish_reason: " + s.finish), true
	}
}

func (s *oaiStream) Close() error {
	return s.stream.Close()
}

func oaiConvUsage(usage *openai.CompletionUsage) Usage {
	return Usage{
		InputTokens:     usage.PromptTokens,
		CachedTokens:    usage.PromptTokensDetails.CachedTokens,
		OutputTokens:    usage.CompletionTokens,
		ReasoningTokens: usage.CompletionTokensDetails.ReasoningTokens,
	}
}
