package genx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"

	"github.com/haivivi/autoppa/pkg/chat"
)

var _ Endpoint = (*GeminiEndpoint)(nil)

// GeminiEndpoint streams content from the Google Gemini API.
type GeminiEndpoint struct {
	Client *genai.Client `json:"-"`

	// Model should not start with "models/"
	Model string `json:"model"`

	// MaxOutputTokens caps the output when positive.
	MaxOutputTokens int32 `json:"max_output_tokens,omitzero"`
}

func (e *GeminiEndpoint) Stream(ctx context.Context, msgs []chat.Message) (EventStream, error) {
	cfg, contents, err := e.convMessages(msgs)
	if err != nil {
		return nil, err
	}
	next, stop := iter.Pull2(e.Client.Models.GenerateContentStream(ctx, e.Model, contents, cfg))
	return &geminiStream{next: next, stop: stop}, nil
}

func (e *GeminiEndpoint) convMessages(msgs []chat.Message) (*genai.GenerateContentConfig, []*genai.Content, error) {
	cfg := &genai.GenerateContentConfig{}
	if e.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = e.MaxOutputTokens
	}

	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for _, m := range msgs {
		var role string
		switch m.Role {
		case chat.RoleSystem:
			if m.Content != "" {
				cfg.SystemInstruction = &genai.Content{
					Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
				}
			}
			continue
		case chat.RoleUser, chat.RoleTool:
			role = genai.RoleUser
		case chat.RoleAssistant:
			role = genai.RoleModel
		default:
			return nil, nil, fmt.Errorf("genx: gemini: unexpected role %q", m.Role)
		}
		part := genai.NewPartFromText(m.Content)
		if last != nil && last.Role == role {
			last.Parts = append(last.Parts, part)
			continue
		}
		last = &genai.Content{Role: role, Parts: []*genai.Part{part}}
		contents = append(contents, last)
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("genx: gemini: no contents")
	}
	return cfg, contents, nil
}

type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()

	pending []Event
	done    bool

	index   int32
	indexed bool
	usage   Usage
}

func (s *geminiStream) Next() (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return Event{}, io.EOF
		}
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			return Event{}, io.EOF
		}
		if err != nil {
			s.done = true
			if e, ok := err.(*apierror.APIError); ok {
				err = e.Unwrap()
			}
			return Event{}, err
		}
		s.handle(resp)
	}
}

func (s *geminiStream) handle(resp *genai.GenerateContentResponse) {
	if resp == nil {
		return
	}
	if resp.UsageMetadata != nil {
		s.usage = geminiConvUsage(resp.UsageMetadata)
	}
	if len(resp.Candidates) == 0 {
		return
	}
	var sel *genai.Candidate
	if !s.indexed {
		s.index, s.indexed = resp.Candidates[0].Index, true
		sel = resp.Candidates[0]
	} else {
		for _, c := range resp.Candidates {
			if c.Index == s.index {
				sel = c
				break
			}
		}
		if sel == nil {
			return
		}
	}

	if sel.Content != nil {
		for _, p := range sel.Content.Parts {
			if p.Thought || p.Text == "" {
				continue
			}
			s.pending = append(s.pending, TextDelta(p.Text))
		}
	}

	switch sel.FinishReason {
	case genai.FinishReasonUnspecified, "":
		return
	case genai.FinishReasonStop:
		s.pending = append(s.pending, Completed(s.usage))
	case genai.FinishReasonMaxTokens:
		s.pending = append(s.pending, Incomplete(s.usage, "finish_reason: "+string(sel.FinishReason)))
	case genai.FinishReasonSafety:
		var cats []string
		for _, sr := range sel.SafetyRatings {
			if sr.Blocked {
				cats = append(cats, string(sr.Category))
			}
		}
		s.pending = append(s.pending, Failed("blocked by "+strings.Join(cats, ", ")))
	default:
		s.pending = append(s.pending, Failed("finish_reason: "+string(sel.FinishReason)))
	}
	s.done = true
	s.stop()
}

func (s *geminiStream) Close() error {
	s.done = true
	s.stop()
	return nil
}

func geminiConvUsage(usage *genai.GenerateContentResponseUsageMetadata) Usage {
	return Usage{
		InputTokens:     int64(usage.PromptTokenCount),
		CachedTokens:    int64(usage.CachedContentTokenCount),
		OutputTokens:    int64(usage.CandidatesTokenCount) + int64(usage.ThoughtsTokenCount),
		ReasoningTokens: int64(usage.ThoughtsTokenCount),
	}
}
