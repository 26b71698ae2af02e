package respond

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/agenda-bot/pkg/logging"
)

type stubChat struct {
	lastRequest openai.ChatCompletionRequest
	reply       string
	err         error
}

func (s *stubChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastRequest = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.reply}},
		},
	}, nil
}

func TestGenerateBuildsRequestAndTrimsReply(t *testing.T) {
	stub := &stubChat{reply: "  Sua consulta está confirmada!  "}
	r := NewWithClient(stub, Options{Model: "gpt-4o-mini", Logger: logging.New("error")})

	reply, err := r.Generate(context.Background(), "Tell the patient the visit is confirmed")
	require.NoError(t, err)
	assert.Equal(t, "Sua consulta está confirmada!", reply)

	require.Len(t, stub.lastRequest.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, stub.lastRequest.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, stub.lastRequest.Messages[1].Role)
	assert.Equal(t, "Tell the patient the visit is confirmed", stub.lastRequest.Messages[1].Content)
	assert.Equal(t, 100, stub.lastRequest.MaxTokens)
}

func TestGenerateWrapsClientError(t *testing.T) {
	stub := &stubChat{err: errors.New("rate limited")}
	r := NewWithClient(stub, Options{Logger: logging.New("error")})

	_, err := r.Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion failed")
}

func TestGenerateRejectsEmptyChoices(t *testing.T) {
	r := NewWithClient(&emptyChat{}, Options{Logger: logging.New("error")})

	_, err := r.Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

type emptyChat struct{}

func (emptyChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, nil
}

func TestDefaultsApplied(t *testing.T) {
	r := NewWithClient(&stubChat{reply: "ok"}, Options{})
	assert.Equal(t, openai.GPT4oMini, r.model)
	assert.Equal(t, 100, r.maxTokens)
	assert.NotNil(t, r.logger)
}
