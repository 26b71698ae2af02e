package respond

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/clinicdesk/agenda-bot/pkg/logging"
)

const systemPrompt = "Você é a recepcionista virtual de uma clínica médica. Responda sempre em " +
	"português, em tom cordial e profissional, com no máximo duas frases. Siga fielmente a " +
	"instrução recebida: transmita exatamente a informação pedida, sem inventar horários, " +
	"datas ou procedimentos."

const requestTimeout = 30 * time.Second

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Responder turns conversation directives into patient-facing phrasing
// through an OpenAI-compatible chat endpoint.
type Responder struct {
	client    chatClient
	model     string
	maxTokens int
	logger    *logging.Logger
}

// Options configures a Responder. BaseURL allows pointing at any
// OpenAI-compatible server (a local model, a proxy).
type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Logger    *logging.Logger
}

// New builds a Responder from API options.
func New(opts Options) *Responder {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return NewWithClient(openai.NewClientWithConfig(cfg), opts)
}

// NewWithClient builds a Responder around an existing chat client.
func NewWithClient(client chatClient, opts Options) *Responder {
	if client == nil {
		panic("respond: chat client cannot be nil")
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Responder{client: client, model: model, maxTokens: maxTokens, logger: logger}
}

// Generate produces one short reply for the given directive.
func (r *Responder) Generate(ctx context.Context, directive string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: directive},
		},
	})
	if err != nil {
		return "", fmt.Errorf("respond: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("respond: completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
