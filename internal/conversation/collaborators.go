package conversation

import "context"

// Transport delivers text to a chat. Fire-and-forget from the engine's
// point of view: a delivery failure is logged, never retried here.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Generator turns a short directive ("patient canceled; confirm and end")
// into user-facing prose. The engine never inspects the output.
type Generator interface {
	Generate(ctx context.Context, directive string) (string, error)
}
