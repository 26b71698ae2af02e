package conversation

import (
	"context"

	"github.com/clinicdesk/agenda-bot/internal/schedule"
	"github.com/clinicdesk/agenda-bot/pkg/logging"
)

// fallbackReply goes out whenever the generator fails; the turn still
// terminates normally.
const fallbackReply = "Desculpe, tive um problema para responder agora. Por favor, tente novamente em instantes."

// Composer is the boundary to the response generator and the chat
// transport: it narrates a directive, sends the result, and (on terminal
// turns) appends the audit record.
type Composer struct {
	gen       Generator
	transport Transport
	store     schedule.Store
	logger    *logging.Logger
}

func NewComposer(gen Generator, transport Transport, store schedule.Store, logger *logging.Logger) *Composer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Composer{
		gen:       gen,
		transport: transport,
		store:     store,
		logger:    logger,
	}
}

// Say sends literal text, bypassing the generator. Used for fixed prompts
// like the invalid-date retry.
func (c *Composer) Say(ctx context.Context, chatID int64, text string) {
	if err := c.transport.SendMessage(ctx, chatID, text); err != nil {
		c.logger.Error("send message failed", "chat_id", chatID, "error", err)
	}
}

// Prompt narrates a directive and sends it, without recording a dialogue
// turn. Used for mid-exchange questions.
func (c *Composer) Prompt(ctx context.Context, chatID int64, directive string) {
	c.Say(ctx, chatID, c.narrate(ctx, directive))
}

// Finish narrates a directive, sends it, and appends one DialogueRecord
// pairing the inbound text with the outbound reply. Every terminal turn of
// the state machine goes through here.
func (c *Composer) Finish(ctx context.Context, chatID int64, inbound, directive string) {
	reply := c.narrate(ctx, directive)
	c.Say(ctx, chatID, reply)

	err := c.store.AppendDialogue(ctx, schedule.DialogueRecord{
		ChatID:      chatID,
		UserMessage: inbound,
		BotResponse: reply,
	})
	if err != nil {
		// The audit log must not break the conversation; the turn already
		// reached the patient.
		c.logger.Error("append dialogue failed", "chat_id", chatID, "error", err)
	}
}

func (c *Composer) narrate(ctx context.Context, directive string) string {
	text, err := c.gen.Generate(ctx, directive)
	if err != nil || text == "" {
		c.logger.Warn("generator failed, using fallback reply", "error", err)
		return fallbackReply
	}
	return text
}
