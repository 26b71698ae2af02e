package transport

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/clinicdesk/agenda-bot/pkg/logging"
)

const startGreeting = "Olá! Sou a assistente da clínica. Posso confirmar, remarcar ou cancelar " +
	"a sua consulta. Como posso ajudar?"

// Handler processes one inbound chat message.
type Handler interface {
	HandleMessage(ctx context.Context, chatID int64, text string) error
}

// Telegram adapts the bot API to the conversation engine: it delivers
// outbound messages and long-polls for inbound updates.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *logging.Logger
}

// NewTelegram authenticates against the bot API.
func NewTelegram(token string, logger *logging.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("transport: telegram auth failed: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("telegram bot authorized", "username", api.Self.UserName)
	return &Telegram{api: api, logger: logger}, nil
}

// SendMessage delivers text to a chat.
func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string) error {
	if _, err := t.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("transport: send to chat %d failed: %w", chatID, err)
	}
	return nil
}

// Listen long-polls for updates and dispatches each message to the
// handler on its own goroutine. It returns when ctx is canceled.
func (t *Telegram) Listen(ctx context.Context, handler Handler) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := t.api.GetUpdatesChan(cfg)

	t.logger.Info("listening for telegram updates")
	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			go t.dispatch(ctx, handler, update.Message.Chat.ID, update.Message.Text)
		}
	}
}

func (t *Telegram) dispatch(ctx context.Context, handler Handler, chatID int64, text string) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic while handling message", "chat_id", chatID, "panic", r)
		}
	}()

	if strings.TrimSpace(text) == "/start" {
		if err := t.SendMessage(ctx, chatID, startGreeting); err != nil {
			t.logger.Error("failed to send greeting", "chat_id", chatID, "error", err)
		}
		return
	}

	if err := handler.HandleMessage(ctx, chatID, text); err != nil {
		t.logger.Error("message handling failed", "chat_id", chatID, "error", err)
	}
}
