// Package telegram adapts the Telegram Bot API to the conversation
// Messenger contract using long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/conversation"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pollTimeout = 60

type Bot struct {
	api *tgbotapi.BotAPI
}

func New(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Bot{api: api}, nil
}

// ReplyTo sends reply to the chat identified by token. Quick actions become
// a one-time reply keyboard.
func (b *Bot) ReplyTo(ctx context.Context, token string, reply conversation.Reply) error {
	chatID, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram reply token %q: %w", token, err)
	}
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if kb, ok := keyboardFor(reply.QuickActions); ok {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (b *Bot) Push(ctx context.Context, userID, text string) error {
	return b.ReplyTo(ctx, userID, conversation.Reply{Text: text})
}

// LookupName returns the chat's first name, or its username when unset.
func (b *Bot) LookupName(ctx context.Context, userID string) (string, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return "", err
	}
	chat, err := b.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: id}})
	if err != nil {
		return "", fmt.Errorf("telegram get chat: %w", err)
	}
	if chat.FirstName != "" {
		return chat.FirstName, nil
	}
	if chat.UserName != "" {
		return "@" + chat.UserName, nil
	}
	return "", fmt.Errorf("chat %d has no name", id)
}

// Dispatcher handles one inbound message and replies through m.
type Dispatcher interface {
	Serve(ctx context.Context, m conversation.Messenger, msg conversation.Message)
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, d Dispatcher) {
	log := slogx.FromContext(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)

	log.Info("telegram polling started", slog.String("bot", b.api.Self.UserName))
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Info("telegram polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg, ok := toMessage(update)
			if !ok {
				continue
			}
			d.Serve(ctx, b, msg)
		}
	}
}

// toMessage extracts a text message. Identity is the sender; replies go to
// the chat it came from.
func toMessage(update tgbotapi.Update) (conversation.Message, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil || m.Text == "" {
		return conversation.Message{}, false
	}
	return conversation.Message{
		UserID: strconv.FormatInt(m.From.ID, 10),
		Token:  strconv.FormatInt(m.Chat.ID, 10),
		Text:   normalizeCommand(m.Text),
	}, true
}

// normalizeCommand turns "/history@some_bot" into "history" and "/start"
// into the greeting.
func normalizeCommand(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	cmd, args, _ := strings.Cut(text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	if cmd == "start" {
		cmd = "hi"
	}
	if args = strings.TrimSpace(args); args != "" {
		return cmd + " " + args
	}
	return cmd
}

func keyboardFor(actions []conversation.QuickAction) (tgbotapi.ReplyKeyboardMarkup, bool) {
	if len(actions) == 0 {
		return tgbotapi.ReplyKeyboardMarkup{}, false
	}
	buttons := make([]tgbotapi.KeyboardButton, len(actions))
	for i, a := range actions {
		buttons[i] = tgbotapi.NewKeyboardButton(a.Text)
	}
	kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(buttons...))
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	return kb, true
}
