// Package line adapts the LINE Messaging API to the conversation
// Messenger contract.
package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/conversation"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
	"github.com/line/line-bot-sdk-go/v7/linebot"
)

type Client struct {
	bot *linebot.Client
}

func New(channelSecret, channelToken string, opts ...linebot.ClientOption) (*Client, error) {
	bot, err := linebot.New(channelSecret, channelToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create line client: %w", err)
	}
	return &Client{bot: bot}, nil
}

// ReplyTo answers an inbound event. Quick actions become quick-reply buttons.
func (c *Client) ReplyTo(ctx context.Context, token string, reply conversation.Reply) error {
	var msg linebot.SendingMessage = linebot.NewTextMessage(reply.Text)
	if len(reply.QuickActions) > 0 {
		buttons := make([]*linebot.QuickReplyButton, len(reply.QuickActions))
		for i, a := range reply.QuickActions {
			buttons[i] = linebot.NewQuickReplyButton("", linebot.NewMessageAction(a.Label, a.Text))
		}
		msg = linebot.NewTextMessage(reply.Text).WithQuickReplies(linebot.NewQuickReplyItems(buttons...))
	}

	if _, err := c.bot.ReplyMessage(token, msg).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("line reply: %w", err)
	}
	return nil
}

func (c *Client) Push(ctx context.Context, userID, text string) error {
	if _, err := c.bot.PushMessage(userID, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	return nil
}

// LookupName fetches the user's profile display name.
func (c *Client) LookupName(ctx context.Context, userID string) (string, error) {
	profile, err := c.bot.GetProfile(userID).WithContext(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("line profile: %w", err)
	}
	return profile.DisplayName, nil
}

// Dispatcher handles one inbound message and replies through m.
type Dispatcher interface {
	Serve(ctx context.Context, m conversation.Messenger, msg conversation.Message)
}

// WebhookHandler verifies the X-Line-Signature header and feeds text
// messages to d. Other event types are acknowledged and ignored.
func (c *Client) WebhookHandler(d Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := slogx.FromContext(r.Context())

		events, err := c.bot.ParseRequest(r)
		if err != nil {
			if errors.Is(err, linebot.ErrInvalidSignature) {
				log.Warn("rejected webhook with invalid signature")
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			log.Error("failed to parse webhook", slog.Any("error", err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		for _, event := range events {
			if event.Type != linebot.EventTypeMessage || event.Source == nil {
				continue
			}
			text, ok := event.Message.(*linebot.TextMessage)
			if !ok {
				continue
			}
			d.Serve(r.Context(), c, conversation.Message{
				UserID: event.Source.UserID,
				Token:  event.ReplyToken,
				Text:   text.Text,
			})
		}

		w.WriteHeader(http.StatusOK)
	})
}
