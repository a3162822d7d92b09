// Package telegram is the chat-platform connector: it long-polls the Bot API
// and translates raw updates into reconciliation events. The Bot API does not
// include message author info in reaction updates, which is exactly why the
// registry exists.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/okroshka/karmabot/internal/core"
)

// EventSink consumes translated platform events. The reconciler implements
// it; tests supply fakes.
type EventSink interface {
	OnMessageSent(ctx context.Context, chat core.ChatID, messageID int64, author core.UserID, sentAt time.Time) error
	OnReactionAdded(ctx context.Context, chat core.ChatID, messageID int64, reactor core.UserID, kind core.ReactionKind) error
	OnReactionRemoved(ctx context.Context, chat core.ChatID, messageID int64, reactor core.UserID, kind core.ReactionKind) error
}

// Connector polls Telegram for message and reaction updates.
type Connector struct {
	token       string
	pollTimeout int
	sink        EventSink
	logger      *zap.Logger
	bot         *tgbotapi.BotAPI
}

// New creates a Connector. pollTimeout is the long-poll timeout in seconds.
func New(token string, pollTimeout int, sink EventSink, logger *zap.Logger) *Connector {
	if pollTimeout <= 0 {
		pollTimeout = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		token:       token,
		pollTimeout: pollTimeout,
		sink:        sink,
		logger:      logger,
	}
}

// Start runs the long-poll loop until ctx is cancelled, reconnecting with
// exponential backoff on transport errors. Sink failures (store unavailable)
// leave the offset untouched so the batch is re-delivered on the next poll.
func (c *Connector) Start(ctx context.Context) error {
	// The HTTP timeout exceeds the long-poll window so a healthy poll can
	// hold the connection open, while a dead one errors into the backoff
	// path instead of hanging forever.
	httpClient := &http.Client{
		Timeout: time.Duration(c.pollTimeout+15) * time.Second,
	}
	bot, err := tgbotapi.NewBotAPIWithClient(c.token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return fmt.Errorf("telegram init: %w", err)
	}
	c.bot = bot
	c.logger.Info("telegram connector started", zap.String("username", bot.Self.UserName))

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		updates, err := c.fetchUpdates(offset)
		if err != nil {
			c.logger.Warn("telegram poll failed, backing off",
				zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		for _, upd := range updates {
			if err := c.handleUpdate(ctx, upd); err != nil {
				// Store-level failure: stop here without advancing the
				// offset, so the update is re-delivered.
				c.logger.Error("update handling failed, will retry",
					zap.Int64("update_id", upd.UpdateID), zap.Error(err))
				break
			}
			offset = upd.UpdateID + 1
		}
	}
}

// update is decoded from a raw getUpdates response. The library's Update
// type predates reaction updates, so the reaction payload is parsed here.
type update struct {
	UpdateID        int64             `json:"update_id"`
	Message         *tgbotapi.Message `json:"message"`
	MessageReaction *reactionUpdate   `json:"message_reaction"`
}

type reactionUpdate struct {
	Chat        tgbotapi.Chat  `json:"chat"`
	MessageID   int64          `json:"message_id"`
	User        *tgbotapi.User `json:"user"`
	OldReaction []reactionType `json:"old_reaction"`
	NewReaction []reactionType `json:"new_reaction"`
}

type reactionType struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

func (c *Connector) fetchUpdates(offset int64) ([]update, error) {
	params := make(tgbotapi.Params)
	params.AddNonZero64("offset", offset)
	params.AddNonZero("timeout", c.pollTimeout)
	if err := params.AddInterface("allowed_updates", []string{"message", "message_reaction"}); err != nil {
		return nil, fmt.Errorf("encode allowed_updates: %w", err)
	}

	resp, err := c.bot.MakeRequest("getUpdates", params)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	var updates []update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

func (c *Connector) handleUpdate(ctx context.Context, upd update) error {
	if upd.Message != nil {
		return c.handleMessage(ctx, upd.Message)
	}
	if upd.MessageReaction != nil {
		return c.handleReaction(ctx, upd.MessageReaction)
	}
	return nil
}

// handleMessage registers group messages so later reactions can resolve the
// author. Private chats and bot messages carry no karma.
func (c *Connector) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.From == nil || m.Chat == nil || m.From.IsBot {
		return nil
	}
	if !m.Chat.IsGroup() && !m.Chat.IsSuperGroup() {
		return nil
	}
	return c.sink.OnMessageSent(ctx,
		core.ChatID(m.Chat.ID),
		int64(m.MessageID),
		core.UserID(m.From.ID),
		time.Unix(int64(m.Date), 0).UTC(),
	)
}

// handleReaction diffs the old and new reaction lists and emits one add or
// remove event per changed kind.
func (c *Connector) handleReaction(ctx context.Context, ru *reactionUpdate) error {
	if ru.User == nil {
		// Anonymous reaction; there is no reactor to attribute.
		return nil
	}
	chat := core.ChatID(ru.Chat.ID)
	reactor := core.UserID(ru.User.ID)

	added, removed := diffReactions(ru.OldReaction, ru.NewReaction)
	for _, kind := range added {
		if err := c.sink.OnReactionAdded(ctx, chat, ru.MessageID, reactor, kind); err != nil {
			return err
		}
	}
	for _, kind := range removed {
		if err := c.sink.OnReactionRemoved(ctx, chat, ru.MessageID, reactor, kind); err != nil {
			return err
		}
	}
	return nil
}

// diffReactions returns the emoji kinds present only in the new list (added)
// and only in the old list (removed). Non-emoji reaction types (paid,
// custom) are skipped.
func diffReactions(oldList, newList []reactionType) (added, removed []core.ReactionKind) {
	oldSet := kindSet(oldList)
	newSet := kindSet(newList)
	seen := make(map[core.ReactionKind]struct{})
	for _, rt := range newList {
		kind, ok := emojiKind(rt)
		if !ok {
			continue
		}
		if _, dup := seen[kind]; dup {
			continue
		}
		seen[kind] = struct{}{}
		if _, present := oldSet[kind]; !present {
			added = append(added, kind)
		}
	}
	seen = make(map[core.ReactionKind]struct{})
	for _, rt := range oldList {
		kind, ok := emojiKind(rt)
		if !ok {
			continue
		}
		if _, dup := seen[kind]; dup {
			continue
		}
		seen[kind] = struct{}{}
		if _, present := newSet[kind]; !present {
			removed = append(removed, kind)
		}
	}
	return added, removed
}

func kindSet(list []reactionType) map[core.ReactionKind]struct{} {
	set := make(map[core.ReactionKind]struct{}, len(list))
	for _, rt := range list {
		if kind, ok := emojiKind(rt); ok {
			set[kind] = struct{}{}
		}
	}
	return set
}

func emojiKind(rt reactionType) (core.ReactionKind, bool) {
	if rt.Type != "emoji" || rt.Emoji == "" {
		return "", false
	}
	return core.ReactionKind(rt.Emoji), true
}
