package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/okroshka/karmabot/internal/core"
)

type sinkCall struct {
	op      string
	chat    core.ChatID
	message int64
	user    core.UserID
	kind    core.ReactionKind
}

type fakeSink struct {
	calls []sinkCall
	err   error
}

func (f *fakeSink) OnMessageSent(_ context.Context, chat core.ChatID, messageID int64, author core.UserID, _ time.Time) error {
	f.calls = append(f.calls, sinkCall{op: "sent", chat: chat, message: messageID, user: author})
	return f.err
}

func (f *fakeSink) OnReactionAdded(_ context.Context, chat core.ChatID, messageID int64, reactor core.UserID, kind core.ReactionKind) error {
	f.calls = append(f.calls, sinkCall{op: "added", chat: chat, message: messageID, user: reactor, kind: kind})
	return f.err
}

func (f *fakeSink) OnReactionRemoved(_ context.Context, chat core.ChatID, messageID int64, reactor core.UserID, kind core.ReactionKind) error {
	f.calls = append(f.calls, sinkCall{op: "removed", chat: chat, message: messageID, user: reactor, kind: kind})
	return f.err
}

func emoji(kinds ...string) []reactionType {
	out := make([]reactionType, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, reactionType{Type: "emoji", Emoji: k})
	}
	return out
}

func TestDiffReactions(t *testing.T) {
	added, removed := diffReactions(emoji("👍", "❤"), emoji("❤", "🔥"))
	if len(added) != 1 || added[0] != "🔥" {
		t.Fatalf("unexpected added: %v", added)
	}
	if len(removed) != 1 || removed[0] != "👍" {
		t.Fatalf("unexpected removed: %v", removed)
	}
}

func TestDiffReactionsNoChange(t *testing.T) {
	added, removed := diffReactions(emoji("👍"), emoji("👍"))
	if len(added) != 0 || len(removed) != 0 {
		t.Fatalf("expected no diff, got added=%v removed=%v", added, removed)
	}
}

func TestDiffReactionsSkipsNonEmoji(t *testing.T) {
	newList := append(emoji("👍"), reactionType{Type: "custom_emoji"})
	added, removed := diffReactions(nil, newList)
	if len(added) != 1 || added[0] != "👍" {
		t.Fatalf("unexpected added: %v", added)
	}
	if len(removed) != 0 {
		t.Fatalf("unexpected removed: %v", removed)
	}
}

func TestDiffReactionsDeduplicates(t *testing.T) {
	added, _ := diffReactions(nil, emoji("👍", "👍"))
	if len(added) != 1 {
		t.Fatalf("expected one add for repeated kind, got %v", added)
	}
}

func TestHandleMessageGroupOnly(t *testing.T) {
	sink := &fakeSink{}
	c := New("token", 60, sink, nil)

	private := &tgbotapi.Message{
		MessageID: 100,
		From:      &tgbotapi.User{ID: 7},
		Chat:      &tgbotapi.Chat{ID: 1, Type: "private"},
		Date:      1700000000,
	}
	if err := c.handleMessage(context.Background(), private); err != nil {
		t.Fatalf("private message: %v", err)
	}
	if len(sink.calls) != 0 {
		t.Fatal("private chats must not be tracked")
	}

	group := &tgbotapi.Message{
		MessageID: 100,
		From:      &tgbotapi.User{ID: 7},
		Chat:      &tgbotapi.Chat{ID: -100500, Type: "supergroup"},
		Date:      1700000000,
	}
	if err := c.handleMessage(context.Background(), group); err != nil {
		t.Fatalf("group message: %v", err)
	}
	if len(sink.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(sink.calls))
	}
	call := sink.calls[0]
	if call.op != "sent" || call.chat != -100500 || call.message != 100 || call.user != 7 {
		t.Fatalf("unexpected call: %+v", call)
	}
}

func TestHandleMessageSkipsBots(t *testing.T) {
	sink := &fakeSink{}
	c := New("token", 60, sink, nil)

	bot := &tgbotapi.Message{
		MessageID: 100,
		From:      &tgbotapi.User{ID: 7, IsBot: true},
		Chat:      &tgbotapi.Chat{ID: -1, Type: "group"},
	}
	if err := c.handleMessage(context.Background(), bot); err != nil {
		t.Fatalf("bot message: %v", err)
	}
	if len(sink.calls) != 0 {
		t.Fatal("bot messages must not be tracked")
	}
}

func TestHandleReactionEmitsAddAndRemove(t *testing.T) {
	sink := &fakeSink{}
	c := New("token", 60, sink, nil)

	ru := &reactionUpdate{
		Chat:        tgbotapi.Chat{ID: -1, Type: "supergroup"},
		MessageID:   100,
		User:        &tgbotapi.User{ID: 20},
		OldReaction: emoji("👎"),
		NewReaction: emoji("👍"),
	}
	if err := c.handleReaction(context.Background(), ru); err != nil {
		t.Fatalf("reaction: %v", err)
	}
	if len(sink.calls) != 2 {
		t.Fatalf("expected add and remove, got %+v", sink.calls)
	}
	if sink.calls[0].op != "added" || sink.calls[0].kind != "👍" {
		t.Fatalf("unexpected first call: %+v", sink.calls[0])
	}
	if sink.calls[1].op != "removed" || sink.calls[1].kind != "👎" {
		t.Fatalf("unexpected second call: %+v", sink.calls[1])
	}
	if sink.calls[0].user != 20 || sink.calls[0].chat != -1 {
		t.Fatalf("unexpected attribution: %+v", sink.calls[0])
	}
}

func TestHandleReactionAnonymousSkipped(t *testing.T) {
	sink := &fakeSink{}
	c := New("token", 60, sink, nil)

	ru := &reactionUpdate{
		Chat:        tgbotapi.Chat{ID: -1},
		MessageID:   100,
		NewReaction: emoji("👍"),
	}
	if err := c.handleReaction(context.Background(), ru); err != nil {
		t.Fatalf("reaction: %v", err)
	}
	if len(sink.calls) != 0 {
		t.Fatal("anonymous reactions must be skipped")
	}
}

func TestHandleReactionPropagatesSinkError(t *testing.T) {
	sinkErr := errors.New("store unavailable")
	sink := &fakeSink{err: sinkErr}
	c := New("token", 60, sink, nil)

	ru := &reactionUpdate{
		Chat:        tgbotapi.Chat{ID: -1},
		MessageID:   100,
		User:        &tgbotapi.User{ID: 20},
		NewReaction: emoji("👍"),
	}
	if err := c.handleReaction(context.Background(), ru); !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
}
