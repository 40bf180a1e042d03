package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avkuzmin/teleshop/internal/limiter"
	"github.com/avkuzmin/teleshop/internal/model"
)

type fakeBot struct {
	mu     sync.Mutex
	sent   []tgbotapi.MessageConfig
	failTo map[int64]error

	chats   map[int64]tgbotapi.Chat
	chatErr error
}

var _ Sender = (*fakeBot)(nil)
var _ ChatGetter = (*fakeBot)(nil)

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, bad := b.failTo[msg.ChatID]; bad {
		return tgbotapi.Message{}, err
	}
	b.sent = append(b.sent, msg)
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
	if b.chatErr != nil {
		return tgbotapi.Chat{}, b.chatErr
	}
	chat, ok := b.chats[config.ChatID]
	if !ok {
		return tgbotapi.Chat{}, &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	}
	return chat, nil
}

func newNotifier(bot *fakeBot) *Notifier {
	return New(bot, limiter.NewSlidingWindow(1000, time.Second), 4, nil)
}

func TestNotifier_NotifySendsHTML(t *testing.T) {
	bot := &fakeBot{}
	n := newNotifier(bot)

	require.NoError(t, n.Notify(context.Background(), 7, "hello"))

	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(7), bot.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, bot.sent[0].ParseMode)
}

func TestNotifier_EventSinkSwallowsSendErrors(t *testing.T) {
	bot := &fakeBot{failTo: map[int64]error{5: errors.New("blocked by user")}}
	n := newNotifier(bot)
	ctx := context.Background()

	n.ReplenishmentCompleted(ctx, model.ReplenishmentCompleted{UserID: 5, ReplenishmentID: 1, Amount: 100})
	n.ReplenishmentFailed(ctx, model.ReplenishmentFailed{UserID: 5, ReplenishmentID: 1})
	n.PromoActivated(ctx, model.PromoActivated{UserID: 5, PromoCodeID: 2})

	assert.Empty(t, bot.sent)
}

func TestNotifier_ReplenishmentCompletedMentionsAmounts(t *testing.T) {
	bot := &fakeBot{}
	n := newNotifier(bot)

	n.ReplenishmentCompleted(context.Background(), model.ReplenishmentCompleted{
		UserID: 3, ReplenishmentID: 9, Amount: 950, TotalReplenished: 2450,
	})

	require.Len(t, bot.sent, 1)
	assert.True(t, strings.Contains(bot.sent[0].Text, "950"))
	assert.True(t, strings.Contains(bot.sent[0].Text, "2450"))
}

func TestNotifier_BroadcastCountsOnlySuccesses(t *testing.T) {
	bot := &fakeBot{failTo: map[int64]error{2: errors.New("blocked"), 4: errors.New("blocked")}}
	n := newNotifier(bot)

	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	sent, err := n.Broadcast(context.Background(), ids, "news")

	require.NoError(t, err)
	assert.Equal(t, 8, sent)
	assert.Len(t, bot.sent, 8)
}

func TestNotifier_BroadcastStopsOnCancel(t *testing.T) {
	bot := &fakeBot{}
	n := newNotifier(bot)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.Broadcast(ctx, []int64{1, 2, 3}, "news")
	assert.ErrorIs(t, err, context.Canceled)
}

func strPtr(s string) *string { return &s }

func TestAccountProbe_Verdicts(t *testing.T) {
	bot := &fakeBot{chats: map[int64]tgbotapi.Chat{42: {ID: 42}}}
	probe := AccountProbe(bot, time.Second)
	ctx := context.Background()

	ok, err := probe(ctx, &model.AccountStorage{ExternalID: strPtr("42")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = probe(ctx, &model.AccountStorage{ExternalID: strPtr("43")})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccountProbe_SkipsUnresolvableIDs(t *testing.T) {
	bot := &fakeBot{}
	probe := AccountProbe(bot, time.Second)
	ctx := context.Background()

	ok, err := probe(ctx, &model.AccountStorage{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = probe(ctx, &model.AccountStorage{ExternalID: strPtr("@username")})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccountProbe_TransportErrorIsNotAVerdict(t *testing.T) {
	bot := &fakeBot{chatErr: errors.New("connection reset")}
	probe := AccountProbe(bot, time.Second)

	_, err := probe(context.Background(), &model.AccountStorage{ExternalID: strPtr("42")})
	assert.Error(t, err)
}
