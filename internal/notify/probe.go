package notify

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/avkuzmin/teleshop/internal/model"
)

// ChatGetter is the Telegram client surface the probe needs.
type ChatGetter interface {
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
}

// AccountProbe reports whether a stored telegram account still resolves.
// A transport failure is returned as an error, not a verdict; only a
// definitive "chat not found" response counts as invalid.
func AccountProbe(bot ChatGetter, timeout time.Duration) func(ctx context.Context, item *model.AccountStorage) (bool, error) {
	return func(ctx context.Context, item *model.AccountStorage) (bool, error) {
		if item.ExternalID == nil {
			return true, nil
		}
		chatID, err := strconv.ParseInt(*item.ExternalID, 10, 64)
		if err != nil {
			return true, nil
		}

		type result struct {
			ok  bool
			err error
		}
		ch := make(chan result, 1)
		go func() {
			_, err := bot.GetChat(tgbotapi.ChatInfoConfig{
				ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
			})
			if err != nil {
				if apiErr, isAPI := err.(*tgbotapi.Error); isAPI && apiErr.Code == 400 {
					ch <- result{ok: false}
					return
				}
				ch <- result{err: err}
				return
			}
			ch <- result{ok: true}
		}()

		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case r := <-ch:
			return r.ok, r.err
		case <-timer.C:
			return false, context.DeadlineExceeded
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}
