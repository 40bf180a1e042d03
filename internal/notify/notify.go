// Package notify delivers user-facing messages over Telegram. Every send goes
// through a shared rate limiter to stay under Telegram's per-bot send quota;
// broadcasts additionally bound their concurrency with a semaphore.
package notify

import (
	"context"
	"fmt"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/avkuzmin/teleshop/internal/limiter"
	"github.com/avkuzmin/teleshop/internal/model"
)

// Sender is the Telegram client surface Notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends domain event messages to users. It implements
// service.EventSink; delivery failures are logged, never propagated, because
// the state change that produced the event has already committed.
type Notifier struct {
	bot          Sender
	lim          limiter.Limiter
	mailing      *semaphore.Weighted
	mailingLimit int64
	log          *zap.Logger
}

// New constructs a Notifier. mailingLimit bounds concurrent broadcast sends.
func New(bot Sender, lim limiter.Limiter, mailingLimit int64, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		bot:          bot,
		lim:          lim,
		mailing:      semaphore.NewWeighted(mailingLimit),
		mailingLimit: mailingLimit,
		log:          log,
	}
}

// send pushes one message through the rate limiter.
func (n *Notifier) send(ctx context.Context, chatID int64, text string) error {
	if err := n.lim.Acquire(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := n.bot.Send(msg)
	return err
}

// Notify sends a free-form message to one user.
func (n *Notifier) Notify(ctx context.Context, userID int64, text string) error {
	return n.send(ctx, userID, text)
}

// ReplenishmentCompleted tells the user their balance was topped up.
func (n *Notifier) ReplenishmentCompleted(ctx context.Context, ev model.ReplenishmentCompleted) {
	text := fmt.Sprintf("Your balance was topped up by %d. Total replenished: %d.", ev.Amount, ev.TotalReplenished)
	if err := n.send(ctx, ev.UserID, text); err != nil {
		n.log.Error("replenishment notification failed",
			zap.Int64("user", ev.UserID),
			zap.Int64("replenishment", ev.ReplenishmentID),
			zap.Error(err))
	}
}

// ReplenishmentFailed tells the user their top-up did not go through.
func (n *Notifier) ReplenishmentFailed(ctx context.Context, ev model.ReplenishmentFailed) {
	text := "Your top-up could not be processed. Contact support if the payment went through."
	if err := n.send(ctx, ev.UserID, text); err != nil {
		n.log.Error("replenishment failure notification failed",
			zap.Int64("user", ev.UserID),
			zap.Int64("replenishment", ev.ReplenishmentID),
			zap.Error(err))
	}
}

// PromoActivated confirms a promo code was consumed by the purchase.
func (n *Notifier) PromoActivated(ctx context.Context, ev model.PromoActivated) {
	text := "Promo code applied to your purchase."
	if err := n.send(ctx, ev.UserID, text); err != nil {
		n.log.Error("promo notification failed",
			zap.Int64("user", ev.UserID),
			zap.Int64("promo", ev.PromoCodeID),
			zap.Error(err))
	}
}

// Broadcast sends text to every user id, at most mailingLimit sends in
// flight. It returns how many deliveries succeeded; per-user failures are
// logged and skipped.
func (n *Notifier) Broadcast(ctx context.Context, userIDs []int64, text string) (int, error) {
	var sent atomic.Int64
	for _, id := range userIDs {
		if err := n.mailing.Acquire(ctx, 1); err != nil {
			return int(sent.Load()), err
		}
		go func(id int64) {
			defer n.mailing.Release(1)
			if err := n.send(ctx, id, text); err != nil {
				n.log.Warn("broadcast send failed", zap.Int64("user", id), zap.Error(err))
				return
			}
			sent.Add(1)
		}(id)
	}
	// Acquiring the full weight waits for all in-flight sends.
	if err := n.mailing.Acquire(ctx, n.mailingLimit); err != nil {
		return int(sent.Load()), err
	}
	n.mailing.Release(n.mailingLimit)
	return int(sent.Load()), nil
}
