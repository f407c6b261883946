package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramNotifier posts booking events to a staff chat.
type TelegramNotifier struct {
	sender messageSender
	chatID int64
	logger *zap.Logger
}

// NewTelegramNotifier создаёт бота без обращения к getMe при старте
func NewTelegramNotifier(token string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return newTelegramNotifier(b, chatID, logger), nil
}

func newTelegramNotifier(sender messageSender, chatID int64, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, chatID: chatID, logger: logger}
}

func (n *TelegramNotifier) BookingCreated(ctx context.Context, visit *model.Visit, slot *model.ScheduleSlot) error {
	return n.send(ctx, bookingCreatedText(visit, slot))
}

func (n *TelegramNotifier) BookingCancelled(ctx context.Context, visit *model.Visit) error {
	return n.send(ctx, bookingCancelledText(visit))
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	n.logger.Debug("Notification sent", zap.Int64("chat_id", n.chatID))
	return nil
}
