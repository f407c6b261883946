package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

type fakeSender struct {
	sent []*bot.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &models.Message{}, nil
}

func TestTelegramNotifier_BookingCreated(t *testing.T) {
	sender := &fakeSender{}
	n := newTelegramNotifier(sender, 42, zap.NewNop())

	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	visit := &model.Visit{ID: 7, StudentID: 11, DoctorID: "dr<house>", VisitDate: date}
	slot := &model.ScheduleSlot{
		DoctorID:    "dr<house>",
		Date:        date,
		StartTime:   model.NewClockTime(9, 0),
		EndTime:     model.NewClockTime(9, 30),
		Capacity:    1,
		BookedCount: 1,
	}

	require.NoError(t, n.BookingCreated(context.Background(), visit, slot))
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, models.ParseModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "02.06.2025 (Mon)")
	assert.Contains(t, msg.Text, "09:00-09:30")
	assert.Contains(t, msg.Text, "dr&lt;house&gt;")
}

func TestTelegramNotifier_SendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("boom")}
	n := newTelegramNotifier(sender, 42, zap.NewNop())

	err := n.BookingCancelled(context.Background(), &model.Visit{ID: 1})
	assert.ErrorContains(t, err, "send telegram message")
}
