package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/logger"
	"github.com/warp/frontdesk/shifts"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func closure() shifts.Closure {
	closed := time.Date(2024, time.July, 8, 15, 0, 0, 0, time.UTC)
	return shifts.Closure{
		Shift: core.Shift{
			ID: "s-1", StaffID: "staff-1", Slot: core.SlotMorning,
			OpenedAt: time.Date(2024, time.July, 8, 9, 0, 0, 0, time.UTC), ClosedAt: &closed,
			CashWithdrawals: decimal.NewFromInt(30),
		},
		Expected:   decimal.NewFromInt(550),
		Declared:   decimal.NewFromInt(548),
		Difference: decimal.NewFromInt(-2),
	}
}

func TestTelegram_ShiftClosed_SendsToAdminChat(t *testing.T) {
	sender := &fakeSender{}
	tg := NewTelegramWithSender(sender, 777, logger.Discard())

	require.NoError(t, tg.ShiftClosed(context.Background(), closure()))

	require.Len(t, sender.sent, 1)
	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(777), msg.ChatID)
	assert.Contains(t, msg.Text, "short by 2.00")
	assert.Contains(t, msg.Text, "Expected: 550.00")
}

func TestTelegram_SendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("chat not found")}
	tg := NewTelegramWithSender(sender, 777, logger.Discard())

	err := tg.ShiftClosed(context.Background(), closure())

	assert.ErrorContains(t, err, "chat not found")
}

func TestFormatClosure_Over(t *testing.T) {
	c := closure()
	c.Declared = decimal.NewFromInt(560)
	c.Difference = decimal.NewFromInt(10)

	assert.Contains(t, FormatClosure(c), "over by 10.00")
}
