// Package notify tells the gym's admins about events worth a look, such
// as a cash drawer that did not balance.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/warp/frontdesk/shifts"
)

// Nop drops every notification.
type Nop struct{}

func (Nop) ShiftClosed(context.Context, shifts.Closure) error { return nil }

// Sender is the part of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts admin alerts to one chat.
type Telegram struct {
	api    Sender
	chatID int64
	logger *slog.Logger
}

// NewTelegram connects to the bot API with token.
func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegramWithSender(api, chatID, logger), nil
}

func NewTelegramWithSender(api Sender, chatID int64, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{api: api, chatID: chatID, logger: logger}
}

// ShiftClosed sends the cash count of a shift that closed with a difference.
func (t *Telegram) ShiftClosed(_ context.Context, c shifts.Closure) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatClosure(c))
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send shift %s alert: %w", c.Shift.ID, err)
	}
	t.logger.Info("cash variance alert sent", "shift_id", c.Shift.ID, "chat_id", t.chatID)
	return nil
}

// FormatClosure renders the alert text.
func FormatClosure(c shifts.Closure) string {
	var b strings.Builder
	label := "over"
	if c.Difference.IsNegative() {
		label = "short"
	}
	fmt.Fprintf(&b, "Shift closed %s by %s\n", label, c.Difference.Abs().StringFixed(2))
	fmt.Fprintf(&b, "Staff: %s (%s shift)\n", c.Shift.StaffID, c.Shift.Slot)
	fmt.Fprintf(&b, "Opened: %s\n", c.Shift.OpenedAt.Format("2006-01-02 15:04"))
	if c.Shift.ClosedAt != nil {
		fmt.Fprintf(&b, "Closed: %s\n", c.Shift.ClosedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "Expected: %s\n", c.Expected.StringFixed(2))
	fmt.Fprintf(&b, "Declared: %s\n", c.Declared.StringFixed(2))
	fmt.Fprintf(&b, "Withdrawals: %s", c.Shift.CashWithdrawals.StringFixed(2))
	return b.String()
}

var (
	_ shifts.Notifier = Nop{}
	_ shifts.Notifier = (*Telegram)(nil)
)
