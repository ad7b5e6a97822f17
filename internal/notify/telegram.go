package notify

import (
	"context"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"github.com/nkiryanov/refledger/internal/models"
)

// TelegramNotifier sends messages to accounts whose external id is a telegram chat id
type TelegramNotifier struct {
	bot *tele.Bot
}

// NewTelegramNotifier creates send-only bot. Empty apiURL means the public Bot API
func NewTelegramNotifier(token string, apiURL string) (*TelegramNotifier, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		URL:     apiURL,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &TelegramNotifier{bot: bot}, nil
}

func (t *TelegramNotifier) send(externalID string, text string) error {
	chatID, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return fmt.Errorf("external id %q is not a telegram chat id", externalID)
	}

	_, err = t.bot.Send(&tele.User{ID: chatID}, text, tele.ModeHTML)
	return err
}

func (t *TelegramNotifier) CommissionCredited(_ context.Context, n CommissionNotice) error {
	text := fmt.Sprintf(
		"💰 <b>Level %d commission</b>\n\n₹%s credited for order %s.\nIt becomes withdrawable on %s.",
		n.Level, n.Amount.StringFixed(2), n.OrderPublicID, n.AvailableAt.Format("02.01.2006 15:04"),
	)
	return t.send(n.ExternalID, text)
}

func (t *TelegramNotifier) WithdrawalStatusChanged(_ context.Context, n WithdrawalNotice) error {
	var text string
	switch n.Status {
	case models.WithdrawalStatusPending:
		text = fmt.Sprintf("🕐 Withdrawal %s of ₹%s is waiting for approval.", n.PublicID, n.Amount.StringFixed(2))
	case models.WithdrawalStatusApproved:
		text = fmt.Sprintf("✅ Withdrawal %s of ₹%s is approved.", n.PublicID, n.Amount.StringFixed(2))
	case models.WithdrawalStatusPaid:
		text = fmt.Sprintf("✅ Withdrawal %s of ₹%s is paid. Reference: %s", n.PublicID, n.Amount.StringFixed(2), n.PaymentReference)
	case models.WithdrawalStatusRejected:
		text = fmt.Sprintf("❌ Withdrawal %s is rejected: %s\n₹%s is back on your balance.", n.PublicID, n.RejectionReason, n.Amount.StringFixed(2))
	case models.WithdrawalStatusCancelled:
		text = fmt.Sprintf("Withdrawal %s is cancelled. ₹%s is back on your balance.", n.PublicID, n.Amount.StringFixed(2))
	default:
		return fmt.Errorf("unknown withdrawal status %q", n.Status)
	}

	return t.send(n.ExternalID, text)
}
