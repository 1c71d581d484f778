package telegram

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
)

const maxMessageLen = 4096 // лимит телеграма

const (
	msgChooseOption        = "🏫 Choose an option:"
	msgSessionCreated      = "🧭 Bank session created, please authenticate"
	msgPressDone           = "When you finished in the bank, press \"" + ButtonLinkDone + "\""
	msgAuthSuccess         = "✅ Authentication Successful! ✅"
	msgGettingDetails      = "♻️ Getting Account details..."
	msgGettingBalance      = "♻️ Getting balance..."
	msgGettingTransactions = "♻️ Getting transactions..."
	msgNotifyEnabled       = "🔈 Transactions notifications enabled."
	msgNotifyDisabled      = "🔇 Transactions notifications disabled."
	msgNotifyNotChanged    = "📟 Transactions notifications are not changed."
	msgEnterBroadcast      = "🗣 Enter notification:"
	msgBroadcastCancelled  = "↩️ Notification cancelled."
	msgRateLimited         = "⏳ Too many requests, please wait a minute."
	msgUnknownOption       = "🤷 Unknown option, please use the keyboard."
	msgUnknownCommand      = "🤷 Unknown command, use /help."
)

func welcomeNew(firstName, bank string) string {
	return fmt.Sprintf("👨 Hello %s! Welcome to %s Checker, please authenticate in your bank.", displayName(firstName), bank)
}

func welcomeUnauthorized(firstName string) string {
	return fmt.Sprintf("👨 Hello %s! You are not authorized in your bank, please do that to continue using bot", displayName(firstName))
}

func FormatAccountConnected(details domain.AccountDetails) string {
	return fmt.Sprintf("✅ Account Connected! ✅\nWelcome!\n\n🙎‍♂️ Account Owner: %s\n💳 Account Name: %s",
		orDash(details.OwnerName),
		orDash(details.Product),
	)
}

func FormatBalance(b domain.Balance, fallbackCurrency string) string {
	currency := b.Currency
	if currency == "" {
		currency = fallbackCurrency
	}
	return fmt.Sprintf("💸 Account Balance is %s %s", b.Amount.StringFixed(2), currency)
}

func formatBroadcastResult(sent, failed int) string {
	if failed == 0 {
		return "🟢 Notifications successfully sent!"
	}
	return fmt.Sprintf("🟡 Notifications sent to %d users, %d failed.", sent, failed)
}

const helpText = `Bank transactions bot

/start - log in to your bank or open the main menu
/balance - current balance
/transactions - latest booked and pending transactions
/settings - transaction notifications
/help - this message

After logging in, enable notifications in ⚙️ Settings to get a message for every new transaction.`

func displayName(firstName string) string {
	if strings.TrimSpace(firstName) == "" {
		return "there"
	}
	return firstName
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// SplitMessage режет текст на куски не длиннее maxLen байт, по переводу строки
// или пробелу, не разрывая руны.
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var messages []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			messages = append(messages, text)
			break
		}

		splitPoint := findSafeSplitPoint(text, maxLen)
		messages = append(messages, text[:splitPoint])
		text = text[splitPoint:]
	}

	return messages
}

func findSafeSplitPoint(text string, maxLen int) int {
	for i := maxLen - 1; i > maxLen/2; i-- {
		if text[i] == '\n' {
			return i + 1
		}
	}
	for i := maxLen - 1; i > maxLen/2; i-- {
		if text[i] == ' ' {
			return i + 1
		}
	}

	// пробелов нет - режем по границе руны
	i := maxLen
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	if i == 0 {
		return maxLen
	}
	return i
}
