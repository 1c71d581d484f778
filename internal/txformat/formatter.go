// Package txformat превращает транзакции агрегатора в сообщения для Telegram (MarkdownV2).
package txformat

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
)

const (
	// DefaultLimit - сколько booked и сколько pending записей берется со страницы
	DefaultLimit    = 11
	DefaultCurrency = "SEK"

	idLayout      = "2006-01-02-15.04.05.000000"
	bookingLayout = "2006-01-02"
	displayLayout = "02.01.2006 ⌛ 15:04"
	displayDate   = "02.01.2006"
)

type Formatter struct {
	rules    Rules
	currency string
}

func New(rules Rules, currency string) *Formatter {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Formatter{rules: rules, currency: currency}
}

// Format берет первые limit booked и первые limit pending записей страницы,
// склеивает booked+pending (хронологический порядок агрегатора) и разворачивает:
// результат идет от новых к старым.
func (f *Formatter) Format(page *domain.TransactionPage, limit int) []string {
	if page == nil {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	booked := head(page.Booked, limit)
	pending := head(page.Pending, limit)

	messages := make([]string, 0, len(booked)+len(pending))
	for _, tx := range booked {
		messages = append(messages, f.FormatTransaction(tx))
	}
	for _, tx := range pending {
		messages = append(messages, f.FormatTransaction(tx))
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages
}

// Latest - первый элемент Format с тем же limit, "" для пустой страницы.
// limit должен совпадать с тем, что видит пользователь, иначе last_tx разойдется.
func (f *Formatter) Latest(page *domain.TransactionPage, limit int) string {
	messages := f.Format(page, limit)
	if len(messages) == 0 {
		return ""
	}
	return messages[0]
}

func (f *Formatter) FormatTransaction(tx domain.Transaction) string {
	category, keyword := f.Classify(tx.Description)
	title := f.title(tx, category, keyword)

	return fmt.Sprintf("%s\n\n💵 Amount: %s\n\n🗓️ Date: %s",
		escape(title),
		f.amount(tx),
		escape(transactionDate(tx)),
	)
}

// Classify ищет ключевое слово в описании. Ничего не нашлось - CategoryOther.
func (f *Formatter) Classify(description string) (domain.Category, string) {
	checks := []struct {
		category domain.Category
		keywords []string
	}{
		{domain.CategoryTransfer, f.rules.Transfer},
		{domain.CategoryCardPayment, f.rules.CardPayment},
		{domain.CategorySalary, f.rules.Salary},
		{domain.CategoryServicePayment, f.rules.ServicePayment},
	}

	for _, c := range checks {
		for _, kw := range c.keywords {
			if kw != "" && strings.Contains(description, kw) {
				return c.category, kw
			}
		}
	}
	return domain.CategoryOther, ""
}

func (f *Formatter) title(tx domain.Transaction, category domain.Category, keyword string) string {
	party := counterparty(tx.Description, keyword)

	switch category {
	case domain.CategoryTransfer:
		direction := "from"
		if tx.IsOutgoing() {
			direction = "to"
		}
		return joinNonEmpty("🔄 #Transfer "+direction, party)
	case domain.CategoryCardPayment:
		return joinNonEmpty("💳 #CardPayment to", dropCardDate(party))
	case domain.CategorySalary:
		return "💰 #MonthlySalary"
	case domain.CategoryServicePayment:
		return joinNonEmpty("🏦 #ServicePayment to", party)
	default:
		return joinNonEmpty("🧾 #Other", party)
	}
}

// amount - сумма без знака; расходы жирным
func (f *Formatter) amount(tx domain.Transaction) string {
	currency := tx.Currency
	if currency == "" {
		currency = f.currency
	}

	value := escape(tx.Amount.Abs().StringFixed(2))
	if tx.IsOutgoing() {
		value = "*" + value + "*"
	}
	return value + " " + escape(currency)
}

func transactionDate(tx domain.Transaction) string {
	if t, err := time.Parse(idLayout, tx.ID); err == nil {
		return t.Format(displayLayout)
	}
	if t, err := time.Parse(bookingLayout, tx.BookingDate); err == nil {
		return t.Format(displayDate)
	}
	if tx.ID != "" {
		return tx.ID
	}
	return "unknown"
}

func counterparty(description, keyword string) string {
	s := strings.ReplaceAll(description, "*", "")
	if keyword != "" {
		s = strings.Replace(s, keyword, "", 1)
	}
	return strings.Join(strings.Fields(s), " ")
}

// dropCardDate убирает дату карточной операции: "240301 ICA NARA" -> "ICA NARA"
func dropCardDate(s string) string {
	fields := strings.Fields(s)
	if len(fields) > 1 && isDigits(fields[0]) {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func joinNonEmpty(prefix, s string) string {
	if s == "" {
		return prefix
	}
	return prefix + " " + s
}

func head(txs []domain.Transaction, n int) []domain.Transaction {
	if len(txs) > n {
		return txs[:n]
	}
	return txs
}

// escape экранирует зарезервированные символы MarkdownV2 (. - ( ) # и остальные)
func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}

// Escape - то же для текстов, которые собираются вне форматтера
func Escape(s string) string {
	return escape(s)
}
