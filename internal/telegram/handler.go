package telegram

import (
	"context"
	"errors"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/kitbuilder587/bank-notify-bot/internal/bankdata"
	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
)

type Handler struct {
	bot *Bot

	// админы, от которых ждем текст рассылки
	mu       sync.Mutex
	awaiting map[int64]bool
}

func NewHandler(bot *Bot) *Handler {
	return &Handler{
		bot:      bot,
		awaiting: make(map[int64]bool),
	}
}

func (h *Handler) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	h.bot.logger.Info("received message",
		zap.Int64("user_id", msg.From.ID),
		zap.Bool("is_command", msg.IsCommand()),
	)

	if msg.IsCommand() {
		h.handleCommand(ctx, msg)
		return
	}

	action := ParseAction(msg.Text)

	if h.isAwaitingBroadcast(msg.From.ID) {
		h.handleBroadcastText(ctx, msg, action)
		return
	}

	h.handleAction(ctx, msg, action)
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	// команда прерывает ввод рассылки
	h.setAwaitingBroadcast(msg.From.ID, false)

	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.bot.SendPlain(msg.Chat.ID, helpText)
	default:
		action := ParseCommandAction(msg.Command())
		if action == ActionUnknown {
			h.bot.SendPlain(msg.Chat.ID, msgUnknownCommand)
			return
		}
		h.handleAction(ctx, msg, action)
	}
}

func (h *Handler) handleAction(ctx context.Context, msg *tgbotapi.Message, action Action) {
	switch action {
	case ActionLogin:
		h.handleLogin(ctx, msg)
	case ActionLinkDone:
		h.handleLinkDone(ctx, msg)
	case ActionBalance:
		h.handleBalance(ctx, msg)
	case ActionTransactions:
		h.handleTransactions(ctx, msg)
	case ActionSettings:
		h.handleSettings(ctx, msg)
	case ActionBack:
		h.showMainMenu(msg)
	case ActionEnableNotifications:
		h.handleEnableNotifications(ctx, msg)
	case ActionDisableNotifications:
		h.handleDisableNotifications(ctx, msg)
	case ActionNotifyEveryone:
		h.handleNotifyEveryone(msg)
	default:
		h.bot.SendPlain(msg.Chat.ID, msgUnknownOption)
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	user, created, err := h.bot.userService.GetOrCreate(ctx, msg.From.ID)
	if err != nil {
		h.bot.logger.Error("failed to create user", zap.Error(err))
		h.replyError(msg, err)
		return
	}

	switch {
	case created:
		h.bot.SendPlain(msg.Chat.ID, welcomeNew(msg.From.FirstName, h.bot.cfg.BankName))
		h.beginLink(ctx, msg)
	case user.IsAuthorized:
		// таймер поднимаем даже если банк сейчас недоступен
		if user.TxNotify && h.bot.notifications != nil {
			h.bot.notifications.Resume(user.TelegramID)
		}
		h.completeLink(ctx, msg)
	default:
		h.bot.SendWithMarkup(msg.Chat.ID, welcomeUnauthorized(msg.From.FirstName), loginKeyboard())
	}
}

func (h *Handler) handleLogin(ctx context.Context, msg *tgbotapi.Message) {
	if !h.allow(msg, ActionLogin) {
		return
	}
	if _, _, err := h.bot.userService.GetOrCreate(ctx, msg.From.ID); err != nil {
		h.replyError(msg, err)
		return
	}
	h.beginLink(ctx, msg)
}

func (h *Handler) handleLinkDone(ctx context.Context, msg *tgbotapi.Message) {
	if !h.allow(msg, ActionLinkDone) {
		return
	}
	h.completeLink(ctx, msg)
}

func (h *Handler) beginLink(ctx context.Context, msg *tgbotapi.Message) {
	link, err := h.bot.userService.BeginLink(ctx, msg.From.ID)
	if err != nil {
		h.bot.logger.Error("failed to create bank session",
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err),
		)
		h.replyError(msg, err)
		return
	}

	h.bot.SendWithMarkup(msg.Chat.ID, msgSessionCreated, authLinkMarkup(link))
	h.bot.SendWithMarkup(msg.Chat.ID, msgPressDone, linkDoneKeyboard())
}

// completeLink заново достает счет из согласия и показывает главное меню
func (h *Handler) completeLink(ctx context.Context, msg *tgbotapi.Message) bool {
	_, details, err := h.bot.userService.CompleteLink(ctx, msg.From.ID)
	if err != nil {
		h.bot.logger.Warn("failed to complete bank link",
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err),
		)
		h.replyError(msg, err)
		return false
	}

	h.bot.SendPlain(msg.Chat.ID, msgAuthSuccess)
	h.bot.SendPlain(msg.Chat.ID, FormatAccountConnected(details))
	h.showMainMenu(msg)
	return true
}

func (h *Handler) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	if !h.allow(msg, ActionBalance) {
		return
	}

	h.bot.SendPlain(msg.Chat.ID, msgGettingBalance)

	balance, err := h.bot.accountService.Balance(ctx, msg.From.ID)
	if err != nil {
		h.bot.logger.Error("failed to get balance",
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err),
		)
		h.replyError(msg, err)
		return
	}

	h.bot.SendPlain(msg.Chat.ID, FormatBalance(balance, h.bot.cfg.Currency))
}

func (h *Handler) handleTransactions(ctx context.Context, msg *tgbotapi.Message) {
	if !h.allow(msg, ActionTransactions) {
		return
	}

	h.bot.SendPlain(msg.Chat.ID, msgGettingTransactions)

	messages, err := h.bot.accountService.Transactions(ctx, msg.From.ID)
	if err != nil {
		h.bot.logger.Error("failed to get transactions",
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err),
		)
		h.replyError(msg, err)
		return
	}

	for _, m := range messages {
		if err := h.bot.SendMarkdown(msg.Chat.ID, m); err != nil {
			h.bot.logger.Error("failed to send transaction", zap.Error(err))
		}
	}
}

func (h *Handler) handleSettings(ctx context.Context, msg *tgbotapi.Message) {
	user, err := h.bot.userService.Get(ctx, msg.From.ID)
	if err != nil {
		h.replyError(msg, err)
		return
	}
	if !user.HasAccount() {
		h.replyError(msg, domain.ErrNotLinked)
		return
	}

	// уведомления включены в базе, а таймера нет - поднимаем
	if user.TxNotify && h.bot.notifications != nil && h.bot.notifications.State(user.TelegramID) == domain.PollIdle {
		h.bot.logger.Info("re-arming notifications from settings",
			zap.Int64("user_id", user.TelegramID),
		)
		h.bot.notifications.Resume(user.TelegramID)
	}

	h.bot.SendWithMarkup(msg.Chat.ID, msgChooseOption, settingsKeyboard(user.TxNotify))
}

func (h *Handler) handleEnableNotifications(ctx context.Context, msg *tgbotapi.Message) {
	if h.bot.notifications == nil {
		h.bot.SendPlain(msg.Chat.ID, msgUnknownOption)
		return
	}
	if !h.allow(msg, ActionEnableNotifications) {
		return
	}

	if err := h.bot.notifications.Enable(ctx, msg.From.ID); err != nil {
		h.bot.logger.Error("failed to enable notifications",
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err),
		)
		h.replyError(msg, err)
		return
	}

	h.bot.SendWithMarkup(msg.Chat.ID, msgNotifyEnabled, settingsKeyboard(true))
}

func (h *Handler) handleDisableNotifications(ctx context.Context, msg *tgbotapi.Message) {
	if h.bot.notifications == nil {
		h.bot.SendPlain(msg.Chat.ID, msgUnknownOption)
		return
	}
	removed, err := h.bot.notifications.Disable(ctx, msg.From.ID)
	if err != nil {
		h.bot.logger.Error("failed to disable notifications",
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err),
		)
		h.replyError(msg, err)
		return
	}

	if !removed {
		h.bot.SendWithMarkup(msg.Chat.ID, msgNotifyNotChanged, settingsKeyboard(false))
		return
	}
	h.bot.SendWithMarkup(msg.Chat.ID, msgNotifyDisabled, settingsKeyboard(false))
}

func (h *Handler) handleNotifyEveryone(msg *tgbotapi.Message) {
	if h.bot.broadcastService == nil || !h.bot.broadcastService.IsAdmin(msg.From.ID) {
		h.bot.SendPlain(msg.Chat.ID, msgUnknownOption)
		return
	}

	h.setAwaitingBroadcast(msg.From.ID, true)
	h.bot.SendWithMarkup(msg.Chat.ID, msgEnterBroadcast, backKeyboard())
}

func (h *Handler) handleBroadcastText(ctx context.Context, msg *tgbotapi.Message, action Action) {
	h.setAwaitingBroadcast(msg.From.ID, false)

	if action == ActionBack {
		h.bot.SendPlain(msg.Chat.ID, msgBroadcastCancelled)
		h.showMainMenu(msg)
		return
	}

	result, err := h.bot.broadcastService.Broadcast(ctx, msg.From.ID, msg.Text)
	if err != nil {
		h.replyError(msg, err)
		return
	}

	h.bot.SendPlain(msg.Chat.ID, formatBroadcastResult(result.Sent, result.Failed))
	h.showMainMenu(msg)
}

func (h *Handler) showMainMenu(msg *tgbotapi.Message) {
	isAdmin := h.bot.broadcastService != nil && h.bot.broadcastService.IsAdmin(msg.From.ID)
	h.bot.SendWithMarkup(msg.Chat.ID, msgChooseOption, mainKeyboard(isAdmin))
}

func (h *Handler) allow(msg *tgbotapi.Message, action Action) bool {
	if h.bot.rateLimiter == nil || h.bot.rateLimiter.Allow(msg.From.ID) {
		return true
	}

	h.bot.logger.Warn("rate limit exceeded",
		zap.Int64("user_id", msg.From.ID),
		zap.Stringer("action", action),
		zap.Time("reset_at", h.bot.rateLimiter.ResetTime(msg.From.ID)),
	)
	h.bot.RecordRateLimitHit(action)
	h.bot.SendPlain(msg.Chat.ID, msgRateLimited)
	return false
}

func (h *Handler) replyError(msg *tgbotapi.Message, err error) {
	text := mapErrorToMessage(err)
	if errors.Is(err, domain.ErrNotLinked) || errors.Is(err, domain.ErrUserNotFound) {
		h.bot.SendWithMarkup(msg.Chat.ID, text, loginKeyboard())
		return
	}
	h.bot.SendPlain(msg.Chat.ID, text)
}

func (h *Handler) isAwaitingBroadcast(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.awaiting[userID]
}

func (h *Handler) setAwaitingBroadcast(userID int64, on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if on {
		h.awaiting[userID] = true
	} else {
		delete(h.awaiting, userID)
	}
}

func mapErrorToMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotLinked), errors.Is(err, domain.ErrUserNotFound):
		return "🔐 You are not authorized in your bank, press " + ButtonLogin + " to continue."
	case errors.Is(err, domain.ErrNoRequisition):
		return "🧭 No bank session yet, press " + ButtonLogin + " first."
	case errors.Is(err, domain.ErrNoAccounts):
		return "⏳ Bank authentication is not finished yet. Complete it and press " + ButtonLinkDone + "."
	case errors.Is(err, domain.ErrNoTransactions):
		return "📭 There are no transactions yet."
	case errors.Is(err, domain.ErrNoBalance):
		return "🤷 Balance is not available right now."
	case errors.Is(err, domain.ErrEmptyBroadcast):
		return "✏️ Notification text is empty."
	case errors.Is(err, domain.ErrNotAdmin):
		return "⛔ Only the admin can do that."
	case errors.Is(err, bankdata.ErrRateLimited):
		return "🐢 The bank limits requests right now, please try again later."
	case errors.Is(err, bankdata.ErrInstitutionNotFound):
		return "🏦 The bank is not available for linking right now."
	case bankdata.IsAuthError(err), errors.Is(err, bankdata.ErrUpstream), errors.Is(err, bankdata.ErrBadResponse):
		return "😔 The bank did not respond, please try again later."
	default:
		return "😔 Something went wrong, please try again later."
	}
}
