package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
	"github.com/kitbuilder587/bank-notify-bot/internal/metrics"
	"github.com/kitbuilder587/bank-notify-bot/internal/ratelimit"
	"github.com/kitbuilder587/bank-notify-bot/internal/service"
)

type BotConfig struct {
	Token string
	Debug bool
	// BankName показывается в приветствии
	BankName string
	Currency string
}

// botAPI - часть *tgbotapi.BotAPI, которой пользуется бот
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Notifications - управление опросом транзакций. Реализуется *poller.Poller.
type Notifications interface {
	Enable(ctx context.Context, userID int64) error
	Disable(ctx context.Context, userID int64) (bool, error)
	Resume(userID int64)
	State(userID int64) domain.PollState
}

type Bot struct {
	api              botAPI
	cfg              BotConfig
	userService      service.UserService
	accountService   service.AccountService
	broadcastService service.BroadcastService
	notifications    Notifications
	logger           *zap.Logger
	metrics          *metrics.Metrics
	handler          *Handler
	rateLimiter      *ratelimit.Limiter
	wg               sync.WaitGroup

	// очередь апдейтов на пользователя: сообщения одного юзера идут строго
	// по порядку, разные юзеры обрабатываются параллельно
	queueMu sync.Mutex
	queues  map[int64][]tgbotapi.Update
}

func New(cfg BotConfig, userSvc service.UserService, accountSvc service.AccountService, limiter *ratelimit.Limiter, logger *zap.Logger, m *metrics.Metrics) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	api.Debug = cfg.Debug

	bot := newBot(api, cfg, userSvc, accountSvc, limiter, logger, m)

	logger.Info("telegram bot authorized",
		zap.String("username", api.Self.UserName),
	)

	return bot, nil
}

func newBot(api botAPI, cfg BotConfig, userSvc service.UserService, accountSvc service.AccountService, limiter *ratelimit.Limiter, logger *zap.Logger, m *metrics.Metrics) *Bot {
	if cfg.BankName == "" {
		cfg.BankName = "Bank"
	}
	bot := &Bot{
		api:            api,
		cfg:            cfg,
		userService:    userSvc,
		accountService: accountSvc,
		logger:         logger,
		metrics:        m,
		rateLimiter:    limiter,
		queues:         make(map[int64][]tgbotapi.Update),
	}
	bot.handler = NewHandler(bot)
	return bot
}

// SetBroadcast и SetNotifications вызываются после New: рассылке и поллеру
// самим нужен бот для отправки сообщений.
func (b *Bot) SetBroadcast(svc service.BroadcastService) {
	b.broadcastService = svc
}

func (b *Bot) SetNotifications(n Notifications) {
	b.notifications = n
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("bot started, waiting for updates")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot stopping, waiting for handlers to finish")
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.logger.Info("all handlers finished")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch ставит апдейт в очередь пользователя. Воркер на пользователя
// создается по требованию и завершается, когда очередь опустела.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID

	b.queueMu.Lock()
	pending, running := b.queues[userID]
	b.queues[userID] = append(pending, update)
	b.queueMu.Unlock()

	if running {
		return
	}

	b.wg.Add(1)
	go b.drain(ctx, userID)
}

func (b *Bot) drain(ctx context.Context, userID int64) {
	defer b.wg.Done()

	for {
		b.queueMu.Lock()
		pending := b.queues[userID]
		if len(pending) == 0 {
			delete(b.queues, userID)
			b.queueMu.Unlock()
			return
		}
		update := pending[0]
		b.queues[userID] = pending[1:]
		b.queueMu.Unlock()

		b.handleUpdate(ctx, update)
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	startTime := time.Now()
	updType := "message"
	if update.Message.IsCommand() {
		updType = "command"
	}

	defer func() {
		if r := recover(); r != nil {
			chatID := int64(0)
			if update.Message.Chat != nil {
				chatID = update.Message.Chat.ID
			}
			b.logger.Error("panic in update handler",
				zap.Any("panic", r),
				zap.Int64("chat_id", chatID),
			)
			if b.metrics != nil {
				b.metrics.RecordUpdate(updType, "panic", time.Since(startTime))
			}
		}
	}()

	b.handler.HandleMessage(ctx, update.Message)

	if b.metrics != nil {
		b.metrics.RecordUpdate(updType, "processed", time.Since(startTime))
	}
}

// SendPlain - текст без разметки, длинный режется на части
func (b *Bot) SendPlain(chatID int64, text string) error {
	for _, part := range SplitMessage(text, maxMessageLen) {
		if err := b.send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return err
		}
	}
	return nil
}

// SendMarkdown - текст уже экранирован под MarkdownV2
func (b *Bot) SendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true
	return b.send(msg)
}

func (b *Bot) SendWithMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	msg.DisableWebPagePreview = true
	return b.send(msg)
}

func (b *Bot) send(c tgbotapi.Chattable) error {
	if b.api == nil {
		return nil
	}
	_, err := b.api.Send(c)
	if err != nil {
		b.logger.Warn("failed to send telegram message", zap.Error(err))
	}
	return err
}

func (b *Bot) RecordRateLimitHit(action Action) {
	if b.metrics != nil {
		b.metrics.RecordRateLimitHit(action.String())
	}
}
