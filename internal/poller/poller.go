// Package poller следит за новыми транзакциями пользователей с включенными
// уведомлениями: по таймеру забирает последнюю транзакцию, сравнивает с
// сохраненной last_tx и при расхождении шлет одно уведомление.
package poller

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
	"github.com/kitbuilder587/bank-notify-bot/internal/metrics"
)

const notificationHeader = "💸 NEW TRANSACTION 💸\n\n"

const (
	outcomeNotified  = "notified"
	outcomeUnchanged = "unchanged"
	outcomeError     = "error"
)

type Store interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	SetTxNotify(ctx context.Context, telegramID int64, enabled bool) error
	SetLastTx(ctx context.Context, telegramID int64, lastTx string) error
	ListNotifiable(ctx context.Context) ([]domain.User, error)
}

// Source отдает отформатированную самую новую транзакцию счета
type Source interface {
	LatestTransaction(ctx context.Context, accountID string) (string, error)
}

// Notifier шлет сообщение в MarkdownV2
type Notifier interface {
	SendMarkdown(chatID int64, text string) error
}

type Config struct {
	IntervalMin time.Duration
	IntervalMax time.Duration
	// MaxRetries - сколько раз перепроверить, если транзакция не поменялась
	MaxRetries  int
	RetryDelay  time.Duration
	Concurrency int64
}

func DefaultConfig() Config {
	return Config{
		IntervalMin: 60 * time.Second,
		IntervalMax: 120 * time.Second,
		MaxRetries:  3,
		RetryDelay:  5 * time.Second,
		Concurrency: 8,
	}
}

type job struct {
	cancel   context.CancelFunc
	interval time.Duration
}

type Poller struct {
	cfg      Config
	store    Store
	source   Source
	notifier Notifier
	logger   *zap.Logger
	metrics  *metrics.Metrics

	sem    *semaphore.Weighted
	jitter func(n int64) int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	jobs     map[int64]*job
	checking map[int64]int
}

func New(cfg Config, store Store, source Source, notifier Notifier, logger *zap.Logger, m *metrics.Metrics) *Poller {
	def := DefaultConfig()
	if cfg.IntervalMin <= 0 {
		cfg.IntervalMin = def.IntervalMin
	}
	if cfg.IntervalMax < cfg.IntervalMin {
		cfg.IntervalMax = cfg.IntervalMin
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Poller{
		cfg:      cfg,
		store:    store,
		source:   source,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		sem:      semaphore.NewWeighted(cfg.Concurrency),
		jitter:   rand.Int64N,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[int64]*job),
		checking: make(map[int64]int),
	}
}

// Enable включает уведомления: сохраняет tx_notify, запоминает текущую последнюю
// транзакцию без уведомления и запускает таймер. Повторный вызов перезапускает таймер.
func (p *Poller) Enable(ctx context.Context, userID int64) error {
	user, err := p.store.GetByTelegramID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasAccount() {
		return domain.ErrNotLinked
	}

	if err := p.store.SetTxNotify(ctx, userID, true); err != nil {
		return err
	}

	p.arm(userID)

	latest, err := p.fetch(ctx, user.BankAccountID)
	switch {
	case errors.Is(err, domain.ErrNoTransactions):
	case err != nil:
		// таймер уже запущен, первый цикл сам выставит last_tx
		p.logger.Warn("baseline fetch failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	case latest != user.LastTx:
		if err := p.store.SetLastTx(ctx, userID, latest); err != nil {
			p.logger.Warn("failed to store baseline transaction",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// Resume запускает таймер без базового запроса. Для /start и старта процесса.
func (p *Poller) Resume(userID int64) {
	p.arm(userID)
}

// Disable останавливает таймер и сохраняет tx_notify=false. Возвращает false,
// если таймера не было. Цикл, который уже идет, доработает до конца.
func (p *Poller) Disable(ctx context.Context, userID int64) (bool, error) {
	removed := p.disarm(userID)

	if err := p.store.SetTxNotify(ctx, userID, false); err != nil {
		return removed, err
	}

	p.logger.Info("transaction notifications disabled",
		zap.Int64("user_id", userID),
		zap.Bool("timer_removed", removed),
	)
	return removed, nil
}

// Reconcile поднимает таймеры для всех, у кого в базе включены уведомления.
func (p *Poller) Reconcile(ctx context.Context) (int, error) {
	users, err := p.store.ListNotifiable(ctx)
	if err != nil {
		return 0, fmt.Errorf("list notifiable users: %w", err)
	}

	for _, u := range users {
		p.arm(u.TelegramID)
	}

	p.logger.Info("polling restored from stored settings",
		zap.Int("users", len(users)),
	)
	return len(users), nil
}

func (p *Poller) State(userID int64) domain.PollState {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.checking[userID] > 0 {
		return domain.PollChecking
	}
	if _, ok := p.jobs[userID]; ok {
		return domain.PollPolling
	}
	return domain.PollIdle
}

// Interval - интервал таймера пользователя, если таймер запущен
func (p *Poller) Interval(userID int64) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[userID]
	if !ok {
		return 0, false
	}
	return j.interval, true
}

// Active - число пользователей с запущенным таймером
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

// Stop отменяет все таймеры и циклы и ждет завершения горутин.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.cancel()
	for userID, j := range p.jobs {
		j.cancel()
		delete(p.jobs, userID)
		p.decActive()
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Check - один цикл для пользователя. Если последняя транзакция совпадает с
// last_tx, перепроверяет до MaxRetries раз: агрегатор отдает новые данные с задержкой.
func (p *Poller) Check(ctx context.Context, userID int64) (bool, error) {
	p.setChecking(userID, 1)
	defer p.setChecking(userID, -1)

	notified, err := p.check(ctx, userID)
	switch {
	case err != nil:
		p.recordCycle(outcomeError)
		p.logger.Error("poll cycle failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	case notified:
		p.recordCycle(outcomeNotified)
	default:
		p.recordCycle(outcomeUnchanged)
	}
	return notified, err
}

func (p *Poller) check(ctx context.Context, userID int64) (bool, error) {
	user, err := p.store.GetByTelegramID(ctx, userID)
	if err != nil {
		return false, err
	}
	if !user.HasAccount() {
		return false, domain.ErrNotLinked
	}

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.cfg.RetryDelay); err != nil {
				return false, err
			}
		}

		latest, err := p.fetch(ctx, user.BankAccountID)
		if errors.Is(err, domain.ErrNoTransactions) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		if latest == user.LastTx {
			continue
		}

		if err := p.store.SetLastTx(ctx, userID, latest); err != nil {
			return false, err
		}

		err = p.notifier.SendMarkdown(userID, notificationHeader+latest)
		p.recordNotification(err)
		if err != nil {
			return false, fmt.Errorf("send notification: %w", err)
		}

		p.logger.Info("new transaction notified",
			zap.Int64("user_id", userID),
			zap.Int("attempt", attempt),
		)
		return true, nil
	}

	p.logger.Debug("no new transactions",
		zap.Int64("user_id", userID),
	)
	return false, nil
}

func (p *Poller) fetch(ctx context.Context, accountID string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	return p.source.LatestTransaction(ctx, accountID)
}

func (p *Poller) arm(userID int64) {
	interval := p.interval()
	jobCtx, cancel := context.WithCancel(p.ctx)

	p.mu.Lock()
	if p.ctx.Err() != nil {
		p.mu.Unlock()
		cancel()
		return
	}
	if old, ok := p.jobs[userID]; ok {
		old.cancel()
	} else {
		p.incActive()
	}
	p.jobs[userID] = &job{cancel: cancel, interval: interval}
	p.wg.Add(1)
	p.mu.Unlock()

	p.logger.Info("transaction polling armed",
		zap.Int64("user_id", userID),
		zap.Duration("interval", interval),
	)

	go p.run(jobCtx, userID, interval)
}

func (p *Poller) disarm(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[userID]
	if !ok {
		return false
	}
	j.cancel()
	delete(p.jobs, userID)
	p.decActive()
	return true
}

func (p *Poller) run(jobCtx context.Context, userID int64, interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-jobCtx.Done():
			return
		case <-ticker.C:
			// отключение таймера не прерывает начатый цикл
			p.Check(p.ctx, userID)
		}
	}
}

// interval - равномерно в [IntervalMin, IntervalMax], один раз на таймер
func (p *Poller) interval() time.Duration {
	spread := int64(p.cfg.IntervalMax - p.cfg.IntervalMin)
	if spread <= 0 {
		return p.cfg.IntervalMin
	}
	return p.cfg.IntervalMin + time.Duration(p.jitter(spread+1))
}

func (p *Poller) setChecking(userID int64, delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.checking[userID] += delta
	if p.checking[userID] <= 0 {
		delete(p.checking, userID)
	}
}

func (p *Poller) recordCycle(outcome string) {
	if p.metrics != nil {
		p.metrics.RecordPollCycle(outcome)
	}
}

func (p *Poller) recordNotification(err error) {
	if p.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordNotification("transaction", status)
}

func (p *Poller) incActive() {
	if p.metrics != nil {
		p.metrics.IncActivePollers()
	}
}

func (p *Poller) decActive() {
	if p.metrics != nil {
		p.metrics.DecActivePollers()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
