package poller

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
	"github.com/kitbuilder587/bank-notify-bot/internal/metrics"
	"github.com/kitbuilder587/bank-notify-bot/internal/repository"
)

// fakeSource отдает ответы по очереди; последний повторяется
type fakeSource struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	calls     map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeSource) set(accountID string, responses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[accountID] = responses
}

func (f *fakeSource) LatestTransaction(ctx context.Context, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.calls[accountID]
	f.calls[accountID]++
	if err := f.errs[accountID]; err != nil {
		return "", err
	}
	resp := f.responses[accountID]
	if len(resp) == 0 {
		return "", domain.ErrNoTransactions
	}
	if n >= len(resp) {
		n = len(resp) - 1
	}
	return resp[n], nil
}

func (f *fakeSource) callCount(accountID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[accountID]
}

type notification struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (f *fakeNotifier) SendMarkdown(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, notification{chatID: chatID, text: text})
	return nil
}

func (f *fakeNotifier) all() []notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification(nil), f.sent...)
}

type fixture struct {
	repo     *repository.MockUserRepository
	source   *fakeSource
	notifier *fakeNotifier
	metrics  *metrics.Metrics
	poller   *Poller
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		repo:     repository.NewMockUserRepository(),
		source:   newFakeSource(),
		notifier: &fakeNotifier{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.poller = New(cfg, f.repo, f.source, f.notifier, zap.NewNop(), f.metrics)
	t.Cleanup(f.poller.Stop)
	return f
}

func fastConfig() Config {
	return Config{
		IntervalMin: time.Hour,
		IntervalMax: time.Hour,
		MaxRetries:  3,
		RetryDelay:  time.Millisecond,
		Concurrency: 2,
	}
}

func linkedUser(id int64, lastTx string) domain.User {
	return domain.User{
		TelegramID:    id,
		BankAccountID: "acc-" + string(rune('a'+id)),
		IsAuthorized:  true,
		LastTx:        lastTx,
	}
}

func TestCheck_NotifiesOnChange(t *testing.T) {
	f := newFixture(t, fastConfig())
	u := linkedUser(1, "old")
	f.repo.Put(u)
	f.source.set(u.BankAccountID, "new")

	notified, err := f.poller.Check(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, notified)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(1), sent[0].chatID)
	assert.Equal(t, "💸 NEW TRANSACTION 💸\n\nnew", sent[0].text)

	stored, _ := f.repo.GetByTelegramID(context.Background(), 1)
	assert.Equal(t, "new", stored.LastTx)
	assert.Equal(t, 1, f.source.callCount(u.BankAccountID))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PollCyclesTotal.WithLabelValues(outcomeNotified)))
}

func TestCheck_UnchangedRetriesThenGivesUp(t *testing.T) {
	f := newFixture(t, fastConfig())
	u := linkedUser(1, "same")
	f.repo.Put(u)
	f.source.set(u.BankAccountID, "same")

	notified, err := f.poller.Check(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, notified)

	assert.Equal(t, 4, f.source.callCount(u.BankAccountID), "one fetch and three retries")
	assert.Empty(t, f.notifier.all())
	assert.Equal(t, 0, f.repo.LastTxWrites)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PollCyclesTotal.WithLabelValues(outcomeUnchanged)))
}

func TestCheck_ChangeSeenOnRetry(t *testing.T) {
	f := newFixture(t, fastConfig())
	u := linkedUser(1, "same")
	f.repo.Put(u)
	f.source.set(u.BankAccountID, "same", "same", "fresh")

	notified, err := f.poller.Check(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, notified)
	assert.Equal(t, 3, f.source.callCount(u.BankAccountID))
	require.Len(t, f.notifier.all(), 1)
}

func TestCheck_Errors(t *testing.T) {
	upstream := errors.New("upstream down")

	tests := []struct {
		name    string
		user    domain.User
		setup   func(*fixture, domain.User)
		wantErr error
	}{
		{
			name: "fetch failure aborts the cycle",
			user: linkedUser(1, "old"),
			setup: func(f *fixture, u domain.User) {
				f.source.errs[u.BankAccountID] = upstream
			},
			wantErr: upstream,
		},
		{
			name:    "not linked",
			user:    domain.User{TelegramID: 1},
			setup:   func(f *fixture, u domain.User) {},
			wantErr: domain.ErrNotLinked,
		},
		{
			name: "notification failure",
			user: linkedUser(1, "old"),
			setup: func(f *fixture, u domain.User) {
				f.source.set(u.BankAccountID, "new")
				f.notifier.err = upstream
			},
			wantErr: upstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fastConfig())
			f.repo.Put(tt.user)
			tt.setup(f, tt.user)

			notified, err := f.poller.Check(context.Background(), tt.user.TelegramID)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, notified)
			assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PollCyclesTotal.WithLabelValues(outcomeError)))
		})
	}
}

func TestCheck_NoTransactionsIsNotAnError(t *testing.T) {
	f := newFixture(t, fastConfig())
	u := linkedUser(1, "")
	f.repo.Put(u)

	notified, err := f.poller.Check(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, notified)
	assert.Equal(t, 1, f.source.callCount(u.BankAccountID))
}

func TestCheck_FailureIsolatedPerUser(t *testing.T) {
	f := newFixture(t, fastConfig())
	broken := linkedUser(1, "old")
	healthy := linkedUser(2, "old")
	f.repo.Put(broken)
	f.repo.Put(healthy)
	f.source.errs[broken.BankAccountID] = errors.New("boom")
	f.source.set(healthy.BankAccountID, "new")

	_, err := f.poller.Check(context.Background(), 1)
	assert.Error(t, err)

	notified, err := f.poller.Check(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, notified)
}

func TestEnable_BaselineWithoutNotification(t *testing.T) {
	f := newFixture(t, fastConfig())
	u := linkedUser(1, "")
	f.repo.Put(u)
	f.source.set(u.BankAccountID, "current")

	require.NoError(t, f.poller.Enable(context.Background(), 1))

	stored, _ := f.repo.GetByTelegramID(context.Background(), 1)
	assert.True(t, stored.TxNotify)
	assert.Equal(t, "current", stored.LastTx)
	assert.Empty(t, f.notifier.all(), "baseline must not notify")
	assert.Equal(t, domain.PollPolling, f.poller.State(1))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ActivePollers))

	// повторное включение перезапускает таймер, а не добавляет второй
	require.NoError(t, f.poller.Enable(context.Background(), 1))
	assert.Equal(t, 1, f.poller.Active())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ActivePollers))
}

func TestEnable_NotLinked(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.repo.Put(domain.User{TelegramID: 1})

	err := f.poller.Enable(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrNotLinked)
	assert.Equal(t, domain.PollIdle, f.poller.State(1))

	stored, _ := f.repo.GetByTelegramID(context.Background(), 1)
	assert.False(t, stored.TxNotify)
}

func TestEnable_BaselineFailureStillArms(t *testing.T) {
	f := newFixture(t, fastConfig())
	u := linkedUser(1, "")
	f.repo.Put(u)
	f.source.errs[u.BankAccountID] = errors.New("boom")

	require.NoError(t, f.poller.Enable(context.Background(), 1))
	assert.Equal(t, domain.PollPolling, f.poller.State(1))
}

func TestDisable(t *testing.T) {
	f := newFixture(t, fastConfig())
	u := linkedUser(1, "")
	f.repo.Put(u)
	f.source.set(u.BankAccountID, "current")
	require.NoError(t, f.poller.Enable(context.Background(), 1))

	removed, err := f.poller.Disable(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, domain.PollIdle, f.poller.State(1))

	stored, _ := f.repo.GetByTelegramID(context.Background(), 1)
	assert.False(t, stored.TxNotify)

	removed, err = f.poller.Disable(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, removed, "no timer to cancel")
	assert.Equal(t, float64(0), testutil.ToFloat64(f.metrics.ActivePollers))
}

func TestReconcile(t *testing.T) {
	f := newFixture(t, fastConfig())
	a := linkedUser(1, "")
	a.TxNotify = true
	b := linkedUser(2, "")
	c := domain.User{TelegramID: 3, TxNotify: true}
	f.repo.Put(a)
	f.repo.Put(b)
	f.repo.Put(c)

	n, err := f.poller.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.PollPolling, f.poller.State(1))
	assert.Equal(t, domain.PollIdle, f.poller.State(2))
	assert.Equal(t, domain.PollIdle, f.poller.State(3))
}

func TestReconcile_StoreError(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.repo.Err = errors.New("db down")

	_, err := f.poller.Reconcile(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, f.poller.Active())
}

func TestInterval_WithinBounds(t *testing.T) {
	cfg := fastConfig()
	cfg.IntervalMin = 60 * time.Second
	cfg.IntervalMax = 120 * time.Second
	f := newFixture(t, cfg)

	f.poller.jitter = func(n int64) int64 { return 0 }
	assert.Equal(t, 60*time.Second, f.poller.interval())

	f.poller.jitter = func(n int64) int64 { return n - 1 }
	assert.Equal(t, 120*time.Second, f.poller.interval())

	f.poller.jitter = rand.Int64N
	for i := 0; i < 100; i++ {
		d := f.poller.interval()
		assert.GreaterOrEqual(t, d, cfg.IntervalMin)
		assert.LessOrEqual(t, d, cfg.IntervalMax)
	}
}

func TestInterval_FixedWhenBoundsEqual(t *testing.T) {
	cfg := fastConfig()
	cfg.IntervalMin = 90 * time.Second
	cfg.IntervalMax = 30 * time.Second
	f := newFixture(t, cfg)

	assert.Equal(t, 90*time.Second, f.poller.interval())

	f.poller.Resume(5)
	got, ok := f.poller.Interval(5)
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, got)
}

func TestTimer_FiresCycle(t *testing.T) {
	cfg := fastConfig()
	cfg.IntervalMin = 10 * time.Millisecond
	cfg.IntervalMax = 20 * time.Millisecond
	cfg.MaxRetries = 0
	f := newFixture(t, cfg)

	u := linkedUser(1, "old")
	f.repo.Put(u)
	f.source.set(u.BankAccountID, "new")

	f.poller.Resume(1)

	assert.Eventually(t, func() bool {
		return len(f.notifier.all()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// last_tx обновлен, следующие циклы молчат
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, f.notifier.all(), 1)
}

func TestStop_CancelsTimers(t *testing.T) {
	cfg := fastConfig()
	cfg.IntervalMin = 5 * time.Millisecond
	cfg.IntervalMax = 5 * time.Millisecond
	f := newFixture(t, cfg)

	for id := int64(1); id <= 3; id++ {
		u := linkedUser(id, "")
		f.repo.Put(u)
		f.poller.Resume(id)
	}
	assert.Equal(t, 3, f.poller.Active())

	f.poller.Stop()
	assert.Equal(t, 0, f.poller.Active())
	assert.Equal(t, float64(0), testutil.ToFloat64(f.metrics.ActivePollers))

	// после остановки новые таймеры не запускаются
	f.poller.Resume(1)
	assert.Equal(t, domain.PollIdle, f.poller.State(1))
}

// gatedSource держит запрос, пока тест не откроет release
type gatedSource struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedSource) LatestTransaction(ctx context.Context, accountID string) (string, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "same", nil
}

func TestState_CheckingDuringCycle(t *testing.T) {
	tests := []struct {
		name  string
		armed bool
		after domain.PollState
	}{
		{"armed user returns to polling", true, domain.PollPolling},
		{"unarmed user returns to idle", false, domain.PollIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fastConfig()
			cfg.MaxRetries = 0
			repo := repository.NewMockUserRepository()
			src := &gatedSource{started: make(chan struct{}, 1), release: make(chan struct{})}
			p := New(cfg, repo, src, &fakeNotifier{}, zap.NewNop(), nil)
			t.Cleanup(p.Stop)

			repo.Put(linkedUser(1, "same"))
			if tt.armed {
				p.Resume(1)
				require.Equal(t, domain.PollPolling, p.State(1))
			}

			done := make(chan error, 1)
			go func() {
				_, err := p.Check(context.Background(), 1)
				done <- err
			}()

			select {
			case <-src.started:
			case <-time.After(2 * time.Second):
				t.Fatal("cycle did not reach the bank")
			}
			assert.Equal(t, domain.PollChecking, p.State(1))

			close(src.release)
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("cycle did not finish")
			}
			assert.Equal(t, tt.after, p.State(1))
		})
	}
}
