package memory

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache - in-memory кеш с TTL. Нужен для редко меняющихся ответов агрегатора
// (id банка, владелец счета), на которые иначе уходит дневной лимит запросов.
type Cache[V any] struct {
	mu       sync.RWMutex
	items    map[string]entry[V]
	ttl      time.Duration
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

func New[V any](ctx context.Context, ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache[V]{
		items:    make(map[string]entry[V]),
		ttl:      ttl,
		interval: 5 * time.Minute,
		stopChan: make(chan struct{}),
	}
	go c.cleanup(ctx)
	return c
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// GetOrLoad отдает значение из кеша, иначе зовет load и кладет результат.
// Ошибки load не кешируются. hit=true если значение пришло из кеша.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, error)) (value V, hit bool, err error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	v, err := load()
	if err != nil {
		return v, false, err
	}
	c.Set(key, v)
	return v, false, nil
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Cache[V]) cleanup(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache[V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
		}
	}
}
