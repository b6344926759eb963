package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sentra/internal/logger"
)

// CachedFetcher 在 Source 之上加一层 TTL 缓存与重试。
// 同一 (symbol, interval, limit) 在 TTL 内的重复请求直接命中缓存，
// 避免每个决策周期都打满交易所的限频。
type CachedFetcher struct {
	source  Source
	ttl     time.Duration
	retries int

	mu    sync.Mutex
	cache map[string]cacheEntry

	nowFn func() time.Time
}

type cacheEntry struct {
	candles   []Candle
	fetchedAt time.Time
}

func NewCachedFetcher(source Source, ttl time.Duration, retries int) *CachedFetcher {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if retries <= 0 {
		retries = 3
	}
	return &CachedFetcher{
		source:  source,
		ttl:     ttl,
		retries: retries,
		cache:   make(map[string]cacheEntry),
		nowFn:   time.Now,
	}
}

// Fetch 返回指定窗口的K线，优先命中缓存。
func (f *CachedFetcher) Fetch(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	key := fmt.Sprintf("%s|%s|%d", symbol, interval, limit)

	f.mu.Lock()
	if entry, ok := f.cache[key]; ok && f.nowFn().Sub(entry.fetchedAt) < f.ttl {
		candles := entry.candles
		f.mu.Unlock()
		return candles, nil
	}
	f.mu.Unlock()

	candles, err := f.fetchWithRetry(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.cache[key] = cacheEntry{candles: candles, fetchedAt: f.nowFn()}
	f.mu.Unlock()
	return candles, nil
}

func (f *CachedFetcher) fetchWithRetry(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	var lastErr error
	backoff := time.Second
	for attempt := 1; attempt <= f.retries; attempt++ {
		candles, err := f.source.FetchHistory(ctx, symbol, interval, limit)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if attempt < f.retries {
			logger.Warnf("拉取K线失败 symbol=%s interval=%s 第%d次: %v", symbol, interval, attempt, err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("fetch %s %s failed after %d attempts: %w", symbol, interval, f.retries, lastErr)
}

// Invalidate 清空缓存（回测或手动刷新时使用）。
func (f *CachedFetcher) Invalidate() {
	f.mu.Lock()
	f.cache = make(map[string]cacheEntry)
	f.mu.Unlock()
}
