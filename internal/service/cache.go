// cache.go — LRU-кэш записей файлов по публичному токену.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/datashare/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_token_cache_hits_total",
		Help: "Общее количество попаданий в кэш токенов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_token_cache_misses_total",
		Help: "Общее количество промахов кэша токенов.",
	})
)

// TokenCache — кэш записей по токену с TTL.
// Статус всегда вычисляется по времени при чтении, поэтому
// закэшированная запись не может «продлить» истёкший файл.
// Удаление в этом процессе инвалидирует запись; TTL ограничивает
// устаревание при удалении другим экземпляром.
type TokenCache struct {
	cache *expirable.LRU[string, *model.FileRecord]
}

// NewTokenCache создаёт кэш. size <= 0 — кэш отключён (nil).
func NewTokenCache(size int, ttl time.Duration) *TokenCache {
	if size <= 0 {
		return nil
	}
	return &TokenCache{cache: expirable.NewLRU[string, *model.FileRecord](size, nil, ttl)}
}

// Get возвращает копию записи из кэша.
func (c *TokenCache) Get(token string) (*model.FileRecord, bool) {
	if c == nil {
		return nil, false
	}
	val, ok := c.cache.Get(token)
	if ok {
		cacheHitsTotal.Inc()
		cp := *val
		return &cp, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set сохраняет копию записи.
func (c *TokenCache) Set(record *model.FileRecord) {
	if c == nil || record == nil {
		return
	}
	cp := *record
	c.cache.Add(record.DownloadToken, &cp)
}

// Invalidate удаляет запись из кэша.
func (c *TokenCache) Invalidate(token string) {
	if c == nil {
		return
	}
	c.cache.Remove(token)
}

// Len возвращает количество записей.
func (c *TokenCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
