// ClubCache — LRU-кэш клубов с TTL для чтения.
// Обёртка над hashicorp/golang-lru/v2/expirable.
// Проверки прав кэш не используют: они читают клуб из хранилища.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_cache_hits_total",
		Help: "Общее количество попаданий в кэш клубов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_cache_misses_total",
		Help: "Общее количество промахов кэша клубов.",
	})
)

// ClubCache — кэш клубов по ID. Каждый экземпляр сервиса имеет свой кэш;
// запись удаляется после каждого изменения клуба, устаревание
// ограничено TTL.
type ClubCache struct {
	cache *expirable.LRU[string, model.Club]
}

// NewClubCache создаёт кэш с максимальным размером maxSize и временем жизни ttl.
func NewClubCache(maxSize int, ttl time.Duration) *ClubCache {
	return &ClubCache{cache: expirable.NewLRU[string, model.Club](maxSize, nil, ttl)}
}

// Get возвращает копию клуба из кэша.
func (c *ClubCache) Get(id string) (*model.Club, bool) {
	if c == nil {
		return nil, false
	}
	val, ok := c.cache.Get(id)
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return &val, true
}

// Set сохраняет копию клуба.
func (c *ClubCache) Set(club *model.Club) {
	if c == nil || club == nil {
		return
	}
	c.cache.Add(club.ID, *club)
}

// Invalidate удаляет клуб из кэша.
func (c *ClubCache) Invalidate(id string) {
	if c == nil {
		return
	}
	c.cache.Remove(id)
}

// Len возвращает количество записей в кэше.
func (c *ClubCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
