package repository

import (
	"context"
	"fmt"
	"time"

	"SRLevels/internal/domain/models"
	domrepo "SRLevels/internal/domain/repository"
	"SRLevels/pkg/cache"
	applogger "SRLevels/pkg/logger"
)

const (
	cacheGetPrefix  = "levels:get"
	cacheListPrefix = "levels:list"
)

// CachedResultStore serves reads from a cache in front of another store.
// Writes go through and then drop the affected entries.
type CachedResultStore struct {
	domrepo.ResultStore
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedResultStore(inner domrepo.ResultStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedResultStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CachedResultStore{ResultStore: inner, cache: c, ttl: ttl, l: l.With("result_cache")}
}

func getKey(k models.AnalysisKey) string {
	return cache.Key(cacheGetPrefix, k.String())
}

func listKey(f models.ResultFilter, page, pageSize int) string {
	raw := fmt.Sprintf("%s|%s|%s|%d|%d", f.Exchange, f.MarketType, models.NormalizeSymbol(f.Symbol), page, pageSize)
	return cache.Key(cacheListPrefix, cache.Hash(raw))
}

func (s *CachedResultStore) Get(ctx context.Context, key models.AnalysisKey) (*models.AnalysisResult, error) {
	return cache.GetOrLoad(ctx, s.cache, getKey(key), s.ttl, func(ctx context.Context) (*models.AnalysisResult, error) {
		return s.ResultStore.Get(ctx, key)
	})
}

func (s *CachedResultStore) List(ctx context.Context, f models.ResultFilter, page, pageSize int) (*models.ResultPage, error) {
	return cache.GetOrLoad(ctx, s.cache, listKey(f, page, pageSize), s.ttl, func(ctx context.Context) (*models.ResultPage, error) {
		return s.ResultStore.List(ctx, f, page, pageSize)
	})
}

func (s *CachedResultStore) Upsert(ctx context.Context, r *models.AnalysisResult) error {
	return s.UpsertBatch(ctx, []*models.AnalysisResult{r})
}

func (s *CachedResultStore) UpsertBatch(ctx context.Context, rs []*models.AnalysisResult) error {
	if err := s.ResultStore.UpsertBatch(ctx, rs); err != nil {
		return err
	}
	s.Invalidate(ctx, rs...)
	return nil
}

// Invalidate drops cached reads that may include rs. Failures are logged,
// entries expire on their own.
func (s *CachedResultStore) Invalidate(ctx context.Context, rs ...*models.AnalysisResult) {
	keys := make([]string, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			keys = append(keys, getKey(r.AnalysisKey))
		}
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.l.Warn("cache delete failed", applogger.Error(err))
	}
	if err := s.cache.DeleteByPattern(ctx, cache.Under(cacheListPrefix)); err != nil {
		s.l.Warn("cache pattern delete failed", applogger.Error(err))
	}
}
