package service

import (
	"context"
	"time"

	"github.com/shammaa/url-shortener/internal/cache"
	"github.com/shammaa/url-shortener/internal/entity"
	"github.com/stretchr/testify/mock"
)

type MockLinkStore struct {
	mock.Mock
}

func (s *MockLinkStore) InsertLink(ctx context.Context, link *entity.Link) (*entity.Link, error) {
	args := s.Called(ctx, link)
	created, _ := args.Get(0).(*entity.Link)
	return created, args.Error(1)
}

func (s *MockLinkStore) FindLinkByKey(ctx context.Context, key string) (*entity.Link, error) {
	args := s.Called(ctx, key)
	link, _ := args.Get(0).(*entity.Link)
	return link, args.Error(1)
}

func (s *MockLinkStore) ListLinks(ctx context.Context, limit, offset int) ([]*entity.Link, error) {
	args := s.Called(ctx, limit, offset)
	links, _ := args.Get(0).([]*entity.Link)
	return links, args.Error(1)
}

func (s *MockLinkStore) UpdateLink(ctx context.Context, link *entity.Link) (*entity.Link, error) {
	args := s.Called(ctx, link)
	updated, _ := args.Get(0).(*entity.Link)
	return updated, args.Error(1)
}

func (s *MockLinkStore) SoftDeleteLink(ctx context.Context, key string) error {
	args := s.Called(ctx, key)
	return args.Error(0)
}

func (s *MockLinkStore) IncrementClicks(ctx context.Context, id int64, now time.Time) error {
	args := s.Called(ctx, id, now)
	return args.Error(0)
}

type MockVisitStore struct {
	mock.Mock
}

func (s *MockVisitStore) InsertVisit(ctx context.Context, visit *entity.Visit) error {
	args := s.Called(ctx, visit)
	return args.Error(0)
}

type MockAnalyticsStore struct {
	mock.Mock
}

func (s *MockAnalyticsStore) VisitsOnDay(ctx context.Context, linkID int64, day time.Time) ([]entity.Visit, error) {
	args := s.Called(ctx, linkID, day)
	visits, _ := args.Get(0).([]entity.Visit)
	return visits, args.Error(1)
}

func (s *MockAnalyticsStore) LinkIDsVisitedOn(ctx context.Context, day time.Time) ([]int64, error) {
	args := s.Called(ctx, day)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (s *MockAnalyticsStore) UpsertDailyAnalytics(ctx context.Context, rollup *entity.DailyAnalytics) error {
	args := s.Called(ctx, rollup)
	return args.Error(0)
}

func (s *MockAnalyticsStore) AnalyticsRange(ctx context.Context, linkID int64, from, to time.Time) ([]entity.DailyAnalytics, error) {
	args := s.Called(ctx, linkID, from, to)
	rollups, _ := args.Get(0).([]entity.DailyAnalytics)
	return rollups, args.Error(1)
}

type MockKeyChecker struct {
	mock.Mock
}

func (c *MockKeyChecker) KeyExists(ctx context.Context, key string) (bool, error) {
	args := c.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

type MockHasher struct {
	mock.Mock
}

func (h *MockHasher) Hash(plaintext string) (string, error) {
	args := h.Called(plaintext)
	return args.String(0), args.Error(1)
}

func (h *MockHasher) Verify(plaintext, hash string) bool {
	args := h.Called(plaintext, hash)
	return args.Bool(0)
}

type MockQRRenderer struct {
	mock.Mock
}

func (r *MockQRRenderer) Render(url string) ([]byte, error) {
	args := r.Called(url)
	png, _ := args.Get(0).([]byte)
	return png, args.Error(1)
}

// memoryCache is an in-memory cache.Cache for exercising the cache-aside
// path without redis.
type memoryCache struct {
	entries map[string][]byte

	gets    int
	sets    int
	deletes int

	getErr error
	setErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.gets++

	if c.getErr != nil {
		return nil, c.getErr
	}

	raw, ok := c.entries[key]
	if !ok {
		return nil, cache.ErrMiss
	}

	return raw, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.sets++

	if c.setErr != nil {
		return c.setErr
	}

	c.entries[key] = value

	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.deletes++
	delete(c.entries, key)
	return nil
}

type MockGeoLookup struct {
	mock.Mock
}

func (g *MockGeoLookup) Lookup(ctx context.Context, ip string) (*entity.GeoLocation, error) {
	args := g.Called(ctx, ip)
	loc, _ := args.Get(0).(*entity.GeoLocation)
	return loc, args.Error(1)
}
