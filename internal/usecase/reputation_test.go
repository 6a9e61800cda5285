package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type stubCache struct {
	mu      sync.Mutex
	values  map[string]string
	setErrs []error
	getErrs []error
	setKeys []string
	getKeys []string
}

func newStubCache() *stubCache {
	return &stubCache{values: make(map[string]string)}
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setKeys = append(s.setKeys, key)
	if len(s.setErrs) > 0 {
		err := s.setErrs[0]
		s.setErrs = s.setErrs[1:]
		if err != nil {
			return err
		}
	}
	s.values[key] = value.(string)
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getKeys = append(s.getKeys, key)
	if len(s.getErrs) > 0 {
		err := s.getErrs[0]
		s.getErrs = s.getErrs[1:]
		if err != nil {
			return "", err
		}
	}
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func TestCachedReputationCachesPositiveOnly(t *testing.T) {
	cache := newStubCache()
	checker := &stubReputation{malicious: false}
	rep := NewCachedReputation(checker, cache, time.Minute, zap.NewNop())

	if rep.CheckMalicious(context.Background(), "http://ok.example") {
		t.Fatal("expected not malicious")
	}
	if len(cache.setKeys) != 0 {
		t.Fatalf("negative verdict was cached: %v", cache.setKeys)
	}

	checker.malicious = true
	if !rep.CheckMalicious(context.Background(), "http://evil.example") {
		t.Fatal("expected malicious")
	}
	if len(cache.setKeys) != 1 {
		t.Fatalf("expected positive verdict cached, got %v", cache.setKeys)
	}

	checker.malicious = false
	if !rep.CheckMalicious(context.Background(), "http://evil.example") {
		t.Fatal("expected cached malicious verdict")
	}
	if checker.callCount() != 2 {
		t.Fatalf("expected cache hit to skip checker, got %d calls", checker.callCount())
	}
}

func TestCachedReputationIgnoresCacheFailures(t *testing.T) {
	cache := newStubCache()
	cache.getErrs = []error{errors.New("connection reset")}
	cache.setErrs = []error{errors.New("read only replica")}
	checker := &stubReputation{malicious: true}
	rep := NewCachedReputation(checker, cache, time.Minute, zap.NewNop())

	if !rep.CheckMalicious(context.Background(), "http://evil.example") {
		t.Fatal("expected checker verdict despite cache failures")
	}
	if checker.callCount() != 1 {
		t.Fatalf("expected checker called once, got %d", checker.callCount())
	}
}

func TestCachedReputationRetriesTransientRead(t *testing.T) {
	cache := newStubCache()
	cache.values[reputationKey("http://evil.example")] = maliciousMarker
	cache.getErrs = []error{transientRedisError{}}
	checker := &stubReputation{}
	rep := NewCachedReputation(checker, cache, time.Minute, zap.NewNop())

	if !rep.CheckMalicious(context.Background(), "http://evil.example") {
		t.Fatal("expected cached verdict after retry")
	}
	if len(cache.getKeys) != 2 {
		t.Fatalf("expected 2 cache reads, got %d", len(cache.getKeys))
	}
	if checker.callCount() != 0 {
		t.Fatal("checker called despite cached verdict")
	}
}

func TestCachedReputationWithoutCache(t *testing.T) {
	checker := &stubReputation{malicious: true}
	rep := NewCachedReputation(checker, nil, 0, zap.NewNop())
	if !rep.CheckMalicious(context.Background(), "http://evil.example") {
		t.Fatal("expected malicious")
	}
	rep.MarkMalicious(context.Background(), "http://evil.example")
}

type ctxAwareChecker struct{}

func (ctxAwareChecker) CheckMalicious(ctx context.Context, url string) bool {
	return ctx.Err() == nil
}

func TestCachedReputationSharedLookupIgnoresCallerCancel(t *testing.T) {
	rep := NewCachedReputation(ctxAwareChecker{}, nil, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !rep.CheckMalicious(ctx, "http://evil.example") {
		t.Fatal("shared lookup saw the caller's cancellation")
	}
}
