package questions

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"streamquiz/internal/domain"
)

// CachedLoader caches a marshalled question set in Redis and falls back
// to the wrapped loader on cache miss. Concurrent misses collapse into a
// single backing-store load.
type CachedLoader struct {
	client *redis.Client
	loader Loader
	setID  string
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCachedLoader(client *redis.Client, loader Loader, setID string, ttl time.Duration) *CachedLoader {
	return &CachedLoader{
		client: client,
		loader: loader,
		setID:  setID,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (l *CachedLoader) Load(ctx context.Context) ([]domain.Question, error) {
	key := l.key()

	if raw, err := l.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
		var items []domain.Question
		if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
			return items, nil
		}
	}

	result, err, _ := l.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if raw, err := l.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
			var items []domain.Question
			if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
				return items, nil
			}
		}

		items, err := l.loader.Load(ctx)
		if err != nil {
			return nil, err
		}

		if raw, err := json.Marshal(items); err == nil {
			_ = l.client.Set(ctx, key, raw, l.ttlWithJitter()).Err()
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (l *CachedLoader) key() string {
	return "quiz:questions:" + l.setID
}

func (l *CachedLoader) ttlWithJitter() time.Duration {
	if l.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(l.ttl) / 10
	return l.ttl + time.Duration(l.rnd.Int63n(jitterMax+1))
}
