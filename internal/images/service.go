// Package images fetches background images for questions from a
// stock-photo API, rotating across multiple API keys and caching results.
// Every failure path returns the configured fallback URL; the caller
// never sees an error.
package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"streamquiz/internal/domain"
	"streamquiz/internal/logging"
	"streamquiz/internal/telemetry"
)

// Config carries the image-service settings.
type Config struct {
	APIURL       string
	AccessKeys   []string
	LimitPerHour int
	CacheTTL     time.Duration
	FallbackURL  string
}

type account struct {
	key       string
	usedHour  time.Time
	usedCount int
	disabled  bool
}

type cacheEntry struct {
	url       string
	expiresAt time.Time
}

// Service resolves search queries to image URLs.
type Service struct {
	cfg    Config
	client *http.Client
	clock  func() time.Time
	sf     singleflight.Group

	mu       sync.Mutex
	accounts []*account
	next     int
	cache    map[string]cacheEntry
	hits     int
	misses   int
}

func NewService(cfg Config, client *http.Client) *Service {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.LimitPerHour <= 0 {
		cfg.LimitPerHour = 50
	}
	accounts := make([]*account, 0, len(cfg.AccessKeys))
	for _, key := range cfg.AccessKeys {
		accounts = append(accounts, &account{key: key})
	}
	return &Service{
		cfg:      cfg,
		client:   client,
		clock:    time.Now,
		accounts: accounts,
		cache:    make(map[string]cacheEntry),
	}
}

// Fetch resolves a query to an image URL. cacheKey defaults to the
// normalized query; callers that want a fresh image per question pass a
// unique key. Fetch never fails: any error yields the fallback URL.
func (s *Service) Fetch(ctx context.Context, query, cacheKey string) string {
	if len(s.accounts) == 0 {
		return s.cfg.FallbackURL
	}
	if cacheKey == "" {
		cacheKey = strings.ToLower(strings.TrimSpace(query))
	}

	if u, ok := s.cached(cacheKey); ok {
		if telemetry.ImageCacheHits != nil {
			telemetry.ImageCacheHits.Inc()
		}
		return u
	}
	if telemetry.ImageCacheMisses != nil {
		telemetry.ImageCacheMisses.Inc()
	}

	result, _, _ := s.sf.Do(cacheKey, func() (interface{}, error) {
		u, err := s.fetchRemote(ctx, query)
		if err != nil {
			logging.Log.Warnw("image fetch failed, using fallback", "query", query, "err", err)
			return s.cfg.FallbackURL, nil
		}
		s.store(cacheKey, u)
		return u, nil
	})
	return result.(string)
}

// Stats summarizes cache effectiveness for periodic logging.
func (s *Service) Stats() (size, hits, misses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache), s.hits, s.misses
}

// LogStatsEvery logs cache effectiveness on an interval until the
// context ends.
func (s *Service) LogStatsEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			size, hits, misses := s.Stats()
			logging.Log.Infow("image cache stats", "size", size, "hits", hits, "misses", misses)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) cached(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok || entry.expiresAt.Before(s.clock()) {
		s.misses++
		return "", false
	}
	s.hits++
	return entry.url, true
}

func (s *Service) store(key, imageURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cacheEntry{url: imageURL, expiresAt: s.clock().Add(s.cfg.CacheTTL)}
}

// fetchRemote tries each account in rotation until one succeeds. Accounts
// over their hourly budget or rejected by the API are skipped until the
// hour rolls over.
func (s *Service) fetchRemote(ctx context.Context, query string) (string, error) {
	for range s.accounts {
		acct := s.pickAccount()
		if acct == nil {
			break
		}
		imageURL, retryable, err := s.requestImage(ctx, acct.key, query)
		if err == nil {
			return imageURL, nil
		}
		if !retryable {
			return "", err
		}
		s.markExhausted(acct)
	}
	return "", fmt.Errorf("image fetch %q: %w", query, domain.ErrNoAPIKey)
}

func (s *Service) pickAccount() *account {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for i := 0; i < len(s.accounts); i++ {
		acct := s.accounts[(s.next+i)%len(s.accounts)]
		if now.Sub(acct.usedHour) >= time.Hour {
			acct.usedHour = now
			acct.usedCount = 0
			acct.disabled = false
		}
		if acct.disabled || acct.usedCount >= s.cfg.LimitPerHour {
			continue
		}
		acct.usedCount++
		s.next = (s.next + i + 1) % len(s.accounts)
		return acct
	}
	return nil
}

func (s *Service) markExhausted(acct *account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct.disabled = true
}

// requestImage performs one API call. The second return reports whether
// the failure is key-specific (rate limit, auth) and worth retrying with
// another key.
func (s *Service) requestImage(ctx context.Context, key, query string) (string, bool, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("orientation", "landscape")
	params.Set("client_id", key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return "", true, fmt.Errorf("image api status %d", resp.StatusCode)
	default:
		return "", false, fmt.Errorf("image api status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", false, err
	}
	var payload struct {
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false, fmt.Errorf("decode image response: %w", err)
	}
	if payload.URLs.Regular == "" {
		return "", false, fmt.Errorf("image response missing url")
	}
	return payload.URLs.Regular, false, nil
}
