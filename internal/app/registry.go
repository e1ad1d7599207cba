package app

import (
	"sort"
	"sync"
	"time"

	"streamquiz/internal/domain"
)

// Registry tracks per-player score, level and last activity for the
// current match, and owns the level-threshold lookup.
type Registry struct {
	mu         sync.RWMutex
	thresholds []int // ascending minimum scores for levels 2..n+1
	players    map[string]*domain.Player
	clock      func() time.Time
}

func NewRegistry(thresholds []int) *Registry {
	return &Registry{
		thresholds: thresholds,
		players:    make(map[string]*domain.Player),
		clock:      time.Now,
	}
}

// NewRegistryWithClock is test-only for deterministic timestamps.
func NewRegistryWithClock(thresholds []int, now func() time.Time) *Registry {
	r := NewRegistry(thresholds)
	r.clock = now
	return r
}

// MaxLevel is the level a player wins at: one past the last threshold.
func (r *Registry) MaxLevel() int { return len(r.thresholds) + 1 }

// LevelFor returns 1 + the count of thresholds at or below score.
func (r *Registry) LevelFor(score int) int {
	level := 1
	for _, t := range r.thresholds {
		if score >= t {
			level++
		}
	}
	return level
}

// MinScoreForLevel is the inverse lookup: the score floor of a level.
// Level 1 floors at 0; levels beyond the maximum clamp to the top threshold.
func (r *Registry) MinScoreForLevel(level int) int {
	if level <= 1 || len(r.thresholds) == 0 {
		return 0
	}
	if level > r.MaxLevel() {
		level = r.MaxLevel()
	}
	return r.thresholds[level-2]
}

// Upsert returns the existing player unchanged, or creates one at score 0,
// level 1. The created flag is true exactly once per identity per match,
// even when join, gift and chat events race for the same new user.
func (r *Registry) Upsert(username, profileImage string) (domain.Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	if p, ok := r.players[username]; ok {
		if profileImage != "" {
			p.ProfileImage = profileImage
		}
		p.LastActive = now
		return *p, false
	}
	p := &domain.Player{
		Username:     username,
		ProfileImage: profileImage,
		Score:        0,
		Level:        1,
		LastActive:   now,
	}
	r.players[username] = p
	return *p, true
}

// Touch refreshes the activity timestamp; no-op for unknown identities.
func (r *Registry) Touch(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[username]; ok {
		p.LastActive = r.clock()
	}
}

// Get returns a copy of the player's current state.
func (r *Registry) Get(username string) (domain.Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[username]
	if !ok {
		return domain.Player{}, false
	}
	return *p, true
}

// apply mutates a player's score through fn and recomputes the level.
// Returns the updated snapshot.
func (r *Registry) apply(username string, fn func(p *domain.Player)) (domain.Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[username]
	if !ok {
		return domain.Player{}, false
	}
	fn(p)
	p.Level = r.LevelFor(p.Score)
	p.LastActive = r.clock()
	return *p, true
}

// SweepInactive removes and returns players idle longer than maxIdle.
func (r *Registry) SweepInactive(maxIdle time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	var removed []string
	for name, p := range r.players {
		if now.Sub(p.LastActive) > maxIdle {
			delete(r.players, name)
			removed = append(removed, name)
		}
	}
	return removed
}

// Ranked returns all players ordered by descending score; ties keep a
// stable alphabetical order.
func (r *Registry) Ranked() []domain.RankedPlayer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]domain.RankedPlayer, 0, len(r.players))
	for _, p := range r.players {
		entries = append(entries, domain.RankedPlayer{Username: p.Username, Score: p.Score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Username < entries[j].Username
	})
	return entries
}

// Len reports the current player count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Reset clears all players; used on match restart.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players = make(map[string]*domain.Player)
}
