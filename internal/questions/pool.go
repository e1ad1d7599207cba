// Package questions loads and serves the quiz question pool.
package questions

import "streamquiz/internal/domain"

// Pool is the ordered question list consumed sequentially across a match.
// It is not self-locking; the owning session serializes access.
type Pool struct {
	items []domain.Question
	index int
}

func NewPool(items []domain.Question) *Pool {
	return &Pool{items: items}
}

// Next returns the next question with its 1-based number, or ok=false
// when the pool is exhausted.
func (p *Pool) Next() (domain.Question, int, bool) {
	if p.index >= len(p.items) {
		return domain.Question{}, 0, false
	}
	q := p.items[p.index]
	p.index++
	return q, p.index, true
}

// Reset rewinds the pool to the first question.
func (p *Pool) Reset() { p.index = 0 }

func (p *Pool) Len() int { return len(p.items) }
