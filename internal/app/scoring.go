package app

import (
	"strings"

	"streamquiz/internal/domain"
)

// ScoreResult is the outcome of validating one raw chat answer.
type ScoreResult struct {
	Accepted  bool
	Correct   bool
	Player    domain.Player // post-mutation snapshot when accepted
	LeveledUp bool
	Won       bool
}

// Scorer validates raw chat answers against the active question and
// mutates player state through the registry.
type Scorer struct {
	registry   *Registry
	scoreGrace bool
}

func NewScorer(registry *Registry, scoreGrace bool) *Scorer {
	return &Scorer{registry: registry, scoreGrace: scoreGrace}
}

// NormalizeAnswer uppercases and trims a raw chat message. The result is
// an option letter candidate; anything longer than one rune is rejected
// by the range check.
func NormalizeAnswer(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Validate scores one answer. It rejects when the window is not accepting,
// when the normalized answer is not a letter within the question's option
// count, or when the identity already answered this question. A correct
// answer adds a point; a wrong answer costs a point but never drops the
// score below the floor of the player's current level.
func (s *Scorer) Validate(w *AnswerWindow, q domain.Question, username, raw string) ScoreResult {
	if w == nil || !w.Accepts(s.scoreGrace) {
		return ScoreResult{}
	}

	answer := NormalizeAnswer(raw)
	if len(answer) != 1 || answer[0] < 'A' || int(answer[0]-'A') >= len(q.Options) {
		return ScoreResult{}
	}

	if w.HasAnswered(username) {
		return ScoreResult{}
	}

	player, ok := s.registry.Get(username)
	if !ok {
		return ScoreResult{}
	}

	correct := answer == strings.TrimSpace(q.CorrectAnswer)
	if !w.MarkAnswered(username) {
		return ScoreResult{}
	}

	prevLevel := player.Level
	if correct {
		player, _ = s.registry.apply(username, func(p *domain.Player) {
			p.Score++
		})
	} else {
		floor := s.registry.MinScoreForLevel(prevLevel)
		player, _ = s.registry.apply(username, func(p *domain.Player) {
			if p.Score > floor {
				p.Score--
			}
		})
	}

	return ScoreResult{
		Accepted:  true,
		Correct:   correct,
		Player:    player,
		LeveledUp: player.Level > prevLevel,
		Won:       correct && player.Level >= s.registry.MaxLevel(),
	}
}
