package app

import (
	"fmt"

	"streamquiz/internal/domain"
)

// Match holds the terminal state of the current show: whether it has
// ended and who won. The winner is set if and only if ended is true.
type Match struct {
	ended       bool
	winner      string
	winnerScore int
}

func (m *Match) Ended() bool    { return m.ended }
func (m *Match) Winner() string { return m.winner }

// End freezes the match. Must run under the session lock, before any
// asynchronous announcement work, so a second answer in the same tick
// cannot trigger a second win.
func (m *Match) End(winner string, score int) {
	m.ended = true
	m.winner = winner
	m.winnerScore = score
}

// Reset clears terminal state for a fresh match.
func (m *Match) Reset() {
	m.ended = false
	m.winner = ""
	m.winnerScore = 0
}

// Podium returns the winner plus the next two distinct identities by
// descending score.
func Podium(winner string, ranked []domain.RankedPlayer) []domain.RankedPlayer {
	podium := make([]domain.RankedPlayer, 0, 3)
	for _, entry := range ranked {
		if entry.Username == winner {
			podium = append([]domain.RankedPlayer{entry}, podium...)
			continue
		}
		if len(podium) < 3 {
			podium = append(podium, entry)
		}
	}
	if len(podium) > 3 {
		podium = podium[:3]
	}
	return podium
}

// WinnerAnnouncement builds the spoken result summary for up to three
// podium places.
func WinnerAnnouncement(podium []domain.RankedPlayer) string {
	if len(podium) == 0 {
		return ""
	}
	text := fmt.Sprintf("Congratulations! %s is our champion with %d points! ", podium[0].Username, podium[0].Score)
	if len(podium) > 1 {
		text += fmt.Sprintf("In second place, we have %s with %d points. ", podium[1].Username, podium[1].Score)
	}
	if len(podium) > 2 {
		text += fmt.Sprintf("And in third place, %s with %d points. ", podium[2].Username, podium[2].Score)
	}
	return text
}
