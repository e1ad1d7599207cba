package domain

import (
	"strings"
	"time"
)

// Player is a chat participant observed during the current match.
type Player struct {
	Username     string    `json:"username"`
	ProfileImage string    `json:"profileImage,omitempty"`
	Score        int       `json:"score"`
	Level        int       `json:"level"`
	LastActive   time.Time `json:"-"`
}

// RankedPlayer is a snapshot-friendly view used for podium broadcasts.
type RankedPlayer struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// Question is a single multiple-choice quiz item. The correct answer is
// stored as an option letter (A, B, C, ...) indexing into Options.
type Question struct {
	Prompt        string   `json:"question" yaml:"question"`
	Narration     string   `json:"questionTTS,omitempty" yaml:"narration,omitempty"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer string   `json:"correctAnswer" yaml:"correct"`
	Image         string   `json:"image,omitempty" yaml:"image,omitempty"`
	ImageKeywords string   `json:"backgroundKeyWords,omitempty" yaml:"image_keywords,omitempty"`
	Difficulty    string   `json:"niveau,omitempty" yaml:"difficulty,omitempty"`
}

// Validate checks that the correct-answer letter indexes into the option list.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return ErrInvalidQuestion
	}
	if len(q.Options) < 2 {
		return ErrInvalidQuestion
	}
	if q.CorrectIndex() < 0 {
		return ErrInvalidQuestion
	}
	return nil
}

// CorrectIndex maps the correct-answer letter to an option index, or -1.
func (q Question) CorrectIndex() int {
	letter := strings.TrimSpace(q.CorrectAnswer)
	if len(letter) != 1 {
		return -1
	}
	idx := int(letter[0] - 'A')
	if idx < 0 || idx >= len(q.Options) {
		return -1
	}
	return idx
}

// CorrectOption returns the text of the correct option.
func (q Question) CorrectOption() string {
	idx := q.CorrectIndex()
	if idx < 0 {
		return ""
	}
	return q.Options[idx]
}

// SpokenText returns the narration variant when present, else the prompt.
func (q Question) SpokenText() string {
	if q.Narration != "" {
		return q.Narration
	}
	return q.Prompt
}
