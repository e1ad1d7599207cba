package app

// WindowState tracks where the active question's answer window is in its
// waiting → open → grace → closed progression.
type WindowState int

const (
	WindowWaiting WindowState = iota // narration in flight, not yet accepting
	WindowOpen                       // accepting scored answers
	WindowGrace                      // timer elapsed, absorbing late arrivals
	WindowClosed
)

// AnswerWindow is the per-question ephemeral state: which players have
// already answered and whether answers are currently accepted. It carries
// no lock of its own; the owning session serializes access.
type AnswerWindow struct {
	state    WindowState
	answered map[string]struct{}
}

func NewAnswerWindow() *AnswerWindow {
	return &AnswerWindow{
		state:    WindowWaiting,
		answered: make(map[string]struct{}),
	}
}

func (w *AnswerWindow) State() WindowState { return w.state }

func (w *AnswerWindow) Open()  { w.state = WindowOpen }
func (w *AnswerWindow) Grace() { w.state = WindowGrace }
func (w *AnswerWindow) Close() { w.state = WindowClosed }

// Accepts reports whether an answer arriving now is eligible for scoring.
// Grace-period answers count only when the policy allows it.
func (w *AnswerWindow) Accepts(scoreGrace bool) bool {
	switch w.state {
	case WindowOpen:
		return true
	case WindowGrace:
		return scoreGrace
	default:
		return false
	}
}

// MarkAnswered records the identity; false when it already answered.
func (w *AnswerWindow) MarkAnswered(username string) bool {
	if _, dup := w.answered[username]; dup {
		return false
	}
	w.answered[username] = struct{}{}
	return true
}

// HasAnswered reports whether the identity already answered this question.
func (w *AnswerWindow) HasAnswered(username string) bool {
	_, ok := w.answered[username]
	return ok
}
