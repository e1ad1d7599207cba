package app_test

import (
	"sync"
	"testing"
	"time"

	"streamquiz/internal/app"
	"streamquiz/internal/broadcast"
	"streamquiz/internal/chat"
	"streamquiz/internal/domain"
	"streamquiz/internal/questions"
)

// recordingSink captures every broadcast for later inspection.
type recordingSink struct {
	mu   sync.Mutex
	msgs []broadcast.Message
}

func (s *recordingSink) Broadcast(msg broadcast.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordingSink) snapshot() []broadcast.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]broadcast.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *recordingSink) count(msgType string) int {
	n := 0
	for _, m := range s.snapshot() {
		if messageType(m) == msgType {
			n++
		}
	}
	return n
}

func (s *recordingSink) waitFor(t *testing.T, msgType string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.count(msgType) > 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	var seen []string
	for _, m := range s.snapshot() {
		seen = append(seen, messageType(m))
	}
	t.Fatalf("never saw %q, got %v", msgType, seen)
}

func messageType(m broadcast.Message) string {
	switch v := m.(type) {
	case broadcast.NewQuestion:
		return v.Type
	case broadcast.QuestionActive:
		return v.Type
	case broadcast.StartTimer:
		return v.Type
	case broadcast.QuestionEnded:
		return v.Type
	case broadcast.ShowCorrectAnswer:
		return v.Type
	case broadcast.ShowReady:
		return v.Type
	case broadcast.SetBackground:
		return v.Type
	case broadcast.NewPlayer:
		return v.Type
	case broadcast.PlayerUpdate:
		return v.Type
	case broadcast.PlayerRemoved:
		return v.Type
	case broadcast.CorrectAnswer:
		return v.Type
	case broadcast.WrongAnswer:
		return v.Type
	case broadcast.MatchStarted:
		return v.Type
	case broadcast.MatchEnded:
		return v.Type
	}
	return "unknown"
}

func fastConfig(thresholds []int) app.Config {
	return app.Config{
		QuestionTimer:     30 * time.Millisecond,
		GracePeriod:       10 * time.Millisecond,
		AnswerDisplay:     10 * time.Millisecond,
		ReadyPause:        10 * time.Millisecond,
		GoodbyePause:      10 * time.Millisecond,
		RestartDelay:      20 * time.Millisecond,
		SweepInterval:     time.Minute,
		InactivityLimit:   time.Minute,
		Thresholds:        thresholds,
		ScoreGraceAnswers: true,
		RestartMode:       app.RestartReconnect,
	}
}

func questionPool(n int) *questions.Pool {
	items := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.Question{
			Prompt:        "What is the capital of France?",
			Options:       []string{"Paris", "Lyon", "Marseille"},
			CorrectAnswer: "A",
		})
	}
	return questions.NewPool(items)
}

func chatAnswer(username, text string) chat.Event {
	return chat.Event{Kind: chat.KindChat, Username: username, Text: text}
}

func TestLifecycleRunsFullQuestionCycle(t *testing.T) {
	sink := &recordingSink{}
	session := app.NewMatchSession(fastConfig([]int{5, 10}), questionPool(3), app.Collaborators{Sink: sink})

	session.ClientConnected()
	defer session.ClientDisconnected()

	sink.waitFor(t, "match_started", time.Second)
	sink.waitFor(t, "new_question", time.Second)
	sink.waitFor(t, "question_active", time.Second)
	sink.waitFor(t, "start_timer", time.Second)
	sink.waitFor(t, "question_ended", time.Second)
	sink.waitFor(t, "show_correct_answer", time.Second)
	sink.waitFor(t, "show_ready", time.Second)

	for _, m := range sink.snapshot() {
		if reveal, ok := m.(broadcast.ShowCorrectAnswer); ok {
			if reveal.CorrectAnswer != "A" || reveal.CorrectOption != "Paris" {
				t.Fatalf("unexpected reveal payload: %+v", reveal)
			}
			break
		}
	}
}

func TestAnswerScoringDuringOpenWindow(t *testing.T) {
	sink := &recordingSink{}
	cfg := fastConfig([]int{5, 10})
	cfg.QuestionTimer = time.Second
	session := app.NewMatchSession(cfg, questionPool(1), app.Collaborators{Sink: sink})

	session.ClientConnected()
	defer session.ClientDisconnected()
	sink.waitFor(t, "start_timer", time.Second)

	session.HandleEvent(chatAnswer("alice", "A"))
	session.HandleEvent(chatAnswer("bob", "C"))
	session.HandleEvent(chatAnswer("alice", "A")) // duplicate, ignored

	if got := sink.count("new_player"); got != 2 {
		t.Fatalf("expected 2 new_player broadcasts, got %d", got)
	}
	if got := sink.count("correct_answer"); got != 1 {
		t.Fatalf("expected 1 correct_answer broadcast, got %d", got)
	}
	if got := sink.count("wrong_answer"); got != 1 {
		t.Fatalf("expected 1 wrong_answer broadcast, got %d", got)
	}
	if got := sink.count("player_update"); got != 2 {
		t.Fatalf("duplicate answer must not broadcast an update, got %d", got)
	}

	p, ok := session.Players().Get("alice")
	if !ok || p.Score != 1 {
		t.Fatalf("expected alice at score 1, got %+v ok=%v", p, ok)
	}
}

func TestAskNextQuestionIsReentrant(t *testing.T) {
	sink := &recordingSink{}
	cfg := fastConfig([]int{5, 10})
	cfg.QuestionTimer = time.Second
	session := app.NewMatchSession(cfg, questionPool(5), app.Collaborators{Sink: sink})

	session.ClientConnected()
	defer session.ClientDisconnected()
	sink.waitFor(t, "start_timer", time.Second)

	// callers may fire at any time; a question in flight absorbs them all
	for i := 0; i < 5; i++ {
		session.AskNextQuestion()
	}
	time.Sleep(20 * time.Millisecond)

	if got := sink.count("new_question"); got != 1 {
		t.Fatalf("expected a single new_question broadcast, got %d", got)
	}
}

func TestWinEndsMatchExactlyOnce(t *testing.T) {
	sink := &recordingSink{}
	cfg := fastConfig([]int{1})
	cfg.QuestionTimer = time.Second
	session := app.NewMatchSession(cfg, questionPool(5), app.Collaborators{Sink: sink})

	session.ClientConnected()
	defer session.ClientDisconnected()
	sink.waitFor(t, "start_timer", time.Second)

	session.HandleEvent(chatAnswer("alice", "A"))
	session.HandleEvent(chatAnswer("bob", "A")) // same tick, after the win

	if got := sink.count("match_ended"); got != 1 {
		t.Fatalf("expected exactly one match_ended, got %d", got)
	}
	if !session.MatchEnded() {
		t.Fatalf("session should report the match as ended")
	}
	for _, m := range sink.snapshot() {
		if ended, ok := m.(broadcast.MatchEnded); ok {
			if ended.Winner != "alice" || ended.Score != 1 {
				t.Fatalf("unexpected winner payload: %+v", ended)
			}
			if len(ended.Podium) == 0 || ended.Podium[0].Username != "alice" {
				t.Fatalf("winner must lead the podium, got %v", ended.Podium)
			}
		}
	}

	// no further question may start in reconnect mode
	time.Sleep(60 * time.Millisecond)
	if got := sink.count("new_question"); got != 1 {
		t.Fatalf("ended match must not ask more questions, got %d", got)
	}
}

func TestDisconnectStopsPendingTimers(t *testing.T) {
	sink := &recordingSink{}
	session := app.NewMatchSession(fastConfig([]int{5}), questionPool(3), app.Collaborators{Sink: sink})

	session.ClientConnected()
	sink.waitFor(t, "start_timer", time.Second)
	session.ClientDisconnected()

	before := len(sink.snapshot())
	time.Sleep(100 * time.Millisecond)
	after := len(sink.snapshot())
	if after != before {
		t.Fatalf("disconnected session must go quiet, got %d new broadcasts", after-before)
	}
	if session.Phase() != app.PhaseIdle {
		t.Fatalf("expected idle phase after disconnect, got %v", session.Phase())
	}
}

func TestPoolExhaustionRestartsCycle(t *testing.T) {
	sink := &recordingSink{}
	session := app.NewMatchSession(fastConfig([]int{50}), questionPool(1), app.Collaborators{Sink: sink})

	session.ClientConnected()
	defer session.ClientDisconnected()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sink.count("new_question") >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("exhausted pool should rewind and ask again, got %d questions", sink.count("new_question"))
}

func TestInactivePlayersSweptOnce(t *testing.T) {
	sink := &recordingSink{}
	cfg := fastConfig([]int{50})
	cfg.QuestionTimer = time.Second
	cfg.SweepInterval = 20 * time.Millisecond
	cfg.InactivityLimit = 10 * time.Millisecond
	session := app.NewMatchSession(cfg, questionPool(1), app.Collaborators{Sink: sink})

	session.ClientConnected()
	defer session.ClientDisconnected()
	sink.waitFor(t, "start_timer", time.Second)

	session.HandleEvent(chat.Event{Kind: chat.KindJoin, Username: "alice"})
	sink.waitFor(t, "player_removed", time.Second)

	time.Sleep(60 * time.Millisecond)
	if got := sink.count("player_removed"); got != 1 {
		t.Fatalf("expected exactly one removal signal, got %d", got)
	}
	if _, ok := session.Players().Get("alice"); ok {
		t.Fatalf("swept player must be gone from the registry")
	}
}

func TestEventsIgnoredWhileIdle(t *testing.T) {
	sink := &recordingSink{}
	session := app.NewMatchSession(fastConfig([]int{5}), questionPool(1), app.Collaborators{Sink: sink})

	session.HandleEvent(chatAnswer("alice", "A"))
	if len(sink.snapshot()) != 0 {
		t.Fatalf("idle session must ignore events, got %v", sink.snapshot())
	}
}
