// Package app contains the quiz-show core: player registry, answer
// window, scoring, and the question lifecycle state machine.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamquiz/internal/broadcast"
	"streamquiz/internal/chat"
	"streamquiz/internal/domain"
	"streamquiz/internal/logging"
	"streamquiz/internal/narration"
	"streamquiz/internal/questions"
	"streamquiz/internal/telemetry"
)

// Phase is the lifecycle state of the current question.
type Phase int

const (
	PhaseIdle       Phase = iota // no current question
	PhaseAnnouncing              // question broadcast, narration in flight
	PhaseOpen                    // answer window accepting
	PhaseGrace                   // timer elapsed, grace window
	PhaseRevealing               // reveal narration and broadcast
	PhaseCooldown                // pause before the next question
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAnnouncing:
		return "announcing"
	case PhaseOpen:
		return "open"
	case PhaseGrace:
		return "grace"
	case PhaseRevealing:
		return "revealing"
	case PhaseCooldown:
		return "cooldown"
	}
	return "unknown"
}

// Speaker plays one narration utterance to completion.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// ImageFetcher resolves a search query to an image URL; it never fails,
// returning a fallback URL instead.
type ImageFetcher interface {
	Fetch(ctx context.Context, query, cacheKey string) string
}

// RestartMode selects what triggers a reset after a won match.
type RestartMode string

const (
	RestartTimer     RestartMode = "timer"     // fixed delay after the win
	RestartReconnect RestartMode = "reconnect" // next display-client connection
)

// Config carries the lifecycle timings and scoring policy.
type Config struct {
	QuestionTimer     time.Duration
	GracePeriod       time.Duration
	AnswerDisplay     time.Duration
	ReadyPause        time.Duration
	GoodbyePause      time.Duration
	RestartDelay      time.Duration
	SweepInterval     time.Duration
	InactivityLimit   time.Duration
	Thresholds        []int
	ScoreGraceAnswers bool
	RestartMode       RestartMode
	ReadyImage        string
}

func (c *Config) withDefaults() {
	if c.QuestionTimer <= 0 {
		c.QuestionTimer = 7 * time.Second
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = time.Second
	}
	if c.AnswerDisplay <= 0 {
		c.AnswerDisplay = 3 * time.Second
	}
	if c.ReadyPause <= 0 {
		c.ReadyPause = 4 * time.Second
	}
	if c.GoodbyePause <= 0 {
		c.GoodbyePause = 3 * time.Second
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = 10 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.InactivityLimit <= 0 {
		c.InactivityLimit = 5 * time.Minute
	}
	if len(c.Thresholds) == 0 {
		c.Thresholds = []int{1, 4, 10, 15, 21}
	}
	if c.RestartMode == "" {
		c.RestartMode = RestartTimer
	}
}

// Collaborators are the session's external services. Nil narration and
// image collaborators degrade to no-ops.
type Collaborators struct {
	Sink       broadcast.Sink
	Narrator   Speaker
	Images     ImageFetcher
	Announcer  *narration.Announcer
	Encourager *narration.Encourager
	Greetings  narration.Greetings
}

type nopImages struct{}

func (nopImages) Fetch(context.Context, string, string) string { return "" }

// MatchSession owns all mutable quiz state for one display-client
// connection: the player registry, the current question and window, and
// every pending timer handle. All transitions run under one mutex;
// narration is the only suspension point, and every resume re-checks the
// epoch and phase flags before acting.
type MatchSession struct {
	mu  sync.Mutex
	cfg Config

	players *Registry
	scorer  *Scorer
	pool    *questions.Pool
	match   Match

	sink       broadcast.Sink
	narrator   Speaker
	images     ImageFetcher
	announcer  *narration.Announcer
	encourager *narration.Encourager
	greetings  narration.Greetings

	running        bool
	phase          Phase
	window         *AnswerWindow
	current        *domain.Question
	questionNumber int

	// epoch increments on every reset and teardown path; callbacks and
	// narration resumes capture it and abort when it has moved on.
	epoch     uint64
	timers    map[*time.Timer]struct{}
	sweepStop chan struct{}
}

func NewMatchSession(cfg Config, pool *questions.Pool, collab Collaborators) *MatchSession {
	cfg.withDefaults()
	if collab.Sink == nil {
		collab.Sink = broadcast.NopSink{}
	}
	if collab.Narrator == nil {
		collab.Narrator = narration.Disabled{}
	}
	if collab.Images == nil {
		collab.Images = nopImages{}
	}
	registry := NewRegistry(cfg.Thresholds)
	return &MatchSession{
		cfg:        cfg,
		players:    registry,
		scorer:     NewScorer(registry, cfg.ScoreGraceAnswers),
		pool:       pool,
		sink:       collab.Sink,
		narrator:   collab.Narrator,
		images:     collab.Images,
		announcer:  collab.Announcer,
		encourager: collab.Encourager,
		greetings:  collab.Greetings,
		phase:      PhaseIdle,
		timers:     make(map[*time.Timer]struct{}),
	}
}

// AttachSink swaps in the display sink. The websocket server needs the
// session as its controller, so the sink arrives after construction,
// before the first client connects.
func (s *MatchSession) AttachSink(sink broadcast.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sink != nil {
		s.sink = sink
	}
}

// Players exposes the registry for ranking queries.
func (s *MatchSession) Players() *Registry { return s.players }

// Phase returns the current lifecycle phase.
func (s *MatchSession) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// MatchEnded reports whether the current match has a winner.
func (s *MatchSession) MatchEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match.Ended()
}

// ClientConnected starts (or restarts) the show. Reconnection always
// resumes with a full reset rather than mid-question.
func (s *MatchSession) ClientConnected() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	epoch := s.resetLocked()
	s.sweepStop = make(chan struct{})
	go s.sweepLoop(s.sweepStop)
	s.sink.Broadcast(broadcast.MatchStartedMsg())
	s.mu.Unlock()

	logging.Log.Infow("display client connected, starting question cycle")
	go s.openCycle(epoch)
}

// ClientDisconnected pauses the cycle in Idle and cancels all pending
// timers so a stale callback cannot re-announce a question.
func (s *MatchSession) ClientDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.epoch++
	s.stopTimersLocked()
	if s.sweepStop != nil {
		close(s.sweepStop)
		s.sweepStop = nil
	}
	s.current = nil
	s.window = nil
	s.phase = PhaseIdle
	logging.Log.Infow("display client disconnected, question cycle stopped")
}

// resetLocked clears match state for a fresh game and returns the new
// epoch. Caller holds the lock.
func (s *MatchSession) resetLocked() uint64 {
	s.epoch++
	s.stopTimersLocked()
	s.players.Reset()
	s.pool.Reset()
	s.match.Reset()
	s.current = nil
	s.window = nil
	s.phase = PhaseIdle
	s.questionNumber = 0
	telemetry.SetActivePlayers(0)
	return s.epoch
}

// openCycle plays the welcome sequence, then asks the first question.
func (s *MatchSession) openCycle(epoch uint64) {
	ctx := context.Background()

	if theme := s.greetings.DefaultBackground; theme != "" {
		url := s.images.Fetch(ctx, theme, "default_background_"+uuid.NewString())
		if url != "" && s.epochAlive(epoch) {
			s.sink.Broadcast(broadcast.SetBackgroundMsg(url))
		}
	}

	narration.SpeakBestEffort(ctx, s.narrator, s.greetings.Welcome)
	s.AskNextQuestion()
}

// AskNextQuestion selects and announces the next pool question. It is a
// no-op while a question is in progress: the transition into Announcing
// is refused when the match has ended, when a window is already open or
// waiting, or when a current question still exists.
func (s *MatchSession) AskNextQuestion() {
	s.mu.Lock()
	if !s.running || s.match.Ended() || s.window != nil || s.current != nil {
		logging.Log.Debugw("question not asked",
			"running", s.running, "ended", s.match.Ended(), "phase", s.phase.String())
		s.mu.Unlock()
		return
	}

	q, number, ok := s.pool.Next()
	if !ok {
		epoch := s.epoch
		s.mu.Unlock()
		go s.finishPool(epoch)
		return
	}

	current := q
	s.current = &current
	s.questionNumber = number
	s.window = NewAnswerWindow()
	s.phase = PhaseAnnouncing
	epoch := s.epoch
	s.mu.Unlock()

	go s.announce(epoch, q, number)
}

// announce broadcasts the question, awaits narration, then opens the
// answer window. Both suspension points re-validate state on resume.
func (s *MatchSession) announce(epoch uint64, q domain.Question, number int) {
	ctx := context.Background()

	bg := q.Image
	if bg == "" && q.ImageKeywords != "" {
		bg = s.images.Fetch(ctx, q.ImageKeywords, fmt.Sprintf("question_%d_%s", number, uuid.NewString()))
	}

	s.mu.Lock()
	if !s.announcingLocked(epoch) {
		s.mu.Unlock()
		return
	}
	s.sink.Broadcast(broadcast.NewQuestionMsg(q, number, bg))
	s.sink.Broadcast(broadcast.QuestionActiveMsg())
	s.mu.Unlock()

	telemetry.Inc(telemetry.QuestionsAsked)
	logging.Log.Infow("question announced", "number", number, "prompt", q.Prompt)

	narration.SpeakBestEffort(ctx, s.narrator, fmt.Sprintf("Question %d: %s", number, q.SpokenText()))

	s.openWindow(epoch)
}

// announcingLocked reports whether this announcement is still current.
func (s *MatchSession) announcingLocked(epoch uint64) bool {
	return s.epoch == epoch && s.running && !s.match.Ended() &&
		s.current != nil && s.window != nil && s.window.State() == WindowWaiting
}

// openWindow transitions Announcing → Open once narration has finished.
// If the match ended or the question was cancelled while narration was in
// flight, the machine aborts without opening.
func (s *MatchSession) openWindow(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.announcingLocked(epoch) {
		logging.Log.Debugw("window not opened, state moved on during narration")
		return
	}

	s.phase = PhaseOpen
	s.window.Open()
	// the visible countdown starts now, covering only the true
	// answer-accepting duration
	s.sink.Broadcast(broadcast.StartTimerMsg(s.cfg.QuestionTimer.Seconds()))
	s.scheduleLocked(s.cfg.QuestionTimer, func() { s.timerExpired(epoch) })
	logging.Log.Infow("answer window open", "seconds", s.cfg.QuestionTimer.Seconds())
}

// timerExpired transitions Open → Grace.
func (s *MatchSession) timerExpired(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.current == nil || s.phase != PhaseOpen {
		return
	}
	s.phase = PhaseGrace
	s.window.Grace()
	s.scheduleLocked(s.cfg.GracePeriod, func() { s.endQuestion(epoch) })
}

// endQuestion closes the window, plays the reveal narration, then
// broadcasts the correct answer and schedules the cooldown.
func (s *MatchSession) endQuestion(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || s.current == nil || s.phase != PhaseGrace {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseRevealing
	s.window.Close()

	q := *s.current
	letter := NormalizeAnswer(q.CorrectAnswer)
	option := q.CorrectOption()
	s.sink.Broadcast(broadcast.QuestionEndedMsg(letter, option))

	reveal := fmt.Sprintf("The correct answer is %s: %s", letter, option)
	if s.announcer != nil {
		reveal = s.announcer.Reveal(letter, option)
	}
	s.mu.Unlock()

	// spoken reveal first so the visual reveal lands with the audio
	narration.SpeakBestEffort(context.Background(), s.narrator, reveal)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.sink.Broadcast(broadcast.ShowCorrectAnswerMsg(letter, option))
	s.current = nil
	s.window = nil
	s.phase = PhaseCooldown
	s.scheduleLocked(s.cfg.AnswerDisplay, func() { s.showReady(epoch) })
	logging.Log.Infow("question ended", "correct", letter, "option", option)
}

// showReady broadcasts the ready cue, optionally narrates an
// encouragement line, and schedules the next question.
func (s *MatchSession) showReady(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || !s.running || s.match.Ended() || s.phase != PhaseCooldown {
		s.mu.Unlock()
		return
	}
	s.sink.Broadcast(broadcast.ShowReadyMsg(s.cfg.ReadyImage))
	s.scheduleLocked(s.cfg.ReadyPause, s.AskNextQuestion)

	var line string
	var ok bool
	if s.encourager != nil {
		line, ok = s.encourager.Next()
	}
	s.mu.Unlock()

	if ok {
		go narration.SpeakBestEffort(context.Background(), s.narrator, line)
	}
}

// finishPool narrates the goodbye, rewinds the pool and keeps the cycle
// going rather than ending the match.
func (s *MatchSession) finishPool(epoch uint64) {
	ctx := context.Background()

	if theme := s.greetings.GoodbyeBackground; theme != "" {
		url := s.images.Fetch(ctx, theme, "goodbye_background_"+uuid.NewString())
		if url != "" && s.epochAlive(epoch) {
			s.sink.Broadcast(broadcast.SetBackgroundMsg(url))
		}
	}

	logging.Log.Infow("question pool exhausted, restarting cycle")
	narration.SpeakBestEffort(ctx, s.narrator, s.greetings.Goodbye)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || !s.running || s.match.Ended() {
		return
	}
	s.pool.Reset()
	s.questionNumber = 0
	s.scheduleLocked(s.cfg.GoodbyePause, s.AskNextQuestion)
}

// HandleEvent consumes one inbound chat event. It never suspends: the
// accept/reject decision is made synchronously so answer order matches
// arrival order.
func (s *MatchSession) HandleEvent(ev chat.Event) {
	if ev.Username == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	player, created := s.players.Upsert(ev.Username, ev.ProfileImage)
	if created {
		s.sink.Broadcast(broadcast.NewPlayerMsg(player))
		telemetry.Inc(telemetry.PlayersJoined)
		telemetry.SetActivePlayers(s.players.Len())
	}

	if ev.Kind == chat.KindGift && s.encourager != nil {
		s.encourager.RecordGift(ev.Username, ev.GiftName)
	}
	if ev.Kind != chat.KindChat || s.current == nil || s.window == nil || s.match.Ended() {
		return
	}

	res := s.scorer.Validate(s.window, *s.current, ev.Username, ev.Text)
	telemetry.ObserveAnswer(res.Accepted, res.Correct)
	if !res.Accepted {
		logging.Log.Debugw("answer rejected", "user", ev.Username, "text", ev.Text)
		return
	}

	if res.Correct {
		s.sink.Broadcast(broadcast.CorrectAnswerMsg(ev.Username))
	} else {
		s.sink.Broadcast(broadcast.WrongAnswerMsg(ev.Username))
	}
	s.sink.Broadcast(broadcast.PlayerUpdateMsg(res.Player))

	if res.Won {
		s.winLocked(res.Player)
	}
}

// winLocked freezes the match. The ended flag is set here, under the
// lock and before any announcement work, so a second answer in the same
// tick cannot also win.
func (s *MatchSession) winLocked(winner domain.Player) {
	s.match.End(winner.Username, winner.Score)
	s.epoch++
	s.stopTimersLocked()
	epoch := s.epoch
	s.current = nil
	s.window = nil
	s.phase = PhaseIdle

	podium := Podium(winner.Username, s.players.Ranked())
	s.sink.Broadcast(broadcast.MatchEndedMsg(winner.Username, winner.Score, podium))
	telemetry.Inc(telemetry.MatchesWon)
	logging.Log.Infow("match won", "winner", winner.Username, "score", winner.Score)

	go s.announceWinner(epoch, podium)
}

func (s *MatchSession) announceWinner(epoch uint64, podium []domain.RankedPlayer) {
	narration.SpeakBestEffort(context.Background(), s.narrator, WinnerAnnouncement(podium))

	if s.cfg.RestartMode != RestartTimer {
		// reconnect mode: the next ClientConnected performs the reset
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || !s.running {
		return
	}
	s.scheduleLocked(s.cfg.RestartDelay, func() { s.restart(epoch) })
}

// restart begins a fresh match on the same connection.
func (s *MatchSession) restart(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || !s.running {
		s.mu.Unlock()
		return
	}
	next := s.resetLocked()
	s.sink.Broadcast(broadcast.MatchStartedMsg())
	s.mu.Unlock()

	logging.Log.Infow("match restarted")
	go s.openCycle(next)
}

func (s *MatchSession) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			removed := s.players.SweepInactive(s.cfg.InactivityLimit)
			for _, name := range removed {
				s.sink.Broadcast(broadcast.PlayerRemovedMsg(name))
				telemetry.Inc(telemetry.PlayersSwept)
			}
			if len(removed) > 0 {
				telemetry.SetActivePlayers(s.players.Len())
				logging.Log.Infow("swept inactive players", "count", len(removed))
			}
		case <-stop:
			return
		}
	}
}

func (s *MatchSession) epochAlive(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch && s.running
}

// scheduleLocked registers a cancellable timer. Caller holds the lock.
func (s *MatchSession) scheduleLocked(d time.Duration, fn func()) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		fn()
	})
	s.timers[t] = struct{}{}
}

func (s *MatchSession) stopTimersLocked() {
	for t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
}
