// Package telemetry provides Prometheus metrics for the quiz orchestrator.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	QuestionsAsked    prometheus.Counter
	AnswersCorrect    prometheus.Counter
	AnswersWrong      prometheus.Counter
	AnswersRejected   prometheus.Counter
	PlayersJoined     prometheus.Counter
	PlayersSwept      prometheus.Counter
	MatchesWon        prometheus.Counter
	NarrationFailures prometheus.Counter
	ImageCacheHits    prometheus.Counter
	ImageCacheMisses  prometheus.Counter

	ActivePlayers  prometheus.Gauge
	SinksConnected prometheus.Gauge
)

// Init registers all metrics (idempotent).
func Init() {
	once.Do(func() {
		QuestionsAsked = promauto.NewCounter(prometheus.CounterOpts{Name: "quiz_questions_asked_total", Help: "Questions announced to the display client"})
		AnswersCorrect = promauto.NewCounter(prometheus.CounterOpts{Name: "quiz_answers_correct_total", Help: "Accepted correct answers"})
		AnswersWrong = promauto.NewCounter(prometheus.CounterOpts{Name: "quiz_answers_wrong_total", Help: "Accepted incorrect answers"})
		AnswersRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "quiz_answers_rejected_total", Help: "Chat answers rejected (closed window, duplicate, out of range)"})
		PlayersJoined = promauto.NewCounter(prometheus.CounterOpts{Name: "quiz_players_joined_total", Help: "New players observed"})
		PlayersSwept = promauto.NewCounter(prometheus.CounterOpts{Name: "quiz_players_swept_total", Help: "Players removed by the inactivity sweep"})
		MatchesWon = promauto.NewCounter(prometheus.CounterOpts{Name: "quiz_matches_won_total", Help: "Matches ended with a winner"})
		NarrationFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "quiz_narration_failures_total", Help: "Narration playback failures (non-fatal)"})
		ImageCacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "quiz_image_cache_hits_total", Help: "Background image cache hits"})
		ImageCacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "quiz_image_cache_misses_total", Help: "Background image cache misses"})
		ActivePlayers = promauto.NewGauge(prometheus.GaugeOpts{Name: "quiz_active_players", Help: "Players currently in the match"})
		SinksConnected = promauto.NewGauge(prometheus.GaugeOpts{Name: "quiz_display_clients", Help: "Connected display clients"})
	})
}

// Inc bumps a counter; nil-safe before Init.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// ObserveAnswer bumps the matching answer counter; nil-safe before Init.
func ObserveAnswer(accepted, correct bool) {
	if AnswersCorrect == nil {
		return
	}
	switch {
	case !accepted:
		AnswersRejected.Inc()
	case correct:
		AnswersCorrect.Inc()
	default:
		AnswersWrong.Inc()
	}
}

// SetActivePlayers records the current player count; nil-safe before Init.
func SetActivePlayers(n int) {
	if ActivePlayers != nil {
		ActivePlayers.Set(float64(n))
	}
}
