// Package broadcast defines the closed set of messages pushed to the
// rendering client, each a flat JSON object tagged by a "type" field.
package broadcast

import "streamquiz/internal/domain"

// Message is implemented by every outbound display-sink message.
type Message interface {
	message()
}

// Sink is the downstream broadcast channel to the rendering client.
type Sink interface {
	Broadcast(msg Message)
}

// NopSink discards every message; used when no client is attached and in tests.
type NopSink struct{}

func (NopSink) Broadcast(Message) {}

type NewQuestion struct {
	Type            string   `json:"type"`
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	Image           string   `json:"image,omitempty"`
	BackgroundImage string   `json:"backgroundImage,omitempty"`
	QuestionNumber  int      `json:"questionNumber"`
	Difficulty      string   `json:"niveau,omitempty"`
}

type QuestionActive struct {
	Type string `json:"type"`
}

type StartTimer struct {
	Type    string  `json:"type"`
	Seconds float64 `json:"timer"`
}

type QuestionEnded struct {
	Type          string `json:"type"`
	CorrectAnswer string `json:"correctAnswer"`
	CorrectOption string `json:"correctOption"`
}

type ShowCorrectAnswer struct {
	Type          string `json:"type"`
	CorrectAnswer string `json:"correctAnswer"`
	CorrectOption string `json:"correctOption"`
}

type ShowReady struct {
	Type  string `json:"type"`
	Image string `json:"image,omitempty"`
}

type SetBackground struct {
	Type            string `json:"type"`
	BackgroundImage string `json:"backgroundImage"`
}

type NewPlayer struct {
	Type         string `json:"type"`
	Username     string `json:"username"`
	ProfileImage string `json:"profileImage,omitempty"`
	Score        int    `json:"score"`
	Level        int    `json:"level"`
}

type PlayerUpdate struct {
	Type         string `json:"type"`
	Username     string `json:"username"`
	ProfileImage string `json:"profileImage,omitempty"`
	Score        int    `json:"score"`
	Level        int    `json:"level"`
}

type PlayerRemoved struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// CorrectAnswer and WrongAnswer are per-player animation cues.
type CorrectAnswer struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type WrongAnswer struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type MatchStarted struct {
	Type string `json:"type"`
}

type MatchEnded struct {
	Type   string                `json:"type"`
	Winner string                `json:"winner"`
	Score  int                   `json:"score"`
	Podium []domain.RankedPlayer `json:"podium"`
}

func (NewQuestion) message()       {}
func (QuestionActive) message()    {}
func (StartTimer) message()        {}
func (QuestionEnded) message()     {}
func (ShowCorrectAnswer) message() {}
func (ShowReady) message()         {}
func (SetBackground) message()     {}
func (NewPlayer) message()         {}
func (PlayerUpdate) message()      {}
func (PlayerRemoved) message()     {}
func (CorrectAnswer) message()     {}
func (WrongAnswer) message()       {}
func (MatchStarted) message()      {}
func (MatchEnded) message()        {}

// Constructors fill the tag so callers cannot produce an untagged message.

func NewQuestionMsg(q domain.Question, number int, backgroundURL string) NewQuestion {
	return NewQuestion{
		Type:            "new_question",
		Question:        q.Prompt,
		Options:         q.Options,
		Image:           q.Image,
		BackgroundImage: backgroundURL,
		QuestionNumber:  number,
		Difficulty:      q.Difficulty,
	}
}

func QuestionActiveMsg() QuestionActive { return QuestionActive{Type: "question_active"} }

func StartTimerMsg(seconds float64) StartTimer {
	return StartTimer{Type: "start_timer", Seconds: seconds}
}

func QuestionEndedMsg(letter, option string) QuestionEnded {
	return QuestionEnded{Type: "question_ended", CorrectAnswer: letter, CorrectOption: option}
}

func ShowCorrectAnswerMsg(letter, option string) ShowCorrectAnswer {
	return ShowCorrectAnswer{Type: "show_correct_answer", CorrectAnswer: letter, CorrectOption: option}
}

func ShowReadyMsg(image string) ShowReady { return ShowReady{Type: "show_ready", Image: image} }

func SetBackgroundMsg(url string) SetBackground {
	return SetBackground{Type: "set_background", BackgroundImage: url}
}

func NewPlayerMsg(p domain.Player) NewPlayer {
	return NewPlayer{Type: "new_player", Username: p.Username, ProfileImage: p.ProfileImage, Score: p.Score, Level: p.Level}
}

func PlayerUpdateMsg(p domain.Player) PlayerUpdate {
	return PlayerUpdate{Type: "player_update", Username: p.Username, ProfileImage: p.ProfileImage, Score: p.Score, Level: p.Level}
}

func PlayerRemovedMsg(username string) PlayerRemoved {
	return PlayerRemoved{Type: "player_removed", Username: username}
}

func CorrectAnswerMsg(username string) CorrectAnswer {
	return CorrectAnswer{Type: "correct_answer", Username: username}
}

func WrongAnswerMsg(username string) WrongAnswer {
	return WrongAnswer{Type: "wrong_answer", Username: username}
}

func MatchStartedMsg() MatchStarted { return MatchStarted{Type: "match_started"} }

func MatchEndedMsg(winner string, score int, podium []domain.RankedPlayer) MatchEnded {
	return MatchEnded{Type: "match_ended", Winner: winner, Score: score, Podium: podium}
}
