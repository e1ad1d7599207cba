package narration

import (
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"streamquiz/internal/logging"
)

// Greetings holds the spoken bookends of the question cycle.
type Greetings struct {
	Welcome           string `yaml:"welcome"`
	Goodbye           string `yaml:"goodbye"`
	DefaultBackground string `yaml:"default_background"`
	GoodbyeBackground string `yaml:"goodbye_background"`
}

func defaultGreetings() Greetings {
	return Greetings{
		Welcome: "Hello everyone! Welcome to our live quiz.",
		Goodbye: "Thanks everyone for playing our quiz!",
	}
}

// Phrase is one reusable narration line.
type Phrase struct {
	ID       string `yaml:"id"`
	Text     string `yaml:"text"`
	Category string `yaml:"category"`
}

// PhraseBook bundles the configurable narration content: greetings,
// answer-reveal templates and encouragement lines.
type PhraseBook struct {
	Greetings      Greetings `yaml:"greetings"`
	Announcements  []Phrase  `yaml:"announcements"`
	Encouragements []Phrase  `yaml:"encouragements"`
}

// LoadPhraseBook reads the YAML phrase file, falling back to built-in
// defaults on any error so the show keeps running.
func LoadPhraseBook(path string) PhraseBook {
	book := PhraseBook{Greetings: defaultGreetings()}
	if path == "" {
		return book
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logging.Log.Warnw("phrase file unavailable, using defaults", "path", path, "err", err)
		return book
	}
	var loaded PhraseBook
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		logging.Log.Warnw("phrase file unparseable, using defaults", "path", path, "err", err)
		return book
	}
	if loaded.Greetings.Welcome == "" {
		loaded.Greetings.Welcome = book.Greetings.Welcome
	}
	if loaded.Greetings.Goodbye == "" {
		loaded.Greetings.Goodbye = book.Greetings.Goodbye
	}
	return loaded
}

// Announcer picks answer-reveal phrases, avoiding repeats until most of
// the pool has been used.
type Announcer struct {
	mu        sync.Mutex
	templates []Phrase
	used      map[string]struct{}
	rnd       *rand.Rand
}

func NewAnnouncer(templates []Phrase) *Announcer {
	return &Announcer{
		templates: templates,
		used:      make(map[string]struct{}),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Reveal renders a reveal phrase for the correct answer. Templates may
// reference {letter} and {answer}.
func (a *Announcer) Reveal(letter, option string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	template := a.pickLocked()
	if template == "" {
		template = "The correct answer is {letter}: {answer}"
	}
	text := strings.ReplaceAll(template, "{letter}", letter)
	return strings.ReplaceAll(text, "{answer}", option)
}

func (a *Announcer) pickLocked() string {
	if len(a.templates) == 0 {
		return ""
	}
	// reset once 80% of templates have been spoken
	if len(a.used) >= len(a.templates)*4/5 {
		a.used = make(map[string]struct{})
	}
	available := a.templates[:0:0]
	for _, t := range a.templates {
		if _, seen := a.used[t.ID]; !seen {
			available = append(available, t)
		}
	}
	if len(available) == 0 {
		a.used = make(map[string]struct{})
		available = a.templates
	}
	chosen := available[a.rnd.Intn(len(available))]
	a.used[chosen.ID] = struct{}{}
	return chosen.Text
}

const giftPriorityWindow = 30 * time.Second

// Encourager serves filler lines for cooldowns. Received gifts are
// remembered for a short window during which gift-thanks lines take
// priority over general encouragement.
type Encourager struct {
	mu           sync.Mutex
	phrases      []Phrase
	used         map[string]struct{}
	rnd          *rand.Rand
	clock        func() time.Time
	lastGiftAt   time.Time
	pendingGifts []giftRecord
}

type giftRecord struct {
	Username string
	GiftName string
}

func NewEncourager(phrases []Phrase) *Encourager {
	return &Encourager{
		phrases: phrases,
		used:    make(map[string]struct{}),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:   time.Now,
	}
}

// RecordGift notes a received gift so the next encouragement thanks the
// sender.
func (e *Encourager) RecordGift(username, giftName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastGiftAt = e.clock()
	e.pendingGifts = append(e.pendingGifts, giftRecord{Username: username, GiftName: giftName})
}

// Next returns the line to speak during the upcoming cooldown, or
// ok=false when there is nothing worth saying.
func (e *Encourager) Next() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pendingGifts) > 0 && e.clock().Sub(e.lastGiftAt) <= giftPriorityWindow {
		text := e.giftThanksLocked()
		e.pendingGifts = nil
		return text, true
	}
	e.pendingGifts = nil

	if len(e.phrases) == 0 {
		return "", false
	}
	if len(e.used) >= len(e.phrases) {
		e.used = make(map[string]struct{})
	}
	available := e.phrases[:0:0]
	for _, p := range e.phrases {
		if _, seen := e.used[p.ID]; !seen {
			available = append(available, p)
		}
	}
	if len(available) == 0 {
		return "", false
	}
	chosen := available[e.rnd.Intn(len(available))]
	e.used[chosen.ID] = struct{}{}
	return chosen.Text, true
}

func (e *Encourager) giftThanksLocked() string {
	users := make([]string, 0, len(e.pendingGifts))
	seen := make(map[string]struct{})
	for _, g := range e.pendingGifts {
		if _, dup := seen[g.Username]; dup {
			continue
		}
		seen[g.Username] = struct{}{}
		users = append(users, g.Username)
	}

	if len(users) == 1 {
		if len(e.pendingGifts) == 1 {
			return "Thank you for the " + e.pendingGifts[0].GiftName + " " + users[0] + ", glad you enjoy the stream!"
		}
		return "Thanks " + users[0] + " for all the gifts, really appreciate it!"
	}
	return "Thank you " + strings.Join(users, ", ") + " for the gifts, keep them coming!"
}
