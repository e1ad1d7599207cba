package questions

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"streamquiz/internal/domain"
	"streamquiz/internal/logging"
)

// Loader fetches a question set from a backing store.
type Loader interface {
	Load(ctx context.Context) ([]domain.Question, error)
}

// FileLoader reads questions from a YAML file.
type FileLoader struct {
	path string
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

func (l *FileLoader) Load(_ context.Context) ([]domain.Question, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read questions file: %w", err)
	}
	var doc struct {
		Questions []domain.Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse questions file: %w", err)
	}
	return validateSet(doc.Questions)
}

// StaticLoader serves a fixed slice (tests and demos).
type StaticLoader struct {
	items []domain.Question
}

func NewStaticLoader(items []domain.Question) *StaticLoader {
	return &StaticLoader{items: items}
}

func (l *StaticLoader) Load(context.Context) ([]domain.Question, error) {
	return validateSet(l.items)
}

// DefaultQuestion is the built-in fallback used when the configured pool
// is empty or unparseable, so the show keeps running.
func DefaultQuestion() domain.Question {
	return domain.Question{
		Prompt:        "What is the capital of France?",
		Options:       []string{"Paris", "Lyon", "Marseille"},
		CorrectAnswer: "A",
		ImageKeywords: "paris landmark",
		Difficulty:    "easy",
	}
}

// LoadOrFallback loads the pool, substituting the default question on any
// failure rather than aborting startup.
func LoadOrFallback(ctx context.Context, loader Loader) []domain.Question {
	items, err := loader.Load(ctx)
	if err != nil || len(items) == 0 {
		logging.Log.Warnw("question pool unavailable, using built-in fallback", "err", err)
		return []domain.Question{DefaultQuestion()}
	}
	return items
}

// validateSet drops malformed questions instead of failing the whole set.
func validateSet(items []domain.Question) ([]domain.Question, error) {
	valid := make([]domain.Question, 0, len(items))
	for i, q := range items {
		if err := q.Validate(); err != nil {
			logging.Log.Warnw("skipping invalid question", "index", i, "prompt", q.Prompt)
			continue
		}
		valid = append(valid, q)
	}
	if len(valid) == 0 {
		return nil, domain.ErrQuestionSetNotFound
	}
	return valid, nil
}
