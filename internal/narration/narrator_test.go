package narration

import (
	"context"
	"errors"
	"testing"
)

type countingSynth struct {
	calls int
	fail  bool
}

func (s *countingSynth) Synthesize(context.Context, string) ([]byte, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("synth down")
	}
	return []byte("audio-bytes"), nil
}

func TestSpeakCachesByContentHash(t *testing.T) {
	synth := &countingSynth{}
	played := 0
	n := NewNarrator(synth, t.TempDir(), func(context.Context, string) error {
		played++
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := n.Speak(context.Background(), "Question 1: What is the capital of France?"); err != nil {
			t.Fatalf("speak %d: %v", i, err)
		}
	}
	if synth.calls != 1 {
		t.Fatalf("expected one synthesis for repeated text, got %d", synth.calls)
	}
	if played != 3 {
		t.Fatalf("expected playback each time, got %d", played)
	}

	if err := n.Speak(context.Background(), "a different line"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if synth.calls != 2 {
		t.Fatalf("new text should synthesize again, got %d calls", synth.calls)
	}
}

func TestSpeakEmptyTextIsNoop(t *testing.T) {
	synth := &countingSynth{}
	n := NewNarrator(synth, t.TempDir(), Silent())
	if err := n.Speak(context.Background(), ""); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if synth.calls != 0 {
		t.Fatalf("empty text must not synthesize")
	}
}

func TestSpeakReportsSynthFailure(t *testing.T) {
	n := NewNarrator(&countingSynth{fail: true}, t.TempDir(), Silent())
	if err := n.Speak(context.Background(), "doomed"); err == nil {
		t.Fatalf("expected synthesis error")
	}
}

func TestSpeakBestEffortSwallowsErrors(t *testing.T) {
	n := NewNarrator(&countingSynth{fail: true}, t.TempDir(), Silent())
	// must not panic or propagate
	SpeakBestEffort(context.Background(), n, "doomed")
	SpeakBestEffort(context.Background(), Disabled{}, "anything")
}
