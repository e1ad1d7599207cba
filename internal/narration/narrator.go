// Package narration drives spoken announcements through a pluggable
// text-to-speech backend, caching synthesized audio by content hash.
package narration

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	"streamquiz/internal/logging"
	"streamquiz/internal/telemetry"
)

// Synthesizer turns text into playable audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// PlayFunc plays a synthesized audio file and blocks until playback ends.
type PlayFunc func(ctx context.Context, path string) error

// Narrator synthesizes and plays narration. Speak blocks for the duration
// of playback; failures are reported but callers treat them as non-fatal.
type Narrator struct {
	synth    Synthesizer
	cacheDir string
	play     PlayFunc
}

func NewNarrator(synth Synthesizer, cacheDir string, play PlayFunc) *Narrator {
	return &Narrator{synth: synth, cacheDir: cacheDir, play: play}
}

// Speak synthesizes text (served from the content-hash cache when
// possible) and plays it to completion.
func (n *Narrator) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	path, err := n.ensureCached(ctx, text)
	if err != nil {
		if telemetry.NarrationFailures != nil {
			telemetry.NarrationFailures.Inc()
		}
		return err
	}

	if err := n.play(ctx, path); err != nil {
		if telemetry.NarrationFailures != nil {
			telemetry.NarrationFailures.Inc()
		}
		return fmt.Errorf("narration playback: %w", err)
	}
	return nil
}

func (n *Narrator) ensureCached(ctx context.Context, text string) (string, error) {
	sum := sha256.Sum256([]byte(text))
	path := filepath.Join(n.cacheDir, hex.EncodeToString(sum[:8])+".mp3")

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	audio, err := n.synth.Synthesize(ctx, text)
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	if err := os.MkdirAll(n.cacheDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// HTTPSynthesizer posts text to a speech endpoint and returns the audio
// body. The endpoint contract is deliberately narrow; vendor specifics
// live behind it.
type HTTPSynthesizer struct {
	endpoint string
	voice    string
	client   *http.Client
}

func NewHTTPSynthesizer(endpoint, voice string, client *http.Client) *HTTPSynthesizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSynthesizer{endpoint: endpoint, voice: voice, client: client}
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"text": text, "voice": s.voice})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech endpoint returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ExecPlayer plays audio files through an external player command.
func ExecPlayer(command string) PlayFunc {
	return func(ctx context.Context, path string) error {
		cmd := exec.CommandContext(ctx, command, path)
		return cmd.Run()
	}
}

// Disabled is a no-op narrator used when TTS is turned off.
type Disabled struct{}

func (Disabled) Speak(context.Context, string) error { return nil }

// Silent discards audio without playing it; useful for pre-warming the
// cache and in tests.
func Silent() PlayFunc {
	return func(context.Context, string) error { return nil }
}

// SpeakBestEffort logs and swallows a Speak failure; the lifecycle never
// blocks on narration errors.
func SpeakBestEffort(ctx context.Context, speaker interface {
	Speak(context.Context, string) error
}, text string) {
	if err := speaker.Speak(ctx, text); err != nil {
		logging.Log.Warnw("narration failed", "err", err)
	}
}
