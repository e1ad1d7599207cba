package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Logging struct {
		Development bool `yaml:"development"`
	} `yaml:"logging"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		QuestionsFile     string `yaml:"questions_file"`
		SetID             string `yaml:"set_id"`
		PoolCacheTTL      string `yaml:"pool_cache_ttl"`
		QuestionTimer     string `yaml:"question_timer"`
		GracePeriod       string `yaml:"grace_period"`
		AnswerDisplay     string `yaml:"answer_display"`
		ReadyPause        string `yaml:"ready_pause"`
		ReadyImage        string `yaml:"ready_image"`
		ScoreGraceAnswers *bool  `yaml:"score_grace_answers"`
	} `yaml:"quiz"`
	Levels struct {
		Thresholds []int `yaml:"thresholds"`
	} `yaml:"levels"`
	Players struct {
		InactivityTimeout string `yaml:"inactivity_timeout"`
		SweepInterval     string `yaml:"sweep_interval"`
	} `yaml:"players"`
	Match struct {
		Restart      string `yaml:"restart"` // "timer" or "reconnect"
		RestartDelay string `yaml:"restart_delay"`
	} `yaml:"match"`
	Narration struct {
		Enabled       bool   `yaml:"enabled"`
		Endpoint      string `yaml:"endpoint"`
		Voice         string `yaml:"voice"`
		CacheDir      string `yaml:"cache_dir"`
		PlayerCommand string `yaml:"player_command"`
		PhrasesFile   string `yaml:"phrases_file"`
	} `yaml:"narration"`
	Images struct {
		APIURL       string   `yaml:"api_url"`
		AccessKeys   []string `yaml:"access_keys"`
		RateLimit    int      `yaml:"rate_limit_per_hour"`
		CacheTTL     string   `yaml:"cache_ttl"`
		FallbackURL  string   `yaml:"fallback_url"`
		DefaultTheme string   `yaml:"default_theme"`
	} `yaml:"images"`
	Chat struct {
		Twitch struct {
			Channel    string `yaml:"channel"`
			Username   string `yaml:"username"`
			OAuthToken string `yaml:"oauth_token"`
		} `yaml:"twitch"`
	} `yaml:"chat"`
}

// Load reads YAML config from path. A missing file yields the zero
// config so the orchestrator can start on flags and environment alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg.Chat.Twitch.OAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Chat.Twitch.OAuthToken == "" {
		cfg.Chat.Twitch.OAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or
// invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// BoolOr dereferences an optional flag with a default.
func BoolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
