package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"streamquiz/internal/app"
	"streamquiz/internal/chat"
	"streamquiz/internal/config"
	"streamquiz/internal/images"
	"streamquiz/internal/logging"
	"streamquiz/internal/narration"
	"streamquiz/internal/questions"
	"streamquiz/internal/telemetry"
	"streamquiz/internal/transport/ws"
)

// NewStartCmd builds the CLI subcommand to start the orchestrator.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz show orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(cfg.Logging.Development)
	telemetry.Init()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	pool, cleanup, err := buildQuestionPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	book := narration.LoadPhraseBook(cfg.Narration.PhrasesFile)
	if book.Greetings.DefaultBackground == "" {
		book.Greetings.DefaultBackground = cfg.Images.DefaultTheme
	}
	imageService := buildImages(cfg)
	session := app.NewMatchSession(sessionConfig(cfg), pool, app.Collaborators{
		Narrator:   buildNarrator(cfg),
		Images:     imageService,
		Announcer:  narration.NewAnnouncer(book.Announcements),
		Encourager: narration.NewEncourager(book.Encouragements),
		Greetings:  book.Greetings,
	})
	wsServer := ws.NewServer(session)
	session.AttachSink(wsServer)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", wsServer.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	bgCtx, stopBg := context.WithCancel(ctx)
	defer stopBg()
	go imageService.LogStatsEvery(bgCtx, 10*time.Minute)
	if cfg.Chat.Twitch.Channel != "" {
		source := chat.NewTwitchSource(
			cfg.Chat.Twitch.Channel,
			cfg.Chat.Twitch.Username,
			cfg.Chat.Twitch.OAuthToken,
			session.HandleEvent,
		)
		go func() {
			if err := source.Run(bgCtx); err != nil {
				logging.Log.Errorw("chat source stopped", "err", err)
			}
		}()
	} else {
		logging.Log.Infow("no chat platform configured; answers must come from another source")
	}

	go func() {
		logging.Log.Infow("starting quiz orchestrator", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Log.Errorw("server failed", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logging.Log.Infow("shutting down")
	case <-ctx.Done():
		logging.Log.Infow("context canceled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func sessionConfig(cfg config.Config) app.Config {
	mode := app.RestartTimer
	if cfg.Match.Restart == string(app.RestartReconnect) {
		mode = app.RestartReconnect
	}
	return app.Config{
		QuestionTimer:     config.Duration(cfg.Quiz.QuestionTimer, 7*time.Second),
		GracePeriod:       config.Duration(cfg.Quiz.GracePeriod, time.Second),
		AnswerDisplay:     config.Duration(cfg.Quiz.AnswerDisplay, 3*time.Second),
		ReadyPause:        config.Duration(cfg.Quiz.ReadyPause, 4*time.Second),
		RestartDelay:      config.Duration(cfg.Match.RestartDelay, 10*time.Second),
		SweepInterval:     config.Duration(cfg.Players.SweepInterval, 30*time.Second),
		InactivityLimit:   config.Duration(cfg.Players.InactivityTimeout, 5*time.Minute),
		Thresholds:        cfg.Levels.Thresholds,
		ScoreGraceAnswers: config.BoolOr(cfg.Quiz.ScoreGraceAnswers, true),
		RestartMode:       mode,
		ReadyImage:        cfg.Quiz.ReadyImage,
	}
}

func buildQuestionPool(ctx context.Context, cfg config.Config) (*questions.Pool, func(), error) {
	cleanup := func() {}

	var loader questions.Loader
	switch {
	case cfg.Postgres.URL != "":
		pgpool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = pgpool.Close
		setID := cfg.Quiz.SetID
		if setID == "" {
			setID = "default"
		}
		loader = questions.NewPostgresLoader(pgpool, setID)

		if cfg.Redis.Addr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			ttl := config.Duration(cfg.Quiz.PoolCacheTTL, 10*time.Minute)
			loader = questions.NewCachedLoader(client, loader, setID, ttl)
		}
	case cfg.Quiz.QuestionsFile != "":
		loader = questions.NewFileLoader(cfg.Quiz.QuestionsFile)
	default:
		loader = questions.NewStaticLoader(nil)
	}

	items := questions.LoadOrFallback(ctx, loader)
	logging.Log.Infow("question pool loaded", "count", len(items))
	return questions.NewPool(items), cleanup, nil
}

func buildNarrator(cfg config.Config) app.Speaker {
	if !cfg.Narration.Enabled {
		return narration.Disabled{}
	}
	cacheDir := cfg.Narration.CacheDir
	if cacheDir == "" {
		cacheDir = "audio_cache"
	}
	play := narration.Silent()
	if cfg.Narration.PlayerCommand != "" {
		play = narration.ExecPlayer(cfg.Narration.PlayerCommand)
	}
	synth := narration.NewHTTPSynthesizer(cfg.Narration.Endpoint, cfg.Narration.Voice, nil)
	return narration.NewNarrator(synth, cacheDir, play)
}

func buildImages(cfg config.Config) *images.Service {
	return images.NewService(images.Config{
		APIURL:       cfg.Images.APIURL,
		AccessKeys:   cfg.Images.AccessKeys,
		LimitPerHour: cfg.Images.RateLimit,
		CacheTTL:     config.Duration(cfg.Images.CacheTTL, time.Hour),
		FallbackURL:  cfg.Images.FallbackURL,
	}, nil)
}
