package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"streamquiz/internal/app"
	"streamquiz/internal/broadcast"
	"streamquiz/internal/chat"
	"streamquiz/internal/domain"
	"streamquiz/internal/questions"
	pgmigrations "streamquiz/internal/questions/migrations"
)

func TestQuizRoundEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuestionSet(t, ctx, pgURL, "default", sampleQuestions())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	loader := questions.NewCachedLoader(redisClient, questions.NewPostgresLoader(pool, "default"), "default", 5*time.Minute)
	items, err := loader.Load(ctx)
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(items))
	}

	// a second load must come from the redis cache
	if _, err := loader.Load(ctx); err != nil {
		t.Fatalf("cached load: %v", err)
	}

	sink := &recordingSink{}
	session := app.NewMatchSession(app.Config{
		QuestionTimer:     500 * time.Millisecond,
		GracePeriod:       50 * time.Millisecond,
		AnswerDisplay:     50 * time.Millisecond,
		ReadyPause:        50 * time.Millisecond,
		GoodbyePause:      50 * time.Millisecond,
		SweepInterval:     time.Minute,
		InactivityLimit:   time.Minute,
		Thresholds:        []int{1},
		ScoreGraceAnswers: true,
		RestartMode:       app.RestartReconnect,
	}, questions.NewPool(items), app.Collaborators{Sink: sink})

	session.ClientConnected()
	defer session.ClientDisconnected()
	sink.waitFor(t, "start_timer")

	session.HandleEvent(chat.Event{Kind: chat.KindChat, Username: "alice", Text: "A"})

	sink.waitFor(t, "match_ended")
	if !session.MatchEnded() {
		t.Fatalf("expected the match won after the top-level answer")
	}
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []broadcast.Message
}

func (s *recordingSink) Broadcast(msg broadcast.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordingSink) waitFor(t *testing.T, msgType string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, m := range s.msgs {
			data, _ := json.Marshal(m)
			var tagged struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(data, &tagged) == nil && tagged.Type == msgType {
				s.mu.Unlock()
				return
			}
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q", msgType)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			Prompt:        "What is the capital of France?",
			Options:       []string{"Paris", "Lyon", "Marseille"},
			CorrectAnswer: "A",
		},
		{
			Prompt:        "Which planet is known as the red planet?",
			Options:       []string{"Venus", "Mars"},
			CorrectAnswer: "B",
		},
	}
}

func seedQuestionSet(t *testing.T, ctx context.Context, dsn, setID string, items []domain.Question) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(items)
	if err != nil {
		t.Fatalf("marshal questions: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO question_sets (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, setID, string(data)); err != nil {
		t.Fatalf("insert question set: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
