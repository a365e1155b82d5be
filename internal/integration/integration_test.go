package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"placement-quiz-service/internal/app"
	"placement-quiz-service/internal/domain"
	"placement-quiz-service/internal/infra/postgres"
	infraredis "placement-quiz-service/internal/infra/redis"
)

func TestAttemptFoldEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	catalog := postgres.NewQuizCatalog(pool)
	if err := catalog.CreateQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if err := catalog.CreateQuiz(ctx, sampleQuiz()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected duplicate quiz to be rejected, got %v", err)
	}
	students := postgres.NewStudentDirectory(db)
	if err := students.PutStudent(ctx, domain.Student{ID: "s1", Name: "Asha", Branch: "CSE"}); err != nil {
		t.Fatalf("put student: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	attempts := postgres.NewAttemptStore(db)
	rollups := postgres.NewAnalyticsStore(db)
	broker := infraredis.NewProgressBroker(redisClient, 5*time.Minute)
	service := app.NewAttemptService(app.AttemptDeps{
		Attempts:   attempts,
		Quizzes:    infraredis.NewQuizRepository(redisClient, catalog, 5*time.Minute),
		Aggregator: app.NewAggregator(rollups),
		Progress:   broker,
	})
	analytics := app.NewAnalyticsService(rollups, attempts, students)

	attempt, err := service.Open(ctx, app.OpenAttemptRequest{StudentID: "s1", QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	updates, cancel, err := broker.Subscribe(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// concurrent duplicates: exactly one wins
	var wg sync.WaitGroup
	results := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			selected := 1
			_, err := service.SubmitResponse(ctx, app.SubmitResponseRequest{
				AttemptID: attempt.ID, QuestionID: "q1", SelectedAnswer: &selected, ResponseTime: 8,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)
	accepted := 0
	for err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrDuplicateResponse):
		default:
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	if accepted != 1 {
		t.Fatalf("expected one accepted response, got %d", accepted)
	}

	summary, err := service.Close(ctx, app.CloseAttemptRequest{AttemptID: attempt.ID})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if summary.Status != domain.AttemptCompleted || summary.Score != 1 || summary.SkippedQuestions != 1 || !summary.AnalyticsApplied {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if _, err := service.Close(ctx, app.CloseAttemptRequest{AttemptID: attempt.ID}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected second close to fail, got %v", err)
	}
	if err := rollups.Apply(ctx, attempt.ID, domain.RollupKey{StudentID: "s1", Company: "acme"}, func(rows []domain.PerformanceAnalytics) ([]domain.PerformanceAnalytics, error) {
		return rows, nil
	}); !errors.Is(err, domain.ErrAlreadyFolded) {
		t.Fatalf("expected fold ledger to reject replay, got %v", err)
	}

	deadline := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case p := <-updates:
			done = p.Status == domain.AttemptCompleted
		case <-deadline:
			t.Fatalf("no completed progress over redis")
		}
	}

	board, err := analytics.Leaderboard(ctx, app.LeaderboardQuery{Company: "acme"})
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 1 || board[0].DisplayName != "Asha" || board[0].AverageScore != 100 || board[0].TotalQuestions != 1 {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
	perf, err := analytics.StudentPerformance(ctx, "s1", "acme")
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	if len(perf) != 2 {
		t.Fatalf("expected overall and the answered topic row, got %+v", perf)
	}
	history, err := service.History(ctx, "s1", 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("history: %v %+v", err, history)
	}

	// concurrent applies of one attempt id: the ledger admits exactly one
	key := domain.RollupKey{StudentID: "s1", Company: "acme"}
	bump := func(rows []domain.PerformanceAnalytics) ([]domain.PerformanceAnalytics, error) {
		for _, row := range rows {
			if row.Topic == "" {
				row.TotalAttempts++
				return []domain.PerformanceAnalytics{row}, nil
			}
		}
		return nil, fmt.Errorf("overall row missing")
	}
	applied := make(chan error, 8)
	var applyWG sync.WaitGroup
	for i := 0; i < 8; i++ {
		applyWG.Add(1)
		go func() {
			defer applyWG.Done()
			applied <- rollups.Apply(ctx, "replayed-attempt", key, bump)
		}()
	}
	applyWG.Wait()
	close(applied)
	wins := 0
	for err := range applied {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrAlreadyFolded):
		default:
			t.Fatalf("unexpected apply error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected one ledger entry to win, got %d", wins)
	}
	overall, err := rollups.List(ctx, domain.RollupFilter{StudentID: "s1", Company: "acme"})
	if err != nil || len(overall) != 1 || overall[0].TotalAttempts != 2 {
		t.Fatalf("expected exactly one extra attempt folded, got %v %+v", err, overall)
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

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:      "quiz-1",
		Company: "acme",
		Type:    domain.QuizTypeAptitude,
		Title:   "Acme aptitude",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: 1, Topic: "Mathematics", Difficulty: 0.2, Points: 1},
			{ID: "q2", Prompt: "Opposite of hot?", Options: []string{"cold", "warm"}, CorrectAnswer: 0, Topic: "Verbal", Difficulty: 0.3, Points: 1},
		},
		TimeLimit: 600,
		Active:    true,
		CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
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
