package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizlive-service/internal/app"
	"quizlive-service/internal/config"
	"quizlive-service/internal/domain"
	"quizlive-service/internal/game"
	"quizlive-service/internal/infra/memory"
	pgstore "quizlive-service/internal/infra/postgres"
	redisstore "quizlive-service/internal/infra/redis"
	transport "quizlive-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var archiver app.ResultArchiver
	switch {
	case pool != nil:
		archiver = pgstore.NewResultStore(pool)
	case redisClient != nil:
		archiver = redisstore.NewResultStore(redisClient, redisTTL)
	default:
		archiver = memory.NewResultStore()
	}

	registry := game.NewRegistry(gameConfig(cfg))
	service := app.NewGameService(registry, quizRepo, archiver)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/qr/", wsHandler.ServeQR)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func gameConfig(cfg config.Config) game.Config {
	gc := game.Config{
		Countdown: time.Duration(cfg.Game.CountdownSeconds) * time.Second,
		HostGrace: config.TTLDuration(cfg.Game.HostGrace, 30*time.Second),
	}
	if cfg.Game.JoinCutoff == "countdown" {
		gc.JoinThroughCountdown = true
	}
	return gc
}

// sampleQuizzes provides demo quiz data; the Postgres loader replaces this
// when a database is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "General knowledge",
			Questions: []domain.Question{
				{
					Text:          "What is the capital of France?",
					Options:       []string{"London", "Paris", "Berlin", "Madrid"},
					CorrectIndex:  1,
					PrepSeconds:   5,
					AnswerSeconds: 15,
				},
				{
					Text:          "Which planet is known as the Red Planet?",
					Options:       []string{"Venus", "Jupiter", "Mars", "Saturn"},
					CorrectIndex:  2,
					PrepSeconds:   5,
					AnswerSeconds: 15,
				},
			},
		},
	}
}
