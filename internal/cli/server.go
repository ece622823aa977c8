package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timed-quiz-bot/internal/app"
	"timed-quiz-bot/internal/bank"
	"timed-quiz-bot/internal/config"
	"timed-quiz-bot/internal/domain"
	"timed-quiz-bot/internal/infra/memory"
	pgstore "timed-quiz-bot/internal/infra/postgres"
	redissession "timed-quiz-bot/internal/infra/redis"
	"timed-quiz-bot/internal/report"
	transport "timed-quiz-bot/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz bot backend",
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
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()
	store := pgstore.NewStore(db)

	// A restart loses in-memory sessions; their rows would stay started
	// forever without this sweep.
	staleTTL := config.TTLDuration(cfg.Quiz.StaleAttemptTTL, 24*time.Hour)
	now := time.Now().Unix()
	if n, err := store.ExpireStaleAttempts(ctx, now-int64(staleTTL.Seconds()), now); err != nil {
		return err
	} else if n > 0 {
		log.Printf("marked %d stale started attempts as quit", n)
	}

	loader := bank.NewFallbackLoader(
		pgstore.NewBankLoader(pool),
		bank.NewStaticLoader(map[string]bank.Bank{cfg.Quiz.BankID: builtinBank(cfg.Quiz.BankID)}),
	)
	banks := bank.NewRepository(loader, cfg.Quiz.BankID, config.TTLDuration(cfg.Quiz.BankTTL, 10*time.Minute))

	// Insufficient bank for the configured quiz size is fatal here, never
	// silently truncated at session start.
	b, err := banks.Bank(ctx)
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}
	if err := b.Validate(cfg.Quiz.Size); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	var sessions app.SessionStore = memory.NewSessionStore()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		sessions = redissession.NewSessionStore(client, config.TTLDuration(cfg.Redis.TTL, 30*time.Minute))
	}

	engine := app.NewEngine(sessions, store, banks, cfg.Quiz.Size, cfg.Quiz.PenaltyMS)

	theoryText, err := cfg.TheoryText()
	if err != nil {
		return fmt.Errorf("read theory text: %w", err)
	}
	theory := app.NewTheoryBook(theoryText, app.DefaultPageChars)

	reports := report.NewService(store, banks, cfg.AdminSet())
	wsHandler := transport.NewWSHandler(engine, theory, reports, cfg.Server.AuthToken)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz bot backend on :%s (quiz size %d, penalty %dms)", finalPort, cfg.Quiz.Size, cfg.Quiz.PenaltyMS)
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

// builtinBank ships a small starter bank so a fresh database is playable;
// real deployments load theirs from the question_banks table.
func builtinBank(id string) bank.Bank {
	return bank.Bank{
		ID: id,
		Questions: []domain.Question{
			{
				Text:         "What is 7 x 8?",
				Options:      []string{"54", "56", "58", "64"},
				CorrectIndex: 1,
				HintWrong:    "7x7 is 49, so 7x8 is 7 more.",
				ExplainRight: "7x8 = 56.",
			},
			{
				Text:         "Which planet is closest to the Sun?",
				Options:      []string{"Venus", "Mars", "Mercury", "Jupiter"},
				CorrectIndex: 2,
				HintWrong:    "The order from the Sun starts with Mercury.",
				ExplainRight: "Mercury orbits closest to the Sun.",
			},
			{
				Text:         "Is the boiling point of water at sea level 100 C?",
				Options:      []string{"Yes", "No"},
				CorrectIndex: 0,
				HintWrong:    "Think of the standard atmosphere definition.",
				ExplainRight: "At 1 atm water boils at 100 C.",
			},
			{
				Text:         "How many sides does a hexagon have?",
				Options:      []string{"5", "6", "8"},
				CorrectIndex: 1,
				HintWrong:    "Hexa- is the Greek prefix for six.",
				ExplainRight: "A hexagon has 6 sides.",
			},
		},
	}
}
