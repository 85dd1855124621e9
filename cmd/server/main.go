package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/account"
	"github.com/poolvest/ledger/internal/auth"
	"github.com/poolvest/ledger/internal/ledger"
	"github.com/poolvest/ledger/internal/limits"
	"github.com/poolvest/ledger/internal/market"
	"github.com/poolvest/ledger/internal/metrics"
	"github.com/poolvest/ledger/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Contribution limits ---
	limiter := limits.NewContributionLimiter(
		envDecimal("MAX_PER_REQUEST", decimal.NewFromInt(10000)),
		envDecimal("MAX_OPEN_TOTAL", decimal.NewFromInt(50000)),
	)

	// --- Market data source ---
	source := market.NewHTTPSource()
	marketHandlers := market.NewHandlers(source)

	// --- WebSocket hub ---
	hub := ledger.NewHub()
	go hub.Run()

	// --- Services ---
	ledgerSvc := ledger.NewService(st, source, limiter, hub)
	accountSvc := account.NewService(st, source)
	authenticator := auth.NewAuthenticator(st)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"poolvest-ledger"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for funding-event notifications.
		r.Get("/ws", hub.HandleWS)

		// Sessions.
		r.Post("/login", authenticator.HandleLogin)
		r.Post("/logout", authenticator.HandleLogout)

		// Collaborative requests.
		r.Post("/requests", ledgerSvc.HandleCreateRequest)
		r.Get("/requests/{requestID}", ledgerSvc.HandleGetRequest)
		r.Post("/requests/{requestID}/contributions", ledgerSvc.HandleContribute)
		r.Post("/requests/{requestID}/settle", ledgerSvc.HandleSettle)
		r.Post("/requests/{requestID}/cancel", ledgerSvc.HandleCancel)

		// Accounts.
		r.Post("/users", accountSvc.HandleCreateUser)
		r.Get("/users/{userID}", accountSvc.HandleGetUser)
		r.Get("/users/{userID}/pending", ledgerSvc.HandleListPending)
		r.Get("/users/{userID}/portfolio", accountSvc.HandleGetPortfolio)
		r.Post("/users/{userID}/trades", accountSvc.HandleTrade)
		r.Get("/users/{userID}/transactions", accountSvc.HandleGetTransactions)
		r.Get("/users/{userID}/watchlist", accountSvc.HandleGetWatchlist)
		r.Post("/users/{userID}/watchlist", accountSvc.HandleAddWatch)
		r.Delete("/users/{userID}/watchlist/{symbol}", accountSvc.HandleRemoveWatch)

		// Market data.
		r.Get("/assets/{symbol}/quote", marketHandlers.HandleQuote)
		r.Get("/assets/{symbol}/series", marketHandlers.HandleSeries)
		r.Get("/assets/{symbol}/headlines", marketHandlers.HandleHeadlines)
		r.Get("/assets/{symbol}/sentiment", marketHandlers.HandleSentiment)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("poolvest-ledger listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down poolvest-ledger...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("poolvest-ledger stopped")
}

// envDecimal reads a decimal env var, falling back on parse failure.
func envDecimal(name string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		slog.Warn("invalid decimal env var, using default", "name", name, "value", v)
		return fallback
	}
	return d
}
