package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/keza/ikimina/internal/auth"
	"github.com/keza/ikimina/internal/middleware"
	"github.com/keza/ikimina/internal/notify"
	"github.com/keza/ikimina/internal/service"
	"github.com/keza/ikimina/internal/storage/sqlite"
	"github.com/keza/ikimina/internal/workflow"
	"github.com/keza/ikimina/pkg/logging"
)

const defaultPort = "8080"

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	logging.Setup()

	dbPath := getEnv("DB_PATH", "./data/ikimina.db")
	port := getEnv("PORT", defaultPort)
	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", dbPath)

	channel := notify.NewChannel()
	engine := workflow.NewEngine(store, channel, 5*time.Second, slog.Default())

	jwtManager := auth.NewJWTManager(jwtSecret, 24*time.Hour)
	authenticator := auth.NewPasswordAuthenticator(store)

	mux := service.NewRouter(store, engine, channel, authenticator, jwtManager)

	withMetrics := middleware.Metrics(mux)
	handler := middleware.Logging(middleware.CORS(withMetrics(mux)))

	// h2c gives HTTP/2 without TLS for clients that want it.
	h2cHandler := h2c.NewHandler(handler, &http2.Server{})

	addr := fmt.Sprintf(":%s", port)
	slog.Info("Server starting", "address", addr)
	if err := http.ListenAndServe(addr, h2cHandler); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
