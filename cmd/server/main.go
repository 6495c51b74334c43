// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/memeleague/memeleague/internal/auth"
	"github.com/memeleague/memeleague/internal/catalog"
	"github.com/memeleague/memeleague/internal/engine"
	"github.com/memeleague/memeleague/internal/handlers"
	"github.com/memeleague/memeleague/internal/hub"
	"github.com/memeleague/memeleague/internal/middleware"
	"github.com/memeleague/memeleague/internal/session"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	ctx := context.Background()

	store := buildStore(ctx, logger)
	cat := buildCatalog(ctx, logger)

	eng := engine.New(store, cat, logger)
	h := hub.New(logger)
	srv := handlers.NewServer(store, eng, h, logger)

	handler := middleware.LogMiddleware(logger)(srv.Routes())

	server := &http.Server{
		Handler:     handler,
		ReadTimeout: time.Second * 10,
		// No WriteTimeout: WebSocket connections outlive any sane value.
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	l, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	logger.Infof("listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

// buildStore connects the Redis session store, or falls back to the
// in-memory store when REDIS_ADDR is unset (single-process deployments and
// local development).
func buildStore(ctx context.Context, logger *logrus.Logger) session.Store {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		logger.Warn("REDIS_ADDR not set, using in-memory session store")
		return session.NewMemStore(parseTTL(logger))
	}

	db := 0
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &db); err != nil {
			logger.Fatalf("invalid REDIS_DB %q: %v", raw, err)
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatalf("failed to connect to redis at %s: %v", addr, err)
	}
	logger.Infof("connected to redis at %s", addr)
	return session.NewRedisStore(client, parseTTL(logger))
}

func parseTTL(logger *logrus.Logger) time.Duration {
	raw := os.Getenv("SESSION_TTL")
	if raw == "" {
		return session.DefaultTTL
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Fatalf("invalid SESSION_TTL %q: %v", raw, err)
	}
	return d
}

// buildCatalog opens the template catalog database, or serves the built-in
// seed set when CATALOG_DATABASE_URL is unset.
func buildCatalog(ctx context.Context, logger *logrus.Logger) catalog.Catalog {
	url := os.Getenv("CATALOG_DATABASE_URL")
	if url == "" {
		logger.Warn("CATALOG_DATABASE_URL not set, using built-in template seed")
		return catalog.NewStaticCatalog(catalog.DefaultSeed())
	}
	cat, err := catalog.NewPostgresCatalog(ctx, url)
	if err != nil {
		logger.Fatalf("failed to open template catalog: %v", err)
	}
	logger.Info("connected to template catalog database")
	return cat
}
