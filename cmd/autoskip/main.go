package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"plexautoskip/internal/httputil"
	"plexautoskip/internal/models"
	"plexautoskip/internal/plex"
	"plexautoskip/internal/server"
	"plexautoskip/internal/skipper"
	"plexautoskip/internal/store"
)

func main() {
	plexURL := os.Getenv("PLEX_URL")
	plexToken := os.Getenv("PLEX_TOKEN")
	dbPath := envOr("DB_PATH", "./data/autoskip.db")
	listenAddr := envOr("LISTEN_ADDR", ":7936")

	if err := httputil.ValidateServerURL(plexURL); err != nil {
		log.Fatalf("PLEX_URL: %v", err)
	}
	if plexToken == "" {
		log.Fatal("PLEX_TOKEN is required")
	}

	cfg := skipper.DefaultConfig()
	cfg.LeftOffsetMs = envInt64("LEFT_OFFSET_MS", 0)
	cfg.RightOffsetMs = envInt64("RIGHT_OFFSET_MS", 0)
	cfg.Timeout = time.Duration(envInt64("SESSION_TIMEOUT_SEC", 120)) * time.Second
	cfg.TimeoutWithoutCheck = envBool("TIMEOUT_WITHOUT_CHECK", true)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatal(err)
	}

	s, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(); err != nil {
		log.Fatalf("running migrations: %v", err)
	}

	ps := plex.New(plexURL, plexToken)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := ps.TestConnection(startupCtx); err != nil {
		startupCancel()
		log.Fatalf("connecting to plex: %v", err)
	}
	startupCancel()
	log.Printf("connected to plex server at %s", ps.URL())

	dial := func(info models.PlayerInfo) skipper.Player {
		return ps.Player(info)
	}
	sk := skipper.New(ps, ps, dial, cfg, skipper.WithRecorder(s))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sk.Start(ctx); err != nil {
		log.Fatalf("starting skipper: %v", err)
	}
	defer sk.Stop()

	srv := server.NewServer(s, sk)
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("autoskip status API listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Printf("ignoring invalid %s=%q", key, v)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("ignoring invalid %s=%q", key, v)
	}
	return fallback
}
