package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"akademi.org/internal/authz"
	"akademi.org/internal/httpapi"
	"akademi.org/internal/identity"
	"akademi.org/internal/kvstore"
	"akademi.org/internal/login"
	"akademi.org/internal/mfa"
	"akademi.org/internal/obs"
	"akademi.org/internal/token"
)

// Overridable at build time via -ldflags.
var (
	version = "0.3.0"
	commit  = "none"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	accessSecret := mustEnv("AKADEMI_ACCESS_SECRET")
	refreshSecret := mustEnv("AKADEMI_REFRESH_SECRET")

	// Keyed store: Redis when an address is configured, in-memory otherwise.
	// The in-memory store is single-process only and meant for development.
	var (
		store kvstore.Store
		probe httpapi.ReadyProbe
	)
	if addr := os.Getenv("AKADEMI_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("AKADEMI_REDIS_PASSWORD"),
		})
		rs, err := kvstore.NewRedisStore(client)
		if err != nil {
			log.Fatalf("redis store: %v", err)
		}
		store = rs
		probe = httpapi.ReadyProbe{Store: rs}
	} else {
		log.Println("AKADEMI_REDIS_ADDR not set, using in-memory store")
		store = kvstore.NewMemoryStore()
	}

	directory, err := loadDirectory()
	if err != nil {
		log.Fatalf("directory: %v", err)
	}

	tokenOpts := []token.Option{token.WithIssuer(envOr("AKADEMI_ISSUER", "akademi"))}
	if d := envDuration("AKADEMI_ACCESS_TTL"); d > 0 {
		tokenOpts = append(tokenOpts, token.WithAccessTTL(d))
	}
	if d := envDuration("AKADEMI_REFRESH_TTL"); d > 0 {
		tokenOpts = append(tokenOpts, token.WithRefreshTTL(d))
	}
	tokens, err := token.NewManager(store, accessSecret, refreshSecret, tokenOpts...)
	if err != nil {
		log.Fatalf("token manager: %v", err)
	}

	mfaSvc, err := mfa.NewService(store, mfa.WithIssuer(envOr("AKADEMI_ISSUER", "akademi")))
	if err != nil {
		log.Fatalf("mfa service: %v", err)
	}

	engine := authz.NewEngine()

	orch, err := login.New(directory, store, tokens, mfaSvc, engine)
	if err != nil {
		log.Fatalf("login orchestrator: %v", err)
	}

	api := httpapi.New(orch, probe, version)

	srv := &http.Server{
		Addr:              envOr("AKADEMI_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting akademi-identity %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

// loadDirectory picks the identity source. A JSON snapshot path keeps dev
// and demo environments working without a live directory service.
func loadDirectory() (identity.Directory, error) {
	if path := os.Getenv("AKADEMI_DIRECTORY_FILE"); path != "" {
		return identity.LoadDirectoryFile(path)
	}
	log.Println("AKADEMI_DIRECTORY_FILE not set, starting with an empty directory")
	return identity.NewStaticDirectory(), nil
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("%s is required", key)
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return d
}
