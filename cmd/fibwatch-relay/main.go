// Command fibwatch-relay is the small sidecar the engine POSTs alert
// messages to. It forwards them to a Telegram chat when credentials are
// present and reports {"ok":false,...} when they are not, so the engine
// never needs bot credentials of its own.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fibwatch/internal/relay"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	botToken := os.Getenv("RELAY_BOT_TOKEN")
	chatID := os.Getenv("RELAY_CHAT_ID")
	totpSecret := os.Getenv("RELAY_TOTP_SECRET")
	addr := getEnv("RELAY_ADDR", ":8787")

	tg := relay.NewTelegram(botToken, chatID)
	if tg.Configured() {
		log.Println("[relay] telegram forwarding enabled")
	} else {
		log.Println("[relay] RELAY_BOT_TOKEN / RELAY_CHAT_ID not set, alerts will be rejected")
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: relay.NewServer(tg, totpSecret).Routes(),
	}
	go func() {
		log.Printf("[relay] listening on %s", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[relay] serve: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[relay] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
