// Command mock-endpoints runs fake notification targets for local testing:
// a Telegram Bot API sendMessage endpoint and a few webhook sinks.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/Priya8975/envelope-relay/internal/sender"
	"github.com/go-chi/chi/v5"
)

var (
	requestCount atomic.Int64
	messageCount atomic.Int64
)

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	log.Printf("Mock endpoint server starting on :%s", port)
	log.Printf("  POST /bot{token}/sendMessage -> 200 OK (chat_id=fail -> 400)")
	log.Printf("  POST /webhook/success        -> 200 OK")
	log.Printf("  POST /webhook/slow           -> 200 OK (3s delay)")
	log.Printf("  POST /webhook/fail           -> 500 Error")
	log.Printf("  POST /webhook/verify         -> 200 if signed with $WEBHOOK_SECRET, else 401")
	log.Printf("  GET  /stats                  -> request count")

	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		secret = "dev-secret"
	}

	if err := http.ListenAndServe(":"+port, newRouter(secret)); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func newRouter(secret string) http.Handler {
	r := chi.NewRouter()

	r.Post("/bot{token}/sendMessage", sendMessage)

	// Successful endpoint, always returns 200
	r.Post("/webhook/success", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logWebhook(r, count, http.StatusOK)
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
	})

	// Slow endpoint, delays 3 seconds before responding
	r.Post("/webhook/slow", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		select {
		case <-time.After(3 * time.Second):
		case <-r.Context().Done():
			return
		}
		logWebhook(r, count, http.StatusOK)
		writeJSON(w, http.StatusOK, map[string]string{"status": "received (slow)"})
	})

	// Failing endpoint, always returns 500
	r.Post("/webhook/fail", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logWebhook(r, count, http.StatusInternalServerError)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	})

	// Rejects bodies whose signature does not match secret
	r.Post("/webhook/verify", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
			return
		}
		err = sender.VerifySignature(r.Header.Get(sender.SignatureHeader), body, secret, time.Now(), sender.DefaultSignatureTolerance)
		if err != nil {
			logWebhook(r, count, http.StatusUnauthorized)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		logWebhook(r, count, http.StatusOK)
		writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int64{
			"total_requests":    requestCount.Load(),
			"telegram_messages": messageCount.Load(),
		})
	})

	return r
}

// sendMessage mimics the Bot API method. The chat id "fail" is rejected the
// way Telegram rejects an unknown chat.
func sendMessage(w http.ResponseWriter, r *http.Request) {
	count := requestCount.Add(1)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "description": "Bad Request: invalid form"})
		return
	}

	chatID := r.PostForm.Get("chat_id")
	text := r.PostForm.Get("text")
	if chatID == "" || chatID == "fail" {
		fmt.Printf("[#%d] telegram chat=%q -> 400\n", count, chatID)
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error_code": 400, "description": "Bad Request: chat not found"})
		return
	}

	id := messageCount.Add(1)
	fmt.Printf("[#%d] telegram chat=%s -> 200 | %s\n", count, chatID, truncate(text, 80))
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"result": map[string]any{
			"message_id": id,
			"chat":       map[string]string{"id": chatID},
			"date":       time.Now().Unix(),
			"text":       text,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func logWebhook(r *http.Request, count int64, status int) {
	fmt.Printf("[#%d] %s %s -> %d | sig=%s level=%s envelope=%s item=%s\n",
		count,
		r.Method,
		r.URL.Path,
		status,
		truncate(r.Header.Get(sender.SignatureHeader), 24),
		r.Header.Get("X-Relay-Level"),
		truncate(r.Header.Get("X-Relay-Envelope"), 8),
		r.Header.Get("X-Relay-Item"),
	)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
