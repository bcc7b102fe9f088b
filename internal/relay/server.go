package relay

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/pquerna/otp/totp"
)

// Server handles POST /alert and forwards the message. Missing
// credentials are a reported condition, never a crash: the handler
// answers {"ok":false,"error":"..."} and the process keeps serving.
type Server struct {
	tg *Telegram

	// totpSecret, when set, requires a valid X-Relay-OTP header on every
	// /alert request. Guards a relay exposed beyond localhost.
	totpSecret string
}

// NewServer creates a relay server around a Telegram forwarder.
func NewServer(tg *Telegram, totpSecret string) *Server {
	return &Server{tg: tg, totpSecret: totpSecret}
}

type alertRequest struct {
	Message string `json:"message"`
}

type alertResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Routes returns the relay's HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/alert", s.handleAlert)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, alertResponse{OK: false, Error: "POST only"})
		return
	}
	if s.totpSecret != "" {
		code := r.Header.Get("X-Relay-OTP")
		if code == "" || !totp.Validate(code, s.totpSecret) {
			writeJSON(w, http.StatusUnauthorized, alertResponse{OK: false, Error: "invalid otp"})
			return
		}
	}
	if !s.tg.Configured() {
		writeJSON(w, http.StatusOK, alertResponse{OK: false, Error: "relay not configured: set RELAY_BOT_TOKEN and RELAY_CHAT_ID"})
		return
	}

	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, alertResponse{OK: false, Error: "invalid JSON: message required"})
		return
	}

	if err := s.tg.SendMessage(r.Context(), req.Message); err != nil {
		log.Printf("[relay] forward failed: %v", err)
		writeJSON(w, http.StatusBadGateway, alertResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, alertResponse{OK: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
