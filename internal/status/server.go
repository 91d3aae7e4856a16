package status

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beekhof/shiftsync/internal/message"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: loopbackOrigin,
}

// loopbackOrigin accepts requests without an Origin header, which browsers
// omit for same-origin GETs and non-browser clients never send, and requests
// from pages served by this machine. Any other page the user has open could
// otherwise read sync status or feed codes into the portal login.
func loopbackOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// rejectForeignOrigin answers 403 to cross-origin requests.
func rejectForeignOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !loopbackOrigin(r) {
			log.Printf("Warning: rejected %s %s from origin %q", r.Method, r.URL.Path, r.Header.Get("Origin"))
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter returns the status API:
//
//	GET  /api/status  latest syncStatus message, 204 before the first update
//	GET  /ws          syncStatus push stream; accepts submitMFA messages
//	POST /api/mfa     {"code": "..."} relayed as a submitMFA message
//
// Requests carrying a non-loopback Origin get 403.
func NewRouter(hub *Hub, inbound chan<- message.Message) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(rejectForeignOrigin)

	router.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		latest, ok := hub.Latest()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		respondJSON(w, http.StatusOK, latest.Message())
	})

	router.Post("/api/mfa", func(w http.ResponseWriter, r *http.Request) {
		var req message.Message
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Code == "" {
			http.Error(w, "code is required", http.StatusBadRequest)
			return
		}

		select {
		case inbound <- message.SubmitMFA(req.Code):
			w.WriteHeader(http.StatusAccepted)
		case <-r.Context().Done():
			http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		}
	})

	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Print("Upgrade error:", err)
			return
		}

		c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
		hub.register(c)

		go hub.readPump(c, inbound)
		go hub.writePump(c)
	})

	return router
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to write response: %v", err)
	}
}

// Serve runs handler on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Status server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
