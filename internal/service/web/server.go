package web

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"proxyfleet/internal/proxypool/pool"
	"proxyfleet/internal/shared/logger"
	"proxyfleet/internal/shared/types"
)

// basicAuthMiddleware enforces HTTP Basic Auth when both user and pass
// are configured. The dashboard ships unauthenticated by default since
// it exposes no write path.
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	if user == "" || pass == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized.\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// newMux builds the dashboard's handler tree. Split out from StartServer
// so tests can exercise the handlers without binding a real listener.
// The websocket endpoint is never wrapped in basic auth: browser
// WebSocket clients cannot set an Authorization header, so it stays
// public regardless of user/pass.
func newMux(mgr *pool.Manager, hub *Hub, user, pass string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/status", basicAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, mgr.Status())
	}), user, pass))
	mux.Handle("/stats", basicAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, mgr.Stats())
	}), user, pass))
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})

	return mux
}

// StartServer starts the read-only dashboard if cfg.Port is positive.
// It registers the server on wg and serves until the listener is
// closed.
func StartServer(wg *sync.WaitGroup, cfg types.WebConf, mgr *pool.Manager, hub *Hub) {
	if cfg.Port <= 0 {
		logger.Info().Msg("dashboard disabled (web.port is 0 or not set)")
		return
	}

	mux := newMux(mgr, hub, cfg.User, cfg.Password)

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error().Err(err).Msgf("failed to start dashboard on %s", addr)
		return
	}

	logger.Info().Msgf("dashboard listening on http://%s", addr)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := http.Serve(listener, mux); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("dashboard server error")
		}
		logger.Info().Msg("dashboard server stopped")
	}()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("failed to encode dashboard response")
	}
}
