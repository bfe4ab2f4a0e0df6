package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", instrument("/healthz", h.HandleHealth))

	mux.HandleFunc("/bot", instrument("/bot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.HandleDeploy(w, r)
	}))

	mux.HandleFunc("/bots", instrument("/bots", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.HandleList(w, r)
	}))

	mux.HandleFunc("/bot/", instrument("/bot/:id", func(w http.ResponseWriter, r *http.Request) {
		// /bot/{id}
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/bot/"), "/")
		if id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.HandleGet(w, r, id)
		case http.MethodDelete:
			h.HandleStop(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}))

	return mux
}
