package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"captionbot/agent/internal/health"
	"captionbot/agent/internal/launcher"
	"captionbot/agent/internal/types"
)

// Deployer is the launcher surface the handlers use.
type Deployer interface {
	Deploy(ctx context.Context, req launcher.Request) (launcher.Result, error)
	Stop(ctx context.Context, botID string) error
	Get(botID string) (types.Instance, bool)
	List() []types.Instance
	Health(ctx context.Context) error
}

type Handlers struct {
	svc Deployer
}

func NewHandlers(svc Deployer) *Handlers {
	return &Handlers{svc: svc}
}

func (h *Handlers) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	var raw launcher.RawRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errors": launcher.ValidationErrors{{Field: "body", Message: "invalid JSON body"}},
		})
		return
	}
	req, verrs := launcher.Validate(raw)
	if len(verrs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": verrs})
		return
	}
	res, err := h.svc.Deploy(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, res)
	case errors.Is(err, launcher.ErrInstanceExists), errors.Is(err, launcher.ErrPortInUse):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"bots": h.svc.List()})
}

func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request, id string) {
	inst, ok := h.svc.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown bot")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.svc.Stop(r.Context(), id); err != nil {
		if errors.Is(err, launcher.ErrUnknownBot) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"botId": id, "status": "stopping"})
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	st := health.CheckAll(ctx, health.Check{Name: "runtime", Fn: h.svc.Health})
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
