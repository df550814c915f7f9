package api

import (
	"net/http"
)

type healthResponse struct {
	Status      string `json:"status"`
	Archive     bool   `json:"archive"`
	Subscribers int    `json:"subscribers"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Archive: a.Archive != nil}
	if a.Events != nil {
		resp.Subscribers = a.Events.Subscribers()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r) {
		return
	}
	if a.GetConfig == nil {
		unavailable(w, "config provider")
		return
	}

	cfg := a.GetConfig()
	if cfg == nil {
		unavailable(w, "config")
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}
