package api

import (
	"net/http"
	"strconv"

	"github.com/patrickspencer/taskhist/internal/codes"
	"github.com/patrickspencer/taskhist/internal/tasks"
)

type codeDescription struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

type codesResponse struct {
	Levels []codeDescription `json:"levels"`
	Events []codeDescription `json:"events"`
	States []codeDescription `json:"states"`
}

func eventCodes() []codeDescription {
	ids := codes.EventIDs()
	out := make([]codeDescription, 0, len(ids))
	for _, id := range ids {
		text, _ := codes.EventIDDescription(id)
		out = append(out, codeDescription{Code: id, Description: text})
	}
	return out
}

func (a *API) handleCodes(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r) {
		return
	}

	var resp codesResponse
	for _, level := range codes.Levels() {
		text, _ := codes.LevelDescription(level)
		resp.Levels = append(resp.Levels, codeDescription{Code: level, Description: text})
	}
	resp.Events = eventCodes()
	for _, state := range tasks.States {
		resp.States = append(resp.States, codeDescription{Code: int(state), Description: state.String()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListEventCodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, eventCodes())
}

func (a *API) handleGetEventCode(w http.ResponseWriter, _ *http.Request, raw string) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event id must be an integer"})
		return
	}
	text, ok := codes.EventIDDescription(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown event id " + raw})
		return
	}
	writeJSON(w, http.StatusOK, codeDescription{Code: id, Description: text})
}
