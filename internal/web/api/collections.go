package api

import (
	"net/http"
	"strconv"

	"github.com/patrickspencer/taskhist/internal/store"
)

func (a *API) handleListCollections(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r) {
		return
	}
	if a.Archive == nil {
		unavailable(w, "archive")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	colls, err := a.Archive.ListCollections(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(colls))
}

func (a *API) handleCollectHistory(w http.ResponseWriter, r *http.Request) {
	if a.CollectHistory == nil {
		unavailable(w, "collector")
		return
	}
	coll, err := a.CollectHistory(r.Context())
	writeCollection(w, coll, err)
}

func (a *API) handleCollectSnapshots(w http.ResponseWriter, r *http.Request) {
	if a.CollectSnapshots == nil {
		unavailable(w, "collector")
		return
	}
	coll, err := a.CollectSnapshots(r.Context())
	writeCollection(w, coll, err)
}

func writeCollection(w http.ResponseWriter, coll *store.Collection, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, coll)
}
