package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stevemurr/simple-user-server/store"
)

// readRecord buffers the whole body before decoding it.
func readRecord(r *http.Request) (store.Record, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return store.DecodeRecord(body)
}

// pathID parses the {id} segment. Anything that is not a plain integer is
// rejected; such ids never match a stored record.
func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return id, err == nil
}

// ---------- list ----------

// listFilter builds the predicate for GET /users. Each supplied, well-formed
// filter narrows the result; malformed numeric bounds are ignored.
func listFilter(q url.Values) func(store.Record) bool {
	var preds []func(store.Record) bool

	if name := q.Get("name"); name != "" {
		preds = append(preds, func(rec store.Record) bool {
			v, ok := rec["name"].(string)
			return ok && v == name
		})
	}
	if minAge, ok := parseBound(q.Get("minAge")); ok {
		preds = append(preds, func(rec store.Record) bool {
			age, ok := number(rec["age"])
			return ok && age >= minAge
		})
	}
	if maxAge, ok := parseBound(q.Get("maxAge")); ok {
		preds = append(preds, func(rec store.Record) bool {
			age, ok := number(rec["age"])
			return ok && age <= maxAge
		})
	}

	if len(preds) == 0 {
		return nil
	}
	return func(rec store.Record) bool {
		for _, p := range preds {
			if !p(rec) {
				return false
			}
		}
		return true
	}
}

func parseBound(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.users.Filter(listFilter(r.URL.Query())))
}

// ---------- single user ----------

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeText(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	rec, found := h.users.Find(id)
	if !found {
		writeText(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	payload, err := readRecord(r)
	if err != nil {
		slog.Debug("rejected create payload", "error", err)
		writeText(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	writeJSON(w, http.StatusCreated, h.users.Create(payload))
}

// upsertUser replaces fields of the user at {id}, creating it when absent.
// The id always comes from the path.
func (h *Handler) upsertUser(w http.ResponseWriter, r *http.Request) {
	payload, err := readRecord(r)
	if err != nil {
		slog.Debug("rejected upsert payload", "error", err)
		writeText(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeText(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	rec, _ := h.users.Upsert(id, payload)
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) patchUser(w http.ResponseWriter, r *http.Request) {
	payload, err := readRecord(r)
	if err != nil {
		slog.Debug("rejected patch payload", "error", err)
		writeText(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeText(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	rec, err := h.users.Patch(id, payload)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeText(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	if err := h.users.Delete(id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeText(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	slog.Error("user store failed", "error", err)
	writeText(w, http.StatusInternalServerError, msgInternal)
}
