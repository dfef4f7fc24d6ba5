package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/service-logbook/internal/db"
	"github.com/ukydev/service-logbook/internal/form"
	"github.com/ukydev/service-logbook/internal/models"
)

// Notice is the user-facing toast payload attached to responses: a title, a
// description and a flag marking errors visually distinct from successes.
type Notice struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Error       bool   `json:"error,omitempty"`
}

// FormResponse is the state the form page renders from.
type FormResponse struct {
	State    form.State `json:"state"`
	Editing  bool       `json:"editing"`
	StoreKey string     `json:"storeKey,omitempty"`
	Back     string     `json:"back"`
}

// SubmitResponse reports a persisted entry and where to navigate next.
type SubmitResponse struct {
	Entry    models.ServiceEntry `json:"entry"`
	Key      string              `json:"key"`
	Redirect string              `json:"redirect"`
	Notice   Notice              `json:"notice"`
}

// ErrorResponse carries a notice plus optional redirect and field errors.
type ErrorResponse struct {
	Notice   Notice              `json:"notice"`
	Redirect string              `json:"redirect,omitempty"`
	Fields   []models.FieldError `json:"fields,omitempty"`
}

// EntryHandler serves the service-entry form workflow.
type EntryHandler struct {
	entries db.EntryCollection
	events  form.EventSink
}

// NewEntryHandler creates a new service-entry handler.
func NewEntryHandler(entries db.EntryCollection, events form.EventSink) *EntryHandler {
	return &EntryHandler{entries: entries, events: events}
}

func (h *EntryHandler) controller() *form.Controller {
	return form.NewController(h.entries, h.events)
}

// Form initializes the form for a vehicle, in edit mode when the edit query
// parameter names an existing entry. GET /api/vehicles/{vehicle}/entries/form
func (h *EntryHandler) Form(w http.ResponseWriter, r *http.Request) {
	vehicle := r.PathValue("vehicle")
	editID := r.URL.Query().Get("edit")

	ctrl := h.controller()
	if err := ctrl.Load(r.Context(), vehicle, editID); err != nil {
		var windowErr *form.EditWindowError
		if errors.As(err, &windowErr) {
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Notice: Notice{
					Title:       "Cannot Edit",
					Description: "Service entries can only be edited on the day they were recorded.",
					Error:       true,
				},
				Redirect: windowErr.Redirect,
			})
			return
		}
		log.WithError(err).WithField("vehicle", vehicle).Error("Failed to load service entry")
		writeStoreError(w, err, "Failed to load the service entry.")
		return
	}

	writeJSON(w, http.StatusOK, FormResponse{
		State:    ctrl.State(),
		Editing:  ctrl.Editing(),
		StoreKey: ctrl.StoreKey(),
		Back:     ctrl.BackTarget(),
	})
}

// Create persists a new service entry for the vehicle, letting the store
// assign the key. POST /api/vehicles/{vehicle}/entries
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeFormState(w, r)
	if !ok {
		return
	}

	ctrl := h.controller()
	ctrl.Reset(r.PathValue("vehicle"))
	ctrl.Apply(payload)

	h.submit(w, r, ctrl, http.StatusCreated)
}

// Update overwrites the entry at the exact vehicle + store key address,
// re-checking the same-day edit window first.
// PUT /api/vehicles/{vehicle}/entries/{key}
func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeFormState(w, r)
	if !ok {
		return
	}

	ctrl := h.controller()
	if err := ctrl.LoadByKey(r.Context(), r.PathValue("vehicle"), r.PathValue("key")); err != nil {
		var windowErr *form.EditWindowError
		if errors.As(err, &windowErr) {
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Notice: Notice{
					Title:       "Cannot Edit",
					Description: "Service entries can only be edited on the day they were recorded.",
					Error:       true,
				},
				Redirect: windowErr.Redirect,
			})
			return
		}
		if errors.Is(err, db.ErrEntryNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{
				Notice: Notice{Title: "Not Found", Description: "The service entry no longer exists.", Error: true},
			})
			return
		}
		writeStoreError(w, err, "Failed to load the service entry.")
		return
	}
	ctrl.Apply(payload)

	h.submit(w, r, ctrl, http.StatusOK)
}

// History returns the full snapshot of a vehicle's service entries, each with
// its store key. GET /api/vehicles/{vehicle}/entries
func (h *EntryHandler) History(w http.ResponseWriter, r *http.Request) {
	vehicle := models.NormalizeVehicleNumber(r.PathValue("vehicle"))
	stored, err := h.entries.FindEntries(r.Context(), vehicle)
	if err != nil {
		log.WithError(err).WithField("vehicle", vehicle).Error("Failed to load service history")
		writeStoreError(w, err, "Failed to load the service history.")
		return
	}

	type storedEntry struct {
		Key   string              `json:"key"`
		Entry models.ServiceEntry `json:"entry"`
	}
	out := make([]storedEntry, len(stored))
	for i, se := range stored {
		out[i] = storedEntry{Key: se.Key, Entry: se.Entry}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vehicleNumber": vehicle,
		"entries":       out,
	})
}

func (h *EntryHandler) submit(w http.ResponseWriter, r *http.Request, ctrl *form.Controller, okStatus int) {
	result, err := ctrl.Submit(r.Context())
	if err != nil {
		var fieldErrs models.ValidationErrors
		if errors.As(err, &fieldErrs) {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Notice: Notice{Title: "Invalid Entry", Description: "Please fix the highlighted fields.", Error: true},
				Fields: fieldErrs,
			})
			return
		}
		if errors.Is(err, db.ErrEntryNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{
				Notice: Notice{Title: "Not Found", Description: "The service entry no longer exists.", Error: true},
			})
			return
		}
		writeStoreError(w, err, "Failed to save the service entry.")
		return
	}

	writeJSON(w, okStatus, SubmitResponse{
		Entry:    result.Entry,
		Key:      result.Key,
		Redirect: result.Redirect,
		Notice:   Notice{Title: "Success", Description: "Service entry saved."},
	})
}

// decodeFormState reads and decodes the submitted form payload. Totals in the
// payload are ignored; they are recomputed server-side.
func decodeFormState(w http.ResponseWriter, r *http.Request) (form.State, bool) {
	var payload form.State
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return payload, false
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return payload, false
	}
	return payload, true
}

// writeStoreError maps a store failure to a response, telling permission
// denials apart from connection problems.
func writeStoreError(w http.ResponseWriter, err error, description string) {
	var storeErr *form.StoreError
	if errors.As(err, &storeErr) && storeErr.Kind == form.StoreErrorPermission {
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Notice: Notice{Title: "Permission Denied", Description: "You do not have access to this vehicle's records.", Error: true},
		})
		return
	}
	writeJSON(w, http.StatusBadGateway, ErrorResponse{
		Notice: Notice{Title: "Connection Error", Description: description + " Please try again.", Error: true},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
